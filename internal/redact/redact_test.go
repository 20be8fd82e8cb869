package redact

import (
	"bytes"
	"image"
	"image/color"
	"testing"

	"github.com/visualpii/redactor/internal/entity"
)

func testPage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x % 256), uint8(y % 256), 200, 255})
		}
	}
	return img
}

func record(page int, box entity.BBox) entity.DetectionRecord {
	return entity.DetectionRecord{Page: page, Category: entity.CategoryEmail, BBox: box, Confidence: 0.9}
}

func pixelsEqual(t *testing.T, a, b image.Image) bool {
	t.Helper()
	pa, errA := EncodePNG(a)
	pb, errB := EncodePNG(b)
	if errA != nil || errB != nil {
		t.Fatalf("encode: %v, %v", errA, errB)
	}
	return bytes.Equal(pa, pb)
}

func TestRenderPaintsBox(t *testing.T) {
	src := testPage(100, 50)
	out := Render([]image.Image{src}, []entity.DetectionRecord{record(1, entity.BBox{10, 10, 30, 20})})
	if len(out) != 1 {
		t.Fatalf("got %d pages", len(out))
	}

	r, g, b, _ := out[0].At(15, 15).RGBA()
	if r != 0 || g != 0 || b != 0 {
		t.Errorf("pixel inside box not black: %v %v %v", r, g, b)
	}
	r, _, _, _ = out[0].At(50, 25).RGBA()
	if r == 0 {
		t.Error("pixel outside box was painted")
	}
}

func TestRenderDoesNotModifySource(t *testing.T) {
	src := testPage(40, 40)
	before, _ := EncodePNG(src)
	Render([]image.Image{src}, []entity.DetectionRecord{record(1, entity.BBox{0, 0, 40, 40})})
	after, _ := EncodePNG(src)
	if !bytes.Equal(before, after) {
		t.Fatal("source image was mutated")
	}
}

func TestRenderIdempotent(t *testing.T) {
	src := testPage(80, 60)
	recs := []entity.DetectionRecord{
		record(1, entity.BBox{5, 5, 40, 30}),
		record(1, entity.BBox{20, 10, 60, 50}), // overlaps the first
	}
	once := Render([]image.Image{src}, recs)[0]
	twice := Render([]image.Image{once}, recs)[0]
	if !pixelsEqual(t, once, twice) {
		t.Fatal("repeated rendering changed pixels")
	}

	doubled := Render([]image.Image{src}, append(append([]entity.DetectionRecord{}, recs...), recs...))[0]
	if !pixelsEqual(t, once, doubled) {
		t.Fatal("duplicate boxes changed pixels")
	}
}

func TestRenderSkipsUnsafeBoxes(t *testing.T) {
	src := testPage(30, 30)
	recs := []entity.DetectionRecord{
		record(1, entity.BBox{100, 100, 200, 200}), // fully outside
		record(1, entity.BBox{5, 5, 5, 20}),        // zero width
		record(1, entity.BBox{5, 5, 20, 5}),        // zero height
	}
	out := Render([]image.Image{src}, recs)[0]
	if !pixelsEqual(t, src, out) {
		t.Fatal("unsafe boxes must produce no visible change")
	}
}

func TestRenderClipsPartialBox(t *testing.T) {
	src := testPage(30, 30)
	out := Render([]image.Image{src}, []entity.DetectionRecord{record(1, entity.BBox{20, 20, 100, 100})})[0]
	if r, _, _, _ := out.At(25, 25).RGBA(); r != 0 {
		t.Error("clipped region not painted")
	}
	if r, g, b, _ := out.At(10, 10).RGBA(); r == 0 && g == 0 && b == 0 {
		t.Error("pixel outside clipped region painted")
	}
}

func TestRenderUnorderedBoxCoordinates(t *testing.T) {
	src := testPage(30, 30)
	out := Render([]image.Image{src}, []entity.DetectionRecord{record(1, entity.BBox{20, 20, 5, 5})})[0]
	if r, _, _, _ := out.At(10, 10).RGBA(); r != 0 {
		t.Error("reversed coordinates not canonicalized before painting")
	}
}

func TestRenderMatchesPageNumber(t *testing.T) {
	p1, p2 := testPage(20, 20), testPage(20, 20)
	out := Render([]image.Image{p1, p2}, []entity.DetectionRecord{record(2, entity.BBox{0, 0, 20, 20})})
	if !pixelsEqual(t, p1, out[0]) {
		t.Error("page 1 painted by a page-2 record")
	}
	if pixelsEqual(t, p2, out[1]) {
		t.Error("page 2 not painted")
	}
}

func TestEncodeDocument(t *testing.T) {
	pages := []image.Image{testPage(20, 30), testPage(40, 10)}
	doc, err := EncodeDocument(pages)
	if err != nil {
		t.Fatalf("EncodeDocument: %v", err)
	}
	if !bytes.HasPrefix(doc, []byte("%PDF-1.4")) {
		t.Error("missing PDF header")
	}
	if !bytes.Contains(doc, []byte("/Count 2")) {
		t.Error("page count not 2")
	}
	if !bytes.HasSuffix(doc, []byte("%%EOF\n")) {
		t.Error("missing EOF marker")
	}
}

func TestEncodeDocumentEmpty(t *testing.T) {
	if _, err := EncodeDocument(nil); err == nil {
		t.Fatal("expected error for zero pages")
	}
}
