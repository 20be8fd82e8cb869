package redact

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
)

// EncodeDocument serializes redacted pages, in order, into a single PDF with
// one full-bleed image per page. The writer emits the minimal object set
// (catalog, page tree, one page + DCT-encoded image XObject per input) with a
// conventional xref table; pages are sized 1:1 to their pixel dimensions.
func EncodeDocument(pages []image.Image) ([]byte, error) {
	if len(pages) == 0 {
		return nil, fmt.Errorf("no pages to encode")
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")

	// Object numbers: 1 catalog, 2 page tree, then per page i:
	// 3+3i page, 4+3i content stream, 5+3i image XObject.
	numObjects := 2 + 3*len(pages)
	offsets := make([]int, numObjects+1)

	writeObj := func(num int, body string) {
		offsets[num] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", num, body)
	}

	kids := ""
	for i := range pages {
		kids += fmt.Sprintf("%d 0 R ", 3+3*i)
	}
	writeObj(1, "<< /Type /Catalog /Pages 2 0 R >>")
	writeObj(2, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", kids, len(pages)))

	for i, page := range pages {
		w := page.Bounds().Dx()
		h := page.Bounds().Dy()
		pageObj, contentObj, imageObj := 3+3*i, 4+3*i, 5+3*i

		writeObj(pageObj, fmt.Sprintf(
			"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 %d %d] "+
				"/Resources << /XObject << /Im0 %d 0 R >> >> /Contents %d 0 R >>",
			w, h, imageObj, contentObj))

		content := fmt.Sprintf("q %d 0 0 %d 0 0 cm /Im0 Do Q", w, h)
		writeObj(contentObj, fmt.Sprintf(
			"<< /Length %d >>\nstream\n%s\nendstream", len(content), content))

		var jpg bytes.Buffer
		if err := jpeg.Encode(&jpg, page, &jpeg.Options{Quality: 90}); err != nil {
			return nil, fmt.Errorf("encode page %d: %w", i+1, err)
		}

		offsets[imageObj] = buf.Len()
		fmt.Fprintf(&buf,
			"%d 0 obj\n<< /Type /XObject /Subtype /Image /Width %d /Height %d "+
				"/ColorSpace /DeviceRGB /BitsPerComponent 8 /Filter /DCTDecode /Length %d >>\nstream\n",
			imageObj, w, h, jpg.Len())
		buf.Write(jpg.Bytes())
		buf.WriteString("\nendstream\nendobj\n")
	}

	xrefStart := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", numObjects+1)
	buf.WriteString("0000000000 65535 f \n")
	for num := 1; num <= numObjects; num++ {
		fmt.Fprintf(&buf, "%010d 00000 n \n", offsets[num])
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n",
		numObjects+1, xrefStart)

	return buf.Bytes(), nil
}
