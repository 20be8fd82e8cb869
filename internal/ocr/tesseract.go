package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"

	"github.com/otiai10/gosseract/v2"

	"github.com/visualpii/redactor/internal/entity"
)

// TesseractEngine recognizes text with a local Tesseract install via
// gosseract. A gosseract client is not safe for concurrent use, so the engine
// creates one per call; the trained model data is shared process-wide by
// Tesseract itself.
type TesseractEngine struct {
	languages     []string
	clientFactory func() *gosseract.Client
}

// NewTesseractEngine constructs a Tesseract-backed engine with the given
// language hints (e.g. "eng", "hin").
func NewTesseractEngine(languages []string) *TesseractEngine {
	return &TesseractEngine{
		languages:     append([]string(nil), languages...),
		clientFactory: gosseract.NewClient,
	}
}

func (e *TesseractEngine) Name() string { return "tesseract" }

// Recognize runs line-level recognition on one page image. Each recognized
// line becomes one text span with its box and a confidence scaled to [0,1].
func (e *TesseractEngine) Recognize(ctx context.Context, img image.Image) (PageResult, error) {
	if err := ctx.Err(); err != nil {
		return PageResult{}, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return PageResult{}, fmt.Errorf("encode page: %w", err)
	}

	c := e.clientFactory()
	defer c.Close()

	if err := c.SetImageFromBytes(buf.Bytes()); err != nil {
		return PageResult{}, fmt.Errorf("set image: %w", err)
	}
	if len(e.languages) > 0 {
		if err := c.SetLanguage(e.languages...); err != nil {
			return PageResult{}, fmt.Errorf("set languages: %w", err)
		}
	}

	boxes, err := c.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return PageResult{}, fmt.Errorf("recognize: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return PageResult{}, err
	}

	res := PageResult{
		Texts:  make([]string, 0, len(boxes)),
		Boxes:  make([]entity.BBox, 0, len(boxes)),
		Scores: make([]float64, 0, len(boxes)),
	}
	for _, b := range boxes {
		res.Texts = append(res.Texts, b.Word)
		res.Boxes = append(res.Boxes, entity.BBox{b.Box.Min.X, b.Box.Min.Y, b.Box.Max.X, b.Box.Max.Y})
		res.Scores = append(res.Scores, b.Confidence/100.0)
	}
	return res, nil
}
