// Package ocr defines the OCR engine contract consumed by the detection
// pipeline and the adapter that normalizes raw engine output into ordered
// text items. Engines are constructed once at startup and injected; they must
// be safe for concurrent use across requests.
package ocr

import (
	"context"
	"image"

	"github.com/visualpii/redactor/internal/entity"
)

// PageResult is the raw recognition output for one page: three parallel,
// equal-length sequences of recognized strings, boxes, and confidence scores.
type PageResult struct {
	Texts  []string
	Boxes  []entity.BBox
	Scores []float64
}

// Engine recognizes text spans on a single page image.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, img image.Image) (PageResult, error)
}
