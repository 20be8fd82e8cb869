// Package redact paints irreversible opaque fills over detection boxes and
// serializes the result.
package redact

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/png"

	"github.com/visualpii/redactor/internal/entity"
)

// Render returns redacted copies of the given pages; the originals are never
// modified. For each page (numbered from 1) every record whose Page matches
// gets its box filled with opaque black. Boxes are clipped to the canvas;
// degenerate or fully out-of-canvas boxes are skipped. Painting is idempotent:
// repeated or overlapping boxes produce the same pixels as a single pass.
func Render(pages []image.Image, records []entity.DetectionRecord) []image.Image {
	out := make([]image.Image, len(pages))

	for i, page := range pages {
		bounds := page.Bounds()
		dst := image.NewRGBA(bounds)
		draw.Draw(dst, bounds, page, bounds.Min, draw.Src)

		pageNum := i + 1
		for _, rec := range records {
			if rec.Page != pageNum {
				continue
			}
			rect := rec.BBox.Rect().Intersect(bounds)
			if rect.Empty() {
				continue
			}
			draw.Draw(dst, rect, image.Black, image.Point{}, draw.Src)
		}
		out[i] = dst
	}

	return out
}

// EncodePNG serializes one redacted page as PNG.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
