package detect

import (
	"context"
	"image"
	"math"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/multi"
	multiqr "github.com/makiuchi-d/gozxing/multi/qrcode"
	"github.com/makiuchi-d/gozxing/oned"

	"github.com/visualpii/redactor/internal/entity"
)

// QRBarcodeDetector locates QR codes and 1D barcodes with a statically linked
// ZXing port. Unlike the other visual detectors it needs no model server: a
// successful decode is an exact hit, so confidence is reported as 1.
type QRBarcodeDetector struct {
	qr   multi.MultipleBarcodeReader
	oned multi.MultipleBarcodeReader
}

// NewQRBarcodeDetector constructs the detector. It is stateless per request
// and safe for concurrent use.
func NewQRBarcodeDetector() *QRBarcodeDetector {
	return &QRBarcodeDetector{
		qr:   multiqr.NewQRCodeMultiReader(),
		oned: onedReader{},
	}
}

// onedReaderFactories covers the linear symbologies the library can decode.
// The UPC/EAN family shares one reader; the rest are per-symbology.
var onedReaderFactories = []func() gozxing.Reader{
	func() gozxing.Reader { return oned.NewMultiFormatUPCEANReader(nil) },
	oned.NewCode128Reader,
	oned.NewCode39Reader,
	oned.NewCode93Reader,
	oned.NewITFReader,
	oned.NewCodaBarReader,
}

// onedReader funnels the library's single-result 1D readers through the
// multi-result interface; the library ships a true multi reader only for QR
// codes. Readers are constructed per call because gozxing readers keep decode
// state and must not be shared across requests.
type onedReader struct{}

func (r onedReader) DecodeMultipleWithoutHint(img *gozxing.BinaryBitmap) ([]*gozxing.Result, error) {
	return r.DecodeMultiple(img, nil)
}

func (onedReader) DecodeMultiple(img *gozxing.BinaryBitmap, hints map[gozxing.DecodeHintType]interface{}) ([]*gozxing.Result, error) {
	for _, newReader := range onedReaderFactories {
		res, err := newReader().Decode(img, hints)
		if err != nil {
			continue
		}
		return []*gozxing.Result{res}, nil
	}
	return nil, gozxing.NewNotFoundException()
}

func (d *QRBarcodeDetector) Category() entity.Category { return entity.CategoryQRBarcode }

// Detect scans each page for QR codes and 1D barcodes. A page where nothing
// decodes contributes zero records; decode misses are not errors.
func (d *QRBarcodeDetector) Detect(ctx context.Context, pages []image.Image) ([]entity.DetectionRecord, error) {
	hints := map[gozxing.DecodeHintType]interface{}{
		gozxing.DecodeHintType_TRY_HARDER: true,
	}

	var records []entity.DetectionRecord
	for i, page := range pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		bmp, err := gozxing.NewBinaryBitmapFromImage(page)
		if err != nil {
			continue
		}
		for _, reader := range []multi.MultipleBarcodeReader{d.qr, d.oned} {
			results, err := reader.DecodeMultiple(bmp, hints)
			if err != nil {
				continue // NotFoundException: no codes on this page
			}
			for _, res := range results {
				box, ok := boxFromResult(res, page.Bounds())
				if !ok {
					continue
				}
				records = append(records, entity.DetectionRecord{
					Page:       i + 1,
					Entity:     res.GetBarcodeFormat().String(),
					Category:   entity.CategoryQRBarcode,
					BBox:       box,
					Confidence: 1.0,
				})
			}
		}
	}
	return records, nil
}

// boxFromResult derives a covering box from the decode result points. For QR
// codes the points are finder-pattern centers, which sit inside the symbol,
// so the hull is padded outward before use.
func boxFromResult(res *gozxing.Result, bounds image.Rectangle) (entity.BBox, bool) {
	points := res.GetResultPoints()
	if len(points) == 0 {
		return entity.BBox{}, false
	}

	minX, minY := math.MaxFloat64, math.MaxFloat64
	maxX, maxY := -math.MaxFloat64, -math.MaxFloat64
	for _, p := range points {
		minX = math.Min(minX, p.GetX())
		minY = math.Min(minY, p.GetY())
		maxX = math.Max(maxX, p.GetX())
		maxY = math.Max(maxY, p.GetY())
	}

	padX := (maxX-minX)*0.25 + 4
	padY := (maxY-minY)*0.25 + 4
	// 1D scan lines are flat; give them the same vertical reach as horizontal.
	if maxY-minY < 1 {
		padY = padX
	}

	box := entity.BBox{
		int(minX - padX), int(minY - padY),
		int(maxX + padX), int(maxY + padY),
	}
	rect := box.Rect().Intersect(bounds)
	if rect.Empty() {
		return entity.BBox{}, false
	}
	return entity.BBox{rect.Min.X, rect.Min.Y, rect.Max.X, rect.Max.Y}, true
}
