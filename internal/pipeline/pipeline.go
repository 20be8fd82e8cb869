// Package pipeline runs the detection-aggregation-and-redaction flow for one
// request: dispatch the requested detectors, merge their records in fixed
// precedence order, normalize, and render the redacted page.
package pipeline

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/visualpii/redactor/internal/detect"
	"github.com/visualpii/redactor/internal/entity"
	"github.com/visualpii/redactor/internal/ocr"
	"github.com/visualpii/redactor/internal/redact"
)

// visualOrder is the aggregation precedence for visual categories; combined
// with entity and regex records the full order is: PersonName, Address,
// regex, QRBarcode, Signature, Face, Fingerprint.
var visualOrder = []entity.Category{
	entity.CategoryQRBarcode,
	entity.CategorySignature,
	entity.CategoryFace,
	entity.CategoryFingerprint,
}

// Pipeline wires the injected detector adapters together. All fields are set
// once at startup; the pipeline itself holds no per-request state.
type Pipeline struct {
	OCR      ocr.Engine
	Entities detect.EntityDetector             // nil = NER sidecar not configured
	Visual   map[entity.Category]detect.VisualDetector

	OCRTimeout      time.Duration
	DetectorTimeout time.Duration
	MaxParallel     int

	Log *logrus.Logger
}

// Result is the assembled outcome of one request.
type Result struct {
	// Detections is the aggregated record list in precedence order, after
	// normalization (canonical boxes, page collapsed to 1).
	Detections []entity.DetectionRecord
	// Page is the redacted page image, for callers that need an alternate
	// container encoding.
	Page image.Image
	// PNG is the redacted page encoded as PNG.
	PNG []byte
	// Failed lists the wire names of requested categories whose detector
	// errored; their absence from Detections is not evidence of a clean page.
	Failed []string
}

// Process runs the full pipeline over a single page image for the requested
// category set. Detector failures are isolated: each failure marks its
// categories in Result.Failed and the remaining detectors still run. Only a
// rendering/encoding fault fails the whole request.
func (p *Pipeline) Process(ctx context.Context, requestID string, img image.Image, requested entity.CategorySet) (*Result, error) {
	log := p.Log.WithField("request_id", requestID)
	res := &Result{}

	items := p.extractText(ctx, log, requested, img, res)

	p.runEntityDetector(ctx, log, requested, items, res)
	p.runRegexDetector(log, requested, items, res)
	p.runVisualDetectors(ctx, log, requested, img, res)

	res.Detections = Normalize(res.Detections)

	pages := redact.Render([]image.Image{img}, res.Detections)
	res.Page = pages[0]
	png, err := redact.EncodePNG(pages[0])
	if err != nil {
		log.WithField("stage", "render").WithError(err).Error("failed to encode redacted page")
		return nil, fmt.Errorf("encode redacted page: %w", err)
	}
	res.PNG = png

	log.WithFields(logrus.Fields{
		"stage":      "assemble",
		"detections": len(res.Detections),
		"failed":     len(res.Failed),
	}).Info("request processed")
	return res, nil
}

// extractText runs OCR when any requested category needs text. An OCR failure
// marks every requested text category as failed; a page with no recognizable
// text is not an error and simply yields zero text-based records.
func (p *Pipeline) extractText(ctx context.Context, log *logrus.Entry, requested entity.CategorySet, img image.Image, res *Result) []entity.TextItem {
	if !requested.AnyText() {
		return nil
	}

	octx, cancel := context.WithTimeout(ctx, p.OCRTimeout)
	defer cancel()

	page, err := p.OCR.Recognize(octx, img)
	if err != nil {
		log.WithFields(logrus.Fields{"stage": "ocr", "engine": p.OCR.Name()}).
			WithError(err).Error("text extraction failed")
		for _, c := range entity.AllCategories {
			if c.RequiresText() && requested.Has(c) {
				res.Failed = append(res.Failed, string(c))
			}
		}
		return nil
	}

	items := ocr.ExtractTextItems([]ocr.PageResult{page})
	log.WithFields(logrus.Fields{"stage": "ocr", "engine": p.OCR.Name(), "items": len(items)}).
		Debug("text extracted")
	return items
}

func (p *Pipeline) runEntityDetector(ctx context.Context, log *logrus.Entry, requested entity.CategorySet, items []entity.TextItem, res *Result) {
	wantName := requested.Has(entity.CategoryPersonName)
	wantAddr := requested.Has(entity.CategoryAddress)
	if !wantName && !wantAddr || len(items) == 0 {
		return
	}

	fail := func(err error) {
		log.WithField("stage", "ner").WithError(err).Error("entity detection failed")
		if wantName {
			res.Failed = append(res.Failed, string(entity.CategoryPersonName))
		}
		if wantAddr {
			res.Failed = append(res.Failed, string(entity.CategoryAddress))
		}
	}

	if p.Entities == nil {
		fail(fmt.Errorf("entity detector not configured"))
		return
	}

	dctx, cancel := context.WithTimeout(ctx, p.DetectorTimeout)
	defer cancel()

	records, err := p.Entities.DetectEntities(dctx, items)
	if err != nil {
		fail(err)
		return
	}

	// The adapter emits both labels in whatever order the model returned
	// them; keep only what was requested, names before addresses.
	for _, cat := range []entity.Category{entity.CategoryPersonName, entity.CategoryAddress} {
		if !requested.Has(cat) {
			continue
		}
		for _, rec := range records {
			if rec.Category == cat {
				res.Detections = append(res.Detections, rec)
			}
		}
	}
}

// runRegexDetector always evaluates the full pattern table, then filters the
// records down to the requested categories. A non-requested category never
// reaches the result, even though its patterns ran.
func (p *Pipeline) runRegexDetector(log *logrus.Entry, requested entity.CategorySet, items []entity.TextItem, res *Result) {
	if len(items) == 0 || !requested.AnyRegex() {
		return
	}
	all := detect.DetectRegex(items)
	kept := 0
	for _, rec := range all {
		if requested.Has(rec.Category) {
			res.Detections = append(res.Detections, rec)
			kept++
		}
	}
	log.WithFields(logrus.Fields{"stage": "regex", "matched": len(all), "kept": kept}).
		Debug("pattern pass complete")
}

// runVisualDetectors fans the requested visual detectors out over a bounded
// errgroup. Results land in per-category slots so aggregation order stays
// fixed regardless of completion order, and one detector's failure never
// blocks the others.
func (p *Pipeline) runVisualDetectors(ctx context.Context, log *logrus.Entry, requested entity.CategorySet, img image.Image, res *Result) {
	pages := []image.Image{img}

	type slot struct {
		records []entity.DetectionRecord
		err     error
	}
	slots := make([]*slot, len(visualOrder))

	g := new(errgroup.Group)
	if p.MaxParallel > 0 {
		g.SetLimit(p.MaxParallel)
	}

	for i, cat := range visualOrder {
		if !requested.Has(cat) {
			continue
		}
		s := &slot{}
		slots[i] = s

		d, ok := p.Visual[cat]
		if !ok || d == nil {
			s.err = fmt.Errorf("detector not configured")
			continue
		}

		g.Go(func() error {
			dctx, cancel := context.WithTimeout(ctx, p.DetectorTimeout)
			defer cancel()
			s.records, s.err = d.Detect(dctx, pages)
			return nil // failures are isolated, never group-fatal
		})
	}
	_ = g.Wait()

	for i, cat := range visualOrder {
		s := slots[i]
		if s == nil {
			continue
		}
		if s.err != nil {
			log.WithFields(logrus.Fields{"stage": "visual", "category": string(cat)}).
				WithError(s.err).Error("visual detection failed")
			res.Failed = append(res.Failed, string(cat))
			continue
		}
		log.WithFields(logrus.Fields{"stage": "visual", "category": string(cat), "boxes": len(s.records)}).
			Debug("visual detection complete")
		res.Detections = append(res.Detections, s.records...)
	}
}

// Normalize prepares records for rendering: boxes are canonicalized to axis
// order and every page index is forced to 1, since the pipeline handles
// exactly one page per request regardless of what detectors reported. The
// single-page collapse is a design limit, not an accident.
func Normalize(records []entity.DetectionRecord) []entity.DetectionRecord {
	out := make([]entity.DetectionRecord, len(records))
	for i, rec := range records {
		rec.BBox = rec.BBox.Canon()
		rec.Page = 1
		out[i] = rec
	}
	return out
}
