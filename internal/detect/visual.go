package detect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/visualpii/redactor/internal/entity"
)

// VisualDetector maps page images to detection records for exactly one
// category, with no text-extraction dependency. Implementations hold only
// immutable state after construction and must be safe for concurrent use by
// independent requests.
type VisualDetector interface {
	Category() entity.Category
	Detect(ctx context.Context, pages []image.Image) ([]entity.DetectionRecord, error)
}

// httpVisualDetector posts each page as PNG to a model-serving endpoint and
// reads back boxes with scores. Face, signature, and fingerprint detection
// all use this shape against their own endpoints.
type httpVisualDetector struct {
	category entity.Category
	label    string
	endpoint string
	client   *http.Client
}

// NewFaceDetector builds a detector against a face-detection endpoint.
func NewFaceDetector(endpoint string, timeout time.Duration) VisualDetector {
	return newHTTPVisualDetector(entity.CategoryFace, "Face", endpoint, timeout)
}

// NewSignatureDetector builds a detector against a signature-detection endpoint.
func NewSignatureDetector(endpoint string, timeout time.Duration) VisualDetector {
	return newHTTPVisualDetector(entity.CategorySignature, "Signature", endpoint, timeout)
}

// NewFingerprintDetector builds a detector against a fingerprint-detection endpoint.
func NewFingerprintDetector(endpoint string, timeout time.Duration) VisualDetector {
	return newHTTPVisualDetector(entity.CategoryFingerprint, "Fingerprint", endpoint, timeout)
}

func newHTTPVisualDetector(cat entity.Category, label, endpoint string, timeout time.Duration) *httpVisualDetector {
	return &httpVisualDetector{
		category: cat,
		label:    label,
		endpoint: strings.TrimRight(endpoint, "/"),
		client:   &http.Client{Timeout: timeout},
	}
}

func (d *httpVisualDetector) Category() entity.Category { return d.category }

type visualBox struct {
	BBox       [4]float64 `json:"bbox"`
	Confidence float64    `json:"confidence"`
}

type visualResponse struct {
	Detections []visualBox `json:"detections"`
}

// Detect posts the pages one by one and assigns 1-based page numbers to the
// returned boxes.
func (d *httpVisualDetector) Detect(ctx context.Context, pages []image.Image) ([]entity.DetectionRecord, error) {
	var records []entity.DetectionRecord

	for i, page := range pages {
		boxes, err := d.detectPage(ctx, page)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i+1, err)
		}
		for _, b := range boxes {
			records = append(records, entity.DetectionRecord{
				Page:     i + 1,
				Entity:   d.label,
				Category: d.category,
				BBox: entity.BBox{
					int(b.BBox[0]), int(b.BBox[1]),
					int(b.BBox[2]), int(b.BBox[3]),
				},
				Confidence: b.Confidence,
			})
		}
	}
	return records, nil
}

func (d *httpVisualDetector) detectPage(ctx context.Context, page image.Image) ([]visualBox, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, page); err != nil {
		return nil, fmt.Errorf("encode page: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", d.endpoint+"/detect", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "image/png")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("detector request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slurp, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return nil, fmt.Errorf("detector error %d: %s", resp.StatusCode, string(slurp))
	}

	var parsed visualResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("detector decode: %w", err)
	}
	return parsed.Detections, nil
}
