package detect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/visualpii/redactor/internal/entity"
)

// EntityDetector finds person-name and address spans in recognized text.
type EntityDetector interface {
	DetectEntities(ctx context.Context, items []entity.TextItem) ([]entity.DetectionRecord, error)
}

// NERClient calls a named-entity model server. The server receives the raw
// span texts and returns labeled spans keyed by item index; page, box, and
// confidence are copied from the originating text item so one confidence
// semantics holds across the whole pipeline (the model's own score is
// discarded).
type NERClient struct {
	endpoint string
	client   *http.Client
}

// NewNERClient builds a client for the NER sidecar at endpoint.
func NewNERClient(endpoint string, timeout time.Duration) *NERClient {
	return &NERClient{
		endpoint: strings.TrimRight(endpoint, "/"),
		client:   &http.Client{Timeout: timeout},
	}
}

type nerRequestItem struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

type nerSpan struct {
	Index int    `json:"index"`
	Label string `json:"label"` // "PER" | "ADDR"
	Text  string `json:"text"`
}

type nerResponse struct {
	Entities []nerSpan `json:"entities"`
}

// DetectEntities sends every text span to the model server and maps labeled
// spans back onto detection records.
func (c *NERClient) DetectEntities(ctx context.Context, items []entity.TextItem) ([]entity.DetectionRecord, error) {
	if len(items) == 0 {
		return nil, nil
	}

	reqItems := make([]nerRequestItem, len(items))
	for i, it := range items {
		reqItems[i] = nerRequestItem{Index: i, Text: it.Text}
	}
	body, _ := json.Marshal(map[string]any{"items": reqItems})

	req, err := http.NewRequestWithContext(ctx, "POST", c.endpoint+"/entities", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ner request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slurp, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return nil, fmt.Errorf("ner error %d: %s", resp.StatusCode, string(slurp))
	}

	var parsed nerResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("ner decode: %w", err)
	}

	var records []entity.DetectionRecord
	for _, span := range parsed.Entities {
		if span.Index < 0 || span.Index >= len(items) {
			continue
		}
		var cat entity.Category
		switch span.Label {
		case "PER":
			cat = entity.CategoryPersonName
		case "ADDR", "LOC":
			cat = entity.CategoryAddress
		default:
			continue
		}
		src := items[span.Index]
		records = append(records, entity.DetectionRecord{
			Page:       src.Page,
			Entity:     span.Text,
			Category:   cat,
			BBox:       src.Box,
			Confidence: src.Confidence,
		})
	}
	return records, nil
}
