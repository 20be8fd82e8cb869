package detect

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/visualpii/redactor/internal/entity"
)

func TestNERClientMapsSpans(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/entities" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req struct {
			Items []nerRequestItem `json:"items"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if len(req.Items) != 2 {
			t.Errorf("got %d items", len(req.Items))
		}
		json.NewEncoder(w).Encode(nerResponse{Entities: []nerSpan{
			{Index: 0, Label: "PER", Text: "Rahul Sharma"},
			{Index: 1, Label: "ADDR", Text: "12 MG Road, Pune"},
			{Index: 1, Label: "ORG", Text: "ignored"},
			{Index: 9, Label: "PER", Text: "out of range"},
		}})
	}))
	defer srv.Close()

	client := NewNERClient(srv.URL, 5*time.Second)
	items := []entity.TextItem{
		{Page: 1, Text: "Name: Rahul Sharma", Box: entity.BBox{0, 0, 50, 10}, Confidence: 0.95},
		{Page: 1, Text: "Addr: 12 MG Road, Pune", Box: entity.BBox{0, 12, 80, 22}, Confidence: 0.88},
	}

	records, err := client.DetectEntities(context.Background(), items)
	if err != nil {
		t.Fatalf("DetectEntities: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}

	if records[0].Category != entity.CategoryPersonName || records[0].Entity != "Rahul Sharma" {
		t.Errorf("record 0 = %+v", records[0])
	}
	if records[0].BBox != items[0].Box || records[0].Confidence != 0.95 {
		t.Errorf("record 0 did not copy source box/confidence: %+v", records[0])
	}
	if records[1].Category != entity.CategoryAddress {
		t.Errorf("record 1 = %+v", records[1])
	}
	// OCR confidence wins over the model's internal score.
	if records[1].Confidence != 0.88 {
		t.Errorf("record 1 confidence = %v, want 0.88", records[1].Confidence)
	}
}

func TestNERClientErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewNERClient(srv.URL, 5*time.Second)
	_, err := client.DetectEntities(context.Background(), []entity.TextItem{{Page: 1, Text: "x"}})
	if err == nil {
		t.Fatal("expected error on 503")
	}
}

func TestNERClientEmptyInput(t *testing.T) {
	client := NewNERClient("http://unused.invalid", time.Second)
	records, err := client.DetectEntities(context.Background(), nil)
	if err != nil || records != nil {
		t.Fatalf("empty input should be a no-op, got %v, %v", records, err)
	}
}
