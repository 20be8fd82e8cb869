package ocr

import (
	"reflect"
	"testing"

	"github.com/visualpii/redactor/internal/entity"
)

func TestExtractTextItemsOrderAndPages(t *testing.T) {
	pages := []PageResult{
		{
			Texts:  []string{"first", "second"},
			Boxes:  []entity.BBox{{0, 0, 10, 5}, {0, 6, 10, 11}},
			Scores: []float64{0.9, 0.8},
		},
		{}, // empty page yields nothing
		{
			Texts:  []string{"third"},
			Boxes:  []entity.BBox{{1, 1, 2, 2}},
			Scores: []float64{0.5},
		},
	}

	items := ExtractTextItems(pages)
	if len(items) != 3 {
		t.Fatalf("got %d items, want 3", len(items))
	}

	wantPages := []int{1, 1, 3}
	wantTexts := []string{"first", "second", "third"}
	for i, it := range items {
		if it.Page != wantPages[i] {
			t.Errorf("item %d page = %d, want %d", i, it.Page, wantPages[i])
		}
		if it.Text != wantTexts[i] {
			t.Errorf("item %d text = %q, want %q", i, it.Text, wantTexts[i])
		}
	}
	if !reflect.DeepEqual(items[0].Box, entity.BBox{0, 0, 10, 5}) {
		t.Errorf("box not preserved: %v", items[0].Box)
	}
}

func TestExtractTextItemsRoundsConfidence(t *testing.T) {
	items := ExtractTextItems([]PageResult{{
		Texts:  []string{"x"},
		Boxes:  []entity.BBox{{0, 0, 1, 1}},
		Scores: []float64{0.87654},
	}})
	if len(items) != 1 {
		t.Fatalf("got %d items", len(items))
	}
	if items[0].Confidence != 0.877 {
		t.Fatalf("confidence = %v, want 0.877", items[0].Confidence)
	}
}

func TestExtractTextItemsSkipsBlankSpans(t *testing.T) {
	items := ExtractTextItems([]PageResult{{
		Texts:  []string{"  ", "ok", "​"},
		Boxes:  []entity.BBox{{0, 0, 1, 1}, {0, 0, 1, 1}, {0, 0, 1, 1}},
		Scores: []float64{0.1, 0.2, 0.3},
	}})
	if len(items) != 1 || items[0].Text != "ok" {
		t.Fatalf("unexpected items: %+v", items)
	}
}

func TestExtractTextItemsRaggedInput(t *testing.T) {
	// Shorter score slice must not panic; extra texts are dropped.
	items := ExtractTextItems([]PageResult{{
		Texts:  []string{"a", "b"},
		Boxes:  []entity.BBox{{0, 0, 1, 1}, {0, 0, 1, 1}},
		Scores: []float64{0.4},
	}})
	if len(items) != 1 || items[0].Text != "a" {
		t.Fatalf("unexpected items: %+v", items)
	}
}
