package detect

import (
	"testing"

	"github.com/visualpii/redactor/internal/entity"
)

func item(text string) entity.TextItem {
	return entity.TextItem{Page: 1, Text: text, Box: entity.BBox{0, 0, 100, 20}, Confidence: 0.9}
}

func categories(records []entity.DetectionRecord) map[entity.Category]int {
	m := make(map[entity.Category]int)
	for _, r := range records {
		m[r.Category]++
	}
	return m
}

func TestDetectRegexMultipleCategoriesOneSpan(t *testing.T) {
	records := DetectRegex([]entity.TextItem{item("Contact me at a@b.com or 9876543210")})

	got := categories(records)
	if got[entity.CategoryEmail] != 1 {
		t.Errorf("Email count = %d, want 1", got[entity.CategoryEmail])
	}
	if got[entity.CategoryMobileNumber] != 1 {
		t.Errorf("Mobile Number count = %d, want 1", got[entity.CategoryMobileNumber])
	}
	for _, r := range records {
		if r.BBox != (entity.BBox{0, 0, 100, 20}) {
			t.Errorf("bbox not copied from item: %v", r.BBox)
		}
		if r.Confidence != 0.9 {
			t.Errorf("confidence not copied: %v", r.Confidence)
		}
		if r.Page != 1 {
			t.Errorf("page not copied: %d", r.Page)
		}
	}
}

func TestDetectRegexDedup(t *testing.T) {
	// The same email in two spans with identical text yields one record.
	records := DetectRegex([]entity.TextItem{
		item("mail: a@b.com"),
		item("mail: a@b.com"),
	})
	if got := categories(records)[entity.CategoryEmail]; got != 1 {
		t.Fatalf("Email count = %d, want 1 (dedup by (text, category))", got)
	}
}

func TestDetectRegexFirstOccurrenceWins(t *testing.T) {
	a := item("reach me at a@b.com")
	a.Box = entity.BBox{0, 0, 10, 10}
	b := item("reach me at a@b.com")
	b.Box = entity.BBox{50, 50, 90, 90}

	records := DetectRegex([]entity.TextItem{a, b})
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if records[0].BBox != (entity.BBox{0, 0, 10, 10}) {
		t.Fatalf("later duplicate overwrote first occurrence: %v", records[0].BBox)
	}
}

func TestDetectRegexAadhaarABHAOverlap(t *testing.T) {
	// A 16-digit ABHA run contains a 12-digit Aadhaar-shaped prefix; under
	// substring matching both categories fire on the same span.
	records := DetectRegex([]entity.TextItem{item("ID 1234 5678 9012 34")})
	got := categories(records)
	if got[entity.CategoryAadhaar] != 1 || got[entity.CategoryABHA] != 1 {
		t.Fatalf("want both Aadhaar and ABHA, got %v", got)
	}
}

func TestDetectRegexPatterns(t *testing.T) {
	cases := []struct {
		text string
		want entity.Category
	}{
		{"PAN: ABCDE1234F", entity.CategoryPAN},
		{"Voter ABC1234567", entity.CategoryVoterID},
		{"Passport M1234567", entity.CategoryPassport},
		{"DOB 12/05/1990", entity.CategoryDateOfBirth},
		{"Aadhaar 1234 5678 9012", entity.CategoryAadhaar},
		{"call 9876543210", entity.CategoryMobileNumber},
		{"call +91-9876543210 now", entity.CategoryMobileNumber},
	}
	for _, tc := range cases {
		records := DetectRegex([]entity.TextItem{item(tc.text)})
		if categories(records)[tc.want] == 0 {
			t.Errorf("%q: category %s not detected", tc.text, tc.want)
		}
	}
}

func TestPatternTableMatchesRegexCategories(t *testing.T) {
	if len(piiPatterns) != len(entity.RegexCategories) {
		t.Fatalf("table has %d patterns, want %d", len(piiPatterns), len(entity.RegexCategories))
	}
	for i, c := range entity.RegexCategories {
		if piiPatterns[i].category != c {
			t.Errorf("pattern %d = %s, want %s", i, piiPatterns[i].category, c)
		}
	}
}

func TestDetectRegexNoMatch(t *testing.T) {
	records := DetectRegex([]entity.TextItem{item("nothing sensitive here")})
	if len(records) != 0 {
		t.Fatalf("got %d records, want 0", len(records))
	}
}

func TestDetectRegexEmptyInput(t *testing.T) {
	if records := DetectRegex(nil); len(records) != 0 {
		t.Fatalf("got %d records for nil input", len(records))
	}
}
