// Package detect holds the PII detectors: the structured-pattern pass over
// recognized text, the named-entity adapter, and the visual detectors.
package detect

import (
	"regexp"

	"github.com/visualpii/redactor/internal/entity"
)

// piiPattern pairs a compiled pattern with the category it detects.
type piiPattern struct {
	category entity.Category
	re       *regexp.Regexp
}

// piiPatterns is the fixed table of structured PII patterns, evaluated in
// order against every text span. Matching is substring search, so a span can
// satisfy several categories at once; in particular a 16-digit ABHA run also
// contains a 12-digit Aadhaar-shaped run and both fire.
var piiPatterns = []piiPattern{
	{entity.CategoryEmail, regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)},
	{entity.CategoryMobileNumber, regexp.MustCompile(`\b(?:\+91[-\s]?|0)?[6-9]\d{9}\b`)},
	{entity.CategoryDateOfBirth, regexp.MustCompile(`\b(?:0?[1-9]|[12][0-9]|3[01])[-/.\s]?(?:0?[1-9]|1[0-2])[-/.\s]?(?:\d{2}|\d{4})\b`)},
	{entity.CategoryAadhaar, regexp.MustCompile(`\b\d{4}\s?\d{4}\s?\d{4}\b`)},
	{entity.CategoryABHA, regexp.MustCompile(`\b\d{4}\s?\d{4}\s?\d{4}\s?\d{2}\b`)},
	{entity.CategoryVoterID, regexp.MustCompile(`\b[A-Z]{3}\d{7}\b`)},
	{entity.CategoryPassport, regexp.MustCompile(`\b[A-Z][0-9]{7}\b`)},
	{entity.CategoryPAN, regexp.MustCompile(`\b[A-Z]{5}\d{4}[A-Z]\b`)},
}

type dedupKey struct {
	text     string
	category entity.Category
}

// DetectRegex runs the full pattern table against every text item and emits
// one record per distinct (text, category) pair across the whole input; the
// first occurrence wins. All categories are always evaluated — callers filter
// the result down to the requested set.
func DetectRegex(items []entity.TextItem) []entity.DetectionRecord {
	var records []entity.DetectionRecord
	seen := make(map[dedupKey]bool)

	for _, item := range items {
		for _, p := range piiPatterns {
			if !p.re.MatchString(item.Text) {
				continue
			}
			key := dedupKey{item.Text, p.category}
			if seen[key] {
				continue
			}
			seen[key] = true
			records = append(records, entity.DetectionRecord{
				Page:       item.Page,
				Entity:     item.Text,
				Category:   p.category,
				BBox:       item.Box,
				Confidence: item.Confidence,
			})
		}
	}

	return records
}
