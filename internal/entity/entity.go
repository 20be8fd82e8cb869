// Package entity holds the canonical detection model shared by every
// detector: PII categories, OCR text items, and detection records.
package entity

import (
	"fmt"
	"image"
)

// Category is one PII class a caller may request. The string value is the
// wire name used in the filters array and in serialized detections.
type Category string

const (
	CategoryEmail        Category = "Email"
	CategoryMobileNumber Category = "Mobile Number"
	CategoryDateOfBirth  Category = "Date of Birth"
	CategoryAadhaar      Category = "AADHAR Number"
	CategoryABHA         Category = "ABHA (Health Id)"
	CategoryVoterID      Category = "Voter ID"
	CategoryPassport     Category = "Passport"
	CategoryPAN          Category = "PAN"
	CategoryPersonName   Category = "Name"
	CategoryAddress      Category = "Address"
	CategoryFace         Category = "Photo"
	CategorySignature    Category = "Signature"
	CategoryFingerprint  Category = "Fingerprint"
	CategoryQRBarcode    Category = "QR & Barcodes"
)

// RegexCategories lists the structured-pattern categories in their fixed
// evaluation order.
var RegexCategories = []Category{
	CategoryEmail,
	CategoryMobileNumber,
	CategoryDateOfBirth,
	CategoryAadhaar,
	CategoryABHA,
	CategoryVoterID,
	CategoryPassport,
	CategoryPAN,
}

// AllCategories is the full category universe.
var AllCategories = []Category{
	CategoryEmail,
	CategoryMobileNumber,
	CategoryDateOfBirth,
	CategoryAadhaar,
	CategoryABHA,
	CategoryVoterID,
	CategoryPassport,
	CategoryPAN,
	CategoryPersonName,
	CategoryAddress,
	CategoryFace,
	CategorySignature,
	CategoryFingerprint,
	CategoryQRBarcode,
}

var known = func() map[Category]bool {
	m := make(map[Category]bool, len(AllCategories))
	for _, c := range AllCategories {
		m[c] = true
	}
	return m
}()

// RequiresText reports whether the category can only be detected from
// recognized text spans.
func (c Category) RequiresText() bool {
	switch c {
	case CategoryFace, CategorySignature, CategoryFingerprint, CategoryQRBarcode:
		return false
	}
	return true
}

// IsRegex reports whether the category is matched by the fixed pattern table.
func (c Category) IsRegex() bool {
	switch c {
	case CategoryPersonName, CategoryAddress,
		CategoryFace, CategorySignature, CategoryFingerprint, CategoryQRBarcode:
		return false
	}
	return true
}

// CategorySet is the caller-selected subset of the category universe.
type CategorySet map[Category]bool

// ParseFilters converts the wire filter names into a CategorySet. A name
// outside the category universe is a client error, not a silent no-op.
func ParseFilters(names []string) (CategorySet, error) {
	set := make(CategorySet, len(names))
	for _, n := range names {
		c := Category(n)
		if !known[c] {
			return nil, fmt.Errorf("unknown filter %q", n)
		}
		set[c] = true
	}
	return set, nil
}

// Has reports whether the category was requested.
func (s CategorySet) Has(c Category) bool { return s[c] }

// AnyText reports whether any requested category needs recognized text.
func (s CategorySet) AnyText() bool {
	for c := range s {
		if c.RequiresText() {
			return true
		}
	}
	return false
}

// AnyRegex reports whether any requested category is pattern-matched.
func (s CategorySet) AnyRegex() bool {
	for c := range s {
		if c.IsRegex() {
			return true
		}
	}
	return false
}

// BBox is an axis-aligned rectangle [x1,y1,x2,y2] in image pixel coordinates.
// It serializes as a plain 4-element JSON array.
type BBox [4]int

// Canon returns the box with coordinates reordered so x1<=x2 and y1<=y2.
func (b BBox) Canon() BBox {
	if b[0] > b[2] {
		b[0], b[2] = b[2], b[0]
	}
	if b[1] > b[3] {
		b[1], b[3] = b[3], b[1]
	}
	return b
}

// Rect converts the box to an image.Rectangle.
func (b BBox) Rect() image.Rectangle {
	c := b.Canon()
	return image.Rect(c[0], c[1], c[2], c[3])
}

// Empty reports whether the box has zero area.
func (b BBox) Empty() bool {
	c := b.Canon()
	return c[0] == c[2] || c[1] == c[3]
}

// TextItem is one recognized text span on a page. Items are immutable after
// extraction and live only for the duration of a request.
type TextItem struct {
	Page       int     `json:"page"`
	Text       string  `json:"text"`
	Box        BBox    `json:"box"`
	Confidence float64 `json:"confidence"`
}

// DetectionRecord is the canonical detection shared by all detectors. It is
// created by exactly one detector and mutated only by the normalizer.
type DetectionRecord struct {
	Page       int      `json:"page"`
	Entity     string   `json:"entity,omitempty"`
	Category   Category `json:"type"`
	BBox       BBox     `json:"bbox"`
	Confidence float64  `json:"confidence"`
}
