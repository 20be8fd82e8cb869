package ocr

import (
	"math"
	"regexp"
	"strings"

	"github.com/visualpii/redactor/internal/entity"
)

// zeroWidthChars strips invisible unicode that OCR engines occasionally emit
// inside recognized spans; it would otherwise break substring pattern matches.
var zeroWidthChars = regexp.MustCompile(`[\x{200B}-\x{200D}\x{FEFF}\x{00AD}\x{2060}]`)

// ExtractTextItems flattens per-page recognition results into one ordered
// sequence of text items. Ordering is stable: page order first, then the
// engine's within-page recognition order. Pages are numbered from 1.
// Confidence is rounded to 3 decimal places; empty pages and blank spans
// yield no items.
func ExtractTextItems(pages []PageResult) []entity.TextItem {
	var items []entity.TextItem

	for pageIdx, page := range pages {
		n := len(page.Texts)
		if len(page.Boxes) < n {
			n = len(page.Boxes)
		}
		if len(page.Scores) < n {
			n = len(page.Scores)
		}

		for i := 0; i < n; i++ {
			text := cleanSpan(page.Texts[i])
			if text == "" {
				continue
			}
			items = append(items, entity.TextItem{
				Page:       pageIdx + 1,
				Text:       text,
				Box:        page.Boxes[i],
				Confidence: round3(page.Scores[i]),
			})
		}
	}

	return items
}

func cleanSpan(s string) string {
	s = zeroWidthChars.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
