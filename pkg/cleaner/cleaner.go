package cleaner

import (
	"regexp"
	"strings"
)

// Clean normalizes text extracted from uploads: bullet glyphs, OCR dash
// runs, excess whitespace and dangling trailing punctuation. It is
// idempotent, so already-clean text passes through unchanged.

var (
	bulletRe       = regexp.MustCompile(`(?m)^[\s]*[•◦▪‣·∙*-]+[\s]+`)
	dashRunRe      = regexp.MustCompile(`[-–—]{2,}|[–—]`)
	trailingPunctRe = regexp.MustCompile(`[,;:\-–—]+$`)
)

func Clean(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}

	// Bullets are only meaningful at line starts; remove them before
	// line breaks are collapsed away.
	text = bulletRe.ReplaceAllString(text, "")

	// Dash runs and stray em-dashes from extraction become a single space.
	text = dashRunRe.ReplaceAllString(text, " ")

	// Collapse all whitespace runs to single spaces.
	text = strings.Join(strings.Fields(text), " ")

	// Drop dangling trailing punctuation left behind by extraction.
	text = trailingPunctRe.ReplaceAllString(text, "")

	return strings.TrimSpace(text)
}
