package reader

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/hmle/talkdocs/internal/types"
)

// Reader turns raw uploaded bytes into plain text. Plain text and
// markdown pass through; HTML is reduced to its visible text. Binary
// formats the system cannot extract are a client error.
type Reader struct{}

func New() Reader {
	return Reader{}
}

// Extract returns the text content of the upload named name. The name
// is only used for format detection; the bytes are the source of truth
// when the extension is ambiguous.
func (r Reader) Extract(name string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", nil
	}
	if !utf8.Valid(data) || bytes.ContainsRune(data, 0) {
		return "", fmt.Errorf("%w: %s is not a supported text format", types.ErrValidation, name)
	}

	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".html", ".htm":
		return extractHTML(data)
	case ".txt", ".md", ".markdown", "":
		if looksLikeHTML(data) {
			return extractHTML(data)
		}
		return string(data), nil
	default:
		return "", fmt.Errorf("%w: unsupported file extension %q", types.ErrValidation, ext)
	}
}

func looksLikeHTML(data []byte) bool {
	head := strings.ToLower(string(data[:min(len(data), 256)]))
	return strings.Contains(head, "<!doctype html") || strings.Contains(head, "<html")
}

func extractHTML(data []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: failed to parse HTML upload", types.ErrValidation)
	}

	doc.Find("script, style, noscript").Remove()

	// Prefer the main content area when the page marks one.
	selectors := []string{"main", "article", ".content", "#content"}
	var content string
	for _, selector := range selectors {
		if selected := doc.Find(selector); selected.Length() > 0 {
			content = selected.Text()
			break
		}
	}
	if content == "" {
		content = doc.Find("body").Text()
	}
	if content == "" {
		content = doc.Text()
	}

	return strings.TrimSpace(content), nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
