package reader_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hmle/talkdocs/internal/types"
	"github.com/hmle/talkdocs/pkg/reader"
)

func TestExtractPlainText(t *testing.T) {
	r := reader.New()

	text, err := r.Extract("notes.txt", []byte("plain text content"))
	require.NoError(t, err)
	assert.Equal(t, "plain text content", text)

	text, err = r.Extract("README.md", []byte("# Heading\n\nbody"))
	require.NoError(t, err)
	assert.Equal(t, "# Heading\n\nbody", text)
}

func TestExtractEmpty(t *testing.T) {
	r := reader.New()
	text, err := r.Extract("notes.txt", nil)
	require.NoError(t, err)
	assert.Equal(t, "", text)
}

func TestExtractHTML(t *testing.T) {
	r := reader.New()
	html := `<html><head><style>body { color: red }</style>
<script>alert("hi")</script></head>
<body><main><p>Visible paragraph.</p></main></body></html>`

	text, err := r.Extract("page.html", []byte(html))
	require.NoError(t, err)
	assert.Contains(t, text, "Visible paragraph.")
	assert.NotContains(t, text, "alert")
	assert.NotContains(t, text, "color: red")
}

func TestExtractSniffsHTMLInTxt(t *testing.T) {
	r := reader.New()
	html := `<!DOCTYPE html><html><body><p>sniffed</p></body></html>`

	text, err := r.Extract("saved-page.txt", []byte(html))
	require.NoError(t, err)
	assert.Equal(t, "sniffed", text)
}

func TestExtractRejectsBinary(t *testing.T) {
	r := reader.New()

	_, err := r.Extract("archive.txt", []byte{0x00, 0x01, 0x02})
	assert.ErrorIs(t, err, types.ErrValidation)

	_, err = r.Extract("photo.jpg", []byte("not really a jpg"))
	assert.ErrorIs(t, err, types.ErrValidation)
}
