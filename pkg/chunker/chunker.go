package chunker

import (
	"fmt"

	"github.com/hmle/talkdocs/internal/types"
	"github.com/hmle/talkdocs/pkg/cleaner"
)

type ChunkerConfig struct {
	ChunkSize    int // token budget per segment
	ChunkOverlap int // tokens shared between consecutive segments
	Tokenizer    types.Tokenizer
}

// Chunker splits raw document text into token-bounded segments whose
// de-overlapped concatenation reconstructs the source.
type Chunker struct {
	config ChunkerConfig
}

func NewWithConfig(config ChunkerConfig) (Chunker, error) {
	if config.ChunkSize == 0 {
		config.ChunkSize = 512
	}
	if config.ChunkOverlap == 0 {
		config.ChunkOverlap = 24
	}
	if config.ChunkOverlap >= config.ChunkSize {
		return Chunker{}, fmt.Errorf("chunk overlap must be less than chunk size")
	}
	if config.Tokenizer == nil {
		tok, err := NewTiktokenTokenizer()
		if err != nil {
			return Chunker{}, fmt.Errorf("failed to initialize tokenizer: %w", err)
		}
		config.Tokenizer = tok
	}

	return Chunker{config: config}, nil
}

// Split cuts text into segments of at most ChunkSize tokens, each
// sharing exactly ChunkOverlap tokens with its predecessor. Empty or
// unreadable input yields no segments, not an error.
func (c *Chunker) Split(text string) []string {
	tokens := c.config.Tokenizer.Encode(text)
	if len(tokens) == 0 {
		return nil
	}

	size := c.config.ChunkSize
	step := size - c.config.ChunkOverlap

	var segments []string
	for start := 0; start < len(tokens); start += step {
		end := start + size
		if end > len(tokens) {
			end = len(tokens)
		}
		segments = append(segments, c.config.Tokenizer.Decode(tokens[start:end]))
		if end == len(tokens) {
			break
		}
	}

	return segments
}

// SplitClean runs the extraction cleaner over each segment after
// splitting. Cleaning happens per segment so the overlap accounting on
// the raw text stays exact.
func (c *Chunker) SplitClean(text string) []string {
	segments := c.Split(text)
	cleaned := make([]string, 0, len(segments))
	for _, segment := range segments {
		if s := cleaner.Clean(segment); s != "" {
			cleaned = append(cleaned, s)
		}
	}
	return cleaned
}
