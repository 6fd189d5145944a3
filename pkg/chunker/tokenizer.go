package chunker

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// TiktokenTokenizer adapts the cl100k_base BPE encoding to the
// Tokenizer interface.
type TiktokenTokenizer struct {
	encoding *tiktoken.Tiktoken
}

func NewTiktokenTokenizer() (*TiktokenTokenizer, error) {
	encoding, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("failed to load cl100k_base encoding: %w", err)
	}
	return &TiktokenTokenizer{encoding: encoding}, nil
}

func (t *TiktokenTokenizer) Encode(text string) []int {
	return t.encoding.Encode(text, nil, nil)
}

func (t *TiktokenTokenizer) Decode(tokens []int) string {
	return t.encoding.Decode(tokens)
}

func (t *TiktokenTokenizer) Count(text string) int {
	return len(t.Encode(text))
}
