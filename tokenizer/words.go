package tokenizer

import (
	"strings"

	"github.com/cespare/xxhash/v2"
)

// WordTokenizer maps every whitespace-separated word to one token.
// IDs are the low 31 bits of the word's xxhash, so equal words share an ID.
type WordTokenizer struct{}

// NewWordTokenizer creates a word tokenizer.
func NewWordTokenizer() *WordTokenizer {
	return &WordTokenizer{}
}

func (w *WordTokenizer) Encode(text string) ([]int, error) {
	words := strings.Fields(text)
	ids := make([]int, len(words))
	for i, word := range words {
		ids[i] = int(xxhash.Sum64String(word) & 0x7fffffff)
	}
	return ids, nil
}

func (w *WordTokenizer) CountTokens(text string) (int, error) {
	return len(strings.Fields(text)), nil
}

func (w *WordTokenizer) Name() string {
	return "words"
}
