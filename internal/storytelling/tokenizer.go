package storytelling

import (
	"regexp"
	"strings"
)

// EndOfText is the GPT-2 family end-of-sequence token, also used for padding.
const EndOfText = "<|endoftext|>"

// GPT-2 pre-tokenization pattern without the lookahead RE2 lacks. It splits
// text into the same word pieces the byte-level BPE starts from, which is a
// close enough token count for budgeting generation length.
var pretokenize = regexp.MustCompile(`'s|'t|'re|'ve|'m|'ll|'d| ?\p{L}+| ?\p{N}+| ?[^\s\p{L}\p{N}]+|\s+`)

// Tokenizer approximates a causal model's tokenizer for length budgeting.
type Tokenizer struct {
	EOS string
}

// NewTokenizer returns a tokenizer with the GPT-2 end-of-text token.
func NewTokenizer() *Tokenizer {
	return &Tokenizer{EOS: EndOfText}
}

// Count returns the approximate number of tokens in text.
func (t *Tokenizer) Count(text string) int {
	return len(pretokenize.FindAllStringIndex(text, -1))
}

// Clean removes end-of-text tokens from generated output.
func (t *Tokenizer) Clean(text string) string {
	if i := strings.Index(text, t.EOS); i >= 0 {
		text = text[:i]
	}
	return text
}
