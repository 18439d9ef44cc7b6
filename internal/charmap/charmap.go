// Package charmap defines the mapping between characters and the integer
// label indices consumed and produced by the sequence models.
//
// The mapping follows the EMNIST-derived alphabet used across the line and
// paragraph datasets: four special tokens, digits, letters, then the
// punctuation that occurs in IAM transcriptions, with a newline token
// appended for multi-line (paragraph) labels.
package charmap

import "fmt"

// Special tokens. Their indices are fixed by their position at the head of
// the mapping.
const (
	BlankToken   = "<B>"
	StartToken   = "<S>"
	EndToken     = "<E>"
	PaddingToken = "<P>"
	NewLineToken = "\n"
)

// Mapping is an ordered alphabet: index -> token. All tokens except the
// named special ones are single characters.
type Mapping struct {
	tokens  []string
	inverse map[string]int
}

// New returns the paragraph mapping: special tokens, digits, upper and
// lower case letters, IAM punctuation, and the newline token.
func New() *Mapping {
	tokens := []string{BlankToken, StartToken, EndToken, PaddingToken}
	for c := '0'; c <= '9'; c++ {
		tokens = append(tokens, string(c))
	}
	for c := 'A'; c <= 'Z'; c++ {
		tokens = append(tokens, string(c))
	}
	for c := 'a'; c <= 'z'; c++ {
		tokens = append(tokens, string(c))
	}
	for _, c := range ` !"#&'()*+,-./:;?` {
		tokens = append(tokens, string(c))
	}
	tokens = append(tokens, NewLineToken)
	return FromTokens(tokens)
}

// FromTokens builds a mapping from an explicit token list, for callers that
// load a model's own alphabet (the staged model artifact carries one).
func FromTokens(tokens []string) *Mapping {
	m := &Mapping{
		tokens:  tokens,
		inverse: make(map[string]int, len(tokens)),
	}
	for i, tok := range tokens {
		m.inverse[tok] = i
	}
	return m
}

// Len returns the alphabet size.
func (m *Mapping) Len() int { return len(m.tokens) }

// Tokens returns the ordered token list. Callers must not mutate it.
func (m *Mapping) Tokens() []string { return m.tokens }

// Index returns the label index of a token.
func (m *Mapping) Index(token string) (int, bool) {
	i, ok := m.inverse[token]
	return i, ok
}

// IgnoreIndices returns the indices of the non-character tokens, which are
// skipped when rendering a predicted label sequence as text.
func (m *Mapping) IgnoreIndices() []int {
	var out []int
	for _, tok := range []string{BlankToken, StartToken, EndToken, PaddingToken} {
		if i, ok := m.inverse[tok]; ok {
			out = append(out, i)
		}
	}
	return out
}

// Encode converts a label string into a fixed-length index vector:
// start token, the character indices, end token, then padding. length must
// leave room for the two marker slots.
func (m *Mapping) Encode(label string, length int) ([]int, error) {
	runes := []rune(label)
	if len(runes) > length-2 {
		return nil, fmt.Errorf("label length %d exceeds capacity %d (2 slots reserved for start/end tokens)", len(runes), length-2)
	}

	start := m.inverse[StartToken]
	end := m.inverse[EndToken]
	pad := m.inverse[PaddingToken]

	out := make([]int, length)
	for i := range out {
		out[i] = pad
	}
	out[0] = start
	for i, r := range runes {
		idx, ok := m.inverse[string(r)]
		if !ok {
			return nil, fmt.Errorf("character %q at position %d is not in the mapping", r, i)
		}
		out[i+1] = idx
	}
	out[len(runes)+1] = end
	return out, nil
}

// Decode renders a label index sequence as a string, skipping the indices
// in ignore (typically IgnoreIndices of the model's mapping).
func (m *Mapping) Decode(indices []int, ignore []int) (string, error) {
	skip := make(map[int]bool, len(ignore))
	for _, i := range ignore {
		skip[i] = true
	}

	var out []byte
	for _, idx := range indices {
		if skip[idx] {
			continue
		}
		if idx < 0 || idx >= len(m.tokens) {
			return "", fmt.Errorf("label index %d outside mapping of size %d", idx, len(m.tokens))
		}
		out = append(out, m.tokens[idx]...)
	}
	return string(out), nil
}
