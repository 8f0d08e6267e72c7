package charlstm

import (
	"math/rand"
	"strings"

	"github.com/pkg/errors"
)

// ErrUnknownChar is returned when a character is looked up that was
// not part of a Vocab's character set.
var ErrUnknownChar = errors.New("character not in vocabulary")

// A Vocab is an immutable alphabet of characters with a dense
// bidirectional mapping to indices in [0, Size()).
//
// The order of the characters defines the mapping, so the same
// character list always yields the same encoding.
type Vocab struct {
	chars   []rune
	indices map[rune]int
}

// NewVocab creates a Vocab from an ordered list of unique characters.
//
// It fails if the list contains a duplicate.
func NewVocab(chars []rune) (*Vocab, error) {
	v := &Vocab{
		chars:   append([]rune{}, chars...),
		indices: make(map[rune]int, len(chars)),
	}
	for i, c := range v.chars {
		if _, ok := v.indices[c]; ok {
			return nil, errors.Errorf("new vocab: duplicate character %q", c)
		}
		v.indices[c] = i
	}
	return v, nil
}

// MinimalChars returns a minimal character set: a-z, A-Z, 0-9 and
// common punctuation and whitespace.
func MinimalChars() []rune {
	var chars []rune
	for c := 'a'; c <= 'z'; c++ {
		chars = append(chars, c)
	}
	for c := 'A'; c <= 'Z'; c++ {
		chars = append(chars, c)
	}
	for c := '0'; c <= '9'; c++ {
		chars = append(chars, c)
	}
	return append(chars, []rune{
		'!', '&', '(', ')', '?', '-', '\'', '"', ',', '.', ':', ';', ' ', '\n', '\t',
	}...)
}

// DefaultChars returns MinimalChars plus a few extra symbols.
func DefaultChars() []rune {
	return append(MinimalChars(), []rune{
		'@', '#', '$', '%', '^', '*', '{', '}', '[', ']', '/', '+', '_', '\\', '|', '<', '>',
	}...)
}

// Size returns the number of characters in the vocabulary.
func (v *Vocab) Size() int {
	return len(v.chars)
}

// Index returns the index of c, or ErrUnknownChar if c is not in the
// vocabulary.
func (v *Vocab) Index(c rune) (int, error) {
	idx, ok := v.indices[c]
	if !ok {
		return 0, errors.Wrapf(ErrUnknownChar, "index of %q", c)
	}
	return idx, nil
}

// mustIndex is Index for characters already validated by Filter.
func (v *Vocab) mustIndex(c rune) int {
	idx, err := v.Index(c)
	if err != nil {
		panic(err)
	}
	return idx
}

// CharAt returns the character at index idx.
//
// It panics if idx is out of range.
func (v *Vocab) CharAt(idx int) rune {
	return v.chars[idx]
}

// Contains reports whether c is in the vocabulary.
func (v *Vocab) Contains(c rune) bool {
	_, ok := v.indices[c]
	return ok
}

// Random selects a character uniformly using rng.
func (v *Vocab) Random(rng *rand.Rand) rune {
	return v.chars[rng.Intn(len(v.chars))]
}

// Filter removes every character of s that is not in the vocabulary.
func (v *Vocab) Filter(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, c := range s {
		if v.Contains(c) {
			b.WriteRune(c)
		}
	}
	return b.String()
}

// Chars returns the vocabulary's characters in index order.
func (v *Vocab) Chars() string {
	return string(v.chars)
}
