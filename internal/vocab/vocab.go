// Package vocab holds the fixed character vocabularies that map input text to
// encoder indices and decoder indices back to output text.
package vocab

import (
	"errors"
	"fmt"
	"unicode"
	"unicode/utf8"
)

var (
	ErrEmptyInput  = errors.New("vocab: empty input")
	ErrUnknownChar = errors.New("vocab: unknown character")
	ErrInvalid     = errors.New("vocab: invalid vocabulary")
)

// UnknownCharError reports the first input character that has no index.
// Pos counts runes, not bytes.
type UnknownCharError struct {
	Char rune
	Pos  int
}

func (e *UnknownCharError) Error() string {
	return fmt.Sprintf("unknown character %q at position %d", e.Char, e.Pos)
}

func (e *UnknownCharError) Unwrap() error {
	return ErrUnknownChar
}

// Input maps single characters to encoder indices. Entries whose key is
// longer than one character (padding or unknown markers) are kept as named
// specials and never match input text.
type Input struct {
	chars    map[rune]int
	specials map[string]int
	size     int
}

// NewInput validates m and builds an Input. Indices must be non-negative and
// unique.
func NewInput(m map[string]int) (*Input, error) {
	if len(m) == 0 {
		return nil, fmt.Errorf("%w: input vocabulary is empty", ErrInvalid)
	}
	v := &Input{
		chars:    make(map[rune]int, len(m)),
		specials: make(map[string]int),
	}
	owner := make(map[int]string, len(m))
	for key, idx := range m {
		if idx < 0 {
			return nil, fmt.Errorf("%w: %q has negative index %d", ErrInvalid, key, idx)
		}
		if prev, dup := owner[idx]; dup {
			return nil, fmt.Errorf("%w: %q and %q share index %d", ErrInvalid, prev, key, idx)
		}
		owner[idx] = key
		if r, n := utf8.DecodeRuneInString(key); n == len(key) && r != utf8.RuneError {
			v.chars[r] = idx
		} else {
			v.specials[key] = idx
		}
		v.size = max(v.size, idx+1)
	}
	return v, nil
}

// Size is one past the largest index, i.e. the number of embedding rows the
// encoder needs.
func (v *Input) Size() int { return v.size }

// Len is the number of entries, specials included.
func (v *Input) Len() int { return len(v.chars) + len(v.specials) }

// Encode maps every character of s to its index. A character with no entry
// of its own falls back to its lower-case form, so "Monday" encodes like
// "monday" against a lower-case vocabulary.
func (v *Input) Encode(s string) ([]int, error) {
	if s == "" {
		return nil, ErrEmptyInput
	}
	out := make([]int, 0, len(s))
	pos := 0
	for _, r := range s {
		idx, ok := v.chars[r]
		if !ok {
			if lower := unicode.ToLower(r); lower != r {
				idx, ok = v.chars[lower]
			}
		}
		if !ok {
			return nil, &UnknownCharError{Char: r, Pos: pos}
		}
		out = append(out, idx)
		pos++
	}
	return out, nil
}

// Output maps decoder indices to output tokens. Indices may have gaps; a
// missing index is reported by Token.
type Output struct {
	tokens  []string
	present []bool
}

// NewOutput validates m and builds an Output. Tokens must be unique.
func NewOutput(m map[int]string) (*Output, error) {
	if len(m) == 0 {
		return nil, fmt.Errorf("%w: output vocabulary is empty", ErrInvalid)
	}
	size := 0
	for idx := range m {
		if idx < 0 {
			return nil, fmt.Errorf("%w: negative output index %d", ErrInvalid, idx)
		}
		size = max(size, idx+1)
	}
	v := &Output{
		tokens:  make([]string, size),
		present: make([]bool, size),
	}
	owner := make(map[string]int, len(m))
	for idx, tok := range m {
		if prev, dup := owner[tok]; dup {
			return nil, fmt.Errorf("%w: indices %d and %d share token %q", ErrInvalid, min(prev, idx), max(prev, idx), tok)
		}
		owner[tok] = idx
		v.tokens[idx] = tok
		v.present[idx] = true
	}
	return v, nil
}

// Size is one past the largest index, i.e. the decoder's output dimension.
func (v *Output) Size() int { return len(v.tokens) }

// Token returns the token stored at idx.
func (v *Output) Token(idx int) (string, bool) {
	if idx < 0 || idx >= len(v.tokens) || !v.present[idx] {
		return "", false
	}
	return v.tokens[idx], true
}
