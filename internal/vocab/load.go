package vocab

import (
	"fmt"
	"maps"
	"os"
	"strconv"

	"github.com/goccy/go-json"
)

// LoadInput reads an input vocabulary file. The file is either a JSON object
// mapping characters to indices, or an array of characters whose position is
// the index.
func LoadInput(path string) (*Input, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("parse input vocab %s: %w", path, err)
	}
	m := make(map[string]int)
	switch v := payload.(type) {
	case map[string]any:
		for key, val := range v {
			idx, err := asIndex(val)
			if err != nil {
				return nil, fmt.Errorf("input vocab %s: entry %q: %w", path, key, err)
			}
			m[key] = idx
		}
	case []any:
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("input vocab %s: element %d is not a string", path, i)
			}
			if _, dup := m[s]; dup {
				return nil, fmt.Errorf("%w: input vocab %s: %q listed twice", ErrInvalid, path, s)
			}
			m[s] = i
		}
	default:
		return nil, fmt.Errorf("input vocab %s must be an object or array", path)
	}
	return NewInput(m)
}

// LoadOutput reads an output vocabulary file. The file is either a JSON
// object mapping decimal index strings to tokens, or an array of tokens.
func LoadOutput(path string) (*Output, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("parse output vocab %s: %w", path, err)
	}
	m := make(map[int]string)
	switch v := payload.(type) {
	case map[string]any:
		for key, val := range v {
			idx, err := strconv.Atoi(key)
			if err != nil {
				return nil, fmt.Errorf("output vocab %s: key %q is not an index", path, key)
			}
			s, ok := val.(string)
			if !ok {
				return nil, fmt.Errorf("output vocab %s: entry %d is not a string", path, idx)
			}
			m[idx] = s
		}
	case []any:
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("output vocab %s: element %d is not a string", path, i)
			}
			m[i] = s
		}
	default:
		return nil, fmt.Errorf("output vocab %s must be an object or array", path)
	}
	return NewOutput(m)
}

// WriteInput stores v as a JSON object of character to index.
func WriteInput(path string, v *Input) error {
	m := make(map[string]int, v.Len())
	for r, idx := range v.chars {
		m[string(r)] = idx
	}
	maps.Copy(m, v.specials)
	return writeJSON(path, m)
}

// WriteOutput stores v as a JSON object of decimal index to token.
func WriteOutput(path string, v *Output) error {
	m := make(map[string]string, len(v.tokens))
	for i, tok := range v.tokens {
		if v.present[i] {
			m[strconv.Itoa(i)] = tok
		}
	}
	return writeJSON(path, m)
}

func writeJSON(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(b, '\n'), 0o644)
}

func asIndex(v any) (int, error) {
	f, ok := v.(float64)
	if !ok {
		return 0, fmt.Errorf("index must be a number")
	}
	if f != float64(int(f)) {
		return 0, fmt.Errorf("index %v is not an integer", f)
	}
	return int(f), nil
}
