package inference

import (
	"context"
	"errors"
	"time"

	"github.com/samcharles93/datenorm/internal/model"
)

var (
	// ErrInvalidInput marks failures caused by the caller's text.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInputTooLong is wrapped with ErrInvalidInput when the text exceeds
	// the model's max_input_length.
	ErrInputTooLong = errors.New("input too long")
	// ErrUnmappedIndex is returned when the decoder selects an index that has
	// no output token, e.g. SOS.
	ErrUnmappedIndex = errors.New("decoder produced an index with no output token")
)

type Engine interface {
	Predict(ctx context.Context, req *Request) (*Result, error)
	Info() ModelInfo
}

type Request struct {
	Text string
	// Attention asks for the per-step attention weights.
	Attention bool
}

type Result struct {
	Text      string
	Tokens    []string
	Steps     int
	Stop      model.StopReason
	Attention [][]float32
	Stats     Stats
}

type Stats struct {
	InputChars int
	Duration   time.Duration
}

// ModelInfo describes the currently loaded model.
type ModelInfo struct {
	ID          string    `json:"id"`
	Dir         string    `json:"dir"`
	HiddenSize  int       `json:"hidden_size"`
	Layers      int       `json:"layers"`
	Attention   string    `json:"attention"`
	MaxLength   int       `json:"max_length"`
	MaxInput    int       `json:"max_input_length,omitempty"`
	InputVocab  int       `json:"input_vocab"`
	OutputVocab int       `json:"output_vocab"`
	LoadedAt    time.Time `json:"loaded_at"`
}
