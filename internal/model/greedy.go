package model

import (
	"context"
	"errors"
	"fmt"

	"github.com/samcharles93/datenorm/internal/tensor"
)

var ErrNumerical = errors.New("model: non-finite decoder output")

// StopReason says why a greedy decode ended.
type StopReason string

const (
	StopEOS       StopReason = "eos"
	StopMaxLength StopReason = "max_length"
)

// Stepper produces the next output distribution given the previously chosen
// token. *Session implements it.
type Stepper interface {
	Step(token int) (logProbs, attention []float32, err error)
}

// GreedyOptions bounds a greedy decode.
type GreedyOptions struct {
	SOS       int
	EOS       int
	MaxLength int
	// KeepAttention copies each step's attention weights into the trace.
	KeepAttention bool
}

// Trace is the outcome of one greedy decode. Tokens excludes EOS.
type Trace struct {
	Tokens    []int
	Attention [][]float32
	Steps     int
	Stop      StopReason
}

// Greedy feeds SOS to s and then repeatedly feeds back the arg-max token
// until EOS is chosen or MaxLength steps have run.
func Greedy(ctx context.Context, s Stepper, opts GreedyOptions) (*Trace, error) {
	if opts.MaxLength <= 0 {
		return nil, fmt.Errorf("greedy: max length must be positive, got %d", opts.MaxLength)
	}
	tr := &Trace{
		Tokens: make([]int, 0, opts.MaxLength),
		Stop:   StopMaxLength,
	}
	tok := opts.SOS
	for step := range opts.MaxLength {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		logProbs, attn, err := s.Step(tok)
		if err != nil {
			return nil, fmt.Errorf("decoder step %d: %w", step, err)
		}
		if tensor.HasNonFinite(logProbs) {
			return nil, fmt.Errorf("%w at step %d", ErrNumerical, step)
		}
		tr.Steps++
		if opts.KeepAttention {
			tr.Attention = append(tr.Attention, append([]float32(nil), attn...))
		}

		next := tensor.Argmax(logProbs)
		if next == opts.EOS {
			tr.Stop = StopEOS
			break
		}
		tr.Tokens = append(tr.Tokens, next)
		tok = next
	}
	return tr, nil
}
