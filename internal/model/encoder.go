package model

import (
	"context"
	"fmt"

	"github.com/samcharles93/datenorm/internal/tensor"
)

// Encoder embeds input indices and runs them through a stacked GRU.
type Encoder struct {
	Embedding tensor.Mat // [in_vocab x H]
	RNN       GRU
}

// Encoding is the result of one encoder pass.
type Encoding struct {
	// Outputs holds the top layer state at every position, [T x H].
	Outputs tensor.Mat
	// Hidden holds the final state of every layer.
	Hidden [][]float32
}

func (e *Encoder) Hidden() int    { return e.Embedding.C }
func (e *Encoder) VocabSize() int { return e.Embedding.R }

// Encode runs the full input sequence starting from a zero state. ctx is
// checked before every position.
func (e *Encoder) Encode(ctx context.Context, ids []int) (*Encoding, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("encode: empty sequence")
	}
	H := e.Hidden()
	out := tensor.NewMat(len(ids), H)
	hidden := e.RNN.zeroState()
	scratch := e.RNN.newScratch()
	x := make([]float32, H)
	for t, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if id < 0 || id >= e.VocabSize() {
			return nil, fmt.Errorf("encode: index %d at position %d outside vocabulary of %d", id, t, e.VocabSize())
		}
		e.Embedding.RowTo(x, id)
		top := e.RNN.Step(x, hidden, scratch)
		copy(out.Row(t), top)
	}
	return &Encoding{Outputs: out, Hidden: hidden}, nil
}
