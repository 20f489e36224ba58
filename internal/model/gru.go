package model

import (
	"fmt"

	"github.com/samcharles93/datenorm/internal/tensor"
)

// Linear is y = W x + b with W shaped [out x in].
type Linear struct {
	W tensor.Mat
	B []float32
}

func (l *Linear) In() int  { return l.W.C }
func (l *Linear) Out() int { return l.W.R }

// Forward writes W x + b into dst.
func (l *Linear) Forward(dst, x []float32) {
	tensor.MatVecAdd(dst, &l.W, x, l.B)
}

// GRUCell is one gated recurrent layer. Gate rows are stacked in r, z, n
// order:
//
//	r  = σ(W_ir x + b_ir + W_hr h + b_hr)
//	z  = σ(W_iz x + b_iz + W_hz h + b_hz)
//	n  = tanh(W_in x + b_in + r ⊙ (W_hn h + b_hn))
//	h' = (1 - z) ⊙ n + z ⊙ h
type GRUCell struct {
	Hidden int
	Wih    tensor.Mat // [3H x in]
	Whh    tensor.Mat // [3H x H]
	Bih    []float32  // [3H]
	Bhh    []float32  // [3H]
}

func (c *GRUCell) In() int { return c.Wih.C }

// gruScratch holds the gate pre-activations for one cell.
type gruScratch struct {
	gi, gh []float32
}

func newGRUScratch(hidden int) gruScratch {
	return gruScratch{
		gi: make([]float32, 3*hidden),
		gh: make([]float32, 3*hidden),
	}
}

// Step computes the next hidden state from x and h into dst. dst may alias h.
func (c *GRUCell) Step(dst, x, h []float32, s gruScratch) {
	H := c.Hidden
	tensor.MatVecAdd(s.gi, &c.Wih, x, c.Bih)
	tensor.MatVecAdd(s.gh, &c.Whh, h, c.Bhh)
	for i := range H {
		r := tensor.Sigmoid(s.gi[i] + s.gh[i])
		z := tensor.Sigmoid(s.gi[H+i] + s.gh[H+i])
		n := tensor.Tanh(s.gi[2*H+i] + r*s.gh[2*H+i])
		dst[i] = (1-z)*n + z*h[i]
	}
}

func (c *GRUCell) check(name string, in int) error {
	H := c.Hidden
	switch {
	case c.Wih.R != 3*H || c.Wih.C != in:
		return fmt.Errorf("%s: weight_ih is %dx%d, want %dx%d", name, c.Wih.R, c.Wih.C, 3*H, in)
	case c.Whh.R != 3*H || c.Whh.C != H:
		return fmt.Errorf("%s: weight_hh is %dx%d, want %dx%d", name, c.Whh.R, c.Whh.C, 3*H, H)
	case len(c.Bih) != 3*H || len(c.Bhh) != 3*H:
		return fmt.Errorf("%s: bias length %d/%d, want %d", name, len(c.Bih), len(c.Bhh), 3*H)
	}
	return nil
}

// GRU is a stack of cells; layer k>0 consumes the output of layer k-1.
type GRU struct {
	Cells []GRUCell
}

func (g *GRU) Layers() int { return len(g.Cells) }

// Step advances every layer by one time step. hidden holds one state per
// layer and is updated in place. It returns the top layer's new state.
func (g *GRU) Step(x []float32, hidden [][]float32, scratch []gruScratch) []float32 {
	in := x
	for l := range g.Cells {
		g.Cells[l].Step(hidden[l], in, hidden[l], scratch[l])
		in = hidden[l]
	}
	return in
}

func (g *GRU) newScratch() []gruScratch {
	s := make([]gruScratch, len(g.Cells))
	for l := range g.Cells {
		s[l] = newGRUScratch(g.Cells[l].Hidden)
	}
	return s
}

func (g *GRU) zeroState() [][]float32 {
	h := make([][]float32, len(g.Cells))
	for l := range g.Cells {
		h[l] = make([]float32, g.Cells[l].Hidden)
	}
	return h
}
