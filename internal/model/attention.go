package model

import (
	"fmt"

	"github.com/samcharles93/datenorm/internal/tensor"
)

// scorer splits the attention energy into an encoder-side part, computed once
// per encoding by keys, and a per-step part applied by scores.
type scorer interface {
	keys(enc *tensor.Mat, s *attnScratch) tensor.Mat
	scores(dst, h []float32, keys *tensor.Mat, s *attnScratch)
	check(hidden int) error
}

type attnScratch struct {
	proj []float32 // [H]
	cat  []float32 // [2H]
}

func newAttnScratch(hidden int) attnScratch {
	return attnScratch{proj: make([]float32, hidden), cat: make([]float32, 2*hidden)}
}

func dotScores(dst, h []float32, keys *tensor.Mat) {
	for i := range keys.R {
		dst[i] = tensor.Dot(h, keys.Row(i))
	}
}

type dotScorer struct{}

func (dotScorer) keys(enc *tensor.Mat, _ *attnScratch) tensor.Mat { return *enc }

func (dotScorer) scores(dst, h []float32, keys *tensor.Mat, _ *attnScratch) {
	dotScores(dst, h, keys)
}

func (dotScorer) check(int) error { return nil }

// generalScorer scores h·(W e + b). The projected encoder outputs do not
// depend on the decoder state.
type generalScorer struct {
	attn Linear // [H x H]
}

func (g *generalScorer) keys(enc *tensor.Mat, _ *attnScratch) tensor.Mat {
	k := tensor.NewMat(enc.R, g.attn.Out())
	for i := range enc.R {
		g.attn.Forward(k.Row(i), enc.Row(i))
	}
	return k
}

func (g *generalScorer) scores(dst, h []float32, keys *tensor.Mat, _ *attnScratch) {
	dotScores(dst, h, keys)
}

func (g *generalScorer) check(hidden int) error {
	if g.attn.Out() != hidden || g.attn.In() != hidden || len(g.attn.B) != hidden {
		return fmt.Errorf("attn.attn is %dx%d, want %dx%d", g.attn.Out(), g.attn.In(), hidden, hidden)
	}
	return nil
}

// concatScorer scores v·(W [h; e] + b). The energy is linear, so it splits
// into v·(W_e e + b), one scalar per position, plus v·(W_h h) per step.
type concatScorer struct {
	attn  Linear    // [H x 2H]
	other []float32 // [H]
}

func (c *concatScorer) keys(enc *tensor.Mat, s *attnScratch) tensor.Mat {
	H := enc.C
	k := tensor.NewMat(enc.R, 1)
	clear(s.cat[:H])
	for i := range enc.R {
		copy(s.cat[H:], enc.Row(i))
		c.attn.Forward(s.proj, s.cat)
		k.Row(i)[0] = tensor.Dot(c.other, s.proj)
	}
	return k
}

func (c *concatScorer) scores(dst, h []float32, keys *tensor.Mat, s *attnScratch) {
	H := len(h)
	copy(s.cat[:H], h)
	clear(s.cat[H:])
	tensor.MatVec(s.proj, &c.attn.W, s.cat)
	q := tensor.Dot(c.other, s.proj)
	for i := range keys.R {
		dst[i] = q + keys.Row(i)[0]
	}
}

func (c *concatScorer) check(hidden int) error {
	if c.attn.Out() != hidden || c.attn.In() != 2*hidden || len(c.attn.B) != hidden {
		return fmt.Errorf("attn.attn is %dx%d, want %dx%d", c.attn.Out(), c.attn.In(), hidden, 2*hidden)
	}
	if len(c.other) != hidden {
		return fmt.Errorf("attn.other has %d values, want %d", len(c.other), hidden)
	}
	return nil
}

// Attention weights encoder outputs against the current decoder state.
type Attention struct {
	Method Method
	scorer scorer
}

func newAttention(m Method, s scorer) *Attention {
	return &Attention{Method: m, scorer: s}
}

// Keys precomputes the decoder-independent part of the energies for enc.
// A Session calls it once and reuses the result on every step.
func (a *Attention) Keys(enc *tensor.Mat, s *attnScratch) tensor.Mat {
	return a.scorer.keys(enc, s)
}

// Apply writes softmax-normalised weights over the encoder positions into
// weights and the weighted sum of encoder outputs into context. keys must
// come from Keys(enc).
func (a *Attention) Apply(context, weights, h []float32, enc, keys *tensor.Mat, s *attnScratch) {
	w := weights[:enc.R]
	a.scorer.scores(w, h, keys, s)
	tensor.Softmax(w)
	clear(context)
	for i := range enc.R {
		tensor.Axpy(context, w[i], enc.Row(i))
	}
}
