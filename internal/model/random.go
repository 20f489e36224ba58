package model

import (
	"fmt"

	"github.com/samcharles93/datenorm/internal/safetensors"
	"github.com/samcharles93/datenorm/internal/tensor"
)

// NewRandom builds a model with reproducible pseudo-random weights. It is
// used to produce smoke-test model directories and in tests.
func NewRandom(cfg Config, inVocab, outVocab int, seed int64) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if inVocab <= 0 || outVocab <= 0 {
		return nil, fmt.Errorf("%w: vocabulary sizes must be positive", ErrConfig)
	}
	H := cfg.HiddenSize
	next := seed
	mat := func(r, c int) tensor.Mat {
		m := tensor.NewMat(r, c)
		next++
		tensor.FillRand(&m, next)
		return m
	}
	vec := func(n int) []float32 {
		v := make([]float32, n)
		next++
		tensor.FillRandVec(v, next)
		return v
	}
	gru := func(in int) GRU {
		g := GRU{Cells: make([]GRUCell, cfg.Layers)}
		for l := range cfg.Layers {
			layerIn := in
			if l > 0 {
				layerIn = H
			}
			g.Cells[l] = GRUCell{Hidden: H, Wih: mat(3*H, layerIn), Whh: mat(3*H, H), Bih: vec(3 * H), Bhh: vec(3 * H)}
		}
		return g
	}

	enc := &Encoder{Embedding: mat(inVocab, H), RNN: gru(H)}

	var attn *Attention
	switch cfg.Attention {
	case MethodDot:
		attn = newAttention(MethodDot, dotScorer{})
	case MethodGeneral:
		attn = newAttention(MethodGeneral, &generalScorer{attn: Linear{W: mat(H, H), B: vec(H)}})
	case MethodConcat:
		attn = newAttention(MethodConcat, &concatScorer{attn: Linear{W: mat(H, 2*H), B: vec(H)}, other: vec(H)})
	}
	dec := &Decoder{
		Embedding: mat(outVocab, H),
		RNN:       gru(2 * H),
		Attn:      attn,
		Out:       Linear{W: mat(outVocab, 2*H), B: vec(outVocab)},
	}
	m := &Model{Config: cfg, Encoder: enc, Decoder: dec}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Save writes the encoder and decoder as safetensors checkpoints using the
// same tensor names Load expects.
func (m *Model) Save(encoderPath, decoderPath string) error {
	meta := map[string]string{
		"hidden_size": fmt.Sprint(m.Config.HiddenSize),
		"layers":      fmt.Sprint(m.Config.Layers),
		"attention":   m.Config.Attention.String(),
	}
	if err := safetensors.Write(encoderPath, m.encoderTensors(), meta); err != nil {
		return fmt.Errorf("write encoder: %w", err)
	}
	if err := safetensors.Write(decoderPath, m.decoderTensors(), meta); err != nil {
		return fmt.Errorf("write decoder: %w", err)
	}
	return nil
}

func (m *Model) encoderTensors() []safetensors.Tensor {
	out := []safetensors.Tensor{matTensor("embedding.weight", m.Encoder.Embedding)}
	return append(out, gruTensors("gru", &m.Encoder.RNN)...)
}

func (m *Model) decoderTensors() []safetensors.Tensor {
	d := m.Decoder
	out := []safetensors.Tensor{matTensor("embedding.weight", d.Embedding)}
	out = append(out, gruTensors("gru", &d.RNN)...)
	switch s := d.Attn.scorer.(type) {
	case *generalScorer:
		out = append(out, linearTensors("attn.attn", s.attn)...)
	case *concatScorer:
		out = append(out, linearTensors("attn.attn", s.attn)...)
		out = append(out, safetensors.Tensor{Name: "attn.other", Shape: []int{1, len(s.other)}, Data: s.other})
	}
	return append(out, linearTensors("out", d.Out)...)
}

func gruTensors(prefix string, g *GRU) []safetensors.Tensor {
	var out []safetensors.Tensor
	for l, c := range g.Cells {
		out = append(out,
			matTensor(fmt.Sprintf("%s.weight_ih_l%d", prefix, l), c.Wih),
			matTensor(fmt.Sprintf("%s.weight_hh_l%d", prefix, l), c.Whh),
			safetensors.Tensor{Name: fmt.Sprintf("%s.bias_ih_l%d", prefix, l), Shape: []int{len(c.Bih)}, Data: c.Bih},
			safetensors.Tensor{Name: fmt.Sprintf("%s.bias_hh_l%d", prefix, l), Shape: []int{len(c.Bhh)}, Data: c.Bhh},
		)
	}
	return out
}

func linearTensors(prefix string, l Linear) []safetensors.Tensor {
	return []safetensors.Tensor{
		matTensor(prefix+".weight", l.W),
		{Name: prefix + ".bias", Shape: []int{len(l.B)}, Data: l.B},
	}
}

func matTensor(name string, m tensor.Mat) safetensors.Tensor {
	return safetensors.Tensor{Name: name, Shape: m.Shape(), Data: m.Data[:m.R*m.C]}
}
