package model

import (
	"fmt"

	"github.com/samcharles93/datenorm/internal/safetensors"
	"github.com/samcharles93/datenorm/internal/tensor"
)

// tensorSource is the subset of a checkpoint the loader needs.
type tensorSource interface {
	ReadShaped(name string, shape ...int) ([]float32, error)
}

// Load reads encoder and decoder checkpoints and checks them against cfg and
// the vocabulary sizes. Weights are copied out of the files, which are closed
// before Load returns.
func Load(encoderPath, decoderPath string, cfg Config, inVocab, outVocab int) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	encFile, err := safetensors.Open(encoderPath)
	if err != nil {
		return nil, fmt.Errorf("open encoder: %w", err)
	}
	defer func() { _ = encFile.Close() }()
	decFile, err := safetensors.Open(decoderPath)
	if err != nil {
		return nil, fmt.Errorf("open decoder: %w", err)
	}
	defer func() { _ = decFile.Close() }()

	enc, err := loadEncoder(encFile, cfg, inVocab)
	if err != nil {
		return nil, fmt.Errorf("load encoder %s: %w", encoderPath, err)
	}
	dec, err := loadDecoder(decFile, cfg, outVocab)
	if err != nil {
		return nil, fmt.Errorf("load decoder %s: %w", decoderPath, err)
	}
	m := &Model{Config: cfg, Encoder: enc, Decoder: dec}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func loadEncoder(src tensorSource, cfg Config, inVocab int) (*Encoder, error) {
	H := cfg.HiddenSize
	emb, err := loadMat(src, "embedding.weight", inVocab, H)
	if err != nil {
		return nil, err
	}
	rnn, err := loadGRU(src, "gru", cfg.Layers, H, H)
	if err != nil {
		return nil, err
	}
	return &Encoder{Embedding: emb, RNN: rnn}, nil
}

func loadDecoder(src tensorSource, cfg Config, outVocab int) (*Decoder, error) {
	H := cfg.HiddenSize
	emb, err := loadMat(src, "embedding.weight", outVocab, H)
	if err != nil {
		return nil, err
	}
	rnn, err := loadGRU(src, "gru", cfg.Layers, 2*H, H)
	if err != nil {
		return nil, err
	}
	attn, err := loadAttention(src, cfg.Attention, H)
	if err != nil {
		return nil, err
	}
	out, err := loadLinear(src, "out", outVocab, 2*H)
	if err != nil {
		return nil, err
	}
	return &Decoder{Embedding: emb, RNN: rnn, Attn: attn, Out: out}, nil
}

func loadAttention(src tensorSource, method Method, H int) (*Attention, error) {
	switch method {
	case MethodDot:
		return newAttention(method, dotScorer{}), nil
	case MethodGeneral:
		lin, err := loadLinear(src, "attn.attn", H, H)
		if err != nil {
			return nil, err
		}
		return newAttention(method, &generalScorer{attn: lin}), nil
	case MethodConcat:
		lin, err := loadLinear(src, "attn.attn", H, 2*H)
		if err != nil {
			return nil, err
		}
		other, err := src.ReadShaped("attn.other", H)
		if err != nil {
			return nil, err
		}
		return newAttention(method, &concatScorer{attn: lin, other: other}), nil
	default:
		return nil, fmt.Errorf("%w: unknown attention method %s", ErrConfig, method)
	}
}

func loadGRU(src tensorSource, prefix string, layers, in, H int) (GRU, error) {
	g := GRU{Cells: make([]GRUCell, layers)}
	for l := range layers {
		layerIn := in
		if l > 0 {
			layerIn = H
		}
		wih, err := loadMat(src, fmt.Sprintf("%s.weight_ih_l%d", prefix, l), 3*H, layerIn)
		if err != nil {
			return GRU{}, err
		}
		whh, err := loadMat(src, fmt.Sprintf("%s.weight_hh_l%d", prefix, l), 3*H, H)
		if err != nil {
			return GRU{}, err
		}
		bih, err := src.ReadShaped(fmt.Sprintf("%s.bias_ih_l%d", prefix, l), 3*H)
		if err != nil {
			return GRU{}, err
		}
		bhh, err := src.ReadShaped(fmt.Sprintf("%s.bias_hh_l%d", prefix, l), 3*H)
		if err != nil {
			return GRU{}, err
		}
		g.Cells[l] = GRUCell{Hidden: H, Wih: wih, Whh: whh, Bih: bih, Bhh: bhh}
	}
	return g, nil
}

func loadLinear(src tensorSource, prefix string, out, in int) (Linear, error) {
	w, err := loadMat(src, prefix+".weight", out, in)
	if err != nil {
		return Linear{}, err
	}
	b, err := src.ReadShaped(prefix+".bias", out)
	if err != nil {
		return Linear{}, err
	}
	return Linear{W: w, B: b}, nil
}

func loadMat(src tensorSource, name string, r, c int) (tensor.Mat, error) {
	data, err := src.ReadShaped(name, r, c)
	if err != nil {
		return tensor.Mat{}, err
	}
	return tensor.NewMatFromData(r, c, data)
}
