package model

import (
	"fmt"

	"github.com/samcharles93/datenorm/internal/tensor"
)

// Decoder is the attention decoder. Each step consumes the previous token and
// the previous attention context, advances the GRU, attends over the encoder
// outputs and projects [rnn_out; context] to log-probabilities.
type Decoder struct {
	Embedding tensor.Mat // [out_vocab x H]
	RNN       GRU        // first layer input is 2H
	Attn      *Attention
	Out       Linear // [out_vocab x 2H]
}

func (d *Decoder) Hidden() int    { return d.Embedding.C }
func (d *Decoder) VocabSize() int { return d.Embedding.R }

// Session carries the decoder state across steps of one decode call. It is
// not safe for concurrent use; the Decoder it was created from is.
type Session struct {
	dec  *Decoder
	enc  *Encoding
	keys tensor.Mat

	context []float32
	hidden  [][]float32

	emb      []float32
	rnnIn    []float32
	outIn    []float32
	logProbs []float32
	weights  []float32
	gru      []gruScratch
	attn     attnScratch
}

// NewSession starts decoding from enc with a zero context and the encoder's
// final hidden state. The encoder side of the attention energies is computed
// here, once.
func (d *Decoder) NewSession(enc *Encoding) (*Session, error) {
	H := d.Hidden()
	if enc.Outputs.C != H {
		return nil, fmt.Errorf("decoder hidden %d does not match encoder output %d", H, enc.Outputs.C)
	}
	if len(enc.Hidden) != d.RNN.Layers() {
		return nil, fmt.Errorf("decoder has %d layers, encoder state has %d", d.RNN.Layers(), len(enc.Hidden))
	}
	hidden := make([][]float32, len(enc.Hidden))
	for l, h := range enc.Hidden {
		hidden[l] = append([]float32(nil), h...)
	}
	s := &Session{
		dec:      d,
		enc:      enc,
		context:  make([]float32, H),
		hidden:   hidden,
		emb:      make([]float32, H),
		rnnIn:    make([]float32, 2*H),
		outIn:    make([]float32, 2*H),
		logProbs: make([]float32, d.Out.Out()),
		weights:  make([]float32, enc.Outputs.R),
		gru:      d.RNN.newScratch(),
		attn:     newAttnScratch(H),
	}
	s.keys = d.Attn.Keys(&enc.Outputs, &s.attn)
	return s, nil
}

// Step runs one decoder step fed with token. The returned slices are owned by
// the session and overwritten by the next call.
func (s *Session) Step(token int) (logProbs, attention []float32, err error) {
	d := s.dec
	if token < 0 || token >= d.VocabSize() {
		return nil, nil, fmt.Errorf("decoder token %d outside vocabulary of %d", token, d.VocabSize())
	}
	d.Embedding.RowTo(s.emb, token)
	rnnIn := tensor.Concat(s.rnnIn, s.emb, s.context)
	top := d.RNN.Step(rnnIn, s.hidden, s.gru)

	d.Attn.Apply(s.context, s.weights, top, &s.enc.Outputs, &s.keys, &s.attn)

	outIn := tensor.Concat(s.outIn, top, s.context)
	d.Out.Forward(s.logProbs, outIn)
	tensor.LogSoftmax(s.logProbs)
	return s.logProbs, s.weights, nil
}
