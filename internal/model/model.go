package model

import (
	"context"
	"fmt"
)

// Model is a loaded encoder/decoder pair. It is immutable after loading and
// safe for concurrent Predict calls; every call owns its decode state.
type Model struct {
	Config  Config
	Encoder *Encoder
	Decoder *Decoder
}

// InputVocab is the number of encoder embedding rows.
func (m *Model) InputVocab() int { return m.Encoder.VocabSize() }

// OutputVocab is the decoder's output dimension.
func (m *Model) OutputVocab() int { return m.Decoder.Out.Out() }

// Predict encodes ids and greedily decodes up to Config.MaxLength tokens.
func (m *Model) Predict(ctx context.Context, ids []int, keepAttention bool) (*Trace, error) {
	enc, err := m.Encoder.Encode(ctx, ids)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sess, err := m.Decoder.NewSession(enc)
	if err != nil {
		return nil, err
	}
	return Greedy(ctx, sess, GreedyOptions{
		SOS:           m.Config.SOS,
		EOS:           m.Config.EOS,
		MaxLength:     m.Config.MaxLength,
		KeepAttention: keepAttention,
	})
}

// Validate checks that every tensor agrees with Config and with the other
// module.
func (m *Model) Validate() error {
	cfg := m.Config
	if err := cfg.Validate(); err != nil {
		return err
	}
	H := cfg.HiddenSize
	if m.Encoder.Hidden() != H || m.Decoder.Hidden() != H {
		return fmt.Errorf("%w: embedding width enc=%d dec=%d, hidden_size=%d", ErrConfig, m.Encoder.Hidden(), m.Decoder.Hidden(), H)
	}
	if m.Encoder.RNN.Layers() != cfg.Layers || m.Decoder.RNN.Layers() != cfg.Layers {
		return fmt.Errorf("%w: gru layers enc=%d dec=%d, layers=%d", ErrConfig, m.Encoder.RNN.Layers(), m.Decoder.RNN.Layers(), cfg.Layers)
	}
	for l := range m.Encoder.RNN.Cells {
		if err := m.Encoder.RNN.Cells[l].check(fmt.Sprintf("encoder gru layer %d", l), H); err != nil {
			return fmt.Errorf("%w: %v", ErrConfig, err)
		}
	}
	for l := range m.Decoder.RNN.Cells {
		in := H
		if l == 0 {
			in = 2 * H
		}
		if err := m.Decoder.RNN.Cells[l].check(fmt.Sprintf("decoder gru layer %d", l), in); err != nil {
			return fmt.Errorf("%w: %v", ErrConfig, err)
		}
	}
	if m.Decoder.Attn == nil || m.Decoder.Attn.Method != cfg.Attention {
		return fmt.Errorf("%w: decoder attention does not match %s", ErrConfig, cfg.Attention)
	}
	if err := m.Decoder.Attn.scorer.check(H); err != nil {
		return fmt.Errorf("%w: %v", ErrConfig, err)
	}
	out := m.Decoder.Out
	if out.In() != 2*H || out.Out() != m.Decoder.VocabSize() || len(out.B) != out.Out() {
		return fmt.Errorf("%w: out is %dx%d, want %dx%d", ErrConfig, out.Out(), out.In(), m.Decoder.VocabSize(), 2*H)
	}
	if cfg.SOS >= out.Out() || cfg.EOS >= out.Out() {
		return fmt.Errorf("%w: reserved tokens sos=%d eos=%d outside output vocabulary of %d", ErrConfig, cfg.SOS, cfg.EOS, out.Out())
	}
	return nil
}
