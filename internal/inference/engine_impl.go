package inference

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/samcharles93/datenorm/internal/model"
	"github.com/samcharles93/datenorm/internal/vocab"
)

// EngineImpl serves predictions from one immutable model and vocabulary set.
type EngineImpl struct {
	model  *model.Model
	input  *vocab.Input
	output *vocab.Output
	info   ModelInfo
}

// NewEngine checks that the vocabularies fit m and builds an engine.
func NewEngine(m *model.Model, in *vocab.Input, out *vocab.Output, info ModelInfo) (*EngineImpl, error) {
	if m == nil || in == nil || out == nil {
		return nil, fmt.Errorf("model and vocabularies are required")
	}
	if in.Size() != m.InputVocab() {
		return nil, fmt.Errorf("%w: input vocabulary has %d symbols, encoder expects %d", model.ErrConfig, in.Size(), m.InputVocab())
	}
	if out.Size() != m.OutputVocab() {
		return nil, fmt.Errorf("%w: output vocabulary has %d symbols, decoder produces %d", model.ErrConfig, out.Size(), m.OutputVocab())
	}
	info.HiddenSize = m.Config.HiddenSize
	info.Layers = m.Config.Layers
	info.Attention = m.Config.Attention.String()
	info.MaxLength = m.Config.MaxLength
	info.MaxInput = m.Config.MaxInputLength
	info.InputVocab = in.Size()
	info.OutputVocab = out.Size()
	return &EngineImpl{model: m, input: in, output: out, info: info}, nil
}

func (e *EngineImpl) Info() ModelInfo { return e.info }

func (e *EngineImpl) Predict(ctx context.Context, req *Request) (*Result, error) {
	if ctx == nil {
		return nil, fmt.Errorf("context is required")
	}
	if req == nil {
		return nil, fmt.Errorf("request is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()

	n := utf8.RuneCountInString(req.Text)
	if limit := e.model.Config.MaxInputLength; limit > 0 && n > limit {
		return nil, fmt.Errorf("%w: %w: %d characters, limit is %d", ErrInvalidInput, ErrInputTooLong, n, limit)
	}
	ids, err := e.input.Encode(req.Text)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	trace, err := safePredict(ctx, e.model, ids, req.Attention)
	if err != nil {
		return nil, err
	}

	tokens := make([]string, 0, len(trace.Tokens))
	var b strings.Builder
	for i, idx := range trace.Tokens {
		tok, ok := e.output.Token(idx)
		if !ok || idx == e.model.Config.SOS {
			return nil, fmt.Errorf("%w: index %d at step %d", ErrUnmappedIndex, idx, i)
		}
		tokens = append(tokens, tok)
		b.WriteString(tok)
	}

	return &Result{
		Text:      b.String(),
		Tokens:    tokens,
		Steps:     trace.Steps,
		Stop:      trace.Stop,
		Attention: trace.Attention,
		Stats: Stats{
			InputChars: n,
			Duration:   time.Since(start),
		},
	}, nil
}

// IsClientError reports whether err was caused by the request rather than
// the model.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

func safePredict(ctx context.Context, m *model.Model, ids []int, attention bool) (tr *model.Trace, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in Predict: %v", rec)
		}
	}()
	return m.Predict(ctx, ids, attention)
}
