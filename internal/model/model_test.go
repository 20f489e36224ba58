package model

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/samcharles93/datenorm/internal/safetensors"
)

func smallConfig(m Method) Config {
	return Config{
		HiddenSize: 4,
		Layers:     2,
		Attention:  m,
		MaxLength:  11,
		SOS:        DefaultSOS,
		EOS:        DefaultEOS,
	}
}

func saveModel(t *testing.T, m *Model) (string, string) {
	t.Helper()
	dir := t.TempDir()
	enc := filepath.Join(dir, "encoder.safetensors")
	dec := filepath.Join(dir, "decoder.safetensors")
	if err := m.Save(enc, dec); err != nil {
		t.Fatalf("Save: %v", err)
	}
	return enc, dec
}

func TestSaveLoadPredictMatches(t *testing.T) {
	t.Parallel()
	for _, method := range []Method{MethodDot, MethodGeneral, MethodConcat} {
		t.Run(method.String(), func(t *testing.T) {
			t.Parallel()
			cfg := smallConfig(method)
			orig, err := NewRandom(cfg, 9, 7, 42)
			if err != nil {
				t.Fatalf("NewRandom: %v", err)
			}
			enc, dec := saveModel(t, orig)
			loaded, err := Load(enc, dec, cfg, 9, 7)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}

			ids := []int{3, 1, 4, 1, 5, 8, 2, 6}
			want, err := orig.Predict(context.Background(), ids, true)
			if err != nil {
				t.Fatalf("Predict orig: %v", err)
			}
			got, err := loaded.Predict(context.Background(), ids, true)
			if err != nil {
				t.Fatalf("Predict loaded: %v", err)
			}
			if !slices.Equal(got.Tokens, want.Tokens) || got.Stop != want.Stop || got.Steps != want.Steps {
				t.Fatalf("loaded model diverged: got %+v want %+v", got, want)
			}
			for i := range want.Attention {
				compareSlices(t, got.Attention[i], want.Attention[i], 0)
			}
		})
	}
}

func TestPredictDeterministicAndBounded(t *testing.T) {
	t.Parallel()
	m, err := NewRandom(smallConfig(MethodGeneral), 12, 6, 7)
	if err != nil {
		t.Fatalf("NewRandom: %v", err)
	}
	inputs := [][]int{{0}, {1, 2, 3}, {11, 10, 9, 8, 7, 6, 5, 4, 3, 2, 1, 0, 5, 5, 5}}
	for _, ids := range inputs {
		first, err := m.Predict(context.Background(), ids, false)
		if err != nil {
			t.Fatalf("Predict(%v): %v", ids, err)
		}
		second, err := m.Predict(context.Background(), ids, false)
		if err != nil {
			t.Fatalf("Predict(%v): %v", ids, err)
		}
		if !slices.Equal(first.Tokens, second.Tokens) {
			t.Fatalf("non-deterministic output for %v: %v vs %v", ids, first.Tokens, second.Tokens)
		}
		if len(first.Tokens) > m.Config.MaxLength {
			t.Fatalf("decoded %d tokens, max %d", len(first.Tokens), m.Config.MaxLength)
		}
		for _, tok := range first.Tokens {
			if tok < 0 || tok >= m.OutputVocab() || tok == m.Config.EOS {
				t.Fatalf("token %d out of range or EOS", tok)
			}
		}
	}
}

// biasModel returns a model whose output projection ignores its input, so
// the decoded sequence is fully determined by out.bias.
func biasModel(t *testing.T, winner int) *Model {
	t.Helper()
	m, err := NewRandom(smallConfig(MethodGeneral), 5, 6, 1)
	if err != nil {
		t.Fatalf("NewRandom: %v", err)
	}
	clear(m.Decoder.Out.W.Data)
	for i := range m.Decoder.Out.B {
		m.Decoder.Out.B[i] = 0
	}
	m.Decoder.Out.B[winner] = 5
	return m
}

func TestPredictImmediateEOS(t *testing.T) {
	t.Parallel()
	m := biasModel(t, DefaultEOS)
	tr, err := m.Predict(context.Background(), []int{1, 2, 3}, false)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if len(tr.Tokens) != 0 || tr.Stop != StopEOS || tr.Steps != 1 {
		t.Fatalf("trace = %+v", tr)
	}
}

func TestPredictRunsToMaxLength(t *testing.T) {
	t.Parallel()
	m := biasModel(t, 3)
	tr, err := m.Predict(context.Background(), []int{4, 0}, false)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if len(tr.Tokens) != 11 || tr.Stop != StopMaxLength {
		t.Fatalf("trace = %+v", tr)
	}
	for _, tok := range tr.Tokens {
		if tok != 3 {
			t.Fatalf("tokens = %v", tr.Tokens)
		}
	}
}

func TestPredictRejectsOutOfRangeInput(t *testing.T) {
	t.Parallel()
	m, err := NewRandom(smallConfig(MethodDot), 3, 4, 2)
	if err != nil {
		t.Fatalf("NewRandom: %v", err)
	}
	if _, err := m.Predict(context.Background(), []int{0, 3}, false); err == nil {
		t.Fatal("expected error for index outside vocabulary")
	}
	if _, err := m.Predict(context.Background(), nil, false); err == nil {
		t.Fatal("expected error for empty input")
	}
}

func TestLoadVocabularyMismatch(t *testing.T) {
	t.Parallel()
	cfg := smallConfig(MethodGeneral)
	m, err := NewRandom(cfg, 9, 7, 5)
	if err != nil {
		t.Fatalf("NewRandom: %v", err)
	}
	enc, dec := saveModel(t, m)

	if _, err := Load(enc, dec, cfg, 8, 7); !errors.Is(err, safetensors.ErrShapeMismatch) {
		t.Fatalf("input vocab mismatch: expected ErrShapeMismatch, got %v", err)
	}
	if _, err := Load(enc, dec, cfg, 9, 13); !errors.Is(err, safetensors.ErrShapeMismatch) {
		t.Fatalf("output vocab mismatch: expected ErrShapeMismatch, got %v", err)
	}

	wrongHidden := cfg
	wrongHidden.HiddenSize = 5
	if _, err := Load(enc, dec, wrongHidden, 9, 7); !errors.Is(err, safetensors.ErrShapeMismatch) {
		t.Fatalf("hidden mismatch: expected ErrShapeMismatch, got %v", err)
	}

	concat := cfg
	concat.Attention = MethodConcat
	if _, err := Load(enc, dec, concat, 9, 7); err == nil {
		t.Fatal("expected error loading general weights as concat")
	}

	oneLayer := cfg
	oneLayer.Layers = 3
	if _, err := Load(enc, dec, oneLayer, 9, 7); !errors.Is(err, safetensors.ErrTensorNotFound) {
		t.Fatalf("extra layer: expected ErrTensorNotFound, got %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	_, err := Load(filepath.Join(dir, "nope.safetensors"), filepath.Join(dir, "nope2.safetensors"), smallConfig(MethodDot), 3, 3)
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected os.ErrNotExist, got %v", err)
	}
}

func TestValidateReservedTokens(t *testing.T) {
	t.Parallel()
	cfg := smallConfig(MethodDot)
	m, err := NewRandom(cfg, 3, 4, 1)
	if err != nil {
		t.Fatalf("NewRandom: %v", err)
	}
	m.Config.EOS = 4
	if err := m.Validate(); !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
}

func TestConfigYAML(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	cfg, err := LoadConfig(filepath.Join(dir, "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig missing: %v", err)
	}
	if cfg != DefaultConfig() {
		t.Fatalf("missing file did not yield defaults: %+v", cfg)
	}

	path := filepath.Join(dir, "model.yaml")
	if err := os.WriteFile(path, []byte("hidden_size: 32\nattention: Concat\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err = LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.HiddenSize != 32 || cfg.Attention != MethodConcat || cfg.Layers != 2 || cfg.MaxLength != 11 {
		t.Fatalf("unexpected config: %+v", cfg)
	}

	out := filepath.Join(dir, "out.yaml")
	if err := WriteConfig(out, cfg); err != nil {
		t.Fatalf("WriteConfig: %v", err)
	}
	back, err := LoadConfig(out)
	if err != nil {
		t.Fatalf("LoadConfig round trip: %v", err)
	}
	if back != cfg {
		t.Fatalf("round trip changed config: %+v vs %+v", back, cfg)
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("attention: bahdanau\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadConfig(bad); !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}

	same := filepath.Join(dir, "same.yaml")
	if err := os.WriteFile(same, []byte("sos_token: 1\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadConfig(same); !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig for sos==eos, got %v", err)
	}
}

func TestParseMethod(t *testing.T) {
	t.Parallel()
	for _, m := range []Method{MethodDot, MethodGeneral, MethodConcat} {
		got, err := ParseMethod(" " + m.String() + " ")
		if err != nil || got != m {
			t.Fatalf("ParseMethod(%q) = %v, %v", m.String(), got, err)
		}
	}
	if _, err := ParseMethod("none"); err == nil {
		t.Fatal("expected error for unknown method")
	}
	if Method(0).Valid() {
		t.Fatal("zero Method reported valid")
	}
}

// expiringCtx reports DeadlineExceeded once Err has been called live times.
type expiringCtx struct {
	context.Context
	live  int
	calls int
}

func (c *expiringCtx) Err() error {
	c.calls++
	if c.calls > c.live {
		return context.DeadlineExceeded
	}
	return nil
}

func TestEncodeStopsWhenContextExpires(t *testing.T) {
	t.Parallel()
	m, err := NewRandom(smallConfig(MethodGeneral), 5, 6, 4)
	if err != nil {
		t.Fatalf("NewRandom: %v", err)
	}
	ids := make([]int, 10_000)
	for i := range ids {
		ids[i] = i % 5
	}

	ctx := &expiringCtx{Context: context.Background(), live: 2}
	if _, err := m.Encoder.Encode(ctx, ids); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
	if ctx.calls != 3 {
		t.Fatalf("encoder kept running after expiry: %d context checks", ctx.calls)
	}

	ctx = &expiringCtx{Context: context.Background(), live: 0}
	if _, err := m.Predict(ctx, ids, false); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Predict: expected DeadlineExceeded, got %v", err)
	}
}

func TestDefaultConfigLimitsInput(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	if cfg.MaxInputLength <= 0 {
		t.Fatalf("default max_input_length = %d", cfg.MaxInputLength)
	}
	cfg.MaxInputLength = -1
	if err := cfg.Validate(); !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig for negative max_input_length, got %v", err)
	}

	path := filepath.Join(t.TempDir(), "model.yaml")
	if err := os.WriteFile(path, []byte("hidden_size: 8\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if loaded.MaxInputLength != DefaultConfig().MaxInputLength {
		t.Fatalf("model.yaml without max_input_length should keep the default, got %d", loaded.MaxInputLength)
	}
}
