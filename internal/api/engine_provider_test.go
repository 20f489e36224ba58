package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/samcharles93/datenorm/internal/inference"
	"github.com/samcharles93/datenorm/internal/model"
	"github.com/samcharles93/datenorm/internal/vocab"
)

func writeRandomModelDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	chars := map[string]int{}
	for i, r := range "0123456789/- " {
		chars[string(r)] = i
	}
	in, err := vocab.NewInput(chars)
	if err != nil {
		t.Fatalf("NewInput: %v", err)
	}
	out, err := vocab.NewOutput(map[int]string{0: "SOS", 1: "EOS", 2: "0", 3: "1", 4: "2", 5: "-"})
	if err != nil {
		t.Fatalf("NewOutput: %v", err)
	}
	cfg := model.DefaultConfig()
	cfg.HiddenSize = 8
	m, err := model.NewRandom(cfg, in.Size(), out.Size(), 17)
	if err != nil {
		t.Fatalf("NewRandom: %v", err)
	}
	// A trained decoder never emits SOS; keep the random one from doing so.
	m.Decoder.Out.B[model.DefaultSOS] = -100
	if err := m.Save(filepath.Join(dir, inference.EncoderFile), filepath.Join(dir, inference.DecoderFile)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := vocab.WriteInput(filepath.Join(dir, inference.InputVocabFile), in); err != nil {
		t.Fatalf("WriteInput: %v", err)
	}
	if err := vocab.WriteOutput(filepath.Join(dir, inference.OutputVocabFile), out); err != nil {
		t.Fatalf("WriteOutput: %v", err)
	}
	if err := model.WriteConfig(filepath.Join(dir, inference.ConfigFile), cfg); err != nil {
		t.Fatalf("WriteConfig: %v", err)
	}
	return dir
}

func TestReloadableProviderWithLoader(t *testing.T) {
	t.Parallel()

	dir := writeRandomModelDir(t)
	provider := NewReloadableEngineProvider(LoaderFunc(inference.Loader{Dir: dir}))
	if _, ok := provider.Info(); ok {
		t.Fatal("provider reported a model before the first load")
	}
	info, err := provider.Reload(context.Background())
	if err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if info.Dir != dir || info.HiddenSize != 8 {
		t.Fatalf("unexpected info: %+v", info)
	}

	e := newTestEcho(provider)
	first := doJSON(t, e, http.MethodGet, "/?date=12/01/2020", "")
	if first.Code != http.StatusOK {
		t.Fatalf("status: got %d body=%s", first.Code, first.Body.String())
	}
	second := doJSON(t, e, http.MethodGet, "/?date=12/01/2020", "")
	if first.Body.String() != second.Body.String() {
		t.Fatalf("non-deterministic output: %s vs %s", first.Body.String(), second.Body.String())
	}
	var resp DataResponse
	if err := json.Unmarshal(first.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Data) > model.DefaultConfig().MaxLength {
		t.Fatalf("output longer than max length: %q", resp.Data)
	}
	for _, r := range resp.Data {
		if r != '0' && r != '1' && r != '2' && r != '-' {
			t.Fatalf("output %q contains %q outside the output vocabulary", resp.Data, r)
		}
	}

	rec := doJSON(t, e, http.MethodGet, "/?date=March", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown chars, got %d", rec.Code)
	}
}

func TestReloadableProviderConcurrentReads(t *testing.T) {
	t.Parallel()

	var n int
	var mu sync.Mutex
	provider := NewStaticEngineProvider(testEngine{id: "m0"}, func(context.Context) (inference.Engine, error) {
		mu.Lock()
		defer mu.Unlock()
		n++
		return testEngine{id: "reloaded"}, nil
	})

	var wg sync.WaitGroup
	for range 8 {
		wg.Go(func() {
			for range 50 {
				err := provider.WithEngine(context.Background(), func(engine inference.Engine) error {
					_, err := engine.Predict(context.Background(), &inference.Request{Text: "1"})
					return err
				})
				if err != nil {
					t.Errorf("WithEngine: %v", err)
					return
				}
			}
		})
	}
	for range 5 {
		if _, err := provider.Reload(context.Background()); err != nil {
			t.Fatalf("Reload: %v", err)
		}
	}
	wg.Wait()
	if n != 5 {
		t.Fatalf("load called %d times, want 5", n)
	}
	if info, _ := provider.Info(); info.ID != "reloaded" {
		t.Fatalf("unexpected info: %+v", info)
	}
}

func TestReloadableProviderErrors(t *testing.T) {
	t.Parallel()

	empty := NewReloadableEngineProvider(nil)
	if err := empty.WithEngine(context.Background(), func(inference.Engine) error { return nil }); !errors.Is(err, ErrNoModel) {
		t.Fatalf("expected ErrNoModel, got %v", err)
	}
	if _, err := empty.Reload(context.Background()); err == nil {
		t.Fatal("expected error reloading without a load func")
	}

	static := staticProvider(testEngine{id: "m1"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := static.WithEngine(ctx, func(inference.Engine) error { called = true; return nil })
	if !errors.Is(err, context.Canceled) || called {
		t.Fatalf("expected context.Canceled before running fn, got %v (called=%v)", err, called)
	}

	if _, err := LoaderFunc(inference.Loader{Dir: t.TempDir()})(context.Background()); err == nil {
		t.Fatal("expected error loading an empty directory")
	}
}

func TestOverlongDateIs400(t *testing.T) {
	t.Parallel()

	provider := NewReloadableEngineProvider(LoaderFunc(inference.Loader{Dir: writeRandomModelDir(t), MaxInputLength: 10}))
	if _, err := provider.Reload(context.Background()); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	e := newTestEcho(provider)

	if rec := doJSON(t, e, http.MethodGet, "/?date=12/01/2020", ""); rec.Code != http.StatusOK {
		t.Fatalf("date at the limit: got %d body=%s", rec.Code, rec.Body.String())
	}
	rec := doJSON(t, e, http.MethodGet, "/v1/normalize?date="+strings.Repeat("1", 5000), "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d body=%s", rec.Code, rec.Body.String())
	}
	body := decodeError(t, rec)
	if body.Type != "invalid_request_error" || body.Param != "date" || !strings.Contains(body.Message, "limit is 10") {
		t.Fatalf("unexpected error body: %+v", body)
	}
}
