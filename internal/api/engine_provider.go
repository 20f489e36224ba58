package api

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/samcharles93/datenorm/internal/inference"
)

var ErrNoModel = errors.New("no model loaded")

type EngineProvider interface {
	WithEngine(ctx context.Context, fn func(engine inference.Engine) error) error
	Reload(ctx context.Context) (inference.ModelInfo, error)
	Info() (inference.ModelInfo, bool)
}

// LoadFunc builds a fresh engine, typically inference.Loader.Load.
type LoadFunc func(ctx context.Context) (inference.Engine, error)

// ReloadableEngineProvider serves one engine at a time and swaps it
// atomically on Reload. Readers never block; concurrent reloads are
// serialised.
type ReloadableEngineProvider struct {
	load    LoadFunc
	current atomic.Pointer[engineEntry]
	mu      sync.Mutex
}

type engineEntry struct {
	engine inference.Engine
}

func NewReloadableEngineProvider(load LoadFunc) *ReloadableEngineProvider {
	return &ReloadableEngineProvider{load: load}
}

// NewStaticEngineProvider wraps an already-loaded engine. Reload re-runs load
// when it is non-nil.
func NewStaticEngineProvider(engine inference.Engine, load LoadFunc) *ReloadableEngineProvider {
	p := &ReloadableEngineProvider{load: load}
	p.current.Store(&engineEntry{engine: engine})
	return p
}

// LoaderFunc adapts an inference.Loader into a LoadFunc.
func LoaderFunc(l inference.Loader) LoadFunc {
	return func(ctx context.Context) (inference.Engine, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := l.Load()
		if err != nil {
			return nil, err
		}
		return res.Engine, nil
	}
}

func (p *ReloadableEngineProvider) WithEngine(ctx context.Context, fn func(engine inference.Engine) error) error {
	entry := p.current.Load()
	if entry == nil {
		return ErrNoModel
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(entry.engine)
}

// Reload loads a new engine and swaps it in. On failure the previous engine
// keeps serving.
func (p *ReloadableEngineProvider) Reload(ctx context.Context) (inference.ModelInfo, error) {
	if p.load == nil {
		return inference.ModelInfo{}, errors.New("reload is not configured")
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	engine, err := p.load(ctx)
	if err != nil {
		return inference.ModelInfo{}, err
	}
	p.current.Store(&engineEntry{engine: engine})
	return engine.Info(), nil
}

func (p *ReloadableEngineProvider) Info() (inference.ModelInfo, bool) {
	entry := p.current.Load()
	if entry == nil {
		return inference.ModelInfo{}, false
	}
	return entry.engine.Info(), true
}
