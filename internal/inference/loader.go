package inference

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/samcharles93/datenorm/internal/model"
	"github.com/samcharles93/datenorm/internal/vocab"
)

// File names inside a model directory.
const (
	EncoderFile     = "encoder.safetensors"
	DecoderFile     = "decoder.safetensors"
	InputVocabFile  = "input_vocab.json"
	OutputVocabFile = "output_vocab.json"
	ConfigFile      = "model.yaml"
)

// Loader resolves a model directory into an Engine. Any path field left empty
// falls back to the conventional file name inside Dir.
type Loader struct {
	Dir string

	EncoderPath     string
	DecoderPath     string
	InputVocabPath  string
	OutputVocabPath string
	ConfigPath      string

	// MaxLength and MaxInputLength override model.yaml when positive.
	MaxLength      int
	MaxInputLength int
}

type LoadResult struct {
	Engine *EngineImpl
	Model  *model.Model
	Input  *vocab.Input
	Output *vocab.Output
	Info   ModelInfo
}

func (l Loader) path(override, name string) string {
	if override != "" {
		return override
	}
	return filepath.Join(l.Dir, name)
}

// Config reads model.yaml with the length overrides applied.
func (l Loader) Config() (model.Config, error) {
	cfg, err := model.LoadConfig(l.path(l.ConfigPath, ConfigFile))
	if err != nil {
		return model.Config{}, err
	}
	if l.MaxLength > 0 {
		cfg.MaxLength = l.MaxLength
	}
	if l.MaxInputLength > 0 {
		cfg.MaxInputLength = l.MaxInputLength
	}
	return cfg, cfg.Validate()
}

func (l Loader) Load() (*LoadResult, error) {
	if strings.TrimSpace(l.Dir) == "" && (l.EncoderPath == "" || l.DecoderPath == "") {
		return nil, fmt.Errorf("model directory is required")
	}

	cfg, err := l.Config()
	if err != nil {
		return nil, fmt.Errorf("load model config: %w", err)
	}
	in, err := vocab.LoadInput(l.path(l.InputVocabPath, InputVocabFile))
	if err != nil {
		return nil, fmt.Errorf("load input vocabulary: %w", err)
	}
	out, err := vocab.LoadOutput(l.path(l.OutputVocabPath, OutputVocabFile))
	if err != nil {
		return nil, fmt.Errorf("load output vocabulary: %w", err)
	}
	if cfg.SOS >= out.Size() || cfg.EOS >= out.Size() {
		return nil, fmt.Errorf("%w: sos=%d eos=%d outside output vocabulary of %d", model.ErrConfig, cfg.SOS, cfg.EOS, out.Size())
	}

	m, err := model.Load(
		l.path(l.EncoderPath, EncoderFile),
		l.path(l.DecoderPath, DecoderFile),
		cfg, in.Size(), out.Size(),
	)
	if err != nil {
		return nil, err
	}

	info := ModelInfo{
		ID:       uuid.NewString(),
		Dir:      l.Dir,
		LoadedAt: time.Now().UTC(),
	}
	engine, err := NewEngine(m, in, out, info)
	if err != nil {
		return nil, err
	}
	return &LoadResult{
		Engine: engine,
		Model:  m,
		Input:  in,
		Output: out,
		Info:   engine.Info(),
	}, nil
}
