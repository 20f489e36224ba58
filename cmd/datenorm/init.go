package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/datenorm/internal/inference"
	"github.com/samcharles93/datenorm/internal/logger"
	"github.com/samcharles93/datenorm/internal/model"
	"github.com/samcharles93/datenorm/internal/vocab"
)

// Default vocabularies: 41 input symbols and 13 output symbols.
const (
	defaultInputAlphabet  = "0123456789abcdefghijklmnopqrstuvwxyz /,"
	defaultOutputAlphabet = "0123456789-"
)

func defaultInputVocab() (*vocab.Input, error) {
	m := map[string]int{"<pad>": 0, "<unk>": 1}
	for i, r := range defaultInputAlphabet {
		m[string(r)] = i + 2
	}
	return vocab.NewInput(m)
}

func defaultOutputVocab() (*vocab.Output, error) {
	m := map[int]string{model.DefaultSOS: "<SOS>", model.DefaultEOS: "<EOS>"}
	for i, r := range defaultOutputAlphabet {
		m[i+2] = string(r)
	}
	return vocab.NewOutput(m)
}

func initCmd() *cli.Command {
	var (
		outDir     string
		hiddenSize int64
		layers     int64
		attention  string
		maxLen     int64
		seed       int64
		force      bool
	)

	return &cli.Command{
		Name:  "init",
		Usage: "Write a randomly initialised model directory for smoke tests",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "out",
				Aliases:     []string{"o"},
				Usage:       "output model directory",
				Required:    true,
				Destination: &outDir,
			},
			&cli.Int64Flag{
				Name:        "hidden-size",
				Value:       int64(model.DefaultConfig().HiddenSize),
				Destination: &hiddenSize,
			},
			&cli.Int64Flag{
				Name:        "layers",
				Value:       int64(model.DefaultConfig().Layers),
				Destination: &layers,
			},
			&cli.StringFlag{
				Name:        "attention",
				Usage:       "attention scoring (dot, general, concat)",
				Value:       model.DefaultConfig().Attention.String(),
				Destination: &attention,
			},
			&cli.Int64Flag{
				Name:        "max-length",
				Value:       int64(model.DefaultConfig().MaxLength),
				Destination: &maxLen,
			},
			&cli.Int64Flag{
				Name:        "seed",
				Value:       1,
				Destination: &seed,
			},
			&cli.BoolFlag{
				Name:        "force",
				Usage:       "overwrite an existing model directory",
				Destination: &force,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)

			method, err := model.ParseMethod(attention)
			if err != nil {
				return err
			}
			cfg := model.DefaultConfig()
			cfg.HiddenSize = int(hiddenSize)
			cfg.Layers = int(layers)
			cfg.Attention = method
			cfg.MaxLength = int(maxLen)

			in, err := defaultInputVocab()
			if err != nil {
				return err
			}
			out, err := defaultOutputVocab()
			if err != nil {
				return err
			}
			if err := writeRandomModel(outDir, cfg, in, out, seed, force); err != nil {
				return err
			}
			log.Info("wrote random model",
				"dir", outDir,
				"hidden_size", cfg.HiddenSize,
				"layers", cfg.Layers,
				"attention", cfg.Attention,
				"seed", seed,
			)
			return nil
		},
	}
}

func writeRandomModel(dir string, cfg model.Config, in *vocab.Input, out *vocab.Output, seed int64, force bool) error {
	enc := filepath.Join(dir, inference.EncoderFile)
	if !force {
		if _, err := os.Stat(enc); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", enc)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	m, err := model.NewRandom(cfg, in.Size(), out.Size(), seed)
	if err != nil {
		return err
	}
	// Untrained weights would otherwise pick SOS now and then, which has no
	// printable output.
	m.Decoder.Out.B[cfg.SOS] = -100

	if err := m.Save(enc, filepath.Join(dir, inference.DecoderFile)); err != nil {
		return err
	}
	if err := vocab.WriteInput(filepath.Join(dir, inference.InputVocabFile), in); err != nil {
		return err
	}
	if err := vocab.WriteOutput(filepath.Join(dir, inference.OutputVocabFile), out); err != nil {
		return err
	}
	return model.WriteConfig(filepath.Join(dir, inference.ConfigFile), cfg)
}
