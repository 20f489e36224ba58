package main

import (
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/datenorm/internal/inference"
)

const envModelDir = "DATENORM_MODEL_DIR"

var (
	modelDir        string
	encoderPath     string
	decoderPath     string
	inputVocabPath  string
	outputVocabPath string
	maxLength       int64
	maxInputLength  int64
	logLevel        string
	logFormat       string
	debug           bool
)

func commonModelFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "model-dir",
			Aliases:     []string{"m"},
			Usage:       "directory holding encoder/decoder safetensors, vocabularies and model.yaml",
			Sources:     cli.EnvVars(envModelDir),
			Destination: &modelDir,
		},
		&cli.Int64Flag{
			Name:        "max-length",
			Usage:       "maximum decoded characters (0 uses model.yaml)",
			Destination: &maxLength,
		},
		&cli.Int64Flag{
			Name:        "max-input-length",
			Usage:       "reject inputs longer than this many characters (0 uses model.yaml)",
			Destination: &maxInputLength,
		},
		&cli.StringFlag{
			Name:        "encoder",
			Usage:       "override path to encoder.safetensors",
			Destination: &encoderPath,
		},
		&cli.StringFlag{
			Name:        "decoder",
			Usage:       "override path to decoder.safetensors",
			Destination: &decoderPath,
		},
		&cli.StringFlag{
			Name:        "input-vocab",
			Usage:       "override path to input_vocab.json",
			Destination: &inputVocabPath,
		},
		&cli.StringFlag{
			Name:        "output-vocab",
			Usage:       "override path to output_vocab.json",
			Destination: &outputVocabPath,
		},
	}
}

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}

func modelLoader() inference.Loader {
	return inference.Loader{
		Dir:             modelDir,
		EncoderPath:     encoderPath,
		DecoderPath:     decoderPath,
		InputVocabPath:  inputVocabPath,
		OutputVocabPath: outputVocabPath,
		MaxLength:       int(maxLength),
		MaxInputLength:  int(maxInputLength),
	}
}
