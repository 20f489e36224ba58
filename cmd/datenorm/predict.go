package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/datenorm/internal/inference"
	"github.com/samcharles93/datenorm/internal/logger"
)

func predictCmd() *cli.Command {
	var (
		showAttention bool
		asJSON        bool
	)

	return &cli.Command{
		Name:      "predict",
		Usage:     "Normalize dates given as arguments, or one per line on stdin",
		ArgsUsage: "[date ...]",
		Flags: append(commonModelFlags(),
			&cli.BoolFlag{
				Name:        "attention",
				Aliases:     []string{"a"},
				Usage:       "print the attention grid for each input",
				Destination: &showAttention,
			},
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "emit one JSON object per input",
				Destination: &asJSON,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			cfg, err := loadConfig(configPath())
			if err != nil {
				return err
			}
			applyModelConfig(cmd, cfg)
			if strings.TrimSpace(modelDir) == "" && (encoderPath == "" || decoderPath == "") {
				return fmt.Errorf("--model-dir is required unless %s is set", envModelDir)
			}

			res, err := modelLoader().Load()
			if err != nil {
				return err
			}
			log.Debug("model loaded", "id", res.Info.ID, "dir", res.Info.Dir)

			inputs := cmd.Args().Slice()
			if len(inputs) == 0 {
				inputs, err = readLines(os.Stdin)
				if err != nil {
					return err
				}
			}

			var failed int
			for _, text := range inputs {
				out, err := res.Engine.Predict(ctx, &inference.Request{Text: text, Attention: showAttention})
				if err != nil {
					if errors.Is(err, context.Canceled) {
						return err
					}
					failed++
					log.Error("prediction failed", "input", text, "error", err)
					continue
				}
				if asJSON {
					if err := writePredictionJSON(os.Stdout, text, out); err != nil {
						return err
					}
					continue
				}
				fmt.Printf("%s\t%s\n", text, out.Text)
				if showAttention {
					printAttention(os.Stdout, text, out)
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d inputs failed", failed, len(inputs))
			}
			return nil
		},
	}
}

func readLines(r io.Reader) ([]string, error) {
	var lines []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines, sc.Err()
}

type predictionJSON struct {
	Input      string      `json:"input"`
	Output     string      `json:"output"`
	Steps      int         `json:"steps"`
	StopReason string      `json:"stop_reason"`
	Attention  [][]float32 `json:"attention,omitempty"`
}

func writePredictionJSON(w io.Writer, input string, res *inference.Result) error {
	b, err := json.Marshal(predictionJSON{
		Input:      input,
		Output:     res.Text,
		Steps:      res.Steps,
		StopReason: string(res.Stop),
		Attention:  res.Attention,
	})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

// printAttention draws one row per decoder step and one column per input
// character. The final row is the EOS step when decoding stopped on EOS.
func printAttention(w io.Writer, input string, res *inference.Result) {
	chars := []rune(input)
	var b strings.Builder
	b.WriteString("       ")
	for _, r := range chars {
		fmt.Fprintf(&b, " %5q", r)
	}
	b.WriteByte('\n')
	for i, row := range res.Attention {
		label := "<EOS>"
		if i < len(res.Tokens) {
			label = res.Tokens[i]
		}
		fmt.Fprintf(&b, "%-7s", label)
		for _, v := range row {
			fmt.Fprintf(&b, " %5.2f", v)
		}
		b.WriteByte('\n')
	}
	_, _ = io.WriteString(w, b.String())
}
