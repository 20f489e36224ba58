package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/datenorm/internal/inference"
	"github.com/samcharles93/datenorm/internal/safetensors"
)

type tensorRow struct {
	Name  string `json:"name"`
	DType string `json:"dtype"`
	Shape []int  `json:"shape"`
	Bytes int64  `json:"bytes"`
}

type fileReport struct {
	Path     string            `json:"path"`
	Size     int64             `json:"size"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Tensors  []tensorRow       `json:"tensors"`
}

type inspectReport struct {
	Files []fileReport         `json:"files"`
	Model *inference.ModelInfo `json:"model,omitempty"`
	Error string               `json:"error,omitempty"`
}

func inspectCmd() *cli.Command {
	var (
		files  []string
		filter string
		asJSON bool
	)

	return &cli.Command{
		Name:  "inspect",
		Usage: "List checkpoint tensors and validate a model directory",
		Flags: append(commonModelFlags(),
			&cli.StringSliceFlag{
				Name:        "file",
				Aliases:     []string{"f"},
				Usage:       "inspect only these safetensors files (skips validation)",
				Destination: &files,
			},
			&cli.StringFlag{
				Name:        "filter",
				Usage:       "only list tensors whose name contains this substring",
				Destination: &filter,
			},
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "emit the report as JSON",
				Destination: &asJSON,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(configPath())
			if err != nil {
				return err
			}
			applyModelConfig(cmd, cfg)

			validate := len(files) == 0
			if validate {
				if strings.TrimSpace(modelDir) == "" {
					return fmt.Errorf("--model-dir or --file is required")
				}
				l := modelLoader()
				files = []string{
					pathOr(l.EncoderPath, filepath.Join(modelDir, inference.EncoderFile)),
					pathOr(l.DecoderPath, filepath.Join(modelDir, inference.DecoderFile)),
				}
			}

			var report inspectReport
			for _, path := range files {
				fr, err := inspectFile(path, filter)
				if err != nil {
					return err
				}
				report.Files = append(report.Files, fr)
			}

			var loadErr error
			if validate {
				res, err := modelLoader().Load()
				if err != nil {
					loadErr = err
					report.Error = err.Error()
				} else {
					report.Model = &res.Info
				}
			}

			if asJSON {
				b, err := json.MarshalIndent(report, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(b))
			} else {
				printReport(report, validate)
			}
			return loadErr
		},
	}
}

func pathOr(override, def string) string {
	if override != "" {
		return override
	}
	return def
}

func inspectFile(path, filter string) (fileReport, error) {
	st, err := os.Stat(path)
	if err != nil {
		return fileReport{}, err
	}
	f, err := safetensors.Open(path)
	if err != nil {
		return fileReport{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	fr := fileReport{Path: path, Size: st.Size(), Metadata: f.Metadata}
	for name, info := range f.Tensors {
		if filter != "" && !strings.Contains(name, filter) {
			continue
		}
		fr.Tensors = append(fr.Tensors, tensorRow{
			Name:  name,
			DType: info.DType,
			Shape: info.Shape,
			Bytes: info.End - info.Start,
		})
	}
	slices.SortFunc(fr.Tensors, func(a, b tensorRow) int { return strings.Compare(a.Name, b.Name) })
	return fr, nil
}

func printReport(r inspectReport, validated bool) {
	for _, f := range r.Files {
		section(filepath.Base(f.Path))
		row("Path", f.Path)
		row("Size", formatBytes(uint64(f.Size)))
		keys := make([]string, 0, len(f.Metadata))
		for k := range f.Metadata {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			row("meta."+k, f.Metadata[k])
		}
		fmt.Println()
		for _, t := range f.Tensors {
			fmt.Printf("%-24s %-5s %-14s %s\n", t.Name, t.DType, formatShape(t.Shape), formatBytes(uint64(t.Bytes)))
		}
	}
	if !validated {
		return
	}
	section("Model")
	if r.Model == nil {
		row("Status", "invalid")
		row("Error", r.Error)
		return
	}
	m := r.Model
	row("Status", "ok")
	rowInt("Hidden size", m.HiddenSize)
	rowInt("Layers", m.Layers)
	row("Attention", m.Attention)
	rowInt("Max length", m.MaxLength)
	rowInt("Max input", m.MaxInput)
	rowInt("Input vocab", m.InputVocab)
	rowInt("Output vocab", m.OutputVocab)
}

func section(title string) {
	line := strings.Repeat("-", len(title)+8)
	fmt.Printf("\n%s\n--- %s ---\n%s\n", line, title, line)
}

func row(label, value string) {
	if value == "" {
		return
	}
	fmt.Printf("%-16s %s\n", label+":", value)
}

func rowInt(label string, v int) {
	if v == 0 {
		return
	}
	row(label, fmt.Sprintf("%d", v))
}

func formatShape(shape []int) string {
	if len(shape) == 0 {
		return "[]"
	}
	parts := make([]string, len(shape))
	for i, v := range shape {
		parts[i] = fmt.Sprintf("%d", v)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func formatBytes(b uint64) string {
	const (
		kb = 1024
		mb = 1024 * kb
		gb = 1024 * mb
	)
	switch {
	case b >= gb:
		return fmt.Sprintf("%.2f GiB", float64(b)/float64(gb))
	case b >= mb:
		return fmt.Sprintf("%.2f MiB", float64(b)/float64(mb))
	case b >= kb:
		return fmt.Sprintf("%.2f KiB", float64(b)/float64(kb))
	default:
		return fmt.Sprintf("%d B", b)
	}
}
