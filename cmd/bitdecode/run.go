package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	json "github.com/goccy/go-json"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/bitdecode/internal/bitnet"
	"github.com/samcharles93/bitdecode/internal/inference"
	"github.com/samcharles93/bitdecode/internal/logger"
	"github.com/samcharles93/bitdecode/internal/logits"
	"github.com/samcharles93/bitdecode/internal/tokenfile"
)

func runCmd() *cli.Command {
	var (
		cfg        = inference.DefaultConfig()
		statsJSON  string
		noProgress bool
		showTokens bool
	)

	flags := []cli.Flag{
		modelFlag(&cfg.ModelPath),
		&cli.StringFlag{
			Name:        "prompt",
			Aliases:     []string{"p"},
			Usage:       "path to the encoded prompt id file",
			Value:       cfg.PromptPath,
			Destination: &cfg.PromptPath,
		},
		&cli.StringFlag{
			Name:        "output",
			Aliases:     []string{"o"},
			Usage:       "path the final id sequence is written to",
			Value:       cfg.OutputPath,
			Destination: &cfg.OutputPath,
		},
	}
	flags = append(flags, generationFlags(&cfg)...)
	flags = append(flags,
		&cli.StringFlag{
			Name:        "stats-json",
			Usage:       "write a JSON run report to this path (- for stdout)",
			Destination: &statsJSON,
		},
		&cli.BoolFlag{
			Name:        "no-progress",
			Usage:       "disable the progress bar",
			Destination: &noProgress,
		},
		&cli.BoolFlag{
			Name:        "show-tokens",
			Usage:       "print the sequence after every step",
			Destination: &showTokens,
		},
	)

	return &cli.Command{
		Name:  "run",
		Usage: "Generate tokens from an encoded prompt",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyRunConfig(cmd, fileConfig, &cfg)
			if err := cfg.Validate(); err != nil {
				return cli.Exit(err.Error(), 1)
			}
			return runGenerate(ctx, cfg, runOptions{
				dims:       fileConfig.Dims,
				statsJSON:  statsJSON,
				progress:   !noProgress,
				showTokens: showTokens,
				stdout:     os.Stdout,
				stderr:     os.Stderr,
			})
		},
	}
}

type runOptions struct {
	dims       bitnet.Dims
	statsJSON  string
	progress   bool
	showTokens bool
	stdout     io.Writer
	stderr     io.Writer
}

func runGenerate(ctx context.Context, cfg inference.Config, opts runOptions) error {
	log := logger.FromContext(ctx)

	prompt, err := tokenfile.Read(cfg.PromptPath)
	if err != nil {
		return cli.Exit(fmt.Sprintf("load prompt: %v", err), 1)
	}
	log.Info("prompt loaded", "path", cfg.PromptPath, "tokens", len(prompt))
	_, _ = fmt.Fprintf(opts.stdout, "Encoded_ID: %v\n", prompt)

	start := time.Now()
	loaded, err := inference.Loader{Dims: opts.dims}.Load(cfg.ModelPath)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer func() { _ = loaded.Close() }()
	log.Info("model loaded",
		"path", cfg.ModelPath,
		"size", humanize.Bytes(uint64(loaded.File.Size())),
		"tensors", len(loaded.File.Names()),
		"elapsed", time.Since(start),
	)

	sampler := logits.NewSampler(cfg.SamplerConfig())
	genOpts := cfg.Options()

	var bar *progressbar.ProgressBar
	if opts.progress && cfg.MaxLength > 0 {
		bar = progressbar.NewOptions(cfg.MaxLength,
			progressbar.OptionSetWriter(opts.stderr),
			progressbar.OptionSetDescription("decoding"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("tok"),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionClearOnFinish(),
		)
	}
	seq := append([]int(nil), prompt...)
	genOpts.OnStep = func(ev inference.StepEvent) {
		if bar != nil {
			_ = bar.Add(1)
		}
		if opts.showTokens {
			seq = append(seq, ev.Token)
			_, _ = fmt.Fprintf(opts.stdout, "Encoded_ID now: %v\n", seq)
			_, _ = fmt.Fprintf(opts.stdout, "Inference time for %dth token: %.6fs\n", ev.Step, ev.Latency.Seconds())
		}
	}

	res, genErr := inference.Generate(ctx, loaded.Model, loaded.Embedding, sampler, prompt, genOpts)
	if bar != nil {
		_ = bar.Finish()
	}
	if genErr != nil {
		if res != nil && len(res.Tokens) > len(prompt) {
			log.Warn("generation stopped early", "tokens", len(res.Tokens), "error", genErr)
		}
		return cli.Exit(fmt.Sprintf("generate: %v", genErr), 1)
	}

	if err := tokenfile.Write(cfg.OutputPath, res.Tokens); err != nil {
		return cli.Exit(fmt.Sprintf("write output: %v", err), 1)
	}
	log.Info("output written", "path", cfg.OutputPath, "tokens", len(res.Tokens))

	_, _ = fmt.Fprintf(opts.stdout, "Total latency: %.6fs\n", res.Stats.Latency.Seconds())
	_, _ = fmt.Fprintf(opts.stdout, "Inference Speed: %.6f seconds / token\n", res.Stats.SecondsPerToken)

	if opts.statsJSON != "" {
		if err := writeReport(opts.statsJSON, opts.stdout, res.Report()); err != nil {
			return cli.Exit(fmt.Sprintf("write stats: %v", err), 1)
		}
	}
	return nil
}

func writeReport(path string, stdout io.Writer, rep inference.Report) error {
	b, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	if path == "-" {
		_, err = stdout.Write(b)
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
