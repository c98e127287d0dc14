package main

import (
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/bitdecode/internal/inference"
)

var (
	configFile string
	fileConfig Config
	logLevel   string
	logFormat  string
	debug      bool
)

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:        "config",
		Usage:       "path to config.yaml (default: user config dir)",
		Destination: &configFile,
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

// generationFlags binds the sampling and length flags shared by run and serve.
func generationFlags(cfg *inference.Config) []cli.Flag {
	def := inference.DefaultConfig()
	return []cli.Flag{
		&cli.IntFlag{
			Name:        "max-length",
			Aliases:     []string{"n", "max_length"},
			Usage:       "number of tokens to generate",
			Value:       def.MaxLength,
			Destination: &cfg.MaxLength,
		},
		&cli.Float64Flag{
			Name:        "temperature",
			Aliases:     []string{"temp", "t"},
			Usage:       "sampling temperature (> 0)",
			Value:       def.Temperature,
			Destination: &cfg.Temperature,
		},
		&cli.IntFlag{
			Name:        "top-k",
			Aliases:     []string{"top_k", "k"},
			Usage:       "number of highest logits kept before sampling",
			Value:       def.TopK,
			Destination: &cfg.TopK,
		},
		&cli.Int64Flag{
			Name:        "seed",
			Usage:       "sampling RNG seed (-1 = random)",
			Value:       def.Seed,
			Destination: &cfg.Seed,
		},
		&cli.IntSliceFlag{
			Name:        "stop-token",
			Usage:       "end generation early after sampling this id (repeatable)",
			Destination: &cfg.StopTokens,
		},
	}
}

func modelFlag(dst *string) cli.Flag {
	return &cli.StringFlag{
		Name:        "model",
		Aliases:     []string{"m"},
		Usage:       "path to model.bin",
		Value:       inference.DefaultConfig().ModelPath,
		Destination: dst,
	}
}
