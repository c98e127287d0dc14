package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/bitdecode/internal/logger"
	"github.com/samcharles93/bitdecode/internal/version"
)

func main() {
	app := &cli.Command{
		Name:           "bitdecode",
		Usage:          "Autoregressive decoding for ternary BitNet models",
		Version:        version.String(),
		DefaultCommand: "run",
		Flags:          append(loggingFlags(), configFlag()),
		Before:         setup,
		Commands: []*cli.Command{
			runCmd(),
			serveCmd(),
			inspectCmd(),
			synthCmd(),
			versionCmd(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads the config file and installs the logger on the context.
func setup(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	cfg, err := LoadConfig(configFile)
	if err != nil {
		return ctx, cli.Exit(err.Error(), 1)
	}
	fileConfig = cfg
	applyLoggingConfig(cmd, cfg)

	level := logger.ParseLevel(logLevel)
	if debug {
		level = logger.ParseLevel("debug")
	}
	log, err := logger.ForFormat(logFormat, os.Stderr, level)
	if err != nil {
		return ctx, cli.Exit(err.Error(), 1)
	}
	return logger.WithContext(ctx, log), nil
}
