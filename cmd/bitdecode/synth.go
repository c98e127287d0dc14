package main

import (
	"bufio"
	"context"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/bitdecode/internal/bitnet"
	"github.com/samcharles93/bitdecode/internal/logger"
	"github.com/samcharles93/bitdecode/internal/tokenfile"
)

// synthCmd writes a randomly initialised model and optionally a prompt file,
// for smoke tests and benchmarks without real weights.
func synthCmd() *cli.Command {
	var (
		out        string
		promptOut  string
		promptIDs  []int
		seed       int64
		dimsPreset string
	)

	return &cli.Command{
		Name:  "synth",
		Usage: "Write a random model.bin with the configured dimensions",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "output model path", Value: "model.bin", Destination: &out},
			&cli.Int64Flag{Name: "seed", Usage: "weight initialisation seed", Value: 0, Destination: &seed},
			&cli.StringFlag{Name: "dims", Usage: "dimension preset (config, tiny)", Value: "config", Destination: &dimsPreset},
			&cli.StringFlag{Name: "prompt-out", Usage: "also write a prompt id file here", Destination: &promptOut},
			&cli.IntSliceFlag{Name: "prompt-id", Usage: "prompt id after the sentinel (repeatable)", Destination: &promptIDs},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)

			dims := fileConfig.Dims
			switch dimsPreset {
			case "config":
			case "tiny":
				dims = tinyDims()
			default:
				return cli.Exit(fmt.Sprintf("unknown dims preset %q", dimsPreset), 1)
			}

			if err := writeSynthModel(out, dims, seed); err != nil {
				return cli.Exit(err.Error(), 1)
			}
			st, err := os.Stat(out)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			log.Info("model written", "path", out, "size", humanize.Bytes(uint64(st.Size())), "layers", dims.Layers, "vocab", dims.Vocab)

			if promptOut != "" {
				ids := append([]int{tokenfile.Sentinel}, promptIDs...)
				if err := tokenfile.Write(promptOut, ids); err != nil {
					return cli.Exit(err.Error(), 1)
				}
				log.Info("prompt written", "path", promptOut, "tokens", len(ids))
			}
			return nil
		},
	}
}

func writeSynthModel(path string, dims bitnet.Dims, seed int64) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	w := bufio.NewWriter(f)
	if err := bitnet.WriteRandom(w, dims, seed); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return w.Flush()
}

func tinyDims() bitnet.Dims {
	return bitnet.Dims{
		Vocab:        256,
		Hidden:       64,
		Intermediate: 128,
		Heads:        4,
		HeadDim:      16,
		Layers:       2,
		RMSEps:       1e-6,
		RopeTheta:    10000,
	}
}
