package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/bitdecode/internal/modelbin"
)

func inspectCmd() *cli.Command {
	var (
		modelPath string
		filter    string
		limit     int
	)

	return &cli.Command{
		Name:  "inspect",
		Usage: "List the tensors of a model.bin",
		Flags: []cli.Flag{
			modelFlag(&modelPath),
			&cli.StringFlag{Name: "filter", Usage: "only show tensors whose name contains this", Destination: &filter},
			&cli.IntFlag{Name: "limit", Usage: "limit tensor listing (0 = no limit)", Value: 0, Destination: &limit},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			f, err := modelbin.Open(modelPath)
			if err != nil {
				return cli.Exit(fmt.Sprintf("open model %s: %v", modelPath, err), 1)
			}
			defer func() { _ = f.Close() }()
			return printTensors(os.Stdout, f, filter, limit)
		},
	}
}

func printTensors(w io.Writer, f *modelbin.File, filter string, limit int) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "NAME\tKIND\tELEMENTS\tSIZE\tSCALE")

	var (
		shown     int
		total     uint64
		ternaries int
	)
	for _, name := range f.Names() {
		info, err := f.Tensor(name)
		if err != nil {
			return err
		}
		size := uint64(info.Bytes())
		total += size
		if info.Kind == modelbin.KindTernary {
			ternaries++
		}
		if filter != "" && !strings.Contains(name, filter) {
			continue
		}
		if limit > 0 && shown >= limit {
			continue
		}
		shown++
		scale, elems := "-", info.Count
		if info.Kind == modelbin.KindTernary {
			scale = fmt.Sprintf("%.6g", info.Scale)
			elems = info.Count * 4
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			name, info.Kind, humanize.Comma(int64(elems)), humanize.Bytes(size), scale)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\n%d tensors (%d ternary), %s of weights, file %s\n",
		len(f.Names()), ternaries, humanize.Bytes(total), humanize.Bytes(uint64(f.Size())))
	return err
}
