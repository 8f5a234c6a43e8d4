package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/lmpeek/internal/sampling"
)

func sampleCmd() *cli.Command {
	var limit int64
	return &cli.Command{
		Name:      "sample",
		Usage:     "Rank tokens by probability for a score vector",
		ArgsUsage: "[score...] (reads a JSON array from stdin when omitted)",
		Flags: concat(loggingFlags(), modelFlags(), workerFlags(), samplingFlags(), []cli.Flag{
			&cli.Int64Flag{
				Name:        "limit",
				Aliases:     []string{"n"},
				Usage:       "number of ranked tokens to print (0 prints all)",
				Value:       10,
				Destination: &limit,
			},
		}),
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, _, err := prepare(ctx, c)
			if err != nil {
				return err
			}
			scores, err := readScores(c.Args().Slice(), os.Stdin)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 2)
			}
			m, err := openModel(ctx)
			if err != nil {
				return err
			}
			defer m.Dispose()

			ranked, err := m.Sample(ctx, scores, samplingOptions())
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: sample: %v", err), 1)
			}
			printRanked(os.Stdout, ranked, int(limit))
			return nil
		},
	}
}

func readScores(args []string, stdin io.Reader) ([]float32, error) {
	if len(args) == 0 {
		var scores []float32
		if err := json.NewDecoder(stdin).Decode(&scores); err != nil {
			return nil, fmt.Errorf("read scores from stdin: %w", err)
		}
		if len(scores) == 0 {
			return nil, fmt.Errorf("no scores given")
		}
		return scores, nil
	}
	scores := make([]float32, 0, len(args))
	for _, a := range args {
		for _, f := range strings.FieldsFunc(a, func(r rune) bool { return r == ',' || r == ' ' }) {
			v, err := strconv.ParseFloat(f, 32)
			if err != nil {
				return nil, fmt.Errorf("invalid score %q", f)
			}
			scores = append(scores, float32(v))
		}
	}
	return scores, nil
}

func printRanked(w io.Writer, ranked []sampling.TokenProb, limit int) {
	if limit > 0 && limit < len(ranked) {
		ranked = ranked[:limit]
	}
	for i, tp := range ranked {
		_, _ = fmt.Fprintf(w, "%3d  %6d  %.6f  %q\n", i+1, tp.ID, tp.Probability, tp.Token)
	}
}
