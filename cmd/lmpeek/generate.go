package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/lmpeek/internal/logger"
	"github.com/samcharles93/lmpeek/internal/sampling"
	"github.com/samcharles93/lmpeek/pkg/lmpeek"
)

func generateCmd() *cli.Command {
	var (
		steps  int64
		seed   int64
		greedy bool
		bos    bool
	)
	return &cli.Command{
		Name:      "generate",
		Usage:     "Extend a prompt one sampled token at a time",
		ArgsUsage: "<prompt>",
		Flags: concat(loggingFlags(), modelFlags(), workerFlags(), samplingFlags(), []cli.Flag{
			&cli.Int64Flag{
				Name:        "steps",
				Aliases:     []string{"n"},
				Usage:       "number of tokens to generate",
				Value:       20,
				Destination: &steps,
			},
			&cli.Int64Flag{
				Name:        "seed",
				Usage:       "random seed (-1 seeds from the clock)",
				Value:       -1,
				Destination: &seed,
			},
			&cli.BoolFlag{
				Name:        "greedy",
				Usage:       "always pick the most probable token",
				Destination: &greedy,
			},
			&cli.BoolFlag{
				Name:        "bos",
				Usage:       "prefix the prompt with the beginning-of-sequence token",
				Destination: &bos,
			},
		}),
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, cfg, err := prepare(ctx, c)
			if err != nil {
				return err
			}
			applyGenerateConfig(c, cfg, &steps, &seed)
			prompt := strings.Join(c.Args().Slice(), " ")
			if prompt == "" {
				return cli.Exit("error: prompt is required", 2)
			}
			if seed < 0 {
				seed = time.Now().UnixNano()
			}
			log := logger.FromContext(ctx)

			m, err := openModel(ctx)
			if err != nil {
				return err
			}
			defer m.Dispose()

			var fwd []lmpeek.ForwardOption
			if bos {
				fwd = append(fwd, lmpeek.WithBOS())
			}
			sampler := sampling.NewSampler(seed)
			opts := samplingOptions()
			text := prompt
			fmt.Print(prompt)
			start := time.Now()
			for i := int64(0); i < steps; i++ {
				ranked, err := m.NextToken(ctx, text, opts, fwd...)
				if err != nil {
					fmt.Println()
					return cli.Exit(fmt.Sprintf("error: step %d: %v", i, err), 1)
				}
				probs := sampling.Probabilities(ranked)
				id := sampler.Draw(probs)
				if greedy {
					id = sampling.Argmax(probs)
				}
				token := tokenOf(ranked, id)
				text += token
				fmt.Print(token)
			}
			fmt.Println()
			log.Debug("generation finished", "steps", steps, "seed", seed, "duration_ms", time.Since(start).Milliseconds())
			return nil
		},
	}
}

func tokenOf(ranked []sampling.TokenProb, id int) string {
	for _, tp := range ranked {
		if tp.ID == id {
			return tp.Token
		}
	}
	return ""
}
