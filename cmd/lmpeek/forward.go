package main

import (
	"context"
	"fmt"
	"io"
	"os"

	json "github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/lmpeek/internal/engine"
	"github.com/samcharles93/lmpeek/internal/model"
	"github.com/samcharles93/lmpeek/pkg/lmpeek"
)

func forwardCmd() *cli.Command {
	var (
		bos     bool
		asJSON  bool
		predict int64
	)
	return &cli.Command{
		Name:      "forward",
		Usage:     "Run inputs through the model and report every activation",
		ArgsUsage: "<text> [text...]",
		Flags: concat(loggingFlags(), modelFlags(), workerFlags(), samplingFlags(), []cli.Flag{
			&cli.BoolFlag{
				Name:        "bos",
				Usage:       "prefix each input with the beginning-of-sequence token",
				Destination: &bos,
			},
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "print the full activation tree as JSON",
				Destination: &asJSON,
			},
			&cli.Int64Flag{
				Name:        "predict",
				Usage:       "number of next-token predictions to show per input",
				Value:       5,
				Destination: &predict,
			},
		}),
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, _, err := prepare(ctx, c)
			if err != nil {
				return err
			}
			inputs := c.Args().Slice()
			if len(inputs) == 0 {
				return cli.Exit("error: at least one input is required", 2)
			}
			m, err := openModel(ctx)
			if err != nil {
				return err
			}
			defer m.Dispose()

			var opts []lmpeek.ForwardOption
			if bos {
				opts = append(opts, lmpeek.WithBOS())
			}
			out, err := m.ForwardBatch(ctx, inputs, opts...)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: forward: %v", err), 1)
			}
			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				return enc.Encode(out)
			}

			printSummary(os.Stdout, out)
			if predict <= 0 {
				return nil
			}
			for b, text := range inputs {
				logits, err := out.LastLogits(b, -1)
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: %v", err), 1)
				}
				ranked, err := m.Sample(ctx, logits, samplingOptions())
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: sample: %v", err), 1)
				}
				fmt.Printf("\nnext token after %q:\n", text)
				printRanked(os.Stdout, ranked, int(predict))
			}
			return nil
		},
	}
}

func printSummary(w io.Writer, out *model.Outputs) {
	_, _ = fmt.Fprintf(w, "embeddings: tok_emb %s  pos_emb %s  input_emb %s\n",
		shape(out.Embeddings.TokEmb), shape(out.Embeddings.PosEmb), shape(out.Embeddings.InputEmb))
	for i, l := range out.Layers {
		exported := 0
		for _, h := range l.AttnHeads {
			if h.AttnWeight != nil {
				exported++
			}
		}
		_, _ = fmt.Fprintf(w, "layer %2d: block_input %s  attn_output %s  mlp_activation %s  heads %d (%d with attention weights)\n",
			i, shape(l.BlockInput), shape(l.AttnOutput), shape(l.MLP.Activation), len(l.AttnHeads), exported)
	}
	_, _ = fmt.Fprintf(w, "final: ln_f_output %s  logits %s\n", shape(out.Final.LnFOutput), shape(out.Final.Logits))
}

func shape(t *engine.Tensor) string {
	if t == nil {
		return "-"
	}
	return fmt.Sprint(t.Dims)
}
