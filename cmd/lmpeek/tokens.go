package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/urfave/cli/v3"
)

func encodeCmd() *cli.Command {
	return &cli.Command{
		Name:      "encode",
		Usage:     "Print the token ids of text",
		ArgsUsage: "<text>",
		Flags:     concat(loggingFlags(), modelFlags(), workerFlags()),
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, _, err := prepare(ctx, c)
			if err != nil {
				return err
			}
			text := strings.Join(c.Args().Slice(), " ")
			if text == "" {
				return cli.Exit("error: text is required", 2)
			}
			m, err := openModel(ctx)
			if err != nil {
				return err
			}
			defer m.Dispose()

			ids, err := m.Encode(ctx, text)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: encode: %v", err), 1)
			}
			fmt.Println(joinInts(ids))
			return nil
		},
	}
}

func decodeCmd() *cli.Command {
	return &cli.Command{
		Name:      "decode",
		Usage:     "Print the text of token ids",
		ArgsUsage: "<id> [id...]",
		Flags:     concat(loggingFlags(), modelFlags(), workerFlags()),
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, _, err := prepare(ctx, c)
			if err != nil {
				return err
			}
			ids, err := parseInts(c.Args().Slice())
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 2)
			}
			m, err := openModel(ctx)
			if err != nil {
				return err
			}
			defer m.Dispose()

			text, err := m.Decode(ctx, ids)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: decode: %v", err), 1)
			}
			fmt.Println(text)
			return nil
		},
	}
}

// parseInts accepts ids as separate arguments or comma separated.
func parseInts(args []string) ([]int, error) {
	var out []int
	for _, arg := range args {
		for _, f := range strings.FieldsFunc(arg, func(r rune) bool { return r == ',' || r == ' ' }) {
			n, err := strconv.Atoi(f)
			if err != nil {
				return nil, fmt.Errorf("invalid token id %q", f)
			}
			out = append(out, n)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("at least one token id is required")
	}
	return out, nil
}

func joinInts(ids []int) string {
	var b strings.Builder
	for i, id := range ids {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(strconv.Itoa(id))
	}
	return b.String()
}
