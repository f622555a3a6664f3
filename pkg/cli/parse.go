package cli

import (
	"context"

	"github.com/m-mizutani/kestrel/pkg/parser"
	"github.com/urfave/cli/v3"
)

func parseCommand() *cli.Command {
	var (
		cfg   config
		input string
	)

	flags := []cli.Flag{inputFlag(&input)}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "parse",
		Usage: "Parse model output and print the recovered tags and response as JSON",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, err := cfg.setup(ctx)
			if err != nil {
				return err
			}

			text, err := readInput(c, input)
			if err != nil {
				return err
			}

			out, err := parser.Parse(text)
			if err != nil {
				return err
			}

			return writeJSON(c.Root().Writer, out)
		},
	}
}
