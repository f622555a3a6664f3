package cli

import (
	"context"
	"fmt"

	"github.com/m-mizutani/kestrel/pkg/parser"
	"github.com/m-mizutani/kestrel/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func dispatchCommand() *cli.Command {
	var (
		cfg    config
		input  string
		asJSON bool
	)

	flags := []cli.Flag{
		inputFlag(&input),
		&cli.BoolFlag{
			Name:        "json",
			Usage:       "Print the batch result as JSON",
			Destination: &asJSON,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)
	flags = append(flags, storeFlags(&cfg)...)
	flags = append(flags, sandboxFlags(&cfg)...)

	return &cli.Command{
		Name:  "dispatch",
		Usage: "Parse model output and execute its tags in order",
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

			dispatcher, cleanup, err := cfg.newDispatcher(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			result := dispatcher.DispatchAll(ctx, out.Tags)
			logging.From(ctx).Debug("dispatched", "tags", len(out.Tags))

			if asJSON {
				return writeJSON(c.Root().Writer, struct {
					Response      *string `json:"response,omitempty"`
					Informational string  `json:"informational,omitempty"`
					Deferrable    string  `json:"deferrable,omitempty"`
				}{out.Response, result.Informational, result.Deferrable})
			}

			w := c.Root().Writer
			if out.Response != nil {
				fmt.Fprintf(w, "== response ==\n%s\n", *out.Response)
			}
			if result.Informational != "" {
				fmt.Fprintf(w, "== informational ==\n%s\n", result.Informational)
			}
			if result.Deferrable != "" {
				fmt.Fprintf(w, "== deferrable ==\n%s\n", result.Deferrable)
			}
			return nil
		},
	}
}
