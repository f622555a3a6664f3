package cli

import (
	"context"

	"github.com/m-mizutani/kestrel/pkg/tool"
	"github.com/urfave/cli/v3"
)

func tagsCommand() *cli.Command {
	return &cli.Command{
		Name:  "tags",
		Usage: "Print the JSON Schema of every tool tag",
		Action: func(ctx context.Context, c *cli.Command) error {
			return writeJSON(c.Root().Writer, tool.Schemas())
		},
	}
}
