package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kestrel/pkg/memory"
	"github.com/m-mizutani/kestrel/pkg/model"
	"github.com/urfave/cli/v3"
)

func memoryCommand() *cli.Command {
	return &cli.Command{
		Name:  "memory",
		Usage: "Operate on long-term memory directly",
		Commands: []*cli.Command{
			memorySaveCommand(),
			memoryLoadCommand(),
			memoryDeleteCommand(),
		},
	}
}

func memoryFlags(cfg *config) []cli.Flag {
	var flags []cli.Flag
	flags = append(flags, globalFlags(cfg)...)
	flags = append(flags, llmFlags(cfg)...)
	flags = append(flags, storeFlags(cfg)...)
	return flags
}

// openStore is newMemoryStore that insists on an embedding provider
func (cfg *config) openStore(ctx context.Context) (*memory.Store, func(), error) {
	store, cleanup, err := cfg.newMemoryStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	if store == nil {
		return nil, nil, goerr.New("embedding provider is required; set gemini-project or openai-api-key")
	}
	return store, cleanup, nil
}

func memorySaveCommand() *cli.Command {
	var (
		cfg        config
		importance float64
	)

	flags := []cli.Flag{
		&cli.FloatFlag{
			Name:        "importance",
			Usage:       "Importance of the memory, typically between 0 and 1",
			Value:       0.5,
			Destination: &importance,
		},
	}
	flags = append(flags, memoryFlags(&cfg)...)

	return &cli.Command{
		Name:      "save",
		Usage:     "Save a memory",
		ArgsUsage: "<content>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, err := cfg.setup(ctx)
			if err != nil {
				return err
			}

			content := strings.Join(c.Args().Slice(), " ")
			if content == "" {
				return goerr.New("content is required")
			}

			store, cleanup, err := cfg.openStore(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			mem, err := store.Save(ctx, content, importance)
			if err != nil {
				return err
			}

			fmt.Fprintln(c.Root().Writer, mem.ID)
			return nil
		},
	}
}

func memoryLoadCommand() *cli.Command {
	var (
		cfg    config
		sortBy string
		limit  int64
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "sort",
			Usage:       "Ranking (relevance, date, combined)",
			Value:       string(memory.DefaultSort),
			Destination: &sortBy,
		},
		&cli.IntFlag{
			Name:        "limit",
			Usage:       "Maximum number of memories",
			Value:       memory.DefaultLimit,
			Destination: &limit,
		},
	}
	flags = append(flags, memoryFlags(&cfg)...)

	return &cli.Command{
		Name:      "load",
		Usage:     "Print the memories most related to a query",
		ArgsUsage: "<query>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, err := cfg.setup(ctx)
			if err != nil {
				return err
			}

			mode, err := memory.ParseSortMode(sortBy)
			if err != nil {
				return err
			}

			store, cleanup, err := cfg.openStore(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			out, err := store.Load(ctx, strings.Join(c.Args().Slice(), " "), mode, int(limit))
			if err != nil {
				return err
			}

			fmt.Fprintln(c.Root().Writer, out)
			return nil
		},
	}
}

func memoryDeleteCommand() *cli.Command {
	var cfg config

	return &cli.Command{
		Name:      "delete",
		Usage:     "Delete a memory by id",
		ArgsUsage: "<id>",
		Flags:     memoryFlags(&cfg),
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, err := cfg.setup(ctx)
			if err != nil {
				return err
			}

			id := c.Args().First()
			if id == "" {
				return goerr.New("memory id is required")
			}

			store, cleanup, err := cfg.openStore(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			found, err := store.Delete(ctx, model.MemoryID(id))
			if err != nil {
				return err
			}
			if !found {
				return goerr.New("memory not found", goerr.V("id", id), goerr.T(model.ErrTagNotFound))
			}

			fmt.Fprintf(c.Root().Writer, "deleted %s\n", id)
			return nil
		},
	}
}
