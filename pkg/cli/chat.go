package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/chzyer/readline"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kestrel/pkg/usecase/agent"
	"github.com/m-mizutani/kestrel/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func chatCommand() *cli.Command {
	var (
		cfg           config
		maxIterations int64
	)

	flags := []cli.Flag{
		&cli.IntFlag{
			Name:        "max-iterations",
			Usage:       "Maximum model calls per user message (0 uses the config file or the default)",
			Sources:     cli.EnvVars("KESTREL_MAX_ITERATIONS"),
			Destination: &maxIterations,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)
	flags = append(flags, storeFlags(&cfg)...)
	flags = append(flags, sandboxFlags(&cfg)...)

	return &cli.Command{
		Name:  "chat",
		Usage: "Talk to the agent interactively",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, err := cfg.setup(ctx)
			if err != nil {
				return err
			}

			completer, err := cfg.newCompleter(ctx)
			if err != nil {
				return err
			}

			dispatcher, cleanup, err := cfg.newDispatcher(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			systemPrompt, err := cfg.systemPrompt(ctx)
			if err != nil {
				return err
			}

			iterations := int(maxIterations)
			if iterations == 0 {
				iterations = cfg.fileConf().Agent.MaxIterations
			}

			session := agent.New(agent.NewInput{
				Completer:     completer,
				Dispatcher:    dispatcher,
				SystemPrompt:  systemPrompt,
				MaxIterations: iterations,
			})

			rl, err := readline.New("> ")
			if err != nil {
				return goerr.Wrap(err, "failed to initialize readline")
			}
			defer rl.Close()

			w := c.Root().Writer
			fmt.Fprintf(w, "Chat session started. Type 'exit' to quit.\n")

			for {
				line, err := rl.Readline()
				if errors.Is(err, readline.ErrInterrupt) {
					if line == "" {
						break
					}
					continue
				}
				if errors.Is(err, io.EOF) {
					break
				}
				if err != nil {
					return goerr.Wrap(err, "failed to read input")
				}

				message := strings.TrimSpace(line)
				if message == "exit" {
					break
				}
				if message == "" {
					continue
				}

				sp := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
				sp.Suffix = " thinking..."
				sp.Start()
				reply, err := session.Send(ctx, message)
				sp.Stop()

				if err != nil {
					logging.From(ctx).Error("failed to send message", "error", err)
					fmt.Fprintf(w, "error: %s\n", err.Error())
					continue
				}

				if reply.Response != "" {
					fmt.Fprintf(w, "%s\n", reply.Response)
				}
				if reply.Exhausted {
					fmt.Fprintf(w, "(stopped after %d model calls)\n", reply.Iterations)
				}
			}

			fmt.Fprintf(w, "\nChat session completed\n")
			return nil
		},
	}
}

// systemPrompt reads the main core prompt when it is an editable prompt
func (cfg *config) systemPrompt(ctx context.Context) (string, error) {
	prompts := cfg.newCorePrompts()
	if !slices.Contains(prompts.Names(), "main") {
		return "", nil
	}
	return prompts.Read(ctx, "main")
}
