package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"jupexec/service/queue"
)

func queueFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "queue-file",
		Aliases: []string{"q"},
		Value:   "pending_trades.json",
		Usage:   "Path to the trade queue file",
		EnvVars: []string{"QUEUE_PATH"},
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func queueListCommand() *cli.Command {
	return &cli.Command{
		Name:    "list",
		Aliases: []string{"ls"},
		Usage:   "List queued trade commands",
		Flags: []cli.Flag{
			queueFlag(),
			&cli.BoolFlag{
				Name:    "pending",
				Aliases: []string{"p"},
				Usage:   "Only show unprocessed commands",
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output as JSON",
			},
		},
		Action: func(c *cli.Context) error {
			store := queue.NewStore(c.String("queue-file"), quietLogger())
			commands, err := store.Load()
			if err != nil {
				return fmt.Errorf("failed to load queue: %w", err)
			}

			if c.Bool("pending") {
				pending := commands[:0]
				for _, cmd := range commands {
					if !cmd.Processed {
						pending = append(pending, cmd)
					}
				}
				commands = pending
			}

			if c.Bool("json") {
				data, err := json.MarshalIndent(commands, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(data))
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "QUEUED\tTOKEN\tSOL\tPROCESSED\tOUTCOME")
			for _, cmd := range commands {
				outcome := "-"
				if cmd.Result != nil {
					if cmd.Result.Success {
						outcome = cmd.Result.Signature
					} else {
						outcome = cmd.Result.ErrorKind
					}
				}
				fmt.Fprintf(w, "%s\t%s\t%v\t%v\t%s\n",
					cmd.Timestamp.Format(time.RFC3339),
					cmd.TokenSymbol,
					cmd.SOLAmount,
					cmd.Processed,
					outcome,
				)
			}
			return w.Flush()
		},
	}
}

func queueAddCommand() *cli.Command {
	return &cli.Command{
		Name:      "add",
		Usage:     "Append a buy command to the queue",
		ArgsUsage: "TOKEN_SYMBOL TOKEN_ADDRESS",
		Flags: []cli.Flag{
			queueFlag(),
			&cli.Float64Flag{
				Name:    "sol-amount",
				Aliases: []string{"a"},
				Value:   0.1,
				Usage:   "SOL to spend on the buy",
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output as JSON",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 2 {
				return fmt.Errorf("token symbol and token address are required")
			}

			cmd := &queue.TradeCommand{
				Command:      queue.CommandBuy,
				Timestamp:    time.Now().UTC(),
				TokenSymbol:  c.Args().Get(0),
				TokenAddress: c.Args().Get(1),
				SOLAmount:    c.Float64("sol-amount"),
			}

			store := queue.NewStore(c.String("queue-file"), quietLogger())
			if err := store.Append(cmd); err != nil {
				return fmt.Errorf("failed to append command: %w", err)
			}

			if c.Bool("json") {
				data, _ := json.Marshal(cmd)
				fmt.Println(string(data))
			} else {
				fmt.Printf("✓ Command queued\n")
				fmt.Printf("  Token: %s (%s)\n", cmd.TokenSymbol, cmd.TokenAddress)
				fmt.Printf("  SOL: %v\n", cmd.SOLAmount)
			}
			return nil
		},
	}
}

func queuePruneCommand() *cli.Command {
	return &cli.Command{
		Name:  "prune",
		Usage: "Remove processed commands older than the retention window",
		Flags: []cli.Flag{
			queueFlag(),
			&cli.DurationFlag{
				Name:    "retention",
				Aliases: []string{"r"},
				Value:   time.Hour,
				Usage:   "Keep processed commands younger than this",
			},
		},
		Action: func(c *cli.Context) error {
			store := queue.NewStore(c.String("queue-file"), quietLogger())
			removed, err := store.Prune(c.Duration("retention"))
			if err != nil {
				return fmt.Errorf("failed to prune queue: %w", err)
			}
			fmt.Printf("✓ Pruned %d command(s)\n", removed)
			return nil
		},
	}
}
