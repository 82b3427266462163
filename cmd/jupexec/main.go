package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	app := &cli.App{
		Name:  "jupexec",
		Usage: "Jupiter trade executor CLI",
		Description: `A command-line tool for managing and debugging the trade executor.

Use this CLI to inspect the trade queue, ledger and trade log, and to talk
to a running executor daemon.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Commands: []*cli.Command{
			{
				Name:  "queue",
				Usage: "Trade queue inspection and management commands",
				Subcommands: []*cli.Command{
					queueListCommand(),
					queueAddCommand(),
					queuePruneCommand(),
				},
			},
			{
				Name:  "ledger",
				Usage: "Wallet ledger inspection commands",
				Subcommands: []*cli.Command{
					ledgerShowCommand(),
					ledgerStatsCommand(),
				},
			},
			{
				Name:  "log",
				Usage: "Trade log inspection commands",
				Subcommands: []*cli.Command{
					logListCommand(),
				},
			},
			{
				Name:  "server",
				Usage: "Commands against a running executor daemon",
				Subcommands: []*cli.Command{
					healthCommand(),
					statusCommand(),
					reconcileCommand(),
					liquidateCommand(),
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
