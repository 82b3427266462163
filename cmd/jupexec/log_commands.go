package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"jupexec/service/queue"
)

func logListCommand() *cli.Command {
	return &cli.Command{
		Name:    "list",
		Aliases: []string{"ls"},
		Usage:   "List trade log entries",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-file",
				Value:   "trade_log.json",
				Usage:   "Path to the trade log file",
				EnvVars: []string{"TRADE_LOG_PATH"},
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output as JSON",
			},
		},
		Action: func(c *cli.Context) error {
			tradeLog := queue.NewTradeLog(c.String("log-file"))
			entries, err := tradeLog.Read()
			if err != nil {
				return fmt.Errorf("failed to read trade log: %w", err)
			}

			if c.Bool("json") {
				data, err := json.MarshalIndent(entries, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(data))
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tLOGGED\tTOKEN\tSOL\tSUCCESS\tOUTCOME")
			for _, entry := range entries {
				outcome := "-"
				if entry.Result != nil {
					if entry.Result.Success {
						outcome = entry.Result.Signature
					} else {
						outcome = entry.Result.ErrorKind
					}
				}
				token, sol := "-", "-"
				if entry.Command != nil {
					token = entry.Command.TokenSymbol
					sol = fmt.Sprintf("%v", entry.Command.SOLAmount)
				}
				success := entry.Result != nil && entry.Result.Success
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%v\t%s\n",
					entry.ID,
					entry.LoggedAt.Format(time.RFC3339),
					token,
					sol,
					success,
					outcome,
				)
			}
			return w.Flush()
		},
	}
}
