package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/itchyny/gojq"
	"github.com/urfave/cli/v2"

	"jupexec/service/ledger"
)

func ledgerFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "ledger-file",
		Aliases: []string{"l"},
		Value:   "wallet_stats.json",
		Usage:   "Path to the wallet ledger file",
		EnvVars: []string{"LEDGER_PATH"},
	}
}

func loadLedger(path string) (*ledger.WalletLedger, error) {
	store := ledger.NewStore(path, quietLogger())
	l, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger: %w", err)
	}
	if l == nil {
		return nil, fmt.Errorf("no ledger at %s", path)
	}
	return l, nil
}

func ledgerShowCommand() *cli.Command {
	return &cli.Command{
		Name:  "show",
		Usage: "Show the full wallet ledger",
		Flags: []cli.Flag{
			ledgerFlag(),
			&cli.StringFlag{
				Name:    "filter",
				Aliases: []string{"f"},
				Usage:   "jq expression applied to the ledger JSON (e.g. '.performance')",
			},
		},
		Action: func(c *cli.Context) error {
			l, err := loadLedger(c.String("ledger-file"))
			if err != nil {
				return err
			}

			data, err := json.Marshal(l)
			if err != nil {
				return err
			}

			if filter := c.String("filter"); filter != "" {
				return applyJQ(data, filter)
			}

			var pretty map[string]any
			if err := json.Unmarshal(data, &pretty); err != nil {
				return err
			}
			out, err := json.MarshalIndent(pretty, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
}

func ledgerStatsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Show derived performance statistics",
		Flags: []cli.Flag{
			ledgerFlag(),
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output as JSON",
			},
		},
		Action: func(c *cli.Context) error {
			l, err := loadLedger(c.String("ledger-file"))
			if err != nil {
				return err
			}

			if c.Bool("json") {
				data, _ := json.MarshalIndent(l.Performance, "", "  ")
				fmt.Println(string(data))
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "Wallet:\t%s\n", l.WalletAddress)
			fmt.Fprintf(w, "Acquisitions:\t%d\n", l.Performance.AcquisitionCount)
			fmt.Fprintf(w, "Total SOL spent:\t%v\n", l.Performance.TotalSOLSpent)
			fmt.Fprintf(w, "Total tokens acquired:\t%v\n", l.Performance.TotalTokensAcquired)
			fmt.Fprintf(w, "Average entry price:\t%v\n", l.Performance.AverageEntryPrice)
			fmt.Fprintf(w, "Initial SOL balance:\t%v\n", l.InitialSOLBalance)
			fmt.Fprintf(w, "Current SOL balance:\t%v\n", l.CurrentPosition.SOLBalance)
			fmt.Fprintf(w, "Current token balance:\t%v\n", l.CurrentPosition.TokenBalance)
			if !l.LastAnalysisAt.IsZero() {
				fmt.Fprintf(w, "Last reconciled:\t%s\n", l.LastAnalysisAt.Format(time.RFC3339))
			}
			fmt.Fprintf(w, "Analysis complete:\t%v\n", l.AnalysisComplete)
			return w.Flush()
		},
	}
}

// applyJQ runs a jq expression over JSON data and prints each result.
func applyJQ(data []byte, filter string) error {
	query, err := gojq.Parse(filter)
	if err != nil {
		return fmt.Errorf("failed to parse jq filter %q: %w", filter, err)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return fmt.Errorf("failed to compile jq filter %q: %w", filter, err)
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}

	iter := code.Run(doc)
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := v.(error); isErr {
			return err
		}
		out, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
	}
	return nil
}
