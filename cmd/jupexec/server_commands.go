package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/urfave/cli/v2"
)

func serverFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "server",
		Aliases: []string{"s"},
		Value:   "http://localhost:8080",
		Usage:   "Executor daemon URL",
		EnvVars: []string{"JUPEXEC_SERVER_URL"},
	}
}

func httpClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Second}
}

func healthCommand() *cli.Command {
	return &cli.Command{
		Name:  "health",
		Usage: "Check daemon health",
		Flags: []cli.Flag{serverFlag()},
		Action: func(c *cli.Context) error {
			resp, err := httpClient().Get(c.String("server") + "/health")
			if err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
			}
			fmt.Println("✓ Healthy")
			return nil
		},
	}
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show executor lifecycle state",
		Flags: []cli.Flag{serverFlag()},
		Action: func(c *cli.Context) error {
			resp, err := httpClient().Get(c.String("server") + "/api/v1/status")
			if err != nil {
				return fmt.Errorf("status request failed: %w", err)
			}
			defer resp.Body.Close()

			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return err
			}
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("status request failed: %s", string(body))
			}

			var pretty map[string]any
			if err := json.Unmarshal(body, &pretty); err != nil {
				return err
			}
			out, _ := json.MarshalIndent(pretty, "", "  ")
			fmt.Println(string(out))
			return nil
		},
	}
}

func reconcileCommand() *cli.Command {
	return &cli.Command{
		Name:  "reconcile",
		Usage: "Trigger a wallet history reconciliation pass",
		Flags: []cli.Flag{serverFlag()},
		Action: func(c *cli.Context) error {
			resp, err := httpClient().Post(c.String("server")+"/api/v1/reconcile", "application/json", nil)
			if err != nil {
				return fmt.Errorf("reconcile request failed: %w", err)
			}
			defer resp.Body.Close()

			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return err
			}
			if resp.StatusCode != http.StatusAccepted {
				return fmt.Errorf("reconcile request failed: %s", string(body))
			}
			fmt.Println("✓ Reconciliation started")
			return nil
		},
	}
}

func liquidateCommand() *cli.Command {
	return &cli.Command{
		Name:      "liquidate",
		Usage:     "Sell the wallet's entire balance of a token back to SOL",
		ArgsUsage: "TOKEN_SYMBOL TOKEN_ADDRESS",
		Flags:     []cli.Flag{serverFlag()},
		Action: func(c *cli.Context) error {
			if c.NArg() < 2 {
				return fmt.Errorf("token symbol and token address are required")
			}

			payload, _ := json.Marshal(map[string]string{
				"token_symbol":  c.Args().Get(0),
				"token_address": c.Args().Get(1),
			})

			// Liquidation waits for on-chain confirmation; allow for the
			// full confirmation window.
			client := &http.Client{Timeout: 4 * time.Minute}
			resp, err := client.Post(
				c.String("server")+"/api/v1/liquidate",
				"application/json",
				bytes.NewReader(payload),
			)
			if err != nil {
				return fmt.Errorf("liquidation request failed: %w", err)
			}
			defer resp.Body.Close()

			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return err
			}
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("liquidation failed: %s", string(body))
			}

			var pretty map[string]any
			if err := json.Unmarshal(body, &pretty); err != nil {
				return err
			}
			out, _ := json.MarshalIndent(pretty, "", "  ")
			fmt.Println(string(out))
			return nil
		},
	}
}
