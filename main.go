package main

import (
	"fmt"
	"log/slog"
	"os"

	cmdcalculate "gcp-billing-cost/command/calculate"
	cmdcollect "gcp-billing-cost/command/collect"
	cmdserve "gcp-billing-cost/command/serve"
	cmdtasks "gcp-billing-cost/command/tasks"
	cconfig "gcp-billing-cost/connectors/config"
	"gcp-billing-cost/domain/config"
)

// Google Cloud billing cost collector.
// Usage:
//   gcp-billing-cost serve [-addr :8080] [-data ./data]
//   gcp-billing-cost tasks -secret secret.json [-options options.json] [-start 2024-01]
//   gcp-billing-cost collect -secret secret.json [-options options.json] [-out data/costs.csv]
//   gcp-billing-cost calculate [-data ./data]
// Notes:
// - BigQuery tasks read the billing export table gcp_billing_export_v1_<account>, one task per project.
// - Storage tasks read monthly CSV exports under <organization>/<sub billing account>/YYYY/MM/ and
//   convert subtotals to USD with the bucket's exchange rate table.

var commands = map[string]func(config.Config, []string) error{
	"serve":     cmdserve.Run,
	"tasks":     cmdtasks.Run,
	"collect":   cmdcollect.Run,
	"calculate": cmdcalculate.Run,
}

func main() {
	args := os.Args
	// Initialize slog logger (text to stderr) then apply the log section of the config file
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})
	slog.SetDefault(slog.New(h))
	cfg, err := cconfig.Load(cconfig.Path())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	slog.SetDefault(cconfig.NewLogger(cfg.Log, os.Stderr))

	if len(args) > 1 {
		if run, ok := commands[args[1]]; ok {
			rest := append([]string{}, args[2:]...)
			if err := run(cfg, rest); err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			return
		}
	}
	fmt.Fprintln(os.Stderr, "usage: gcp-billing-cost serve [-addr :8080] [-data ./data] | tasks -secret <file> [-options <file>] [-start <YYYY-MM>] | collect -secret <file> [-out <csv>] | calculate [-data ./data]\nENV: set CONFIG_PATH to point to a YAML config file (default ./config.yml)")
	os.Exit(2)
}
