package main

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/sells-group/intel-cli/internal/config"
	"github.com/sells-group/intel-cli/internal/cost"
	"github.com/sells-group/intel-cli/internal/ratelimit"
)

var limitsOutput string

var limitsCmd = &cobra.Command{
	Use:   "limits",
	Short: "Show effective provider rate limits, budgets and pricing",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("limits"); err != nil {
			return err
		}
		if limitsOutput == "table" {
			return renderLimits(cmd.OutOrStdout(), cfg)
		}
		return writeOutput(cmd.OutOrStdout(), limitsOutput, limitRows(cfg))
	},
}

type limitRow struct {
	Provider   string           `json:"provider" yaml:"provider"`
	Limits     ratelimit.Config `json:"limits" yaml:"limits"`
	PerRequest float64          `json:"per_request" yaml:"per_request"`
	RetryAfter string           `json:"retry_after" yaml:"retry_after"`
}

func limitRows(c *config.Config) []limitRow {
	calc := cost.NewCalculator(c.Pricing)
	limiter := ratelimit.NewLimiter()

	rows := make([]limitRow, 0, len(c.Providers))
	for _, name := range c.ProviderNames() {
		l := c.Providers[name]
		_ = limiter.SetProviderLimits(name, l)
		rows = append(rows, limitRow{
			Provider:   name,
			Limits:     l,
			PerRequest: calc.Rate(name).PerRequest,
			RetryAfter: limiter.Bucket(name).RetryAfter().String(),
		})
	}
	return rows
}

// renderLimits prints one row per configured provider.
func renderLimits(w io.Writer, c *config.Config) error {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Provider", "Per min", "Per hour", "Per day", "Daily budget", "Per request", "Token wait"})

	for _, r := range limitRows(c) {
		budget := "unlimited"
		if r.Limits.BudgetLimit > 0 {
			budget = fmt.Sprintf("$%.2f", r.Limits.BudgetLimit)
		}
		t.AppendRow(table.Row{
			r.Provider,
			r.Limits.RequestsPerMinute,
			r.Limits.RequestsPerHour,
			r.Limits.RequestsPerDay,
			budget,
			fmt.Sprintf("$%.4f", r.PerRequest),
			r.RetryAfter,
		})
	}
	t.AppendFooter(table.Row{"", "", "", "", "", "", fmt.Sprintf("%d providers", len(c.Providers))})
	t.Render()
	return nil
}

func init() {
	limitsCmd.Flags().StringVarP(&limitsOutput, "output", "o", "table", "output format: table, json or yaml")
	rootCmd.AddCommand(limitsCmd)
}
