// Package main provides matchctl, a tool for scoring and ranking profiles
// stored in JSON or YAML files or in the profile database, and for load
// testing a running matcher.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "matchctl",
		Short: "Score and rank meetmates profiles offline",
		Long: `Score and rank meetmates profiles without a running matcher.

Profiles are read from .json, .yaml or .yml files. A missing radius_km
defaults to 10.

Examples:
  matchctl score me.yaml them.yaml
  matchctl rank me.yaml pool.yaml --limit 10
  matchctl rank me.yaml --db postgres://localhost/meetmates --json
  matchctl geohash 60.1699 24.9384 --precision 6
  matchctl geohash --decode ud9wr
  matchctl loadtest --nats nats://localhost:4222 --requests 5000`,
		SilenceUsage: true,
	}

	cmd.AddCommand(scoreCmd())
	cmd.AddCommand(rankCmd())
	cmd.AddCommand(geohashCmd())
	cmd.AddCommand(loadtestCmd())

	return cmd
}
