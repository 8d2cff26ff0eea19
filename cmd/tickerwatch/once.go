package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"tickerwatch/pkg/ui"
)

var onceFlags harvestFlags

// onceCmd represents the once command
var onceCmd = &cobra.Command{
	Use:   "once [source...]",
	Short: "Harvest every source a single time and report",
	Long: `Perform one run over all sources, print the report and exit.

The exit status is non-zero when the run was aborted or interrupted, which
makes the command usable from cron or CI jobs.`,
	Example: `  tickerwatch once wallstreetbets --format table
  tickerwatch once a b c --failure-policy abort`,
	RunE: runOnce,
}

func init() {
	rootCmd.AddCommand(onceCmd)
	onceFlags.bind(onceCmd, false)
}

func runOnce(cmd *cobra.Command, args []string) error {
	ctx, stop := withSignals(cmd.Context())
	defer stop()

	a, err := newApp(onceFlags.collect(cmd, args), false)
	if err != nil {
		return err
	}
	defer a.Close()

	printPlan(a)

	run, err := a.scheduler.RunOnce(ctx)
	if err != nil {
		return err
	}
	if n := len(run.Failures); n > 0 {
		ui.PrintWarning(fmt.Sprintf("%d of %d sources failed", n, len(a.cfg.Sources)))
	}
	return nil
}
