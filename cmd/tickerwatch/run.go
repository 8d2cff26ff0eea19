package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"tickerwatch/pkg/ui"
)

var runFlags harvestFlags

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run [source...]",
	Short: "Harvest every source on a fixed interval until interrupted",
	Long: `Harvest all configured sources, report the mention counts, wait for the
interval and start again with a fresh tally. Sources given as arguments
replace the configured list.

A source that fails is skipped by default. With --failure-policy abort the
first failure ends the run without a report and the next run starts on
schedule.

Press Ctrl+C to stop; an in-flight run is abandoned without a report.`,
	Example: `  # Watch two profiles every 30 minutes
  tickerwatch run jimcramer unusual_whales --interval 30m

  # Harvest three sources at once and print reports as tables
  tickerwatch run -n 3 --format table

  # Expose Prometheus metrics while running
  tickerwatch run --metrics-addr :9090`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runFlags.bind(runCmd, true)
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, stop := withSignals(cmd.Context())
	defer stop()

	a, err := newApp(runFlags.collect(cmd, args), true)
	if err != nil {
		return err
	}
	defer a.Close()

	ui.PrintLogo()
	printPlan(a)

	if a.server != nil {
		go func() {
			if err := a.server.Serve(ctx); err != nil {
				a.log.WithError(err).Error("Metrics server stopped")
			}
		}()
	}

	err = a.scheduler.Run(ctx)
	ui.PrintSuccess("Stopped")
	return err
}

func printPlan(a *app) {
	if len(a.cfg.Sources) == 0 {
		ui.PrintWarning("No sources configured", "every run will report nothing")
		return
	}
	ui.PrintInfo("Sources", strings.Join(a.cfg.Sources, ", "))
	ui.PrintInfo("Interval", a.cfg.Schedule.Interval.String())
	if a.server != nil {
		ui.PrintInfo("Metrics", a.cfg.Metrics.Address+a.cfg.Metrics.Path)
	}
}

// withSignals is shared by commands that only run once
func withSignals(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}
