package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"tickerwatch/pkg/config"
	"tickerwatch/pkg/harvest"
	"tickerwatch/pkg/logger"
	"tickerwatch/pkg/metrics"
	"tickerwatch/pkg/renderer"
	"tickerwatch/pkg/report"
	"tickerwatch/pkg/scheduler"
	"tickerwatch/pkg/scroll"
	"tickerwatch/pkg/ticker"
)

// harvestFlags are shared by the commands that visit sources
type harvestFlags struct {
	interval      time.Duration
	concurrency   int
	failurePolicy string
	browser       string
	headless      bool
	format        string
	metricsAddr   string
}

func (f *harvestFlags) bind(cmd *cobra.Command, withInterval bool) {
	if withInterval {
		cmd.Flags().DurationVarP(&f.interval, "interval", "i", 0, "pause between the end of one run and the start of the next (default 1h)")
	}
	cmd.Flags().IntVarP(&f.concurrency, "concurrency", "n", 0, "number of sources harvested at once (default 1)")
	cmd.Flags().StringVar(&f.failurePolicy, "failure-policy", "", "what a failed source does to the run: skip or abort")
	cmd.Flags().StringVar(&f.browser, "browser", "", "browser engine: chromium, firefox or webkit")
	cmd.Flags().BoolVar(&f.headless, "headless", true, "run the browser without a window")
	cmd.Flags().StringVarP(&f.format, "format", "f", "", "report format: log or table")
	cmd.Flags().StringVar(&f.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
}

// collect builds the override map for config.Load. Only flags the user set
// are included so file and environment values survive.
func (f *harvestFlags) collect(cmd *cobra.Command, args []string) map[string]interface{} {
	flags := globalFlags()
	if len(args) > 0 {
		flags["sources"] = args
	}
	changed := cmd.Flags().Changed
	if changed("interval") {
		flags["interval"] = f.interval
	}
	if changed("concurrency") {
		flags["concurrency"] = f.concurrency
	}
	if changed("failure-policy") {
		flags["failure-policy"] = f.failurePolicy
	}
	if changed("browser") {
		flags["browser"] = f.browser
	}
	if changed("headless") {
		flags["headless"] = f.headless
	}
	if changed("format") {
		flags["format"] = f.format
	}
	if changed("metrics-addr") {
		flags["metrics-addr"] = f.metricsAddr
	}
	return flags
}

// app is the wired pipeline behind run and once
type app struct {
	cfg       *config.Config
	log       logger.Logger
	launcher  renderer.Launcher
	harvester *harvest.Harvester
	scheduler *scheduler.Scheduler
	server    *metrics.Server
}

func newApp(flags map[string]interface{}, withMetrics bool) (*app, error) {
	cfg, err := config.Load(configFile, flags)
	if err != nil {
		return nil, err
	}

	if err := logger.Initialize(&cfg.Logging); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	log := logger.GetLogger()

	extractor, err := ticker.NewExtractor(cfg.Extract.Pattern)
	if err != nil {
		return nil, err
	}

	launcher := renderer.NewPlaywrightLauncher(cfg.Renderer, log)
	detector := scroll.NewDetector(scroll.OptionsFromConfig(cfg.Scroll), log)
	h := harvest.New(launcher, detector, extractor, harvest.OptionsFromConfig(cfg), log)

	reporter, err := report.New(cfg.Report.Format, log, os.Stdout)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, log: log, launcher: launcher, harvester: h}

	if withMetrics && cfg.Metrics.Enabled {
		recorder := metrics.New()
		h.Observe(recorder.ObserveHarvest)
		a.server = metrics.NewServer(cfg.Metrics.Address, cfg.Metrics.Path, recorder, log)
		reporter = report.Multi{reporter, recorder, a.server}
	}

	a.scheduler = scheduler.New(h, reporter, scheduler.OptionsFromConfig(cfg), log)
	return a, nil
}

// Close shuts the browser down
func (a *app) Close() {
	if err := a.launcher.Close(); err != nil {
		a.log.WithError(err).Warn("Failed to close renderer")
	}
}
