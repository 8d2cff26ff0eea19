// Package metrics exposes harvest and run statistics to Prometheus.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	errs "tickerwatch/pkg/errors"
	"tickerwatch/pkg/harvest"
	"tickerwatch/pkg/report"
)

// Recorder collects tickerwatch metrics on its own registry
type Recorder struct {
	registry *prometheus.Registry

	harvests        *prometheus.CounterVec
	harvestDuration *prometheus.HistogramVec
	scrollCycles    prometheus.Histogram
	articles        *prometheus.GaugeVec
	runs            prometheus.Counter
	runSources      *prometheus.GaugeVec
	lastRun         prometheus.Gauge
	mentions        *prometheus.GaugeVec

	mu          sync.Mutex
	lastSymbols map[string]struct{}
}

// New creates a Recorder with a fresh registry
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		harvests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tickerwatch_harvests_total",
				Help: "Source harvests by result (ok or an error type)",
			},
			[]string{"source", "result"},
		),
		harvestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tickerwatch_harvest_duration_seconds",
				Help:    "Time spent harvesting one source",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"source"},
		),
		scrollCycles: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tickerwatch_scroll_cycles",
				Help:    "Scroll cycles needed before a feed stopped growing",
				Buckets: prometheus.LinearBuckets(1, 5, 10),
			},
		),
		articles: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tickerwatch_articles",
				Help: "Articles found on the last harvest of a source",
			},
			[]string{"source"},
		),
		runs: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "tickerwatch_runs_total",
				Help: "Completed scheduled runs",
			},
		),
		runSources: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tickerwatch_run_sources",
				Help: "Sources in the last completed run by state",
			},
			[]string{"state"},
		),
		lastRun: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "tickerwatch_last_run_timestamp_seconds",
				Help: "Start time of the last completed run",
			},
		),
		mentions: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tickerwatch_mentions",
				Help: "Mentions per symbol in the last completed run",
			},
			[]string{"symbol"},
		),
		lastSymbols: make(map[string]struct{}),
	}
}

// Registry returns the registry the metrics are registered on
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveHarvest records one finished source visit
func (r *Recorder) ObserveHarvest(rep harvest.Report) {
	source := string(rep.Source)
	result := "ok"
	if rep.Err != nil {
		result = string(errs.TypeOf(rep.Err))
	}

	r.harvests.WithLabelValues(source, result).Inc()
	r.harvestDuration.WithLabelValues(source).Observe(rep.Elapsed.Seconds())
	if rep.Scroll.Cycles > 0 {
		r.scrollCycles.Observe(float64(rep.Scroll.Cycles))
	}
	if rep.Err == nil {
		r.articles.WithLabelValues(source).Set(float64(rep.Articles))
	}
}

// Report publishes a finished run. Symbols absent from this run are removed
// so the gauge always reflects the latest window only.
func (r *Recorder) Report(s report.Summary) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for symbol := range r.lastSymbols {
		if _, ok := s.Tally[symbol]; !ok {
			r.mentions.DeleteLabelValues(symbol)
			delete(r.lastSymbols, symbol)
		}
	}
	for symbol, n := range s.Tally {
		r.mentions.WithLabelValues(symbol).Set(float64(n))
		r.lastSymbols[symbol] = struct{}{}
	}

	r.runs.Inc()
	r.lastRun.Set(float64(s.Start.Unix()))
	r.runSources.WithLabelValues("harvested").Set(float64(s.Sources - len(s.Failures)))
	r.runSources.WithLabelValues("failed").Set(float64(len(s.Failures)))
	return nil
}
