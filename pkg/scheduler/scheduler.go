// Package scheduler runs periodic harvests over every configured source and
// reports a running mention count per symbol for each run.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"tickerwatch/internal/pool"
	"tickerwatch/pkg/config"
	errs "tickerwatch/pkg/errors"
	"tickerwatch/pkg/harvest"
	"tickerwatch/pkg/logger"
	"tickerwatch/pkg/report"
	"tickerwatch/pkg/retry"
	"tickerwatch/pkg/ticker"
)

// Harvester turns one source into symbol counts
type Harvester interface {
	Harvest(ctx context.Context, source harvest.Source) (ticker.Counts, error)
}

// Run is the state of one scheduled run. A fresh Run is created for every
// trigger; its Start never changes and its Tally only grows.
type Run struct {
	Number   int
	Start    time.Time
	Tally    ticker.Counts
	Failures []report.Failure
}

func newRun(number int, start time.Time) *Run {
	return &Run{Number: number, Start: start, Tally: make(ticker.Counts)}
}

// merge adds a harvest result to the tally
func (r *Run) merge(counts ticker.Counts) {
	r.Tally.Merge(counts)
}

// ElapsedMinutes is the run age at now, rounded to the nearest minute
func (r *Run) ElapsedMinutes(now time.Time) int {
	return int(math.Round(float64(now.Sub(r.Start)) / float64(time.Minute)))
}

// Options configures a Scheduler
type Options struct {
	Sources       []harvest.Source
	Interval      time.Duration
	Concurrency   int
	FailurePolicy string
}

// OptionsFromConfig collects the scheduler settings from cfg
func OptionsFromConfig(cfg *config.Config) Options {
	sources := make([]harvest.Source, len(cfg.Sources))
	for i, s := range cfg.Sources {
		sources[i] = harvest.Source(s)
	}
	return Options{
		Sources:       sources,
		Interval:      cfg.Schedule.Interval,
		Concurrency:   cfg.Schedule.Concurrency,
		FailurePolicy: cfg.Schedule.FailurePolicy,
	}
}

// Scheduler drives runs over a fixed list of sources
type Scheduler struct {
	harvester Harvester
	reporter  report.Reporter
	opts      Options
	log       logger.Logger

	now  func() time.Time
	wait func(ctx context.Context, d time.Duration) error

	runs int
}

// Option customizes a Scheduler
type Option func(*Scheduler)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithWaiter replaces the pause between runs
func WithWaiter(wait func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Scheduler) { s.wait = wait }
}

// New creates a Scheduler
func New(h Harvester, reporter report.Reporter, opts Options, log logger.Logger, options ...Option) *Scheduler {
	if log == nil {
		log = logger.NewNopLogger()
	}
	if reporter == nil {
		reporter = report.NewLogReporter(log)
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.FailurePolicy == "" {
		opts.FailurePolicy = config.FailurePolicySkip
	}
	s := &Scheduler{
		harvester: h,
		reporter:  reporter,
		opts:      opts,
		log:       log.WithField("component", "scheduler"),
		now:       time.Now,
		wait:      retry.Wait,
	}
	for _, o := range options {
		o(s)
	}
	return s
}

// ErrAborted wraps the failure that ended a run under the abort policy
var ErrAborted = errors.New("run aborted")

// RunOnce performs one scheduled run: every source is harvested, results are
// merged into a fresh tally and, once all sources are done, one report line
// per symbol is emitted. Under the abort policy the first failure ends the
// run without a report.
func (s *Scheduler) RunOnce(ctx context.Context) (*Run, error) {
	s.runs++
	run := newRun(s.runs, s.now())

	s.log.InfoWithFields("Run started", map[string]interface{}{
		"run":         run.Number,
		"sources":     len(s.opts.Sources),
		"concurrency": s.opts.Concurrency,
	})

	var err error
	if s.opts.Concurrency > 1 && len(s.opts.Sources) > 1 {
		err = s.harvestConcurrently(ctx, run)
	} else {
		err = s.harvestSequentially(ctx, run)
	}
	if err != nil {
		return run, err
	}

	finished := s.now()
	summary := report.Summary{
		Run:      run.Number,
		Start:    run.Start,
		Elapsed:  finished.Sub(run.Start),
		Minutes:  run.ElapsedMinutes(finished),
		Sources:  len(s.opts.Sources),
		Tally:    run.Tally.Clone(),
		Failures: run.Failures,
	}
	if err := s.reporter.Report(summary); err != nil {
		s.log.WithError(err).Warn("Failed to report run")
	}

	logger.LogMetrics("run", map[string]interface{}{
		"run":      run.Number,
		"symbols":  len(run.Tally),
		"mentions": run.Tally.Total(),
		"failures": len(run.Failures),
		"elapsed":  summary.Elapsed,
	})
	return run, nil
}

func (s *Scheduler) harvestSequentially(ctx context.Context, run *Run) error {
	for i, source := range s.opts.Sources {
		if err := ctx.Err(); err != nil {
			return err
		}
		counts, err := s.harvester.Harvest(ctx, source)
		if err != nil {
			if ferr := s.fail(ctx, run, i, source, err); ferr != nil {
				return ferr
			}
			continue
		}
		run.merge(counts)
	}
	return nil
}

// harvestConcurrently harvests through the worker pool. Merging still
// happens on this goroutine only.
func (s *Scheduler) harvestConcurrently(ctx context.Context, run *Run) error {
	wp := pool.NewWorkerPool(ctx, s.opts.Concurrency, s.harvester.Harvest, s.log)
	wp.Run(s.opts.Sources)

	var abortErr error
	for res := range wp.Results() {
		if abortErr != nil {
			continue
		}
		if res.Err != nil {
			if ferr := s.fail(ctx, run, res.Job.Index, res.Job.Source, res.Err); ferr != nil {
				abortErr = ferr
				wp.Cancel()
			}
			continue
		}
		run.merge(res.Counts)
	}

	sort.Slice(run.Failures, func(i, j int) bool {
		return run.Failures[i].Index < run.Failures[j].Index
	})
	if abortErr != nil {
		return abortErr
	}
	return ctx.Err()
}

// fail records a failed source and returns non-nil when the run must stop
func (s *Scheduler) fail(ctx context.Context, run *Run, index int, source harvest.Source, err error) error {
	if cerr := ctx.Err(); cerr != nil {
		return cerr
	}

	run.Failures = append(run.Failures, report.Failure{
		Index:  index,
		Source: string(source),
		Type:   string(errs.TypeOf(err)),
		Err:    err,
	})

	if s.opts.FailurePolicy == config.FailurePolicyAbort {
		return fmt.Errorf("%w at source %s: %w", ErrAborted, source, err)
	}
	return nil
}

// Run repeats RunOnce until ctx is cancelled, pausing Interval between the
// end of one run and the start of the next. An aborted run is logged and
// the loop carries on with the next trigger. Cancellation is a clean exit.
func (s *Scheduler) Run(ctx context.Context) error {
	logger.LogComponentStart("scheduler", map[string]interface{}{
		"sources":        len(s.opts.Sources),
		"interval":       s.opts.Interval,
		"concurrency":    s.opts.Concurrency,
		"failure_policy": s.opts.FailurePolicy,
	})

	for {
		if ctx.Err() != nil {
			break
		}

		run, err := s.RunOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			s.log.WithError(err).ErrorWithFields("Run failed", map[string]interface{}{
				"run":      run.Number,
				"failures": len(run.Failures),
			})
		}

		s.log.DebugWithFields("Waiting for next run", map[string]interface{}{
			"interval": s.opts.Interval,
		})
		if err := s.wait(ctx, s.opts.Interval); err != nil {
			break
		}
	}

	logger.LogComponentStop("scheduler", "context cancelled")
	return nil
}
