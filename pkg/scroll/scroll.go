// Package scroll drives an infinite-scroll feed until it stops growing.
//
// Each cycle scrolls one full pass over the page, extending the pass while
// the page grows under it, lets the page settle, then measures again. The feed is
// exhausted the first time a measurement does not exceed the previous one.
// MaxIterations and MaxDuration bound feeds that never stop growing.
package scroll

import (
	"context"
	"fmt"
	"time"

	"tickerwatch/pkg/config"
	errs "tickerwatch/pkg/errors"
	"tickerwatch/pkg/logger"
	"tickerwatch/pkg/renderer"
	"tickerwatch/pkg/retry"
)

// Outcome tells how a Drain ended
type Outcome string

const (
	// OutcomeExhausted means the page stopped growing
	OutcomeExhausted Outcome = "exhausted"
	// OutcomeForcedStop means a bound was hit while the page was still growing
	OutcomeForcedStop Outcome = "forced_stop"
)

// Result describes a finished Drain
type Result struct {
	Outcome     Outcome
	Cycles      int
	FinalHeight int
	Elapsed     time.Duration
}

// Options configures a Detector
type Options struct {
	StepPixels    int
	TickInterval  time.Duration
	SettleDelay   time.Duration
	MaxIterations int // 0 disables the bound
	MaxDuration   time.Duration
	// FailOnForcedStop reports a forced stop as an inconclusive error
	FailOnForcedStop bool
}

// OptionsFromConfig maps the scroll section of the config file
func OptionsFromConfig(cfg config.ScrollConfig) Options {
	return Options{
		StepPixels:       cfg.StepPixels,
		TickInterval:     cfg.TickInterval,
		SettleDelay:      cfg.SettleDelay,
		MaxIterations:    cfg.MaxIterations,
		MaxDuration:      cfg.MaxDuration,
		FailOnForcedStop: cfg.FailOnForcedStop,
	}
}

// Detector scrolls a session to the end of its feed
type Detector struct {
	opts Options
	log  logger.Logger
	now  func() time.Time
	wait func(ctx context.Context, d time.Duration) error
}

// Option customizes a Detector
type Option func(*Detector)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(d *Detector) { d.now = now }
}

// WithWaiter replaces the pause used between scroll steps and after a pass
func WithWaiter(wait func(ctx context.Context, d time.Duration) error) Option {
	return func(d *Detector) { d.wait = wait }
}

// NewDetector creates a Detector
func NewDetector(opts Options, log logger.Logger, options ...Option) *Detector {
	if opts.StepPixels <= 0 {
		opts.StepPixels = 100
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	d := &Detector{
		opts: opts,
		log:  log,
		now:  time.Now,
		wait: retry.Wait,
	}
	for _, o := range options {
		o(d)
	}
	return d
}

// Drain scrolls s until its height stops increasing or a bound is hit.
// Renderer failures are returned as height_measurement errors and are not
// retried. The session is left open for the caller.
func (d *Detector) Drain(ctx context.Context, s renderer.Session) (Result, error) {
	start := d.now()
	res := Result{}

	prev, err := d.measure(ctx, s)
	if err != nil {
		res.Elapsed = d.now().Sub(start)
		return res, err
	}
	res.FinalHeight = prev

	for {
		if err := ctx.Err(); err != nil {
			res.Elapsed = d.now().Sub(start)
			return res, errs.New(errs.ErrorTypeCancelled, errs.PhaseScroll, err)
		}

		elapsed := d.now().Sub(start)
		if d.boundReached(res.Cycles, elapsed) {
			res.Outcome = OutcomeForcedStop
			res.Elapsed = elapsed
			d.log.WarnWithFields("Feed still growing, stopping scroll", map[string]interface{}{
				"cycles":  res.Cycles,
				"height":  res.FinalHeight,
				"elapsed": elapsed,
			})
			if d.opts.FailOnForcedStop {
				return res, errs.New(errs.ErrorTypeInconclusive, errs.PhaseScroll,
					fmt.Errorf("page still growing after %d cycles (%s)", res.Cycles, elapsed.Round(time.Millisecond)))
			}
			return res, nil
		}

		if err := d.scrollPass(ctx, s, prev); err != nil {
			res.Elapsed = d.now().Sub(start)
			return res, err
		}
		if err := d.pause(ctx, d.opts.SettleDelay); err != nil {
			res.Elapsed = d.now().Sub(start)
			return res, err
		}
		res.Cycles++

		h, err := d.measure(ctx, s)
		if err != nil {
			res.Elapsed = d.now().Sub(start)
			return res, err
		}
		d.log.DebugWithFields("Scroll cycle complete", map[string]interface{}{
			"cycle":    res.Cycles,
			"previous": prev,
			"height":   h,
		})

		if h <= prev {
			res.Outcome = OutcomeExhausted
			res.Elapsed = d.now().Sub(start)
			return res, nil
		}
		prev = h
		res.FinalHeight = h
	}
}

func (d *Detector) boundReached(cycles int, elapsed time.Duration) bool {
	if d.opts.MaxIterations > 0 && cycles >= d.opts.MaxIterations {
		return true
	}
	return d.opts.MaxDuration > 0 && elapsed >= d.opts.MaxDuration
}

// scrollPass scrolls in steps until the distance travelled covers the page
// height. Every step reports the current height, so content loaded during
// the pass moves the target along.
func (d *Detector) scrollPass(ctx context.Context, s renderer.Session, target int) error {
	travelled := 0
	for {
		h, err := s.ScrollBy(ctx, d.opts.StepPixels)
		if err != nil {
			return rendererError(ctx, err)
		}
		if h > target {
			target = h
		}
		travelled += d.opts.StepPixels
		if travelled >= target {
			return nil
		}
		if err := d.pause(ctx, d.opts.TickInterval); err != nil {
			return err
		}
	}
}

func (d *Detector) measure(ctx context.Context, s renderer.Session) (int, error) {
	h, err := renderer.Height(ctx, s)
	if err != nil {
		return 0, rendererError(ctx, err)
	}
	return h, nil
}

func (d *Detector) pause(ctx context.Context, delay time.Duration) error {
	if err := d.wait(ctx, delay); err != nil {
		return errs.New(errs.ErrorTypeCancelled, errs.PhaseScroll, err)
	}
	return nil
}

func rendererError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return errs.New(errs.ErrorTypeCancelled, errs.PhaseScroll, err)
	}
	return errs.New(errs.ErrorTypeHeightMeasurement, errs.PhaseScroll, err)
}
