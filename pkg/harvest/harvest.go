// Package harvest visits one profile page and counts the symbols mentioned
// in its fully loaded feed.
package harvest

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"tickerwatch/pkg/config"
	errs "tickerwatch/pkg/errors"
	"tickerwatch/pkg/logger"
	"tickerwatch/pkg/markup"
	"tickerwatch/pkg/renderer"
	"tickerwatch/pkg/retry"
	"tickerwatch/pkg/scroll"
	"tickerwatch/pkg/ticker"
)

// Source is a profile handle, without the leading "@"
type Source string

// ProfileURL joins baseURL and the source handle
func ProfileURL(baseURL string, source Source) string {
	handle := strings.TrimPrefix(strings.TrimSpace(string(source)), "@")
	return strings.TrimRight(baseURL, "/") + "/" + url.PathEscape(handle)
}

// Options configures a Harvester
type Options struct {
	BaseURL            string
	NavigationTimeout  time.Duration
	NavigationAttempts int
	RetryDelay         time.Duration
	ArticleSelector    string
	ReadinessTimeout   time.Duration
}

// OptionsFromConfig collects the harvester settings from cfg
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		BaseURL:            cfg.Renderer.BaseURL,
		NavigationTimeout:  cfg.Renderer.NavigationTimeout,
		NavigationAttempts: cfg.Harvest.NavigationAttempts,
		RetryDelay:         cfg.Harvest.RetryDelay,
		ArticleSelector:    cfg.Harvest.ArticleSelector,
		ReadinessTimeout:   cfg.Harvest.ReadinessTimeout,
	}
}

// Report describes one finished visit, successful or not
type Report struct {
	Source   Source
	Counts   ticker.Counts
	Scroll   scroll.Result
	Articles int
	Elapsed  time.Duration
	Err      error
}

// Observer is notified after every visit
type Observer func(Report)

// Harvester turns a source into symbol counts
type Harvester struct {
	launcher  renderer.Launcher
	detector  *scroll.Detector
	extractor *ticker.Extractor
	opts      Options
	log       logger.Logger
	observers []Observer
}

// New creates a Harvester. A nil extractor uses the default symbol pattern.
func New(launcher renderer.Launcher, detector *scroll.Detector, extractor *ticker.Extractor, opts Options, log logger.Logger) *Harvester {
	if extractor == nil {
		extractor = ticker.MustNewExtractor(ticker.DefaultPattern)
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	if opts.NavigationAttempts <= 0 {
		opts.NavigationAttempts = 1
	}
	if opts.ArticleSelector == "" {
		opts.ArticleSelector = "article"
	}
	return &Harvester{
		launcher:  launcher,
		detector:  detector,
		extractor: extractor,
		opts:      opts,
		log:       log.WithField("component", "harvester"),
	}
}

// Observe registers fn to receive a Report after every Harvest call
func (h *Harvester) Observe(fn Observer) {
	h.observers = append(h.observers, fn)
}

// Harvest loads source, scrolls its feed to the end and counts the symbols
// in every article. The session is closed exactly once whatever happens.
// Errors carry their type, the source and the phase that failed.
func (h *Harvester) Harvest(ctx context.Context, source Source) (ticker.Counts, error) {
	start := time.Now()
	rep := Report{Source: source}

	counts, err := h.harvest(ctx, source, &rep)
	if err != nil {
		err = errs.WithSource(err, string(source))
		counts = nil
	}

	rep.Counts = counts
	rep.Elapsed = time.Since(start)
	rep.Err = err

	logger.LogHarvest(h.log, logger.HarvestEvent{
		Source:   string(source),
		Symbols:  len(counts),
		Mentions: counts.Total(),
		Cycles:   rep.Scroll.Cycles,
		Outcome:  string(rep.Scroll.Outcome),
		Elapsed:  rep.Elapsed,
		Err:      err,
	})
	for _, fn := range h.observers {
		fn(rep)
	}
	return counts, err
}

func (h *Harvester) harvest(ctx context.Context, source Source, rep *Report) (ticker.Counts, error) {
	if err := ctx.Err(); err != nil {
		return nil, errs.New(errs.ErrorTypeCancelled, errs.PhaseOpen, err)
	}

	session, err := h.launcher.Open(ctx)
	if err != nil {
		return nil, classify(ctx, errs.ErrorTypeSession, errs.PhaseOpen, err)
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			h.log.WithError(cerr).WarnWithFields("Failed to close renderer session", map[string]interface{}{
				"source": string(source),
			})
		}
	}()

	target := ProfileURL(h.opts.BaseURL, source)
	h.log.DebugWithFields("Navigating", map[string]interface{}{"source": string(source), "url": target})
	if err := h.navigate(ctx, session, target); err != nil {
		return nil, err
	}

	res, err := h.detector.Drain(ctx, session)
	rep.Scroll = res
	if err != nil {
		return nil, err
	}

	if err := session.WaitForSelector(ctx, h.opts.ArticleSelector, h.opts.ReadinessTimeout); err != nil {
		return nil, classify(ctx, errs.ErrorTypeReadinessTimeout, errs.PhaseReadiness, err)
	}

	content, err := session.Content(ctx)
	if err != nil {
		return nil, classify(ctx, errs.ErrorTypeExtraction, errs.PhaseCapture, err)
	}

	doc, err := markup.Parse(content)
	if err != nil {
		return nil, errs.New(errs.ErrorTypeExtraction, errs.PhaseExtraction, err)
	}

	blocks := doc.Blocks(h.opts.ArticleSelector)
	rep.Articles = len(blocks)

	counts := make(ticker.Counts)
	for _, block := range blocks {
		counts.Merge(h.extractor.Extract(block))
	}
	return counts, nil
}

func (h *Harvester) navigate(ctx context.Context, session renderer.Session, target string) error {
	cfg := retry.Config{
		MaxAttempts: h.opts.NavigationAttempts,
		Backoff:     &retry.ConstantBackoff{Delay: h.opts.RetryDelay},
		Logger:      h.log.WithField("url", target),
	}
	return retry.Do(ctx, cfg, func(ctx context.Context, attempt int) error {
		err := session.Navigate(ctx, target, renderer.NavigateOptions{Timeout: h.opts.NavigationTimeout})
		if err != nil {
			return classify(ctx, errs.ErrorTypeNavigation, errs.PhaseNavigate, err)
		}
		return nil
	})
}

// classify wraps err as errorType unless ctx itself was cancelled. A renderer
// deadline inside a live ctx keeps the type of the phase that timed out.
func classify(ctx context.Context, errorType errs.ErrorType, phase string, err error) error {
	if ctx.Err() != nil {
		return errs.New(errs.ErrorTypeCancelled, phase, err)
	}
	var typed *errs.Error
	if errors.As(err, &typed) {
		return err
	}
	return errs.New(errorType, phase, err)
}
