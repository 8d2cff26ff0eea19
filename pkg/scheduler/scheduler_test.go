package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tickerwatch/pkg/config"
	errs "tickerwatch/pkg/errors"
	"tickerwatch/pkg/harvest"
	"tickerwatch/pkg/logger"
	"tickerwatch/pkg/renderer"
	"tickerwatch/pkg/report"
	"tickerwatch/pkg/scroll"
	"tickerwatch/pkg/ticker"
)

// fakeHarvester serves canned results and records the visiting order
type fakeHarvester struct {
	mu      sync.Mutex
	results map[harvest.Source]ticker.Counts
	errors  map[harvest.Source]error
	visited []harvest.Source
}

func (f *fakeHarvester) Harvest(ctx context.Context, source harvest.Source) (ticker.Counts, error) {
	f.mu.Lock()
	f.visited = append(f.visited, source)
	f.mu.Unlock()

	if err := f.errors[source]; err != nil {
		return nil, err
	}
	return f.results[source].Clone(), nil
}

func (f *fakeHarvester) Visited() []harvest.Source {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]harvest.Source(nil), f.visited...)
}

// recordingReporter keeps every summary it is handed
type recordingReporter struct {
	summaries []report.Summary
}

func (r *recordingReporter) Report(s report.Summary) error {
	r.summaries = append(r.summaries, s)
	return nil
}

// steppingClock returns start, start+step, start+2*step, ...
func steppingClock(start time.Time, step time.Duration) func() time.Time {
	var mu sync.Mutex
	calls := 0
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t := start.Add(time.Duration(calls) * step)
		calls++
		return t
	}
}

var t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func navErr(source string) error {
	return errs.WithSource(errs.New(errs.ErrorTypeNavigation, errs.PhaseNavigate, errors.New("unreachable")), source)
}

func TestMergeIsOrderIndependent(t *testing.T) {
	results := map[harvest.Source]ticker.Counts{
		"a": {"$AAPL": 2},
		"b": {"$AAPL": 1, "$TSLA": 3},
		"c": {},
	}
	orders := [][]harvest.Source{
		{"a", "b", "c"}, {"a", "c", "b"},
		{"b", "a", "c"}, {"b", "c", "a"},
		{"c", "a", "b"}, {"c", "b", "a"},
	}

	for _, order := range orders {
		t.Run(fmt.Sprint(order), func(t *testing.T) {
			h := &fakeHarvester{results: results}
			s := New(h, &recordingReporter{}, Options{Sources: order}, nil)

			run, err := s.RunOnce(context.Background())
			require.NoError(t, err)
			assert.Equal(t, ticker.Counts{"$AAPL": 3, "$TSLA": 3}, run.Tally)
			assert.Equal(t, order, h.Visited())
		})
	}

	// harvest results are left untouched by the merge
	assert.Equal(t, ticker.Counts{"$AAPL": 2}, results["a"])
}

func TestEndToEndReportLines(t *testing.T) {
	launcher := renderer.NewMockLauncher(map[string]*renderer.MockPage{
		"https://x.com/alpha": {
			Heights: []int{900, 1800, 1800},
			HTML:    `<article>$GME squeeze</article><article>$GME $AMC</article><article>more $GME</article>`,
		},
		"https://x.com/beta": {
			Heights: []int{600},
			HTML:    `<article>$GME $GME and $AMC</article><article>$GME</article>`,
		},
	})
	noWait := func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	detector := scroll.NewDetector(scroll.Options{StepPixels: 300, MaxIterations: 10}, nil, scroll.WithWaiter(noWait))
	h := harvest.New(launcher, detector, nil, harvest.Options{BaseURL: "https://x.com"}, nil)

	tl := logger.NewTestLogger()
	s := New(h, report.NewLogReporter(tl), Options{Sources: []harvest.Source{"alpha", "beta"}}, nil,
		WithClock(steppingClock(t0, 150*time.Second)))

	run, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ticker.Counts{"$GME": 6, "$AMC": 2}, run.Tally)
	assert.Equal(t, t0, run.Start)

	lines := tl.GetMessagesByLevel("INFO")
	require.Len(t, lines, 2)
	assert.Equal(t, "$GME was mentioned 6 times in the last 3 minutes", lines[0].Message)
	assert.Equal(t, "$AMC was mentioned 2 times in the last 3 minutes", lines[1].Message)

	for _, session := range launcher.OpenedSessions() {
		assert.Equal(t, 1, session.Closed())
	}
	assert.Len(t, launcher.OpenedSessions(), 2, "one session per source")
}

func TestSkipPolicyContinuesAfterFailure(t *testing.T) {
	h := &fakeHarvester{
		results: map[harvest.Source]ticker.Counts{"a": {"$GME": 1}, "c": {"$GME": 2}},
		errors:  map[harvest.Source]error{"b": navErr("b")},
	}
	rep := &recordingReporter{}
	s := New(h, rep, Options{Sources: []harvest.Source{"a", "b", "c"}}, nil)

	run, err := s.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, ticker.Counts{"$GME": 3}, run.Tally)
	require.Len(t, run.Failures, 1)
	assert.Equal(t, "b", run.Failures[0].Source)
	assert.Equal(t, "navigation", run.Failures[0].Type)

	require.Len(t, rep.summaries, 1)
	assert.Equal(t, 3, rep.summaries[0].Sources)
	assert.Len(t, rep.summaries[0].Failures, 1)
}

func TestSkipPolicySurvivesSourceTimeout(t *testing.T) {
	timeout := errs.WithSource(errs.New(errs.ErrorTypeReadinessTimeout, errs.PhaseReadiness,
		fmt.Errorf("Timeout 30000ms exceeded: %w", context.DeadlineExceeded)), "b")
	// a deadline from inside the renderer, with the run context still live
	bare := errs.WithSource(fmt.Errorf("evaluate: %w", context.DeadlineExceeded), "d")
	h := &fakeHarvester{
		results: map[harvest.Source]ticker.Counts{"a": {"$AMC": 1}, "c": {"$AMC": 1}},
		errors:  map[harvest.Source]error{"b": timeout, "d": bare},
	}
	rep := &recordingReporter{}
	s := New(h, rep, Options{Sources: []harvest.Source{"a", "b", "c", "d"}}, nil)

	run, err := s.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, ticker.Counts{"$AMC": 2}, run.Tally)
	require.Len(t, run.Failures, 2)
	assert.Equal(t, "b", run.Failures[0].Source)
	assert.Equal(t, "readiness_timeout", run.Failures[0].Type)
	assert.Equal(t, "d", run.Failures[1].Source)
	require.Len(t, rep.summaries, 1)
	assert.Len(t, rep.summaries[0].Failures, 2)
}

func TestAbortPolicyStopsAtFirstFailure(t *testing.T) {
	h := &fakeHarvester{
		results: map[harvest.Source]ticker.Counts{"a": {"$GME": 1}, "c": {"$GME": 2}},
		errors:  map[harvest.Source]error{"b": navErr("b")},
	}
	rep := &recordingReporter{}
	s := New(h, rep, Options{Sources: []harvest.Source{"a", "b", "c"}, FailurePolicy: config.FailurePolicyAbort}, nil)

	run, err := s.RunOnce(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAborted)
	assert.True(t, errs.Is(err, errs.ErrorTypeNavigation))

	assert.Equal(t, []harvest.Source{"a", "b"}, h.Visited())
	assert.Equal(t, ticker.Counts{"$GME": 1}, run.Tally)
	assert.Empty(t, rep.summaries, "aborted runs are not reported")
}

func TestConcurrentRunMergesEverySource(t *testing.T) {
	results := map[harvest.Source]ticker.Counts{}
	var sources []harvest.Source
	for i := 0; i < 9; i++ {
		src := harvest.Source(fmt.Sprintf("s%d", i))
		sources = append(sources, src)
		results[src] = ticker.Counts{"$GME": 1, fmt.Sprintf("$S%02d", i): 1}
	}
	h := &fakeHarvester{
		results: results,
		errors:  map[harvest.Source]error{"s7": navErr("s7"), "s2": navErr("s2")},
	}
	rep := &recordingReporter{}
	s := New(h, rep, Options{Sources: sources, Concurrency: 3}, nil)

	run, err := s.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 7, run.Tally["$GME"])
	assert.Len(t, h.Visited(), 9)
	require.Len(t, run.Failures, 2)
	assert.Equal(t, "s2", run.Failures[0].Source, "failures keep configuration order")
	assert.Equal(t, "s7", run.Failures[1].Source)
	require.Len(t, rep.summaries, 1)
}

func TestConcurrentAbort(t *testing.T) {
	h := &fakeHarvester{
		results: map[harvest.Source]ticker.Counts{"a": {"$GME": 1}},
		errors:  map[harvest.Source]error{"b": navErr("b")},
	}
	rep := &recordingReporter{}
	s := New(h, rep, Options{
		Sources:       []harvest.Source{"a", "b", "c", "d"},
		Concurrency:   2,
		FailurePolicy: config.FailurePolicyAbort,
	}, nil)

	_, err := s.RunOnce(context.Background())
	assert.ErrorIs(t, err, ErrAborted)
	assert.Empty(t, rep.summaries)
}

func TestRunOnceCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	h := &fakeHarvester{}
	rep := &recordingReporter{}
	s := New(h, rep, Options{Sources: []harvest.Source{"a"}}, nil)

	_, err := s.RunOnce(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, h.Visited())
	assert.Empty(t, rep.summaries)
}

func TestRunLoopStartsFreshTallyEachRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := &fakeHarvester{results: map[harvest.Source]ticker.Counts{"a": {"$GME": 2}}}
	rep := &recordingReporter{}

	var waits []time.Duration
	waiter := func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		if len(waits) == 3 {
			cancel()
		}
		return ctx.Err()
	}

	s := New(h, rep, Options{Sources: []harvest.Source{"a"}, Interval: time.Hour}, nil,
		WithWaiter(waiter), WithClock(steppingClock(t0, time.Minute)))

	require.NoError(t, s.Run(ctx))

	require.Len(t, rep.summaries, 3)
	for i, sum := range rep.summaries {
		assert.Equal(t, i+1, sum.Run)
		assert.Equal(t, ticker.Counts{"$GME": 2}, sum.Tally, "run %d", i+1)
		assert.Equal(t, 1, sum.Minutes)
	}
	assert.True(t, rep.summaries[1].Start.After(rep.summaries[0].Start))
	assert.Equal(t, []time.Duration{time.Hour, time.Hour, time.Hour}, waits)
}

func TestRunLoopSurvivesAbortedRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := &fakeHarvester{errors: map[harvest.Source]error{"a": navErr("a")}}
	runs := 0
	waiter := func(ctx context.Context, d time.Duration) error {
		runs++
		if runs == 2 {
			cancel()
		}
		return ctx.Err()
	}

	tl := logger.NewTestLogger()
	s := New(h, &recordingReporter{}, Options{Sources: []harvest.Source{"a"}, FailurePolicy: config.FailurePolicyAbort}, tl,
		WithWaiter(waiter))

	require.NoError(t, s.Run(ctx))
	assert.Len(t, h.Visited(), 2)
	assert.Len(t, tl.GetMessagesByLevel("ERROR"), 2)
}

func TestRunLoopExitsWhenCancelledMidRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := &cancellingHarvester{cancel: cancel}
	waited := false
	s := New(h, &recordingReporter{}, Options{Sources: []harvest.Source{"a", "b"}}, nil,
		WithWaiter(func(ctx context.Context, d time.Duration) error {
			waited = true
			return nil
		}))

	require.NoError(t, s.Run(ctx))
	assert.Equal(t, 1, h.calls, "second source is never visited")
	assert.False(t, waited)
}

// cancellingHarvester cancels the run context during its first harvest
type cancellingHarvester struct {
	cancel context.CancelFunc
	calls  int
}

func (c *cancellingHarvester) Harvest(ctx context.Context, source harvest.Source) (ticker.Counts, error) {
	c.calls++
	c.cancel()
	return nil, errs.New(errs.ErrorTypeCancelled, errs.PhaseScroll, ctx.Err())
}

func TestElapsedMinutes(t *testing.T) {
	run := newRun(1, t0)
	tests := []struct {
		after time.Duration
		want  int
	}{
		{0, 0},
		{29 * time.Second, 0},
		{30 * time.Second, 1},
		{89 * time.Second, 1},
		{150 * time.Second, 3},
		{59*time.Minute + 31*time.Second, 60},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, run.ElapsedMinutes(t0.Add(tt.after)), "after %s", tt.after)
	}
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Sources = []string{"alpha", "beta"}
	cfg.Schedule.Concurrency = 2

	opts := OptionsFromConfig(cfg)
	assert.Equal(t, []harvest.Source{"alpha", "beta"}, opts.Sources)
	assert.Equal(t, time.Hour, opts.Interval)
	assert.Equal(t, 2, opts.Concurrency)
	assert.Equal(t, config.FailurePolicySkip, opts.FailurePolicy)
}
