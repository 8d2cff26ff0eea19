package harvest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	errs "tickerwatch/pkg/errors"
	"tickerwatch/pkg/logger"
	"tickerwatch/pkg/renderer"
	"tickerwatch/pkg/scroll"
	"tickerwatch/pkg/ticker"
)

const baseURL = "https://x.com"

func noWait(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func newTestHarvester(pages map[string]*renderer.MockPage, opts Options) (*Harvester, *renderer.MockLauncher) {
	launcher := renderer.NewMockLauncher(pages)
	detector := scroll.NewDetector(scroll.Options{StepPixels: 500, MaxIterations: 20}, nil, scroll.WithWaiter(noWait))
	if opts.BaseURL == "" {
		opts.BaseURL = baseURL
	}
	return New(launcher, detector, nil, opts, logger.NewNopLogger()), launcher
}

func onlySession(t *testing.T, l *renderer.MockLauncher) *renderer.MockSession {
	t.Helper()
	sessions := l.OpenedSessions()
	require.Len(t, sessions, 1)
	return sessions[0]
}

func TestProfileURL(t *testing.T) {
	assert.Equal(t, "https://x.com/elonmusk", ProfileURL("https://x.com", "elonmusk"))
	assert.Equal(t, "https://x.com/elonmusk", ProfileURL("https://x.com/", "@elonmusk"))
	assert.Equal(t, "http://localhost:8080/a%20b", ProfileURL("http://localhost:8080", "a b"))
}

func TestHarvestCountsArticles(t *testing.T) {
	h, launcher := newTestHarvester(map[string]*renderer.MockPage{
		"https://x.com/trader": {
			Heights: []int{1000, 2500, 2500},
			HTML: `<body><header>$NOPE in the banner</header>
				<article>$GME $GME</article>
				<article>$AMC and $GME</article></body>`,
		},
	}, Options{})

	var reports []Report
	h.Observe(func(r Report) { reports = append(reports, r) })

	counts, err := h.Harvest(context.Background(), "trader")
	require.NoError(t, err)
	assert.Equal(t, ticker.Counts{"$GME": 3, "$AMC": 1}, counts)

	s := onlySession(t, launcher)
	assert.Equal(t, 1, s.Closed())
	assert.Equal(t, []string{"https://x.com/trader"}, s.URLs)

	require.Len(t, reports, 1)
	assert.Equal(t, 2, reports[0].Articles)
	assert.Equal(t, 2, reports[0].Scroll.Cycles)
	assert.Equal(t, scroll.OutcomeExhausted, reports[0].Scroll.Outcome)
	assert.NoError(t, reports[0].Err)
}

func TestHarvestNavigationFailureClosesSessionOnce(t *testing.T) {
	h, launcher := newTestHarvester(map[string]*renderer.MockPage{
		"https://x.com/gone": {NavigateErr: errors.New("net::ERR_NAME_NOT_RESOLVED")},
	}, Options{})

	counts, err := h.Harvest(context.Background(), "gone")
	require.Error(t, err)
	assert.Nil(t, counts)

	var e *errs.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, errs.ErrorTypeNavigation, e.Type)
	assert.Equal(t, "gone", e.Source)
	assert.Equal(t, errs.PhaseNavigate, e.Phase)

	s := onlySession(t, launcher)
	assert.Equal(t, 1, s.Closed())
	assert.Zero(t, s.ScrollCalls)
}

func TestHarvestRetriesNavigation(t *testing.T) {
	pages := map[string]*renderer.MockPage{
		"https://x.com/flaky": {NavigateFailures: 2, Heights: []int{400}, HTML: "<article>$TSLA</article>"},
	}

	h, launcher := newTestHarvester(pages, Options{NavigationAttempts: 3, RetryDelay: time.Millisecond})
	counts, err := h.Harvest(context.Background(), "flaky")
	require.NoError(t, err)
	assert.Equal(t, ticker.Counts{"$TSLA": 1}, counts)
	assert.Equal(t, 3, onlySession(t, launcher).NavigateCalls)

	h, launcher = newTestHarvester(pages, Options{NavigationAttempts: 1})
	_, err = h.Harvest(context.Background(), "flaky")
	assert.True(t, errs.Is(err, errs.ErrorTypeNavigation))
	assert.Equal(t, 1, onlySession(t, launcher).NavigateCalls)
}

func TestHarvestFailurePhases(t *testing.T) {
	tests := []struct {
		name     string
		page     *renderer.MockPage
		wantType errs.ErrorType
		phase    string
	}{
		{
			name:     "height measurement",
			page:     &renderer.MockPage{HeightErr: errors.New("target closed"), HTML: "<article/>"},
			wantType: errs.ErrorTypeHeightMeasurement,
			phase:    errs.PhaseScroll,
		},
		{
			name:     "no articles render",
			page:     &renderer.MockPage{Heights: []int{300}, HTML: "<div>Something went wrong</div>"},
			wantType: errs.ErrorTypeReadinessTimeout,
			phase:    errs.PhaseReadiness,
		},
		{
			name:     "content capture",
			page:     &renderer.MockPage{Heights: []int{300}, HTML: "<article/>", ContentErr: errors.New("page crashed")},
			wantType: errs.ErrorTypeExtraction,
			phase:    errs.PhaseCapture,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, launcher := newTestHarvester(map[string]*renderer.MockPage{"https://x.com/src": tt.page}, Options{})

			_, err := h.Harvest(context.Background(), "src")
			require.Error(t, err)

			var e *errs.Error
			require.True(t, errors.As(err, &e))
			assert.Equal(t, tt.wantType, e.Type)
			assert.Equal(t, tt.phase, e.Phase)
			assert.Equal(t, "src", e.Source)
			assert.Equal(t, 1, onlySession(t, launcher).Closed())
		})
	}
}

func TestHarvestRendererDeadlineKeepsPhaseType(t *testing.T) {
	deadline := fmt.Errorf("Timeout 30000ms exceeded: %w", context.DeadlineExceeded)

	tests := []struct {
		name     string
		page     *renderer.MockPage
		wantType errs.ErrorType
	}{
		{
			name:     "navigation",
			page:     &renderer.MockPage{NavigateErr: deadline},
			wantType: errs.ErrorTypeNavigation,
		},
		{
			name:     "readiness",
			page:     &renderer.MockPage{Heights: []int{300}, HTML: "<article/>", ReadyErr: deadline},
			wantType: errs.ErrorTypeReadinessTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newTestHarvester(map[string]*renderer.MockPage{"https://x.com/src": tt.page}, Options{})

			_, err := h.Harvest(context.Background(), "src")
			require.Error(t, err)
			assert.Equal(t, tt.wantType, errs.TypeOf(err))
			assert.ErrorIs(t, err, context.DeadlineExceeded)
		})
	}
}

func TestHarvestOpenFailure(t *testing.T) {
	h, launcher := newTestHarvester(nil, Options{})
	launcher.OpenErr = errors.New("browser has disconnected")

	_, err := h.Harvest(context.Background(), "anyone")
	assert.True(t, errs.Is(err, errs.ErrorTypeSession))
	assert.Empty(t, launcher.OpenedSessions())
}

func TestHarvestCancelled(t *testing.T) {
	h, launcher := newTestHarvester(map[string]*renderer.MockPage{
		"https://x.com/src": {Heights: []int{300}, HTML: "<article>$GME</article>"},
	}, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.Harvest(ctx, "src")
	assert.True(t, errs.Is(err, errs.ErrorTypeCancelled))
	assert.Empty(t, launcher.OpenedSessions())
}

func TestHarvestLogsOutcome(t *testing.T) {
	tl := logger.NewTestLogger()
	launcher := renderer.NewMockLauncher(map[string]*renderer.MockPage{
		"https://x.com/src": {Heights: []int{300}, HTML: "<article>$GME $AMC</article>"},
	})
	detector := scroll.NewDetector(scroll.Options{StepPixels: 500, MaxIterations: 5}, nil, scroll.WithWaiter(noWait))
	h := New(launcher, detector, nil, Options{BaseURL: baseURL}, tl)

	_, err := h.Harvest(context.Background(), "src")
	require.NoError(t, err)

	infos := tl.GetMessagesByLevel("INFO")
	require.Len(t, infos, 1)
	assert.Equal(t, "Source harvested", infos[0].Message)
	assert.Equal(t, "src", infos[0].Fields["source"])
	assert.Equal(t, 2, infos[0].Fields["mentions"])
	assert.Equal(t, "harvester", infos[0].Fields["component"])
}

func TestHarvestCustomPattern(t *testing.T) {
	launcher := renderer.NewMockLauncher(map[string]*renderer.MockPage{
		"https://x.com/src": {Heights: []int{300}, HTML: "<article>$GOOGL and $F</article>"},
	})
	detector := scroll.NewDetector(scroll.Options{StepPixels: 500, MaxIterations: 5}, nil, scroll.WithWaiter(noWait))
	h := New(launcher, detector, ticker.MustNewExtractor(`\$[A-Z]{1,5}\b`), Options{BaseURL: baseURL}, nil)

	counts, err := h.Harvest(context.Background(), "src")
	require.NoError(t, err)
	assert.Equal(t, ticker.Counts{"$GOOGL": 1, "$F": 1}, counts)
}
