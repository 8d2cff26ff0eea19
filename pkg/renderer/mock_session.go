package renderer

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// MockPage is the canned behaviour of one URL in a MockSession
type MockPage struct {
	HTML string
	// Heights are returned by successive height measurements; the last value
	// repeats once the sequence is exhausted
	Heights []int
	// PassHeights are returned by successive scroll steps. Once exhausted a
	// step reports the last measured height.
	PassHeights []int

	// NavigateFailures makes the first N navigations to this page fail
	NavigateFailures int
	NavigateErr      error
	ReadyErr         error
	HeightErr        error
	ContentErr       error
}

// MockSession is an in-memory Session for tests
type MockSession struct {
	mu       sync.Mutex
	pages    map[string]*MockPage
	fallback *MockPage
	current  *MockPage

	heightIdx map[*MockPage]int
	passIdx   map[*MockPage]int
	navFails  map[*MockPage]int

	URLs           []string
	NavigateCalls  int
	HeightCalls    int
	ScrollCalls    int
	ScrolledPixels int
	ReadyCalls     int
	ContentCalls   int
	CloseCalls     int
}

// NewMockSession returns a session whose only page reports the given heights
func NewMockSession(heights ...int) *MockSession {
	return newMockSession(nil, &MockPage{Heights: heights})
}

// NewMockSessionWithPages returns a session that serves pages by URL
func NewMockSessionWithPages(pages map[string]*MockPage) *MockSession {
	return newMockSession(pages, nil)
}

func newMockSession(pages map[string]*MockPage, fallback *MockPage) *MockSession {
	return &MockSession{
		pages:     pages,
		fallback:  fallback,
		current:   fallback,
		heightIdx: make(map[*MockPage]int),
		passIdx:   make(map[*MockPage]int),
		navFails:  make(map[*MockPage]int),
	}
}

// page returns the loaded page, creating an empty one if needed
func (m *MockSession) page() *MockPage {
	if m.current == nil {
		m.current = &MockPage{}
	}
	return m.current
}

func (m *MockSession) Navigate(ctx context.Context, url string, opts NavigateOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.NavigateCalls++
	m.URLs = append(m.URLs, url)
	if err := ctx.Err(); err != nil {
		return err
	}

	p, ok := m.pages[url]
	if !ok {
		p = m.fallback
	}
	if p == nil {
		return fmt.Errorf("net::ERR_NAME_NOT_RESOLVED at %s", url)
	}
	if p.NavigateErr != nil {
		return p.NavigateErr
	}
	if m.navFails[p] < p.NavigateFailures {
		m.navFails[p]++
		return fmt.Errorf("net::ERR_CONNECTION_RESET at %s", url)
	}

	m.current = p
	return nil
}

func (m *MockSession) Evaluate(ctx context.Context, script string, args ...interface{}) (interface{}, error) {
	if script == ScrollScript {
		if len(args) != 1 {
			return nil, fmt.Errorf("scroll script expects one argument, got %d", len(args))
		}
		px, _ := args[0].(int)
		h, err := m.ScrollBy(ctx, px)
		if err != nil {
			return nil, err
		}
		return float64(h), nil
	}
	if script != HeightScript {
		return nil, fmt.Errorf("mock session cannot evaluate %q", script)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.HeightCalls++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := m.page()
	if p.HeightErr != nil {
		return nil, p.HeightErr
	}
	if len(p.Heights) == 0 {
		return float64(0), nil
	}
	i := m.heightIdx[p]
	if i >= len(p.Heights) {
		i = len(p.Heights) - 1
	}
	m.heightIdx[p]++
	// Pages report numbers as float64, like a real browser does
	return float64(p.Heights[i]), nil
}

func (m *MockSession) ScrollBy(ctx context.Context, px int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.ScrollCalls++
	m.ScrolledPixels += px

	p := m.page()
	if i := m.passIdx[p]; i < len(p.PassHeights) {
		m.passIdx[p]++
		return p.PassHeights[i], nil
	}
	return m.lastHeight(p), nil
}

// lastHeight is the most recent value returned by a height measurement
func (m *MockSession) lastHeight(p *MockPage) int {
	if len(p.Heights) == 0 {
		return 0
	}
	i := m.heightIdx[p] - 1
	if i < 0 {
		i = 0
	}
	if i >= len(p.Heights) {
		i = len(p.Heights) - 1
	}
	return p.Heights[i]
}

func (m *MockSession) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ReadyCalls++
	if err := ctx.Err(); err != nil {
		return err
	}
	p := m.page()
	if p.ReadyErr != nil {
		return p.ReadyErr
	}
	tag := strings.Fields(strings.NewReplacer("[", " ", ".", " ", "#", " ").Replace(selector))
	if len(tag) == 0 || !strings.Contains(p.HTML, "<"+tag[0]) {
		return fmt.Errorf("%w %q after %s", ErrSelectorTimeout, selector, timeout)
	}
	return nil
}

func (m *MockSession) Content(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ContentCalls++
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p := m.page()
	if p.ContentErr != nil {
		return "", p.ContentErr
	}
	return p.HTML, nil
}

func (m *MockSession) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CloseCalls++
	return nil
}

// Closed reports how many times Close was called
func (m *MockSession) Closed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CloseCalls
}

// MockLauncher hands out MockSessions that share one set of pages
type MockLauncher struct {
	mu    sync.Mutex
	Pages map[string]*MockPage
	// OpenErr fails every Open call when set
	OpenErr error

	Sessions   []*MockSession
	CloseCalls int
}

// NewMockLauncher creates a launcher serving pages keyed by URL
func NewMockLauncher(pages map[string]*MockPage) *MockLauncher {
	return &MockLauncher{Pages: pages}
}

func (l *MockLauncher) Open(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.OpenErr != nil {
		return nil, l.OpenErr
	}
	s := NewMockSessionWithPages(l.Pages)
	l.Sessions = append(l.Sessions, s)
	return s, nil
}

func (l *MockLauncher) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.CloseCalls++
	return nil
}

// OpenedSessions returns a snapshot of the sessions opened so far
func (l *MockLauncher) OpenedSessions() []*MockSession {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*MockSession, len(l.Sessions))
	copy(out, l.Sessions)
	return out
}
