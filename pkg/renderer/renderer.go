// Package renderer drives a headless browser on behalf of the harvester.
//
// A Launcher owns the browser process; each Open call yields an isolated
// Session (its own browser context and page) that must be closed by the
// caller. The playwright-backed implementation is used in production and
// MockLauncher/MockSession stand in for it in tests.
package renderer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// HeightScript reports the scrollable height of the current document
const HeightScript = "() => document.body.scrollHeight"

// ScrollScript scrolls the window by a vertical offset passed as the argument
// and reports the document height afterwards
const ScrollScript = "(dy) => { window.scrollBy(0, dy); return document.body.scrollHeight; }"

// ErrSelectorTimeout is returned by WaitForSelector when nothing matched in time
var ErrSelectorTimeout = errors.New("timed out waiting for selector")

// NavigateOptions tunes a single navigation
type NavigateOptions struct {
	// Timeout of zero waits indefinitely for the network to go idle
	Timeout time.Duration
}

// Session is one rendered page
type Session interface {
	// Navigate loads url and waits until network activity is idle
	Navigate(ctx context.Context, url string, opts NavigateOptions) error
	// Evaluate runs a script in the page and returns its result
	Evaluate(ctx context.Context, script string, args ...interface{}) (interface{}, error)
	// ScrollBy scrolls the viewport down by px pixels and returns the
	// document height once the step is applied
	ScrollBy(ctx context.Context, px int) (int, error)
	// WaitForSelector blocks until at least one element matches selector
	WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error
	// Content returns the serialized DOM
	Content(ctx context.Context) (string, error)
	Close() error
}

// Launcher opens isolated sessions against a shared browser
type Launcher interface {
	Open(ctx context.Context) (Session, error)
	Close() error
}

// Height measures the current document height of s
func Height(ctx context.Context, s Session) (int, error) {
	v, err := s.Evaluate(ctx, HeightScript)
	if err != nil {
		return 0, err
	}
	return toInt(v)
}

// toInt converts the numeric types a page evaluation can yield
func toInt(v interface{}) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int32:
		return int(n), nil
	case int64:
		return int(n), nil
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, fmt.Errorf("page height is not a finite number: %v", n)
		}
		return int(n), nil
	case nil:
		return 0, errors.New("page height evaluated to null")
	default:
		return 0, fmt.Errorf("page height has unexpected type %T", v)
	}
}
