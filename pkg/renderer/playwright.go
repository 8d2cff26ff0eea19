package renderer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
	"tickerwatch/pkg/config"
	"tickerwatch/pkg/logger"
)

// PlaywrightLauncher starts one browser lazily and hands out pages from it
type PlaywrightLauncher struct {
	cfg config.RendererConfig
	log logger.Logger

	mu      sync.Mutex
	pw      *playwright.Playwright
	browser playwright.Browser
}

// NewPlaywrightLauncher creates a launcher; the browser starts on first Open
func NewPlaywrightLauncher(cfg config.RendererConfig, log logger.Logger) *PlaywrightLauncher {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &PlaywrightLauncher{cfg: cfg, log: log.WithField("component", "renderer")}
}

func (l *PlaywrightLauncher) start() error {
	if l.browser != nil {
		return nil
	}

	browserName := strings.ToLower(l.cfg.Browser)
	if l.cfg.InstallBrowsers {
		l.log.InfoWithFields("Installing browser driver", map[string]interface{}{"browser": browserName})
		if err := playwright.Install(&playwright.RunOptions{Browsers: []string{browserName}}); err != nil {
			return fmt.Errorf("failed to install playwright browsers: %w", err)
		}
	}

	pw, err := playwright.Run()
	if err != nil {
		return fmt.Errorf("failed to start playwright: %w", err)
	}

	var browserType playwright.BrowserType
	switch browserName {
	case "firefox":
		browserType = pw.Firefox
	case "webkit":
		browserType = pw.WebKit
	default:
		browserType = pw.Chromium
	}

	browser, err := browserType.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(l.cfg.Headless),
	})
	if err != nil {
		_ = pw.Stop()
		return fmt.Errorf("failed to launch %s: %w", browserName, err)
	}

	l.pw = pw
	l.browser = browser
	l.log.InfoWithFields("Browser launched", map[string]interface{}{
		"browser":  browserName,
		"headless": l.cfg.Headless,
		"version":  browser.Version(),
	})
	return nil
}

// Open creates a fresh browser context and page
func (l *PlaywrightLauncher) Open(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.start(); err != nil {
		return nil, err
	}

	opts := playwright.BrowserNewContextOptions{}
	if l.cfg.UserAgent != "" {
		opts.UserAgent = playwright.String(l.cfg.UserAgent)
	}
	bctx, err := l.browser.NewContext(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		return nil, fmt.Errorf("failed to open page: %w", err)
	}

	return &playwrightSession{bctx: bctx, page: page}, nil
}

// Close shuts down the browser and the playwright driver
func (l *PlaywrightLauncher) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var errs []error
	if l.browser != nil {
		if err := l.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
		}
		l.browser = nil
	}
	if l.pw != nil {
		if err := l.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
		}
		l.pw = nil
	}
	return errors.Join(errs...)
}

type playwrightSession struct {
	bctx playwright.BrowserContext
	page playwright.Page

	closeOnce sync.Once
	closeErr  error
}

// playwright takes timeouts in milliseconds, 0 disables them
func millis(d time.Duration) *float64 {
	return playwright.Float(float64(d.Milliseconds()))
}

func (s *playwrightSession) Navigate(ctx context.Context, url string, opts NavigateOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	resp, err := s.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateNetworkidle,
		Timeout:   millis(opts.Timeout),
	})
	if err != nil {
		return err
	}
	if resp != nil && resp.Status() >= 400 {
		return fmt.Errorf("%s responded with status %d", url, resp.Status())
	}
	return nil
}

func (s *playwrightSession) Evaluate(ctx context.Context, script string, args ...interface{}) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.page.Evaluate(script, args...)
}

func (s *playwrightSession) ScrollBy(ctx context.Context, px int) (int, error) {
	v, err := s.Evaluate(ctx, ScrollScript, px)
	if err != nil {
		return 0, err
	}
	return toInt(v)
}

func (s *playwrightSession) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.page.Locator(selector).First().WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateAttached,
		Timeout: millis(timeout),
	})
	if errors.Is(err, playwright.ErrTimeout) {
		return fmt.Errorf("%w %q after %s", ErrSelectorTimeout, selector, timeout)
	}
	return err
}

func (s *playwrightSession) Content(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return s.page.Content()
}

// Close releases the page and its context. Safe to call more than once.
func (s *playwrightSession) Close() error {
	s.closeOnce.Do(func() {
		var errs []error
		if err := s.page.Close(); err != nil {
			errs = append(errs, err)
		}
		if err := s.bctx.Close(); err != nil {
			errs = append(errs, err)
		}
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}
