package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"tickerwatch/pkg/logger"
	"tickerwatch/pkg/report"
)

// Server exposes the recorder over HTTP together with a health endpoint
type Server struct {
	echo     *echo.Echo
	addr     string
	log      logger.Logger
	recorder *Recorder

	mu      sync.RWMutex
	lastRun *report.Summary
}

// HealthStatus is the body of the health endpoint
type HealthStatus struct {
	Status   string    `json:"status"`
	Runs     int       `json:"runs"`
	LastRun  time.Time `json:"last_run"`
	Sources  int       `json:"sources"`
	Failures int       `json:"failures"`
}

// NewServer builds the HTTP server; path is where metrics are served
func NewServer(addr, path string, recorder *Recorder, log logger.Logger) *Server {
	if log == nil {
		log = logger.NewNopLogger()
	}
	if path == "" {
		path = "/metrics"
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{echo: e, addr: addr, log: log.WithField("component", "metrics"), recorder: recorder}

	handler := promhttp.HandlerFor(recorder.Registry(), promhttp.HandlerOpts{Registry: recorder.Registry()})
	e.GET(path, echo.WrapHandler(handler))
	e.GET("/healthz", s.health)
	return s
}

// Report remembers the last run for the health endpoint
func (s *Server) Report(sum report.Summary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRun = &sum
	return nil
}

func (s *Server) health(c echo.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := HealthStatus{Status: "starting"}
	if s.lastRun != nil {
		status = HealthStatus{
			Status:   "ok",
			Runs:     s.lastRun.Run,
			LastRun:  s.lastRun.Start,
			Sources:  s.lastRun.Sources,
			Failures: len(s.lastRun.Failures),
		}
		if s.lastRun.Sources > 0 && len(s.lastRun.Failures) == s.lastRun.Sources {
			status.Status = "degraded"
		}
	}
	return c.JSON(http.StatusOK, status)
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Serve listens until ctx is cancelled, then shuts down gracefully
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.InfoWithFields("Metrics server listening", map[string]interface{}{"address": s.addr})
		if err := s.echo.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok && err != nil {
			return fmt.Errorf("metrics server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	s.log.Info("Metrics server stopped")
	return nil
}
