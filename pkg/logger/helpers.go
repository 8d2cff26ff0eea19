package logger

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// HarvestEvent describes the end of one source visit
type HarvestEvent struct {
	Source   string
	Symbols  int
	Mentions int
	Cycles   int
	Outcome  string
	Elapsed  time.Duration
	Err      error
}

// LogHarvest logs the outcome of harvesting a single source
func LogHarvest(l Logger, ev HarvestEvent) {
	fields := map[string]interface{}{
		"source":      ev.Source,
		"symbols":     ev.Symbols,
		"mentions":    ev.Mentions,
		"cycles":      ev.Cycles,
		"duration_ms": ev.Elapsed.Milliseconds(),
	}
	if ev.Outcome != "" {
		fields["outcome"] = ev.Outcome
	}

	if ev.Err != nil {
		l.WithError(ev.Err).WarnWithFields("Source harvest failed", fields)
		return
	}
	l.InfoWithFields("Source harvested", fields)
}

// LogComponentStart logs when a component starts
func LogComponentStart(component string, config map[string]interface{}) {
	logger := GetLogger().WithField("component", component)
	if len(config) > 0 {
		logger = logger.WithFields(config)
	}
	logger.Info("Component started")
}

// LogComponentStop logs when a component stops
func LogComponentStop(component string, reason string) {
	GetLogger().WithFields(map[string]interface{}{
		"component": component,
		"reason":    reason,
	}).Info("Component stopped")
}

// LogMetrics logs performance metrics for an operation
func LogMetrics(operation string, metrics map[string]interface{}) {
	fields := map[string]interface{}{
		"operation": operation,
		"type":      "metrics",
	}
	for k, v := range metrics {
		fields[k] = v
	}
	GetLogger().DebugWithFields("Performance metrics", fields)
}

// NewNopLogger creates a no-operation logger for testing
func NewNopLogger() Logger {
	return &nopLogger{}
}

type nopLogger struct{}

func (n *nopLogger) Debug(msg string)                                          {}
func (n *nopLogger) Info(msg string)                                           {}
func (n *nopLogger) Warn(msg string)                                           {}
func (n *nopLogger) Error(msg string)                                          {}
func (n *nopLogger) Fatal(msg string)                                          {}
func (n *nopLogger) WithField(key string, value interface{}) Logger            { return n }
func (n *nopLogger) WithFields(fields map[string]interface{}) Logger           { return n }
func (n *nopLogger) WithError(err error) Logger                                { return n }
func (n *nopLogger) WithContext(ctx context.Context) Logger                    { return n }
func (n *nopLogger) DebugWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) InfoWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) WarnWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) ErrorWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) FatalWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) GetZerolog() *zerolog.Logger {
	nop := zerolog.Nop()
	return &nop
}
