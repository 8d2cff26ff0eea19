// Package logger provides the structured logging interface used across
// tickerwatch.
//
// It wraps zerolog behind a small Logger interface so components can take a
// logger as a dependency and tests can swap in a TestLogger or a nop logger.
// Console output is human readable and colored when stdout is a terminal; an
// optional log file receives raw JSON lines.
//
// Basic usage:
//
//	if err := logger.Initialize(&cfg.Logging); err != nil {
//	    return err
//	}
//	logger.WithField("source", "elonmusk").Info("Harvest started")
//
//	log := logger.GetLogger().WithField("component", "scheduler")
//	log.InfoWithFields("Run complete", map[string]interface{}{
//	    "symbols":  12,
//	    "failures": 0,
//	})
package logger
