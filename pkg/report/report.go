// Package report emits the symbol tally of a finished run.
package report

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog"
	"tickerwatch/pkg/config"
	"tickerwatch/pkg/logger"
	"tickerwatch/pkg/ticker"
)

// Failure is a source that could not be harvested during a run
type Failure struct {
	Index  int
	Source string
	Type   string
	Err    error
}

// Summary is everything a reporter needs about one run
type Summary struct {
	Run      int
	Start    time.Time
	Elapsed  time.Duration
	Minutes  int
	Sources  int
	Tally    ticker.Counts
	Failures []Failure
}

// Reporter publishes a run summary
type Reporter interface {
	Report(s Summary) error
}

// Line renders the report line for one symbol
func Line(symbol string, count, minutes int) string {
	return fmt.Sprintf("%s was mentioned %d times in the last %d minutes", symbol, count, minutes)
}

// New returns the reporter for a configured format
func New(format string, log logger.Logger, out io.Writer) (Reporter, error) {
	switch strings.ToLower(format) {
	case "", config.ReportFormatLog:
		return NewLogReporter(log), nil
	case config.ReportFormatTable:
		return NewTableReporter(out), nil
	default:
		return nil, fmt.Errorf("unknown report format %q", format)
	}
}

// LogReporter writes one log line per symbol, most mentioned first
type LogReporter struct {
	log logger.Logger
}

// NewLogReporter reports through log at info level even when log is
// configured quieter, so quiet mode still prints every report.
func NewLogReporter(log logger.Logger) *LogReporter {
	if log == nil {
		log = logger.GetLogger()
	}
	return &LogReporter{log: logger.AtLevel(log, zerolog.InfoLevel)}
}

// Report logs the tally, then one warning per failed source
func (r *LogReporter) Report(s Summary) error {
	for _, e := range s.Tally.Sorted() {
		r.log.InfoWithFields(Line(e.Symbol, e.Count, s.Minutes), map[string]interface{}{
			"symbol": e.Symbol,
			"count":  e.Count,
			"run":    s.Run,
		})
	}
	if len(s.Tally) == 0 {
		r.log.InfoWithFields(fmt.Sprintf("No symbols mentioned in the last %d minutes", s.Minutes), map[string]interface{}{
			"run": s.Run,
		})
	}
	for _, f := range s.Failures {
		r.log.WithError(f.Err).WarnWithFields("Source skipped this run", map[string]interface{}{
			"source": f.Source,
			"type":   f.Type,
			"run":    s.Run,
		})
	}
	return nil
}

// TableReporter renders the tally as a table
type TableReporter struct {
	out io.Writer
}

// NewTableReporter renders to out, or stdout when out is nil
func NewTableReporter(out io.Writer) *TableReporter {
	if out == nil {
		out = os.Stdout
	}
	return &TableReporter{out: out}
}

// Report renders the tally table and, when sources failed, a failures table
func (r *TableReporter) Report(s Summary) error {
	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetTitle(fmt.Sprintf("Run %d: last %d minutes, %d/%d sources", s.Run, s.Minutes, s.Sources-len(s.Failures), s.Sources))
	t.AppendHeader(table.Row{"#", "Symbol", "Mentions"})
	for i, e := range s.Tally.Sorted() {
		t.AppendRow(table.Row{i + 1, e.Symbol, e.Count})
	}
	t.AppendFooter(table.Row{"", "Total", s.Tally.Total()})
	t.SetStyle(table.StyleRounded)
	t.Render()

	if len(s.Failures) > 0 {
		ft := table.NewWriter()
		ft.SetOutputMirror(r.out)
		ft.AppendHeader(table.Row{"Source", "Error type", "Error"})
		for _, f := range s.Failures {
			msg := ""
			if f.Err != nil {
				msg = f.Err.Error()
			}
			ft.AppendRow(table.Row{f.Source, f.Type, msg})
		}
		ft.SetStyle(table.StyleRounded)
		ft.Render()
	}
	return nil
}

// Multi fans a summary out to several reporters
type Multi []Reporter

// Report hands s to every reporter and joins their errors
func (m Multi) Report(s Summary) error {
	var errs []error
	for _, r := range m {
		if err := r.Report(s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
