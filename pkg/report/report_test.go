package report

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tickerwatch/pkg/config"
	"tickerwatch/pkg/logger"
	"tickerwatch/pkg/ticker"
)

func TestLine(t *testing.T) {
	assert.Equal(t, "$GME was mentioned 6 times in the last 3 minutes", Line("$GME", 6, 3))
}

func TestLogReporter(t *testing.T) {
	tl := logger.NewTestLogger()
	r := NewLogReporter(tl)

	err := r.Report(Summary{
		Run:     2,
		Minutes: 3,
		Tally:   ticker.Counts{"$AMC": 2, "$GME": 6},
		Failures: []Failure{
			{Source: "gone", Type: "navigation", Err: errors.New("net::ERR_NAME_NOT_RESOLVED")},
		},
	})
	require.NoError(t, err)

	infos := tl.GetMessagesByLevel("INFO")
	require.Len(t, infos, 2)
	assert.Equal(t, "$GME was mentioned 6 times in the last 3 minutes", infos[0].Message)
	assert.Equal(t, "$AMC was mentioned 2 times in the last 3 minutes", infos[1].Message)
	assert.Equal(t, "$GME", infos[0].Fields["symbol"])

	warns := tl.GetMessagesByLevel("WARN")
	require.Len(t, warns, 1)
	assert.Equal(t, "gone", warns[0].Fields["source"])
}

func TestLogReporterPrintsUnderErrorLevel(t *testing.T) {
	var buf bytes.Buffer
	log, err := logger.NewWithWriter(&config.LoggingConfig{Level: "error", NoColor: true}, &buf)
	require.NoError(t, err)

	log.Info("hidden at error level")
	require.NoError(t, NewLogReporter(log).Report(Summary{
		Minutes: 3,
		Tally:   ticker.Counts{"$GME": 6, "$AMC": 2},
	}))

	out := buf.String()
	assert.NotContains(t, out, "hidden at error level")
	assert.Contains(t, out, "$GME was mentioned 6 times in the last 3 minutes")
	assert.Contains(t, out, "$AMC was mentioned 2 times in the last 3 minutes")
}

func TestLogReporterEmptyTally(t *testing.T) {
	tl := logger.NewTestLogger()
	require.NoError(t, NewLogReporter(tl).Report(Summary{Minutes: 0, Tally: ticker.Counts{}}))
	assert.True(t, tl.HasMessage("No symbols mentioned in the last 0 minutes"))
}

func TestTableReporter(t *testing.T) {
	var buf bytes.Buffer
	r := NewTableReporter(&buf)

	err := r.Report(Summary{
		Run:      1,
		Minutes:  12,
		Sources:  3,
		Tally:    ticker.Counts{"$GME": 6, "$AMC": 2},
		Failures: []Failure{{Source: "gone", Type: "navigation", Err: errors.New("unreachable")}},
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, strings.ToLower(out), "run 1: last 12 minutes, 2/3 sources")
	assert.Contains(t, out, "$GME")
	assert.Contains(t, out, "TOTAL")
	assert.Contains(t, out, "unreachable")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("$GME")), bytes.Index(buf.Bytes(), []byte("$AMC")))
}

type failingReporter struct{ calls int }

func (f *failingReporter) Report(Summary) error {
	f.calls++
	return errors.New("sink unavailable")
}

func TestMulti(t *testing.T) {
	a, b := &failingReporter{}, &failingReporter{}
	err := Multi{a, b}.Report(Summary{})
	assert.Error(t, err)
	assert.Equal(t, 1, a.calls)
	assert.Equal(t, 1, b.calls)
}

func TestNew(t *testing.T) {
	r, err := New("log", logger.NewNopLogger(), nil)
	require.NoError(t, err)
	assert.IsType(t, &LogReporter{}, r)

	r, err = New("TABLE", nil, &bytes.Buffer{})
	require.NoError(t, err)
	assert.IsType(t, &TableReporter{}, r)

	_, err = New("csv", nil, nil)
	assert.Error(t, err)
}
