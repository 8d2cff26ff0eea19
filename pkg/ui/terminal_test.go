package ui

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTerminalPlainOutput(t *testing.T) {
	var buf bytes.Buffer
	term := NewTerminal(&buf, false, false)

	term.PrintInfo("Sources", "3")
	term.PrintError("Run failed", errors.New("navigation error"))
	term.PrintWarning("No sources configured")

	assert.Equal(t, "Sources: 3\nRun failed: navigation error\nNo sources configured\n", buf.String())
}

func TestTerminalQuiet(t *testing.T) {
	var buf bytes.Buffer
	term := NewTerminal(&buf, false, true)

	term.PrintLogo()
	term.PrintInfo("Interval", "1h")
	term.PrintSuccess("done")
	term.PrintHighlight("hi")
	assert.Empty(t, buf.String())

	term.PrintError("boom")
	assert.Equal(t, "boom\n", buf.String())
}

func TestTerminalColor(t *testing.T) {
	term := &Terminal{color: true}
	assert.Equal(t, "\033[31mx\033[0m", term.Red("x"))

	term.color = false
	assert.Equal(t, "x", term.Red("x"))
}
