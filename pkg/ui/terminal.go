package ui

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// ASCIILogo is printed when a long-running command starts
const ASCIILogo = `
  ╔════════════════════════════════════════════════════════════╗
  ║ ████████╗██╗ ██████╗██╗  ██╗███████╗██████╗                ║
  ║ ╚══██╔══╝██║██╔════╝██║ ██╔╝██╔════╝██╔══██╗               ║
  ║    ██║   ██║██║     █████╔╝ █████╗  ██████╔╝  $ W A T C H  ║
  ║    ██║   ██║██║     ██╔═██╗ ██╔══╝  ██╔══██╗               ║
  ║    ██║   ██║╚██████╗██║  ██╗███████╗██║  ██║               ║
  ║    ╚═╝   ╚═╝ ╚═════╝╚═╝  ╚═╝╚══════╝╚═╝  ╚═╝               ║
  ║           cashtag mentions, one feed at a time             ║
  ╚════════════════════════════════════════════════════════════╝
`

// Terminal prints user-facing messages, colored when the output is a TTY
type Terminal struct {
	out   io.Writer
	color bool
	quiet bool
}

// NewTerminal writes to out. Color is only used when out is a terminal.
func NewTerminal(out io.Writer, noColor, quiet bool) *Terminal {
	color := false
	if f, ok := out.(*os.File); ok && !noColor && os.Getenv("NO_COLOR") == "" {
		color = term.IsTerminal(int(f.Fd()))
	}
	return &Terminal{out: out, color: color, quiet: quiet}
}

var std = NewTerminal(os.Stdout, false, false)

// Configure replaces the package-level terminal used by the Print helpers
func Configure(noColor, quiet bool) {
	std = NewTerminal(os.Stdout, noColor, quiet)
}

func (t *Terminal) paint(code, text string) string {
	if !t.color {
		return text
	}
	return "\033[" + code + "m" + text + "\033[0m"
}

func (t *Terminal) Cyan(s string) string    { return t.paint("36", s) }
func (t *Terminal) Yellow(s string) string  { return t.paint("33", s) }
func (t *Terminal) Red(s string) string     { return t.paint("31", s) }
func (t *Terminal) Green(s string) string   { return t.paint("32", s) }
func (t *Terminal) Magenta(s string) string { return t.paint("35", s) }

func withArg(msg string, args []interface{}) string {
	if len(args) > 0 {
		return msg + ": " + fmt.Sprintf("%v", args[0])
	}
	return msg
}

// PrintLogo prints the logo unless quiet
func (t *Terminal) PrintLogo() {
	if t.quiet {
		return
	}
	fmt.Fprint(t.out, t.Cyan(ASCIILogo))
}

// PrintError is never silenced by quiet mode
func (t *Terminal) PrintError(msg string, args ...interface{}) {
	fmt.Fprintln(t.out, t.Red(withArg(msg, args)))
}

func (t *Terminal) PrintSuccess(msg string) {
	if t.quiet {
		return
	}
	fmt.Fprintln(t.out, t.Green(msg))
}

func (t *Terminal) PrintInfo(label, value string) {
	if t.quiet {
		return
	}
	fmt.Fprintf(t.out, "%s: %s\n", t.Cyan(label), t.Yellow(value))
}

func (t *Terminal) PrintWarning(msg string, args ...interface{}) {
	if t.quiet {
		return
	}
	fmt.Fprintln(t.out, t.Yellow(withArg(msg, args)))
}

func (t *Terminal) PrintHighlight(msg string) {
	if t.quiet {
		return
	}
	fmt.Fprintln(t.out, t.Magenta(msg))
}

func PrintLogo()                                   { std.PrintLogo() }
func PrintError(msg string, args ...interface{})   { std.PrintError(msg, args...) }
func PrintSuccess(msg string)                      { std.PrintSuccess(msg) }
func PrintInfo(label, value string)                { std.PrintInfo(label, value) }
func PrintWarning(msg string, args ...interface{}) { std.PrintWarning(msg, args...) }
func PrintHighlight(msg string)                    { std.PrintHighlight(msg) }
