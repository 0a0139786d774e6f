package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
)

// ANSI color codes for severity-grouped output.
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorGreen  = "\033[32m"
)

// IO handles command output. Colors are enabled only when stdout is a
// terminal, so piping the report into a file stays clean.
type IO struct {
	out    io.Writer
	errOut io.Writer
	color  bool
}

// NewIO creates an IO for the given writers.
func NewIO(out, errOut io.Writer) *IO {
	color := false
	if f, ok := out.(*os.File); ok {
		color = isatty.IsTerminal(f.Fd())
	}

	return &IO{out: out, errOut: errOut, color: color}
}

// Println writes to stdout.
func (o *IO) Println(a ...any) {
	_, _ = fmt.Fprintln(o.out, a...)
}

// Printf writes formatted output to stdout.
func (o *IO) Printf(format string, a ...any) {
	_, _ = fmt.Fprintf(o.out, format, a...)
}

// Errorln writes to stderr.
func (o *IO) Errorln(a ...any) {
	_, _ = fmt.Fprintln(o.errOut, a...)
}

// Colored wraps s in the given color when output is a terminal.
func (o *IO) Colored(color, s string) string {
	if !o.color {
		return s
	}

	return color + s + colorReset
}

// statusColor maps an overall status to its display color.
func statusColor(status string) string {
	switch status {
	case "error":
		return colorRed
	case "warning":
		return colorYellow
	default:
		return colorGreen
	}
}
