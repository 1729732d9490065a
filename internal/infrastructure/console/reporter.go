// Package console prints the operator-facing lines of a backup run.
package console

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
)

type Reporter struct {
	out     io.Writer
	success *color.Color
	notice  *color.Color
	failure *color.Color
}

func NewReporter(out io.Writer) *Reporter {
	if out == nil {
		out = os.Stdout
	}
	return &Reporter{
		out:     out,
		success: color.New(color.FgGreen),
		notice:  color.New(color.FgYellow),
		failure: color.New(color.FgRed),
	}
}

func (r *Reporter) Success(format string, args ...interface{}) {
	r.line(r.success, format, args...)
}

func (r *Reporter) Notice(format string, args ...interface{}) {
	r.line(r.notice, format, args...)
}

func (r *Reporter) Failure(format string, args ...interface{}) {
	r.line(r.failure, format, args...)
}

func (r *Reporter) line(c *color.Color, format string, args ...interface{}) {
	_, _ = c.Fprintln(r.out, fmt.Sprintf(format, args...))
}
