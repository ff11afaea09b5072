/*
Package logging provides the tagged, colorized logger used across tagspeak.

Program output (what a script prints) goes to the out writer unadorned.
Diagnostics go to the err writer, one line per message line, prefixed with a colored tag.
The logger travels in a context.Context; see WithContext and Ctx.
*/
package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
)

type Logger struct {
	out     io.Writer
	err     io.Writer
	verbose bool
	quiet   bool
}

func DefaultLogger() Logger {
	return Logger{
		out:     os.Stdout,
		err:     os.Stderr,
		verbose: false,
	}
}

func NewLogger(out, err io.Writer, verbose bool) Logger {
	return Logger{
		out:     out,
		err:     err,
		verbose: verbose,
	}
}

// Quiet returns a copy of the logger that drops Info messages.
// Warnings and program output still come through.
func (l Logger) Quiet() Logger {
	l.quiet = true
	return l
}

type ctxKey struct{}

// WithContext returns a context carrying the logger.
func (l Logger) WithContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, &l)
}

// Ctx returns the logger carried by ctx, or a default logger if there is none.
func Ctx(ctx context.Context) *Logger {
	if l, ok := ctx.Value(ctxKey{}).(*Logger); ok {
		return l
	}
	l := DefaultLogger()
	return &l
}

func (l *Logger) Out(f string, args ...interface{}) {
	fmt.Fprintf(l.out, f+"\n", args...)
}

func (l *Logger) OutRaw(s string) {
	fmt.Fprintf(l.out, "%s", s)
}

// OutWriter is where program output goes.
func (l *Logger) OutWriter() io.Writer {
	return l.out
}

func (l *Logger) Verbose() bool {
	return l.verbose
}

func (l *Logger) Info(tag string, f string, args ...interface{}) {
	if l.quiet {
		return
	}
	print(l.err, color.New(color.FgHiGreen), tag, f, args...)
}

func (l *Logger) Warn(tag string, f string, args ...interface{}) {
	print(l.err, color.New(color.FgHiYellow), tag, f, args...)
}

func (l *Logger) Debug(tag string, f string, args ...interface{}) {
	if l.verbose {
		print(l.err, color.New(color.FgGreen), tag, f, args...)
	}
}

func print(w io.Writer, tagColor *color.Color, tag, f string, args ...interface{}) {
	str := fmt.Sprintf(f, args...)
	for _, line := range strings.Split(str, "\n") {
		fmt.Fprintf(w, "%s  %s\n",
			tagColor.Sprint(tag),
			color.WhiteString(line))
	}
}

// Writer is an io.Writer that logs each written line under a tag.
type Writer struct {
	pipe io.Writer
	tag  string
}

// InfoWriter returns a Writer logging to the err stream, used for the stderr of exec packets.
func (l *Logger) InfoWriter(tag string) *Writer {
	return &Writer{
		pipe: l.err,
		tag:  tag,
	}
}

func (w *Writer) Write(data []byte) (n int, err error) {
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		fmt.Fprintf(w.pipe, "%s  %s\n",
			color.HiYellowString(w.tag),
			color.HiWhiteString(line))
	}
	return len(data), nil
}
