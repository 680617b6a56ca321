// Package logger wraps zerolog.Logger with the constructors cloudbuilder
// uses. Logs go to stderr; stdout is reserved for command results.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"
)

// Logger is a thin wrapper around zerolog.Logger.
type Logger struct {
	zerolog.Logger
}

// New returns a logger writing to w at the given level ("debug", "info",
// ...). Unknown levels fall back to info. When w is a terminal the output
// is human readable, otherwise JSON.
func New(w io.Writer, level string, useColor bool) *Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	out := w
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		out = zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: time.TimeOnly,
			NoColor:    !useColor,
		}
	}

	l := zerolog.New(out).Level(lvl).With().Timestamp().Logger()
	return &Logger{l}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{zerolog.Nop()}
}

// With returns a child logger tagged with a component name.
func (l *Logger) With(component string) *Logger {
	return &Logger{l.Logger.With().Str("component", component).Logger()}
}
