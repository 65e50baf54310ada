// Package logging builds the zerolog logger used by the command line.
package logging

import (
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
)

// New returns a console logger writing to w at the named level.
// Colors follow fatih/color's terminal detection.
func New(w io.Writer, level string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), err
	}
	if lvl == zerolog.NoLevel {
		lvl = zerolog.WarnLevel
	}
	out := zerolog.ConsoleWriter{
		Out:        w,
		NoColor:    color.NoColor,
		TimeFormat: time.TimeOnly,
	}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger(), nil
}

// Verbosity raises level by one step per -v, down to trace.
func Verbosity(level string, verbose int) string {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || verbose <= 0 {
		return level
	}
	if lvl == zerolog.NoLevel {
		lvl = zerolog.WarnLevel
	}
	lvl = max(lvl-zerolog.Level(verbose), zerolog.TraceLevel)
	return lvl.String()
}
