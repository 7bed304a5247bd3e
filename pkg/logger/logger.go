// Package logger configures the zerolog root logger shared by the API
// server, the provider clients and the background jobs.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// New builds the root logger. level is one of zerolog's named levels
// (debug, info, warn, error); unrecognized values fall back to info.
// pretty switches on the human-readable console writer for dev runs;
// production runs emit plain JSON lines.
func New(level string, pretty bool) zerolog.Logger {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil || parsed == zerolog.NoLevel {
		parsed = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(parsed)
	zerolog.TimeFieldFormat = time.RFC3339

	var output io.Writer = os.Stdout
	if pretty {
		output = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05",
		}
	}

	return zerolog.New(output).
		With().
		Timestamp().
		Caller().
		Logger()
}

// SetGlobalLogger routes zerolog's package-level logger through l so
// stray log.Info() calls share the configured output.
func SetGlobalLogger(l zerolog.Logger) {
	log.Logger = l
}
