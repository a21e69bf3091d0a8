package logger

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	once sync.Once
	log  zerolog.Logger
)

// Options controls how the process logger is built.
type Options struct {
	// Level is one of trace, debug, info, warn, error. Unknown values
	// fall back to info.
	Level string

	// Pretty switches to the human-readable console writer.
	Pretty bool
}

// Init builds the process logger. Repeated calls are no-ops.
func Init(opts Options) {
	once.Do(func() {
		zerolog.TimeFieldFormat = time.RFC3339
		var out = zerolog.New(os.Stdout)
		if opts.Pretty {
			out = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
		}
		log = out.Level(parseLevel(opts.Level)).With().Timestamp().Logger()
	})
}

// Get returns the process logger, initializing it with defaults if Init was
// never called.
func Get() zerolog.Logger {
	Init(Options{Level: "info"})
	return log
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
