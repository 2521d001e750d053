// Package autolog provides structured logging for the automerge engine
// using zerolog. It wraps a single package-level logger with component
// scoping, mirroring how larger services in the ecosystem wire zerolog in
// once and derive child loggers per subsystem.
package autolog

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Logger is the package-level logger. It is safe for concurrent use and
// defaults to Warn level, writing JSON to stderr, so importing this package
// stays quiet until the caller opts into Init.
var Logger zerolog.Logger

func init() {
	Logger = zerolog.New(os.Stderr).Level(zerolog.WarnLevel).With().Timestamp().Logger()
}

// Level mirrors the small set of levels the engine emits at.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config controls how Init configures the global logger.
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// Init (re)configures the global logger. Callers embedding automerge in a
// larger binary call this once at startup; library code never calls it.
func Init(cfg Config) {
	var level zerolog.Level
	switch cfg.Level {
	case DebugLevel:
		level = zerolog.DebugLevel
	case InfoLevel:
		level = zerolog.InfoLevel
	case WarnLevel:
		level = zerolog.WarnLevel
	case ErrorLevel:
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}

	if cfg.JSONOutput {
		Logger = zerolog.New(output).Level(level).With().Timestamp().Logger()
		return
	}
	Logger = zerolog.New(zerolog.ConsoleWriter{Out: output}).Level(level).With().Timestamp().Logger()
}

// WithComponent returns a child logger tagged with the given subsystem name.
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithActor returns a child logger tagged with an actor id, hex-encoded.
func WithActor(actorHex string) zerolog.Logger {
	return Logger.With().Str("actor", actorHex).Logger()
}
