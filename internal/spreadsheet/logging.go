package spreadsheet

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// LogLevel mirrors zerolog's level scale so callers configuring an engine
// never need to import zerolog directly.
type LogLevel int8

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
	LogLevelDisabled
)

func (l LogLevel) zerolog() zerolog.Level {
	switch l {
	case LogLevelDebug:
		return zerolog.DebugLevel
	case LogLevelInfo:
		return zerolog.InfoLevel
	case LogLevelWarn:
		return zerolog.WarnLevel
	case LogLevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.Disabled
	}
}

// newEngineLogger builds the structured logger attached to a Spreadsheet.
// It logs at recompute-pass and structural-edit granularity only - never on
// the per-cell evaluation hot path, since a large recompute can touch
// hundreds of thousands of cells.
func newEngineLogger(level LogLevel, sessionID string, w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	return zerolog.New(w).
		Level(level.zerolog()).
		With().
		Timestamp().
		Str("session_id", sessionID).
		Logger()
}
