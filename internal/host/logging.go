package host

import (
	"io"
	"log/slog"
	"strings"
)

type LogFormat string

const (
	JSONFormat LogFormat = "json"
	TextFormat LogFormat = "text"
)

func NewLogger(w io.Writer, format LogFormat, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(string(format), string(TextFormat)) {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// SetupLogging installs the process-wide logger.
func SetupLogging(w io.Writer, format LogFormat, level slog.Level) *slog.Logger {
	logger := NewLogger(w, format, level)
	slog.SetDefault(logger)
	return logger
}
