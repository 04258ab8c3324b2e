package client

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// RequestLogger is the interface used by [Client] for logging HTTP requests,
// retries and errors. It matches the logger interface of resty, so the same
// implementation receives the transport's own diagnostics. Supply an
// implementation via [WithRequestLogger].
type RequestLogger interface {
	Errorf(format string, v ...any)
	Warnf(format string, v ...any)
	Debugf(format string, v ...any)
}

// NoopLogger is a [RequestLogger] that silently discards all log messages.
// It is the default logger used when no logger is provided to [New].
type NoopLogger struct{}

func (l *NoopLogger) Errorf(_ string, _ ...any) {}
func (l *NoopLogger) Warnf(_ string, _ ...any)  {}
func (l *NoopLogger) Debugf(_ string, _ ...any) {}

const loggerComponent = "iot-ingest-client"

// ZerologLogger adapts a zerolog logger to [RequestLogger].
type ZerologLogger struct {
	logger zerolog.Logger
}

// NewZerologLogger returns a [RequestLogger] writing through logger, tagged
// with a component field.
func NewZerologLogger(logger zerolog.Logger) *ZerologLogger {
	return &ZerologLogger{
		logger: logger.With().Str("component", loggerComponent).Logger(),
	}
}

func (l *ZerologLogger) Errorf(format string, v ...any) {
	l.logger.Error().Msg(trimMessage(format, v...))
}

func (l *ZerologLogger) Warnf(format string, v ...any) {
	l.logger.Warn().Msg(trimMessage(format, v...))
}

func (l *ZerologLogger) Debugf(format string, v ...any) {
	l.logger.Debug().Msg(trimMessage(format, v...))
}

// resty terminates its messages with a newline; zerolog adds its own.
func trimMessage(format string, v ...any) string {
	return strings.TrimRight(fmt.Sprintf(format, v...), "\n")
}
