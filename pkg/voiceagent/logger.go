package voiceagent

import (
	"io"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog for structured logging
type Logger struct {
	logger zerolog.Logger
}

// LogConfig represents the configuration for logging
type LogConfig struct {
	Level     string
	Pretty    bool
	Output    io.Writer
	AddSource bool
	Fields    map[string]interface{}
}

// DefaultLogConfig returns a default logging configuration
func DefaultLogConfig() *LogConfig {
	return &LogConfig{
		Level:  "INFO",
		Pretty: true,
		Output: os.Stderr,
		Fields: make(map[string]interface{}),
	}
}

// ParseLevel maps config level names onto zerolog levels.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToUpper(level) {
	case "TRACE":
		return zerolog.TraceLevel
	case "DEBUG":
		return zerolog.DebugLevel
	case "WARN", "WARNING":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	case "DISABLED", "OFF":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new structured logger
func NewLogger(config *LogConfig) *Logger {
	if config == nil {
		config = DefaultLogConfig()
	}
	out := config.Output
	if out == nil {
		out = os.Stderr
	}

	zerolog.TimeFieldFormat = time.RFC3339

	var logger zerolog.Logger
	if config.Pretty {
		logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.Kitchen,
		})
	} else {
		logger = zerolog.New(out)
	}

	logger = logger.Level(ParseLevel(config.Level)).With().Timestamp().Logger()

	if config.AddSource {
		logger = logger.With().Caller().Logger()
	}
	if len(config.Fields) > 0 {
		logger = logger.With().Fields(config.Fields).Logger()
	}

	return &Logger{logger: logger}
}

// NopLogger discards everything. Used as the default in tests and libraries.
func NopLogger() *Logger {
	return &Logger{logger: zerolog.Nop()}
}

// Zerolog exposes the underlying logger.
func (l *Logger) Zerolog() zerolog.Logger {
	return l.logger
}

// WithComponent adds a component field to the logger
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{logger: l.logger.With().Str("component", component).Logger()}
}

// WithField adds a field to the logger
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{logger: l.logger.With().Interface(key, value).Logger()}
}

// WithError adds an error field to the logger
func (l *Logger) WithError(err error) *Logger {
	return &Logger{logger: l.logger.With().Err(err).Logger()}
}

func (l *Logger) Debug(msg string) { l.logger.Debug().Msg(msg) }

func (l *Logger) Debugf(format string, args ...interface{}) { l.logger.Debug().Msgf(format, args...) }

func (l *Logger) Info(msg string) { l.logger.Info().Msg(msg) }

func (l *Logger) Infof(format string, args ...interface{}) { l.logger.Info().Msgf(format, args...) }

func (l *Logger) Warn(msg string) { l.logger.Warn().Msg(msg) }

func (l *Logger) Warnf(format string, args ...interface{}) { l.logger.Warn().Msgf(format, args...) }

func (l *Logger) Error(msg string) { l.logger.Error().Msg(msg) }

func (l *Logger) Errorf(format string, args ...interface{}) { l.logger.Error().Msgf(format, args...) }

// Fatal logs a fatal level message and exits
func (l *Logger) Fatal(msg string) { l.logger.Fatal().Msg(msg) }

// LogConnectionEvent logs connection-related events
func (l *Logger) LogConnectionEvent(event string, state State, fields map[string]interface{}) {
	l.logger.Info().
		Str("event_type", "connection").
		Str("event", event).
		Str("state", string(state)).
		Fields(fields).
		Msg("Connection event")
}

// LogSessionError logs a SessionError with structured fields
func (l *Logger) LogSessionError(err *SessionError) {
	ev := l.logger.Error()
	if err.Kind == ErrConnectionClosed {
		ev = l.logger.Warn()
	}
	ev.Str("error_kind", string(err.Kind)).
		Int("attempts", err.Attempts).
		Err(err.Err).
		Msg(err.Message)
}

// LogMessageEvent logs outbound and inbound message events
func (l *Logger) LogMessageEvent(direction, msgType string, size int) {
	l.logger.Debug().
		Str("event_type", "message").
		Str("direction", direction).
		Str("message_type", msgType).
		Int("bytes", size).
		Msg("Message event")
}

var globalLogger atomic.Pointer[Logger]

func init() {
	globalLogger.Store(NewLogger(DefaultLogConfig()))
}

// GetGlobalLogger returns the global logger instance
func GetGlobalLogger() *Logger {
	return globalLogger.Load()
}

// SetGlobalLogger sets the global logger instance. A nil logger is ignored.
func SetGlobalLogger(logger *Logger) {
	if logger == nil {
		return
	}
	globalLogger.Store(logger)
}
