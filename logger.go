package awsiot

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// LogLevel represents the logging level.
type LogLevel int

const (
	// LogLevelDebug is the debug log level.
	LogLevelDebug LogLevel = iota
	// LogLevelInfo is the info log level.
	LogLevelInfo
	// LogLevelWarn is the warn log level.
	LogLevelWarn
	// LogLevelError is the error log level.
	LogLevelError
	// LogLevelNone disables all logging.
	LogLevelNone
)

// String returns the string representation of the log level.
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	case LogLevelNone:
		return "NONE"
	default:
		return "UNKNOWN"
	}
}

// LogFields represents key-value pairs for structured logging.
type LogFields map[string]any

// Logger defines the interface for logging.
type Logger interface {
	// Debug logs a debug message.
	Debug(msg string, fields LogFields)

	// Info logs an info message.
	Info(msg string, fields LogFields)

	// Warn logs a warning message.
	Warn(msg string, fields LogFields)

	// Error logs an error message.
	Error(msg string, fields LogFields)

	// WithFields returns a new logger with the given fields added.
	WithFields(fields LogFields) Logger

	// Level returns the current log level.
	Level() LogLevel

	// SetLevel sets the log level.
	SetLevel(level LogLevel)
}

// NoOpLogger is a logger that does nothing.
type NoOpLogger struct {
	level LogLevel
}

// NewNoOpLogger creates a new no-op logger.
func NewNoOpLogger() *NoOpLogger {
	return &NoOpLogger{level: LogLevelNone}
}

// Debug does nothing.
func (n *NoOpLogger) Debug(_ string, _ LogFields) {}

// Info does nothing.
func (n *NoOpLogger) Info(_ string, _ LogFields) {}

// Warn does nothing.
func (n *NoOpLogger) Warn(_ string, _ LogFields) {}

// Error does nothing.
func (n *NoOpLogger) Error(_ string, _ LogFields) {}

// WithFields returns the same logger.
func (n *NoOpLogger) WithFields(_ LogFields) Logger {
	return n
}

// Level returns the log level.
func (n *NoOpLogger) Level() LogLevel {
	return n.level
}

// SetLevel sets the log level.
func (n *NoOpLogger) SetLevel(level LogLevel) {
	n.level = level
}

// ZerologLogger writes structured JSON lines through zerolog.
type ZerologLogger struct {
	logger zerolog.Logger
	level  LogLevel
}

// NewZerologLogger creates a logger writing to w (stderr when nil).
func NewZerologLogger(w io.Writer, level LogLevel) *ZerologLogger {
	if w == nil {
		w = os.Stderr
	}
	return &ZerologLogger{
		logger: zerolog.New(w).With().Timestamp().Logger(),
		level:  level,
	}
}

// NewZerologLoggerFrom wraps an already configured zerolog logger.
func NewZerologLoggerFrom(logger zerolog.Logger, level LogLevel) *ZerologLogger {
	return &ZerologLogger{logger: logger, level: level}
}

// Debug logs a debug message.
func (z *ZerologLogger) Debug(msg string, fields LogFields) {
	if z.level <= LogLevelDebug {
		z.logger.Debug().Fields(map[string]any(fields)).Msg(msg)
	}
}

// Info logs an info message.
func (z *ZerologLogger) Info(msg string, fields LogFields) {
	if z.level <= LogLevelInfo {
		z.logger.Info().Fields(map[string]any(fields)).Msg(msg)
	}
}

// Warn logs a warning message.
func (z *ZerologLogger) Warn(msg string, fields LogFields) {
	if z.level <= LogLevelWarn {
		z.logger.Warn().Fields(map[string]any(fields)).Msg(msg)
	}
}

// Error logs an error message.
func (z *ZerologLogger) Error(msg string, fields LogFields) {
	if z.level <= LogLevelError {
		z.logger.Error().Fields(map[string]any(fields)).Msg(msg)
	}
}

// WithFields returns a new logger with the given fields added.
func (z *ZerologLogger) WithFields(fields LogFields) Logger {
	return &ZerologLogger{
		logger: z.logger.With().Fields(map[string]any(fields)).Logger(),
		level:  z.level,
	}
}

// Level returns the current log level.
func (z *ZerologLogger) Level() LogLevel {
	return z.level
}

// SetLevel sets the log level.
func (z *ZerologLogger) SetLevel(level LogLevel) {
	z.level = level
}

// Standard field names for AWS IoT logging.
const (
	// LogFieldTopic is the topic field.
	LogFieldTopic = "topic"

	// LogFieldFilter is the topic filter field.
	LogFieldFilter = "filter"

	// LogFieldClientToken is the correlation token field.
	LogFieldClientToken = "client_token"

	// LogFieldOperationID is the request/response operation id field.
	LogFieldOperationID = "operation_id"

	// LogFieldThingName is the thing name field.
	LogFieldThingName = "thing_name"

	// LogFieldStatus is the subscription or task status field.
	LogFieldStatus = "status"

	// LogFieldError is the error field.
	LogFieldError = "error"

	// LogFieldDuration is the duration field.
	LogFieldDuration = "duration"

	// LogFieldBytes is the bytes field.
	LogFieldBytes = "bytes"
)
