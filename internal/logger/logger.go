package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"

	"codeberg.org/halcyard/taskguard/internal/errors"
)

var log zerolog.Logger

type LogLevel int8

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

type LogEvent struct {
	*zerolog.Event
}

func (e *LogEvent) Msg(msg string) {
	e.Event.Msg(msg)
}

func (e *LogEvent) Send() {
	e.Event.Send()
}

// Init initializes the logger based on the given configuration
func Init(level string, isService bool) {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}

	if isService {
		output.TimeFormat = ""
		output.FormatTimestamp = func(_ interface{}) string {
			return ""
		}
	}

	log = zerolog.New(output).With().Timestamp().Logger()

	SetLogLevel(parseLevel(level))
}

// SetLogLevel sets the global log level
func SetLogLevel(level LogLevel) {
	zerolog.SetGlobalLevel(zerolog.Level(level))
}

func parseLevel(level string) LogLevel {
	switch level {
	case "debug":
		return DebugLevel
	case "info":
		return InfoLevel
	case "warning", "warn":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

// IsService checks if the application is running under a service manager
func IsService() bool {
	if os.Getenv("SERVICE_NAME") != "" || os.Getenv("INVOCATION_ID") != "" {
		return true
	}

	return os.Getppid() == 1
}

// Debug logs a debug message
func Debug() *LogEvent {
	return &LogEvent{log.Debug()}
}

// Info logs an info message
func Info() *LogEvent {
	return &LogEvent{log.Info()}
}

// Warn logs a warning message
func Warn() *LogEvent {
	return &LogEvent{log.Warn()}
}

// Error logs an error message
func Error() *LogEvent {
	return &LogEvent{log.Error()}
}

// ErrorWithCode logs an error message with a specific error code
func ErrorWithCode(err errors.Error) *LogEvent {
	return &LogEvent{log.Error().
		Str("error_code", string(err.Code())).
		AnErr("error", err.Unwrap())}
}

// Fatal logs a fatal message and exits the program
func Fatal() *LogEvent {
	return &LogEvent{log.Fatal()}
}

// componentLogger scopes every event to a named component.
type componentLogger struct {
	l zerolog.Logger
}

// Component returns a Logger whose events carry a component field.
func Component(name string) Logger {
	return &componentLogger{l: log.With().Str("component", name).Logger()}
}

func (c *componentLogger) Debug() *LogEvent { return &LogEvent{c.l.Debug()} }

func (c *componentLogger) Info() *LogEvent { return &LogEvent{c.l.Info()} }

func (c *componentLogger) Warn() *LogEvent { return &LogEvent{c.l.Warn()} }

func (c *componentLogger) Error() *LogEvent { return &LogEvent{c.l.Error()} }

func (c *componentLogger) ErrorWithCode(err errors.Error) *LogEvent {
	return &LogEvent{c.l.Error().
		Str("error_code", string(err.Code())).
		AnErr("error", err.Unwrap())}
}

func (c *componentLogger) With(component string) Logger {
	return &componentLogger{l: c.l.With().Str("component", component).Logger()}
}
