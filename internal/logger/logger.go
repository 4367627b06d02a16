// Package logger implements the logging interface used by the marketplace
// services. It is a thin wrapper around zerolog; loggers are created
// explicitly and injected, there is no package level global.
package logger

import (
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
)

type (
	Logger interface {
		Trace(format string, args ...interface{})
		Debug(format string, args ...interface{})
		Info(format string, args ...interface{})
		Warning(format string, args ...interface{})
		Error(format string, args ...interface{})
		// ChangeLevel changes logger level to the newLevel
		ChangeLevel(newLevel LogLevel)
	}

	ZeroLogger struct {
		zl zerolog.Logger
	}

	LogLevel uint
)

const (
	NONE LogLevel = iota
	ERROR
	WARNING
	INFO
	DEBUG
	TRACE
)

func LevelFromString(s string) LogLevel {
	switch s {
	case "NONE":
		return NONE
	case "ERROR":
		return ERROR
	case "WARNING":
		return WARNING
	case "INFO":
		return INFO
	case "DEBUG":
		return DEBUG
	case "TRACE":
		return TRACE
	default:
		return INFO
	}
}

// New creates a named logger writing to w. When console is true the output is
// rendered for humans, otherwise structured JSON is written.
func New(name string, level LogLevel, w io.Writer, console bool) *ZeroLogger {
	if console {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	zl := zerolog.New(w).Level(toZeroLevel(level)).With().Timestamp().Str("module", name).Logger()
	return &ZeroLogger{zl: zl}
}

func (l *ZeroLogger) Trace(format string, args ...interface{}) {
	l.logMessage(l.zl.Trace(), format, args)
}

func (l *ZeroLogger) Debug(format string, args ...interface{}) {
	l.logMessage(l.zl.Debug(), format, args)
}

func (l *ZeroLogger) Info(format string, args ...interface{}) {
	l.logMessage(l.zl.Info(), format, args)
}

func (l *ZeroLogger) Warning(format string, args ...interface{}) {
	l.logMessage(l.zl.Warn(), format, args)
}

func (l *ZeroLogger) Error(format string, args ...interface{}) {
	l.logMessage(l.zl.Error(), format, args)
}

func (l *ZeroLogger) ChangeLevel(newLevel LogLevel) {
	l.zl = l.zl.Level(toZeroLevel(newLevel))
}

func (l *ZeroLogger) logMessage(event *zerolog.Event, format string, args []interface{}) {
	if len(args) == 0 {
		event.Msg(format)
		return
	}
	event.Msg(fmt.Sprintf(format, args...))
}

func toZeroLevel(level LogLevel) zerolog.Level {
	switch level {
	case NONE:
		return zerolog.Disabled
	case ERROR:
		return zerolog.ErrorLevel
	case WARNING:
		return zerolog.WarnLevel
	case INFO:
		return zerolog.InfoLevel
	case DEBUG:
		return zerolog.DebugLevel
	case TRACE:
		return zerolog.TraceLevel
	}
	return zerolog.InfoLevel
}
