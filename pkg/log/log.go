// Package log wraps zerolog the way the teacher repository's pkg/log is
// used from core/conn and core/pub (Debugf/Warnf call sites): a small
// leveled façade instead of passing a *zerolog.Logger around directly, so
// call sites read the same regardless of which structured-logging backend
// is behind them.
package log

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"go.elastic.co/ecszerolog"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Logger is a thin, leveled wrapper around zerolog.Logger.
type Logger struct {
	z zerolog.Logger
}

// New returns a development-friendly Logger that writes colorized,
// human-readable lines to w (os.Stderr if w is nil).
func New(w io.Writer) *Logger {
	if w == nil {
		w = os.Stderr
	}
	console := zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	return &Logger{z: zerolog.New(console).With().Timestamp().Logger()}
}

// NewRotatingFile returns a Logger that writes ECS-formatted JSON lines to a
// size- and age-rotated file, suitable for production deployments that ship
// logs to a log pipeline.
func NewRotatingFile(path string, maxSizeMB, maxBackups, maxAgeDays int) *Logger {
	rot := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     maxAgeDays,
	}
	return &Logger{z: ecszerolog.New(rot).With().Timestamp().Logger()}
}

// Nop returns a Logger that discards everything — the default for
// components that weren't given one explicitly.
func Nop() *Logger {
	return &Logger{z: zerolog.Nop()}
}

func (l *Logger) with() zerolog.Logger {
	if l == nil {
		return zerolog.Nop()
	}
	return l.z
}

// Debugf logs at debug level.
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.with().Debug().Msgf(format, args...)
}

// Warnf logs at warn level.
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.with().Warn().Msgf(format, args...)
}

// Errorf logs at error level.
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.with().Error().Msgf(format, args...)
}

// With returns a child Logger with a string field attached, for tagging
// log lines with a stream name, producer id, or similar correlation data.
func (l *Logger) With(key, value string) *Logger {
	return &Logger{z: l.with().With().Str(key, value).Logger()}
}
