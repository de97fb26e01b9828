// Package rtpslog provides the logging backend shared by every
// Participant component, wrapping gopkg.in/op/go-logging.v1 the way a
// daemon's glue.LogBackend() hands out per-component loggers.
package rtpslog

import (
	"io"
	"os"

	logging "gopkg.in/op/go-logging.v1"
)

var stdFormat = logging.MustStringFormatter(
	`%{time:15:04:05.000} %{level:.4s} %{module}: %{message}`,
)

// Backend owns the single process-wide go-logging backend for a
// Participant and vends per-component *Logger instances from it.
type Backend struct {
	backend logging.LeveledBackend
}

// New constructs a Backend writing formatted records to w at the given
// minimum level ("DEBUG", "INFO", "WARNING", "ERROR", "CRITICAL").
func New(w io.Writer, level string) (*Backend, error) {
	if w == nil {
		w = os.Stderr
	}
	lvl, err := logging.LogLevel(level)
	if err != nil {
		return nil, err
	}
	base := logging.NewLogBackend(w, "", 0)
	formatted := logging.NewBackendFormatter(base, stdFormat)
	leveled := logging.AddModuleLevel(formatted)
	leveled.SetLevel(lvl, "")
	return &Backend{backend: leveled}, nil
}

// GetLogger returns a *Logger scoped to the named component (e.g.
// "pdp", "sedp", "wlp", or "writer:<guid>").
func (b *Backend) GetLogger(module string) *Logger {
	l := logging.MustGetLogger(module)
	l.SetBackend(b.backend)
	return &Logger{l: l}
}

// Logger is a per-component logging handle.
type Logger struct {
	l *logging.Logger
}

func (l *Logger) Debugf(format string, args ...interface{})    { l.l.Debugf(format, args...) }
func (l *Logger) Infof(format string, args ...interface{})     { l.l.Infof(format, args...) }
func (l *Logger) Warningf(format string, args ...interface{})  { l.l.Warningf(format, args...) }
func (l *Logger) Errorf(format string, args ...interface{})    { l.l.Errorf(format, args...) }
func (l *Logger) Debug(args ...interface{})                    { l.l.Debug(args...) }
func (l *Logger) Info(args ...interface{})                      { l.l.Info(args...) }
func (l *Logger) Warning(args ...interface{})                   { l.l.Warning(args...) }
func (l *Logger) Error(args ...interface{})                     { l.l.Error(args...) }
