// Package exalog provides the structured logging wrapper used throughout
// vrtcore. It plays the role the original Exanodes sources gave to
// exalog_debug / exalog_warning / exalog_error: a thin logger tagged with
// the name of the component that owns it.
package exalog

import (
	"github.com/sirupsen/logrus"
)

// Logger is a named, structured logger for one component (e.g. "vrt.group",
// "pr", "token"). Each vrtcore package calls New once, for its own component
// name, and keeps the result in a package-level log variable.
type Logger struct {
	entry *logrus.Entry
}

// New returns a Logger tagged with the given component name.
func New(component string) *Logger {
	return &Logger{entry: logrus.WithField("component", component)}
}

// With returns a derived Logger carrying an additional structured field,
// e.g. l.With("lun", lun).Warning("...").
func (l *Logger) With(key string, value interface{}) *Logger {
	return &Logger{entry: l.entry.WithField(key, value)}
}

func (l *Logger) Debug(args ...interface{})                 { l.entry.Debug(args...) }
func (l *Logger) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }
func (l *Logger) Warning(args ...interface{})                 { l.entry.Warning(args...) }
func (l *Logger) Warningf(format string, args ...interface{}) { l.entry.Warningf(format, args...) }
func (l *Logger) Error(args ...interface{})                 { l.entry.Error(args...) }
func (l *Logger) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }
