// Package netlog provides the leveled logging interface shared by the
// naming server, storage server, and client, backed by logrus.
package netlog

import (
	"os"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

// Logger is the leveled logging interface used throughout netfsd.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
}

// logrusLogger wraps a logrus.Logger tagged with a component name.
type logrusLogger struct {
	entry *logrus.Entry
	debug bool
}

// New creates a logger for the named component (e.g. "ns", "ss", "client").
// debug enables Debug-level output; without it Debug calls are discarded.
func New(component string, debug bool) Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:          true,
		DisableLevelTruncation: false,
		ForceColors:            isatty.IsTerminal(os.Stderr.Fd()),
	})
	if debug {
		l.SetLevel(logrus.DebugLevel)
	} else {
		l.SetLevel(logrus.InfoLevel)
	}
	return &logrusLogger{entry: l.WithField("component", component), debug: debug}
}

func (l *logrusLogger) Debug(msg string, args ...interface{}) { l.entry.Debugf(msg, args...) }
func (l *logrusLogger) Info(msg string, args ...interface{})  { l.entry.Infof(msg, args...) }
func (l *logrusLogger) Warn(msg string, args ...interface{})  { l.entry.Warnf(msg, args...) }
func (l *logrusLogger) Error(msg string, args ...interface{}) { l.entry.Errorf(msg, args...) }

// Null discards all log messages; used by tests.
type Null struct{}

func (Null) Debug(string, ...interface{}) {}
func (Null) Info(string, ...interface{})  {}
func (Null) Warn(string, ...interface{})  {}
func (Null) Error(string, ...interface{}) {}
