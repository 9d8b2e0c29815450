// Package logging configures logrus for the endpoint and hands out entries
// tagged with the package and function that log through them.
package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Options configures the root logger.
type Options struct {
	Debug  bool
	JSON   bool
	Output io.Writer
}

// New builds the root logger. Debug mode lowers the level so every handshake
// and channel step is reported.
func New(opts Options) *logrus.Logger {
	l := logrus.New()
	if opts.Output != nil {
		l.SetOutput(opts.Output)
	} else {
		l.SetOutput(os.Stderr)
	}
	if opts.JSON {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	l.SetLevel(logrus.InfoLevel)
	if opts.Debug {
		l.SetLevel(logrus.DebugLevel)
	}
	return l
}

// Discard returns an entry that drops everything.
func Discard() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

// For returns an entry carrying package and function fields. A nil base logs
// through a discarding logger.
func For(base *logrus.Entry, pkg, function string) *logrus.Entry {
	if base == nil {
		base = Discard()
	}
	return base.WithFields(logrus.Fields{
		"package":  pkg,
		"function": function,
	})
}
