// Package logging backs the log.Logger interface the rest of the codebase
// depends on with a concrete github.com/sirupsen/logrus implementation, the
// only logging library the server binary actually wires up.
package logging

import (
	"github.com/sirupsen/logrus"

	"github.com/grafana/monogit/log"
)

type logrusLogger struct {
	entry *logrus.Entry
}

var _ log.Logger = (*logrusLogger)(nil)

// New returns a log.Logger backed by logrus at the given level ("debug",
// "info", "warn", "error"), emitting JSON lines when json is true and a
// human-readable text format otherwise.
func New(level string, json bool) (log.Logger, error) {
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, err
	}

	l := logrus.New()
	l.SetLevel(parsed)
	if json {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	return &logrusLogger{entry: logrus.NewEntry(l)}, nil
}

// fields turns the Logger interface's flat key/value varargs into
// logrus.Fields, skipping any trailing unpaired key and any key that isn't
// a string (both silently dropped rather than logged, so a malformed call
// site never itself causes a logging failure).
func fields(keysAndValues []any) logrus.Fields {
	f := make(logrus.Fields, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		f[key] = keysAndValues[i+1]
	}
	return f
}

func (l *logrusLogger) Debug(msg string, keysAndValues ...any) {
	l.entry.WithFields(fields(keysAndValues)).Debug(msg)
}

func (l *logrusLogger) Info(msg string, keysAndValues ...any) {
	l.entry.WithFields(fields(keysAndValues)).Info(msg)
}

func (l *logrusLogger) Warn(msg string, keysAndValues ...any) {
	l.entry.WithFields(fields(keysAndValues)).Warn(msg)
}

func (l *logrusLogger) Error(msg string, keysAndValues ...any) {
	l.entry.WithFields(fields(keysAndValues)).Error(msg)
}
