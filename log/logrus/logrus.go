package logrus

import (
	"github.com/sirupsen/logrus"
	"github.com/unkn0wn-root/expcache"
)

var _ expcache.Logger = LogrusLogger{}

type LogrusLogger struct{ E *logrus.Entry }

// New tags every entry with component=expcache.
func New(l *logrus.Logger) LogrusLogger {
	return LogrusLogger{E: l.WithField("component", "expcache")}
}

func (l LogrusLogger) Debug(msg string, f expcache.Fields) {
	l.E.WithFields(logrus.Fields(f)).Debug(msg)
}
func (l LogrusLogger) Info(msg string, f expcache.Fields) { l.E.WithFields(logrus.Fields(f)).Info(msg) }
func (l LogrusLogger) Warn(msg string, f expcache.Fields) { l.E.WithFields(logrus.Fields(f)).Warn(msg) }
func (l LogrusLogger) Error(msg string, f expcache.Fields) {
	l.E.WithFields(logrus.Fields(f)).Error(msg)
}
