package slog

import (
	"context"
	stdslog "log/slog"

	"github.com/unkn0wn-root/expcache"
)

var _ expcache.Logger = Logger{}

// Logger writes cache diagnostics to a *slog.Logger.
type Logger struct{ L *stdslog.Logger }

// New tags every record with component=expcache, like the logrus adapter.
func New(l *stdslog.Logger) Logger { return Logger{L: l.With("component", "expcache")} }

func (s Logger) Debug(msg string, f expcache.Fields) { s.log(stdslog.LevelDebug, msg, f) }
func (s Logger) Info(msg string, f expcache.Fields)  { s.log(stdslog.LevelInfo, msg, f) }
func (s Logger) Warn(msg string, f expcache.Fields)  { s.log(stdslog.LevelWarn, msg, f) }
func (s Logger) Error(msg string, f expcache.Fields) { s.log(stdslog.LevelError, msg, f) }

func (s Logger) log(level stdslog.Level, msg string, f expcache.Fields) {
	ctx := context.Background()
	if !s.L.Enabled(ctx, level) {
		return
	}
	attrs := make([]stdslog.Attr, 0, len(f))
	for k, v := range f {
		if err, ok := v.(error); ok {
			attrs = append(attrs, stdslog.String(k, err.Error()))
			continue
		}
		attrs = append(attrs, stdslog.Any(k, v))
	}
	s.L.LogAttrs(ctx, level, msg, attrs...)
}
