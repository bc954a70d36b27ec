// Package klog is the kernel console log. Every subsystem logs through a
// logger carrying its subsystem name so that output can be filtered.
package klog

import "io"
import "log/slog"
import "os"
import "sync/atomic"

var level slog.LevelVar

var root atomic.Pointer[slog.Logger]

func init() {
	level.Set(slog.LevelInfo)
	SetOutput(os.Stderr)
}

// SetOutput redirects all subsystem loggers, including ones obtained
// before the call.
func SetOutput(w io.Writer) {
	h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: &level})
	root.Store(slog.New(h))
}

func SetLevel(l slog.Level) {
	level.Set(l)
}

type Log_t struct {
	subsys string
}

func Mklog(subsys string) *Log_t {
	return &Log_t{subsys: subsys}
}

func (l *Log_t) logger() *slog.Logger {
	return root.Load().With("subsys", l.subsys)
}

func (l *Log_t) Debug(msg string, args ...any) {
	l.logger().Debug(msg, args...)
}

func (l *Log_t) Info(msg string, args ...any) {
	l.logger().Info(msg, args...)
}

func (l *Log_t) Warn(msg string, args ...any) {
	l.logger().Warn(msg, args...)
}

func (l *Log_t) Error(msg string, args ...any) {
	l.logger().Error(msg, args...)
}
