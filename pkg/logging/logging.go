package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

type Config struct {
	// Level is the minimum level emitted. Defaults to info.
	Level slog.Level
	// AddSource annotates records with the file:line of the call site.
	AddSource bool
	// Output defaults to stderr.
	Output io.Writer
	// RateLimit, when set, caps the rate of non-error records. Error
	// records are never dropped.
	RateLimit RateLimitConfig
}

func ParseLevel(lvlStr string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(lvlStr)); err != nil {
		return 0, fmt.Errorf("parsing log level %q: %w", lvlStr, err)
	}
	return lvl, nil
}

func New(cfg Config) *Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	var replace func(groups []string, a slog.Attr) slog.Attr
	if cfg.AddSource {
		replace = func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.SourceKey {
				source := a.Value.Any().(*slog.Source)
				source.File = filepath.Base(source.File)
			}
			return a
		}
	}

	var handler slog.Handler = slog.NewTextHandler(out, &slog.HandlerOptions{
		AddSource:   cfg.AddSource,
		Level:       cfg.Level,
		ReplaceAttr: replace,
	})
	if cfg.RateLimit.Limit != 0 {
		handler = newRateLimitHandler(handler, cfg.RateLimit)
	}

	return &Logger{log: slog.New(handler)}
}

// NewTestLog returns a debug-level logger for tests.
func NewTestLog() *Logger {
	return New(Config{Level: slog.LevelDebug})
}

type Logger struct {
	log *slog.Logger
}

func (l *Logger) Debug(msg string) {
	l.doLog(slog.LevelDebug, msg) //nolint:govet
}

func (l *Logger) Debugf(format string, a ...any) {
	l.doLog(slog.LevelDebug, format, a...)
}

func (l *Logger) Info(msg string) {
	l.doLog(slog.LevelInfo, msg) //nolint:govet
}

func (l *Logger) Infof(format string, a ...any) {
	l.doLog(slog.LevelInfo, format, a...)
}

func (l *Logger) Warn(msg string) {
	l.doLog(slog.LevelWarn, msg) //nolint:govet
}

func (l *Logger) Warnf(format string, a ...any) {
	l.doLog(slog.LevelWarn, format, a...)
}

func (l *Logger) Error(msg string) {
	l.doLog(slog.LevelError, msg) //nolint:govet
}

func (l *Logger) Errorf(format string, a ...any) {
	l.doLog(slog.LevelError, format, a...)
}

func (l *Logger) Fatal(msg string) {
	l.doLog(slog.LevelError, msg) //nolint:govet
	os.Exit(1)
}

func (l *Logger) IsEnabled(lvl slog.Level) bool {
	return l.log.Handler().Enabled(context.Background(), lvl)
}

func (l *Logger) With(args ...any) *Logger {
	return &Logger{log: l.log.With(args...)}
}

func (l *Logger) WithField(k, v string) *Logger {
	return &Logger{log: l.log.With(slog.String(k, v))}
}

func (l *Logger) doLog(lvl slog.Level, msg string, args ...any) {
	ctx := context.Background()
	if !l.log.Handler().Enabled(ctx, lvl) {
		return
	}
	var pcs [1]uintptr
	runtime.Callers(3, pcs[:])
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}
	r := slog.NewRecord(time.Now(), lvl, msg, pcs[0])
	_ = l.log.Handler().Handle(ctx, r)
}
