package logging

import (
	"context"
	"log/slog"
	"sync/atomic"

	"golang.org/x/time/rate"
)

type RateLimitConfig struct {
	Limit rate.Limit
	Burst int
}

// rateLimitHandler drops records above the configured rate. Per-snapshot
// loops over large inventories can otherwise flood the log under cron.
type rateLimitHandler struct {
	next    slog.Handler
	limiter *rate.Limiter
	dropped *atomic.Uint64
}

func newRateLimitHandler(next slog.Handler, cfg RateLimitConfig) slog.Handler {
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &rateLimitHandler{
		next:    next,
		limiter: rate.NewLimiter(cfg.Limit, burst),
		dropped: &atomic.Uint64{},
	}
}

func (h *rateLimitHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if !h.next.Enabled(ctx, level) {
		return false
	}
	if level >= slog.LevelError {
		return true
	}
	if !h.limiter.Allow() {
		h.dropped.Add(1)
		return false
	}
	return true
}

func (h *rateLimitHandler) Handle(ctx context.Context, record slog.Record) error {
	return h.next.Handle(ctx, record)
}

func (h *rateLimitHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &rateLimitHandler{next: h.next.WithAttrs(attrs), limiter: h.limiter, dropped: h.dropped}
}

func (h *rateLimitHandler) WithGroup(name string) slog.Handler {
	return &rateLimitHandler{next: h.next.WithGroup(name), limiter: h.limiter, dropped: h.dropped}
}

// Dropped reports how many records were discarded by rate limiting.
func (h *rateLimitHandler) Dropped() uint64 {
	return h.dropped.Load()
}
