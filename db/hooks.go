package db

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// Hook observes every statement. Implementations MUST be goroutine-safe and
// SHOULD NOT block. Panics inside a hook are recovered and logged.
type Hook interface {
	BeforeQuery(ctx context.Context, query string, args []any)

	// AfterQuery receives the wall-clock driver time and the already-mapped
	// error (nil on success).
	AfterQuery(ctx context.Context, query string, args []any, duration time.Duration, err error)
}

type hookChain struct {
	hooks []Hook
}

func newHookChain(hooks []Hook) hookChain {
	filtered := make([]Hook, 0, len(hooks))
	for _, h := range hooks {
		if h != nil {
			filtered = append(filtered, h)
		}
	}
	return hookChain{hooks: filtered}
}

func (c hookChain) Before(ctx context.Context, query string, args []any) {
	for _, h := range c.hooks {
		func() {
			defer recoverHook("BeforeQuery")
			h.BeforeQuery(ctx, query, args)
		}()
	}
}

func (c hookChain) After(ctx context.Context, query string, args []any, d time.Duration, err error) {
	for _, h := range c.hooks {
		func() {
			defer recoverHook("AfterQuery")
			h.AfterQuery(ctx, query, args, d, err)
		}()
	}
}

func recoverHook(stage string) {
	if r := recover(); r != nil {
		slog.Error("user-service/db: hook panic", "stage", stage, "panic", r)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Logging hook
// ─────────────────────────────────────────────────────────────────────────────

// LogHookConfig configures the structured logging hook.
type LogHookConfig struct {
	// Logger defaults to slog.Default() if nil.
	Logger *slog.Logger
	// SlowQueryThreshold logs a warning when exceeded. Zero disables it.
	SlowQueryThreshold time.Duration
	// LogArgs includes bound parameters. Leave off outside development:
	// user rows carry passwords.
	LogArgs bool
}

// NewLogHook returns a Hook that emits one slog record per statement.
func NewLogHook(cfg LogHookConfig) Hook {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &logHook{cfg: cfg, logger: logger}
}

type logHook struct {
	cfg    LogHookConfig
	logger *slog.Logger
}

func (h *logHook) BeforeQuery(context.Context, string, []any) {}

func (h *logHook) AfterQuery(ctx context.Context, query string, args []any, d time.Duration, err error) {
	attrs := []any{
		slog.String("query", compactQuery(query)),
		slog.Duration("duration", d),
	}
	if h.cfg.LogArgs && len(args) > 0 {
		attrs = append(attrs, slog.Any("args", args))
	}

	switch {
	case err != nil && !IsNotFound(err):
		h.logger.ErrorContext(ctx, "user-service/db: query error", append(attrs, slog.Any("error", err))...)
	case h.cfg.SlowQueryThreshold > 0 && d > h.cfg.SlowQueryThreshold:
		h.logger.WarnContext(ctx, "user-service/db: slow query", attrs...)
	default:
		h.logger.DebugContext(ctx, "user-service/db: query", attrs...)
	}
}

// compactQuery collapses the indentation of multi-line SQL constants and
// truncates very long statements.
func compactQuery(q string) string {
	q = strings.Join(strings.Fields(q), " ")
	if len(q) > 500 {
		return q[:500] + "…"
	}
	return q
}
