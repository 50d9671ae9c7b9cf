package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// 标准化的结构化日志字段名。
const (
	FieldRunID  = "run_id"
	FieldPhase  = "phase"
	FieldID     = "id"
	FieldSource = "source"
)

// Options 描述 logger 的构造参数。
type Options struct {
	Level  string // debug/info/warn/error，默认 info
	Format string // console/json，默认 console
	// Writer 默认 os.Stderr（stdout 只输出 report JSON）。
	Writer io.Writer
}

// New 按 Options 构造 slog logger。
func New(opts Options) (*slog.Logger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}

	hopts := &slog.HandlerOptions{Level: level, AddSource: level <= slog.LevelDebug}

	var h slog.Handler
	switch strings.ToLower(strings.TrimSpace(opts.Format)) {
	case "", "console", "text":
		h = slog.NewTextHandler(w, hopts)
	case "json":
		h = slog.NewJSONHandler(w, hopts)
	default:
		return nil, fmt.Errorf("log.format 只能是 console 或 json，实际是 %q", opts.Format)
	}
	return slog.New(h), nil
}

// ParseLevel 解析日志级别；空字符串视为 info。
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("log.level 只能是 debug/info/warn/error，实际是 %q", s)
	}
}

// NewNop 返回丢弃所有输出的 logger。
func NewNop() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

type ctxKey struct{}

// WithContext 把 logger 放入 ctx。
func WithContext(ctx context.Context, l *slog.Logger) context.Context {
	if l == nil {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext 取出 ctx 中的 logger；不存在时返回 NewNop()。
func FromContext(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok && l != nil {
			return l
		}
	}
	return NewNop()
}
