package logger

import (
	"context"
	"log/slog"
	"runtime"
)

type sourceThresholdHandler struct {
	next slog.Handler
	from slog.Level
}

// NewSourceThresholdHandler attaches the caller location to records at or
// above level from. The wrapped handler must not set AddSource itself.
func NewSourceThresholdHandler(next slog.Handler, from slog.Level) slog.Handler {
	return &sourceThresholdHandler{next: next, from: from}
}

func (h *sourceThresholdHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *sourceThresholdHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= h.from && r.PC != 0 {
		frame, _ := runtime.CallersFrames([]uintptr{r.PC}).Next()
		r.AddAttrs(slog.Any(slog.SourceKey, &slog.Source{
			Function: frame.Function,
			File:     frame.File,
			Line:     frame.Line,
		}))
	}
	return h.next.Handle(ctx, r)
}

func (h *sourceThresholdHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &sourceThresholdHandler{next: h.next.WithAttrs(attrs), from: h.from}
}

func (h *sourceThresholdHandler) WithGroup(name string) slog.Handler {
	return &sourceThresholdHandler{next: h.next.WithGroup(name), from: h.from}
}
