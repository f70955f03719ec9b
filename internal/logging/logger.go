package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// CategoryKey is the attribute used to tag log records with a subsystem.
const CategoryKey = "category"

// New creates a JSON slog logger configured at the provided level. If the
// level string is invalid it defaults to info. Records tagged with one of the
// suppressed categories are dropped.
func New(level string, suppress ...string) *slog.Logger {
	return NewWithWriter(os.Stdout, level, suppress...)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(w io.Writer, level string, suppress ...string) *slog.Logger {
	lvl := new(slog.LevelVar)
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl.Set(slog.LevelInfo)
	}

	var handler slog.Handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})
	if len(suppress) > 0 {
		handler = newCategoryFilter(handler, suppress)
	}
	return slog.New(handler)
}

// Discard returns a logger that drops all output. Useful for tests.
func Discard() *slog.Logger {
	handler := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError})
	return slog.New(handler)
}

// WithCategory tags every record from the returned logger with category.
func WithCategory(logger *slog.Logger, category string) *slog.Logger {
	return logger.With(slog.String(CategoryKey, category))
}

type categoryFilter struct {
	next       slog.Handler
	suppressed map[string]struct{}
	muted      bool
}

func newCategoryFilter(next slog.Handler, categories []string) *categoryFilter {
	set := make(map[string]struct{}, len(categories))
	for _, c := range categories {
		set[strings.ToLower(c)] = struct{}{}
	}
	return &categoryFilter{next: next, suppressed: set}
}

func (h *categoryFilter) Enabled(ctx context.Context, level slog.Level) bool {
	return !h.muted && h.next.Enabled(ctx, level)
}

func (h *categoryFilter) Handle(ctx context.Context, r slog.Record) error {
	drop := false
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == CategoryKey && h.isSuppressed(a.Value.String()) {
			drop = true
			return false
		}
		return true
	})
	if drop {
		return nil
	}
	return h.next.Handle(ctx, r)
}

// WithAttrs mutes the derived handler outright when it is bound to a
// suppressed category, so With-style loggers skip formatting entirely.
func (h *categoryFilter) WithAttrs(attrs []slog.Attr) slog.Handler {
	muted := h.muted
	for _, a := range attrs {
		if a.Key == CategoryKey && h.isSuppressed(a.Value.String()) {
			muted = true
		}
	}
	return &categoryFilter{next: h.next.WithAttrs(attrs), suppressed: h.suppressed, muted: muted}
}

func (h *categoryFilter) WithGroup(name string) slog.Handler {
	return &categoryFilter{next: h.next.WithGroup(name), suppressed: h.suppressed, muted: h.muted}
}

func (h *categoryFilter) isSuppressed(category string) bool {
	_, ok := h.suppressed[strings.ToLower(category)]
	return ok
}
