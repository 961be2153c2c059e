package logging

import (
	"context"
	"errors"
	"log/slog"
)

// AttrFunc returns attributes that are evaluated when a record is written,
// such as the currently installed map.
type AttrFunc func() []slog.Attr

// fanout writes every record to each enabled sink.
type fanout []slog.Handler

func newFanout(handlers ...slog.Handler) fanout {
	f := make(fanout, 0, len(handlers))
	for _, h := range handlers {
		if h != nil {
			f = append(f, h)
		}
	}
	return f
}

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle keeps writing after a sink fails and reports all failures.
func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	if name == "" {
		return f
	}
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}

// boundHandler appends the attributes of fn to each record.
type boundHandler struct {
	slog.Handler
	fn AttrFunc
}

func (h boundHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.fn != nil {
		r.AddAttrs(h.fn()...)
	}
	return h.Handler.Handle(ctx, r)
}

func (h boundHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return boundHandler{Handler: h.Handler.WithAttrs(attrs), fn: h.fn}
}

func (h boundHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return boundHandler{Handler: h.Handler.WithGroup(name), fn: h.fn}
}
