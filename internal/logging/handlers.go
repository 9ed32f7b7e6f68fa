package logging

import (
	"context"
	"log/slog"
	"slices"
)

// handlerBase carries the level, WithAttrs attributes and open groups shared
// by the journal and history handlers.
type handlerBase struct {
	level  slog.Leveler
	attrs  []groupedAttr
	groups []string
}

// groupedAttr remembers the groups that were open when the attr was added.
type groupedAttr struct {
	groups []string
	attr   slog.Attr
}

func (b handlerBase) enabled(level slog.Level) bool {
	return level >= b.level.Level()
}

func (b handlerBase) withAttrs(attrs []slog.Attr) handlerBase {
	next := b
	next.attrs = slices.Clip(b.attrs)
	for _, a := range attrs {
		next.attrs = append(next.attrs, groupedAttr{groups: b.groups, attr: a})
	}
	return next
}

func (b handlerBase) withGroup(name string) handlerBase {
	if name == "" {
		return b
	}
	next := b
	next.groups = append(slices.Clip(b.groups), name)
	return next
}

// each visits the handler attributes and then the record attributes with
// group paths resolved. Nested group values are expanded to their leaves.
func (b handlerBase) each(r slog.Record, fn func(path []string, a slog.Attr)) {
	for _, ga := range b.attrs {
		walkAttr(ga.groups, ga.attr, fn)
	}
	r.Attrs(func(a slog.Attr) bool {
		walkAttr(b.groups, a, fn)
		return true
	})
}

func walkAttr(path []string, a slog.Attr, fn func([]string, slog.Attr)) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() != slog.KindGroup {
		fn(path, a)
		return
	}
	sub := path
	if a.Key != "" {
		sub = append(slices.Clip(path), a.Key)
	}
	for _, ga := range a.Value.Group() {
		walkAttr(sub, ga, fn)
	}
}

// fanout sends each record to every handler enabled for its level.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

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
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	return f.each(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (f fanout) WithGroup(name string) slog.Handler {
	return f.each(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (f fanout) each(fn func(slog.Handler) slog.Handler) fanout {
	next := make(fanout, len(f))
	for i, h := range f {
		next[i] = fn(h)
	}
	return next
}
