package logger

import (
	"context"
	"log"
	"log/slog"
	"strings"
)

// LevelSlogFatal is the slog level mapped onto LevelFatal
const LevelSlogFatal = slog.LevelError + 4

// Attribute keys the slog handler treats specially
const (
	// ComponentKey names a subsystem; its value is appended to the logger prefix
	ComponentKey = "component"
	// ConnKey carries a connection id; the line reads "Connection N: message"
	ConnKey = "conn"
)

// NewSlogHandler returns a slog.Handler writing through l, sharing its
// output and level. It returns nil for a nil logger.
func NewSlogHandler(l *Logger) slog.Handler {
	if l == nil {
		return nil
	}
	return &slogHandler{log: l}
}

// NewErrorLog returns a *log.Logger for library error hooks such as
// http.Server.ErrorLog. Lines are logged at error level under component's
// prefix, with a leading "component: " tag removed.
func NewErrorLog(l *Logger, component string) *log.Logger {
	if l == nil {
		l = Global()
	}
	h := &slogHandler{log: l.WithPrefix(component), trim: component + ": "}
	return slog.NewLogLogger(h, slog.LevelError)
}

type slogHandler struct {
	log   *Logger
	trim  string
	conn  string
	group string
	attrs string
}

func (h *slogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return levelFromSlog(level) >= h.log.GetLevel()
}

func (h *slogHandler) Handle(_ context.Context, record slog.Record) error {
	state := *h
	record.Attrs(func(attr slog.Attr) bool {
		state = state.absorb(attr)
		return true
	})

	msg := strings.TrimPrefix(record.Message, h.trim)
	if state.conn != "" {
		msg = "Connection " + state.conn + ": " + msg
	}
	if state.attrs != "" {
		msg = strings.TrimSpace(msg + " " + state.attrs)
	}
	state.log.log(levelFromSlog(record.Level), "%s", msg)
	return nil
}

func (h *slogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	for _, attr := range attrs {
		next = next.absorb(attr)
	}
	return &next
}

func (h *slogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.group = joinKey(h.group, name)
	return &next
}

// absorb folds one attribute into the handler state. Component and
// connection keys only count outside groups.
func (h slogHandler) absorb(attr slog.Attr) slogHandler {
	attr.Value = attr.Value.Resolve()
	switch {
	case attr.Equal(slog.Attr{}):
	case h.group == "" && attr.Key == ComponentKey:
		h.log = h.log.WithPrefix(attr.Value.String())
	case h.group == "" && attr.Key == ConnKey:
		h.conn = attr.Value.String()
	case attr.Value.Kind() == slog.KindGroup:
		inner := h
		inner.group = joinKey(h.group, attr.Key)
		for _, nested := range attr.Value.Group() {
			inner = inner.absorb(nested)
		}
		h.attrs = inner.attrs
	default:
		pair := joinKey(h.group, attr.Key) + "=" + attr.Value.String()
		if h.attrs != "" {
			pair = h.attrs + " " + pair
		}
		h.attrs = pair
	}
	return h
}

func joinKey(prefix, key string) string {
	switch {
	case prefix == "":
		return key
	case key == "":
		return prefix
	default:
		return prefix + "." + key
	}
}

func levelFromSlog(level slog.Level) Level {
	switch {
	case level >= LevelSlogFatal:
		return LevelFatal
	case level >= slog.LevelError:
		return LevelError
	case level >= slog.LevelWarn:
		return LevelWarn
	case level >= slog.LevelInfo:
		return LevelInfo
	default:
		return LevelDebug
	}
}
