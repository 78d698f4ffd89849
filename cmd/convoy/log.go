// ABOUTME: Logger construction for the convoy CLI
// ABOUTME: JSON handler or a colorized text handler writing to stderr

package main

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/2389/convoy-coordinator/internal/config"
)

// levelTags are the fixed-width level prefixes of the text handler.
var levelTags = map[slog.Level]func(a ...any) string{
	slog.LevelDebug: color.New(color.FgMagenta).Sprint,
	slog.LevelInfo:  color.New(color.FgCyan).Sprint,
	slog.LevelWarn:  color.New(color.FgYellow).Sprint,
	slog.LevelError: color.New(color.FgRed, color.Bold).Sprint,
}

var levelNames = map[slog.Level]string{
	slog.LevelDebug: "DBG",
	slog.LevelInfo:  "INF",
	slog.LevelWarn:  "WRN",
	slog.LevelError: "ERR",
}

// setupLogger builds the process logger from cfg, installs it as the slog
// default and returns it. Unknown levels fall back to warn.
func setupLogger(cfg config.LoggingConfig, w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			level = slog.LevelWarn
		}
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	default:
		handler = &colorHandler{
			out:   &lockedWriter{w: w},
			level: level,
		}
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// lockedWriter serializes whole log lines from every derived handler.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) writeLine(s string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, err := io.WriteString(l.w, s)
	return err
}

// colorHandler renders "15:04:05 LVL message key=value ..." lines.
// Attrs added under a group are written as group.key.
type colorHandler struct {
	out    *lockedWriter
	level  slog.Level
	preset string // rendered WithAttrs output
	prefix string // dotted group path for record attrs
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	var line strings.Builder
	line.WriteString(color.HiBlackString(r.Time.Format("15:04:05")))
	line.WriteByte(' ')

	if name, ok := levelNames[r.Level]; ok {
		line.WriteString(levelTags[r.Level](name))
	} else {
		line.WriteString(r.Level.String())
	}
	line.WriteByte(' ')
	line.WriteString(r.Message)
	line.WriteString(h.preset)

	r.Attrs(func(a slog.Attr) bool {
		appendAttr(&line, h.prefix, a)
		return true
	})
	line.WriteByte('\n')

	return h.out.writeLine(line.String())
}

func appendAttr(line *strings.Builder, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		for _, inner := range a.Value.Group() {
			appendAttr(line, prefix+a.Key+".", inner)
		}
		return
	}
	line.WriteString(color.HiBlackString(" " + prefix + a.Key + "="))
	line.WriteString(a.Value.String())
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	var preset strings.Builder
	preset.WriteString(h.preset)
	for _, a := range attrs {
		appendAttr(&preset, h.prefix, a)
	}
	next := *h
	next.preset = preset.String()
	return &next
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = h.prefix + name + "."
	return &next
}
