// Package prettylog is a colored slog handler for interactive CLI use.
// Based on https://dusted.codes/creating-a-pretty-console-logger-using-gos-slog-package
package prettylog

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

const timeFormat = "15:04:05.000"

const (
	reset = "\033[0m"

	yellow   = 33
	cyan     = 36
	darkGray = 90
	lightRed = 91
	white    = 97
)

func colorize(colorCode int, v string) string {
	return "\033[" + strconv.Itoa(colorCode) + "m" + v + reset
}

type handler struct {
	level  slog.Level
	output *os.File
	attrs  []slog.Attr
}

func NewHandler(level slog.Level) slog.Handler {
	return &handler{
		level:  level,
		output: os.Stderr,
	}
}

func (h *handler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &handler{
		level:  h.level,
		output: h.output,
		attrs:  append(h.attrs[:len(h.attrs):len(h.attrs)], attrs...),
	}
}

func (h *handler) WithGroup(name string) slog.Handler {
	return h
}

func (h *handler) Handle(ctx context.Context, r slog.Record) error {
	level := r.Level.String() + ":"
	switch r.Level {
	case slog.LevelDebug:
		level = colorize(darkGray, level)
	case slog.LevelInfo:
		level = colorize(cyan, level)
	case slog.LevelWarn:
		level = colorize(yellow, level)
	case slog.LevelError:
		level = colorize(lightRed, level)
	}

	sb := strings.Builder{}
	sb.WriteString(colorize(darkGray, r.Time.Format(timeFormat)))
	sb.WriteString(" ")
	sb.WriteString(level)
	sb.WriteString(" ")
	sb.WriteString(colorize(white, r.Message))

	writeAttr := func(a slog.Attr) bool {
		sb.WriteString(" ")
		sb.WriteString(colorize(darkGray, a.Key+"="+attrValue(a.Value)))
		return true
	}
	for _, a := range h.attrs {
		writeAttr(a)
	}
	r.Attrs(writeAttr)

	sb.WriteString("\n")
	_, err := h.output.WriteString(sb.String())
	return err
}

func attrValue(v slog.Value) string {
	resolved := v.Resolve().Any()
	switch val := resolved.(type) {
	case error:
		return strconv.Quote(val.Error())
	case string:
		if strings.ContainsAny(val, " \t\"") {
			return strconv.Quote(val)
		}
		return val
	case []byte:
		return fmt.Sprintf("%x", val)
	}
	return fmt.Sprintf("%v", resolved)
}
