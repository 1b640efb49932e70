// Package log builds the process logger.
//
// Without a log file, records below error go to stdout and errors go to
// stderr. With a file, everything at the configured level is written to the
// file and to stderr.
package log

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// LevelTrace sits below Debug for per-transfer output.
const LevelTrace slog.Level = -8

// Config is the log section shared by every command.
type Config struct {
	Level   string `help:"Log level" enum:"trace,debug,info,warn,error" default:"info" env:"LT3_LOG_LEVEL"`
	File    string `help:"Also write logs to this file" env:"LT3_LOG_FILE"`
	RawFile string `help:"Hex dump USB-IP traffic to this file" env:"LT3_LOG_RAW_FILE"`
}

func ParseLevel(s string) slog.Level {
	switch s {
	case "trace":
		return LevelTrace
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// MultiHandler fans out records to multiple handlers.
type MultiHandler struct{ hs []slog.Handler }

func (m MultiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.hs {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m MultiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, h := range m.hs {
		if h.Enabled(ctx, r.Level) {
			_ = h.Handle(ctx, r.Clone())
		}
	}
	return nil
}

func (m MultiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make([]slog.Handler, len(m.hs))
	for i, h := range m.hs {
		out[i] = h.WithAttrs(attrs)
	}
	return MultiHandler{hs: out}
}

func (m MultiHandler) WithGroup(name string) slog.Handler {
	out := make([]slog.Handler, len(m.hs))
	for i, h := range m.hs {
		out[i] = h.WithGroup(name)
	}
	return MultiHandler{hs: out}
}

// LevelFilter passes only the levels accepted by pass to h.
type LevelFilter struct {
	pass func(slog.Level) bool
	h    slog.Handler
}

func (f LevelFilter) Enabled(ctx context.Context, level slog.Level) bool {
	return f.pass(level) && f.h.Enabled(ctx, level)
}

func (f LevelFilter) Handle(ctx context.Context, r slog.Record) error {
	if !f.pass(r.Level) {
		return nil
	}
	return f.h.Handle(ctx, r)
}

func (f LevelFilter) WithAttrs(attrs []slog.Attr) slog.Handler {
	return LevelFilter{pass: f.pass, h: f.h.WithAttrs(attrs)}
}

func (f LevelFilter) WithGroup(name string) slog.Handler {
	return LevelFilter{pass: f.pass, h: f.h.WithGroup(name)}
}

func replaceLevel(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey {
		if lvl, ok := a.Value.Any().(slog.Level); ok && lvl <= LevelTrace {
			a.Value = slog.StringValue("TRACE")
		}
	}
	return a
}

// NewHandler returns the console handler pair used by SetupLogger.
func NewHandler(stdout, stderr io.Writer, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level, ReplaceAttr: replaceLevel}
	return MultiHandler{hs: []slog.Handler{
		LevelFilter{pass: func(l slog.Level) bool { return l < slog.LevelError }, h: slog.NewTextHandler(stdout, opts)},
		LevelFilter{pass: func(l slog.Level) bool { return l >= slog.LevelError }, h: slog.NewTextHandler(stderr, opts)},
	}}
}

// SetupLogger builds a slog.Logger with console and optional file handlers.
func SetupLogger(logLevel, logFile string) (*slog.Logger, []io.Closer, error) {
	level := ParseLevel(logLevel)
	opts := &slog.HandlerOptions{Level: level, ReplaceAttr: replaceLevel}

	if logFile == "" {
		return slog.New(NewHandler(os.Stdout, os.Stderr, level)), nil, nil
	}
	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, err
	}
	h := MultiHandler{hs: []slog.Handler{
		slog.NewTextHandler(os.Stderr, opts),
		slog.NewTextHandler(f, opts),
	}}
	return slog.New(h), []io.Closer{f}, nil
}

// SetupRawLogger picks the USB-IP traffic dump target: the raw file when
// set, stdout at trace level, otherwise nothing.
func SetupRawLogger(cfg Config, logger *slog.Logger) (RawLogger, io.Closer) {
	if cfg.RawFile != "" {
		f, err := os.OpenFile(cfg.RawFile, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
		if err != nil {
			logger.Error("failed to open raw log file", "file", cfg.RawFile, "error", err)
			return NewRaw(nil), nil
		}
		return NewRaw(f), f
	}
	if cfg.Level == "trace" {
		return NewRaw(os.Stdout), nil
	}
	return NewRaw(nil), nil
}
