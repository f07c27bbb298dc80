package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// newLogger returns a colored handler on w at the level held by ll.
func newLogger(w *os.File, ll *slog.LevelVar) *slog.Logger {
	return slog.New(newHandler(colorable.NewColorable(w), ll, !isatty.IsTerminal(w.Fd()), os.Getenv("JOURNAL_STREAM") != ""))
}

func newHandler(w io.Writer, ll *slog.LevelVar, noColor, underSystemd bool) slog.Handler {
	return tint.NewHandler(w, &tint.Options{
		Level:      ll,
		TimeFormat: "15:04:05.000",
		NoColor:    noColor,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// systemd adds its own timestamp.
			if underSystemd && a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			if a.Key == "ip" {
				if v := a.Value.String(); v == "127.0.0.1" || v == "::1" {
					return slog.Attr{}
				}
			}
			if isZeroAttr(a.Value) {
				return slog.Attr{}
			}
			return a
		},
	})
}

// isZeroAttr reports whether v carries no information worth printing.
func isZeroAttr(v slog.Value) bool {
	switch v.Kind() {
	case slog.KindString:
		return v.String() == ""
	case slog.KindBool:
		return !v.Bool()
	case slog.KindInt64:
		return v.Int64() == 0
	case slog.KindUint64:
		return v.Uint64() == 0
	case slog.KindFloat64:
		return v.Float64() == 0
	case slog.KindDuration:
		return v.Duration() == 0
	case slog.KindTime:
		return v.Time().IsZero()
	case slog.KindAny:
		return v.Any() == nil
	default:
		return false
	}
}
