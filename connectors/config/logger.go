package config

import (
	"io"
	"log/slog"
	"strings"

	"gcp-billing-cost/domain/config"
)

// NewLogger builds the process logger from the log section. Unknown levels fall back to info,
// any format other than json is text.
func NewLogger(c config.Log, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(c.Level))); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
