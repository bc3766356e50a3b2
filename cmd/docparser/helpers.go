package main

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/2018wzh/llm-doc-parser/internal/config"
	"github.com/2018wzh/llm-doc-parser/internal/home"
)

// loadConfig resolves the home directory and reads the configuration.
func loadConfig() (*home.Dir, *config.Manager, error) {
	h, err := home.New(homeDir)
	if err != nil {
		return nil, nil, err
	}
	mgr, err := config.NewManager(cfgFile, h.Path())
	if err != nil {
		return nil, nil, err
	}
	return h, mgr, nil
}

// newLogger builds the slog handler described by the log section.
func newLogger(w io.Writer, cfg config.LogCfg) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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

// stderrLogger is used by one-shot commands so logs never mix with output.
func stderrLogger(cfg config.LogCfg) *slog.Logger {
	return newLogger(os.Stderr, cfg)
}
