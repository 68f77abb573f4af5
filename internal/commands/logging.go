package commands

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// setupLogger builds a text logger at the given level and makes it the default.
// An empty level means info.
func setupLogger(level string, w io.Writer) (*slog.Logger, error) {
	if level == "" {
		level = "info"
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: lvl,
	}))
	slog.SetDefault(logger)
	return logger, nil
}
