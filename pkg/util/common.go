package util

import (
	"io"
	"log/slog"
	"os"
)

// SetupLogger installs a text slog handler at the given level as the process
// default.
func SetupLogger(level slog.Level) {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))
}

// CloseQuietly closes c, logging instead of returning the error. Meant for
// defers where the error has nowhere useful to go.
func CloseQuietly(name string, c io.Closer) {
	if err := c.Close(); err != nil {
		slog.Error("close failed", "name", name, "err", err)
	}
}
