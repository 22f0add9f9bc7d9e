package log

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

type Options struct {
	Level     string
	Format    string
	File      string
	MaxSizeMB int
	MaxFiles  int
	// Writer receives log output when File is empty. Defaults to stderr.
	Writer io.Writer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New builds a redacting logger. When opts.File is set output goes to a
// rotating file and the returned closer releases it.
func New(opts Options) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}

	var (
		out    io.Writer = opts.Writer
		closer io.Closer = nopCloser{}
	)
	if opts.File != "" {
		writer, err := NewRotatingWriter(RotationConfig{
			File:      opts.File,
			MaxSizeMB: opts.MaxSizeMB,
			MaxFiles:  opts.MaxFiles,
		})
		if err != nil {
			return nil, nil, err
		}
		out, closer = writer, writer
	}
	if out == nil {
		out = os.Stderr
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	var base slog.Handler
	switch strings.ToLower(strings.TrimSpace(opts.Format)) {
	case "", "text":
		base = slog.NewTextHandler(out, handlerOpts)
	case "json":
		base = slog.NewJSONHandler(out, handlerOpts)
	default:
		_ = closer.Close()
		return nil, nil, fmt.Errorf("unsupported log format %q", opts.Format)
	}
	return slog.New(NewRedactingHandler(base)), closer, nil
}

func ParseLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unsupported log level %q", raw)
	}
}
