package log

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	defaultRotateSizeMB = 10
	defaultRotateFiles  = 5
)

type RotationConfig struct {
	File      string
	MaxSizeMB int
	MaxFiles  int
	// MaxAgeDays drops rotated files older than this many days. Zero keeps
	// them until MaxFiles pushes them out.
	MaxAgeDays int
}

// NewRotatingWriter returns a size-rotated log file. The active file is
// created owner-only before lumberjack opens it, since log lines can name
// trades and accounts.
func NewRotatingWriter(cfg RotationConfig) (*lumberjack.Logger, error) {
	if cfg.File == "" {
		return nil, fmt.Errorf("rotation file path must not be empty")
	}
	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = defaultRotateSizeMB
	}
	if cfg.MaxFiles <= 0 {
		cfg.MaxFiles = defaultRotateFiles
	}
	if cfg.MaxAgeDays < 0 {
		return nil, fmt.Errorf("rotation max age must not be negative")
	}

	if err := os.MkdirAll(filepath.Dir(cfg.File), 0o700); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("create log file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("create log file: %w", err)
	}

	return &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxFiles,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   false,
	}, nil
}
