package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/Millsondylan/quantum-risk-coach-sub004/internal/config"
	logging "github.com/Millsondylan/quantum-risk-coach-sub004/internal/log"
	"github.com/Millsondylan/quantum-risk-coach-sub004/internal/store"
)

var (
	loadConfigFn = config.Load
	logWriter    io.Writer = os.Stderr
)

type session struct {
	cfg   config.Config
	store *store.Store
}

func loadConfig(deps commandDeps) (config.Config, error) {
	opts := config.LoadOptions{}
	if deps.globals != nil {
		opts.ConfigPath = strings.TrimSpace(deps.globals.ConfigPath)
		if dbPath := strings.TrimSpace(deps.globals.DBPath); dbPath != "" {
			opts.Flags.DBPath = &dbPath
		}
		if level := strings.TrimSpace(deps.globals.LogLevel); level != "" {
			opts.Flags.LogLevel = &level
		} else if deps.globals.Quiet {
			level = "error"
			opts.Flags.LogLevel = &level
		}
	}
	cfg, err := loadConfigFn(opts)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// withStore loads config, builds the logger and opens the store for the
// duration of fn. Errors from every step are mapped to exit codes.
func withStore(cmdCtx context.Context, deps commandDeps, fn func(context.Context, session) error) error {
	if cmdCtx == nil {
		cmdCtx = context.Background()
	}
	timeout := 30 * time.Second
	if deps.globals != nil && deps.globals.Timeout > 0 {
		timeout = deps.globals.Timeout
	}
	ctx, cancel := context.WithTimeout(cmdCtx, timeout)
	defer cancel()

	cfg, err := loadConfig(deps)
	if err != nil {
		return mapCommandError(err)
	}

	logger, closer, err := logging.New(logging.Options{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		File:      cfg.Logging.File,
		MaxSizeMB: cfg.Logging.MaxSizeMB,
		MaxFiles:  cfg.Logging.MaxFiles,
		Writer:    logWriter,
	})
	if err != nil {
		return mapCommandError(fmt.Errorf("build logger: %w", err))
	}
	defer closer.Close()

	s, err := store.Open(ctx, store.Options{
		Path:        cfg.Storage.Path,
		BusyTimeout: cfg.Storage.BusyTimeout,
		IDScheme:    cfg.Storage.IDScheme,
		Logger:      logger,
	})
	if err != nil {
		return mapCommandError(err)
	}
	defer s.Close()

	return mapCommandError(fn(ctx, session{cfg: cfg, store: s}))
}

func printJSON(w io.Writer, value any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}

// printResult writes value as JSON under --json, nothing under --quiet and
// the text rendering otherwise.
func printResult(deps commandDeps, value any, text func(io.Writer) error) error {
	if deps.globals.JSON {
		return printJSON(deps.out, value)
	}
	if deps.globals.Quiet {
		return nil
	}
	return text(deps.out)
}

func valueOrDash(v string) string {
	if strings.TrimSpace(v) == "" {
		return "-"
	}
	return v
}
