package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
	_ "modernc.org/sqlite"
)

const (
	driverName         = "sqlite"
	defaultBusyTimeout = 5 * time.Second
	initializeKey      = "initialize"
)

var errEngineClosed = errors.New("engine closed")

type Config struct {
	Path        string
	Schema      Schema
	BusyTimeout time.Duration
	Logger      *slog.Logger
}

// Engine owns the single database handle of one installation. The handle is
// opened lazily by Initialize and reused until Close.
type Engine struct {
	cfg         Config
	logger      *slog.Logger
	collections map[string]CollectionSpec

	initGroup singleflight.Group
	opens     atomic.Int32

	mu     sync.RWMutex
	db     *sql.DB
	closed bool
}

func New(cfg Config) (*Engine, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, fmt.Errorf("new storage engine: empty path")
	}
	if len(cfg.Schema.Steps) == 0 {
		return nil, fmt.Errorf("new storage engine: schema has no steps")
	}
	if err := cfg.Schema.Validate(); err != nil {
		return nil, fmt.Errorf("new storage engine: %w", err)
	}
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = defaultBusyTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		cfg:         cfg,
		logger:      logger.With("component", "storage"),
		collections: cfg.Schema.Collections(),
	}, nil
}

// Initialize opens the database and brings its schema to the declared
// version. Concurrent callers share one in-flight attempt. A failed attempt is
// not remembered, so the next call starts over.
func (e *Engine) Initialize(ctx context.Context) error {
	if e == nil {
		return fmt.Errorf("%w: nil engine", ErrStorageUnavailable)
	}
	if db, err := e.handle(); db != nil || err != nil {
		return err
	}

	ch := e.initGroup.DoChan(initializeKey, func() (any, error) {
		if db, err := e.handle(); db != nil || err != nil {
			return nil, err
		}

		db, err := e.open(context.WithoutCancel(ctx))
		if err != nil {
			e.logger.Warn("storage initialization failed", "path", e.cfg.Path, "error", err)
			return nil, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
		}

		e.mu.Lock()
		defer e.mu.Unlock()
		if e.closed {
			_ = db.Close()
			return nil, fmt.Errorf("%w: %w", ErrStorageUnavailable, errEngineClosed)
		}
		e.db = db
		return nil, nil
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return fmt.Errorf("initialize storage: %w", ctx.Err())
	}
}

func (e *Engine) Close() error {
	if e == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	if e.db == nil {
		return nil
	}
	err := e.db.Close()
	e.db = nil
	return err
}

// DB returns the open handle, or nil before Initialize succeeds.
func (e *Engine) DB() *sql.DB {
	if e == nil {
		return nil
	}
	db, _ := e.handle()
	return db
}

func (e *Engine) Path() string {
	if e == nil {
		return ""
	}
	return e.cfg.Path
}

// Collections lists declared collection names in lexical order.
func (e *Engine) Collections() []string {
	names := make([]string, 0, len(e.collections))
	for name := range e.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (e *Engine) HasIndex(collection, index string) bool {
	spec, ok := e.collections[collection]
	if !ok {
		return false
	}
	_, ok = findIndex(spec, index)
	return ok
}

func (e *Engine) SchemaVersion(ctx context.Context) (int, error) {
	db, err := e.ready(ctx)
	if err != nil {
		return 0, err
	}
	return readSchemaVersion(ctx, db)
}

// IntegrityCheck runs SQLite's integrity_check and returns the problems it
// reports. An empty slice means the database file is sound.
func (e *Engine) IntegrityCheck(ctx context.Context) ([]string, error) {
	db, err := e.ready(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, "PRAGMA integrity_check")
	if err != nil {
		return nil, fmt.Errorf("integrity check: %w", err)
	}
	defer rows.Close()

	problems := []string{}
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return nil, fmt.Errorf("integrity check: %w", err)
		}
		if line != "ok" {
			problems = append(problems, line)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("integrity check: %w", err)
	}
	return problems, nil
}

func (e *Engine) handle() (*sql.DB, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return nil, fmt.Errorf("%w: %w", ErrStorageUnavailable, errEngineClosed)
	}
	return e.db, nil
}

func (e *Engine) ready(ctx context.Context) (*sql.DB, error) {
	if err := e.Initialize(ctx); err != nil {
		return nil, err
	}
	db, err := e.handle()
	if err != nil {
		return nil, err
	}
	if db == nil {
		return nil, fmt.Errorf("%w: %w", ErrStorageUnavailable, errEngineClosed)
	}
	return db, nil
}

func (e *Engine) open(ctx context.Context) (*sql.DB, error) {
	e.opens.Add(1)

	if err := os.MkdirAll(filepath.Dir(e.cfg.Path), 0o700); err != nil {
		return nil, fmt.Errorf("open storage: create parent dir: %w", err)
	}

	db, err := sql.Open(driverName, e.dsn())
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open storage: ping: %w", err)
	}

	if err := RunMigrations(ctx, db, e.cfg.Schema.Migrations()); err != nil {
		_ = db.Close()
		return nil, err
	}

	if err := ensureDBPermissions(e.cfg.Path); err != nil {
		_ = db.Close()
		return nil, err
	}

	version, err := readSchemaVersion(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	e.logger.Info("storage initialized", "path", e.cfg.Path, "schema_version", version, "collections", len(e.collections))
	return db, nil
}

func (e *Engine) dsn() string {
	params := url.Values{}
	params.Add("_pragma", "busy_timeout("+strconv.FormatInt(e.cfg.BusyTimeout.Milliseconds(), 10)+")")
	params.Add("_pragma", "journal_mode(WAL)")
	params.Add("_pragma", "foreign_keys(1)")
	params.Set("_txlock", "immediate")
	return e.cfg.Path + "?" + params.Encode()
}

func ensureDBPermissions(path string) error {
	for _, candidate := range []string{path, path + "-wal", path + "-shm"} {
		if err := os.Chmod(candidate, 0o600); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("set db file permissions %s: %w", filepath.Base(candidate), err)
		}
	}
	return nil
}
