package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Millsondylan/quantum-risk-coach-sub004/internal/storage"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// IDGenerator returns a fresh document id on every call.
type IDGenerator func() string

const (
	IDSchemeUUID = "uuid"
	IDSchemeULID = "ulid"
)

// NewIDGenerator returns the generator for scheme. An empty scheme selects
// random UUIDs; "ulid" selects lexically time-ordered ULIDs.
func NewIDGenerator(scheme string) (IDGenerator, error) {
	switch strings.ToLower(strings.TrimSpace(scheme)) {
	case "", IDSchemeUUID:
		return uuid.NewString, nil
	case IDSchemeULID:
		return func() string { return ulid.Make().String() }, nil
	default:
		return nil, fmt.Errorf("unsupported id scheme %q", scheme)
	}
}

type Options struct {
	Path        string
	BusyTimeout time.Duration
	IDScheme    string
	Logger      *slog.Logger
}

// Store is the typed façade over one storage engine.
type Store struct {
	engine *storage.Engine
	logger *slog.Logger
	newID  IDGenerator
	now    func() time.Time

	Trades       *TradeRepository
	Portfolios   *Repository[Portfolio, *Portfolio]
	Accounts     *AccountRepository
	Users        *UserRepository
	Journal      *Repository[JournalEntry, *JournalEntry]
	Settings     *SettingRepository
	AISessions   *Repository[AICoachSession, *AICoachSession]
	AIStrategies *Repository[AIStrategy, *AIStrategy]
}

// Open builds an engine for opts.Path and initializes it.
func Open(ctx context.Context, opts Options) (*Store, error) {
	engine, err := storage.New(storage.Config{
		Path:        opts.Path,
		Schema:      Schema(),
		BusyTimeout: opts.BusyTimeout,
		Logger:      opts.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	ids, err := NewIDGenerator(opts.IDScheme)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	s := New(engine, ids, opts.Logger)
	if err := engine.Initialize(ctx); err != nil {
		_ = engine.Close()
		return nil, fmt.Errorf("open store: %w", err)
	}
	return s, nil
}

// New wraps an engine built with Schema. The engine is initialized lazily by
// the first operation. A nil ids selects UUIDs.
func New(engine *storage.Engine, ids IDGenerator, logger *slog.Logger) *Store {
	if ids == nil {
		ids = uuid.NewString
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Store{
		engine: engine,
		logger: logger.With("component", "store"),
		newID:  ids,
		now:    func() time.Time { return time.Now().UTC() },
	}
	s.wire()
	return s
}

func (s *Store) wire() {
	s.Trades = &TradeRepository{newRepository[Trade](s, CollectionTrades, "trade", ReplaceSemantics)}
	s.Portfolios = newRepository[Portfolio](s, CollectionPortfolios, "portfolio", ReplaceSemantics)
	s.Accounts = &AccountRepository{newRepository[Account](s, CollectionAccounts, "account", ReplaceSemantics)}
	s.Users = &UserRepository{newRepository[User](s, CollectionUsers, "user", ReplaceSemantics)}
	s.Journal = newRepository[JournalEntry](s, CollectionJournalEntries, "journal entry", MergeSemantics)
	s.Settings = &SettingRepository{newRepository[Setting](s, CollectionSettings, "setting", ReplaceSemantics)}
	s.Settings.namedKeys = true
	s.AISessions = newRepository[AICoachSession](s, CollectionAISessions, "ai session", ReplaceSemantics)
	s.AIStrategies = newRepository[AIStrategy](s, CollectionAIStrategies, "ai strategy", ReplaceSemantics)
}

func (s *Store) Engine() *storage.Engine {
	return s.engine
}

func (s *Store) Close() error {
	if s == nil || s.engine == nil {
		return nil
	}
	return s.engine.Close()
}

// Stats counts the documents of every collection.
func (s *Store) Stats(ctx context.Context) (map[string]int, error) {
	out := make(map[string]int, len(snapshotCollections))
	err := s.engine.RunInTransaction(ctx, snapshotCollections, storage.ReadOnly, func(tx *storage.Tx) error {
		for _, name := range snapshotCollections {
			n, err := tx.Count(ctx, name)
			if err != nil {
				return err
			}
			out[name] = n
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store stats: %w", err)
	}
	return out, nil
}
