package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Millsondylan/quantum-risk-coach-sub004/internal/storage"
	"gopkg.in/yaml.v3"
)

const SnapshotFormatVersion = 1

// Snapshot is the whole dataset as one document. A nil section is absent and
// is left untouched by ImportAll.
type Snapshot struct {
	FormatVersion  int              `json:"formatVersion"`
	ExportedAt     time.Time        `json:"exportedAt"`
	Trades         []Trade          `json:"trades"`
	Portfolios     []Portfolio      `json:"portfolios"`
	Accounts       []Account        `json:"accounts"`
	JournalEntries []JournalEntry   `json:"journalEntries"`
	Users          []User           `json:"users"`
	AISessions     []AICoachSession `json:"aiSessions"`
	AIStrategies   []AIStrategy     `json:"aiStrategies"`
	Settings       []Setting        `json:"settings,omitempty"`
}

type ConflictMode string

const (
	ConflictModeFail      ConflictMode = "fail"
	ConflictModeSkip      ConflictMode = "skip"
	ConflictModeOverwrite ConflictMode = "overwrite"
	ConflictModeRename    ConflictMode = "rename"
)

func ParseConflictMode(raw string) (ConflictMode, error) {
	mode := ConflictMode(strings.ToLower(strings.TrimSpace(raw)))
	if mode == "" {
		return ConflictModeFail, nil
	}
	switch mode {
	case ConflictModeFail, ConflictModeSkip, ConflictModeOverwrite, ConflictModeRename:
		return mode, nil
	default:
		return "", fmt.Errorf("%w: unsupported conflict mode %q", storage.ErrInvalidRecord, raw)
	}
}

type ImportOptions struct {
	// OnConflict decides what happens to an incoming document whose id is
	// already stored. The zero value fails the whole import.
	OnConflict ConflictMode
}

type ImportCounts struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
}

func (c ImportCounts) Total() int {
	return c.Created + c.Updated + c.Skipped
}

type ImportResult struct {
	Trades         ImportCounts `json:"trades"`
	Portfolios     ImportCounts `json:"portfolios"`
	Accounts       ImportCounts `json:"accounts"`
	JournalEntries ImportCounts `json:"journalEntries"`
	Users          ImportCounts `json:"users"`
	AISessions     ImportCounts `json:"aiSessions"`
	AIStrategies   ImportCounts `json:"aiStrategies"`
	Settings       ImportCounts `json:"settings"`
}

func (r ImportResult) Total() ImportCounts {
	var out ImportCounts
	for _, c := range []ImportCounts{r.Trades, r.Portfolios, r.Accounts, r.JournalEntries, r.Users, r.AISessions, r.AIStrategies, r.Settings} {
		out.Created += c.Created
		out.Updated += c.Updated
		out.Skipped += c.Skipped
	}
	return out
}

// ExportAll reads every collection inside one read-only transaction, so the
// snapshot is a single consistent point in time.
func (s *Store) ExportAll(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{FormatVersion: SnapshotFormatVersion, ExportedAt: s.now()}
	err := s.engine.RunInTransaction(ctx, snapshotCollections, storage.ReadOnly, func(tx *storage.Tx) error {
		var err error
		if snap.Trades, err = s.Trades.list(ctx, tx, nil); err != nil {
			return err
		}
		if snap.Portfolios, err = s.Portfolios.list(ctx, tx, nil); err != nil {
			return err
		}
		if snap.Accounts, err = s.Accounts.list(ctx, tx, nil); err != nil {
			return err
		}
		if snap.JournalEntries, err = s.Journal.list(ctx, tx, nil); err != nil {
			return err
		}
		if snap.Users, err = s.Users.list(ctx, tx, nil); err != nil {
			return err
		}
		if snap.AISessions, err = s.AISessions.list(ctx, tx, nil); err != nil {
			return err
		}
		if snap.AIStrategies, err = s.AIStrategies.list(ctx, tx, nil); err != nil {
			return err
		}
		snap.Settings, err = s.Settings.list(ctx, tx, nil)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("export all: %w", err)
	}
	s.logger.Info("export completed",
		"trades", len(snap.Trades),
		"accounts", len(snap.Accounts),
		"journal_entries", len(snap.JournalEntries),
		"settings", len(snap.Settings),
	)
	return snap, nil
}

// ImportAll replays every present section of snap through the create path
// inside one read-write transaction. Ids and timestamps carried by the
// snapshot are preserved; missing ones are assigned. Existing data is not
// cleared first.
func (s *Store) ImportAll(ctx context.Context, snap *Snapshot, opts ImportOptions) (ImportResult, error) {
	var result ImportResult
	if snap == nil {
		return result, fmt.Errorf("import all: %w: snapshot is nil", storage.ErrInvalidRecord)
	}
	if snap.FormatVersion != SnapshotFormatVersion {
		return result, fmt.Errorf("import all: %w: unsupported format version %d", storage.ErrInvalidRecord, snap.FormatVersion)
	}
	mode, err := ParseConflictMode(string(opts.OnConflict))
	if err != nil {
		return result, fmt.Errorf("import all: %w", err)
	}

	err = s.engine.RunInTransaction(ctx, snapshotCollections, storage.ReadWrite, func(tx *storage.Tx) error {
		var staged ImportResult
		var err error
		if staged.Trades, err = importSection(ctx, tx, s.Trades.Repository, snap.Trades, mode); err != nil {
			return err
		}
		if staged.Portfolios, err = importSection(ctx, tx, s.Portfolios, snap.Portfolios, mode); err != nil {
			return err
		}
		if staged.Accounts, err = importSection(ctx, tx, s.Accounts.Repository, snap.Accounts, mode); err != nil {
			return err
		}
		if staged.JournalEntries, err = importSection(ctx, tx, s.Journal, snap.JournalEntries, mode); err != nil {
			return err
		}
		if staged.Users, err = importSection(ctx, tx, s.Users.Repository, snap.Users, mode); err != nil {
			return err
		}
		if staged.AISessions, err = importSection(ctx, tx, s.AISessions, snap.AISessions, mode); err != nil {
			return err
		}
		if staged.AIStrategies, err = importSection(ctx, tx, s.AIStrategies, snap.AIStrategies, mode); err != nil {
			return err
		}
		if staged.Settings, err = importSection(ctx, tx, s.Settings.Repository, snap.Settings, mode); err != nil {
			return err
		}
		result = staged
		return nil
	})
	if err != nil {
		s.logger.Warn("import rolled back", "mode", string(mode), "error", err)
		return ImportResult{}, fmt.Errorf("import all: %w", err)
	}

	total := result.Total()
	s.logger.Info("import completed", "mode", string(mode), "created", total.Created, "updated", total.Updated, "skipped", total.Skipped)
	return result, nil
}

func importSection[T any, P documentPtr[T]](ctx context.Context, tx *storage.Tx, repo *Repository[T, P], items []T, mode ConflictMode) (ImportCounts, error) {
	var counts ImportCounts
	for i := range items {
		doc := P(&items[i])
		if err := repo.prepareCreate(doc, true); err != nil {
			return counts, fmt.Errorf("import %s %d: %w", repo.kind, i, err)
		}

		_, exists, err := tx.Get(ctx, repo.collection, doc.documentKey())
		if err != nil {
			return counts, err
		}

		write := tx.Add
		if exists {
			switch mode {
			case ConflictModeSkip:
				counts.Skipped++
				continue
			case ConflictModeOverwrite:
				write = tx.Put
			case ConflictModeRename:
				key, err := repo.freeKey(ctx, tx, doc.documentKey())
				if err != nil {
					return counts, err
				}
				doc.setDocumentKey(key)
				exists = false
			}
		}

		rec, err := repo.encode(doc)
		if err != nil {
			return counts, err
		}
		if err := write(ctx, repo.collection, rec); err != nil {
			return counts, fmt.Errorf("import %s %s: %w", repo.kind, rec.ID, err)
		}
		if exists {
			counts.Updated++
		} else {
			counts.Created++
		}
	}
	return counts, nil
}

// freeKey finds an unused key for a renamed import: a fresh id, or for
// named documents the first free "<key>-imported-N".
func (r *Repository[T, P]) freeKey(ctx context.Context, tx *storage.Tx, key string) (string, error) {
	if !r.namedKeys {
		return r.newID(), nil
	}
	for i := 1; i <= 1000; i++ {
		candidate := fmt.Sprintf("%s-imported-%d", key, i)
		_, found, err := tx.Get(ctx, r.collection, candidate)
		if err != nil {
			return "", err
		}
		if !found {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("import %s: exhausted rename attempts for %q", r.kind, key)
}

// ClearAll empties every collection in one transaction. The schema stays in
// place and the store is immediately writable again.
func (s *Store) ClearAll(ctx context.Context) error {
	if err := s.engine.Clear(ctx, snapshotCollections...); err != nil {
		return fmt.Errorf("clear all: %w", err)
	}
	s.logger.Info("all collections cleared", "collections", len(snapshotCollections))
	return nil
}

type SnapshotFormat string

const (
	FormatJSON SnapshotFormat = "json"
	FormatYAML SnapshotFormat = "yaml"
)

func ParseSnapshotFormat(raw string) (SnapshotFormat, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported snapshot format %q", raw)
	}
}

// EncodeSnapshot writes snap as indented JSON or as YAML. The YAML form is
// the JSON document re-expressed, so both carry identical field names.
func EncodeSnapshot(w io.Writer, snap *Snapshot, format SnapshotFormat) error {
	if snap == nil {
		return fmt.Errorf("encode snapshot: snapshot is nil")
	}
	switch format {
	case FormatJSON, "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(snap); err != nil {
			return fmt.Errorf("encode snapshot: %w", err)
		}
		return nil
	case FormatYAML:
		payload, err := json.Marshal(snap)
		if err != nil {
			return fmt.Errorf("encode snapshot: %w", err)
		}
		var generic any
		if err := json.Unmarshal(payload, &generic); err != nil {
			return fmt.Errorf("encode snapshot: %w", err)
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(generic); err != nil {
			return fmt.Errorf("encode snapshot: yaml: %w", err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("encode snapshot: yaml: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("encode snapshot: unsupported format %q", format)
	}
}

func DecodeSnapshot(r io.Reader, format SnapshotFormat) (*Snapshot, error) {
	payload, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("decode snapshot: read: %w", err)
	}
	if len(strings.TrimSpace(string(payload))) == 0 {
		return nil, fmt.Errorf("decode snapshot: %w: empty payload", storage.ErrInvalidRecord)
	}

	switch format {
	case FormatJSON, "":
	case FormatYAML:
		var generic any
		if err := yaml.Unmarshal(payload, &generic); err != nil {
			return nil, fmt.Errorf("decode snapshot: %w: yaml: %v", storage.ErrInvalidRecord, err)
		}
		if payload, err = json.Marshal(generic); err != nil {
			return nil, fmt.Errorf("decode snapshot: %w: %v", storage.ErrInvalidRecord, err)
		}
	default:
		return nil, fmt.Errorf("decode snapshot: unsupported format %q", format)
	}

	var snap Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w: %v", storage.ErrInvalidRecord, err)
	}
	return &snap, nil
}
