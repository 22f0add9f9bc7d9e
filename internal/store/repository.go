package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Millsondylan/quantum-risk-coach-sub004/internal/storage"
)

// UpdateSemantics describes what Update does with the supplied document.
type UpdateSemantics int

const (
	// ReplaceSemantics writes the supplied document over the stored one. A
	// missing record is inserted.
	ReplaceSemantics UpdateSemantics = iota
	// MergeSemantics overlays the supplied non-empty fields onto the stored
	// document. A missing record is ErrNotFound.
	MergeSemantics
)

func (s UpdateSemantics) String() string {
	switch s {
	case ReplaceSemantics:
		return "replace"
	case MergeSemantics:
		return "merge"
	default:
		return fmt.Sprintf("semantics(%d)", int(s))
	}
}

// Filter selects documents whose top-level Field equals Value.
type Filter struct {
	Field string
	Value any
}

type document interface {
	documentKey() string
	setDocumentKey(string)
	timestamps() *Stamps
}

type documentPtr[T any] interface {
	*T
	document
}

type recordReader interface {
	Get(ctx context.Context, collection, id string) (storage.Record, bool, error)
	GetAll(ctx context.Context, collection string) ([]storage.Record, error)
	GetAllByIndex(ctx context.Context, collection, index string, value any) ([]storage.Record, error)
}

// Repository is the typed CRUD surface of one collection.
type Repository[T any, P documentPtr[T]] struct {
	engine     *storage.Engine
	logger     *slog.Logger
	newID      IDGenerator
	now        func() time.Time
	collection string
	kind       string
	semantics  UpdateSemantics
	// namedKeys repositories never generate keys; callers name every document.
	namedKeys bool
}

func newRepository[T any, P documentPtr[T]](s *Store, collection, kind string, semantics UpdateSemantics) *Repository[T, P] {
	return &Repository[T, P]{
		engine:     s.engine,
		logger:     s.logger,
		newID:      s.newID,
		now:        s.now,
		collection: collection,
		kind:       kind,
		semantics:  semantics,
	}
}

func (r *Repository[T, P]) Collection() string { return r.collection }

func (r *Repository[T, P]) Semantics() UpdateSemantics { return r.semantics }

// Create assigns an id when absent, stamps both timestamps and inserts the
// document. An existing id fails with ErrDuplicateKey.
func (r *Repository[T, P]) Create(ctx context.Context, doc P) error {
	if doc == nil {
		return fmt.Errorf("create %s: %w: record is nil", r.kind, storage.ErrInvalidRecord)
	}
	if err := r.prepareCreate(doc, false); err != nil {
		return fmt.Errorf("create %s: %w", r.kind, err)
	}

	rec, err := r.encode(doc)
	if err != nil {
		return fmt.Errorf("create %s: %w", r.kind, err)
	}
	if err := r.engine.Add(ctx, r.collection, rec); err != nil {
		return fmt.Errorf("create %s: %w", r.kind, err)
	}
	return nil
}

func (r *Repository[T, P]) Get(ctx context.Context, id string) (*T, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("get %s: %w: empty id", r.kind, storage.ErrInvalidRecord)
	}
	doc, err := r.get(ctx, r.engine, id)
	if err != nil {
		return nil, fmt.Errorf("get %s %s: %w", r.kind, id, err)
	}
	return doc, nil
}

// GetAll lists documents ordered by id. The first filter on an indexed field
// is answered by the index; the rest are applied in memory with the same
// equality rules.
func (r *Repository[T, P]) GetAll(ctx context.Context, filters ...Filter) ([]T, error) {
	out, err := r.list(ctx, r.engine, filters)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", r.kind, err)
	}
	return out, nil
}

func (r *Repository[T, P]) Count(ctx context.Context) (int, error) {
	n, err := r.engine.Count(ctx, r.collection)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", r.kind, err)
	}
	return n, nil
}

// Update writes doc according to the repository's UpdateSemantics. On
// success doc holds the stored document.
func (r *Repository[T, P]) Update(ctx context.Context, doc P) error {
	if doc == nil {
		return fmt.Errorf("update %s: %w: record is nil", r.kind, storage.ErrInvalidRecord)
	}
	if strings.TrimSpace(doc.documentKey()) == "" {
		return fmt.Errorf("update %s: %w: empty id", r.kind, storage.ErrInvalidRecord)
	}

	var err error
	switch r.semantics {
	case MergeSemantics:
		err = r.merge(ctx, doc)
	default:
		err = r.replace(ctx, doc)
	}
	if err != nil {
		return fmt.Errorf("update %s %s: %w", r.kind, doc.documentKey(), err)
	}
	return nil
}

// Delete removes a document. Deleting a missing id succeeds.
func (r *Repository[T, P]) Delete(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("delete %s: %w: empty id", r.kind, storage.ErrInvalidRecord)
	}
	if err := r.engine.Delete(ctx, r.collection, id); err != nil {
		return fmt.Errorf("delete %s %s: %w", r.kind, id, err)
	}
	return nil
}

// BulkInsert creates every document in one transaction. Either all of them
// are stored or, on the first failure, none are.
func (r *Repository[T, P]) BulkInsert(ctx context.Context, docs []T) error {
	if len(docs) == 0 {
		return fmt.Errorf("bulk insert %s: %w: empty batch", r.kind, storage.ErrInvalidRecord)
	}

	records := make([]storage.Record, 0, len(docs))
	for i := range docs {
		doc := P(&docs[i])
		if err := r.prepareCreate(doc, false); err != nil {
			return fmt.Errorf("bulk insert %s: item %d: %w", r.kind, i, err)
		}
		rec, err := r.encode(doc)
		if err != nil {
			return fmt.Errorf("bulk insert %s: item %d: %w", r.kind, i, err)
		}
		records = append(records, rec)
	}

	err := r.engine.RunInTransaction(ctx, []string{r.collection}, storage.ReadWrite, func(tx *storage.Tx) error {
		for _, rec := range records {
			if err := tx.Add(ctx, r.collection, rec); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		r.logger.Warn("bulk insert rolled back", "collection", r.collection, "count", len(records), "error", err)
		return fmt.Errorf("bulk insert %s: %w", r.kind, err)
	}
	r.logger.Info("bulk insert committed", "collection", r.collection, "count", len(records))
	return nil
}

// prepareCreate assigns a missing key and the timestamps. With preserve set,
// timestamps already present on doc are kept.
func (r *Repository[T, P]) prepareCreate(doc P, preserve bool) error {
	if strings.TrimSpace(doc.documentKey()) == "" {
		if r.namedKeys {
			return fmt.Errorf("%w: empty key", storage.ErrInvalidRecord)
		}
		doc.setDocumentKey(r.newID())
	}
	stamps := doc.timestamps()
	now := r.now()
	if !preserve || stamps.CreatedAt.IsZero() {
		stamps.CreatedAt = now
	}
	if !preserve || stamps.UpdatedAt.IsZero() {
		stamps.UpdatedAt = stamps.CreatedAt
	}
	return nil
}

func (r *Repository[T, P]) replace(ctx context.Context, doc P) error {
	return r.engine.RunInTransaction(ctx, []string{r.collection}, storage.ReadWrite, func(tx *storage.Tx) error {
		existing, found, err := tx.Get(ctx, r.collection, doc.documentKey())
		if err != nil {
			return err
		}

		stamps := doc.timestamps()
		now := r.now()
		if found {
			var prev Stamps
			if err := existing.Decode(&prev); err != nil {
				return err
			}
			stamps.CreatedAt = prev.CreatedAt
			if stamps.CreatedAt.IsZero() {
				stamps.CreatedAt = now
			}
			stamps.UpdatedAt = after(now, stamps.CreatedAt)
		} else {
			if stamps.CreatedAt.IsZero() {
				stamps.CreatedAt = now
			}
			stamps.UpdatedAt = now
		}

		rec, err := r.encode(doc)
		if err != nil {
			return err
		}
		return tx.Put(ctx, r.collection, rec)
	})
}

func (r *Repository[T, P]) merge(ctx context.Context, doc P) error {
	return r.engine.RunInTransaction(ctx, []string{r.collection}, storage.ReadWrite, func(tx *storage.Tx) error {
		existing, found, err := tx.Get(ctx, r.collection, doc.documentKey())
		if err != nil {
			return err
		}
		if !found {
			return storage.ErrNotFound
		}

		supplied, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("encode update: %w", err)
		}
		body, err := mergeDocuments(existing.Body, supplied)
		if err != nil {
			return err
		}

		var merged T
		if err := json.Unmarshal(body, &merged); err != nil {
			return fmt.Errorf("decode merged document: %w", err)
		}
		stamps := P(&merged).timestamps()
		stamps.UpdatedAt = after(r.now(), stamps.CreatedAt)

		rec, err := r.encode(P(&merged))
		if err != nil {
			return err
		}
		if err := tx.Put(ctx, r.collection, rec); err != nil {
			return err
		}
		*doc = merged
		return nil
	})
}

func (r *Repository[T, P]) get(ctx context.Context, q recordReader, id string) (*T, error) {
	rec, found, err := q.Get(ctx, r.collection, id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, storage.ErrNotFound
	}
	var doc T
	if err := rec.Decode(&doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *Repository[T, P]) list(ctx context.Context, q recordReader, filters []Filter) ([]T, error) {
	for _, f := range filters {
		if strings.TrimSpace(f.Field) == "" {
			return nil, fmt.Errorf("%w: filter without field", storage.ErrInvalidRecord)
		}
	}

	var (
		records []storage.Record
		err     error
	)
	rest := filters
	if i := r.indexedFilter(filters); i >= 0 {
		records, err = q.GetAllByIndex(ctx, r.collection, filters[i].Field, filters[i].Value)
		rest = make([]Filter, 0, len(filters)-1)
		rest = append(rest, filters[:i]...)
		rest = append(rest, filters[i+1:]...)
	} else {
		records, err = q.GetAll(ctx, r.collection)
	}
	if err != nil {
		return nil, err
	}

	out := make([]T, 0, len(records))
	for _, rec := range records {
		ok, err := matchAll(rec, rest)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		var doc T
		if err := rec.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, nil
}

func (r *Repository[T, P]) indexedFilter(filters []Filter) int {
	for i, f := range filters {
		if r.engine.HasIndex(r.collection, f.Field) {
			return i
		}
	}
	return -1
}

func (r *Repository[T, P]) encode(doc P) (storage.Record, error) {
	key := doc.documentKey()
	if strings.TrimSpace(key) == "" {
		return storage.Record{}, fmt.Errorf("%w: empty id", storage.ErrInvalidRecord)
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return storage.Record{}, fmt.Errorf("%w: encode %s: %v", storage.ErrInvalidRecord, key, err)
	}
	return storage.Record{ID: key, Body: body}, nil
}

func matchAll(rec storage.Record, filters []Filter) (bool, error) {
	for _, f := range filters {
		ok, err := storage.MatchField(rec.Body, f.Field, f.Value)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// mergeDocuments overlays the top-level fields of patch onto base. Identity
// and timestamp fields of base always win, and null fields in patch are
// ignored.
func mergeDocuments(base, patch json.RawMessage) (json.RawMessage, error) {
	var (
		dst map[string]json.RawMessage
		src map[string]json.RawMessage
	)
	if err := json.Unmarshal(base, &dst); err != nil {
		return nil, fmt.Errorf("%w: decode stored document: %v", storage.ErrInvalidRecord, err)
	}
	if err := json.Unmarshal(patch, &src); err != nil {
		return nil, fmt.Errorf("%w: decode update: %v", storage.ErrInvalidRecord, err)
	}
	for key, value := range src {
		switch key {
		case "id", "key", "createdAt", "updatedAt":
			continue
		}
		if string(value) == "null" {
			continue
		}
		dst[key] = value
	}
	out, err := json.Marshal(dst)
	if err != nil {
		return nil, fmt.Errorf("encode merged document: %w", err)
	}
	return out, nil
}

// after returns t, or the instant just past floor when t does not follow it.
func after(t, floor time.Time) time.Time {
	if t.After(floor) {
		return t
	}
	return floor.Add(time.Microsecond)
}
