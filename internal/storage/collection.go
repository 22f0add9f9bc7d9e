package storage

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Record is one stored document. ID is the collection's primary key and Body
// is the document itself, always a JSON object.
type Record struct {
	ID   string          `json:"id"`
	Body json.RawMessage `json:"body"`
}

func (r Record) validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidRecord)
	}
	body := bytes.TrimSpace(r.Body)
	if len(body) == 0 || body[0] != '{' || !json.Valid(body) {
		return fmt.Errorf("%w: body of %s is not a JSON object", ErrInvalidRecord, r.ID)
	}
	return nil
}

// Decode unmarshals the record body into v.
func (r Record) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode record %s: %w", r.ID, err)
	}
	return nil
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func findIndex(spec CollectionSpec, name string) (IndexSpec, bool) {
	for _, idx := range spec.Indexes {
		if idx.Name == name {
			return idx, true
		}
	}
	return IndexSpec{}, false
}

func (e *Engine) collection(name string) (CollectionSpec, error) {
	spec, ok := e.collections[name]
	if !ok {
		return CollectionSpec{}, fmt.Errorf("%w: %s", ErrUnknownCollection, name)
	}
	return spec, nil
}

// Get returns the record stored under id. The boolean is false when no such
// record exists; that is not an error.
func (e *Engine) Get(ctx context.Context, collection, id string) (Record, bool, error) {
	if _, err := e.collection(collection); err != nil {
		return Record{}, false, err
	}
	db, err := e.ready(ctx)
	if err != nil {
		return Record{}, false, err
	}
	return getRecord(ctx, db, collection, id)
}

// GetAll returns every record of a collection ordered by id.
func (e *Engine) GetAll(ctx context.Context, collection string) ([]Record, error) {
	if _, err := e.collection(collection); err != nil {
		return nil, err
	}
	db, err := e.ready(ctx)
	if err != nil {
		return nil, err
	}
	return listRecords(ctx, db, collection)
}

// GetAllByIndex returns the records whose indexed field equals value.
func (e *Engine) GetAllByIndex(ctx context.Context, collection, index string, value any) ([]Record, error) {
	spec, err := e.collection(collection)
	if err != nil {
		return nil, err
	}
	idx, ok := findIndex(spec, index)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownIndex, collection, index)
	}
	db, err := e.ready(ctx)
	if err != nil {
		return nil, err
	}
	return listByIndex(ctx, db, collection, idx, value)
}

// Put inserts or fully replaces the record with the same id.
func (e *Engine) Put(ctx context.Context, collection string, rec Record) error {
	if _, err := e.collection(collection); err != nil {
		return err
	}
	db, err := e.ready(ctx)
	if err != nil {
		return err
	}
	return putRecord(ctx, db, collection, rec)
}

// Add inserts a record and fails with ErrDuplicateKey if its id is taken.
func (e *Engine) Add(ctx context.Context, collection string, rec Record) error {
	if _, err := e.collection(collection); err != nil {
		return err
	}
	db, err := e.ready(ctx)
	if err != nil {
		return err
	}
	return addRecord(ctx, db, collection, rec)
}

// Delete removes the record with the given id. Deleting a missing id is a
// no-op.
func (e *Engine) Delete(ctx context.Context, collection, id string) error {
	if _, err := e.collection(collection); err != nil {
		return err
	}
	db, err := e.ready(ctx)
	if err != nil {
		return err
	}
	return deleteRecord(ctx, db, collection, id)
}

func (e *Engine) Count(ctx context.Context, collection string) (int, error) {
	if _, err := e.collection(collection); err != nil {
		return 0, err
	}
	db, err := e.ready(ctx)
	if err != nil {
		return 0, err
	}
	return countRecords(ctx, db, collection)
}

// Clear empties the named collections in one transaction. With no names every
// declared collection is cleared.
func (e *Engine) Clear(ctx context.Context, collections ...string) error {
	if len(collections) == 0 {
		collections = e.Collections()
	}
	return e.RunInTransaction(ctx, collections, ReadWrite, func(tx *Tx) error {
		for _, name := range collections {
			if err := tx.Clear(ctx, name); err != nil {
				return err
			}
		}
		return nil
	})
}

func getRecord(ctx context.Context, q queryer, collection, id string) (Record, bool, error) {
	var body string
	err := q.QueryRowContext(ctx, `SELECT body FROM `+tableName(collection)+` WHERE id = ?`, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return Record{ID: id, Body: json.RawMessage(body)}, true, nil
}

func listRecords(ctx context.Context, q queryer, collection string) ([]Record, error) {
	rows, err := q.QueryContext(ctx, `SELECT id, body FROM `+tableName(collection)+` ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	return scanRecords(rows, collection)
}

func listByIndex(ctx context.Context, q queryer, collection string, idx IndexSpec, value any) ([]Record, error) {
	arg, err := normalizeIndexValue(value)
	if err != nil {
		return nil, err
	}
	rows, err := q.QueryContext(ctx,
		`SELECT id, body FROM `+tableName(collection)+` WHERE `+indexExpr(idx.Field)+` = ? ORDER BY id`, arg)
	if err != nil {
		return nil, fmt.Errorf("list %s by %s: %w", collection, idx.Name, err)
	}
	return scanRecords(rows, collection)
}

func scanRecords(rows *sql.Rows, collection string) ([]Record, error) {
	defer rows.Close()

	out := []Record{}
	for rows.Next() {
		var (
			id   string
			body string
		)
		if err := rows.Scan(&id, &body); err != nil {
			return nil, fmt.Errorf("scan %s: %w", collection, err)
		}
		out = append(out, Record{ID: id, Body: json.RawMessage(body)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", collection, err)
	}
	return out, nil
}

func putRecord(ctx context.Context, q queryer, collection string, rec Record) error {
	if err := rec.validate(); err != nil {
		return err
	}
	if _, err := q.ExecContext(ctx,
		`INSERT INTO `+tableName(collection)+`(id, body) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET body = excluded.body`, rec.ID, string(rec.Body)); err != nil {
		return fmt.Errorf("put %s/%s: %w", collection, rec.ID, err)
	}
	return nil
}

func addRecord(ctx context.Context, q queryer, collection string, rec Record) error {
	if err := rec.validate(); err != nil {
		return err
	}
	if _, err := q.ExecContext(ctx,
		`INSERT INTO `+tableName(collection)+`(id, body) VALUES (?, ?)`, rec.ID, string(rec.Body)); err != nil {
		if isPrimaryKeyViolation(err) {
			return fmt.Errorf("%w: %s/%s", ErrDuplicateKey, collection, rec.ID)
		}
		return fmt.Errorf("add %s/%s: %w", collection, rec.ID, err)
	}
	return nil
}

func deleteRecord(ctx context.Context, q queryer, collection, id string) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM `+tableName(collection)+` WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	return nil
}

func countRecords(ctx context.Context, q queryer, collection string) (int, error) {
	var n int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+tableName(collection)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", collection, err)
	}
	return n, nil
}

func clearCollection(ctx context.Context, q queryer, collection string) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM `+tableName(collection)); err != nil {
		return fmt.Errorf("clear %s: %w", collection, err)
	}
	return nil
}
