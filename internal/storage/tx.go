package storage

import (
	"context"
	"database/sql"
	"fmt"
)

type Mode int

const (
	ReadOnly Mode = iota
	ReadWrite
)

func (m Mode) String() string {
	switch m {
	case ReadOnly:
		return "readonly"
	case ReadWrite:
		return "readwrite"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Tx is an open transaction scoped to a fixed set of collections. It is only
// valid inside the function passed to RunInTransaction.
type Tx struct {
	tx     *sql.Tx
	engine *Engine
	mode   Mode
	scope  map[string]struct{}
}

// RunInTransaction runs fn inside one transaction over the given collections.
// If fn returns an error or panics, every write made through the Tx is rolled
// back; the returned error then wraps both ErrTransactionAborted and the cause.
// ReadWrite transactions take the database write lock up front, so concurrent
// writers are serialized.
func (e *Engine) RunInTransaction(ctx context.Context, collections []string, mode Mode, fn func(*Tx) error) (err error) {
	if len(collections) == 0 {
		return fmt.Errorf("run transaction: no collections in scope")
	}
	if mode != ReadOnly && mode != ReadWrite {
		return fmt.Errorf("run transaction: invalid mode %s", mode)
	}
	scope := make(map[string]struct{}, len(collections))
	for _, name := range collections {
		if _, err := e.collection(name); err != nil {
			return err
		}
		scope[name] = struct{}{}
	}

	db, err := e.ready(ctx)
	if err != nil {
		return err
	}

	sqlTx, err := db.BeginTx(ctx, &sql.TxOptions{ReadOnly: mode == ReadOnly})
	if err != nil {
		return fmt.Errorf("%w: begin: %w", ErrTransactionAborted, err)
	}

	tx := &Tx{tx: sqlTx, engine: e, mode: mode, scope: scope}
	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			e.logger.Warn("transaction rollback failed", "mode", mode.String(), "error", rbErr)
		}
		return fmt.Errorf("%w: %w", ErrTransactionAborted, err)
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %w", ErrTransactionAborted, err)
	}
	return nil
}

func (t *Tx) Mode() Mode {
	return t.mode
}

func (t *Tx) check(collection string, write bool) error {
	if _, err := t.engine.collection(collection); err != nil {
		return err
	}
	if _, ok := t.scope[collection]; !ok {
		return fmt.Errorf("%w: %s", ErrCollectionNotInScope, collection)
	}
	if write && t.mode != ReadWrite {
		return fmt.Errorf("%w: %s", ErrReadOnlyTransaction, collection)
	}
	return nil
}

func (t *Tx) Get(ctx context.Context, collection, id string) (Record, bool, error) {
	if err := t.check(collection, false); err != nil {
		return Record{}, false, err
	}
	return getRecord(ctx, t.tx, collection, id)
}

func (t *Tx) GetAll(ctx context.Context, collection string) ([]Record, error) {
	if err := t.check(collection, false); err != nil {
		return nil, err
	}
	return listRecords(ctx, t.tx, collection)
}

func (t *Tx) GetAllByIndex(ctx context.Context, collection, index string, value any) ([]Record, error) {
	if err := t.check(collection, false); err != nil {
		return nil, err
	}
	idx, ok := findIndex(t.engine.collections[collection], index)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownIndex, collection, index)
	}
	return listByIndex(ctx, t.tx, collection, idx, value)
}

func (t *Tx) Put(ctx context.Context, collection string, rec Record) error {
	if err := t.check(collection, true); err != nil {
		return err
	}
	return putRecord(ctx, t.tx, collection, rec)
}

func (t *Tx) Add(ctx context.Context, collection string, rec Record) error {
	if err := t.check(collection, true); err != nil {
		return err
	}
	return addRecord(ctx, t.tx, collection, rec)
}

func (t *Tx) Delete(ctx context.Context, collection, id string) error {
	if err := t.check(collection, true); err != nil {
		return err
	}
	return deleteRecord(ctx, t.tx, collection, id)
}

func (t *Tx) Count(ctx context.Context, collection string) (int, error) {
	if err := t.check(collection, false); err != nil {
		return 0, err
	}
	return countRecords(ctx, t.tx, collection)
}

func (t *Tx) Clear(ctx context.Context, collection string) error {
	if err := t.check(collection, true); err != nil {
		return err
	}
	return clearCollection(ctx, t.tx, collection)
}
