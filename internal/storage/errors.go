package storage

import (
	"errors"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	ErrStorageUnavailable   = errors.New("storage: unavailable")
	ErrDuplicateKey         = errors.New("storage: duplicate key")
	ErrNotFound             = errors.New("storage: not found")
	ErrTransactionAborted   = errors.New("storage: transaction aborted")
	ErrInvalidRecord        = errors.New("storage: invalid record")
	ErrSchemaTooNew         = errors.New("storage: schema version newer than code")
	ErrUnknownCollection    = errors.New("storage: unknown collection")
	ErrUnknownIndex         = errors.New("storage: unknown index")
	ErrReadOnlyTransaction  = errors.New("storage: write in read-only transaction")
	ErrCollectionNotInScope = errors.New("storage: collection not in transaction scope")
)

func isPrimaryKeyViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
