package storage

import (
	"database/sql"
	"fmt"
	"regexp"
	"sort"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]{0,62}$`)

// IndexSpec declares a non-unique secondary index over one top-level
// document field.
type IndexSpec struct {
	Name  string
	Field string
}

type CollectionSpec struct {
	Name    string
	Indexes []IndexSpec
}

// SchemaStep is one additive schema version: the collections it introduces
// and the indices it adds. A step may name a collection created by an
// earlier step to add indices to it.
type SchemaStep struct {
	Version     int
	Description string
	Collections []CollectionSpec
}

type Schema struct {
	Steps []SchemaStep
}

// Version is the highest declared step version.
func (s Schema) Version() int {
	version := 0
	for _, step := range s.Steps {
		if step.Version > version {
			version = step.Version
		}
	}
	return version
}

// Collections folds every step into the final collection set, keyed by name.
func (s Schema) Collections() map[string]CollectionSpec {
	out := map[string]CollectionSpec{}
	for _, step := range s.orderedSteps() {
		for _, spec := range step.Collections {
			existing := out[spec.Name]
			existing.Name = spec.Name
			existing.Indexes = append(existing.Indexes, spec.Indexes...)
			out[spec.Name] = existing
		}
	}
	return out
}

func (s Schema) Validate() error {
	seenVersions := map[int]struct{}{}
	seenIndexes := map[string]struct{}{}
	for _, step := range s.Steps {
		if step.Version <= 0 {
			return fmt.Errorf("schema: step version must be positive, got %d", step.Version)
		}
		if _, dup := seenVersions[step.Version]; dup {
			return fmt.Errorf("schema: duplicate step version %d", step.Version)
		}
		seenVersions[step.Version] = struct{}{}

		for _, spec := range step.Collections {
			if !identifierPattern.MatchString(spec.Name) {
				return fmt.Errorf("schema: invalid collection name %q", spec.Name)
			}
			for _, idx := range spec.Indexes {
				if !identifierPattern.MatchString(idx.Name) {
					return fmt.Errorf("schema: invalid index name %q on %s", idx.Name, spec.Name)
				}
				if !identifierPattern.MatchString(idx.Field) {
					return fmt.Errorf("schema: invalid index field %q on %s", idx.Field, spec.Name)
				}
				key := spec.Name + "." + idx.Name
				if _, dup := seenIndexes[key]; dup {
					return fmt.Errorf("schema: duplicate index %s", key)
				}
				seenIndexes[key] = struct{}{}
			}
		}
	}
	return nil
}

// Migrations converts every step into an additive migration.
func (s Schema) Migrations() []Migration {
	steps := s.orderedSteps()
	out := make([]Migration, 0, len(steps))
	for _, step := range steps {
		step := step
		out = append(out, Migration{
			Version:     step.Version,
			Description: step.Description,
			Up:          func(tx *sql.Tx) error { return applyStep(tx, step) },
		})
	}
	return out
}

func (s Schema) orderedSteps() []SchemaStep {
	steps := make([]SchemaStep, len(s.Steps))
	copy(steps, s.Steps)
	sort.Slice(steps, func(i, j int) bool { return steps[i].Version < steps[j].Version })
	return steps
}

func applyStep(tx *sql.Tx, step SchemaStep) error {
	for _, spec := range step.Collections {
		if _, err := tx.Exec(createCollectionSQL(spec.Name)); err != nil {
			return fmt.Errorf("create collection %s: %w", spec.Name, err)
		}
		for _, idx := range spec.Indexes {
			if _, err := tx.Exec(createIndexSQL(spec.Name, idx)); err != nil {
				return fmt.Errorf("create index %s.%s: %w", spec.Name, idx.Name, err)
			}
		}
	}
	return nil
}

func tableName(collection string) string {
	return `"coll_` + collection + `"`
}

func indexExpr(field string) string {
	return `json_extract(body, '$.` + field + `')`
}

func createCollectionSQL(collection string) string {
	return `CREATE TABLE IF NOT EXISTS ` + tableName(collection) + ` (
		id TEXT PRIMARY KEY NOT NULL,
		body TEXT NOT NULL CHECK (json_valid(body))
	)`
}

func createIndexSQL(collection string, idx IndexSpec) string {
	return `CREATE INDEX IF NOT EXISTS "idx_` + collection + `_` + idx.Name + `" ON ` +
		tableName(collection) + ` (` + indexExpr(idx.Field) + `)`
}
