package reconcile

import (
	"errors"
	"fmt"
	"strings"
)

// ErrIncompleteNaturalKey is wrapped when a record lacks one of its natural-key fields.
var ErrIncompleteNaturalKey = errors.New("incomplete natural key")

// NaturalKey is the ordered field/value list identifying one logical record.
type NaturalKey struct {
	Fields []string
	Values []any
}

func (k NaturalKey) String() string {
	parts := make([]string, len(k.Fields))
	for i, f := range k.Fields {
		parts[i] = fmt.Sprintf("%s=%v", f, k.Values[i])
	}
	return strings.Join(parts, ",")
}

// ReconciliationConflictError reports an upsert that kept racing with concurrent writers of the
// same natural key.
type ReconciliationConflictError struct {
	Collection string
	Key        NaturalKey
	Attempts   int
}

func (e *ReconciliationConflictError) Error() string {
	return fmt.Sprintf("upsert on %s for [%s] still conflicting after %d attempts", e.Collection, e.Key, e.Attempts)
}

// StorageWriteError reports a failed insert or replace. The store may or may not have applied it.
type StorageWriteError struct {
	Collection string
	Key        NaturalKey
	Op         string
	Err        error
}

func (e *StorageWriteError) Error() string {
	return fmt.Sprintf("%s on %s for [%s] failed: %v", e.Op, e.Collection, e.Key, e.Err)
}

func (e *StorageWriteError) Unwrap() error { return e.Err }
