package index

import (
	"errors"
	"fmt"
)

// ErrBatchMismatch indicates an Insert batch whose id/vector/document/metadata
// lists have different lengths. The batch is rejected with no partial effect.
var ErrBatchMismatch = errors.New("batch lists must have equal length")

// StorageError wraps an I/O failure from the underlying database. Storage
// errors are never retried automatically — a silent retry on a stateful write
// risks duplicate inserts — so they propagate for the caller to decide.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func storageErr(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}
