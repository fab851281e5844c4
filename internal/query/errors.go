package query

import (
	"fmt"
	"time"
)

// QueryExecutionError reports a fetch or count that failed. No partial page accompanies it, and
// retrying is safe because nothing was written.
type QueryExecutionError struct {
	Collection string
	Op         string
	Err        error
}

func (e *QueryExecutionError) Error() string {
	return fmt.Sprintf("query %s on %s failed: %v", e.Op, e.Collection, e.Err)
}

func (e *QueryExecutionError) Unwrap() error { return e.Err }

// StorageTimeoutError reports a store call that ran past its deadline.
type StorageTimeoutError struct {
	Collection string
	Op         string
	Timeout    time.Duration
	Err        error
}

func (e *StorageTimeoutError) Error() string {
	if e.Timeout > 0 {
		return fmt.Sprintf("%s on %s timed out after %s", e.Op, e.Collection, e.Timeout)
	}
	return fmt.Sprintf("%s on %s timed out", e.Op, e.Collection)
}

func (e *StorageTimeoutError) Unwrap() error { return e.Err }
