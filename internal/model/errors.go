package model

import (
	"errors"
	"fmt"
)

var (
	ErrSyncInProgress = errors.New("sync already running for helmet")
	ErrNotFound       = errors.New("not found")
)

// TransientStoreError wraps a failed read or write against the live or archival store.
type TransientStoreError struct {
	Op   string
	Path string
	Err  error
}

func (e *TransientStoreError) Error() string {
	return fmt.Sprintf("store %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *TransientStoreError) Unwrap() error { return e.Err }

func StoreError(op, path string, err error) error {
	if err == nil {
		return nil
	}
	return &TransientStoreError{Op: op, Path: path, Err: err}
}

// MalformedRecordError marks a single buffered history entry that cannot be archived.
type MalformedRecordError struct {
	Key    string
	Reason string
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("malformed history entry %q: %s", e.Key, e.Reason)
}

// PartialCommandError reports the step at which a multi-write command stopped.
// Writes before Step stay applied.
type PartialCommandError struct {
	Step int
	Path string
	Err  error
}

func (e *PartialCommandError) Error() string {
	return fmt.Sprintf("command stopped at step %d (%s): %v", e.Step, e.Path, e.Err)
}

func (e *PartialCommandError) Unwrap() error { return e.Err }
