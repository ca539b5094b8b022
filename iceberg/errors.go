package iceberg

import (
	"fmt"
	"strings"
)

// ValidationError indicates a structural invariant of the metadata document
// was violated. It is never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid metadata: %s", e.Reason)
	}
	return fmt.Sprintf("invalid metadata: %s: %s", e.Field, e.Reason)
}

// StorageError indicates an I/O, permission, or connection failure from the
// storage backend. It is fatal for the commit attempt in progress; retrying
// cannot fix a permission failure and risks duplicate side effects for
// blind I/O errors.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// CommitConflictError signals that another writer claimed the target
// metadata version first. The committer recovers from it by re-reading and
// retrying; callers only see it as the cause inside
// CommitRetryExhaustedError.
type CommitConflictError struct {
	Version int
	Path    string
}

func (e *CommitConflictError) Error() string {
	return fmt.Sprintf("commit conflict: version %d already written at %s", e.Version, e.Path)
}

// CommitRetryExhaustedError wraps the last conflict after the configured
// number of attempts.
type CommitRetryExhaustedError struct {
	Attempts int
	Err      error
}

func (e *CommitRetryExhaustedError) Error() string {
	return fmt.Sprintf("commit failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *CommitRetryExhaustedError) Unwrap() error {
	return e.Err
}

// CommitTransactionError reports a partial failure: artifacts were written
// but the version pointer was not advanced. WrittenFiles lists everything
// put to storage for the failed commit and CleanupSuccessful reports
// whether best-effort deletion of those files succeeded. The original
// cause is never masked.
type CommitTransactionError struct {
	Err               error
	WrittenFiles      []string
	CleanupSuccessful bool
}

func (e *CommitTransactionError) Error() string {
	return fmt.Sprintf("commit transaction failed (written: [%s], cleanup ok: %t): %v",
		strings.Join(e.WrittenFiles, ", "), e.CleanupSuccessful, e.Err)
}

func (e *CommitTransactionError) Unwrap() error {
	return e.Err
}
