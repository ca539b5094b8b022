package iceberg

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"arctic-commit/storage"
)

// Metadata log retention defaults, bounding history growth while keeping
// a window for cross-version time travel.
const (
	MetadataMaxAgeMs       = int64(7 * 24 * time.Hour / time.Millisecond)
	MetadataRetainVersions = 100
)

var metadataFileRe = regexp.MustCompile(`^v(\d+)\.metadata\.json$`)

// CommitConfig tunes the optimistic retry loop.
type CommitConfig struct {
	MaxRetries             int
	BaseRetryDelay         time.Duration
	MaxRetryDelay          time.Duration
	RetryJitter            float64
	MetadataMaxAgeMs       int64
	MetadataRetainVersions int
}

func DefaultCommitConfig() CommitConfig {
	return CommitConfig{
		MaxRetries:             5,
		BaseRetryDelay:         100 * time.Millisecond,
		MaxRetryDelay:          30 * time.Second,
		RetryJitter:            0.5,
		MetadataMaxAgeMs:       MetadataMaxAgeMs,
		MetadataRetainVersions: MetadataRetainVersions,
	}
}

// MutateFunc produces a candidate document from the freshly read base.
// The base is nil for a table that does not exist yet. A mutate function
// must be pure: a losing attempt rebuilds its candidate from re-read
// state, so the function may run once per attempt.
type MutateFunc func(base *TableMetadata) (*TableMetadata, error)

// StageFunc additionally stages artifacts (manifests, manifest lists) on
// storage for the attempt and reports their keys so a failed commit can
// clean them up. Artifacts must be path-addressed and fresh per attempt.
type StageFunc func(ctx context.Context, base *TableMetadata) (*TableMetadata, []string, error)

// CommitResult reports a published metadata version.
type CommitResult struct {
	Metadata         *TableMetadata
	Version          int
	MetadataLocation string
	Attempts         int
}

// AtomicCommitter publishes metadata versions with optimistic concurrency
// control. Concurrent writers race for the same versioned filename;
// storage admits exactly one via write-if-absent, and losers retry
// against re-read state with jittered exponential backoff. No in-process
// locks are involved: correctness rests entirely on the backend's per-key
// atomic create-if-absent and read-after-write visibility.
type AtomicCommitter struct {
	store  storage.Storage
	config CommitConfig
	logger *zap.Logger
}

func NewAtomicCommitter(store storage.Storage, config CommitConfig, logger *zap.Logger) *AtomicCommitter {
	if config.MaxRetries <= 0 {
		config.MaxRetries = DefaultCommitConfig().MaxRetries
	}
	if config.BaseRetryDelay <= 0 {
		config.BaseRetryDelay = DefaultCommitConfig().BaseRetryDelay
	}
	if config.MaxRetryDelay <= 0 {
		config.MaxRetryDelay = DefaultCommitConfig().MaxRetryDelay
	}
	if config.MetadataMaxAgeMs <= 0 {
		config.MetadataMaxAgeMs = MetadataMaxAgeMs
	}
	if config.MetadataRetainVersions <= 0 {
		config.MetadataRetainVersions = MetadataRetainVersions
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AtomicCommitter{store: store, config: config, logger: logger}
}

// Commit runs one logical commit: read the current version, apply mutate,
// validate, write the candidate at the next version with write-if-absent,
// and advance the version pointer. Conflicts restart from a fresh read;
// validation and storage errors surface immediately.
func (c *AtomicCommitter) Commit(ctx context.Context, location string, mutate MutateFunc) (*CommitResult, error) {
	return c.CommitStaged(ctx, location, func(ctx context.Context, base *TableMetadata) (*TableMetadata, []string, error) {
		candidate, err := mutate(base)
		return candidate, nil, err
	})
}

// CommitWithCleanup commits after the caller has already written data or
// manifest artifacts. On any failure the artifacts are deleted
// best-effort so a failed commit leaves no unreferenced live files;
// deletion failures are recorded in the CleanupSuccessful flag without
// masking the original error.
func (c *AtomicCommitter) CommitWithCleanup(ctx context.Context, location string, writtenFiles []string, mutate MutateFunc) (*CommitResult, error) {
	result, err := c.Commit(ctx, location, mutate)
	if err == nil {
		return result, nil
	}

	ok := c.cleanup(ctx, writtenFiles)
	var txErr *CommitTransactionError
	if errors.As(err, &txErr) {
		txErr.WrittenFiles = append(txErr.WrittenFiles, writtenFiles...)
		txErr.CleanupSuccessful = txErr.CleanupSuccessful && ok
		return nil, txErr
	}
	return nil, &CommitTransactionError{
		Err:               err,
		WrittenFiles:      writtenFiles,
		CleanupSuccessful: ok,
	}
}

// CommitStaged is Commit for callers that also stage manifest artifacts
// per attempt. Staged keys from failed attempts are deleted best-effort.
func (c *AtomicCommitter) CommitStaged(ctx context.Context, location string, stage StageFunc) (*CommitResult, error) {
	var lastConflict error

	for attempt := 0; attempt < c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := c.backoffDelay(attempt - 1)
			c.logger.Debug("retrying commit",
				zap.String("table", location),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		result, staged, err := c.attempt(ctx, location, stage)
		if err == nil {
			result.Attempts = attempt + 1
			return result, nil
		}

		var conflict *CommitConflictError
		if errors.As(err, &conflict) {
			lastConflict = err
			c.cleanup(ctx, staged)
			continue
		}

		// Fatal: clean staged artifacts so the failed commit leaves no
		// unreferenced live files, then surface the cause unchanged
		// unless it already carries the transaction context.
		var txErr *CommitTransactionError
		if errors.As(err, &txErr) {
			ok := c.cleanup(ctx, staged)
			txErr.WrittenFiles = append(txErr.WrittenFiles, staged...)
			txErr.CleanupSuccessful = txErr.CleanupSuccessful && ok
			return nil, txErr
		}
		c.cleanup(ctx, staged)
		return nil, err
	}

	return nil, &CommitRetryExhaustedError{Attempts: c.config.MaxRetries, Err: lastConflict}
}

// attempt runs one READ_CURRENT -> VALIDATE -> WRITE_CANDIDATE -> CONFIRM
// pass. It returns the staged keys in all cases so the caller can clean
// up after a failure.
func (c *AtomicCommitter) attempt(ctx context.Context, location string, stage StageFunc) (*CommitResult, []string, error) {
	version, base, err := c.readCurrent(ctx, location)
	if err != nil {
		return nil, nil, err
	}

	candidate, staged, err := stage(ctx, base)
	if err != nil {
		return nil, staged, err
	}
	candidate = candidate.Clone()

	if version > 0 {
		c.recordPreviousMetadata(candidate, location, version, base)
	}
	if err := ValidateMetadata(candidate); err != nil {
		return nil, staged, err
	}

	next := version + 1
	key := MetadataPath(location, next)
	data, err := MarshalMetadata(candidate)
	if err != nil {
		return nil, staged, fmt.Errorf("encoding metadata: %w", err)
	}

	if err := c.store.PutIfAbsent(ctx, key, data); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return nil, staged, &CommitConflictError{Version: next, Path: key}
		}
		return nil, staged, &StorageError{Op: "put", Key: key, Err: err}
	}

	hint := VersionHintPath(location)
	if err := c.store.Put(ctx, hint, []byte(strconv.Itoa(next))); err != nil {
		// Candidate written, pointer not advanced. Record what was
		// written and whether cleanup succeeded; the table stays
		// readable at its last confirmed version either way.
		cleanupOK := c.store.Delete(ctx, key) == nil
		return nil, staged, &CommitTransactionError{
			Err:               &StorageError{Op: "put", Key: hint, Err: err},
			WrittenFiles:      []string{key},
			CleanupSuccessful: cleanupOK,
		}
	}

	c.logger.Info("committed metadata version",
		zap.String("table", location),
		zap.Int("version", next),
		zap.Int64("last-sequence-number", candidate.LastSequenceNumber))

	return &CommitResult{
		Metadata:         candidate,
		Version:          next,
		MetadataLocation: key,
	}, staged, nil
}

// readCurrent resolves the current version and document. A missing
// version hint falls back to scanning the metadata directory; a table
// with neither hint nor versions is new at version 0.
func (c *AtomicCommitter) readCurrent(ctx context.Context, location string) (int, *TableMetadata, error) {
	version, err := c.currentVersion(ctx, location)
	if err != nil {
		return 0, nil, err
	}
	if version == 0 {
		return 0, nil, nil
	}

	key := MetadataPath(location, version)
	data, err := c.store.Get(ctx, key)
	if err != nil {
		return 0, nil, &StorageError{Op: "get", Key: key, Err: err}
	}

	meta, err := UnmarshalMetadata(data)
	if err != nil {
		return 0, nil, fmt.Errorf("decoding metadata %s: %w", key, err)
	}
	return version, meta, nil
}

func (c *AtomicCommitter) currentVersion(ctx context.Context, location string) (int, error) {
	hint := VersionHintPath(location)
	data, err := c.store.Get(ctx, hint)
	if err == nil {
		if v, parseErr := strconv.Atoi(strings.TrimSpace(string(data))); parseErr == nil && v > 0 {
			return v, nil
		}
		c.logger.Warn("corrupt version hint, scanning metadata directory",
			zap.String("table", location))
		return c.scanVersions(ctx, location)
	}
	if errors.Is(err, storage.ErrNotFound) {
		return c.scanVersions(ctx, location)
	}
	return 0, &StorageError{Op: "get", Key: hint, Err: err}
}

// scanVersions recovers the latest version from metadata filenames when
// the hint is missing or unreadable.
func (c *AtomicCommitter) scanVersions(ctx context.Context, location string) (int, error) {
	prefix := strings.TrimSuffix(MetadataPath(location, 1), "v1.metadata.json")
	keys, err := c.store.List(ctx, prefix)
	if err != nil {
		return 0, &StorageError{Op: "list", Key: prefix, Err: err}
	}

	latest := 0
	for _, key := range keys {
		name := strings.TrimPrefix(key, prefix)
		m := metadataFileRe.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		if v, err := strconv.Atoi(m[1]); err == nil && v > latest {
			latest = v
		}
	}
	return latest, nil
}

// recordPreviousMetadata appends the superseded metadata location to the
// candidate's metadata log and prunes entries past the retention policy,
// oldest first.
func (c *AtomicCommitter) recordPreviousMetadata(candidate *TableMetadata, location string, version int, base *TableMetadata) {
	ts := nowMs()
	if base != nil && base.LastUpdatedMs > 0 {
		ts = base.LastUpdatedMs
	}
	candidate.MetadataLog = append(candidate.MetadataLog, MetadataLogEntry{
		TimestampMs:  ts,
		MetadataFile: MetadataPath(location, version),
	})

	cutoff := nowMs() - c.config.MetadataMaxAgeMs
	log := candidate.MetadataLog
	for len(log) > 0 && (len(log) > c.config.MetadataRetainVersions || log[0].TimestampMs < cutoff) {
		log = log[1:]
	}
	candidate.MetadataLog = log
}

// cleanup deletes staged artifacts best-effort, reporting whether every
// deletion succeeded.
func (c *AtomicCommitter) cleanup(ctx context.Context, keys []string) bool {
	ok := true
	for _, key := range keys {
		if err := c.store.Delete(ctx, key); err != nil {
			c.logger.Warn("failed to clean up staged file",
				zap.String("key", key),
				zap.Error(err))
			ok = false
		}
	}
	return ok
}

// backoffDelay computes min(base*2^attempt, max) plus uniform jitter in
// [0, jitter*delay). An explicit loop with awaited delay keeps stack
// depth bounded and cancellation checks simple.
func (c *AtomicCommitter) backoffDelay(attempt int) time.Duration {
	d := float64(c.config.BaseRetryDelay) * math.Pow(2, float64(attempt))
	if d > float64(c.config.MaxRetryDelay) || d <= 0 {
		d = float64(c.config.MaxRetryDelay)
	}
	if c.config.RetryJitter > 0 {
		d += rand.Float64() * c.config.RetryJitter * d
	}
	if d > float64(c.config.MaxRetryDelay) {
		d = float64(c.config.MaxRetryDelay)
	}
	return time.Duration(d)
}
