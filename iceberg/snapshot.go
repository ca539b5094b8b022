package iceberg

import (
	"fmt"
	"math"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

const defaultOperation = "append"

// NewSnapshotID derives a positive 63-bit snapshot id from fresh UUID
// entropy.
func NewSnapshotID() int64 {
	for {
		u := uuid.New()
		id := int64(xxhash.Sum64(u[:]) & math.MaxInt64)
		if id != 0 {
			return id
		}
	}
}

// SnapshotBuilder assembles one immutable snapshot record referencing a
// manifest list.
type SnapshotBuilder struct {
	snapshot Snapshot
	err      error
}

func NewSnapshotBuilder(sequenceNumber int64, manifestList string) *SnapshotBuilder {
	return &SnapshotBuilder{
		snapshot: Snapshot{
			SequenceNumber: sequenceNumber,
			ManifestList:   manifestList,
			Summary:        map[string]string{},
		},
	}
}

func (b *SnapshotBuilder) WithSnapshotID(id int64) *SnapshotBuilder {
	b.snapshot.SnapshotID = id
	return b
}

func (b *SnapshotBuilder) WithParentSnapshotID(id int64) *SnapshotBuilder {
	b.snapshot.ParentSnapshotID = &id
	return b
}

func (b *SnapshotBuilder) WithTimestampMs(ts int64) *SnapshotBuilder {
	b.snapshot.TimestampMs = ts
	return b
}

func (b *SnapshotBuilder) WithOperation(op string) *SnapshotBuilder {
	b.snapshot.Summary["operation"] = op
	return b
}

func (b *SnapshotBuilder) WithSchemaID(id int) *SnapshotBuilder {
	b.snapshot.SchemaID = &id
	return b
}

func (b *SnapshotBuilder) WithFirstRowID(id int64) *SnapshotBuilder {
	b.snapshot.FirstRowID = &id
	return b
}

func (b *SnapshotBuilder) WithAddedRows(n int64) *SnapshotBuilder {
	b.snapshot.AddedRows = &n
	return b
}

func (b *SnapshotBuilder) WithKeyID(id string) *SnapshotBuilder {
	b.snapshot.KeyID = &id
	return b
}

// SetSummary records the snapshot's change and total counters. All values
// must be non-negative.
func (b *SnapshotBuilder) SetSummary(addedFiles, deletedFiles, addedRows, deletedRows, addedBytes, deletedBytes, totalFiles, totalBytes, totalRows int64) *SnapshotBuilder {
	counters := map[string]int64{
		"added-data-files":   addedFiles,
		"deleted-data-files": deletedFiles,
		"added-records":      addedRows,
		"deleted-records":    deletedRows,
		"added-files-size":   addedBytes,
		"removed-files-size": deletedBytes,
		"total-data-files":   totalFiles,
		"total-files-size":   totalBytes,
		"total-records":      totalRows,
	}
	for key, v := range counters {
		if v < 0 {
			b.err = &ValidationError{Field: "summary", Reason: fmt.Sprintf("%s must be non-negative, got %d", key, v)}
			return b
		}
		b.snapshot.Summary[key] = fmt.Sprintf("%d", v)
	}
	return b
}

// Build finalizes the snapshot, generating a random id and defaulting the
// timestamp and operation when the caller left them unset.
func (b *SnapshotBuilder) Build() (Snapshot, error) {
	if b.err != nil {
		return Snapshot{}, b.err
	}
	s := cloneSnapshot(b.snapshot)
	if s.SnapshotID == 0 {
		s.SnapshotID = NewSnapshotID()
	}
	if s.SnapshotID < 0 {
		return Snapshot{}, &ValidationError{Field: "snapshot-id", Reason: "must be positive"}
	}
	if s.TimestampMs == 0 {
		s.TimestampMs = nowMs()
	}
	if s.Summary["operation"] == "" {
		s.Summary["operation"] = defaultOperation
	}
	return s, nil
}
