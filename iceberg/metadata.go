package iceberg

import (
	"encoding/json"
	"fmt"
	"path"
)

type PartitionSpec struct {
	SpecID int              `json:"spec-id"`
	Fields []PartitionField `json:"fields"`
}

type PartitionField struct {
	SourceID  int    `json:"source-id"`
	FieldID   int    `json:"field-id"`
	Name      string `json:"name"`
	Transform string `json:"transform"` // identity, year, month, day, bucket[N], truncate[W]
}

type Schema struct {
	SchemaID int     `json:"schema-id"`
	Fields   []Field `json:"fields"`
}

type Field struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
	Doc      string `json:"doc,omitempty"`
}

type SortOrder struct {
	OrderID int         `json:"order-id"`
	Fields  []SortField `json:"fields"`
}

type SortField struct {
	SourceID  int    `json:"source-id"`
	Transform string `json:"transform"`
	Direction string `json:"direction"`  // asc, desc
	NullOrder string `json:"null-order"` // nulls-first, nulls-last
}

// SnapshotRef is a named pointer to a snapshot id. Refs let branches and
// tags reference non-linear points of the same parent chain.
type SnapshotRef struct {
	SnapshotID         int64  `json:"snapshot-id"`
	Type               string `json:"type"` // branch, tag
	MinSnapshotsToKeep *int   `json:"min-snapshots-to-keep,omitempty"`
	MaxSnapshotAgeMs   *int64 `json:"max-snapshot-age-ms,omitempty"`
	MaxRefAgeMs        *int64 `json:"max-ref-age-ms,omitempty"`
}

// SnapshotLogEntry records when a snapshot became current, which can
// differ from creation order under branch and tag operations.
type SnapshotLogEntry struct {
	TimestampMs int64 `json:"timestamp-ms"`
	SnapshotID  int64 `json:"snapshot-id"`
}

// MetadataLogEntry points at a previous metadata file location.
type MetadataLogEntry struct {
	TimestampMs  int64  `json:"timestamp-ms"`
	MetadataFile string `json:"metadata-file"`
}

// EncryptionKey is a table encryption key reference (format version 3).
type EncryptionKey struct {
	KeyID         string `json:"key-id"`
	EncryptedKey  string `json:"encrypted-key-metadata"`
	EncryptedByID string `json:"encrypted-by-id,omitempty"`
}

// Snapshot is an immutable, timestamped pointer to the complete set of
// data files composing the table at one instant. Once a snapshot joins a
// TableMetadata's snapshot list it is never mutated.
type Snapshot struct {
	SnapshotID       int64             `json:"snapshot-id"`
	ParentSnapshotID *int64            `json:"parent-snapshot-id,omitempty"`
	SequenceNumber   int64             `json:"sequence-number"`
	TimestampMs      int64             `json:"timestamp-ms"`
	ManifestList     string            `json:"manifest-list"`
	Summary          map[string]string `json:"summary"`
	SchemaID         *int              `json:"schema-id,omitempty"`

	// Row lineage, format version 3 only.
	FirstRowID *int64  `json:"first-row-id,omitempty"`
	AddedRows  *int64  `json:"added-rows,omitempty"`
	KeyID      *string `json:"key-id,omitempty"`
}

// TableMetadata is the versioned metadata document. A committed document
// is immutable; every mutation goes through a TableMetadataBuilder and is
// published as a new version by the AtomicCommitter.
//
// current-snapshot-id serializes as an explicit null when no snapshot is
// current, while format-version 3 fields are omitted entirely below v3.
type TableMetadata struct {
	FormatVersion      int                    `json:"format-version"`
	TableUUID          string                 `json:"table-uuid"`
	Location           string                 `json:"location"`
	LastSequenceNumber int64                  `json:"last-sequence-number"`
	LastUpdatedMs      int64                  `json:"last-updated-ms"`
	LastColumnID       int                    `json:"last-column-id"`
	CurrentSchemaID    int                    `json:"current-schema-id"`
	Schemas            []Schema               `json:"schemas"`
	DefaultSpecID      int                    `json:"default-spec-id"`
	PartitionSpecs     []PartitionSpec        `json:"partition-specs"`
	LastPartitionID    int                    `json:"last-partition-id"`
	DefaultSortOrderID int                    `json:"default-sort-order-id"`
	SortOrders         []SortOrder            `json:"sort-orders"`
	Properties         map[string]string      `json:"properties,omitempty"`
	CurrentSnapshotID  *int64                 `json:"current-snapshot-id"`
	Snapshots          []Snapshot             `json:"snapshots"`
	SnapshotLog        []SnapshotLogEntry     `json:"snapshot-log"`
	MetadataLog        []MetadataLogEntry     `json:"metadata-log"`
	Refs               map[string]SnapshotRef `json:"refs,omitempty"`

	// Format version 3 only.
	NextRowID      *int64          `json:"next-row-id,omitempty"`
	EncryptionKeys []EncryptionKey `json:"encryption-keys,omitempty"`
}

// Clone returns a deep copy. Builders hand out copies so a committed
// document is never aliased by later mutations.
func (m *TableMetadata) Clone() *TableMetadata {
	out := *m

	out.Schemas = make([]Schema, len(m.Schemas))
	for i, s := range m.Schemas {
		out.Schemas[i] = s
		out.Schemas[i].Fields = append([]Field(nil), s.Fields...)
	}
	out.PartitionSpecs = make([]PartitionSpec, len(m.PartitionSpecs))
	for i, p := range m.PartitionSpecs {
		out.PartitionSpecs[i] = p
		out.PartitionSpecs[i].Fields = append([]PartitionField(nil), p.Fields...)
	}
	out.SortOrders = make([]SortOrder, len(m.SortOrders))
	for i, o := range m.SortOrders {
		out.SortOrders[i] = o
		out.SortOrders[i].Fields = append([]SortField(nil), o.Fields...)
	}
	if m.Properties != nil {
		out.Properties = make(map[string]string, len(m.Properties))
		for k, v := range m.Properties {
			out.Properties[k] = v
		}
	}
	if m.CurrentSnapshotID != nil {
		id := *m.CurrentSnapshotID
		out.CurrentSnapshotID = &id
	}
	out.Snapshots = make([]Snapshot, len(m.Snapshots))
	for i, s := range m.Snapshots {
		out.Snapshots[i] = cloneSnapshot(s)
	}
	out.SnapshotLog = append([]SnapshotLogEntry(nil), m.SnapshotLog...)
	out.MetadataLog = append([]MetadataLogEntry(nil), m.MetadataLog...)
	if m.Refs != nil {
		out.Refs = make(map[string]SnapshotRef, len(m.Refs))
		for k, v := range m.Refs {
			out.Refs[k] = v
		}
	}
	if m.NextRowID != nil {
		v := *m.NextRowID
		out.NextRowID = &v
	}
	out.EncryptionKeys = append([]EncryptionKey(nil), m.EncryptionKeys...)

	return &out
}

func cloneSnapshot(s Snapshot) Snapshot {
	out := s
	if s.ParentSnapshotID != nil {
		v := *s.ParentSnapshotID
		out.ParentSnapshotID = &v
	}
	if s.Summary != nil {
		out.Summary = make(map[string]string, len(s.Summary))
		for k, val := range s.Summary {
			out.Summary[k] = val
		}
	}
	if s.SchemaID != nil {
		v := *s.SchemaID
		out.SchemaID = &v
	}
	if s.FirstRowID != nil {
		v := *s.FirstRowID
		out.FirstRowID = &v
	}
	if s.AddedRows != nil {
		v := *s.AddedRows
		out.AddedRows = &v
	}
	if s.KeyID != nil {
		v := *s.KeyID
		out.KeyID = &v
	}
	return out
}

// Snapshot returns the snapshot with the given id, or nil.
func (m *TableMetadata) Snapshot(id int64) *Snapshot {
	for i := range m.Snapshots {
		if m.Snapshots[i].SnapshotID == id {
			return &m.Snapshots[i]
		}
	}
	return nil
}

// MarshalMetadata is the canonical serialized form of a metadata
// document: indented JSON with kebab-case keys, deterministic for a given
// document so round-trips are byte-stable.
func MarshalMetadata(m *TableMetadata) ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

// UnmarshalMetadata parses a serialized metadata document.
func UnmarshalMetadata(data []byte) (*TableMetadata, error) {
	var m TableMetadata
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decoding metadata: %w", err)
	}
	return &m, nil
}

// MetadataPath returns the object key for a metadata version under a table
// location, e.g. <location>/metadata/v3.metadata.json.
func MetadataPath(location string, version int) string {
	return path.Join(location, "metadata", fmt.Sprintf("v%d.metadata.json", version))
}

// VersionHintPath returns the key of the pointer artifact naming the
// latest committed metadata version.
func VersionHintPath(location string) string {
	return path.Join(location, "metadata", "version-hint.text")
}
