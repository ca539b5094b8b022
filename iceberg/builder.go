package iceberg

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TableMetadataBuilder owns an in-memory metadata document while it is
// being mutated. Build returns a validated deep copy, so a committed
// result is immutable and serves as the base for the next builder.
type TableMetadataBuilder struct {
	meta *TableMetadata
}

// NewTableMetadataBuilder starts a fresh format-version 2 document for a
// new table: one empty schema, the unpartitioned spec, and the unsorted
// order, all at id 0.
func NewTableMetadataBuilder(location string) *TableMetadataBuilder {
	return &TableMetadataBuilder{
		meta: &TableMetadata{
			FormatVersion:  2,
			TableUUID:      uuid.New().String(),
			Location:       location,
			LastUpdatedMs:  nowMs(),
			Schemas:        []Schema{{SchemaID: 0}},
			PartitionSpecs: []PartitionSpec{{SpecID: 0}},
			SortOrders:     []SortOrder{{OrderID: 0}},
			Snapshots:      []Snapshot{},
			SnapshotLog:    []SnapshotLogEntry{},
			MetadataLog:    []MetadataLogEntry{},
		},
	}
}

// FromMetadata reconstructs a builder over an existing document. An
// immediate Build round-trips every field unchanged.
func FromMetadata(m *TableMetadata) *TableMetadataBuilder {
	return &TableMetadataBuilder{meta: m.Clone()}
}

// SetFormatVersion switches the document between format versions 2 and 3.
func (b *TableMetadataBuilder) SetFormatVersion(v int) error {
	if v != 2 && v != 3 {
		return &ValidationError{Field: "format-version", Reason: fmt.Sprintf("unsupported version %d", v)}
	}
	b.meta.FormatVersion = v
	b.touch()
	return nil
}

// AddSnapshot appends a snapshot, makes it current, advances
// last-sequence-number, and records when it became current in the
// snapshot log. The main branch ref follows the current snapshot.
func (b *TableMetadataBuilder) AddSnapshot(s Snapshot) error {
	if b.meta.Snapshot(s.SnapshotID) != nil {
		return &ValidationError{Field: "snapshots", Reason: fmt.Sprintf("duplicate snapshot-id %d", s.SnapshotID)}
	}

	b.meta.Snapshots = append(b.meta.Snapshots, cloneSnapshot(s))
	id := s.SnapshotID
	b.meta.CurrentSnapshotID = &id
	if s.SequenceNumber > b.meta.LastSequenceNumber {
		b.meta.LastSequenceNumber = s.SequenceNumber
	}
	b.touch()
	b.meta.SnapshotLog = append(b.meta.SnapshotLog, SnapshotLogEntry{
		TimestampMs: b.meta.LastUpdatedMs,
		SnapshotID:  s.SnapshotID,
	})

	if b.meta.Refs == nil {
		b.meta.Refs = make(map[string]SnapshotRef)
	}
	b.meta.Refs["main"] = SnapshotRef{SnapshotID: s.SnapshotID, Type: "branch"}

	if b.meta.FormatVersion >= 3 && s.FirstRowID != nil && s.AddedRows != nil {
		next := *s.FirstRowID + *s.AddedRows
		if b.meta.NextRowID == nil || next > *b.meta.NextRowID {
			b.meta.NextRowID = &next
		}
	}
	return nil
}

// SetInitialSchema replaces the empty placeholder schema a fresh builder
// starts with.
func (b *TableMetadataBuilder) SetInitialSchema(s Schema) {
	b.meta.Schemas = []Schema{s}
	b.meta.CurrentSchemaID = s.SchemaID
	b.meta.LastColumnID = 0
	for _, f := range s.Fields {
		if f.ID > b.meta.LastColumnID {
			b.meta.LastColumnID = f.ID
		}
	}
	b.touch()
}

// AddSchema registers a schema, extending last-column-id to cover its
// field ids.
func (b *TableMetadataBuilder) AddSchema(s Schema) error {
	for _, existing := range b.meta.Schemas {
		if existing.SchemaID == s.SchemaID {
			return &ValidationError{Field: "schemas", Reason: fmt.Sprintf("duplicate schema-id %d", s.SchemaID)}
		}
	}
	b.meta.Schemas = append(b.meta.Schemas, s)
	for _, f := range s.Fields {
		if f.ID > b.meta.LastColumnID {
			b.meta.LastColumnID = f.ID
		}
	}
	b.touch()
	return nil
}

func (b *TableMetadataBuilder) SetCurrentSchema(schemaID int) error {
	for _, s := range b.meta.Schemas {
		if s.SchemaID == schemaID {
			b.meta.CurrentSchemaID = schemaID
			b.touch()
			return nil
		}
	}
	return &ValidationError{Field: "current-schema-id", Reason: fmt.Sprintf("schema %d not found", schemaID)}
}

// AddPartitionSpec registers a spec, extending last-partition-id to cover
// its field ids.
func (b *TableMetadataBuilder) AddPartitionSpec(spec PartitionSpec) error {
	for _, existing := range b.meta.PartitionSpecs {
		if existing.SpecID == spec.SpecID {
			return &ValidationError{Field: "partition-specs", Reason: fmt.Sprintf("duplicate spec-id %d", spec.SpecID)}
		}
	}
	b.meta.PartitionSpecs = append(b.meta.PartitionSpecs, spec)
	for _, f := range spec.Fields {
		if f.FieldID > b.meta.LastPartitionID {
			b.meta.LastPartitionID = f.FieldID
		}
	}
	b.touch()
	return nil
}

func (b *TableMetadataBuilder) SetDefaultPartitionSpec(specID int) error {
	for _, spec := range b.meta.PartitionSpecs {
		if spec.SpecID == specID {
			b.meta.DefaultSpecID = specID
			b.touch()
			return nil
		}
	}
	return &ValidationError{Field: "default-spec-id", Reason: fmt.Sprintf("partition spec %d not found", specID)}
}

func (b *TableMetadataBuilder) AddSortOrder(o SortOrder) error {
	for _, existing := range b.meta.SortOrders {
		if existing.OrderID == o.OrderID {
			return &ValidationError{Field: "sort-orders", Reason: fmt.Sprintf("duplicate order-id %d", o.OrderID)}
		}
	}
	b.meta.SortOrders = append(b.meta.SortOrders, o)
	b.touch()
	return nil
}

func (b *TableMetadataBuilder) SetDefaultSortOrder(orderID int) error {
	for _, o := range b.meta.SortOrders {
		if o.OrderID == orderID {
			b.meta.DefaultSortOrderID = orderID
			b.touch()
			return nil
		}
	}
	return &ValidationError{Field: "default-sort-order-id", Reason: fmt.Sprintf("sort order %d not found", orderID)}
}

// AddEncryptionKey registers a table key. Requires format version 3.
func (b *TableMetadataBuilder) AddEncryptionKey(k EncryptionKey) error {
	if b.meta.FormatVersion < 3 {
		return &ValidationError{Field: "encryption-keys", Reason: "requires format-version 3"}
	}
	for _, existing := range b.meta.EncryptionKeys {
		if existing.KeyID == k.KeyID {
			return &ValidationError{Field: "encryption-keys", Reason: fmt.Sprintf("duplicate key-id %s", k.KeyID)}
		}
	}
	b.meta.EncryptionKeys = append(b.meta.EncryptionKeys, k)
	b.touch()
	return nil
}

// SetRef points a named branch or tag at an existing snapshot.
func (b *TableMetadataBuilder) SetRef(name string, ref SnapshotRef) error {
	if b.meta.Snapshot(ref.SnapshotID) == nil {
		return &ValidationError{Field: "refs", Reason: fmt.Sprintf("snapshot %d not found", ref.SnapshotID)}
	}
	if b.meta.Refs == nil {
		b.meta.Refs = make(map[string]SnapshotRef)
	}
	b.meta.Refs[name] = ref
	b.touch()
	return nil
}

func (b *TableMetadataBuilder) RemoveRef(name string) {
	delete(b.meta.Refs, name)
	b.touch()
}

func (b *TableMetadataBuilder) SetProperty(key, value string) {
	if b.meta.Properties == nil {
		b.meta.Properties = make(map[string]string)
	}
	b.meta.Properties[key] = value
	b.touch()
}

// Build validates the document and returns an independent copy. Calling
// Build twice without intervening mutation yields deep-equal results.
func (b *TableMetadataBuilder) Build() (*TableMetadata, error) {
	if err := ValidateMetadata(b.meta); err != nil {
		return nil, err
	}
	return b.meta.Clone(), nil
}

// NextSequenceNumber returns the sequence number the next snapshot will
// carry.
func (b *TableMetadataBuilder) NextSequenceNumber() int64 {
	return b.meta.LastSequenceNumber + 1
}

// CurrentSnapshotID returns the current snapshot id, or nil when the
// table has no current snapshot.
func (b *TableMetadataBuilder) CurrentSnapshotID() *int64 {
	if b.meta.CurrentSnapshotID == nil {
		return nil
	}
	id := *b.meta.CurrentSnapshotID
	return &id
}

// Snapshot returns a copy of the snapshot with the given id, or nil.
func (b *TableMetadataBuilder) Snapshot(id int64) *Snapshot {
	s := b.meta.Snapshot(id)
	if s == nil {
		return nil
	}
	out := cloneSnapshot(*s)
	return &out
}

// Snapshots returns a copy of the snapshot list.
func (b *TableMetadataBuilder) Snapshots() []Snapshot {
	out := make([]Snapshot, len(b.meta.Snapshots))
	for i, s := range b.meta.Snapshots {
		out[i] = cloneSnapshot(s)
	}
	return out
}

// SnapshotHistory returns a copy of the snapshot log.
func (b *TableMetadataBuilder) SnapshotHistory() []SnapshotLogEntry {
	return append([]SnapshotLogEntry(nil), b.meta.SnapshotLog...)
}

func (b *TableMetadataBuilder) touch() {
	now := nowMs()
	if now <= b.meta.LastUpdatedMs {
		now = b.meta.LastUpdatedMs + 1
	}
	b.meta.LastUpdatedMs = now
}

func nowMs() int64 {
	return time.Now().UnixMilli()
}
