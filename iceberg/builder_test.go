package iceberg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSchema() Schema {
	return Schema{
		SchemaID: 0,
		Fields: []Field{
			{ID: 1, Name: "id", Type: "long", Required: true},
			{ID: 2, Name: "name", Type: "string"},
		},
	}
}

func testSnapshot(id, seq int64) Snapshot {
	return Snapshot{
		SnapshotID:     id,
		SequenceNumber: seq,
		TimestampMs:    1700000000000 + seq,
		ManifestList:   "t/metadata/snap.json",
		Summary:        map[string]string{"operation": "append"},
	}
}

func TestNewTableMetadataBuilder_BuildsValidDocument(t *testing.T) {
	meta, err := NewTableMetadataBuilder("warehouse/db/t").Build()
	require.NoError(t, err)

	assert.Equal(t, 2, meta.FormatVersion)
	assert.NotEmpty(t, meta.TableUUID)
	assert.Equal(t, "warehouse/db/t", meta.Location)
	assert.Nil(t, meta.CurrentSnapshotID)
	assert.Equal(t, int64(0), meta.LastSequenceNumber)
	assert.Empty(t, meta.Snapshots)
	require.Len(t, meta.Schemas, 1)
	require.Len(t, meta.PartitionSpecs, 1)
	require.Len(t, meta.SortOrders, 1)
}

func TestBuild_TwiceWithoutMutationIsDeepEqual(t *testing.T) {
	b := NewTableMetadataBuilder("warehouse/db/t")
	b.SetInitialSchema(testSchema())
	require.NoError(t, b.AddSnapshot(testSnapshot(10, 1)))

	first, err := b.Build()
	require.NoError(t, err)
	second, err := b.Build()
	require.NoError(t, err)

	assert.Equal(t, first, second)

	// Builds are independent copies.
	first.Snapshots[0].Summary["operation"] = "overwrite"
	assert.Equal(t, "append", second.Snapshots[0].Summary["operation"])
}

func TestFromMetadata_RoundTripsUnchanged(t *testing.T) {
	b := NewTableMetadataBuilder("warehouse/db/t")
	b.SetInitialSchema(testSchema())
	require.NoError(t, b.AddSnapshot(testSnapshot(10, 1)))
	require.NoError(t, b.AddPartitionSpec(PartitionSpec{
		SpecID: 1,
		Fields: []PartitionField{{SourceID: 1, FieldID: 1000, Name: "id_bucket", Transform: "bucket[16]"}},
	}))
	require.NoError(t, b.SetDefaultPartitionSpec(1))
	b.SetProperty("write.format.default", "parquet")
	original, err := b.Build()
	require.NoError(t, err)

	rebuilt, err := FromMetadata(original).Build()
	require.NoError(t, err)
	assert.Equal(t, original, rebuilt)
}

func TestAddSnapshot(t *testing.T) {
	b := NewTableMetadataBuilder("warehouse/db/t")
	b.SetInitialSchema(testSchema())

	require.NoError(t, b.AddSnapshot(testSnapshot(10, 1)))

	meta, err := b.Build()
	require.NoError(t, err)
	require.NotNil(t, meta.CurrentSnapshotID)
	assert.Equal(t, int64(10), *meta.CurrentSnapshotID)
	assert.Equal(t, int64(1), meta.LastSequenceNumber)
	require.Len(t, meta.SnapshotLog, 1)
	assert.Equal(t, int64(10), meta.SnapshotLog[0].SnapshotID)
	assert.Equal(t, int64(10), meta.Refs["main"].SnapshotID)
}

func TestAddSnapshot_DuplicateID(t *testing.T) {
	b := NewTableMetadataBuilder("warehouse/db/t")
	require.NoError(t, b.AddSnapshot(testSnapshot(10, 1)))

	err := b.AddSnapshot(testSnapshot(10, 2))
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
}

func TestAddSnapshot_SequenceNumberIsMonotonicMax(t *testing.T) {
	b := NewTableMetadataBuilder("warehouse/db/t")
	require.NoError(t, b.AddSnapshot(testSnapshot(10, 5)))
	require.NoError(t, b.AddSnapshot(Snapshot{
		SnapshotID:     11,
		SequenceNumber: 3, // branch catching up, below current max
		TimestampMs:    1700000000010,
		ManifestList:   "t/metadata/snap2.json",
		Summary:        map[string]string{"operation": "append"},
	}))

	assert.Equal(t, int64(6), b.NextSequenceNumber(), "last-sequence-number never decreases")
}

func TestSetDefaultPartitionSpec_UnknownID(t *testing.T) {
	b := NewTableMetadataBuilder("warehouse/db/t")
	err := b.SetDefaultPartitionSpec(42)
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, err.Error(), "42")
}

func TestAddEncryptionKey(t *testing.T) {
	b := NewTableMetadataBuilder("warehouse/db/t")

	err := b.AddEncryptionKey(EncryptionKey{KeyID: "k1"})
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr, "v2 tables have no encryption keys")

	require.NoError(t, b.SetFormatVersion(3))
	require.NoError(t, b.AddEncryptionKey(EncryptionKey{KeyID: "k1", EncryptedKey: "AAAA"}))
	err = b.AddEncryptionKey(EncryptionKey{KeyID: "k1", EncryptedKey: "BBBB"})
	require.ErrorAs(t, err, &vErr)
}

func TestBuilder_ReadAccessorsDoNotMutate(t *testing.T) {
	b := NewTableMetadataBuilder("warehouse/db/t")
	require.NoError(t, b.AddSnapshot(testSnapshot(10, 1)))
	before, err := b.Build()
	require.NoError(t, err)

	_ = b.NextSequenceNumber()
	_ = b.CurrentSnapshotID()
	_ = b.Snapshot(10)
	snaps := b.Snapshots()
	snaps[0].Summary["operation"] = "delete"
	history := b.SnapshotHistory()
	if len(history) > 0 {
		history[0].SnapshotID = 999
	}

	after, err := b.Build()
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestValidateMetadata(t *testing.T) {
	valid := func() *TableMetadata {
		b := NewTableMetadataBuilder("warehouse/db/t")
		require.NoError(t, b.AddSnapshot(testSnapshot(10, 1)))
		m, err := b.Build()
		require.NoError(t, err)
		return m
	}

	tests := []struct {
		name   string
		mutate func(m *TableMetadata)
		field  string
	}{
		{
			name:   "bad format version",
			mutate: func(m *TableMetadata) { m.FormatVersion = 1 },
			field:  "format-version",
		},
		{
			name:   "missing uuid",
			mutate: func(m *TableMetadata) { m.TableUUID = "" },
			field:  "table-uuid",
		},
		{
			name: "current snapshot not in snapshots",
			mutate: func(m *TableMetadata) {
				id := int64(999)
				m.CurrentSnapshotID = &id
			},
			field: "current-snapshot-id",
		},
		{
			name:   "unknown current schema",
			mutate: func(m *TableMetadata) { m.CurrentSchemaID = 7 },
			field:  "current-schema-id",
		},
		{
			name:   "unknown default spec",
			mutate: func(m *TableMetadata) { m.DefaultSpecID = 7 },
			field:  "default-spec-id",
		},
		{
			name:   "unknown default sort order",
			mutate: func(m *TableMetadata) { m.DefaultSortOrderID = 7 },
			field:  "default-sort-order-id",
		},
		{
			name: "last-partition-id below spec field ids",
			mutate: func(m *TableMetadata) {
				m.PartitionSpecs[0].Fields = []PartitionField{{SourceID: 1, FieldID: 1000, Name: "p", Transform: "identity"}}
				m.LastPartitionID = 0
			},
			field: "last-partition-id",
		},
		{
			name:   "last-sequence-number below snapshot sequence",
			mutate: func(m *TableMetadata) { m.LastSequenceNumber = 0 },
			field:  "last-sequence-number",
		},
		{
			name: "duplicate snapshot ids",
			mutate: func(m *TableMetadata) {
				m.Snapshots = append(m.Snapshots, m.Snapshots[0])
			},
			field: "snapshots",
		},
		{
			name: "snapshot log references unknown snapshot",
			mutate: func(m *TableMetadata) {
				m.SnapshotLog = append(m.SnapshotLog, SnapshotLogEntry{TimestampMs: nowMs(), SnapshotID: 999})
			},
			field: "snapshot-log",
		},
		{
			name: "ref points at unknown snapshot",
			mutate: func(m *TableMetadata) {
				m.Refs["dev"] = SnapshotRef{SnapshotID: 999, Type: "branch"}
			},
			field: "refs",
		},
		{
			name: "v3 fields on v2 document",
			mutate: func(m *TableMetadata) {
				v := int64(100)
				m.NextRowID = &v
			},
			field: "next-row-id",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := valid()
			tc.mutate(m)
			err := ValidateMetadata(m)
			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tc.field, vErr.Field)
		})
	}
}
