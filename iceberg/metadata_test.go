package iceberg

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadata_SerializeRoundTripIsByteStable(t *testing.T) {
	tests := []struct {
		name  string
		build func(t *testing.T) *TableMetadata
	}{
		{
			name: "v2 empty table",
			build: func(t *testing.T) *TableMetadata {
				m, err := NewTableMetadataBuilder("warehouse/db/t").Build()
				require.NoError(t, err)
				return m
			},
		},
		{
			name: "v2 with snapshot and refs",
			build: func(t *testing.T) *TableMetadata {
				b := NewTableMetadataBuilder("warehouse/db/t")
				b.SetInitialSchema(testSchema())
				require.NoError(t, b.AddSnapshot(testSnapshot(10, 1)))
				require.NoError(t, b.SetRef("audit", SnapshotRef{SnapshotID: 10, Type: "tag"}))
				b.SetProperty("commit.retry.num-retries", "5")
				m, err := b.Build()
				require.NoError(t, err)
				return m
			},
		},
		{
			name: "v3 with row lineage and encryption keys",
			build: func(t *testing.T) *TableMetadata {
				b := NewTableMetadataBuilder("warehouse/db/t")
				require.NoError(t, b.SetFormatVersion(3))
				require.NoError(t, b.AddEncryptionKey(EncryptionKey{KeyID: "k1", EncryptedKey: "AAAA"}))
				first := int64(0)
				added := int64(100)
				keyID := "k1"
				s := testSnapshot(10, 1)
				s.FirstRowID = &first
				s.AddedRows = &added
				s.KeyID = &keyID
				require.NoError(t, b.AddSnapshot(s))
				m, err := b.Build()
				require.NoError(t, err)
				return m
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := tc.build(t)

			data, err := MarshalMetadata(m)
			require.NoError(t, err)

			parsed, err := UnmarshalMetadata(data)
			require.NoError(t, err)
			assert.Equal(t, m, parsed)

			again, err := MarshalMetadata(parsed)
			require.NoError(t, err)
			assert.Equal(t, data, again, "serialize(deserialize(x)) must be byte-identical")
		})
	}
}

func TestMetadata_NullVersusOmitted(t *testing.T) {
	m, err := NewTableMetadataBuilder("warehouse/db/t").Build()
	require.NoError(t, err)

	data, err := MarshalMetadata(m)
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))

	// No current snapshot serializes as an explicit null, not omission.
	val, ok := raw["current-snapshot-id"]
	require.True(t, ok)
	assert.Equal(t, "null", string(val))

	// v3-only fields are entirely omitted for format version 2.
	_, ok = raw["next-row-id"]
	assert.False(t, ok)
	_, ok = raw["encryption-keys"]
	assert.False(t, ok)

	// Kebab-case keys exactly as persisted documents require.
	for _, key := range []string{
		"format-version", "table-uuid", "last-sequence-number",
		"last-updated-ms", "current-schema-id", "partition-specs",
		"last-partition-id", "default-sort-order-id", "snapshot-log",
		"metadata-log",
	} {
		_, ok := raw[key]
		assert.True(t, ok, "missing key %s", key)
	}
}

func TestMetadata_V3FieldsSerialized(t *testing.T) {
	b := NewTableMetadataBuilder("warehouse/db/t")
	require.NoError(t, b.SetFormatVersion(3))
	first := int64(0)
	added := int64(42)
	s := testSnapshot(10, 1)
	s.FirstRowID = &first
	s.AddedRows = &added
	require.NoError(t, b.AddSnapshot(s))
	m, err := b.Build()
	require.NoError(t, err)

	data, err := MarshalMetadata(m)
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	val, ok := raw["next-row-id"]
	require.True(t, ok, "row lineage counter tracks first-row-id + added-rows")
	assert.Equal(t, "42", string(val))
}

func TestMetadata_CloneIsDeep(t *testing.T) {
	b := NewTableMetadataBuilder("warehouse/db/t")
	b.SetInitialSchema(testSchema())
	require.NoError(t, b.AddSnapshot(testSnapshot(10, 1)))
	m, err := b.Build()
	require.NoError(t, err)

	c := m.Clone()
	require.Equal(t, m, c)

	c.Schemas[0].Fields[0].Name = "renamed"
	c.Snapshots[0].Summary["operation"] = "delete"
	c.Refs["main"] = SnapshotRef{SnapshotID: 99, Type: "branch"}
	*c.CurrentSnapshotID = 99

	assert.Equal(t, "id", m.Schemas[0].Fields[0].Name)
	assert.Equal(t, "append", m.Snapshots[0].Summary["operation"])
	assert.Equal(t, int64(10), m.Refs["main"].SnapshotID)
	assert.Equal(t, int64(10), *m.CurrentSnapshotID)
}

func TestMetadataPaths(t *testing.T) {
	assert.Equal(t, "warehouse/db/t/metadata/v3.metadata.json", MetadataPath("warehouse/db/t", 3))
	assert.Equal(t, "warehouse/db/t/metadata/version-hint.text", VersionHintPath("warehouse/db/t"))
}
