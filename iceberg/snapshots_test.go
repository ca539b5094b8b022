package iceberg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func managerFixture(t *testing.T) *SnapshotManager {
	t.Helper()

	b := NewTableMetadataBuilder("warehouse/db/t")
	b.SetInitialSchema(testSchema())

	for i, snap := range []struct {
		id  int64
		seq int64
		ts  int64
	}{
		{id: 100, seq: 1, ts: 1700000001000},
		{id: 200, seq: 2, ts: 1700000002000},
		{id: 300, seq: 3, ts: 1700000003000},
	} {
		s := testSnapshot(snap.id, snap.seq)
		s.TimestampMs = snap.ts
		require.NoError(t, b.AddSnapshot(s))
		// Pin the log timestamp to the snapshot's for deterministic
		// time-travel queries.
		b.meta.SnapshotLog[i].TimestampMs = snap.ts
	}
	require.NoError(t, b.SetRef("audit", SnapshotRef{SnapshotID: 100, Type: "tag"}))

	m, err := b.Build()
	require.NoError(t, err)
	return NewSnapshotManager(m)
}

func TestSnapshotManager_CurrentSnapshot(t *testing.T) {
	m := managerFixture(t)
	current := m.CurrentSnapshot()
	require.NotNil(t, current)
	assert.Equal(t, int64(300), current.SnapshotID)
}

func TestSnapshotManager_CurrentSnapshot_NoneSet(t *testing.T) {
	meta, err := NewTableMetadataBuilder("warehouse/db/t").Build()
	require.NoError(t, err)
	assert.Nil(t, NewSnapshotManager(meta).CurrentSnapshot())
}

func TestSnapshotManager_FailSoftLookups(t *testing.T) {
	m := managerFixture(t)

	assert.Nil(t, m.SnapshotByID(999), "unknown id returns nil, not an error")
	assert.Nil(t, m.SnapshotByRef("nope"))

	byRef := m.SnapshotByRef("audit")
	require.NotNil(t, byRef)
	assert.Equal(t, int64(100), byRef.SnapshotID)

	byID := m.SnapshotByID(200)
	require.NotNil(t, byID)
	assert.Equal(t, int64(2), byID.SequenceNumber)
}

func TestSnapshotManager_SnapshotAtTimestamp(t *testing.T) {
	m := managerFixture(t)

	tests := []struct {
		name string
		ts   int64
		want int64 // 0 means nil
	}{
		{name: "before first entry", ts: 1700000000999, want: 0},
		{name: "exactly first entry", ts: 1700000001000, want: 100},
		{name: "between first and second", ts: 1700000001500, want: 100},
		{name: "exactly second", ts: 1700000002000, want: 200},
		{name: "after last", ts: 1800000000000, want: 300},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := m.SnapshotAtTimestamp(tc.ts)
			if tc.want == 0 {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tc.want, got.SnapshotID)
		})
	}
}

func TestSnapshotManager_SnapshotAtTimestampIsMonotonic(t *testing.T) {
	m := managerFixture(t)

	var prevSeq int64
	for ts := int64(1700000000500); ts <= 1700000004000; ts += 250 {
		s := m.SnapshotAtTimestamp(ts)
		if s == nil {
			continue
		}
		assert.GreaterOrEqual(t, s.SequenceNumber, prevSeq,
			"later timestamps never resolve to earlier sequence numbers")
		prevSeq = s.SequenceNumber
	}
}

func TestSnapshotManager_ResultsAreCopies(t *testing.T) {
	m := managerFixture(t)

	s := m.CurrentSnapshot()
	require.NotNil(t, s)
	s.Summary["operation"] = "tampered"

	again := m.CurrentSnapshot()
	assert.Equal(t, "append", again.Summary["operation"])
}
