package iceberg

// SnapshotManager answers read-side queries over one immutable metadata
// document. Lookups are fail-soft: a nil result means "not found", which
// callers must be able to distinguish from an error.
type SnapshotManager struct {
	meta *TableMetadata
}

func NewSnapshotManager(meta *TableMetadata) *SnapshotManager {
	return &SnapshotManager{meta: meta}
}

// CurrentSnapshot returns the snapshot named by current-snapshot-id, or
// nil when the table has none or the id is stale.
func (m *SnapshotManager) CurrentSnapshot() *Snapshot {
	if m.meta.CurrentSnapshotID == nil {
		return nil
	}
	return m.SnapshotByID(*m.meta.CurrentSnapshotID)
}

// SnapshotByID returns a copy of the snapshot with the given id, or nil.
func (m *SnapshotManager) SnapshotByID(id int64) *Snapshot {
	s := m.meta.Snapshot(id)
	if s == nil {
		return nil
	}
	out := cloneSnapshot(*s)
	return &out
}

// SnapshotByRef resolves a named branch or tag, or nil when the ref does
// not exist.
func (m *SnapshotManager) SnapshotByRef(name string) *Snapshot {
	ref, ok := m.meta.Refs[name]
	if !ok {
		return nil
	}
	return m.SnapshotByID(ref.SnapshotID)
}

// SnapshotAtTimestamp returns the latest snapshot that was current at ts,
// resolved through the snapshot log rather than creation order: the log
// records when each snapshot became current, which can differ under
// branch and tag operations. Returns nil when ts predates the earliest
// log entry.
func (m *SnapshotManager) SnapshotAtTimestamp(ts int64) *Snapshot {
	var found *SnapshotLogEntry
	for i := range m.meta.SnapshotLog {
		entry := &m.meta.SnapshotLog[i]
		if entry.TimestampMs <= ts {
			found = entry
		}
	}
	if found == nil {
		return nil
	}
	return m.SnapshotByID(found.SnapshotID)
}
