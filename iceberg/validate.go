package iceberg

import "fmt"

// ValidateMetadata runs the full structural validation over a metadata
// document. The same checks gate TableMetadataBuilder.Build and the
// committer's candidate stage, so an invalid document is never written.
func ValidateMetadata(m *TableMetadata) error {
	if m == nil {
		return &ValidationError{Reason: "metadata is nil"}
	}
	if m.FormatVersion != 2 && m.FormatVersion != 3 {
		return &ValidationError{Field: "format-version", Reason: fmt.Sprintf("unsupported version %d", m.FormatVersion)}
	}
	if m.TableUUID == "" {
		return &ValidationError{Field: "table-uuid", Reason: "must not be empty"}
	}
	if m.Location == "" {
		return &ValidationError{Field: "location", Reason: "must not be empty"}
	}

	if err := validateSchemas(m); err != nil {
		return err
	}
	if err := validateSpecs(m); err != nil {
		return err
	}
	if err := validateSortOrders(m); err != nil {
		return err
	}
	if err := validateSnapshots(m); err != nil {
		return err
	}

	if m.FormatVersion < 3 {
		if m.NextRowID != nil {
			return &ValidationError{Field: "next-row-id", Reason: "requires format-version 3"}
		}
		if len(m.EncryptionKeys) > 0 {
			return &ValidationError{Field: "encryption-keys", Reason: "requires format-version 3"}
		}
	}
	seenKeys := make(map[string]bool, len(m.EncryptionKeys))
	for _, k := range m.EncryptionKeys {
		if seenKeys[k.KeyID] {
			return &ValidationError{Field: "encryption-keys", Reason: fmt.Sprintf("duplicate key-id %s", k.KeyID)}
		}
		seenKeys[k.KeyID] = true
	}

	return nil
}

func validateSchemas(m *TableMetadata) error {
	found := false
	for _, s := range m.Schemas {
		if s.SchemaID == m.CurrentSchemaID {
			found = true
		}
		for _, f := range s.Fields {
			if f.ID > m.LastColumnID {
				return &ValidationError{Field: "last-column-id", Reason: fmt.Sprintf("field id %d exceeds last-column-id %d", f.ID, m.LastColumnID)}
			}
		}
	}
	if !found {
		return &ValidationError{Field: "current-schema-id", Reason: fmt.Sprintf("schema %d not found", m.CurrentSchemaID)}
	}
	return nil
}

func validateSpecs(m *TableMetadata) error {
	found := false
	for _, spec := range m.PartitionSpecs {
		if spec.SpecID == m.DefaultSpecID {
			found = true
		}
		for _, f := range spec.Fields {
			if f.FieldID > m.LastPartitionID {
				return &ValidationError{Field: "last-partition-id", Reason: fmt.Sprintf("partition field id %d exceeds last-partition-id %d", f.FieldID, m.LastPartitionID)}
			}
		}
	}
	if !found {
		return &ValidationError{Field: "default-spec-id", Reason: fmt.Sprintf("partition spec %d not found", m.DefaultSpecID)}
	}
	return nil
}

func validateSortOrders(m *TableMetadata) error {
	for _, o := range m.SortOrders {
		if o.OrderID == m.DefaultSortOrderID {
			return nil
		}
	}
	return &ValidationError{Field: "default-sort-order-id", Reason: fmt.Sprintf("sort order %d not found", m.DefaultSortOrderID)}
}

func validateSnapshots(m *TableMetadata) error {
	seen := make(map[int64]bool, len(m.Snapshots))
	for _, s := range m.Snapshots {
		if seen[s.SnapshotID] {
			return &ValidationError{Field: "snapshots", Reason: fmt.Sprintf("duplicate snapshot-id %d", s.SnapshotID)}
		}
		seen[s.SnapshotID] = true

		if s.SequenceNumber > m.LastSequenceNumber {
			return &ValidationError{Field: "last-sequence-number", Reason: fmt.Sprintf("snapshot %d has sequence-number %d beyond last-sequence-number %d", s.SnapshotID, s.SequenceNumber, m.LastSequenceNumber)}
		}
		if s.ParentSnapshotID != nil {
			if parent := m.Snapshot(*s.ParentSnapshotID); parent != nil && s.SequenceNumber <= parent.SequenceNumber {
				return &ValidationError{Field: "snapshots", Reason: fmt.Sprintf("snapshot %d sequence-number %d not greater than parent's %d", s.SnapshotID, s.SequenceNumber, parent.SequenceNumber)}
			}
		}
	}

	if m.CurrentSnapshotID != nil && !seen[*m.CurrentSnapshotID] {
		return &ValidationError{Field: "current-snapshot-id", Reason: fmt.Sprintf("snapshot %d not found", *m.CurrentSnapshotID)}
	}
	for _, entry := range m.SnapshotLog {
		if !seen[entry.SnapshotID] {
			return &ValidationError{Field: "snapshot-log", Reason: fmt.Sprintf("snapshot %d not found", entry.SnapshotID)}
		}
	}
	for i := 1; i < len(m.SnapshotLog); i++ {
		if m.SnapshotLog[i].TimestampMs < m.SnapshotLog[i-1].TimestampMs {
			return &ValidationError{Field: "snapshot-log", Reason: "entries out of chronological order"}
		}
	}
	for name, ref := range m.Refs {
		if !seen[ref.SnapshotID] {
			return &ValidationError{Field: "refs", Reason: fmt.Sprintf("ref %q points at unknown snapshot %d", name, ref.SnapshotID)}
		}
	}
	return nil
}
