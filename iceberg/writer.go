package iceberg

import (
	"context"
	"fmt"
	"path"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"arctic-commit/storage"
)

// MetadataWriter is the façade callers use to create tables and publish
// snapshots. It stages manifests and manifest lists through the codec,
// then hands the candidate to the AtomicCommitter.
type MetadataWriter struct {
	store     storage.Storage
	committer *AtomicCommitter
	codec     ManifestCodec
	logger    *zap.Logger
}

func NewMetadataWriter(store storage.Storage, config CommitConfig, logger *zap.Logger) *MetadataWriter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MetadataWriter{
		store:     store,
		committer: NewAtomicCommitter(store, config, logger),
		codec:     JSONCodec{},
		logger:    logger,
	}
}

// WithCodec swaps the manifest codec, e.g. for an Avro encoder.
func (w *MetadataWriter) WithCodec(codec ManifestCodec) *MetadataWriter {
	w.codec = codec
	return w
}

// TableOptions shapes a new table's initial metadata.
type TableOptions struct {
	FormatVersion int // 0 defaults to 2
	Schema        *Schema
	PartitionSpec *PartitionSpec
	SortOrder     *SortOrder
	Properties    map[string]string
}

// CreateTable publishes metadata version 1 for a new table with no
// snapshots. It fails with ValidationError when the table already exists.
func (w *MetadataWriter) CreateTable(ctx context.Context, location string, opts TableOptions) (*CommitResult, error) {
	return w.committer.Commit(ctx, location, func(base *TableMetadata) (*TableMetadata, error) {
		if base != nil {
			return nil, &ValidationError{Field: "location", Reason: fmt.Sprintf("table already exists at %s", location)}
		}

		b := NewTableMetadataBuilder(location)
		if opts.FormatVersion != 0 {
			if err := b.SetFormatVersion(opts.FormatVersion); err != nil {
				return nil, err
			}
		}
		if opts.Schema != nil {
			b.SetInitialSchema(*opts.Schema)
		}
		if opts.PartitionSpec != nil {
			if err := b.AddPartitionSpec(*opts.PartitionSpec); err != nil {
				return nil, err
			}
			if err := b.SetDefaultPartitionSpec(opts.PartitionSpec.SpecID); err != nil {
				return nil, err
			}
		}
		if opts.SortOrder != nil {
			if err := b.AddSortOrder(*opts.SortOrder); err != nil {
				return nil, err
			}
			if err := b.SetDefaultSortOrder(opts.SortOrder.OrderID); err != nil {
				return nil, err
			}
		}
		for k, v := range opts.Properties {
			b.SetProperty(k, v)
		}
		return b.Build()
	})
}

// SnapshotWrite describes one snapshot's worth of file changes.
type SnapshotWrite struct {
	DataFiles   []DataFile
	DeleteFiles []DataFile
	Operation   string // defaults to append
}

// WriteSnapshot stages a manifest per content type and the manifest list,
// then commits a metadata version whose new snapshot references them.
// Artifacts are staged fresh per attempt under unique names, so losing a
// commit race never aliases a published file; staged files from failed
// commits are deleted best-effort.
func (w *MetadataWriter) WriteSnapshot(ctx context.Context, location string, write SnapshotWrite) (*CommitResult, error) {
	if len(write.DataFiles) == 0 && len(write.DeleteFiles) == 0 {
		return nil, &ValidationError{Field: "data-files", Reason: "snapshot writes at least one file"}
	}

	return w.committer.CommitStaged(ctx, location, func(ctx context.Context, base *TableMetadata) (*TableMetadata, []string, error) {
		if base == nil {
			return nil, nil, &ValidationError{Field: "location", Reason: fmt.Sprintf("table does not exist at %s", location)}
		}

		b := FromMetadata(base)
		seq := b.NextSequenceNumber()
		snapshotID := NewSnapshotID()
		commitUUID := uuid.New().String()

		var staged []string
		list := NewManifestListGenerator(snapshotID, seq)
		var summary ManifestSummary

		if len(write.DataFiles) > 0 {
			gen := NewManifestGenerator(snapshotID, seq)
			for _, df := range write.DataFiles {
				gen.AddDataFile(df)
			}
			key, length, s, err := w.stageManifest(ctx, location, commitUUID, 0, gen)
			if err != nil {
				return nil, staged, err
			}
			staged = append(staged, key)
			summary = s
			list.AddManifestWithStats(key, length, base.DefaultSpecID, ManifestStats{
				AddedFiles: s.AddedFiles,
				AddedRows:  s.AddedRows,
			}, false, nil, nil)
		}

		var deleteSummary ManifestSummary
		if len(write.DeleteFiles) > 0 {
			gen := NewDeleteManifestGenerator(snapshotID, seq)
			for _, df := range write.DeleteFiles {
				if err := gen.AddDeleteFile(df); err != nil {
					return nil, staged, err
				}
			}
			key, length, s, err := w.stageManifest(ctx, location, commitUUID, 1, &gen.ManifestGenerator)
			if err != nil {
				return nil, staged, err
			}
			staged = append(staged, key)
			deleteSummary = s
			list.AddManifestWithStats(key, length, base.DefaultSpecID, ManifestStats{
				AddedFiles: s.AddedFiles,
				AddedRows:  s.AddedRows,
			}, true, nil, nil)
		}

		listKey, err := w.stageManifestList(ctx, location, snapshotID, commitUUID, list)
		if err != nil {
			return nil, staged, err
		}
		staged = append(staged, listKey)

		var addedBytes, deletedBytes int64
		for _, df := range write.DataFiles {
			addedBytes += df.FileSizeBytes
		}
		for _, df := range write.DeleteFiles {
			deletedBytes += df.FileSizeBytes
		}

		totals := computeTotals(base, summary, deleteSummary, addedBytes)
		sb := NewSnapshotBuilder(seq, listKey).
			WithSnapshotID(snapshotID).
			WithSchemaID(base.CurrentSchemaID).
			WithOperation(write.Operation).
			SetSummary(
				int64(summary.AddedFiles), int64(deleteSummary.AddedFiles),
				summary.AddedRows, deleteSummary.AddedRows,
				addedBytes, deletedBytes,
				totals.files, totals.bytes, totals.rows,
			)
		if base.CurrentSnapshotID != nil {
			sb = sb.WithParentSnapshotID(*base.CurrentSnapshotID)
		}
		snapshot, err := sb.Build()
		if err != nil {
			return nil, staged, err
		}

		if err := b.AddSnapshot(snapshot); err != nil {
			return nil, staged, err
		}
		candidate, err := b.Build()
		if err != nil {
			return nil, staged, err
		}
		return candidate, staged, nil
	})
}

// Validate runs structural validation without touching storage.
func (w *MetadataWriter) Validate(m *TableMetadata) error {
	return ValidateMetadata(m)
}

// LoadMetadata reads the table's current metadata document and version.
func (w *MetadataWriter) LoadMetadata(ctx context.Context, location string) (*TableMetadata, int, error) {
	version, meta, err := w.committer.readCurrent(ctx, location)
	if err != nil {
		return nil, 0, err
	}
	if meta == nil {
		return nil, 0, &ValidationError{Field: "location", Reason: fmt.Sprintf("table does not exist at %s", location)}
	}
	return meta, version, nil
}

func (w *MetadataWriter) stageManifest(ctx context.Context, location, commitUUID string, ordinal int, gen *ManifestGenerator) (string, int64, ManifestSummary, error) {
	entries, summary := gen.Generate()
	data, err := w.codec.EncodeManifest(entries)
	if err != nil {
		return "", 0, summary, err
	}

	buf := storage.NewBuffer()
	if _, err := buf.Write(data); err != nil {
		return "", 0, summary, fmt.Errorf("staging manifest: %w", err)
	}

	key := path.Join(location, "metadata", fmt.Sprintf("%s-m%d.%s", commitUUID, ordinal, w.codec.Extension()))
	if err := w.store.Put(ctx, key, buf.Bytes()); err != nil {
		return "", 0, summary, &StorageError{Op: "put", Key: key, Err: err}
	}
	return key, buf.Size(), summary, nil
}

func (w *MetadataWriter) stageManifestList(ctx context.Context, location string, snapshotID int64, commitUUID string, list *ManifestListGenerator) (string, error) {
	data, err := w.codec.EncodeManifestList(list.Generate())
	if err != nil {
		return "", err
	}

	key := path.Join(location, "metadata", fmt.Sprintf("snap-%d-%s.%s", snapshotID, commitUUID, w.codec.Extension()))
	if err := w.store.Put(ctx, key, data); err != nil {
		return "", &StorageError{Op: "put", Key: key, Err: err}
	}
	return key, nil
}

// ReadManifests loads and decodes the manifest list referenced by a
// snapshot.
func (w *MetadataWriter) ReadManifests(ctx context.Context, s *Snapshot) ([]ManifestFile, error) {
	data, err := w.store.Get(ctx, s.ManifestList)
	if err != nil {
		return nil, &StorageError{Op: "get", Key: s.ManifestList, Err: err}
	}
	return w.codec.DecodeManifestList(data)
}

type totals struct {
	files int64
	bytes int64
	rows  int64
}

// computeTotals folds the new snapshot's additions into the previous
// current snapshot's running totals.
func computeTotals(base *TableMetadata, data, deletes ManifestSummary, addedBytes int64) totals {
	var t totals
	if base.CurrentSnapshotID != nil {
		if current := base.Snapshot(*base.CurrentSnapshotID); current != nil {
			t.files = parseSummaryInt(current.Summary, "total-data-files")
			t.bytes = parseSummaryInt(current.Summary, "total-files-size")
			t.rows = parseSummaryInt(current.Summary, "total-records")
		}
	}
	t.files += int64(data.AddedFiles + deletes.AddedFiles)
	t.bytes += addedBytes
	t.rows += data.AddedRows - deletes.AddedRows
	if t.rows < 0 {
		t.rows = 0
	}
	return t
}

func parseSummaryInt(summary map[string]string, key string) int64 {
	var v int64
	if s, ok := summary[key]; ok {
		fmt.Sscanf(s, "%d", &v)
	}
	return v
}

