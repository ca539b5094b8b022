package iceberg

import (
	"fmt"
)

// Manifest entry status values.
const (
	EntryStatusExisting = 0
	EntryStatusAdded    = 1
	EntryStatusDeleted  = 2
)

// Manifest content values, stored explicitly and never inferred from the
// path.
const (
	ManifestContentData    = 0
	ManifestContentDeletes = 1
)

// Data file content values.
const (
	DataFileContentData            = 0
	DataFileContentPositionDeletes = 1
	DataFileContentEqualityDeletes = 2
)

// DataFile describes one data or delete file with its statistics, keyed
// by schema field id.
type DataFile struct {
	Content       int               `json:"content"`
	FilePath      string            `json:"file-path"`
	FileFormat    string            `json:"file-format"`
	Partition     map[string]string `json:"partition"`
	RecordCount   int64             `json:"record-count"`
	FileSizeBytes int64             `json:"file-size-in-bytes"`

	ColumnSizes     map[int]int64  `json:"column-sizes,omitempty"`
	ValueCounts     map[int]int64  `json:"value-counts,omitempty"`
	NullValueCounts map[int]int64  `json:"null-value-counts,omitempty"`
	NanValueCounts  map[int]int64  `json:"nan-value-counts,omitempty"`
	LowerBounds     map[int][]byte `json:"lower-bounds,omitempty"`
	UpperBounds     map[int][]byte `json:"upper-bounds,omitempty"`

	SortOrderID *int `json:"sort-order-id,omitempty"`

	// Deletion vector linkage, delete content only.
	ContentOffset      *int64  `json:"content-offset,omitempty"`
	ContentSizeBytes   *int64  `json:"content-size-in-bytes,omitempty"`
	ReferencedDataFile *string `json:"referenced-data-file,omitempty"`

	// Row lineage, format version 3 only.
	FirstRowID *int64 `json:"first-row-id,omitempty"`
}

// ManifestEntry is one record inside a manifest. Manifests are append-only;
// corrections are made by writing new manifests, never by editing old ones.
type ManifestEntry struct {
	Status             int      `json:"status"`
	SnapshotID         int64    `json:"snapshot-id"`
	SequenceNumber     int64    `json:"sequence-number"`
	FileSequenceNumber int64    `json:"file-sequence-number"`
	DataFile           DataFile `json:"data-file"`
}

/// ManifestFile is one entry in a manifest list: a pointer to a manifest
// plus its summary statistics. Immutable once written.
type ManifestFile struct {
	ManifestPath       string         `json:"manifest-path"`
	ManifestLength     int64          `json:"manifest-length"`
	PartitionSpecID    int            `json:"partition-spec-id"`
	Content            int            `json:"content"`
	SequenceNumber     int64          `json:"sequence-number"`
	MinSequenceNumber  int64          `json:"min-sequence-number"`
	AddedSnapshotID    int64          `json:"added-snapshot-id"`
	AddedFilesCount    int            `json:"added-files-count"`
	ExistingFilesCount int            `json:"existing-files-count"`
	DeletedFilesCount  int            `json:"deleted-files-count"`
	AddedRowsCount     int64          `json:"added-rows-count"`
	ExistingRowsCount  int64          `json:"existing-rows-count"`
	DeletedRowsCount   int64          `json:"deleted-rows-count"`
	Partitions         []FieldSummary `json:"partitions,omitempty"`
	FirstRowID         *int64         `json:"first-row-id,omitempty"` // v3
}

// FieldSummary summarizes one partition field across a manifest's entries.
type FieldSummary struct {
	ContainsNull bool   `json:"contains-null"`
	ContainsNan  *bool  `json:"contains-nan,omitempty"`
	LowerBound   []byte `json:"lower-bound,omitempty"`
	UpperBound   []byte `json:"upper-bound,omitempty"`
}

// ManifestSummary is the per-status aggregation over a generator's
// entries.
type ManifestSummary struct {
	AddedFiles    int
	ExistingFiles int
	DeletedFiles  int
	AddedRows     int64
	ExistingRows  int64
	DeletedRows   int64
}

// ManifestGenerator builds one manifest's entry list for a snapshot,
// stamping every entry with the generator's snapshot id and sequence
// number.
type ManifestGenerator struct {
	snapshotID     int64
	sequenceNumber int64
	content        int
	entries        []ManifestEntry
}

func NewManifestGenerator(snapshotID, sequenceNumber int64) *ManifestGenerator {
	return &ManifestGenerator{
		snapshotID:     snapshotID,
		sequenceNumber: sequenceNumber,
		content:        ManifestContentData,
	}
}

// AddDataFile appends an entry with status ADDED.
func (g *ManifestGenerator) AddDataFile(df DataFile) {
	g.AddDataFileWithStatus(df, EntryStatusAdded)
}

func (g *ManifestGenerator) AddDataFileWithStatus(df DataFile, status int) {
	g.entries = append(g.entries, ManifestEntry{
		Status:             status,
		SnapshotID:         g.snapshotID,
		SequenceNumber:     g.sequenceNumber,
		FileSequenceNumber: g.sequenceNumber,
		DataFile:           df,
	})
}

// Generate returns the entry list and a summary recomputed fresh from the
// current entries; it is never cached across calls.
func (g *ManifestGenerator) Generate() ([]ManifestEntry, ManifestSummary) {
	var summary ManifestSummary
	for _, e := range g.entries {
		switch e.Status {
		case EntryStatusAdded:
			summary.AddedFiles++
			summary.AddedRows += e.DataFile.RecordCount
		case EntryStatusExisting:
			summary.ExistingFiles++
			summary.ExistingRows += e.DataFile.RecordCount
		case EntryStatusDeleted:
			summary.DeletedFiles++
			summary.DeletedRows += e.DataFile.RecordCount
		}
	}
	return append([]ManifestEntry(nil), g.entries...), summary
}

// Content reports the manifest content type the generator produces.
func (g *ManifestGenerator) Content() int {
	return g.content
}

// DeleteManifestGenerator specializes ManifestGenerator for position and
// equality delete files. Every file must carry delete content before
// aggregation.
type DeleteManifestGenerator struct {
	ManifestGenerator
}

func NewDeleteManifestGenerator(snapshotID, sequenceNumber int64) *DeleteManifestGenerator {
	g := &DeleteManifestGenerator{
		ManifestGenerator: ManifestGenerator{
			snapshotID:     snapshotID,
			sequenceNumber: sequenceNumber,
			content:        ManifestContentDeletes,
		},
	}
	return g
}

// AddDeleteFile appends a delete file entry, rejecting files whose content
// is not stamped as position or equality deletes.
func (g *DeleteManifestGenerator) AddDeleteFile(df DataFile) error {
	if df.Content != DataFileContentPositionDeletes && df.Content != DataFileContentEqualityDeletes {
		return &ValidationError{Field: "content", Reason: fmt.Sprintf("delete manifest requires delete content, got %d for %s", df.Content, df.FilePath)}
	}
	g.AddDataFileWithStatus(df, EntryStatusAdded)
	return nil
}

// ManifestListGenerator aggregates manifest pointers and per-manifest
// summaries into the list for one snapshot. Insertion order is preserved:
// readers resolve delete applicability by scanning the list in this order
// against sequence numbers.
type ManifestListGenerator struct {
	snapshotID     int64
	sequenceNumber int64
	manifests      []ManifestFile
}

func NewManifestListGenerator(snapshotID, sequenceNumber int64) *ManifestListGenerator {
	return &ManifestListGenerator{
		snapshotID:     snapshotID,
		sequenceNumber: sequenceNumber,
	}
}

// ManifestStats carries the counts recorded for one manifest.
type ManifestStats struct {
	AddedFiles    int
	ExistingFiles int
	DeletedFiles  int
	AddedRows     int64
	ExistingRows  int64
	DeletedRows   int64

	// MinSequenceNumber, when non-zero, records the oldest sequence number
	// contained in the manifest; the generator's sequence number is used
	// otherwise.
	MinSequenceNumber int64
}

// AddManifestWithStats appends a manifest pointer. Content defaults to
// data unless isDeleteManifest is set; min-sequence-number defaults to the
// generator's sequence number absent file-level provenance.
func (g *ManifestListGenerator) AddManifestWithStats(path string, length int64, partitionSpecID int, stats ManifestStats, isDeleteManifest bool, partitionSummaries []FieldSummary, firstRowID *int64) {
	content := ManifestContentData
	if isDeleteManifest {
		content = ManifestContentDeletes
	}
	minSeq := stats.MinSequenceNumber
	if minSeq == 0 {
		minSeq = g.sequenceNumber
	}

	g.manifests = append(g.manifests, ManifestFile{
		ManifestPath:       path,
		ManifestLength:     length,
		PartitionSpecID:    partitionSpecID,
		Content:            content,
		SequenceNumber:     g.sequenceNumber,
		MinSequenceNumber:  minSeq,
		AddedSnapshotID:    g.snapshotID,
		AddedFilesCount:    stats.AddedFiles,
		ExistingFilesCount: stats.ExistingFiles,
		DeletedFilesCount:  stats.DeletedFiles,
		AddedRowsCount:     stats.AddedRows,
		ExistingRowsCount:  stats.ExistingRows,
		DeletedRowsCount:   stats.DeletedRows,
		Partitions:         partitionSummaries,
		FirstRowID:         firstRowID,
	})
}

// Generate returns the manifest list in insertion order.
func (g *ManifestListGenerator) Generate() []ManifestFile {
	return append([]ManifestFile(nil), g.manifests...)
}

// Manifests is an alias for Generate.
func (g *ManifestListGenerator) Manifests() []ManifestFile {
	return g.Generate()
}
