package iceberg

import (
	"bytes"
	"testing"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type parquetRow struct {
	ID   int64  `parquet:"id"`
	Name string `parquet:"name"`
}

func encodeParquet(t *testing.T, rows []parquetRow) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := parquet.NewGenericWriter[parquetRow](&buf)
	_, err := w.Write(rows)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestBuildDataFile(t *testing.T) {
	raw := encodeParquet(t, []parquetRow{
		{ID: 3, Name: "charlie"},
		{ID: 1, Name: "alpha"},
		{ID: 2, Name: "bravo"},
	})

	df, err := BuildDataFile("data/00000.parquet", raw, testSchema())
	require.NoError(t, err)

	assert.Equal(t, DataFileContentData, df.Content)
	assert.Equal(t, "data/00000.parquet", df.FilePath)
	assert.Equal(t, "PARQUET", df.FileFormat)
	assert.Equal(t, int64(3), df.RecordCount)
	assert.Equal(t, int64(len(raw)), df.FileSizeBytes)

	// Statistics are keyed by the table schema's field ids.
	assert.Equal(t, int64(3), df.ValueCounts[1])
	assert.Equal(t, int64(3), df.ValueCounts[2])
	assert.Positive(t, df.ColumnSizes[1])
	assert.Positive(t, df.ColumnSizes[2])
	assert.Equal(t, int64(0), df.NullValueCounts[1])
}

func TestBuildDataFile_StringBounds(t *testing.T) {
	raw := encodeParquet(t, []parquetRow{
		{ID: 1, Name: "mike"},
		{ID: 2, Name: "alpha"},
		{ID: 3, Name: "zulu"},
	})

	df, err := BuildDataFile("data/bounds.parquet", raw, testSchema())
	require.NoError(t, err)

	assert.Equal(t, []byte("alpha"), df.LowerBounds[2])
	assert.Equal(t, []byte("zulu"), df.UpperBounds[2])
}

func TestBuildDataFile_UnknownColumnsKeyedByPosition(t *testing.T) {
	raw := encodeParquet(t, []parquetRow{{ID: 7, Name: "x"}})

	df, err := BuildDataFile("data/pos.parquet", raw, Schema{SchemaID: 0})
	require.NoError(t, err)

	assert.Equal(t, int64(1), df.ValueCounts[1])
	assert.Equal(t, int64(1), df.ValueCounts[2])
}

func TestBuildDataFile_RejectsGarbage(t *testing.T) {
	_, err := BuildDataFile("data/bad.parquet", []byte("not a parquet file"), testSchema())
	assert.Error(t, err)
}

func TestParquetSchema(t *testing.T) {
	s := Schema{
		SchemaID: 0,
		Fields: []Field{
			{ID: 1, Name: "id", Type: "long", Required: true},
			{ID: 2, Name: "name", Type: "string"},
			{ID: 3, Name: "score", Type: "double"},
			{ID: 4, Name: "active", Type: "boolean", Required: true},
			{ID: 5, Name: "day", Type: "date"},
			{ID: 6, Name: "at", Type: "timestamp"},
			{ID: 7, Name: "blob", Type: "binary"},
			{ID: 8, Name: "count", Type: "int"},
			{ID: 9, Name: "ratio", Type: "float"},
		},
	}

	ps, err := ParquetSchema(s)
	require.NoError(t, err)
	require.Len(t, ps.Fields(), len(s.Fields))

	byName := map[string]parquet.Field{}
	for _, f := range ps.Fields() {
		byName[f.Name()] = f
	}
	assert.False(t, byName["id"].Optional())
	assert.True(t, byName["name"].Optional())
	assert.False(t, byName["active"].Optional())
}

func TestParquetSchema_UnsupportedType(t *testing.T) {
	_, err := ParquetSchema(Schema{
		SchemaID: 0,
		Fields:   []Field{{ID: 1, Name: "u", Type: "uuid"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported type")
}

func TestParquetSchema_RoundTripWrite(t *testing.T) {
	ps, err := ParquetSchema(testSchema())
	require.NoError(t, err)

	var buf bytes.Buffer
	w := parquet.NewGenericWriter[map[string]any](&buf, ps)
	_, err = w.Write([]map[string]any{
		{"id": int64(1), "name": "alpha"},
		{"id": int64(2), "name": "bravo"},
	})
	require.NoError(t, err)
	require.NoError(t, w.Close())

	df, err := BuildDataFile("data/rt.parquet", buf.Bytes(), testSchema())
	require.NoError(t, err)
	assert.Equal(t, int64(2), df.RecordCount)
}
