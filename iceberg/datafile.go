package iceberg

import (
	"bytes"
	"fmt"

	"github.com/parquet-go/parquet-go"
)

// BuildDataFile summarizes an encoded parquet file into a DataFile
// record, keying per-column statistics by the table schema's field ids.
// Bounds are recorded for byte-array columns; numeric bounds need the
// type-aware single-value encoding that the codec layer owns.
func BuildDataFile(filePath string, raw []byte, schema Schema) (DataFile, error) {
	f, err := parquet.OpenFile(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return DataFile{}, fmt.Errorf("opening parquet file: %w", err)
	}

	df := DataFile{
		Content:       DataFileContentData,
		FilePath:      filePath,
		FileFormat:    "PARQUET",
		Partition:     map[string]string{},
		RecordCount:   f.NumRows(),
		FileSizeBytes: int64(len(raw)),

		ColumnSizes:     map[int]int64{},
		ValueCounts:     map[int]int64{},
		NullValueCounts: map[int]int64{},
		LowerBounds:     map[int][]byte{},
		UpperBounds:     map[int][]byte{},
	}

	ids := make(map[string]int, len(schema.Fields))
	for _, field := range schema.Fields {
		ids[field.Name] = field.ID
	}

	meta := f.Metadata()
	for g, rg := range f.RowGroups() {
		for c, chunk := range rg.ColumnChunks() {
			cm := meta.RowGroups[g].Columns[c].MetaData
			name := cm.PathInSchema[len(cm.PathInSchema)-1]
			id, ok := ids[name]
			if !ok {
				id = c + 1
			}

			df.ColumnSizes[id] += cm.TotalCompressedSize
			df.ValueCounts[id] += cm.NumValues

			idx, err := chunk.ColumnIndex()
			if err != nil {
				continue // file carries no page index, stats stay partial
			}
			for p := 0; p < idx.NumPages(); p++ {
				df.NullValueCounts[id] += idx.NullCount(p)
				if idx.NullPage(p) {
					continue
				}
				if min := idx.MinValue(p); isByteArray(min) {
					updateBound(df.LowerBounds, id, min.Bytes(), func(cur, v []byte) bool { return bytes.Compare(v, cur) < 0 })
				}
				if max := idx.MaxValue(p); isByteArray(max) {
					updateBound(df.UpperBounds, id, max.Bytes(), func(cur, v []byte) bool { return bytes.Compare(v, cur) > 0 })
				}
			}
		}
	}

	return df, nil
}

func isByteArray(v parquet.Value) bool {
	if v.IsNull() {
		return false
	}
	return v.Kind() == parquet.ByteArray || v.Kind() == parquet.FixedLenByteArray
}

func updateBound(bounds map[int][]byte, id int, v []byte, better func(cur, v []byte) bool) {
	cur, ok := bounds[id]
	if !ok || better(cur, v) {
		bounds[id] = append([]byte(nil), v...)
	}
}

// ParquetSchema maps a table schema to the parquet schema used when
// writing data files.
func ParquetSchema(s Schema) (*parquet.Schema, error) {
	root := make(parquet.Group)

	for _, field := range s.Fields {
		var node parquet.Node

		switch field.Type {
		case "int":
			node = parquet.Leaf(parquet.Int32Type)
		case "long":
			node = parquet.Leaf(parquet.Int64Type)
		case "string":
			node = parquet.Leaf(parquet.ByteArrayType)
		case "double":
			node = parquet.Leaf(parquet.DoubleType)
		case "float":
			node = parquet.Leaf(parquet.FloatType)
		case "boolean":
			node = parquet.Leaf(parquet.BooleanType)
		case "date":
			node = parquet.Date()
		case "timestamp":
			node = parquet.Timestamp(parquet.Millisecond)
		case "binary":
			node = parquet.Leaf(parquet.ByteArrayType)
		default:
			return nil, fmt.Errorf("unsupported type: %s", field.Type)
		}

		if !field.Required {
			node = parquet.Optional(node)
		}
		root[field.Name] = node
	}

	return parquet.NewSchema("table", root), nil
}
