package export

import (
	"os"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet"
	"github.com/apache/arrow/go/v14/parquet/compress"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"

	"github.com/wegman-software/osmlr-go/internal/attrs"
	"github.com/wegman-software/osmlr-go/internal/graph"
)

// EdgeSchema is the Parquet schema of an edge export
var EdgeSchema = arrow.NewSchema([]arrow.Field{
	{Name: "edge_id", Type: arrow.PrimitiveTypes.Uint32, Nullable: false},
	{Name: "distance", Type: arrow.PrimitiveTypes.Float32, Nullable: false},
	{Name: "profile_id", Type: arrow.PrimitiveTypes.Uint32, Nullable: false},
	{Name: "meta_id", Type: arrow.PrimitiveTypes.Uint32, Nullable: false},
	{Name: "profile_tags", Type: arrow.BinaryTypes.String, Nullable: false},
	{Name: "meta_tags", Type: arrow.BinaryTypes.String, Nullable: false},
}, nil)

// EdgeWriter writes edges with their attributes to Parquet
type EdgeWriter struct {
	file      *os.File
	writer    *pqarrow.FileWriter
	builder   *array.RecordBuilder
	batchSize int
	count     int
}

// NewEdgeWriter creates a new edge Parquet writer
func NewEdgeWriter(path string, batchSize int) (*EdgeWriter, error) {
	if batchSize <= 0 {
		batchSize = 100000
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	writerProps := parquet.NewWriterProperties(
		parquet.WithCompression(compress.Codecs.Zstd),
		parquet.WithDictionaryDefault(false),
	)

	writer, err := pqarrow.NewFileWriter(EdgeSchema, f, writerProps, pqarrow.DefaultWriterProps())
	if err != nil {
		f.Close()
		return nil, err
	}

	builder := array.NewRecordBuilder(memory.DefaultAllocator, EdgeSchema)

	return &EdgeWriter{
		file:      f,
		writer:    writer,
		builder:   builder,
		batchSize: batchSize,
	}, nil
}

// Write writes an edge record
func (w *EdgeWriter) Write(e graph.Edge, profile, meta attrs.Set) error {
	profileJSON, err := profile.MarshalJSON()
	if err != nil {
		return err
	}
	metaJSON, err := meta.MarshalJSON()
	if err != nil {
		return err
	}

	w.builder.Field(0).(*array.Uint32Builder).Append(e.ID)
	w.builder.Field(1).(*array.Float32Builder).Append(e.Data.Distance)
	w.builder.Field(2).(*array.Uint32Builder).Append(e.Data.Profile)
	w.builder.Field(3).(*array.Uint32Builder).Append(e.Data.MetaID)
	w.builder.Field(4).(*array.StringBuilder).Append(string(profileJSON))
	w.builder.Field(5).(*array.StringBuilder).Append(string(metaJSON))

	w.count++
	if w.count >= w.batchSize {
		return w.flush()
	}
	return nil
}

func (w *EdgeWriter) flush() error {
	if w.count == 0 {
		return nil
	}
	rec := w.builder.NewRecord()
	defer rec.Release()
	err := w.writer.Write(rec)
	w.count = 0
	return err
}

// Close flushes pending rows and closes the file
func (w *EdgeWriter) Close() error {
	defer w.builder.Release()
	if err := w.flush(); err != nil {
		w.writer.Close()
		return err
	}
	// the file writer closes the underlying file
	return w.writer.Close()
}
