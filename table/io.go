package table

import (
	"context"
	"io"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/ipc"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet"
	"github.com/apache/arrow/go/v14/parquet/compress"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"

	"github.com/janelia-flyem/bgrid/bgrid"
)

// WriteIPC writes the table as an Arrow IPC stream.
func (t *Table) WriteIPC(w io.Writer) error {
	mem := memory.NewGoAllocator()
	rec, err := t.ToRecord(mem)
	if err != nil {
		return err
	}
	defer rec.Release()

	writer := ipc.NewWriter(w, ipc.WithSchema(rec.Schema()), ipc.WithAllocator(mem))
	if err := writer.Write(rec); err != nil {
		writer.Close()
		return err
	}
	return writer.Close()
}

// ReadIPC reads a table from an Arrow IPC stream.
func ReadIPC(r io.Reader) (*Table, error) {
	mem := memory.NewGoAllocator()
	reader, err := ipc.NewReader(r, ipc.WithAllocator(mem))
	if err != nil {
		return nil, err
	}
	defer reader.Release()

	var recs []arrow.Record
	defer func() {
		for _, rec := range recs {
			rec.Release()
		}
	}()
	for reader.Next() {
		rec := reader.Record()
		rec.Retain()
		recs = append(recs, rec)
	}
	if err := reader.Err(); err != nil {
		return nil, err
	}
	return FromRecords(reader.Schema(), recs)
}

// ParquetCodec maps a value compression to the matching Parquet codec.
func ParquetCodec(c bgrid.Compression) compress.Compression {
	switch c {
	case bgrid.Snappy:
		return compress.Codecs.Snappy
	case bgrid.LZ4:
		return compress.Codecs.Lz4
	case bgrid.Zstd:
		return compress.Codecs.Zstd
	default:
		return compress.Codecs.Uncompressed
	}
}

// WriteParquet writes the table as a Parquet file.  The Arrow schema is stored
// in the file so category lists and the integer index codec survive.  w is
// left open.
func (t *Table) WriteParquet(w io.Writer, codec bgrid.Compression) error {
	mem := memory.NewGoAllocator()
	rec, err := t.ToRecord(mem)
	if err != nil {
		return err
	}
	defer rec.Release()

	tbl := array.NewTableFromRecords(rec.Schema(), []arrow.Record{rec})
	defer tbl.Release()

	props := parquet.NewWriterProperties(
		parquet.WithCompression(ParquetCodec(codec)),
		parquet.WithAllocator(mem),
	)
	arrProps := pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema())
	// pqarrow closes a sink that is an io.Closer.
	sink := struct{ io.Writer }{w}
	return pqarrow.WriteTable(tbl, sink, 64*1024, props, arrProps)
}

// ReadParquet reads a table written by WriteParquet or any Parquet file with
// x, y, z (and optionally dx, dy, dz) columns.
func ReadParquet(ctx context.Context, r parquet.ReaderAtSeeker) (*Table, error) {
	mem := memory.NewGoAllocator()
	tbl, err := pqarrow.ReadTable(ctx, r, parquet.NewReaderProperties(mem), pqarrow.ArrowReadProperties{}, mem)
	if err != nil {
		return nil, err
	}
	defer tbl.Release()

	reader := array.NewTableReader(tbl, max(tbl.NumRows(), 1))
	defer reader.Release()

	var recs []arrow.Record
	defer func() {
		for _, rec := range recs {
			rec.Release()
		}
	}()
	for reader.Next() {
		rec := reader.Record()
		rec.Retain()
		recs = append(recs, rec)
	}
	return FromRecords(tbl.Schema(), recs)
}
