package table

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"

	"github.com/janelia-flyem/bgrid/bgrid"
	"github.com/janelia-flyem/bgrid/index"
)

// Arrow metadata keys.
const (
	categoriesKey = "bgrid.categories"
	codecKey      = "bgrid.codec"
)

func (t *Table) arrowFields() ([]arrow.Field, error) {
	var fields []arrow.Field
	if t.Encoded != nil {
		fields = append(fields, arrow.Field{Name: t.Encoded.Name, Type: arrow.PrimitiveTypes.Int64})
	} else {
		for _, name := range t.Index.Names() {
			fields = append(fields, arrow.Field{Name: name, Type: arrow.PrimitiveTypes.Float64})
		}
	}
	for _, c := range t.cols {
		switch s := c.(type) {
		case *Float64Series:
			fields = append(fields, arrow.Field{Name: s.Name(), Type: arrow.PrimitiveTypes.Float64})
		case *Int64Series:
			fields = append(fields, arrow.Field{Name: s.Name(), Type: arrow.PrimitiveTypes.Int64, Nullable: s.Nullable})
		case *CategoricalSeries:
			cats, err := json.Marshal(s.Categories)
			if err != nil {
				return nil, err
			}
			fields = append(fields, arrow.Field{
				Name:     s.Name(),
				Type:     arrow.BinaryTypes.String,
				Nullable: true,
				Metadata: arrow.NewMetadata([]string{categoriesKey}, []string{string(cats)}),
			})
		default:
			return nil, fmt.Errorf("column %q has unsupported type %T: %w", c.Name(), c, bgrid.ErrData)
		}
	}
	return fields, nil
}

// ArrowSchema returns the Arrow schema of the table.
func (t *Table) ArrowSchema() (*arrow.Schema, error) {
	fields, err := t.arrowFields()
	if err != nil {
		return nil, err
	}
	var md *arrow.Metadata
	if t.Encoded != nil {
		codec, err := json.Marshal(t.Encoded.Codec)
		if err != nil {
			return nil, err
		}
		m := arrow.NewMetadata([]string{codecKey}, []string{string(codec)})
		md = &m
	}
	return arrow.NewSchema(fields, md), nil
}

// ToRecord returns the table as a single Arrow record.  The caller must
// Release the record.
func (t *Table) ToRecord(mem memory.Allocator) (arrow.Record, error) {
	if mem == nil {
		mem = memory.NewGoAllocator()
	}
	schema, err := t.ArrowSchema()
	if err != nil {
		return nil, err
	}
	var arrs []arrow.Array
	defer func() {
		for _, a := range arrs {
			a.Release()
		}
	}()

	if t.Encoded != nil {
		b := array.NewInt64Builder(mem)
		b.AppendValues(t.Encoded.Codes, nil)
		arrs = append(arrs, b.NewArray())
		b.Release()
	} else {
		for _, col := range t.Index.Columns() {
			b := array.NewFloat64Builder(mem)
			b.AppendValues(col, nil)
			arrs = append(arrs, b.NewArray())
			b.Release()
		}
	}
	for _, c := range t.cols {
		switch s := c.(type) {
		case *Float64Series:
			b := array.NewFloat64Builder(mem)
			b.AppendValues(s.Values, nil)
			arrs = append(arrs, b.NewArray())
			b.Release()
		case *Int64Series:
			b := array.NewInt64Builder(mem)
			b.AppendValues(s.Values, s.Valid)
			arrs = append(arrs, b.NewArray())
			b.Release()
		case *CategoricalSeries:
			b := array.NewStringBuilder(mem)
			for i := range s.Codes {
				if label, ok := s.Label(i); ok {
					b.Append(label)
				} else {
					b.AppendNull()
				}
			}
			arrs = append(arrs, b.NewArray())
			b.Release()
		}
	}
	return array.NewRecord(schema, arrs, int64(t.Len())), nil
}

// columnData accumulates one column across records.
type columnData struct {
	field  arrow.Field
	floats []float64
	ints   []int64
	strs   []string
	valid  []bool
	nulls  int
}

func (c *columnData) appendArray(arr arrow.Array) error {
	n := arr.Len()
	switch a := arr.(type) {
	case *array.Float64:
		for i := 0; i < n; i++ {
			if a.IsNull(i) {
				c.floats = append(c.floats, math.NaN())
			} else {
				c.floats = append(c.floats, a.Value(i))
			}
		}
	case *array.Float32:
		for i := 0; i < n; i++ {
			if a.IsNull(i) {
				c.floats = append(c.floats, math.NaN())
			} else {
				c.floats = append(c.floats, float64(a.Value(i)))
			}
		}
	case *array.Int64:
		for i := 0; i < n; i++ {
			c.ints = append(c.ints, a.Value(i))
			c.valid = append(c.valid, a.IsValid(i))
		}
		c.nulls += a.NullN()
	case *array.Int32:
		for i := 0; i < n; i++ {
			c.ints = append(c.ints, int64(a.Value(i)))
			c.valid = append(c.valid, a.IsValid(i))
		}
		c.nulls += a.NullN()
	case *array.String:
		for i := 0; i < n; i++ {
			c.strs = append(c.strs, a.Value(i))
			c.valid = append(c.valid, a.IsValid(i))
		}
	default:
		return fmt.Errorf("column %q has unsupported arrow type %s: %w", c.field.Name, arr.DataType(), bgrid.ErrData)
	}
	return nil
}

func (c *columnData) series() (Series, error) {
	name := c.field.Name
	switch c.field.Type.ID() {
	case arrow.FLOAT64, arrow.FLOAT32:
		return NewFloat64(name, c.floats), nil
	case arrow.INT64, arrow.INT32:
		if c.field.Nullable || c.nulls > 0 {
			valid := c.valid
			if c.nulls == 0 {
				valid = nil
			}
			return NewNullableInt64(name, c.ints, valid), nil
		}
		return NewInt64(name, c.ints), nil
	default:
		if i := c.field.Metadata.FindKey(categoriesKey); i >= 0 {
			var categories []string
			if err := json.Unmarshal([]byte(c.field.Metadata.Values()[i]), &categories); err != nil {
				return nil, fmt.Errorf("column %q has bad category metadata: %v: %w", name, err, bgrid.ErrData)
			}
			return CategoricalWithCategories(name, c.strs, c.valid, categories), nil
		}
		return CategoricalFromLabels(name, c.strs, c.valid), nil
	}
}

func isIndexLevel(name string) bool {
	switch name {
	case index.LevelX, index.LevelY, index.LevelZ, index.LevelDX, index.LevelDY, index.LevelDZ:
		return true
	}
	return false
}

// FromRecords builds a table from records sharing one schema.  Index columns
// are recognized by name: x, y, z with optional dx, dy, dz, or encoded_xyz.
func FromRecords(schema *arrow.Schema, recs []arrow.Record) (*Table, error) {
	fields := schema.Fields()
	data := make([]*columnData, len(fields))
	for i, f := range fields {
		data[i] = &columnData{field: f}
	}
	for _, rec := range recs {
		for i := range fields {
			if err := data[i].appendArray(rec.Column(i)); err != nil {
				return nil, err
			}
		}
	}

	var levelNames []string
	var levelCols [][]float64
	var encoded *index.EncodedIndex
	var cols []Series
	for _, d := range data {
		switch {
		case isIndexLevel(d.field.Name):
			levelNames = append(levelNames, d.field.Name)
			levelCols = append(levelCols, d.floats)
		case d.field.Name == index.EncodedName:
			md := schema.Metadata()
			i := md.FindKey(codecKey)
			if i < 0 {
				return nil, fmt.Errorf("%s column without codec metadata: %w", index.EncodedName, bgrid.ErrCodec)
			}
			var codec index.Codec
			if err := json.Unmarshal([]byte(md.Values()[i]), &codec); err != nil {
				return nil, fmt.Errorf("bad codec metadata: %v: %w", err, bgrid.ErrCodec)
			}
			encoded = &index.EncodedIndex{Name: index.EncodedName, Codes: d.ints, Codec: &codec}
		default:
			s, err := d.series()
			if err != nil {
				return nil, err
			}
			cols = append(cols, s)
		}
	}
	if encoded != nil {
		return NewEncoded(*encoded, cols...)
	}
	idx, err := index.FromLevels(levelNames, levelCols)
	if err != nil {
		return nil, err
	}
	return New(idx, cols...)
}

// FromRecord builds a table from a single record.
func FromRecord(rec arrow.Record) (*Table, error) {
	return FromRecords(rec.Schema(), []arrow.Record{rec})
}
