/*
Package table holds the in-memory tabular form of a block model: a spatial row
index plus named typed columns.

Tables are the interchange format at the edges of the engine.  They convert to
and from Arrow records, Arrow IPC streams and Parquet files, and can be
aggregated into summary records.
*/
package table

import (
	"fmt"

	"github.com/janelia-flyem/bgrid/bgrid"
	"github.com/janelia-flyem/bgrid/index"
)

// Table is a row index with columns of equal length.  When Encoded is set the
// rows are keyed by the integer-encoded index instead of Index.
type Table struct {
	Index   index.RowIndex
	Encoded *index.EncodedIndex

	cols []Series
}

// New returns a table over the row index.  Column names must be unique and
// every column must match the index length.
func New(idx index.RowIndex, cols ...Series) (*Table, error) {
	t := &Table{Index: idx}
	for _, c := range cols {
		if err := t.AddColumn(c); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// NewEncoded returns a table keyed by an encoded row index.
func NewEncoded(enc index.EncodedIndex, cols ...Series) (*Table, error) {
	t := &Table{Encoded: &enc}
	for _, c := range cols {
		if err := t.AddColumn(c); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t.Encoded != nil {
		return t.Encoded.Len()
	}
	return t.Index.Len()
}

// NumColumns returns the number of columns, not counting the index.
func (t *Table) NumColumns() int {
	return len(t.cols)
}

// Columns returns the columns in order.
func (t *Table) Columns() []Series {
	return append([]Series(nil), t.cols...)
}

// ColumnNames returns the column names in order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.cols))
	for i, c := range t.cols {
		names[i] = c.Name()
	}
	return names
}

func (t *Table) position(name string) int {
	for i, c := range t.cols {
		if c.Name() == name {
			return i
		}
	}
	return -1
}

// Column returns a column by name.
func (t *Table) Column(name string) (Series, bool) {
	if i := t.position(name); i >= 0 {
		return t.cols[i], true
	}
	return nil, false
}

// AddColumn appends a column.  The name must not already exist.
func (t *Table) AddColumn(s Series) error {
	if s.Len() != t.Len() {
		return fmt.Errorf("column %q has %d rows, table has %d: %w", s.Name(), s.Len(), t.Len(), bgrid.ErrValue)
	}
	if t.position(s.Name()) >= 0 {
		return fmt.Errorf("column %q: %w", s.Name(), bgrid.ErrAlreadyExists)
	}
	t.cols = append(t.cols, s)
	return nil
}

// SetColumn replaces a column in place or appends it if new.
func (t *Table) SetColumn(s Series) error {
	if s.Len() != t.Len() {
		return fmt.Errorf("column %q has %d rows, table has %d: %w", s.Name(), s.Len(), t.Len(), bgrid.ErrValue)
	}
	if i := t.position(s.Name()); i >= 0 {
		t.cols[i] = s
		return nil
	}
	t.cols = append(t.cols, s)
	return nil
}

// DropColumn removes a column.
func (t *Table) DropColumn(name string) error {
	i := t.position(name)
	if i < 0 {
		return fmt.Errorf("column %q: %w", name, bgrid.ErrNotFound)
	}
	t.cols = append(t.cols[:i:i], t.cols[i+1:]...)
	return nil
}

// RenameColumn renames a column, keeping its position.
func (t *Table) RenameColumn(from, to string) error {
	i := t.position(from)
	if i < 0 {
		return fmt.Errorf("column %q: %w", from, bgrid.ErrNotFound)
	}
	if from == to {
		return nil
	}
	if t.position(to) >= 0 {
		return fmt.Errorf("column %q: %w", to, bgrid.ErrAlreadyExists)
	}
	t.cols[i] = t.cols[i].Rename(to)
	return nil
}

// Select returns a table with only the named columns, in the given order.
func (t *Table) Select(names []string) (*Table, error) {
	out := &Table{Index: t.Index, Encoded: t.Encoded}
	var unknown []string
	for _, name := range names {
		c, found := t.Column(name)
		if !found {
			unknown = append(unknown, name)
			continue
		}
		out.cols = append(out.cols, c)
	}
	if len(unknown) != 0 {
		return nil, &bgrid.UnknownNamesError{Names: unknown}
	}
	return out, nil
}

// Take returns a new table with the rows at the given positions.
func (t *Table) Take(rows []int) *Table {
	out := &Table{cols: make([]Series, len(t.cols))}
	if t.Encoded != nil {
		enc := t.Encoded.Take(rows)
		out.Encoded = &enc
	} else {
		out.Index = t.Index.Take(rows)
	}
	for i, c := range t.cols {
		out.cols[i] = c.Take(rows)
	}
	return out
}

// Filter returns the rows where mask is true.
func (t *Table) Filter(mask []bool) (*Table, error) {
	if len(mask) != t.Len() {
		return nil, fmt.Errorf("mask has %d rows, table has %d: %w", len(mask), t.Len(), bgrid.ErrValue)
	}
	var rows []int
	for i, keep := range mask {
		if keep {
			rows = append(rows, i)
		}
	}
	return t.Take(rows), nil
}

// Clone returns a copy that shares no slices with t.
func (t *Table) Clone() *Table {
	rows := make([]int, t.Len())
	for i := range rows {
		rows[i] = i
	}
	return t.Take(rows)
}

// Sorted returns a copy of the table in the given ravel order along with the
// permutation applied.  The receiver is not modified.
func (t *Table) Sorted(order index.Order) (*Table, []int, error) {
	if t.Encoded != nil {
		return nil, nil, fmt.Errorf("can't sort a table keyed by %s: %w", t.Encoded.Name, bgrid.ErrValue)
	}
	perm := t.Index.SortPermutation(order)
	return t.Take(perm), perm, nil
}

// Equal returns true if both tables have equal indices and columns.
func (t *Table) Equal(o *Table) bool {
	if t.Len() != o.Len() || len(t.cols) != len(o.cols) {
		return false
	}
	if (t.Encoded == nil) != (o.Encoded == nil) {
		return false
	}
	if t.Encoded == nil && !t.Index.Equal(o.Index) {
		return false
	}
	for i := range t.cols {
		if !SeriesEqual(t.cols[i], o.cols[i]) {
			return false
		}
	}
	return true
}
