package blockmodel

import (
	"fmt"

	"github.com/janelia-flyem/bgrid/attribute"
	"github.com/janelia-flyem/bgrid/bgrid"
	"github.com/janelia-flyem/bgrid/expr"
	"github.com/janelia-flyem/bgrid/geometry"
	"github.com/janelia-flyem/bgrid/index"
	"github.com/janelia-flyem/bgrid/table"
)

// TableToGrid converts a table into an element of the requested kind.  A
// tensor element needs x, y, z, dx, dy, dz index levels.  A regular element
// accepts either level set but fails with ErrValue unless cell sizes are
// uniform.  Sorting into C order happens on a copy so the caller's table is
// never reordered.
func TableToGrid(t *table.Table, name string, kind geometry.Kind) (*Element, error) {
	if t.Encoded != nil {
		return nil, fmt.Errorf("element %q: table keyed by %s needs a coordinate index: %w", name, t.Encoded.Name, bgrid.ErrValue)
	}
	switch kind {
	case geometry.Tensor:
		if !t.Index.IsTensor() {
			return nil, fmt.Errorf("element %q: %s needs index levels x, y, z, dx, dy, dz, got %v: %w",
				name, kind, t.Index.Names(), bgrid.ErrValue)
		}
	case geometry.Regular:
	default:
		return nil, fmt.Errorf("element %q: unknown kind %s: %w", name, kind, bgrid.ErrValue)
	}

	tlog := bgrid.NewTimeLog()
	sorted, _, err := t.Sorted(index.COrder)
	if err != nil {
		return nil, err
	}
	geom, err := geometry.New(kind, sorted.Index)
	if err != nil {
		return nil, fmt.Errorf("element %q: %w", name, err)
	}

	el := &Element{Name: name, Geometry: geom}
	for _, col := range sorted.Columns() {
		a, err := attribute.FromSeries(col)
		if err != nil {
			return nil, fmt.Errorf("element %q: %w", name, err)
		}
		el.Attributes = append(el.Attributes, a)
	}
	tlog.Debugf("Converted %d rows, %d columns into %s %q", t.Len(), t.NumColumns(), kind, name)
	return el, nil
}

// ReadOptions selects what GridToTable returns.
type ReadOptions struct {
	// Attributes to return, stored or calculated.  Nil means all.
	Attributes []string

	// Query keeps rows where the boolean expression holds.
	Query string

	// IndexFilter keeps rows at these C-order positions.  Exclusive with Query.
	IndexFilter []int

	// EncodeIndex returns the integer-encoded index instead of coordinates.
	EncodeIndex bool
}

// GridToTable decodes an element into a table in C order.  Only the requested
// attributes and those referenced by the query are decoded.
func GridToTable(el *Element, opts ReadOptions) (*table.Table, error) {
	if opts.Query != "" && opts.IndexFilter != nil {
		return nil, fmt.Errorf("element %q: query and index filter are exclusive: %w", el.Name, bgrid.ErrValue)
	}
	names := opts.Attributes
	if names == nil {
		names = el.AvailableNames()
	}
	r := newResolver(el)
	if err := r.check(names); err != nil {
		return nil, fmt.Errorf("element %q: %w", el.Name, err)
	}

	n := el.Geometry.NumCells()
	var rows []int
	switch {
	case opts.Query != "":
		q, err := expr.Parse(opts.Query)
		if err != nil {
			return nil, err
		}
		if err := r.check(q.Names()); err != nil {
			return nil, fmt.Errorf("element %q query: %w", el.Name, err)
		}
		mask, err := q.EvalMask(r, n)
		if err != nil {
			return nil, err
		}
		rows = make([]int, 0, n)
		for i, keep := range mask {
			if keep {
				rows = append(rows, i)
			}
		}
	case opts.IndexFilter != nil:
		for _, i := range opts.IndexFilter {
			if i < 0 || i >= n {
				return nil, fmt.Errorf("element %q: index filter position %d outside [0, %d): %w", el.Name, i, n, bgrid.ErrValue)
			}
		}
		rows = opts.IndexFilter
	}

	full := el.Geometry.RowIndex()
	var out *table.Table
	var err error
	if opts.EncodeIndex {
		enc, encErr := index.Encode(full)
		if encErr != nil {
			return nil, encErr
		}
		if rows != nil {
			enc = enc.Take(rows)
		}
		out, err = table.NewEncoded(enc)
	} else {
		if rows != nil {
			full = full.Take(rows)
		}
		out, err = table.New(full)
	}
	if err != nil {
		return nil, err
	}

	for _, name := range names {
		s, err := r.series(name)
		if err != nil {
			return nil, fmt.Errorf("element %q: %w", el.Name, err)
		}
		if rows != nil {
			s = s.Take(rows)
		}
		if err := out.AddColumn(s); err != nil {
			return nil, err
		}
	}
	return out, nil
}
