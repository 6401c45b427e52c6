/*
Package attribute converts table columns to and from persisted attribute arrays.

Floats are stored as-is with NaN as the missing marker.  Integers are stored
as-is with a sentinel recorded alongside; missing values of a nullable column
are replaced by the sentinel.  Categoricals are stored as int32 codes plus the
ordered category labels, with MissingCode for missing rows.
*/
package attribute

import (
	"fmt"
	"math"

	"github.com/janelia-flyem/bgrid/bgrid"
	"github.com/janelia-flyem/bgrid/table"
)

// DefaultNullSentinel stands in for missing integers.  It sits one above the
// smallest int64 so it never collides with values produced by casting NaN.
const DefaultNullSentinel int64 = math.MinInt64 + 1

// MissingCode is the categorical code stored for a missing value.
const MissingCode = table.MissingCode

// Kind is the storage representation of an attribute.
type Kind uint8

const (
	Numeric Kind = iota + 1
	Integer
	Category
)

func (k Kind) String() string {
	switch k {
	case Numeric:
		return "numeric"
	case Integer:
		return "integer"
	case Category:
		return "category"
	default:
		return "unknown"
	}
}

// Attribute is a named array persisted with a grid element, in C order.
type Attribute struct {
	Name        string
	Kind        Kind
	Description string

	Floats []float64
	Ints   []int64
	Codes  []int32

	// Categories holds the labels for Category attributes.
	Categories []string

	// NullSentinel is recorded for Integer attributes.
	NullSentinel int64

	// Nullable is true if the source column was a nullable integer.
	Nullable bool
}

// Len returns the number of values.
func (a *Attribute) Len() int {
	switch a.Kind {
	case Integer:
		return len(a.Ints)
	case Category:
		return len(a.Codes)
	default:
		return len(a.Floats)
	}
}

// Take returns the attribute restricted to the given rows.
func (a *Attribute) Take(rows []int) *Attribute {
	out := *a
	out.Floats, out.Ints, out.Codes = nil, nil, nil
	switch a.Kind {
	case Integer:
		out.Ints = make([]int64, len(rows))
		for i, r := range rows {
			out.Ints[i] = a.Ints[r]
		}
	case Category:
		out.Codes = make([]int32, len(rows))
		for i, r := range rows {
			out.Codes[i] = a.Codes[r]
		}
	default:
		out.Floats = make([]float64, len(rows))
		for i, r := range rows {
			out.Floats[i] = a.Floats[r]
		}
	}
	return &out
}

// Codec converts columns using a configurable integer sentinel.
type Codec struct {
	NullSentinel int64
}

// Default uses DefaultNullSentinel.
var Default = Codec{NullSentinel: DefaultNullSentinel}

// FromSeries converts a column with the default codec.
func FromSeries(s table.Series) (*Attribute, error) {
	return Default.FromSeries(s)
}

// ToSeries converts an attribute with the default codec.
func ToSeries(a *Attribute) (table.Series, error) {
	return Default.ToSeries(a)
}

// FromSeries converts a column to its persisted form.
func (c Codec) FromSeries(s table.Series) (*Attribute, error) {
	switch col := s.(type) {
	case *table.Float64Series:
		return &Attribute{
			Name:   col.Name(),
			Kind:   Numeric,
			Floats: append([]float64(nil), col.Values...),
		}, nil

	case *table.Int64Series:
		a := &Attribute{
			Name:         col.Name(),
			Kind:         Integer,
			Ints:         make([]int64, len(col.Values)),
			NullSentinel: c.NullSentinel,
			Nullable:     col.Nullable,
		}
		for i, v := range col.Values {
			if col.IsNull(i) {
				if !col.Nullable {
					return nil, fmt.Errorf("column %q row %d is missing but the column is not nullable: %w", col.Name(), i, bgrid.ErrData)
				}
				a.Ints[i] = c.NullSentinel
				continue
			}
			if v == c.NullSentinel {
				return nil, fmt.Errorf("column %q row %d holds the null sentinel %d: %w", col.Name(), i, v, bgrid.ErrData)
			}
			a.Ints[i] = v
		}
		return a, nil

	case *table.CategoricalSeries:
		return &Attribute{
			Name:       col.Name(),
			Kind:       Category,
			Codes:      append([]int32(nil), col.Codes...),
			Categories: append([]string(nil), col.Categories...),
		}, nil

	default:
		return nil, fmt.Errorf("column %q has unsupported type %s: %w", s.Name(), s.DType(), bgrid.ErrData)
	}
}

// ToSeries is the inverse of FromSeries.  Sentinel values in an integer
// attribute become missing values of a nullable column.
func (c Codec) ToSeries(a *Attribute) (table.Series, error) {
	switch a.Kind {
	case Numeric:
		return table.NewFloat64(a.Name, append([]float64(nil), a.Floats...)), nil

	case Integer:
		values := append([]int64(nil), a.Ints...)
		var valid []bool
		for i, v := range values {
			if v != a.NullSentinel {
				continue
			}
			if valid == nil {
				valid = make([]bool, len(values))
				for j := range valid {
					valid[j] = true
				}
			}
			valid[i] = false
			values[i] = 0
		}
		if a.Nullable || valid != nil {
			return table.NewNullableInt64(a.Name, values, valid), nil
		}
		return table.NewInt64(a.Name, values), nil

	case Category:
		return table.NewCategorical(a.Name, append([]int32(nil), a.Codes...), append([]string(nil), a.Categories...))

	default:
		return nil, fmt.Errorf("attribute %q has unknown kind %d: %w", a.Name, a.Kind, bgrid.ErrData)
	}
}
