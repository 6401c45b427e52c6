package table

import (
	"fmt"
	"math"
	"sort"

	"github.com/janelia-flyem/bgrid/bgrid"
)

// DType is the logical type of a column.
type DType uint8

const (
	Float64 DType = iota + 1
	Int64
	Categorical
)

func (d DType) String() string {
	switch d {
	case Float64:
		return "float64"
	case Int64:
		return "int64"
	case Categorical:
		return "category"
	default:
		return "unknown"
	}
}

// Series is a named column aligned with a table's row index.
type Series interface {
	Name() string
	DType() DType
	Len() int
	IsNull(i int) bool
	NullCount() int
	Take(rows []int) Series
	Rename(name string) Series
}

// MissingCode is the categorical code for a missing value.
const MissingCode int32 = -1

// Float64Series is a float column.  NaN marks missing values.
type Float64Series struct {
	name   string
	Values []float64
}

func NewFloat64(name string, values []float64) *Float64Series {
	return &Float64Series{name: name, Values: values}
}

func (s *Float64Series) Name() string { return s.name }
func (s *Float64Series) DType() DType { return Float64 }
func (s *Float64Series) Len() int     { return len(s.Values) }

func (s *Float64Series) IsNull(i int) bool { return math.IsNaN(s.Values[i]) }

func (s *Float64Series) NullCount() int {
	var n int
	for _, v := range s.Values {
		if math.IsNaN(v) {
			n++
		}
	}
	return n
}

func (s *Float64Series) Take(rows []int) Series {
	out := make([]float64, len(rows))
	for i, r := range rows {
		out[i] = s.Values[r]
	}
	return NewFloat64(s.name, out)
}

func (s *Float64Series) Rename(name string) Series {
	return &Float64Series{name: name, Values: s.Values}
}

// Int64Series is an integer column.  A nullable series may have missing
// values, recorded as false entries in Valid.  A nil Valid means no value
// is missing.
type Int64Series struct {
	name     string
	Values   []int64
	Valid    []bool
	Nullable bool
}

func NewInt64(name string, values []int64) *Int64Series {
	return &Int64Series{name: name, Values: values}
}

// NewNullableInt64 returns a nullable integer column.  valid may be nil.
func NewNullableInt64(name string, values []int64, valid []bool) *Int64Series {
	return &Int64Series{name: name, Values: values, Valid: valid, Nullable: true}
}

func (s *Int64Series) Name() string { return s.name }
func (s *Int64Series) DType() DType { return Int64 }
func (s *Int64Series) Len() int     { return len(s.Values) }

func (s *Int64Series) IsNull(i int) bool {
	return s.Valid != nil && !s.Valid[i]
}

func (s *Int64Series) NullCount() int {
	if s.Valid == nil {
		return 0
	}
	var n int
	for _, ok := range s.Valid {
		if !ok {
			n++
		}
	}
	return n
}

func (s *Int64Series) Take(rows []int) Series {
	out := &Int64Series{name: s.name, Values: make([]int64, len(rows)), Nullable: s.Nullable}
	if s.Valid != nil {
		out.Valid = make([]bool, len(rows))
	}
	for i, r := range rows {
		out.Values[i] = s.Values[r]
		if s.Valid != nil {
			out.Valid[i] = s.Valid[r]
		}
	}
	return out
}

func (s *Int64Series) Rename(name string) Series {
	return &Int64Series{name: name, Values: s.Values, Valid: s.Valid, Nullable: s.Nullable}
}

// CategoricalSeries holds codes into an ordered list of category labels.
type CategoricalSeries struct {
	name       string
	Codes      []int32
	Categories []string
}

// NewCategorical checks every code is MissingCode or a valid category position.
func NewCategorical(name string, codes []int32, categories []string) (*CategoricalSeries, error) {
	for i, c := range codes {
		if c < MissingCode || int(c) >= len(categories) {
			return nil, fmt.Errorf("column %q row %d has code %d with %d categories: %w", name, i, c, len(categories), bgrid.ErrData)
		}
	}
	return &CategoricalSeries{name: name, Codes: codes, Categories: categories}, nil
}

// CategoricalFromLabels assigns codes by position in the sorted distinct labels.
// Rows where valid is false are missing.  valid may be nil.
func CategoricalFromLabels(name string, labels []string, valid []bool) *CategoricalSeries {
	distinct := make(map[string]struct{})
	for i, l := range labels {
		if valid == nil || valid[i] {
			distinct[l] = struct{}{}
		}
	}
	categories := make([]string, 0, len(distinct))
	for l := range distinct {
		categories = append(categories, l)
	}
	sort.Strings(categories)
	return CategoricalWithCategories(name, labels, valid, categories)
}

// CategoricalWithCategories assigns codes from a fixed category list.  Labels not in
// the list are missing.
func CategoricalWithCategories(name string, labels []string, valid []bool, categories []string) *CategoricalSeries {
	pos := make(map[string]int32, len(categories))
	for i, c := range categories {
		pos[c] = int32(i)
	}
	codes := make([]int32, len(labels))
	for i, l := range labels {
		code, found := pos[l]
		if (valid != nil && !valid[i]) || !found {
			code = MissingCode
		}
		codes[i] = code
	}
	return &CategoricalSeries{name: name, Codes: codes, Categories: categories}
}

func (s *CategoricalSeries) Name() string { return s.name }
func (s *CategoricalSeries) DType() DType { return Categorical }
func (s *CategoricalSeries) Len() int     { return len(s.Codes) }

func (s *CategoricalSeries) IsNull(i int) bool { return s.Codes[i] < 0 }

func (s *CategoricalSeries) NullCount() int {
	var n int
	for _, c := range s.Codes {
		if c < 0 {
			n++
		}
	}
	return n
}

// Label returns the category label at row i, or false if missing.
func (s *CategoricalSeries) Label(i int) (string, bool) {
	if s.Codes[i] < 0 {
		return "", false
	}
	return s.Categories[s.Codes[i]], true
}

// Labels returns every row's label with a validity mask.
func (s *CategoricalSeries) Labels() ([]string, []bool) {
	labels := make([]string, len(s.Codes))
	valid := make([]bool, len(s.Codes))
	for i := range s.Codes {
		labels[i], valid[i] = s.Label(i)
	}
	return labels, valid
}

func (s *CategoricalSeries) Take(rows []int) Series {
	codes := make([]int32, len(rows))
	for i, r := range rows {
		codes[i] = s.Codes[r]
	}
	return &CategoricalSeries{name: s.name, Codes: codes, Categories: s.Categories}
}

func (s *CategoricalSeries) Rename(name string) Series {
	return &CategoricalSeries{name: name, Codes: s.Codes, Categories: s.Categories}
}

// Float64Values returns a numeric column as floats with NaN for missing values.
func Float64Values(s Series) ([]float64, error) {
	switch c := s.(type) {
	case *Float64Series:
		return append([]float64(nil), c.Values...), nil
	case *Int64Series:
		out := make([]float64, len(c.Values))
		for i, v := range c.Values {
			if c.IsNull(i) {
				out[i] = math.NaN()
			} else {
				out[i] = float64(v)
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("column %q of type %s is not numeric: %w", s.Name(), s.DType(), bgrid.ErrValue)
	}
}

// SeriesEqual returns true if two series have the same name, type, values and
// missing positions.  Missing floats compare equal.
func SeriesEqual(a, b Series) bool {
	if a.Name() != b.Name() || a.DType() != b.DType() || a.Len() != b.Len() {
		return false
	}
	switch x := a.(type) {
	case *Float64Series:
		y := b.(*Float64Series)
		for i := range x.Values {
			if x.IsNull(i) != y.IsNull(i) || (!x.IsNull(i) && x.Values[i] != y.Values[i]) {
				return false
			}
		}
	case *Int64Series:
		y := b.(*Int64Series)
		if x.Nullable != y.Nullable {
			return false
		}
		for i := range x.Values {
			if x.IsNull(i) != y.IsNull(i) || (!x.IsNull(i) && x.Values[i] != y.Values[i]) {
				return false
			}
		}
	case *CategoricalSeries:
		y := b.(*CategoricalSeries)
		if len(x.Categories) != len(y.Categories) {
			return false
		}
		for i := range x.Categories {
			if x.Categories[i] != y.Categories[i] {
				return false
			}
		}
		for i := range x.Codes {
			if x.Codes[i] != y.Codes[i] {
				return false
			}
		}
	}
	return true
}
