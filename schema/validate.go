package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/janelia-flyem/bgrid/bgrid"
	"github.com/janelia-flyem/bgrid/blockmodel"
	"github.com/janelia-flyem/bgrid/expr"
	"github.com/janelia-flyem/bgrid/table"
)

// maxReported caps the row failures listed in a ValidationError.
const maxReported = 10

// ValidationError lists rows that failed validation.
type ValidationError struct {
	Failures  []string
	Truncated bool
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("%d validation failures: %s", len(e.Failures), strings.Join(e.Failures, "; "))
	if e.Truncated {
		msg += "; ..."
	}
	return msg
}

func (e *ValidationError) Unwrap() error {
	return bgrid.ErrValidation
}

// Preprocess applies the extension keywords to a copy of the table: aliases
// are renamed, calculations computed, types coerced and values rounded, in
// that order.
func (s *Schema) Preprocess(t *table.Table) (*table.Table, error) {
	out := t.Clone()
	for _, c := range s.Columns {
		if c.Alias == "" {
			continue
		}
		if _, found := out.Column(c.Alias); !found {
			continue
		}
		if err := out.RenameColumn(c.Alias, c.Name); err != nil {
			return nil, fmt.Errorf("column %q alias %q: %v: %w", c.Name, c.Alias, err, bgrid.ErrValidation)
		}
	}
	for _, c := range s.Columns {
		if c.Calculation == "" {
			continue
		}
		q, err := expr.Parse(c.Calculation)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", c.Name, err)
		}
		values, err := q.EvalNumbers(blockmodel.TableEnv(out), out.Len())
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", c.Name, err)
		}
		if err := out.SetColumn(table.NewFloat64(c.Name, values)); err != nil {
			return nil, err
		}
	}
	for _, c := range s.Columns {
		col, found := out.Column(c.Name)
		if !found {
			continue
		}
		if c.DType != "" {
			coerced, err := coerce(col, c.DType)
			if err != nil {
				return nil, err
			}
			col = coerced
		}
		if c.Decimals != nil {
			col = round(col, *c.Decimals)
		}
		if err := out.SetColumn(col); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Validate preprocesses the table and checks every row against the schema.
// The preprocessed table is returned; the argument is not modified.
func (s *Schema) Validate(t *table.Table) (*table.Table, error) {
	out, err := s.Preprocess(t)
	if err != nil {
		return nil, err
	}

	verr := new(ValidationError)
	for i := 0; i < out.Len(); i++ {
		if err := s.compiled.Validate(rowObject(out, i)); err != nil {
			if len(verr.Failures) == maxReported {
				verr.Truncated = true
				break
			}
			verr.Failures = append(verr.Failures, fmt.Sprintf("row %d: %v", i, err))
		}
	}
	if len(verr.Failures) != 0 {
		return nil, verr
	}
	return out, nil
}

func jsonNumber(v float64) (json.Number, bool) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "", false
	}
	return json.Number(strconv.FormatFloat(v, 'g', -1, 64)), true
}

// rowObject returns row i as the decoded form of a JSON object.  Missing
// values are omitted so "required" reports them.
func rowObject(t *table.Table, i int) map[string]interface{} {
	row := make(map[string]interface{}, t.NumColumns()+6)
	if t.Encoded != nil {
		row[t.Encoded.Name] = json.Number(strconv.FormatInt(t.Encoded.Codes[i], 10))
	} else {
		names := t.Index.Names()
		for level, col := range t.Index.Columns() {
			if n, ok := jsonNumber(col[i]); ok {
				row[names[level]] = n
			}
		}
	}
	for _, col := range t.Columns() {
		if col.IsNull(i) {
			continue
		}
		switch c := col.(type) {
		case *table.Float64Series:
			if n, ok := jsonNumber(c.Values[i]); ok {
				row[c.Name()] = n
			}
		case *table.Int64Series:
			row[c.Name()] = json.Number(strconv.FormatInt(c.Values[i], 10))
		case *table.CategoricalSeries:
			label, _ := c.Label(i)
			row[c.Name()] = label
		}
	}
	return row
}

func round(col table.Series, decimals int) table.Series {
	f, ok := col.(*table.Float64Series)
	if !ok {
		return col
	}
	p := math.Pow(10, float64(decimals))
	values := make([]float64, len(f.Values))
	for i, v := range f.Values {
		values[i] = math.Round(v*p) / p
	}
	return table.NewFloat64(f.Name(), values)
}

func coerceError(col table.Series, dtype string, i int, why string) error {
	return fmt.Errorf("column %q can't be coerced to %s: row %d %s: %w", col.Name(), dtype, i, why, bgrid.ErrValidation)
}

func coerce(col table.Series, dtype string) (table.Series, error) {
	name := col.Name()
	switch dtype {
	case DTypeFloat:
		if cat, ok := col.(*table.CategoricalSeries); ok {
			values := make([]float64, cat.Len())
			for i := range values {
				label, valid := cat.Label(i)
				if !valid {
					values[i] = math.NaN()
					continue
				}
				v, err := strconv.ParseFloat(label, 64)
				if err != nil {
					return nil, coerceError(col, dtype, i, fmt.Sprintf("label %q is not a number", label))
				}
				values[i] = v
			}
			return table.NewFloat64(name, values), nil
		}
		values, err := table.Float64Values(col)
		if err != nil {
			return nil, err
		}
		return table.NewFloat64(name, values), nil

	case DTypeInt, DTypeNullableInt:
		nullable := dtype == DTypeNullableInt
		n := col.Len()
		values := make([]int64, n)
		valid := make([]bool, n)
		for i := 0; i < n; i++ {
			if col.IsNull(i) {
				if !nullable {
					return nil, coerceError(col, dtype, i, "is missing")
				}
				continue
			}
			v, err := intAt(col, i)
			if err != nil {
				return nil, coerceError(col, dtype, i, err.Error())
			}
			values[i], valid[i] = v, true
		}
		if nullable {
			return table.NewNullableInt64(name, values, valid), nil
		}
		return table.NewInt64(name, values), nil

	case DTypeCategory:
		if _, ok := col.(*table.CategoricalSeries); ok {
			return col, nil
		}
		n := col.Len()
		labels := make([]string, n)
		valid := make([]bool, n)
		for i := 0; i < n; i++ {
			if col.IsNull(i) {
				continue
			}
			switch c := col.(type) {
			case *table.Float64Series:
				labels[i] = strconv.FormatFloat(c.Values[i], 'g', -1, 64)
			case *table.Int64Series:
				labels[i] = strconv.FormatInt(c.Values[i], 10)
			default:
				return nil, coerceError(col, dtype, i, "has an unsupported type")
			}
			valid[i] = true
		}
		return table.CategoricalFromLabels(name, labels, valid), nil
	}
	return nil, fmt.Errorf("unknown dtype %q: %w", dtype, bgrid.ErrValue)
}

func intAt(col table.Series, i int) (int64, error) {
	switch c := col.(type) {
	case *table.Int64Series:
		return c.Values[i], nil
	case *table.Float64Series:
		v := c.Values[i]
		if v != math.Trunc(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("value %g is not integral", v)
		}
		return int64(v), nil
	case *table.CategoricalSeries:
		label, _ := c.Label(i)
		v, err := strconv.ParseInt(label, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("label %q is not an integer", label)
		}
		return v, nil
	}
	return 0, fmt.Errorf("unsupported type %s", col.DType())
}
