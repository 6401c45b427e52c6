package table

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/janelia-flyem/bgrid/bgrid"
)

// CategoryTreatment selects how categorical columns are summarized.
type CategoryTreatment uint8

const (
	// Majority reports the most frequent label.  Ties go to the earlier category.
	Majority CategoryTreatment = iota

	// Proportions reports the fraction of non-missing rows in each category.
	Proportions
)

// AggregateOptions controls Aggregate.
type AggregateOptions struct {
	// Weights maps a numeric column to the column whose values weight its mean,
	// e.g., an assay weighted by dry mass.  Unlisted numeric columns are summed.
	Weights map[string]string

	Categories CategoryTreatment

	// ProportionsAsColumns expands category proportions into one float per
	// category named "<column>_<label>" instead of a map.
	ProportionsAsColumns bool
}

// Summary is an ordered set of named aggregate values.  Values are float64,
// string for a majority label, or map[string]float64 for proportions.
type Summary struct {
	Names  []string
	Values []interface{}
}

func (s *Summary) add(name string, v interface{}) {
	s.Names = append(s.Names, name)
	s.Values = append(s.Values, v)
}

// Get returns a value by name.
func (s Summary) Get(name string) (interface{}, bool) {
	for i, n := range s.Names {
		if n == name {
			return s.Values[i], true
		}
	}
	return nil, false
}

// Aggregate summarizes all rows of a table into one record.
func Aggregate(t *Table, opts AggregateOptions) (Summary, error) {
	var s Summary
	for name, wname := range opts.Weights {
		if _, found := t.Column(name); !found {
			return s, &bgrid.UnknownNamesError{Names: []string{name}}
		}
		if _, found := t.Column(wname); !found {
			return s, &bgrid.UnknownNamesError{Names: []string{wname}}
		}
	}
	for _, c := range t.cols {
		if cat, ok := c.(*CategoricalSeries); ok {
			summarizeCategories(&s, cat, opts)
			continue
		}
		values, err := Float64Values(c)
		if err != nil {
			return s, err
		}
		wname, weighted := opts.Weights[c.Name()]
		if !weighted {
			s.add(c.Name(), nanSum(values))
			continue
		}
		wcol, _ := t.Column(wname)
		weights, err := Float64Values(wcol)
		if err != nil {
			return s, err
		}
		mean, err := weightedMean(values, weights)
		if err != nil {
			return s, fmt.Errorf("column %q weighted by %q: %w", c.Name(), wname, err)
		}
		s.add(c.Name(), mean)
	}
	return s, nil
}

func nanSum(values []float64) float64 {
	var sum float64
	for _, v := range values {
		if !math.IsNaN(v) {
			sum += v
		}
	}
	return sum
}

// weightedMean skips rows where either the value or weight is missing.
func weightedMean(values, weights []float64) (float64, error) {
	var x, w []float64
	for i, v := range values {
		if math.IsNaN(v) || math.IsNaN(weights[i]) {
			continue
		}
		if weights[i] < 0 {
			return 0, fmt.Errorf("negative weight %g at row %d: %w", weights[i], i, bgrid.ErrData)
		}
		x = append(x, v)
		w = append(w, weights[i])
	}
	if len(x) == 0 {
		return math.NaN(), nil
	}
	return stat.Mean(x, w), nil
}

func summarizeCategories(s *Summary, c *CategoricalSeries, opts AggregateOptions) {
	counts := make([]float64, len(c.Categories))
	var total float64
	for _, code := range c.Codes {
		if code >= 0 {
			counts[code]++
			total++
		}
	}
	switch opts.Categories {
	case Proportions:
		props := make(map[string]float64, len(c.Categories))
		for i, label := range c.Categories {
			p := 0.0
			if total > 0 {
				p = counts[i] / total
			}
			if opts.ProportionsAsColumns {
				s.add(c.Name()+"_"+label, p)
			} else {
				props[label] = p
			}
		}
		if !opts.ProportionsAsColumns {
			s.add(c.Name(), props)
		}
	default:
		best := -1
		for i, n := range counts {
			if n > 0 && (best < 0 || n > counts[best]) {
				best = i
			}
		}
		if best < 0 {
			s.add(c.Name(), nil)
		} else {
			s.add(c.Name(), c.Categories[best])
		}
	}
}

// GroupSummary is the aggregate of the rows sharing one label.
type GroupSummary struct {
	Group string
	Summary
}

// AggregateBy summarizes the rows of each category of a categorical column,
// in category order.  Categories with no rows are skipped.
func AggregateBy(t *Table, group string, opts AggregateOptions) ([]GroupSummary, error) {
	col, found := t.Column(group)
	if !found {
		return nil, &bgrid.UnknownNamesError{Names: []string{group}}
	}
	cat, ok := col.(*CategoricalSeries)
	if !ok {
		return nil, fmt.Errorf("group column %q is %s, not categorical: %w", group, col.DType(), bgrid.ErrValue)
	}
	rows := make([][]int, len(cat.Categories))
	for i, code := range cat.Codes {
		if code >= 0 {
			rows[code] = append(rows[code], i)
		}
	}
	var out []GroupSummary
	for code, r := range rows {
		if len(r) == 0 {
			continue
		}
		s, err := Aggregate(t.Take(r), opts)
		if err != nil {
			return nil, err
		}
		out = append(out, GroupSummary{Group: cat.Categories[code], Summary: s})
	}
	return out, nil
}
