package blockmodel

import (
	"fmt"

	"github.com/janelia-flyem/bgrid/attribute"
	"github.com/janelia-flyem/bgrid/bgrid"
	"github.com/janelia-flyem/bgrid/expr"
	"github.com/janelia-flyem/bgrid/table"
)

// resolver decodes stored attributes and evaluates calculated ones on demand,
// caching every column it produces.  It implements expr.Env.
type resolver struct {
	el     *Element
	n      int
	cache  map[string]table.Series
	parsed map[string]*expr.Expr
	active map[string]bool
}

func newResolver(el *Element) *resolver {
	return &resolver{
		el:     el,
		n:      el.Geometry.NumCells(),
		cache:  make(map[string]table.Series),
		parsed: make(map[string]*expr.Expr),
		active: make(map[string]bool),
	}
}

// calculated returns the parsed expression of a calculated attribute.
func (r *resolver) calculated(name string) (*expr.Expr, bool, error) {
	if e, found := r.parsed[name]; found {
		return e, true, nil
	}
	src, found := r.el.Metadata.CalculatedAttributes.Get(name)
	if !found {
		return nil, false, nil
	}
	e, err := expr.Parse(src)
	if err != nil {
		return nil, true, fmt.Errorf("calculated attribute %q: %w", name, err)
	}
	r.parsed[name] = e
	return e, true, nil
}

// check verifies that every name and every transitive dependency of a
// calculated attribute resolves, and that no definition depends on itself.
// All unresolved names are reported together.
func (r *resolver) check(names []string) error {
	const (
		visiting = 1
		done     = 2
	)
	state := make(map[string]int)
	var unknown []string
	reported := make(map[string]bool)

	var visit func(name string, path []string) error
	visit = func(name string, path []string) error {
		if _, stored := r.el.Attribute(name); stored {
			return nil
		}
		e, isCalc, err := r.calculated(name)
		if err != nil {
			return err
		}
		if !isCalc {
			if !reported[name] {
				reported[name] = true
				unknown = append(unknown, name)
			}
			return nil
		}
		path = append(path[:len(path):len(path)], name)
		switch state[name] {
		case visiting:
			return &bgrid.CycleError{Path: path}
		case done:
			return nil
		}
		state[name] = visiting
		for _, dep := range e.Names() {
			if err := visit(dep, path); err != nil {
				return err
			}
		}
		state[name] = done
		return nil
	}

	for _, name := range names {
		if err := visit(name, nil); err != nil {
			return err
		}
	}
	if len(unknown) != 0 {
		return &bgrid.UnknownNamesError{Names: unknown}
	}
	return nil
}

// series returns the decoded or calculated column for a name.
func (r *resolver) series(name string) (table.Series, error) {
	if s, found := r.cache[name]; found {
		return s, nil
	}
	if a, stored := r.el.Attribute(name); stored {
		s, err := attribute.ToSeries(a)
		if err != nil {
			return nil, err
		}
		r.cache[name] = s
		return s, nil
	}
	e, isCalc, err := r.calculated(name)
	if err != nil {
		return nil, err
	}
	if !isCalc {
		return nil, &bgrid.UnknownNamesError{Names: []string{name}}
	}
	if r.active[name] {
		return nil, &bgrid.CycleError{Path: []string{name, name}}
	}
	r.active[name] = true
	defer delete(r.active, name)

	values, err := e.EvalNumbers(r, r.n)
	if err != nil {
		return nil, fmt.Errorf("calculated attribute %q: %w", name, err)
	}
	s := table.NewFloat64(name, values)
	r.cache[name] = s
	return s, nil
}

func (r *resolver) Lookup(name string) (expr.Value, error) {
	s, err := r.series(name)
	if err != nil {
		return expr.Value{}, err
	}
	return valueOf(s)
}

func valueOf(s table.Series) (expr.Value, error) {
	if cat, ok := s.(*table.CategoricalSeries); ok {
		labels, valid := cat.Labels()
		return expr.Texts(labels, valid), nil
	}
	values, err := table.Float64Values(s)
	if err != nil {
		return expr.Value{}, err
	}
	return expr.Numbers(values), nil
}

// tableEnv resolves names to the columns of a table.
type tableEnv struct {
	t *table.Table
}

// TableEnv returns an expression environment over the columns of a table.
func TableEnv(t *table.Table) expr.Env {
	return tableEnv{t}
}

func (te tableEnv) Lookup(name string) (expr.Value, error) {
	s, found := te.t.Column(name)
	if !found {
		return expr.Value{}, &bgrid.UnknownNamesError{Names: []string{name}}
	}
	return valueOf(s)
}

// FilterTable returns the rows of a table matching a query over its columns.
func FilterTable(t *table.Table, query string) (*table.Table, error) {
	q, err := expr.Parse(query)
	if err != nil {
		return nil, err
	}
	var unknown []string
	for _, name := range q.Names() {
		if _, found := t.Column(name); !found {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) != 0 {
		return nil, &bgrid.UnknownNamesError{Names: unknown}
	}
	mask, err := q.EvalMask(tableEnv{t}, t.Len())
	if err != nil {
		return nil, err
	}
	return t.Filter(mask)
}
