package expr

import (
	"fmt"

	"github.com/janelia-flyem/bgrid/bgrid"
)

// Kind is the element type of a Value.
type Kind uint8

const (
	Number Kind = iota + 1
	Text
	Boolean
)

func (k Kind) String() string {
	switch k {
	case Number:
		return "number"
	case Text:
		return "text"
	case Boolean:
		return "boolean"
	default:
		return "unknown"
	}
}

// Value is a column of numbers, labels or booleans.  Missing numbers are NaN
// and missing labels have a false entry in Valid.
type Value struct {
	Kind  Kind
	Nums  []float64
	Strs  []string
	Valid []bool
	Bools []bool

	scalar bool
}

// Numbers wraps a numeric column.
func Numbers(v []float64) Value {
	return Value{Kind: Number, Nums: v}
}

// Texts wraps a label column.  valid may be nil if nothing is missing.
func Texts(s []string, valid []bool) Value {
	return Value{Kind: Text, Strs: s, Valid: valid}
}

func (v Value) length() int {
	switch v.Kind {
	case Number:
		return len(v.Nums)
	case Text:
		return len(v.Strs)
	default:
		return len(v.Bools)
	}
}

func (v Value) at(i int) int {
	if v.scalar {
		return 0
	}
	return i
}

func (v Value) textValid(i int) bool {
	return v.Valid == nil || v.Valid[v.at(i)]
}

// Env resolves names to columns.
type Env interface {
	Lookup(name string) (Value, error)
}

// MapEnv is an Env backed by a map.
type MapEnv map[string]Value

func (m MapEnv) Lookup(name string) (Value, error) {
	v, found := m[name]
	if !found {
		return Value{}, &bgrid.UnknownNamesError{Names: []string{name}}
	}
	return v, nil
}

// Eval evaluates the expression over n rows.  Literal-only expressions are
// broadcast to n rows.
func (e *Expr) Eval(env Env, n int) (Value, error) {
	v, err := e.eval(e.root, env, n)
	if err != nil {
		return Value{}, err
	}
	if v.scalar {
		v = broadcast(v, n)
	}
	return v, nil
}

// EvalNumbers evaluates an arithmetic expression.
func (e *Expr) EvalNumbers(env Env, n int) ([]float64, error) {
	v, err := e.Eval(env, n)
	if err != nil {
		return nil, err
	}
	if v.Kind != Number {
		return nil, fmt.Errorf("expression %q gives %s, not numbers: %w", e.src, v.Kind, bgrid.ErrValue)
	}
	return v.Nums, nil
}

// EvalMask evaluates a boolean query.
func (e *Expr) EvalMask(env Env, n int) ([]bool, error) {
	v, err := e.Eval(env, n)
	if err != nil {
		return nil, err
	}
	if v.Kind != Boolean {
		return nil, fmt.Errorf("query %q gives %s, not booleans: %w", e.src, v.Kind, bgrid.ErrValue)
	}
	return v.Bools, nil
}

func broadcast(v Value, n int) Value {
	out := Value{Kind: v.Kind}
	switch v.Kind {
	case Number:
		out.Nums = make([]float64, n)
		for i := range out.Nums {
			out.Nums[i] = v.Nums[0]
		}
	case Text:
		out.Strs = make([]string, n)
		for i := range out.Strs {
			out.Strs[i] = v.Strs[0]
		}
	default:
		out.Bools = make([]bool, n)
		for i := range out.Bools {
			out.Bools[i] = v.Bools[0]
		}
	}
	return out
}

func (e *Expr) typeError(op string, l, r Kind) error {
	return fmt.Errorf("expression %q: can't apply %q to %s and %s: %w", e.src, op, l, r, bgrid.ErrValue)
}

func (e *Expr) eval(n node, env Env, rows int) (Value, error) {
	switch v := n.(type) {
	case numberNode:
		return Value{Kind: Number, Nums: []float64{v.v}, scalar: true}, nil

	case stringNode:
		return Value{Kind: Text, Strs: []string{v.v}, scalar: true}, nil

	case identNode:
		val, err := env.Lookup(v.name)
		if err != nil {
			return Value{}, err
		}
		if val.length() != rows {
			return Value{}, fmt.Errorf("column %q has %d rows, want %d: %w", v.name, val.length(), rows, bgrid.ErrValue)
		}
		return val, nil

	case unaryNode:
		x, err := e.eval(v.x, env, rows)
		if err != nil {
			return Value{}, err
		}
		return e.unary(v.op, x)

	case binaryNode:
		l, err := e.eval(v.l, env, rows)
		if err != nil {
			return Value{}, err
		}
		r, err := e.eval(v.r, env, rows)
		if err != nil {
			return Value{}, err
		}
		return e.binary(v.op, l, r, rows)
	}
	return Value{}, fmt.Errorf("expression %q: unknown node %T", e.src, n)
}

func (e *Expr) unary(op string, x Value) (Value, error) {
	out := Value{Kind: x.Kind, scalar: x.scalar}
	switch {
	case op == "-" && x.Kind == Number:
		out.Nums = make([]float64, len(x.Nums))
		for i, v := range x.Nums {
			out.Nums[i] = -v
		}
	case op == "not" && x.Kind == Boolean:
		out.Bools = make([]bool, len(x.Bools))
		for i, v := range x.Bools {
			out.Bools[i] = !v
		}
	default:
		return Value{}, fmt.Errorf("expression %q: can't apply %q to %s: %w", e.src, op, x.Kind, bgrid.ErrValue)
	}
	return out, nil
}

func (e *Expr) binary(op string, l, r Value, rows int) (Value, error) {
	n := rows
	scalar := l.scalar && r.scalar
	if scalar {
		n = 1
	}
	switch op {
	case "+", "-", "*", "/":
		if l.Kind != Number || r.Kind != Number {
			return Value{}, e.typeError(op, l.Kind, r.Kind)
		}
		out := Value{Kind: Number, Nums: make([]float64, n), scalar: scalar}
		for i := 0; i < n; i++ {
			a, b := l.Nums[l.at(i)], r.Nums[r.at(i)]
			switch op {
			case "+":
				out.Nums[i] = a + b
			case "-":
				out.Nums[i] = a - b
			case "*":
				out.Nums[i] = a * b
			case "/":
				out.Nums[i] = a / b
			}
		}
		return out, nil

	case "and", "or":
		if l.Kind != Boolean || r.Kind != Boolean {
			return Value{}, e.typeError(op, l.Kind, r.Kind)
		}
		out := Value{Kind: Boolean, Bools: make([]bool, n), scalar: scalar}
		for i := 0; i < n; i++ {
			a, b := l.Bools[l.at(i)], r.Bools[r.at(i)]
			if op == "and" {
				out.Bools[i] = a && b
			} else {
				out.Bools[i] = a || b
			}
		}
		return out, nil

	default:
		out := Value{Kind: Boolean, Bools: make([]bool, n), scalar: scalar}
		switch {
		case l.Kind == Number && r.Kind == Number:
			for i := 0; i < n; i++ {
				out.Bools[i] = compareNumbers(op, l.Nums[l.at(i)], r.Nums[r.at(i)])
			}
		case l.Kind == Text && r.Kind == Text:
			for i := 0; i < n; i++ {
				if !l.textValid(i) || !r.textValid(i) {
					out.Bools[i] = op == "!="
					continue
				}
				out.Bools[i] = compareStrings(op, l.Strs[l.at(i)], r.Strs[r.at(i)])
			}
		default:
			return Value{}, e.typeError(op, l.Kind, r.Kind)
		}
		return out, nil
	}
}

// compareNumbers follows IEEE semantics so NaN is unequal to everything.
func compareNumbers(op string, a, b float64) bool {
	switch op {
	case "==":
		return a == b
	case "!=":
		return a != b
	case "<":
		return a < b
	case "<=":
		return a <= b
	case ">":
		return a > b
	default:
		return a >= b
	}
}

func compareStrings(op string, a, b string) bool {
	switch op {
	case "==":
		return a == b
	case "!=":
		return a != b
	case "<":
		return a < b
	case "<=":
		return a <= b
	case ">":
		return a > b
	default:
		return a >= b
	}
}
