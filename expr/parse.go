package expr

// node is an expression tree element.
type node interface{}

type numberNode struct{ v float64 }

type stringNode struct{ v string }

type identNode struct{ name string }

type unaryNode struct {
	op string
	x  node
}

type binaryNode struct {
	op   string
	l, r node
}

// Expr is a parsed expression.
type Expr struct {
	src   string
	root  node
	names []string
}

// Parse parses an expression.  Syntax errors wrap bgrid.ErrValue.
func Parse(src string) (*Expr, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{src: src, toks: toks}
	root, err := p.or()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, syntaxError(src, t.pos, "unexpected %q", t.text)
	}
	e := &Expr{src: src, root: root}
	seen := make(map[string]bool)
	collectNames(root, seen, &e.names)
	return e, nil
}

// String returns the source text.
func (e *Expr) String() string { return e.src }

// Names returns the distinct identifiers referenced, in order of appearance.
func (e *Expr) Names() []string {
	return append([]string(nil), e.names...)
}

func collectNames(n node, seen map[string]bool, names *[]string) {
	switch v := n.(type) {
	case identNode:
		if !seen[v.name] {
			seen[v.name] = true
			*names = append(*names, v.name)
		}
	case unaryNode:
		collectNames(v.x, seen, names)
	case binaryNode:
		collectNames(v.l, seen, names)
		collectNames(v.r, seen, names)
	}
}

type parser struct {
	src  string
	toks []token
	pos  int
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) acceptOp(ops ...string) (string, bool) {
	t := p.peek()
	if t.kind != tokOp {
		return "", false
	}
	for _, op := range ops {
		if t.text == op {
			p.pos++
			return op, true
		}
	}
	return "", false
}

func (p *parser) or() (node, error) {
	l, err := p.and()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.acceptOp("or")
		if !ok {
			return l, nil
		}
		r, err := p.and()
		if err != nil {
			return nil, err
		}
		l = binaryNode{op: op, l: l, r: r}
	}
}

func (p *parser) and() (node, error) {
	l, err := p.not()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.acceptOp("and")
		if !ok {
			return l, nil
		}
		r, err := p.not()
		if err != nil {
			return nil, err
		}
		l = binaryNode{op: op, l: l, r: r}
	}
}

func (p *parser) not() (node, error) {
	if _, ok := p.acceptOp("not"); ok {
		x, err := p.not()
		if err != nil {
			return nil, err
		}
		return unaryNode{op: "not", x: x}, nil
	}
	return p.comparison()
}

func (p *parser) comparison() (node, error) {
	l, err := p.sum()
	if err != nil {
		return nil, err
	}
	if op, ok := p.acceptOp("==", "!=", "<", "<=", ">", ">="); ok {
		r, err := p.sum()
		if err != nil {
			return nil, err
		}
		return binaryNode{op: op, l: l, r: r}, nil
	}
	return l, nil
}

func (p *parser) sum() (node, error) {
	l, err := p.term()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.acceptOp("+", "-")
		if !ok {
			return l, nil
		}
		r, err := p.term()
		if err != nil {
			return nil, err
		}
		l = binaryNode{op: op, l: l, r: r}
	}
}

func (p *parser) term() (node, error) {
	l, err := p.unary()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.acceptOp("*", "/")
		if !ok {
			return l, nil
		}
		r, err := p.unary()
		if err != nil {
			return nil, err
		}
		l = binaryNode{op: op, l: l, r: r}
	}
}

func (p *parser) unary() (node, error) {
	if op, ok := p.acceptOp("-", "+"); ok {
		x, err := p.unary()
		if err != nil {
			return nil, err
		}
		if op == "+" {
			return x, nil
		}
		return unaryNode{op: "-", x: x}, nil
	}
	return p.primary()
}

func (p *parser) primary() (node, error) {
	t := p.next()
	switch t.kind {
	case tokNumber:
		return numberNode{v: t.num}, nil
	case tokString:
		return stringNode{v: t.text}, nil
	case tokIdent:
		return identNode{name: t.text}, nil
	case tokLParen:
		x, err := p.or()
		if err != nil {
			return nil, err
		}
		if closing := p.next(); closing.kind != tokRParen {
			return nil, syntaxError(p.src, closing.pos, "expected ')'")
		}
		return x, nil
	case tokEOF:
		return nil, syntaxError(p.src, t.pos, "unexpected end of expression")
	default:
		return nil, syntaxError(p.src, t.pos, "unexpected %q", t.text)
	}
}
