package expr

import (
	"strconv"
	"strings"
)

// The AST mirrors the validator sublanguage: literals, names, unary and
// binary arithmetic, chainable comparisons, boolean operators, calls with
// positional and keyword arguments, attribute access, indexing and slicing,
// plus tuple and list displays.

type node interface{}

type litNode struct{ val any }

type nameNode struct{ ident string }

type unaryNode struct {
	op string
	x  node
}

type binNode struct {
	op   string
	l, r node
}

type boolNode struct {
	op   string // "and" or "or"
	vals []node
}

type compareNode struct {
	left   node
	ops    []string
	rights []node
}

type kwarg struct {
	name string
	val  node
}

type callNode struct {
	fn     node
	args   []node
	kwargs []kwarg
}

type attrNode struct {
	x    node
	name string
}

type indexNode struct {
	x node
	i node
}

type sliceNode struct {
	x      node
	lo, hi node // either may be nil
}

type tupleNode struct{ elts []node }

type listNode struct{ elts []node }

type parser struct {
	lex  *lexer
	tok  token
	peek *token
}

// Parse compiles one expression. The whole input must be consumed; trailing
// tokens are a SyntaxError.
func Parse(src string) (node, error) {
	p := &parser{lex: &lexer{src: src}}
	if err := p.advance(); err != nil {
		return nil, err
	}
	n, err := p.parseExprList()
	if err != nil {
		return nil, err
	}
	if p.tok.kind != tokEOF {
		return nil, &SyntaxError{Pos: p.tok.pos, Msg: "unexpected token " + p.describe(p.tok)}
	}
	return n, nil
}

func (p *parser) describe(t token) string {
	switch t.kind {
	case tokEOF:
		return "end of input"
	case tokString:
		return strconv.Quote(t.text)
	default:
		return "'" + t.text + "'"
	}
}

func (p *parser) advance() error {
	if p.peek != nil {
		p.tok = *p.peek
		p.peek = nil
		return nil
	}
	t, err := p.lex.next()
	if err != nil {
		return err
	}
	p.tok = t
	return nil
}

func (p *parser) peekTok() (token, error) {
	if p.peek == nil {
		t, err := p.lex.next()
		if err != nil {
			return token{}, err
		}
		p.peek = &t
	}
	return *p.peek, nil
}

func (p *parser) isOp(text string) bool {
	return p.tok.kind == tokOp && p.tok.text == text
}

func (p *parser) isKeyword(word string) bool {
	return p.tok.kind == tokIdent && p.tok.text == word
}

func (p *parser) expectOp(text string) error {
	if !p.isOp(text) {
		return &SyntaxError{Pos: p.tok.pos, Msg: "expected '" + text + "', found " + p.describe(p.tok)}
	}
	return p.advance()
}

// parseExprList handles the top-level "a, b" form, which evaluates to a tuple
// the way a bare expression list does in the source sublanguage.
func (p *parser) parseExprList() (node, error) {
	first, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if !p.isOp(",") {
		return first, nil
	}
	elts := []node{first}
	for p.isOp(",") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.tok.kind == tokEOF {
			break // trailing comma
		}
		n, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		elts = append(elts, n)
	}
	return &tupleNode{elts: elts}, nil
}

func (p *parser) parseOr() (node, error) {
	n, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	if !p.isKeyword("or") {
		return n, nil
	}
	vals := []node{n}
	for p.isKeyword("or") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		v, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		vals = append(vals, v)
	}
	return &boolNode{op: "or", vals: vals}, nil
}

func (p *parser) parseAnd() (node, error) {
	n, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	if !p.isKeyword("and") {
		return n, nil
	}
	vals := []node{n}
	for p.isKeyword("and") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		v, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		vals = append(vals, v)
	}
	return &boolNode{op: "and", vals: vals}, nil
}

func (p *parser) parseNot() (node, error) {
	if p.isKeyword("not") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		x, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &unaryNode{op: "not", x: x}, nil
	}
	return p.parseComparison()
}

func (p *parser) comparisonOp() (string, bool, error) {
	if p.tok.kind == tokOp {
		switch p.tok.text {
		case "==", "!=", "<", "<=", ">", ">=":
			return p.tok.text, true, nil
		}
	}
	if p.isKeyword("in") {
		return "in", true, nil
	}
	if p.isKeyword("not") {
		next, err := p.peekTok()
		if err != nil {
			return "", false, err
		}
		if next.kind == tokIdent && next.text == "in" {
			return "not in", true, nil
		}
	}
	return "", false, nil
}

func (p *parser) parseComparison() (node, error) {
	left, err := p.parseArith()
	if err != nil {
		return nil, err
	}
	var ops []string
	var rights []node
	for {
		op, ok, err := p.comparisonOp()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		if op == "not in" { // consume the second keyword
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
		r, err := p.parseArith()
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
		rights = append(rights, r)
	}
	if len(ops) == 0 {
		return left, nil
	}
	return &compareNode{left: left, ops: ops, rights: rights}, nil
}

func (p *parser) parseArith() (node, error) {
	n, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for p.isOp("+") || p.isOp("-") {
		op := p.tok.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		r, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		n = &binNode{op: op, l: n, r: r}
	}
	return n, nil
}

func (p *parser) parseTerm() (node, error) {
	n, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.isOp("*") || p.isOp("/") || p.isOp("//") || p.isOp("%") {
		op := p.tok.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		r, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		n = &binNode{op: op, l: n, r: r}
	}
	return n, nil
}

func (p *parser) parseUnary() (node, error) {
	if p.isOp("-") || p.isOp("+") {
		op := p.tok.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &unaryNode{op: op, x: x}, nil
	}
	return p.parsePower()
}

func (p *parser) parsePower() (node, error) {
	n, err := p.parsePostfix()
	if err != nil {
		return nil, err
	}
	if p.isOp("**") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		// right associative, and the exponent may itself be signed
		r, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &binNode{op: "**", l: n, r: r}, nil
	}
	return n, nil
}

func (p *parser) parsePostfix() (node, error) {
	n, err := p.parseAtom()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.isOp("("):
			if err := p.advance(); err != nil {
				return nil, err
			}
			call := &callNode{fn: n}
			if err := p.parseCallArgs(call); err != nil {
				return nil, err
			}
			n = call
		case p.isOp("."):
			if err := p.advance(); err != nil {
				return nil, err
			}
			if p.tok.kind != tokIdent {
				return nil, &SyntaxError{Pos: p.tok.pos, Msg: "expected attribute name after '.'"}
			}
			n = &attrNode{x: n, name: p.tok.text}
			if err := p.advance(); err != nil {
				return nil, err
			}
		case p.isOp("["):
			if err := p.advance(); err != nil {
				return nil, err
			}
			sub, err := p.parseSubscript(n)
			if err != nil {
				return nil, err
			}
			n = sub
		default:
			return n, nil
		}
	}
}

func (p *parser) parseSubscript(x node) (node, error) {
	var lo, hi node
	var err error
	isSlice := false

	if !p.isOp(":") {
		lo, err = p.parseOr()
		if err != nil {
			return nil, err
		}
	}
	if p.isOp(":") {
		isSlice = true
		if err := p.advance(); err != nil {
			return nil, err
		}
		if !p.isOp("]") {
			hi, err = p.parseOr()
			if err != nil {
				return nil, err
			}
		}
	}
	if err := p.expectOp("]"); err != nil {
		return nil, err
	}
	if isSlice {
		return &sliceNode{x: x, lo: lo, hi: hi}, nil
	}
	if lo == nil {
		return nil, &SyntaxError{Pos: p.tok.pos, Msg: "empty subscript"}
	}
	return &indexNode{x: x, i: lo}, nil
}

func (p *parser) parseCallArgs(call *callNode) error {
	for !p.isOp(")") {
		if p.tok.kind == tokEOF {
			return &SyntaxError{Pos: p.tok.pos, Msg: "unclosed call"}
		}
		// keyword argument: IDENT '=' value (but not IDENT '==')
		if p.tok.kind == tokIdent {
			next, err := p.peekTok()
			if err != nil {
				return err
			}
			if next.kind == tokOp && next.text == "=" {
				name := p.tok.text
				if err := p.advance(); err != nil { // ident
					return err
				}
				if err := p.advance(); err != nil { // '='
					return err
				}
				val, err := p.parseOr()
				if err != nil {
					return err
				}
				call.kwargs = append(call.kwargs, kwarg{name: name, val: val})
				goto sep
			}
		}
		{
			if len(call.kwargs) > 0 {
				return &SyntaxError{Pos: p.tok.pos, Msg: "positional argument after keyword argument"}
			}
			arg, err := p.parseOr()
			if err != nil {
				return err
			}
			call.args = append(call.args, arg)
		}
	sep:
		if p.isOp(",") {
			if err := p.advance(); err != nil {
				return err
			}
			continue
		}
		if !p.isOp(")") {
			return &SyntaxError{Pos: p.tok.pos, Msg: "expected ',' or ')' in call, found " + p.describe(p.tok)}
		}
	}
	return p.advance() // consume ')'
}

func (p *parser) parseAtom() (node, error) {
	switch p.tok.kind {
	case tokNumber:
		text := p.tok.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		if strings.ContainsAny(text, ".eE") {
			f, err := strconv.ParseFloat(text, 64)
			if err != nil {
				return nil, &SyntaxError{Pos: p.tok.pos, Msg: "invalid number " + text}
			}
			return &litNode{val: f}, nil
		}
		i, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return nil, &SyntaxError{Pos: p.tok.pos, Msg: "invalid number " + text}
		}
		return &litNode{val: i}, nil

	case tokString:
		s := p.tok.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &litNode{val: s}, nil

	case tokIdent:
		name := p.tok.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		switch name {
		case "True":
			return &litNode{val: true}, nil
		case "False":
			return &litNode{val: false}, nil
		case "None":
			return &litNode{val: nil}, nil
		case "and", "or", "not", "in":
			return nil, &SyntaxError{Pos: p.tok.pos, Msg: "unexpected keyword '" + name + "'"}
		}
		return &nameNode{ident: name}, nil

	case tokOp:
		switch p.tok.text {
		case "(":
			return p.parseParen()
		case "[":
			return p.parseList()
		}
	}
	return nil, &SyntaxError{Pos: p.tok.pos, Msg: "unexpected " + p.describe(p.tok)}
}

func (p *parser) parseParen() (node, error) {
	if err := p.advance(); err != nil { // consume '('
		return nil, err
	}
	if p.isOp(")") { // empty tuple
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &tupleNode{}, nil
	}
	first, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if !p.isOp(",") { // plain grouping
		if err := p.expectOp(")"); err != nil {
			return nil, err
		}
		return first, nil
	}
	elts := []node{first}
	for p.isOp(",") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.isOp(")") {
			break // trailing comma
		}
		n, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		elts = append(elts, n)
	}
	if err := p.expectOp(")"); err != nil {
		return nil, err
	}
	return &tupleNode{elts: elts}, nil
}

func (p *parser) parseList() (node, error) {
	if err := p.advance(); err != nil { // consume '['
		return nil, err
	}
	var elts []node
	for !p.isOp("]") {
		if p.tok.kind == tokEOF {
			return nil, &SyntaxError{Pos: p.tok.pos, Msg: "unclosed list"}
		}
		n, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		elts = append(elts, n)
		if p.isOp(",") {
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		if !p.isOp("]") {
			return nil, &SyntaxError{Pos: p.tok.pos, Msg: "expected ',' or ']' in list, found " + p.describe(p.tok)}
		}
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return &listNode{elts: elts}, nil
}
