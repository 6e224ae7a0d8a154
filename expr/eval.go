package expr

import (
	"math"

	"github.com/netresearch/datamon/table"
)

// Env is the name environment an expression is evaluated in.
type Env map[string]any

// Eval parses and evaluates src in env.
func Eval(src string, env Env) (any, error) {
	n, err := Parse(src)
	if err != nil {
		return nil, err
	}
	return evalNode(n, env)
}

func evalNode(n node, env Env) (any, error) {
	switch x := n.(type) {
	case *litNode:
		return x.val, nil

	case *nameNode:
		v, ok := env[x.ident]
		if !ok {
			return nil, &NameError{Name: x.ident}
		}
		return v, nil

	case *unaryNode:
		return evalUnary(x, env)

	case *binNode:
		l, err := evalNode(x.l, env)
		if err != nil {
			return nil, err
		}
		r, err := evalNode(x.r, env)
		if err != nil {
			return nil, err
		}
		return evalBinary(x.op, l, r)

	case *boolNode:
		return evalBool(x, env)

	case *compareNode:
		return evalCompare(x, env)

	case *callNode:
		return evalCall(x, env)

	case *attrNode:
		v, err := evalNode(x.x, env)
		if err != nil {
			return nil, err
		}
		return evalAttr(v, x.name)

	case *indexNode:
		v, err := evalNode(x.x, env)
		if err != nil {
			return nil, err
		}
		i, err := evalNode(x.i, env)
		if err != nil {
			return nil, err
		}
		return evalIndex(v, i)

	case *sliceNode:
		return evalSlice(x, env)

	case *tupleNode:
		elts, err := evalAll(x.elts, env)
		if err != nil {
			return nil, err
		}
		return Tuple(elts), nil

	case *listNode:
		elts, err := evalAll(x.elts, env)
		if err != nil {
			return nil, err
		}
		return List(elts), nil
	}
	return nil, evalErrf("unknown node %T", n)
}

func evalAll(nodes []node, env Env) ([]any, error) {
	out := make([]any, len(nodes))
	for i, n := range nodes {
		v, err := evalNode(n, env)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func evalUnary(x *unaryNode, env Env) (any, error) {
	v, err := evalNode(x.x, env)
	if err != nil {
		return nil, err
	}
	switch x.op {
	case "not":
		return !Truthy(v), nil
	case "-":
		switch n := v.(type) {
		case int64:
			return -n, nil
		case float64:
			return -n, nil
		}
		return nil, evalErrf("bad operand type for unary -: %s", typeName(v))
	case "+":
		if isNumber(v) {
			return v, nil
		}
		return nil, evalErrf("bad operand type for unary +: %s", typeName(v))
	}
	return nil, evalErrf("unknown unary operator %q", x.op)
}

func evalBool(x *boolNode, env Env) (any, error) {
	var v any
	var err error
	for _, n := range x.vals {
		v, err = evalNode(n, env)
		if err != nil {
			return nil, err
		}
		if x.op == "and" && !Truthy(v) {
			return v, nil
		}
		if x.op == "or" && Truthy(v) {
			return v, nil
		}
	}
	return v, nil
}

func evalCompare(x *compareNode, env Env) (any, error) {
	left, err := evalNode(x.left, env)
	if err != nil {
		return nil, err
	}
	for i, op := range x.ops {
		right, err := evalNode(x.rights[i], env)
		if err != nil {
			return nil, err
		}
		ok, err := applyCompare(op, left, right)
		if err != nil {
			return nil, err
		}
		if !ok {
			return false, nil
		}
		left = right
	}
	return true, nil
}

func applyCompare(op string, l, r any) (bool, error) {
	switch op {
	case "==":
		return equal(l, r), nil
	case "!=":
		return !equal(l, r), nil
	case "in":
		return contains(r, l)
	case "not in":
		ok, err := contains(r, l)
		return !ok, err
	}
	c, err := order(l, r)
	if err != nil {
		return false, err
	}
	switch op {
	case "<":
		return c < 0, nil
	case "<=":
		return c <= 0, nil
	case ">":
		return c > 0, nil
	case ">=":
		return c >= 0, nil
	}
	return false, evalErrf("unknown comparison %q", op)
}

func contains(container, item any) (bool, error) {
	switch c := container.(type) {
	case string:
		s, ok := item.(string)
		if !ok {
			return false, evalErrf("'in <string>' requires string as left operand, not %s", typeName(item))
		}
		return len(s) == 0 || indexOf(c, s), nil
	case *Set:
		return c.Has(item), nil
	case Dict:
		s, ok := item.(string)
		if !ok {
			return false, nil
		}
		_, found := c[s]
		return found, nil
	}
	elems, err := iterate(container)
	if err != nil {
		return false, err
	}
	for _, e := range elems {
		if equal(e, item) {
			return true, nil
		}
	}
	return false, nil
}

func indexOf(haystack, needle string) bool {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}

func evalBinary(op string, l, r any) (any, error) {
	// sequence and string concatenation / repetition
	switch op {
	case "+":
		if ls, ok := l.(string); ok {
			if rs, ok := r.(string); ok {
				return ls + rs, nil
			}
		}
		if ll, ok := l.(List); ok {
			if rl, ok := r.(List); ok {
				out := make(List, 0, len(ll)+len(rl))
				return append(append(out, ll...), rl...), nil
			}
		}
		if lt, ok := l.(Tuple); ok {
			if rt, ok := r.(Tuple); ok {
				out := make(Tuple, 0, len(lt)+len(rt))
				return append(append(out, lt...), rt...), nil
			}
		}
	case "*":
		if s, n, ok := stringRepeat(l, r); ok {
			return repeatString(s, n), nil
		}
	case "%":
		// no printf-style formatting; numeric modulo handled below
	}

	li, lIsInt := l.(int64)
	ri, rIsInt := r.(int64)
	if lIsInt && rIsInt {
		switch op {
		case "+":
			return li + ri, nil
		case "-":
			return li - ri, nil
		case "*":
			return li * ri, nil
		case "/":
			if ri == 0 {
				return nil, evalErrf("division by zero")
			}
			return float64(li) / float64(ri), nil
		case "//":
			if ri == 0 {
				return nil, evalErrf("division by zero")
			}
			return int64(math.Floor(float64(li) / float64(ri))), nil
		case "%":
			if ri == 0 {
				return nil, evalErrf("modulo by zero")
			}
			m := li % ri
			if m != 0 && (m < 0) != (ri < 0) {
				m += ri
			}
			return m, nil
		case "**":
			return powInt(li, ri)
		}
	}

	lf, lok := asFloat(l)
	rf, rok := asFloat(r)
	if !lok || !rok {
		return nil, evalErrf("unsupported operand type(s) for %s: %s and %s", op, typeName(l), typeName(r))
	}
	switch op {
	case "+":
		return lf + rf, nil
	case "-":
		return lf - rf, nil
	case "*":
		return lf * rf, nil
	case "/":
		if rf == 0 {
			return nil, evalErrf("division by zero")
		}
		return lf / rf, nil
	case "//":
		if rf == 0 {
			return nil, evalErrf("division by zero")
		}
		return math.Floor(lf / rf), nil
	case "%":
		if rf == 0 {
			return nil, evalErrf("modulo by zero")
		}
		m := math.Mod(lf, rf)
		if m != 0 && (m < 0) != (rf < 0) {
			m += rf
		}
		return m, nil
	case "**":
		return math.Pow(lf, rf), nil
	}
	return nil, evalErrf("unknown operator %q", op)
}

func powInt(base, exp int64) (any, error) {
	if exp < 0 {
		return math.Pow(float64(base), float64(exp)), nil
	}
	result := int64(1)
	for i := int64(0); i < exp; i++ {
		result *= base
	}
	return result, nil
}

func stringRepeat(l, r any) (string, int64, bool) {
	if s, ok := l.(string); ok {
		if n, ok := r.(int64); ok {
			return s, n, true
		}
	}
	if s, ok := r.(string); ok {
		if n, ok := l.(int64); ok {
			return s, n, true
		}
	}
	return "", 0, false
}

func repeatString(s string, n int64) string {
	if n <= 0 {
		return ""
	}
	out := make([]byte, 0, int(n)*len(s))
	for i := int64(0); i < n; i++ {
		out = append(out, s...)
	}
	return string(out)
}

func evalCall(x *callNode, env Env) (any, error) {
	fn, err := evalNode(x.fn, env)
	if err != nil {
		return nil, err
	}
	args, err := evalAll(x.args, env)
	if err != nil {
		return nil, err
	}
	var kwargs map[string]any
	if len(x.kwargs) > 0 {
		kwargs = make(map[string]any, len(x.kwargs))
		for _, kw := range x.kwargs {
			v, err := evalNode(kw.val, env)
			if err != nil {
				return nil, err
			}
			kwargs[kw.name] = v
		}
	}
	return Call(fn, args, kwargs)
}

// Call invokes a callable value with the given arguments.
func Call(fn any, args []any, kwargs map[string]any) (any, error) {
	switch f := fn.(type) {
	case *Callable:
		return f.Fn(args, kwargs)
	case *TypeObj:
		if len(kwargs) > 0 {
			return nil, evalErrf("%s() takes no keyword arguments", f.Name)
		}
		return f.Convert(args)
	}
	return nil, evalErrf("%s object is not callable", typeName(fn))
}

func evalAttr(v any, name string) (any, error) {
	if row, ok := v.(table.Row); ok {
		val, found := row.Get(name)
		if !found {
			return nil, evalErrf("row has no column %q", name)
		}
		return Normalize(val), nil
	}
	return nil, evalErrf("%s object has no attribute %q", typeName(v), name)
}

func evalIndex(v, idx any) (any, error) {
	if d, ok := v.(Dict); ok {
		k, ok := idx.(string)
		if !ok {
			return nil, evalErrf("dict index must be a string")
		}
		val, found := d[k]
		if !found {
			return nil, evalErrf("key %s not found", Repr(k))
		}
		return val, nil
	}

	if s, ok := idx.(sliceObj); ok {
		lo, hi := int64(0), int64(math.MaxInt32)
		if s.lo != nil {
			n, ok := s.lo.(int64)
			if !ok {
				return nil, evalErrf("slice indices must be integers")
			}
			lo = n
		}
		if s.hi != nil {
			n, ok := s.hi.(int64)
			if !ok {
				return nil, evalErrf("slice indices must be integers")
			}
			hi = n
		}
		return sliceValue(v, lo, hi)
	}

	i, ok := idx.(int64)
	if !ok {
		return nil, evalErrf("%s indices must be integers, not %s", typeName(v), typeName(idx))
	}
	switch c := v.(type) {
	case List:
		return seqIndex([]any(c), i)
	case Tuple:
		return seqIndex([]any(c), i)
	case string:
		elems := []rune(c)
		j, err := normIndex(i, len(elems))
		if err != nil {
			return nil, err
		}
		return string(elems[j]), nil
	case *table.Table:
		j, err := normIndex(i, c.NumRows())
		if err != nil {
			return nil, err
		}
		return c.Row(j), nil
	case table.Row:
		j, err := normIndex(i, len(c.Vals))
		if err != nil {
			return nil, err
		}
		return Normalize(c.Vals[j]), nil
	}
	return nil, evalErrf("%s object is not subscriptable", typeName(v))
}

func seqIndex(elems []any, i int64) (any, error) {
	j, err := normIndex(i, len(elems))
	if err != nil {
		return nil, err
	}
	return elems[j], nil
}

func normIndex(i int64, length int) (int, error) {
	j := int(i)
	if j < 0 {
		j += length
	}
	if j < 0 || j >= length {
		return 0, evalErrf("index out of range")
	}
	return j, nil
}

func evalSlice(x *sliceNode, env Env) (any, error) {
	v, err := evalNode(x.x, env)
	if err != nil {
		return nil, err
	}
	lo, hi := int64(0), int64(math.MaxInt32)
	if x.lo != nil {
		lv, err := evalNode(x.lo, env)
		if err != nil {
			return nil, err
		}
		n, ok := lv.(int64)
		if !ok {
			return nil, evalErrf("slice indices must be integers")
		}
		lo = n
	}
	if x.hi != nil {
		hv, err := evalNode(x.hi, env)
		if err != nil {
			return nil, err
		}
		n, ok := hv.(int64)
		if !ok {
			return nil, evalErrf("slice indices must be integers")
		}
		hi = n
	}
	return sliceValue(v, lo, hi)
}

func sliceValue(v any, lo, hi int64) (any, error) {
	switch c := v.(type) {
	case List:
		l, h := clampRange(lo, hi, len(c))
		return List(append([]any(nil), c[l:h]...)), nil
	case Tuple:
		l, h := clampRange(lo, hi, len(c))
		return Tuple(append([]any(nil), c[l:h]...)), nil
	case string:
		elems := []rune(c)
		l, h := clampRange(lo, hi, len(elems))
		return string(elems[l:h]), nil
	case *table.Table:
		l, h := clampRange(lo, hi, c.NumRows())
		return &table.Table{Cols: c.Cols, Rows: c.Rows[l:h]}, nil
	}
	return nil, evalErrf("%s object is not sliceable", typeName(v))
}

func clampRange(lo, hi int64, length int) (int, int) {
	l, h := int(lo), length
	if hi < int64(length) {
		h = int(hi)
	}
	if lo < 0 {
		l = length + int(lo)
	}
	if hi < 0 {
		h = length + int(hi)
	}
	if l < 0 {
		l = 0
	}
	if h > length {
		h = length
	}
	if l > h {
		l = h
	}
	return l, h
}
