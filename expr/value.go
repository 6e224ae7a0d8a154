package expr

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/netresearch/datamon/table"
)

// Runtime values are plain Go values: nil, bool, int64, float64, string,
// time.Time, List, Tuple, Dict, Set, *table.Table, table.Row, Callable and
// TypeObj. Tuples and lists are both []any underneath but keep distinct
// types: a validator returning a 2-tuple means (ok, info), a 2-element list
// is just data.

// List is an ordered, mutable-by-convention sequence.
type List []any

// Tuple is an ordered, fixed sequence.
type Tuple []any

// Dict maps string keys to values. Non-string keys from conversions are
// stringified.
type Dict map[string]any

// Set holds unique values keyed by their canonical representation.
type Set struct {
	m map[string]any
}

// NewSet builds a set from the given elements.
func NewSet(elems ...any) *Set {
	s := &Set{m: make(map[string]any, len(elems))}
	for _, e := range elems {
		s.m[Repr(e)] = e
	}
	return s
}

// Has reports membership.
func (s *Set) Has(v any) bool {
	_, ok := s.m[Repr(v)]
	return ok
}

// Len returns the number of elements.
func (s *Set) Len() int { return len(s.m) }

// Values returns the elements in canonical-representation order.
func (s *Set) Values() []any {
	keys := make([]string, 0, len(s.m))
	for k := range s.m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]any, len(keys))
	for i, k := range keys {
		out[i] = s.m[k]
	}
	return out
}

// ellipsisVal backs the Ellipsis builtin constant.
type ellipsisVal struct{}

// Callable is a named function value. Positional arguments arrive in args,
// keyword arguments in kwargs (nil when none were given).
type Callable struct {
	Name string
	Fn   func(args []any, kwargs map[string]any) (any, error)
}

// TypeObj represents a builtin type name: callable as a conversion function
// and usable as the second argument of isinstance/issubclass.
type TypeObj struct {
	Name    string
	Convert func(args []any) (any, error)
	Is      func(v any) bool
}

// Truthy implements the sublanguage's truth rules: nil, False, zero numbers,
// and empty strings/sequences/tables are false; everything else is true.
func Truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case int64:
		return x != 0
	case float64:
		return x != 0
	case string:
		return x != ""
	case List:
		return len(x) > 0
	case Tuple:
		return len(x) > 0
	case Dict:
		return len(x) > 0
	case *Set:
		return x.Len() > 0
	case *table.Table:
		return x.NumRows() > 0
	default:
		return true
	}
}

// Normalize maps foreign Go values (typically scanned from a database driver)
// onto the interpreter's canonical types.
func Normalize(v any) any {
	switch x := v.(type) {
	case nil, bool, int64, float64, string, time.Time,
		List, Tuple, Dict, *Set, *table.Table, table.Row, *Callable, *TypeObj, ellipsisVal:
		return v
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint:
		return int64(x)
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		return int64(x)
	case float32:
		return float64(x)
	case []byte:
		return string(x)
	case []any:
		out := make(List, len(x))
		for i, e := range x {
			out[i] = Normalize(e)
		}
		return out
	default:
		return v
	}
}

func asFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int64:
		return float64(x), true
	case float64:
		return x, true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func isNumber(v any) bool {
	switch v.(type) {
	case int64, float64, bool:
		return true
	}
	return false
}

func seqOf(v any) ([]any, bool) {
	switch x := v.(type) {
	case List:
		return x, true
	case Tuple:
		return x, true
	}
	return nil, false
}

// iterate expands any iterable value into a slice of elements.
func iterate(v any) ([]any, error) {
	switch x := v.(type) {
	case List:
		return x, nil
	case Tuple:
		return x, nil
	case *Set:
		return x.Values(), nil
	case Dict:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]any, len(keys))
		for i, k := range keys {
			out[i] = k
		}
		return out, nil
	case string:
		out := make([]any, 0, len(x))
		for _, r := range x {
			out = append(out, string(r))
		}
		return out, nil
	case *table.Table:
		out := make([]any, x.NumRows())
		for i := range out {
			out[i] = x.Row(i)
		}
		return out, nil
	}
	return nil, evalErrf("%s is not iterable", typeName(v))
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "None"
	case bool:
		return "bool"
	case int64:
		return "int"
	case float64:
		return "float"
	case string:
		return "str"
	case List:
		return "list"
	case Tuple:
		return "tuple"
	case Dict:
		return "dict"
	case *Set:
		return "set"
	case time.Time:
		return "datetime"
	case *table.Table:
		return "table"
	case table.Row:
		return "row"
	case *Callable:
		return "function"
	case *TypeObj:
		return "type"
	case ellipsisVal:
		return "Ellipsis"
	default:
		return reflect.TypeOf(v).String()
	}
}

// equal implements the sublanguage's '==': numbers compare by value across
// int/float/bool, sequences compare element-wise, everything else compares
// structurally.
func equal(a, b any) bool {
	if isNumber(a) && isNumber(b) {
		fa, _ := asFloat(a)
		fb, _ := asFloat(b)
		return fa == fb
	}
	sa, oka := seqOf(a)
	sb, okb := seqOf(b)
	if oka && okb {
		if len(sa) != len(sb) {
			return false
		}
		for i := range sa {
			if !equal(sa[i], sb[i]) {
				return false
			}
		}
		return true
	}
	if ta, ok := a.(time.Time); ok {
		if tb, ok := b.(time.Time); ok {
			return ta.Equal(tb)
		}
	}
	return reflect.DeepEqual(a, b)
}

// order compares two values, returning -1, 0 or 1. Only numbers, strings,
// times and same-typed sequences are ordered.
func order(a, b any) (int, error) {
	if isNumber(a) && isNumber(b) {
		fa, _ := asFloat(a)
		fb, _ := asFloat(b)
		switch {
		case fa < fb:
			return -1, nil
		case fa > fb:
			return 1, nil
		}
		return 0, nil
	}
	if xa, ok := a.(string); ok {
		if xb, ok := b.(string); ok {
			return strings.Compare(xa, xb), nil
		}
	}
	if ta, ok := a.(time.Time); ok {
		if tb, ok := b.(time.Time); ok {
			switch {
			case ta.Before(tb):
				return -1, nil
			case ta.After(tb):
				return 1, nil
			}
			return 0, nil
		}
	}
	sa, oka := seqOf(a)
	sb, okb := seqOf(b)
	if oka && okb {
		for i := 0; i < len(sa) && i < len(sb); i++ {
			c, err := order(sa[i], sb[i])
			if err != nil {
				return 0, err
			}
			if c != 0 {
				return c, nil
			}
		}
		switch {
		case len(sa) < len(sb):
			return -1, nil
		case len(sa) > len(sb):
			return 1, nil
		}
		return 0, nil
	}
	return 0, evalErrf("cannot order %s and %s", typeName(a), typeName(b))
}

// Repr renders a value the way the alarm formatter and error messages show
// it: strings quoted, sequences bracketed, floats without trailing zeros.
func Repr(v any) string {
	switch x := v.(type) {
	case nil:
		return "None"
	case bool:
		if x {
			return "True"
		}
		return "False"
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1e15 {
			return strconv.FormatFloat(x, 'f', 1, 64)
		}
		return strconv.FormatFloat(x, 'g', -1, 64)
	case string:
		return strconv.Quote(x)
	case List:
		return reprSeq(x, "[", "]")
	case Tuple:
		if len(x) == 1 {
			return "(" + Repr(x[0]) + ",)"
		}
		return reprSeq(x, "(", ")")
	case Dict:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = strconv.Quote(k) + ": " + Repr(x[k])
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case *Set:
		return reprSeq(x.Values(), "set(", ")")
	case time.Time:
		return x.Format("2006-01-02 15:04:05")
	case *table.Table:
		return x.String()
	case table.Row:
		return x.String()
	case *Callable:
		return "<function " + x.Name + ">"
	case *TypeObj:
		return "<type '" + x.Name + "'>"
	case ellipsisVal:
		return "Ellipsis"
	default:
		return fmt.Sprintf("%v", v)
	}
}

func reprSeq(elems []any, open, close string) string {
	parts := make([]string, len(elems))
	for i, e := range elems {
		parts[i] = Repr(e)
	}
	return open + strings.Join(parts, ", ") + close
}

// Str renders a value the way str() would: strings bare, everything else as
// its representation.
func Str(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	if t, ok := v.(time.Time); ok {
		return t.Format("2006-01-02 15:04:05")
	}
	return Repr(v)
}
