package expr

import (
	"fmt"
	"hash/fnv"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/netresearch/datamon/table"
)

// The builtin allow-list. Exactly these names are visible to validator
// expressions besides registered validator functions and the "result"
// binding; nothing else resolves, by design.
var allowedBuiltins = []string{
	"None", "False", "True", "Ellipsis", "abs", "all", "apply", "basestring",
	"bin", "bool", "bytearray", "bytes", "chr", "cmp", "complex", "dict",
	"divmod", "enumerate", "filter", "float", "format", "frozenset", "hash",
	"hex", "int", "isinstance", "issubclass", "len", "list", "long", "map",
	"max", "memoryview", "min", "next", "oct", "ord", "pow", "range",
	"reduce", "repr", "reversed", "round", "set", "slice", "sorted", "str",
	"sum", "tuple", "zip",
}

// sliceObj is the value produced by the slice() builtin, usable as a
// subscript: xs[slice(0, 10)].
type sliceObj struct {
	lo, hi any // int64 or nil
}

var builtins map[string]any

func init() {
	builtins = buildBuiltins()
	for _, name := range allowedBuiltins {
		if _, ok := builtins[name]; !ok {
			panic("builtin allow-list entry not implemented: " + name)
		}
	}
	for name := range builtins {
		found := false
		for _, allowed := range allowedBuiltins {
			if name == allowed {
				found = true
				break
			}
		}
		if !found {
			panic("builtin not in allow-list: " + name)
		}
	}
}

func fn(name string, f func(args []any, kwargs map[string]any) (any, error)) *Callable {
	return &Callable{Name: name, Fn: f}
}

func wantArgs(name string, args []any, lo, hi int) error {
	if len(args) < lo || (hi >= 0 && len(args) > hi) {
		return evalErrf("%s() got %d arguments", name, len(args))
	}
	return nil
}

func noKwargs(name string, kwargs map[string]any) error {
	if len(kwargs) > 0 {
		return evalErrf("%s() takes no keyword arguments", name)
	}
	return nil
}

func wantInt(name string, v any) (int64, error) {
	n, ok := v.(int64)
	if !ok {
		return 0, evalErrf("%s() expected an integer, got %s", name, typeName(v))
	}
	return n, nil
}

//nolint:gocyclo // one closure per builtin name; splitting would obscure the table
func buildBuiltins() map[string]any {
	b := map[string]any{
		"None":     nil,
		"False":    false,
		"True":     true,
		"Ellipsis": ellipsisVal{},
	}

	intType := &TypeObj{
		Name: "int",
		Is:   func(v any) bool { _, ok := v.(int64); return ok },
		Convert: func(args []any) (any, error) {
			if err := wantArgs("int", args, 0, 2); err != nil {
				return nil, err
			}
			if len(args) == 0 {
				return int64(0), nil
			}
			base := int64(10)
			if len(args) == 2 {
				n, err := wantInt("int", args[1])
				if err != nil {
					return nil, err
				}
				base = n
			}
			switch x := args[0].(type) {
			case int64:
				return x, nil
			case float64:
				return int64(math.Trunc(x)), nil
			case bool:
				if x {
					return int64(1), nil
				}
				return int64(0), nil
			case string:
				n, err := strconv.ParseInt(strings.TrimSpace(x), int(base), 64)
				if err != nil {
					return nil, evalErrf("invalid literal for int(): %q", x)
				}
				return n, nil
			}
			return nil, evalErrf("int() argument must be a string or a number, not %s", typeName(args[0]))
		},
	}

	floatType := &TypeObj{
		Name: "float",
		Is:   func(v any) bool { _, ok := v.(float64); return ok },
		Convert: func(args []any) (any, error) {
			if err := wantArgs("float", args, 0, 1); err != nil {
				return nil, err
			}
			if len(args) == 0 {
				return float64(0), nil
			}
			switch x := args[0].(type) {
			case float64:
				return x, nil
			case int64:
				return float64(x), nil
			case bool:
				if x {
					return float64(1), nil
				}
				return float64(0), nil
			case string:
				f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
				if err != nil {
					return nil, evalErrf("could not convert string to float: %q", x)
				}
				return f, nil
			}
			return nil, evalErrf("float() argument must be a string or a number, not %s", typeName(args[0]))
		},
	}

	strType := &TypeObj{
		Name: "str",
		Is:   func(v any) bool { _, ok := v.(string); return ok },
		Convert: func(args []any) (any, error) {
			if err := wantArgs("str", args, 0, 1); err != nil {
				return nil, err
			}
			if len(args) == 0 {
				return "", nil
			}
			return Str(args[0]), nil
		},
	}

	boolType := &TypeObj{
		Name: "bool",
		Is:   func(v any) bool { _, ok := v.(bool); return ok },
		Convert: func(args []any) (any, error) {
			if err := wantArgs("bool", args, 0, 1); err != nil {
				return nil, err
			}
			if len(args) == 0 {
				return false, nil
			}
			return Truthy(args[0]), nil
		},
	}

	listType := &TypeObj{
		Name: "list",
		Is:   func(v any) bool { _, ok := v.(List); return ok },
		Convert: func(args []any) (any, error) {
			if err := wantArgs("list", args, 0, 1); err != nil {
				return nil, err
			}
			if len(args) == 0 {
				return List{}, nil
			}
			elems, err := iterate(args[0])
			if err != nil {
				return nil, err
			}
			return List(append([]any(nil), elems...)), nil
		},
	}

	tupleType := &TypeObj{
		Name: "tuple",
		Is:   func(v any) bool { _, ok := v.(Tuple); return ok },
		Convert: func(args []any) (any, error) {
			if err := wantArgs("tuple", args, 0, 1); err != nil {
				return nil, err
			}
			if len(args) == 0 {
				return Tuple{}, nil
			}
			elems, err := iterate(args[0])
			if err != nil {
				return nil, err
			}
			return Tuple(append([]any(nil), elems...)), nil
		},
	}

	setType := &TypeObj{
		Name: "set",
		Is:   func(v any) bool { _, ok := v.(*Set); return ok },
		Convert: func(args []any) (any, error) {
			if err := wantArgs("set", args, 0, 1); err != nil {
				return nil, err
			}
			if len(args) == 0 {
				return NewSet(), nil
			}
			elems, err := iterate(args[0])
			if err != nil {
				return nil, err
			}
			return NewSet(elems...), nil
		},
	}

	b["int"] = intType
	b["long"] = &TypeObj{Name: "long", Is: intType.Is, Convert: intType.Convert}
	b["float"] = floatType
	b["str"] = strType
	b["bool"] = boolType
	b["list"] = listType
	b["tuple"] = tupleType
	b["set"] = setType
	b["frozenset"] = &TypeObj{Name: "frozenset", Is: setType.Is, Convert: setType.Convert}

	b["basestring"] = &TypeObj{
		Name: "basestring",
		Is:   strType.Is,
		Convert: func([]any) (any, error) {
			return nil, evalErrf("basestring cannot be instantiated")
		},
	}
	b["bytes"] = &TypeObj{Name: "bytes", Is: strType.Is, Convert: strType.Convert}
	b["bytearray"] = &TypeObj{Name: "bytearray", Is: strType.Is, Convert: strType.Convert}
	b["memoryview"] = &TypeObj{
		Name: "memoryview",
		Is:   func(any) bool { return false },
		Convert: func(args []any) (any, error) {
			if err := wantArgs("memoryview", args, 1, 1); err != nil {
				return nil, err
			}
			return args[0], nil
		},
	}
	b["complex"] = &TypeObj{
		Name: "complex",
		Is:   func(any) bool { return false },
		Convert: func([]any) (any, error) {
			return nil, evalErrf("complex numbers are not supported")
		},
	}

	b["dict"] = &TypeObj{
		Name: "dict",
		Is:   func(v any) bool { _, ok := v.(Dict); return ok },
		Convert: func(args []any) (any, error) {
			if err := wantArgs("dict", args, 0, 1); err != nil {
				return nil, err
			}
			d := Dict{}
			if len(args) == 1 {
				pairs, err := iterate(args[0])
				if err != nil {
					return nil, err
				}
				for _, p := range pairs {
					kv, ok := seqOf(p)
					if !ok || len(kv) != 2 {
						return nil, evalErrf("dict() requires (key, value) pairs")
					}
					d[Str(kv[0])] = kv[1]
				}
			}
			return d, nil
		},
	}

	b["slice"] = &TypeObj{
		Name: "slice",
		Is:   func(v any) bool { _, ok := v.(sliceObj); return ok },
		Convert: func(args []any) (any, error) {
			if err := wantArgs("slice", args, 1, 2); err != nil {
				return nil, err
			}
			if len(args) == 1 {
				return sliceObj{hi: args[0]}, nil
			}
			return sliceObj{lo: args[0], hi: args[1]}, nil
		},
	}

	b["abs"] = fn("abs", func(args []any, kwargs map[string]any) (any, error) {
		if err := wantArgs("abs", args, 1, 1); err != nil {
			return nil, err
		}
		switch x := args[0].(type) {
		case int64:
			if x < 0 {
				return -x, nil
			}
			return x, nil
		case float64:
			return math.Abs(x), nil
		}
		return nil, evalErrf("bad operand type for abs(): %s", typeName(args[0]))
	})

	b["all"] = fn("all", func(args []any, kwargs map[string]any) (any, error) {
		if err := wantArgs("all", args, 1, 1); err != nil {
			return nil, err
		}
		elems, err := iterate(args[0])
		if err != nil {
			return nil, err
		}
		for _, e := range elems {
			if !Truthy(e) {
				return false, nil
			}
		}
		return true, nil
	})

	b["apply"] = fn("apply", func(args []any, kwargs map[string]any) (any, error) {
		if err := wantArgs("apply", args, 1, 2); err != nil {
			return nil, err
		}
		var callArgs []any
		if len(args) == 2 {
			elems, err := iterate(args[1])
			if err != nil {
				return nil, err
			}
			callArgs = elems
		}
		return Call(args[0], callArgs, nil)
	})

	b["bin"] = intFormatter("bin", 2, "0b")
	b["oct"] = intFormatter("oct", 8, "0o")
	b["hex"] = intFormatter("hex", 16, "0x")

	b["chr"] = fn("chr", func(args []any, kwargs map[string]any) (any, error) {
		if err := wantArgs("chr", args, 1, 1); err != nil {
			return nil, err
		}
		n, err := wantInt("chr", args[0])
		if err != nil {
			return nil, err
		}
		return string(rune(n)), nil
	})

	b["ord"] = fn("ord", func(args []any, kwargs map[string]any) (any, error) {
		if err := wantArgs("ord", args, 1, 1); err != nil {
			return nil, err
		}
		s, ok := args[0].(string)
		if !ok {
			return nil, evalErrf("ord() expected a string, got %s", typeName(args[0]))
		}
		runes := []rune(s)
		if len(runes) != 1 {
			return nil, evalErrf("ord() expected a character, got a string of length %d", len(runes))
		}
		return int64(runes[0]), nil
	})

	b["cmp"] = fn("cmp", func(args []any, kwargs map[string]any) (any, error) {
		if err := wantArgs("cmp", args, 2, 2); err != nil {
			return nil, err
		}
		if equal(args[0], args[1]) {
			return int64(0), nil
		}
		c, err := order(args[0], args[1])
		if err != nil {
			return nil, err
		}
		return int64(c), nil
	})

	b["divmod"] = fn("divmod", func(args []any, kwargs map[string]any) (any, error) {
		if err := wantArgs("divmod", args, 2, 2); err != nil {
			return nil, err
		}
		q, err := evalBinary("//", args[0], args[1])
		if err != nil {
			return nil, err
		}
		r, err := evalBinary("%", args[0], args[1])
		if err != nil {
			return nil, err
		}
		return Tuple{q, r}, nil
	})

	b["enumerate"] = fn("enumerate", func(args []any, kwargs map[string]any) (any, error) {
		if err := wantArgs("enumerate", args, 1, 2); err != nil {
			return nil, err
		}
		start := int64(0)
		if len(args) == 2 {
			n, err := wantInt("enumerate", args[1])
			if err != nil {
				return nil, err
			}
			start = n
		}
		elems, err := iterate(args[0])
		if err != nil {
			return nil, err
		}
		out := make(List, len(elems))
		for i, e := range elems {
			out[i] = Tuple{start + int64(i), e}
		}
		return out, nil
	})

	b["filter"] = fn("filter", func(args []any, kwargs map[string]any) (any, error) {
		if err := wantArgs("filter", args, 2, 2); err != nil {
			return nil, err
		}
		elems, err := iterate(args[1])
		if err != nil {
			return nil, err
		}
		out := make(List, 0, len(elems))
		for _, e := range elems {
			keep := false
			if args[0] == nil {
				keep = Truthy(e)
			} else {
				res, err := Call(args[0], []any{e}, nil)
				if err != nil {
					return nil, err
				}
				keep = Truthy(res)
			}
			if keep {
				out = append(out, e)
			}
		}
		return out, nil
	})

	b["map"] = fn("map", func(args []any, kwargs map[string]any) (any, error) {
		if err := wantArgs("map", args, 2, -1); err != nil {
			return nil, err
		}
		seqs := make([][]any, len(args)-1)
		shortest := -1
		for i, a := range args[1:] {
			elems, err := iterate(a)
			if err != nil {
				return nil, err
			}
			seqs[i] = elems
			if shortest < 0 || len(elems) < shortest {
				shortest = len(elems)
			}
		}
		out := make(List, shortest)
		for i := 0; i < shortest; i++ {
			callArgs := make([]any, len(seqs))
			for j, s := range seqs {
				callArgs[j] = s[i]
			}
			res, err := Call(args[0], callArgs, nil)
			if err != nil {
				return nil, err
			}
			out[i] = res
		}
		return out, nil
	})

	b["format"] = fn("format", func(args []any, kwargs map[string]any) (any, error) {
		if err := wantArgs("format", args, 1, 2); err != nil {
			return nil, err
		}
		if len(args) == 1 {
			return Str(args[0]), nil
		}
		spec, ok := args[1].(string)
		if !ok || spec == "" {
			return Str(args[0]), nil
		}
		switch spec[len(spec)-1] {
		case 'd':
			n, err := wantInt("format", args[0])
			if err != nil {
				return nil, err
			}
			return fmt.Sprintf("%"+spec, n), nil
		case 'f', 'e', 'g':
			f, ok := asFloat(args[0])
			if !ok {
				return nil, evalErrf("format() expected a number for spec %q", spec)
			}
			return fmt.Sprintf("%"+spec, f), nil
		}
		return Str(args[0]), nil
	})

	b["hash"] = fn("hash", func(args []any, kwargs map[string]any) (any, error) {
		if err := wantArgs("hash", args, 1, 1); err != nil {
			return nil, err
		}
		h := fnv.New64a()
		_, _ = h.Write([]byte(Repr(args[0])))
		return int64(h.Sum64()), nil //nolint:gosec // wraparound is fine for a hash value
	})

	b["isinstance"] = fn("isinstance", func(args []any, kwargs map[string]any) (any, error) {
		if err := wantArgs("isinstance", args, 2, 2); err != nil {
			return nil, err
		}
		return matchesType(args[0], args[1])
	})

	b["issubclass"] = fn("issubclass", func(args []any, kwargs map[string]any) (any, error) {
		if err := wantArgs("issubclass", args, 2, 2); err != nil {
			return nil, err
		}
		t1, ok := args[0].(*TypeObj)
		if !ok {
			return nil, evalErrf("issubclass() arg 1 must be a type")
		}
		switch t2 := args[1].(type) {
		case *TypeObj:
			return typeIsSub(t1, t2), nil
		case Tuple:
			for _, t := range t2 {
				to, ok := t.(*TypeObj)
				if !ok {
					return nil, evalErrf("issubclass() arg 2 must be a type or tuple of types")
				}
				if typeIsSub(t1, to) {
					return true, nil
				}
			}
			return false, nil
		}
		return nil, evalErrf("issubclass() arg 2 must be a type or tuple of types")
	})

	b["len"] = fn("len", func(args []any, kwargs map[string]any) (any, error) {
		if err := wantArgs("len", args, 1, 1); err != nil {
			return nil, err
		}
		return lengthOf(args[0])
	})

	b["max"] = extremum("max", 1)
	b["min"] = extremum("min", -1)

	b["next"] = fn("next", func(args []any, kwargs map[string]any) (any, error) {
		if err := wantArgs("next", args, 1, 2); err != nil {
			return nil, err
		}
		elems, err := iterate(args[0])
		if err != nil {
			return nil, err
		}
		if len(elems) > 0 {
			return elems[0], nil
		}
		if len(args) == 2 {
			return args[1], nil
		}
		return nil, evalErrf("next() on an empty sequence")
	})

	b["pow"] = fn("pow", func(args []any, kwargs map[string]any) (any, error) {
		if err := wantArgs("pow", args, 2, 3); err != nil {
			return nil, err
		}
		res, err := evalBinary("**", args[0], args[1])
		if err != nil {
			return nil, err
		}
		if len(args) == 3 {
			return evalBinary("%", res, args[2])
		}
		return res, nil
	})

	b["range"] = fn("range", func(args []any, kwargs map[string]any) (any, error) {
		if err := wantArgs("range", args, 1, 3); err != nil {
			return nil, err
		}
		nums := make([]int64, len(args))
		for i, a := range args {
			n, err := wantInt("range", a)
			if err != nil {
				return nil, err
			}
			nums[i] = n
		}
		start, stop, step := int64(0), int64(0), int64(1)
		switch len(args) {
		case 1:
			stop = nums[0]
		case 2:
			start, stop = nums[0], nums[1]
		case 3:
			start, stop, step = nums[0], nums[1], nums[2]
			if step == 0 {
				return nil, evalErrf("range() step must not be zero")
			}
		}
		var out List
		if step > 0 {
			for i := start; i < stop; i += step {
				out = append(out, i)
			}
		} else {
			for i := start; i > stop; i += step {
				out = append(out, i)
			}
		}
		return out, nil
	})

	b["reduce"] = fn("reduce", func(args []any, kwargs map[string]any) (any, error) {
		if err := wantArgs("reduce", args, 2, 3); err != nil {
			return nil, err
		}
		elems, err := iterate(args[1])
		if err != nil {
			return nil, err
		}
		var acc any
		start := 0
		if len(args) == 3 {
			acc = args[2]
		} else {
			if len(elems) == 0 {
				return nil, evalErrf("reduce() of empty sequence with no initial value")
			}
			acc = elems[0]
			start = 1
		}
		for _, e := range elems[start:] {
			acc, err = Call(args[0], []any{acc, e}, nil)
			if err != nil {
				return nil, err
			}
		}
		return acc, nil
	})

	b["repr"] = fn("repr", func(args []any, kwargs map[string]any) (any, error) {
		if err := wantArgs("repr", args, 1, 1); err != nil {
			return nil, err
		}
		return Repr(args[0]), nil
	})

	b["reversed"] = fn("reversed", func(args []any, kwargs map[string]any) (any, error) {
		if err := wantArgs("reversed", args, 1, 1); err != nil {
			return nil, err
		}
		elems, err := iterate(args[0])
		if err != nil {
			return nil, err
		}
		out := make(List, len(elems))
		for i, e := range elems {
			out[len(elems)-1-i] = e
		}
		return out, nil
	})

	b["round"] = fn("round", func(args []any, kwargs map[string]any) (any, error) {
		if err := wantArgs("round", args, 1, 2); err != nil {
			return nil, err
		}
		f, ok := asFloat(args[0])
		if !ok {
			return nil, evalErrf("round() expected a number, got %s", typeName(args[0]))
		}
		if len(args) == 1 {
			return int64(math.Round(f)), nil
		}
		n, err := wantInt("round", args[1])
		if err != nil {
			return nil, err
		}
		scale := math.Pow(10, float64(n))
		return math.Round(f*scale) / scale, nil
	})

	b["sorted"] = fn("sorted", func(args []any, kwargs map[string]any) (any, error) {
		if err := wantArgs("sorted", args, 1, 1); err != nil {
			return nil, err
		}
		reverse := false
		if v, ok := kwargs["reverse"]; ok {
			reverse = Truthy(v)
		}
		elems, err := iterate(args[0])
		if err != nil {
			return nil, err
		}
		out := List(append([]any(nil), elems...))
		var sortErr error
		sort.SliceStable(out, func(i, j int) bool {
			c, err := order(out[i], out[j])
			if err != nil && sortErr == nil {
				sortErr = err
			}
			if reverse {
				return c > 0
			}
			return c < 0
		})
		if sortErr != nil {
			return nil, sortErr
		}
		return out, nil
	})

	b["sum"] = fn("sum", func(args []any, kwargs map[string]any) (any, error) {
		if err := wantArgs("sum", args, 1, 2); err != nil {
			return nil, err
		}
		elems, err := iterate(args[0])
		if err != nil {
			return nil, err
		}
		var acc any = int64(0)
		if len(args) == 2 {
			acc = args[1]
		}
		for _, e := range elems {
			acc, err = evalBinary("+", acc, Normalize(e))
			if err != nil {
				return nil, err
			}
		}
		return acc, nil
	})

	b["zip"] = fn("zip", func(args []any, kwargs map[string]any) (any, error) {
		if len(args) == 0 {
			return List{}, nil
		}
		seqs := make([][]any, len(args))
		shortest := -1
		for i, a := range args {
			elems, err := iterate(a)
			if err != nil {
				return nil, err
			}
			seqs[i] = elems
			if shortest < 0 || len(elems) < shortest {
				shortest = len(elems)
			}
		}
		out := make(List, shortest)
		for i := 0; i < shortest; i++ {
			t := make(Tuple, len(seqs))
			for j, s := range seqs {
				t[j] = s[i]
			}
			out[i] = t
		}
		return out, nil
	})

	return b
}

func intFormatter(name string, base int, prefix string) *Callable {
	return fn(name, func(args []any, kwargs map[string]any) (any, error) {
		if err := wantArgs(name, args, 1, 1); err != nil {
			return nil, err
		}
		n, err := wantInt(name, args[0])
		if err != nil {
			return nil, err
		}
		if n < 0 {
			return "-" + prefix + strconv.FormatInt(-n, base), nil
		}
		return prefix + strconv.FormatInt(n, base), nil
	})
}

func extremum(name string, want int) *Callable {
	return fn(name, func(args []any, kwargs map[string]any) (any, error) {
		if err := noKwargs(name, kwargs); err != nil {
			return nil, err
		}
		if err := wantArgs(name, args, 1, -1); err != nil {
			return nil, err
		}
		elems := args
		if len(args) == 1 {
			var err error
			elems, err = iterate(args[0])
			if err != nil {
				return nil, err
			}
		}
		if len(elems) == 0 {
			return nil, evalErrf("%s() of an empty sequence", name)
		}
		best := elems[0]
		for _, e := range elems[1:] {
			c, err := order(e, best)
			if err != nil {
				return nil, err
			}
			if c == want {
				best = e
			}
		}
		return best, nil
	})
}

func lengthOf(v any) (any, error) {
	switch x := v.(type) {
	case string:
		return int64(len([]rune(x))), nil
	case List:
		return int64(len(x)), nil
	case Tuple:
		return int64(len(x)), nil
	case Dict:
		return int64(len(x)), nil
	case *Set:
		return int64(x.Len()), nil
	case *table.Table:
		return int64(x.NumRows()), nil
	case table.Row:
		return int64(len(x.Vals)), nil
	}
	return nil, evalErrf("object of type %s has no len()", typeName(v))
}

func matchesType(v, t any) (any, error) {
	switch tt := t.(type) {
	case *TypeObj:
		return tt.Is(v), nil
	case Tuple:
		for _, e := range tt {
			to, ok := e.(*TypeObj)
			if !ok {
				return nil, evalErrf("isinstance() arg 2 must be a type or tuple of types")
			}
			if to.Is(v) {
				return true, nil
			}
		}
		return false, nil
	}
	return nil, evalErrf("isinstance() arg 2 must be a type or tuple of types")
}

func typeIsSub(t1, t2 *TypeObj) bool {
	if t1.Name == t2.Name {
		return true
	}
	// bool is a subtype of int; str descends from basestring
	if t1.Name == "bool" && (t2.Name == "int" || t2.Name == "long") {
		return true
	}
	if (t1.Name == "str" || t1.Name == "bytes") && t2.Name == "basestring" {
		return true
	}
	return false
}
