package validators

import (
	"fmt"

	"github.com/netresearch/datamon/expr"
	"github.com/netresearch/datamon/table"
)

func init() {
	expr.RegisterValidator("claim", claim)
	expr.RegisterValidator("gt", gt)
	expr.RegisterValidator("lt", lt)
}

// claim asserts a predicate over every value of the probe result: the last
// column of each row for tabular results, the value itself for scalars.
// Usage: claim(result, gt(30)).
func claim(args []any, kwargs map[string]any) (any, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("claim() takes exactly 2 arguments, got %d", len(args))
	}
	pred := args[1]

	switch x := args[0].(type) {
	case *table.Table:
		if len(x.Cols) == 0 {
			return true, nil
		}
		res := table.New(x.Cols...)
		for _, row := range x.Rows {
			ok, err := applyPred(pred, expr.Normalize(row[len(row)-1]))
			if err != nil {
				return nil, err
			}
			if !ok {
				_ = res.Append(row...)
			}
		}
		if res.NumRows() == 0 {
			return true, nil
		}
		return expr.Tuple{false, expr.Tuple{"claim", res}}, nil

	case expr.List, expr.Tuple:
		elems, _ := x.(expr.List)
		if t, ok := x.(expr.Tuple); ok {
			elems = expr.List(t)
		}
		res := table.New("value")
		for _, v := range elems {
			ok, err := applyPred(pred, expr.Normalize(v))
			if err != nil {
				return nil, err
			}
			if !ok {
				_ = res.Append(v)
			}
		}
		if res.NumRows() == 0 {
			return true, nil
		}
		return expr.Tuple{false, expr.Tuple{"claim", res}}, nil

	default:
		ok, err := applyPred(pred, args[0])
		if err != nil {
			return nil, err
		}
		if ok {
			return true, nil
		}
		res := table.New("value")
		_ = res.Append(args[0])
		return expr.Tuple{false, expr.Tuple{"claim", res}}, nil
	}
}

func applyPred(pred, v any) (bool, error) {
	ret, err := expr.Call(pred, []any{v}, nil)
	if err != nil {
		return false, err
	}
	return expr.Truthy(ret), nil
}

// gt builds a greater-than predicate for claim.
func gt(args []any, kwargs map[string]any) (any, error) {
	return comparison("gt", args, func(a, b float64) bool { return a > b })
}

// lt builds a less-than predicate for claim.
func lt(args []any, kwargs map[string]any) (any, error) {
	return comparison("lt", args, func(a, b float64) bool { return a < b })
}

func comparison(name string, args []any, cmp func(a, b float64) bool) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("%s() takes exactly 1 argument, got %d", name, len(args))
	}
	bound, ok := toFloat(args[0])
	if !ok {
		return nil, fmt.Errorf("%s() expects a number, got %v", name, expr.Repr(args[0]))
	}
	return &expr.Callable{
		Name: name,
		Fn: func(args []any, kwargs map[string]any) (any, error) {
			if len(args) != 1 {
				return nil, fmt.Errorf("%s predicate takes exactly 1 value", name)
			}
			f, ok := toFloat(args[0])
			if !ok {
				return false, nil
			}
			return cmp(f, bound), nil
		},
	}, nil
}
