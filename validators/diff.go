package validators

import (
	"fmt"
	"math"

	"github.com/netresearch/datamon/expr"
	"github.com/netresearch/datamon/table"
)

func init() {
	expr.RegisterValidator("diff", diff)
}

// diff compares the results of a two-statement job. Every column but the
// last is treated as the row key, the last as the value; rows whose values
// disagree beyond the threshold (or exist on one side only) fail the check.
func diff(args []any, kwargs map[string]any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("diff() takes exactly 1 argument, got %d", len(args))
	}
	threshold := 1e-6
	if v, ok := kwargs["threshold"]; ok {
		f, ok := toFloat(v)
		if !ok {
			return nil, fmt.Errorf("diff() threshold must be a number, got %v", expr.Repr(v))
		}
		threshold = f
	}

	pair, ok := asPair(args[0])
	if !ok {
		return nil, fmt.Errorf("diff() expects the results of exactly 2 sql statements")
	}

	// two scalar results compare directly
	if f1, ok1 := toFloat(pair[0]); ok1 {
		if f2, ok2 := toFloat(pair[1]); ok2 {
			if math.Abs(f1-f2) <= threshold {
				return true, nil
			}
			res := table.New("value_1", "value_2", "diff")
			_ = res.Append(pair[0], pair[1], f1-f2)
			return expr.Tuple{false, expr.Tuple{"diff", res}}, nil
		}
	}

	t1, err := tableOf(pair[0])
	if err != nil {
		return nil, err
	}
	t2, err := tableOf(pair[1])
	if err != nil {
		return nil, err
	}
	if t1.NumRows() == 0 && t2.NumRows() == 0 {
		return true, nil
	}

	cols := t1.Cols
	if len(cols) == 0 {
		cols = t2.Cols
	}
	if len(cols) < 1 {
		return nil, fmt.Errorf("diff() expects at least one result column")
	}
	valCol := cols[len(cols)-1]
	keyCols := cols[:len(cols)-1]

	side1 := indexRows(t1, len(keyCols))
	side2 := indexRows(t2, len(keyCols))

	resCols := append(append([]string{}, keyCols...), valCol+"_1", valCol+"_2", "diff")
	res := table.New(resCols...)

	for _, k := range unionKeys(side1, side2) {
		r1, ok1 := side1.vals[k]
		r2, ok2 := side2.vals[k]
		var v1, v2 any
		if ok1 {
			v1 = r1.val
		}
		if ok2 {
			v2 = r2.val
		}

		var keyVals []any
		if ok1 {
			keyVals = r1.key
		} else {
			keyVals = r2.key
		}

		if ok1 && ok2 {
			f1, n1 := toFloat(expr.Normalize(v1))
			f2, n2 := toFloat(expr.Normalize(v2))
			if n1 && n2 {
				d := f1 - f2
				if math.Abs(d) <= threshold {
					continue
				}
				_ = res.Append(append(append([]any{}, keyVals...), v1, v2, d)...)
				continue
			}
			if expr.Repr(expr.Normalize(v1)) == expr.Repr(expr.Normalize(v2)) {
				continue
			}
		}
		_ = res.Append(append(append([]any{}, keyVals...), v1, v2, nil)...)
	}

	if res.NumRows() == 0 {
		return true, nil
	}
	return expr.Tuple{false, expr.Tuple{"diff", res}}, nil
}

func asPair(v any) ([]any, bool) {
	switch x := v.(type) {
	case expr.List:
		if len(x) == 2 {
			return x, true
		}
	case expr.Tuple:
		if len(x) == 2 {
			return x, true
		}
	}
	return nil, false
}

func tableOf(v any) (*table.Table, error) {
	if t, ok := v.(*table.Table); ok {
		return t, nil
	}
	return nil, fmt.Errorf("diff() expects tabular results, got %s", expr.Repr(v))
}

type keyedRow struct {
	key []any
	val any
}

type rowIndex struct {
	order []string
	vals  map[string]keyedRow
}

func indexRows(t *table.Table, nkeys int) rowIndex {
	idx := rowIndex{vals: make(map[string]keyedRow, t.NumRows())}
	for _, row := range t.Rows {
		key := row[:nkeys]
		k := keyString(key)
		if _, dup := idx.vals[k]; !dup {
			idx.order = append(idx.order, k)
		}
		idx.vals[k] = keyedRow{key: key, val: row[len(row)-1]}
	}
	return idx
}

func keyString(key []any) string {
	s := ""
	for _, v := range key {
		s += expr.Repr(expr.Normalize(v)) + "\x00"
	}
	return s
}

func unionKeys(a, b rowIndex) []string {
	keys := append([]string{}, a.order...)
	for _, k := range b.order {
		if _, ok := a.vals[k]; !ok {
			keys = append(keys, k)
		}
	}
	return keys
}
