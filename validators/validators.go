// Package validators ships the built-in validator functions available to
// job expressions: naive_check, diff, claim and the claim predicates.
// Importing the package (usually blank, from main) registers them.
package validators

import (
	"fmt"

	"github.com/netresearch/datamon/expr"
)

func init() {
	expr.RegisterValidator("naive_check", naiveCheck)
}

// naiveCheck passes when the probe result is a positive number, the
// simplest "data arrived" check.
func naiveCheck(args []any, kwargs map[string]any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("naive_check() takes exactly 1 argument, got %d", len(args))
	}
	f, ok := toFloat(args[0])
	if !ok {
		return nil, fmt.Errorf("naive_check() expects a numeric result, got %v", expr.Repr(args[0]))
	}
	return f > 0, nil
}

func toFloat(v any) (float64, bool) {
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
