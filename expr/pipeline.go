package expr

// EvalPiped evaluates a filter stage against a piped-in value: a bare name
// f is called as f(val); a call f(a, k=v) becomes f(val, a, k=v).
func EvalPiped(src string, val any, env Env) (any, error) {
	n, err := Parse(src)
	if err != nil {
		return nil, err
	}
	switch x := n.(type) {
	case *nameNode:
		fn, err := evalNode(x, env)
		if err != nil {
			return nil, err
		}
		return Call(fn, []any{val}, nil)
	case *callNode:
		fn, err := evalNode(x.fn, env)
		if err != nil {
			return nil, err
		}
		rest, err := evalAll(x.args, env)
		if err != nil {
			return nil, err
		}
		args := append([]any{val}, rest...)
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
	return nil, evalErrf("expression cannot be used as a filter")
}
