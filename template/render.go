// Package template implements the `{expression | filter(...)}` renderer
// applied to job config options. Rendering happens in two passes: pass 1 at
// load time with BASETIME in scope, pass 2 per scheduled instance with
// DUETIME in scope. DUETIME blocks are escaped during pass 1 because the due
// time is not known until the due_time option itself has been parsed.
package template

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/netresearch/datamon/expr"
)

var (
	blockRe   = regexp.MustCompile(`\{([^{}]*)\}`)
	dueTimeRe = regexp.MustCompile(`\{([^{}]*DUETIME[^{}]*)\}`)
)

// Escape markers stand in for the braces of deferred blocks so pass 1 does
// not try to render them.
const (
	escOpen  = "\x01"
	escClose = "\x02"
)

// Render expands every {expression} block of s against the given globals and
// the filter registry. A string without braces is returned unchanged.
func Render(s string, globals map[string]any) (string, error) {
	if !strings.Contains(s, "{") {
		return s, nil
	}
	env := filterEnv(globals)
	var renderErr error
	out := blockRe.ReplaceAllStringFunc(s, func(block string) string {
		if renderErr != nil {
			return block
		}
		src := block[1 : len(block)-1]
		v, err := evalPipeline(src, env)
		if err != nil {
			renderErr = fmt.Errorf("block {%s}: %w", src, err)
			return block
		}
		return expr.Str(v)
	})
	if renderErr != nil {
		return "", renderErr
	}
	return out, nil
}

// evalPipeline evaluates "head | f1 | f2(args)": the head expression first,
// then each filter stage applied to the running value.
func evalPipeline(src string, env expr.Env) (any, error) {
	stages := splitPipes(src)
	v, err := expr.Eval(stages[0], env)
	if err != nil {
		return nil, err
	}
	for _, stage := range stages[1:] {
		v, err = expr.EvalPiped(stage, v, env)
		if err != nil {
			return nil, err
		}
	}
	return v, nil
}

// splitPipes splits on '|' at the top level, ignoring pipes inside string
// literals, parentheses and brackets.
func splitPipes(src string) []string {
	var parts []string
	depth := 0
	var quote byte
	start := 0
	for i := 0; i < len(src); i++ {
		c := src[i]
		if quote != 0 {
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"':
			quote = c
		case '(', '[':
			depth++
		case ')', ']':
			depth--
		case '|':
			if depth == 0 {
				parts = append(parts, strings.TrimSpace(src[start:i]))
				start = i + 1
			}
		}
	}
	return append(parts, strings.TrimSpace(src[start:]))
}

// Pass1 renders every string option of a raw job section in place with
// BASETIME (today at midnight) in scope, leaving DUETIME blocks untouched.
func Pass1(opts map[string]string, basetime time.Time) error {
	globals := map[string]any{"BASETIME": basetime}
	for k, v := range opts {
		if !strings.Contains(v, "{") {
			continue
		}
		escaped := dueTimeRe.ReplaceAllString(v, escOpen+"$1"+escClose)
		rendered, err := Render(escaped, globals)
		if err != nil {
			return fmt.Errorf("option `%s=%s` render error: %w", k, v, err)
		}
		opts[k] = unescape(rendered)
	}
	return nil
}

func unescape(s string) string {
	s = strings.ReplaceAll(s, escOpen, "{")
	return strings.ReplaceAll(s, escClose, "}")
}

// Pass2 renders one due-time dependent option with DUETIME in scope.
func Pass2(s string, dueTime time.Time) (string, error) {
	return Render(s, map[string]any{"DUETIME": dueTime})
}

// Pass2All renders a list of due-time dependent options in one go.
func Pass2All(ss []string, dueTime time.Time) ([]string, error) {
	joined, err := Pass2(strings.Join(ss, escOpen), dueTime)
	if err != nil {
		return nil, err
	}
	return strings.Split(joined, escOpen), nil
}
