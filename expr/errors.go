package expr

import "fmt"

// SyntaxError reports malformed expression source. It is one of the two error
// classes that make a validator expression fatally invalid at config time.
type SyntaxError struct {
	Pos int
	Msg string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at position %d: %s", e.Pos, e.Msg)
}

// NameError reports a free name that is neither a builtin, a registered
// validator function, nor bound in the evaluation environment.
type NameError struct {
	Name string
}

func (e *NameError) Error() string {
	return fmt.Sprintf("name %q is not defined", e.Name)
}

// EvalError reports any other runtime evaluation fault, e.g. a type mismatch
// or an index out of range. During the config-time test evaluation these are
// ignored; at run time they fail the job.
type EvalError struct {
	Msg string
}

func (e *EvalError) Error() string { return e.Msg }

func evalErrf(format string, args ...any) error {
	return &EvalError{Msg: fmt.Sprintf(format, args...)}
}
