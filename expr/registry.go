package expr

import (
	"errors"
	"sync"
)

var (
	validatorsMu sync.RWMutex
	validators   = map[string]*Callable{}
)

// RegisterValidator makes a validator function available to expressions under
// the given name. Registration happens from package init functions; a
// duplicate name panics.
func RegisterValidator(name string, f func(args []any, kwargs map[string]any) (any, error)) {
	validatorsMu.Lock()
	defer validatorsMu.Unlock()
	if _, dup := validators[name]; dup {
		panic("validator registered twice: " + name)
	}
	validators[name] = &Callable{Name: name, Fn: f}
}

// Validators returns the names of all registered validator functions, for
// diagnostics.
func Validators() []string {
	validatorsMu.RLock()
	defer validatorsMu.RUnlock()
	names := make([]string, 0, len(validators))
	for n := range validators {
		names = append(names, n)
	}
	return names
}

// ValidatorEnv builds the evaluation environment for a validator expression:
// the builtin allow-list, every registered validator function, and the probe
// result bound to "result".
func ValidatorEnv(result any) Env {
	validatorsMu.RLock()
	defer validatorsMu.RUnlock()
	env := make(Env, len(builtins)+len(validators)+1)
	for k, v := range builtins {
		env[k] = v
	}
	for k, v := range validators {
		env[k] = v
	}
	env["result"] = Normalize(result)
	return env
}

// CheckValidator test-evaluates a validator expression at configuration time
// with result bound to None. Evaluation errors are expected at this point
// (the real result is not a None); only syntax errors and unknown names make
// the expression unusable.
func CheckValidator(src string) error {
	_, err := Eval(src, ValidatorEnv(nil))
	var syn *SyntaxError
	var name *NameError
	if errors.As(err, &syn) || errors.As(err, &name) {
		return err
	}
	return nil
}
