package template

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/netresearch/datamon/expr"
)

var (
	filtersMu sync.RWMutex
	filters   = map[string]*expr.Callable{}
)

// RegisterFilter makes a filter function available to templates under the
// given name, usable both with pipe syntax and as a plain function call.
// Registration happens from package init functions; a duplicate name panics.
func RegisterFilter(name string, f func(args []any, kwargs map[string]any) (any, error)) {
	filtersMu.Lock()
	defer filtersMu.Unlock()
	if _, dup := filters[name]; dup {
		panic("filter registered twice: " + name)
	}
	filters[name] = &expr.Callable{Name: name, Fn: f}
}

// Filters returns the names of all registered filter functions.
func Filters() []string {
	filtersMu.RLock()
	defer filtersMu.RUnlock()
	names := make([]string, 0, len(filters))
	for n := range filters {
		names = append(names, n)
	}
	return names
}

func filterEnv(globals map[string]any) expr.Env {
	filtersMu.RLock()
	defer filtersMu.RUnlock()
	env := make(expr.Env, len(filters)+len(globals))
	for k, v := range filters {
		env[k] = v
	}
	for k, v := range globals {
		env[k] = v
	}
	return env
}

func init() {
	RegisterFilter("dt_add", dtAdd)
	RegisterFilter("dt_set", dtSet)
	RegisterFilter("dt_format", dtFormat)
}

func filterTime(name string, args []any) (time.Time, error) {
	if len(args) < 1 {
		return time.Time{}, fmt.Errorf("%s: missing input value", name)
	}
	switch x := args[0].(type) {
	case time.Time:
		return x, nil
	case string:
		return ParseTime(x)
	}
	return time.Time{}, fmt.Errorf("%s: cannot interpret %T as a date/time", name, args[0])
}

func filterInt(name, key string, v any) (int, error) {
	switch n := v.(type) {
	case int64:
		return int(n), nil
	case float64:
		if n == float64(int64(n)) {
			return int(n), nil
		}
	}
	return 0, fmt.Errorf("%s: %s must be an integer, got %v", name, key, v)
}

// dtAdd adds a relative offset to a date/time. Offset keys accept both
// singular and plural forms, e.g. dt_add(day=-1) and dt_add(days=-1).
func dtAdd(args []any, kwargs map[string]any) (any, error) {
	dt, err := filterTime("dt_add", args)
	if err != nil {
		return nil, err
	}
	if len(args) > 1 {
		return nil, fmt.Errorf("dt_add: offsets must be keyword arguments")
	}
	years, months := 0, 0
	var d time.Duration
	for key, v := range kwargs {
		unit := strings.TrimSuffix(key, "s")
		switch unit {
		case "year", "month":
			n, err := filterInt("dt_add", key, v)
			if err != nil {
				return nil, err
			}
			if unit == "year" {
				years += n
			} else {
				months += n
			}
		case "week", "day", "hour", "minute", "second", "microsecond":
			f, ok := toFloat(v)
			if !ok {
				return nil, fmt.Errorf("dt_add: %s must be a number, got %v", key, v)
			}
			d += time.Duration(f * float64(durationUnits[unit]))
		default:
			return nil, fmt.Errorf("dt_add: unknown offset %q", key)
		}
	}
	return dt.AddDate(years, months, 0).Add(d), nil
}

var durationUnits = map[string]time.Duration{
	"week":        7 * 24 * time.Hour,
	"day":         24 * time.Hour,
	"hour":        time.Hour,
	"minute":      time.Minute,
	"second":      time.Second,
	"microsecond": time.Microsecond,
}

// dtSet overrides individual fields of a date/time, e.g.
// dt_set(day=1, hour=9). A weekday field (1 = Monday … 7 = Sunday) moves
// within the current week and cannot be combined with year/month/day.
func dtSet(args []any, kwargs map[string]any) (any, error) {
	dt, err := filterTime("dt_set", args)
	if err != nil {
		return nil, err
	}
	if len(args) > 1 {
		return nil, fmt.Errorf("dt_set: fields must be keyword arguments")
	}
	if _, hasWeekday := kwargs["weekday"]; hasWeekday {
		for _, k := range []string{"year", "month", "day"} {
			if _, ok := kwargs[k]; ok {
				return nil, fmt.Errorf("dt_set: weekday cannot be combined with %s", k)
			}
		}
	}
	year, month, day := dt.Year(), int(dt.Month()), dt.Day()
	hour, minute, sec, nsec := dt.Hour(), dt.Minute(), dt.Second(), dt.Nanosecond()
	weekdayShift := 0
	for key, v := range kwargs {
		n, err := filterInt("dt_set", key, v)
		if err != nil {
			return nil, err
		}
		switch key {
		case "year":
			year = n
		case "month":
			month = n
		case "day":
			day = n
		case "hour":
			hour = n
		case "minute":
			minute = n
		case "second":
			sec = n
		case "microsecond":
			nsec = n * 1000
		case "weekday":
			if n < 1 || n > 7 {
				return nil, fmt.Errorf("dt_set: weekday must be in 1..7, got %d", n)
			}
			weekdayShift = n - isoWeekday(dt)
		default:
			return nil, fmt.Errorf("dt_set: unknown field %q", key)
		}
	}
	out := time.Date(year, time.Month(month), day, hour, minute, sec, nsec, dt.Location())
	if weekdayShift != 0 {
		out = out.AddDate(0, 0, weekdayShift)
	}
	return out, nil
}

// dtFormat formats a date/time with a strftime-style pattern.
func dtFormat(args []any, kwargs map[string]any) (any, error) {
	dt, err := filterTime("dt_format", args)
	if err != nil {
		return nil, err
	}
	pattern := "%Y-%m-%d %H:%M:%S"
	if len(args) > 1 {
		s, ok := args[1].(string)
		if !ok {
			return nil, fmt.Errorf("dt_format: pattern must be a string")
		}
		pattern = s
	} else if v, ok := kwargs["fmt"]; ok {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("dt_format: pattern must be a string")
		}
		pattern = s
	}
	return Strftime(dt, pattern), nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
