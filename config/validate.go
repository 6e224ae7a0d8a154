package config

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/netresearch/datamon/core"
	"github.com/netresearch/datamon/expr"
	"github.com/netresearch/datamon/template"
)

// requiredOptions of a job section. alarm_im and alarm_email are split off
// before this check so config_error alerts can still reach someone.
var requiredOptions = []string{
	"desc", "period", "is_active", "alarm_im", "alarm_email", "due_time",
	"datasources", "sql", "validator", "retry_times", "retry_interval",
}

var (
	retryIntervalRe = regexp.MustCompile(`^\d{1,2}:\d{1,2}(:\d{1,2})?$`)
	sqlInterpRe     = regexp.MustCompile(`%\(([^)]+)\)s`)
)

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// CheckOut validates one raw job section and produces a ready-to-run Job.
// The returned recipient lists are usable even when err != nil, so the
// caller can dispatch a config_error alert for the broken section.
func CheckOut(name string, opts map[string]string, dbs map[string]*core.DatasourceConfig, now time.Time) (job *core.Job, alarmIM, alarmEmail []string, err error) {
	alarmIM = splitList(opts["alarm_im"])
	alarmEmail = splitList(opts["alarm_email"])

	for _, op := range requiredOptions {
		if _, ok := opts[op]; !ok {
			return nil, alarmIM, alarmEmail, core.ConfigErrorf("option %q is required", op)
		}
	}

	if !contains(core.Periods, opts["period"]) {
		return nil, alarmIM, alarmEmail, core.ConfigErrorf("option %q should be in %q", "period", core.Periods)
	}
	isActive := strings.ToLower(opts["is_active"])
	if isActive != "true" && isActive != "false" {
		return nil, alarmIM, alarmEmail, core.ConfigErrorf("option %q should be in %q", "is_active", []string{"true", "false"})
	}

	// pass-1 rendering, BASETIME = today at midnight
	basetime := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if err := template.Pass1(opts, basetime); err != nil {
		return nil, alarmIM, alarmEmail, core.ConfigErrorf("failed rendering config: \n%v", err)
	}

	dueTime, err := template.ParseTimeAt(opts["due_time"], now)
	if err != nil {
		return nil, alarmIM, alarmEmail, core.ConfigErrorf("due_time %q can not be parsed", opts["due_time"])
	}

	retryTimes, err := strconv.Atoi(opts["retry_times"])
	if err != nil || retryTimes < 0 {
		return nil, alarmIM, alarmEmail, core.ConfigErrorf(
			"option %q should be a non-negative integer, but %q got", "retry_times", opts["retry_times"])
	}

	retryInterval, err := parseRetryInterval(opts["retry_interval"])
	if err != nil {
		return nil, alarmIM, alarmEmail, err
	}

	dsNames := splitList(opts["datasources"])
	var databases []string
	if opts["database"] != "" {
		databases = splitList(opts["database"])
	} else {
		databases = make([]string, len(dsNames))
	}
	sqls := splitSQL(opts["sql"])

	if len(databases) != 0 && len(databases) != len(dsNames) {
		return nil, alarmIM, alarmEmail, core.ConfigErrorf(
			"%q contains %d elements but %q contains %d", "datasources", len(dsNames), "database", len(databases))
	}
	if len(dsNames) == 0 || len(dsNames) != len(sqls) {
		return nil, alarmIM, alarmEmail, core.ConfigErrorf(
			"%q contains %d elements but %q contains %d", "datasources", len(dsNames), "sql", len(sqls))
	}

	for _, ds := range dsNames {
		if _, ok := dbs[ds]; !ok {
			return nil, alarmIM, alarmEmail, core.ConfigErrorf(
				"invalid datasource %q, should be in %q", ds, datasourceNames(dbs))
		}
	}

	for i, s := range sqls {
		if !looksLikePath(s) {
			continue
		}
		loaded, err := loadSQLFile(s, opts)
		if err != nil {
			return nil, alarmIM, alarmEmail, err
		}
		sqls[i] = loaded
	}

	// check a preview render; the final render happens per scheduled
	// instance with that instance's own due time
	preview, err := template.Pass2(opts["validator"], dueTime)
	if err != nil {
		return nil, alarmIM, alarmEmail, core.ConfigErrorf("failed rendering config: \n%v", err)
	}
	if err := expr.CheckValidator(preview); err != nil {
		return nil, alarmIM, alarmEmail, core.ConfigErrorf("error in option %q: %v", "validator", err)
	}

	datasources := make([]*core.DatasourceConfig, len(dsNames))
	for i, dsName := range dsNames {
		ds := dbs[dsName]
		if databases[i] != "" {
			ds = ds.WithDatabase(databases[i])
		}
		datasources[i] = ds
	}

	job = &core.Job{
		Name:          name,
		Desc:          opts["desc"],
		Period:        opts["period"],
		IsActive:      isActive == "true",
		AlarmIM:       alarmIM,
		AlarmEmail:    alarmEmail,
		DueTime:       dueTime,
		Datasources:   datasources,
		SQL:           sqls,
		Validator:     opts["validator"],
		RetryTimes:    retryTimes,
		RetryInterval: retryInterval,
	}
	return job, alarmIM, alarmEmail, nil
}

func splitSQL(s string) []string {
	var out []string
	for _, part := range strings.Split(s, "::") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseRetryInterval(s string) (time.Duration, error) {
	if !retryIntervalRe.MatchString(s) {
		return 0, core.ConfigErrorf(`option %q should be in format of "HH:MM[:SS]"`, "retry_interval")
	}
	parts := strings.Split(s, ":")
	h, _ := strconv.Atoi(parts[0])
	m, _ := strconv.Atoi(parts[1])
	sec := 0
	if len(parts) == 3 {
		sec, _ = strconv.Atoi(parts[2])
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(sec)*time.Second, nil
}

// looksLikePath reports whether a sql option entry references a file instead
// of holding the statement inline.
func looksLikePath(s string) bool {
	if strings.HasPrefix(s, "/") || strings.HasPrefix(s, "~/") || strings.HasPrefix(s, ".") {
		return true
	}
	lower := strings.ToLower(s)
	return strings.HasSuffix(lower, ".sql") || strings.HasSuffix(lower, ".hql")
}

// loadSQLFile reads a sql file and interpolates %(key)s placeholders against
// the job's own options, the way values inside the config file itself would
// be substituted.
func loadSQLFile(path string, opts map[string]string) (string, error) {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[2:])
		}
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", core.ConfigErrorf("sql file not exists: %q", path)
	}

	var missing string
	sql := sqlInterpRe.ReplaceAllStringFunc(string(raw), func(m string) string {
		key := sqlInterpRe.FindStringSubmatch(m)[1]
		v, ok := opts[key]
		if !ok && missing == "" {
			missing = key
		}
		return v
	})
	if missing != "" {
		return "", core.ConfigErrorf("sql file %q references unknown option %q", path, missing)
	}
	return strings.TrimSpace(sql), nil
}

func contains(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}

func datasourceNames(dbs map[string]*core.DatasourceConfig) []string {
	names := make([]string, 0, len(dbs))
	for name := range dbs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
