package core

import (
	"time"

	"github.com/netresearch/datamon/expr"
)

// Period values a job may declare.
var Periods = []string{"year", "month", "week", "day", "hour"}

// DatasourceConfig holds the connection parameters of one named datasource
// section. Parsed once at startup, immutable thereafter; jobs reference it
// by name.
type DatasourceConfig struct {
	Name     string `mapstructure:"-"`
	Host     string `mapstructure:"host" validate:"required"`
	Port     int    `mapstructure:"port" validate:"min=1,max=65535"`
	User     string `mapstructure:"user" validate:"required"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	Charset  string `mapstructure:"charset" default:"utf8"`
}

// WithDatabase returns a copy with the database field overridden. Used for
// per-job database overrides so the shared config stays untouched.
func (d *DatasourceConfig) WithDatabase(database string) *DatasourceConfig {
	c := *d
	c.Database = database
	return &c
}

// Job is one monitoring probe plus its validation and alert policy, fully
// normalised and ready to run. Datasources, SQL and Databases have equal
// length; entry i of SQL runs against entry i of Datasources.
type Job struct {
	Name          string
	Desc          string
	Period        string
	IsActive      bool
	AlarmIM       []string
	AlarmEmail    []string
	DueTime       time.Time
	Datasources   []*DatasourceConfig
	SQL           []string
	Validator     string
	RetryTimes    int
	RetryInterval time.Duration
}

// Clone copies the job under a new name and due time. Hourly jobs are cloned
// 24 times, one per hour; the slices are shared because clones never mutate
// them.
func (j *Job) Clone(name string, dueTime time.Time) *Job {
	c := *j
	c.Name = name
	c.DueTime = dueTime
	return &c
}

// AlarmKind classifies a failure for the alert formatters.
type AlarmKind string

const (
	KindConfigError AlarmKind = "config_error"
	KindDiff        AlarmKind = "diff"
	KindClaim       AlarmKind = "claim"
	KindException   AlarmKind = "exception"
	KindDefault     AlarmKind = "default"
)

func validKind(k AlarmKind) bool {
	switch k {
	case KindConfigError, KindDiff, KindClaim, KindException, KindDefault:
		return true
	}
	return false
}

// AlarmInfo describes one failure: a kind and a kind-dependent content
// (a string for config_error/exception, a tabular value for diff/claim, an
// arbitrary value for default).
type AlarmInfo struct {
	Kind    AlarmKind
	Content any
}

// NewAlarmInfo coerces a validator's info value into an AlarmInfo: an
// AlarmInfo passes through, a 2-tuple is read as (kind, content), anything
// else is wrapped with the default kind.
func NewAlarmInfo(v any) *AlarmInfo {
	switch x := v.(type) {
	case *AlarmInfo:
		return x
	case AlarmInfo:
		return &x
	case expr.Tuple:
		if len(x) == 2 {
			if kind, ok := x[0].(string); ok && validKind(AlarmKind(kind)) {
				return &AlarmInfo{Kind: AlarmKind(kind), Content: x[1]}
			}
		}
	}
	return &AlarmInfo{Kind: KindDefault, Content: v}
}

// ScheduledEntry is one queued (due_time, job) pair. Entries are ordered by
// due time ascending; seq breaks ties by insertion order.
type ScheduledEntry struct {
	DueTime time.Time
	Job     *Job

	seq   int64
	index int
}
