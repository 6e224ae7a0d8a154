package config

import (
	"fmt"
	"time"

	"github.com/netresearch/datamon/core"
	"github.com/netresearch/datamon/template"
)

// ConfigErrorHandler is told about every job section that failed checkout,
// with the recipients parsed before the failure. Used to dispatch
// config_error alerts.
type ConfigErrorHandler func(jobName string, alarmIM, alarmEmail []string, err error)

// LoadOptions drive one load of the full configuration.
type LoadOptions struct {
	DBConfigFile   string
	JobConfigFiles []string
	JobNames       []string

	Logger        core.Logger
	Clock         core.Clock
	OnConfigError ConfigErrorHandler
}

// LoadJobs checks out every requested job and returns the scheduled
// instances, hourly jobs expanded into 24 clones. Per-job config errors are
// reported through OnConfigError and skip only that job; conflicts, a broken
// datasource file or an unknown job name are fatal.
func LoadJobs(opts LoadOptions) ([]*core.Job, error) {
	if err := DetectConflict(opts.JobConfigFiles); err != nil {
		return nil, err
	}

	dbs, err := LoadDatasources(opts.DBConfigFile)
	if err != nil {
		return nil, err
	}

	sections, err := Load(opts.JobConfigFiles)
	if err != nil {
		return nil, err
	}

	names := opts.JobNames
	if len(names) == 0 {
		names = sections.JobNames()
	}

	now := opts.Clock.Now()

	var jobs []*core.Job
	for _, name := range names {
		raw, ok := sections[name]
		if !ok {
			return nil, core.ConfigErrorf("job name %q not exists", name)
		}

		job, alarmIM, alarmEmail, err := CheckOut(name, raw, dbs, now)
		if err != nil {
			opts.Logger.Errorf("job [%s] config error: %v", name, err)
			if opts.OnConfigError != nil {
				opts.OnConfigError(name, alarmIM, alarmEmail, err)
			}
			continue
		}

		if !job.IsActive {
			opts.Logger.Noticef("skiped inactive job %q", name)
			continue
		}

		if job.Period != "hour" {
			if !sameDate(job.DueTime, now) {
				opts.Logger.Noticef("skiped unscheduled job: [%s] at %s",
					name, job.DueTime.Format("2006-01-02 15:04:05"))
				continue
			}
			if err := renderScheduled(job); err != nil {
				opts.Logger.Errorf("job [%s] config error: %v", name, err)
				if opts.OnConfigError != nil {
					opts.OnConfigError(name, alarmIM, alarmEmail, err)
				}
				continue
			}
			opts.Logger.Noticef("job [%s] config OK.", name)
			jobs = append(jobs, job)
			continue
		}

		// an hourly job becomes 24 clones, one per hour of its due date
		expanded, err := expandHourly(job)
		if err != nil {
			opts.Logger.Errorf("job [%s] config error: %v", name, err)
			if opts.OnConfigError != nil {
				opts.OnConfigError(name, alarmIM, alarmEmail, err)
			}
			continue
		}
		opts.Logger.Noticef("job [%s] config OK.", name)
		jobs = append(jobs, expanded...)
	}

	return jobs, nil
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// renderScheduled applies pass-2 rendering with DUETIME bound to the
// instance's due time. Only sql and validator depend on the due time.
func renderScheduled(job *core.Job) error {
	sqls, err := template.Pass2All(job.SQL, job.DueTime)
	if err != nil {
		return core.ConfigErrorf("failed rendering config: \n%v", err)
	}
	validator, err := template.Pass2(job.Validator, job.DueTime)
	if err != nil {
		return core.ConfigErrorf("failed rendering config: \n%v", err)
	}
	job.SQL = sqls
	job.Validator = validator
	return nil
}

func expandHourly(job *core.Job) ([]*core.Job, error) {
	clones := make([]*core.Job, 0, 24)
	for i := 0; i < 24; i++ {
		due := job.DueTime.Add(time.Duration(i) * time.Hour)
		clone := job.Clone(fmt.Sprintf("%s_hour%s", job.Name, due.Format("15")), due)
		if err := renderScheduled(clone); err != nil {
			return nil, err
		}
		clones = append(clones, clone)
	}
	return clones, nil
}
