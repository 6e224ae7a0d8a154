package cli

import (
	"fmt"

	"github.com/netresearch/datamon/config"
	"github.com/netresearch/datamon/core"
)

// ValidateCommand checks the job and database config files without
// scheduling anything and without sending alerts.
type ValidateCommand struct {
	ConfigFiles  []string `short:"c" long:"config-file" description:"path(s) of job config file, wildcards supported, repeatable; defaults to job.cfg"`
	DBConfigFile string   `long:"db-config-file" description:"path of database config file; defaults to database.cfg"`
	Jobs         []string `short:"j" long:"job" description:"job name to check, repeatable; defaults to every job"`
	LogLevel     string   `long:"log-level" env:"DATAMON_LOG_LEVEL" description:"set log level"`

	Logger core.Logger
}

// Execute runs the validation command
func (c *ValidateCommand) Execute(_ []string) error {
	ApplyLogLevel(c.LogLevel)

	run := RunCommand{ConfigFiles: c.ConfigFiles, DBConfigFile: c.DBConfigFile}
	jobFiles, dbFile, err := run.resolveConfigFiles()
	if err != nil {
		return err
	}
	c.Logger.Debugf("validating %v ...", jobFiles)

	failed := 0
	jobs, err := config.LoadJobs(config.LoadOptions{
		DBConfigFile:   dbFile,
		JobConfigFiles: jobFiles,
		JobNames:       c.Jobs,
		Logger:         c.Logger,
		Clock:          core.NewRealClock(),
		OnConfigError: func(name string, _, _ []string, err error) {
			failed++
		},
	})
	if err != nil {
		return err
	}

	if failed > 0 {
		return fmt.Errorf("%d job(s) failed validation", failed)
	}
	c.Logger.Noticef("all job configs OK, %d scheduled instance(s).", len(jobs))
	return nil
}
