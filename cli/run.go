package cli

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/netresearch/datamon/alert"
	"github.com/netresearch/datamon/config"
	"github.com/netresearch/datamon/core"
	"github.com/netresearch/datamon/db"
)

const (
	defaultJobConfigFile = "job.cfg"
	defaultDBConfigFile  = "database.cfg"
)

// RunCommand schedules and runs the monitoring jobs.
type RunCommand struct {
	ConfigFiles  []string `short:"c" long:"config-file" description:"path(s) of job config file, wildcards supported, repeatable; defaults to job.cfg"`
	DBConfigFile string   `long:"db-config-file" description:"path of database config file; defaults to database.cfg"`
	Jobs         []string `short:"j" long:"job" description:"job name (section name in the job config file), repeatable; defaults to every job"`
	Force        bool     `long:"force" description:"run job(s) immediately, do not wait until due time; requires -j"`
	PoolSize     int      `long:"pool-size" env:"DATAMON_POOL_SIZE" default:"16" description:"number of parallel workers"`
	PollInterval int      `long:"poll-interval" env:"DATAMON_POLL_INTERVAL" default:"5" description:"scheduler poll interval in seconds"`
	LogLevel     string   `long:"log-level" env:"DATAMON_LOG_LEVEL" description:"set log level"`

	IMGatewayURL  string `long:"im-gateway-url" env:"DATAMON_IM_GATEWAY_URL" description:"IM gateway endpoint; IM alerts are disabled when empty"`
	IMAccessToken string `long:"im-access-token" env:"DATAMON_IM_ACCESS_TOKEN" description:"IM gateway access token"`
	SMTPHost      string `long:"smtp-host" env:"DATAMON_SMTP_HOST" description:"SMTP relay host; email alerts are disabled when empty"`
	SMTPPort      int    `long:"smtp-port" env:"DATAMON_SMTP_PORT" default:"25" description:"SMTP relay port"`
	EmailFrom     string `long:"email-from" env:"DATAMON_EMAIL_FROM" description:"From address of alert mails"`
	EmailDomain   string `long:"email-domain" env:"DATAMON_EMAIL_DOMAIN" description:"default domain appended to recipients without @"`

	Logger core.Logger
}

// Execute runs the command
func (c *RunCommand) Execute(_ []string) error {
	ApplyLogLevel(c.LogLevel)

	if c.Force && len(c.Jobs) == 0 {
		return fmt.Errorf("job name(s) has to be provided when using force mode, otherwise " +
			"you may annoy other users by sending a lot of alarm messages")
	}

	jobFiles, dbFile, err := c.resolveConfigFiles()
	if err != nil {
		return err
	}
	c.Logger.Noticef("using job config file(s): %v", jobFiles)

	alerter := alert.NewAlerter(
		alert.IMConfig{GatewayURL: c.IMGatewayURL, AccessToken: c.IMAccessToken},
		alert.MailConfig{
			SMTPHost:      c.SMTPHost,
			SMTPPort:      c.SMTPPort,
			EmailFrom:     c.EmailFrom,
			DefaultDomain: c.EmailDomain,
		},
		c.Logger,
	)

	clock := core.NewRealClock()

	c.Logger.Noticef("checking job configs ...")
	jobs, err := config.LoadJobs(config.LoadOptions{
		DBConfigFile:   dbFile,
		JobConfigFiles: jobFiles,
		JobNames:       c.Jobs,
		Logger:         c.Logger,
		Clock:          clock,
		OnConfigError:  alerter.AlertConfigError,
	})
	if err != nil {
		return err
	}
	c.Logger.Noticef("all job configs OK.")

	registry := db.NewRegistry(c.Logger)
	defer func() {
		if err := registry.Close(); err != nil {
			c.Logger.Errorf("closing connection pools: %v", err)
		}
	}()

	scheduler := core.NewScheduler(
		core.SchedulerConfig{
			PoolSize:     c.PoolSize,
			PollInterval: time.Duration(c.PollInterval) * time.Second,
			Force:        c.Force,
		},
		c.Logger,
		clock,
		core.NewExecutor(registry, c.Logger),
		alerter,
	)
	for _, job := range jobs {
		scheduler.Enqueue(job)
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGINT)
	go func() {
		sig := <-signals
		c.Logger.Warningf("interrupted by signal %s, exit.", sig)
		scheduler.Stop()
	}()

	scheduler.Run()
	return nil
}

// resolveConfigFiles expands the -c globs and applies the defaults. A path
// that matches nothing is fatal.
func (c *RunCommand) resolveConfigFiles() (jobFiles []string, dbFile string, err error) {
	if len(c.ConfigFiles) == 0 {
		if !isFile(defaultJobConfigFile) {
			return nil, "", fmt.Errorf("default job config file %q not exist", defaultJobConfigFile)
		}
		jobFiles = []string{defaultJobConfigFile}
	} else {
		for _, pattern := range c.ConfigFiles {
			matches, globErr := filepath.Glob(pattern)
			if globErr != nil || len(matches) == 0 {
				return nil, "", fmt.Errorf("job config path %q not exists", pattern)
			}
			for _, m := range matches {
				if isFile(m) {
					jobFiles = append(jobFiles, m)
				}
			}
		}
		if len(jobFiles) == 0 {
			return nil, "", fmt.Errorf("job config path(s) %v matched no regular file", c.ConfigFiles)
		}
	}

	dbFile = c.DBConfigFile
	if dbFile == "" {
		dbFile = defaultDBConfigFile
	}
	if !isFile(dbFile) {
		return nil, "", fmt.Errorf("database config file %q not exists", dbFile)
	}
	return jobFiles, dbFile, nil
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
