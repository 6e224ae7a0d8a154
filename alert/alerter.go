package alert

import (
	"strings"

	"github.com/netresearch/datamon/core"
)

// Alerter fans one failure out to the IM and email transports. Either
// sender may be nil when its transport is not configured; empty recipient
// lists are a no-op. Delivery failures are logged by the senders and never
// propagate into scheduling.
type Alerter struct {
	IM     *IMSender
	Mail   *MailSender
	Logger core.Logger
}

var _ core.Alerter = (*Alerter)(nil)

func NewAlerter(im IMConfig, mailCfg MailConfig, logger core.Logger) *Alerter {
	return &Alerter{
		IM:     NewIMSender(im, logger),
		Mail:   NewMailSender(mailCfg, logger),
		Logger: logger,
	}
}

// Alert implements core.Alerter.
func (a *Alerter) Alert(job *core.Job, info *core.AlarmInfo) {
	text := FormatText(job, info)
	a.Logger.Noticef("job [%s] alarm:\n%s", job.Name, indent(text))

	if a.IM != nil && len(job.AlarmIM) > 0 {
		a.IM.Send(job.AlarmIM, text)
	}
	if a.Mail != nil && len(job.AlarmEmail) > 0 {
		a.Mail.Send(job.AlarmEmail, FormatHTML(job, info))
	}
}

// AlertConfigError dispatches the config_error alert of a section that
// failed checkout, before any Job record exists.
func (a *Alerter) AlertConfigError(jobName string, alarmIM, alarmEmail []string, err error) {
	job := &core.Job{Name: jobName, AlarmIM: alarmIM, AlarmEmail: alarmEmail}
	a.Alert(job, &core.AlarmInfo{Kind: core.KindConfigError, Content: err.Error()})
}

func indent(s string) string {
	return "\t" + strings.ReplaceAll(s, "\n", "\n\t")
}
