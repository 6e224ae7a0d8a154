// Package alert formats failed jobs into IM and email messages and delivers
// them through the configured transports.
package alert

import (
	"bytes"
	"embed"
	"fmt"
	"html"
	"html/template"
	"strings"

	"github.com/netresearch/datamon/core"
	"github.com/netresearch/datamon/expr"
	"github.com/netresearch/datamon/table"
)

// maxAlarmRows limits how many offending rows a tabular alarm shows.
const maxAlarmRows = 10

var (
	sepMajor = strings.Repeat("=", 20)
	sepMinor = strings.Repeat("-", 20)
)

// FormatText renders one failure as the plain-text IM message.
func FormatText(job *core.Job, info *core.AlarmInfo) string {
	var lines []string
	switch info.Kind {
	case core.KindConfigError:
		lines = []string{
			"job: " + job.Name,
			sepMajor,
			"reason: config error",
			sepMinor,
			contentText(info.Content),
		}

	case core.KindClaim, core.KindDiff:
		lines = append(headerLines(job),
			sepMajor,
			fmt.Sprintf("reason: data check failed (%s)", info.Kind),
			"validator: "+job.Validator,
			sepMinor,
			contentText(info.Content),
		)

	case core.KindException:
		lines = append(headerLines(job),
			sepMajor,
			"reason: job raised an exception",
			sepMinor,
			contentText(info.Content),
		)

	default:
		lines = append(headerLines(job),
			sepMajor,
			"reason: validator returned false",
			sepMinor,
			"validator: "+job.Validator,
			"result: "+contentText(info.Content),
		)
	}
	return strings.Join(lines, "\n")
}

func headerLines(job *core.Job) []string {
	return []string{
		job.Desc,
		"job: " + job.Name,
		"due: " + job.DueTime.Format("2006-01-02 15:04:05"),
	}
}

func contentText(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case *table.Table:
		return x.Text(maxAlarmRows)
	case error:
		return x.Error()
	default:
		return expr.Repr(v)
	}
}

//go:embed templates/*.html
var templateFS embed.FS

var htmlTemplates = template.Must(template.New("alert").ParseFS(templateFS, "templates/*.html"))

type htmlData struct {
	JobName     string
	Desc        string
	DueTime     string
	Validator   string
	Datasources string
	SQL         template.HTML
	Content     template.HTML
}

// FormatHTML renders one failure as the email body, using the kind-specific
// embedded template.
func FormatHTML(job *core.Job, info *core.AlarmInfo) string {
	data := htmlData{
		JobName:     job.Name,
		Desc:        job.Desc,
		DueTime:     job.DueTime.Format("2006-01-02 15:04:05"),
		Validator:   job.Validator,
		Datasources: datasourceList(job),
		SQL:         sqlHTML(job),
		Content:     contentHTML(info),
	}

	name := string(info.Kind) + ".html"
	if htmlTemplates.Lookup(name) == nil {
		name = "default.html"
	}

	var buf bytes.Buffer
	if err := htmlTemplates.ExecuteTemplate(&buf, name, data); err != nil {
		// fall back to the text rendering rather than losing the alert
		return FormatText(job, info)
	}
	return buf.String()
}

func datasourceList(job *core.Job) string {
	names := make([]string, len(job.Datasources))
	for i, ds := range job.Datasources {
		names[i] = ds.Name
	}
	return strings.Join(names, ", ")
}

func sqlHTML(job *core.Job) template.HTML {
	escaped := make([]string, len(job.SQL))
	for i, s := range job.SQL {
		escaped[i] = html.EscapeString(s)
	}
	// #nosec G203 -- statements are escaped above
	return template.HTML(strings.Join(escaped, "<hr/>"))
}

func contentHTML(info *core.AlarmInfo) template.HTML {
	if t, ok := info.Content.(*table.Table); ok {
		// #nosec G203 -- table cells are escaped by HTML()
		return template.HTML(t.HTML())
	}

	text := contentText(info.Content)
	switch info.Kind {
	case core.KindException, core.KindConfigError:
		return freeTextHTML(text)
	default:
		// #nosec G203 -- escaped
		return template.HTML(html.EscapeString(text))
	}
}

// freeTextHTML preserves the layout of stack traces and error dumps inside
// HTML mail bodies: tabs become 4 spaces, spaces become &nbsp;, newlines
// become paragraph breaks.
func freeTextHTML(text string) template.HTML {
	s := html.EscapeString(text)
	s = strings.ReplaceAll(s, "\t", "    ")
	s = strings.ReplaceAll(s, " ", "&nbsp;")
	s = strings.ReplaceAll(s, "\n", "</p><p>")
	// #nosec G203 -- escaped before the replacements
	return template.HTML("<p>" + s + "</p>")
}
