package email

import (
	_ "embed"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/fiffu/feedwatch/lib/models"
)

var (
	//go:embed notification.html
	notificationHTML     string
	notificationTemplate = template.Must(template.New("notification.html").Funcs(funcs).Parse(notificationHTML))

	//go:embed log.html
	logHTML     string
	logTemplate = template.Must(template.New("log.html").Funcs(funcs).Parse(logHTML))

	funcs = template.FuncMap{
		"hexcolor": func(c int) string { return fmt.Sprintf("#%06x", c&0xffffff) },
		"rfc1123":  func(t time.Time) string { return t.UTC().Format(time.RFC1123) },
	}
)

func mustFillTemplate(tmpl *template.Template, values any) string {
	buf := new(strings.Builder)
	err := tmpl.Execute(buf, values)
	if err != nil {
		return ""
	}
	return buf.String()
}

type NotificationEmailFormat struct {
	Notification *models.Notification
}

func (ef *NotificationEmailFormat) Subject() string {
	return fmt.Sprintf("Feedwatch: [%s] %s", ef.Notification.FeedTitle, ef.Notification.Title)
}

func (ef *NotificationEmailFormat) Body() string {
	return mustFillTemplate(notificationTemplate, ef.Notification)
}

type LogEmailFormat struct {
	Message *models.LogMessage
}

func (ef *LogEmailFormat) Subject() string {
	return fmt.Sprintf("Feedwatch [%s]: %s", strings.ToUpper(ef.Message.Level), ef.Message.Title)
}

func (ef *LogEmailFormat) Body() string {
	return mustFillTemplate(logTemplate, ef.Message)
}
