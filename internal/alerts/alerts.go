package alerts

import (
	"aywatch/internal/components/assert"
	"aywatch/internal/components/telemetry"
	"aywatch/internal/delivery"
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/mazen160/go-random"
)

const (
	report_alerts_send     = "alerts.send"
	report_alerts_mail     = "alerts.mail"
	report_alerts_incident = "alerts.incident"
)

// MaxAlertLength is the longest message an alert carries, longer messages keep their tail.
const MaxAlertLength = 3500

// Sender is the part of the chat transport alerts go out through.
//
// note: fault injection point
type Sender interface {
	SendText(ctx context.Context, chatId int64, text string, mode delivery.ParseMode) error
}

// Mailer delivers a plain text copy of an alert.
//
// note: fault injection point
type Mailer interface {
	Send(ctx context.Context, subject, body string) error
}

// Alerter sends critical alerts to administrators. It never fails, problems
// delivering an alert are only reported as warnings.
type Alerter struct {
	sender     Sender
	recipients func() []int64
	tag        string
	mailer     Mailer
	tel        telemetry.API
}

var _ delivery.Escalator = (*Alerter)(nil)

// NewAlerter creates an Alerter. tag is appended to every alert to mention whoever
// is on call and may be empty, mailer may be nil.
func NewAlerter(sender Sender, recipients func() []int64, tag string, mailer Mailer, tel telemetry.API) *Alerter {
	assert.NotNil(sender, "sender")
	assert.NotNil(recipients, "recipients")
	assert.NotNil(tel, "telemetry")

	return &Alerter{
		sender:     sender,
		recipients: recipients,
		tag:        tag,
		mailer:     mailer,
		tel:        telemetry.NewScopedAPI("alerts", tel),
	}
}

// Truncate keeps the last MaxAlertLength runes of message.
func Truncate(message string) string {
	runes := []rune(message)
	if len(runes) <= MaxAlertLength {
		return message
	}
	return "…" + string(runes[len(runes)-MaxAlertLength+1:])
}

// FormatAlert renders the html text of an alert, message is escaped.
func FormatAlert(message, tag, incident string) string {
	var sb strings.Builder
	sb.WriteString("🚨 <b>КРИТИЧЕСКИЙ АЛЕРТ</b>\n\n")
	sb.WriteString(html.EscapeString(Truncate(message)))
	if incident != "" {
		fmt.Fprintf(&sb, "\n\nИнцидент: <code>%s</code>", incident)
	}
	if tag != "" {
		sb.WriteString("\n\n")
		sb.WriteString(html.EscapeString(tag))
	}
	return sb.String()
}

func (a *Alerter) incident() string {
	id, err := random.String(8)
	if err != nil {
		a.tel.ReportWarning(report_alerts_incident, err)
		return ""
	}
	return id
}

// SendCriticalAlert sends message to every recipient one after another.
func (a *Alerter) SendCriticalAlert(ctx context.Context, recipients []int64, message, tag string) {
	if len(recipients) == 0 && a.mailer == nil {
		a.tel.ReportWarning(report_alerts_send, "no one to alert", message)
		return
	}

	incident := a.incident()
	text := FormatAlert(message, tag, incident)
	for _, chatId := range recipients {
		err := a.sender.SendText(ctx, chatId, text, delivery.PARSE_MODE_HTML)
		if err != nil {
			a.tel.ReportWarning(report_alerts_send, chatId, err)
		}
	}

	if a.mailer != nil {
		subject := "Критический алерт"
		if incident != "" {
			subject = fmt.Sprintf("Критический алерт %s", incident)
		}
		err := a.mailer.Send(ctx, subject, Truncate(message))
		if err != nil {
			a.tel.ReportWarning(report_alerts_mail, err)
		}
	}
}

// Critical alerts the current recipients with the configured tag.
func (a *Alerter) Critical(ctx context.Context, message string) {
	a.SendCriticalAlert(ctx, a.recipients(), message, a.tag)
}
