package alerts

import (
	"aywatch/internal/components/chrono"
	"aywatch/internal/components/telemetry"
	"aywatch/internal/delivery"
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type message struct {
	ChatID int64
	Text   string
	Mode   delivery.ParseMode
}

type fakeSender struct {
	mu       sync.Mutex
	messages []message
	failFor  map[int64]error
}

func (f *fakeSender) SendText(ctx context.Context, chatId int64, text string, mode delivery.ParseMode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failFor[chatId]; err != nil {
		return err
	}
	f.messages = append(f.messages, message{ChatID: chatId, Text: text, Mode: mode})
	return nil
}

func (f *fakeSender) Messages() []message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]message(nil), f.messages...)
}

type fakeMailer struct {
	subjects []string
	bodies   []string
	err      error
}

func (f *fakeMailer) Send(ctx context.Context, subject, body string) error {
	f.subjects = append(f.subjects, subject)
	f.bodies = append(f.bodies, body)
	return f.err
}

var incidentRegex = regexp.MustCompile(`Инцидент: <code>\w{8}</code>`)

func TestFormatAlert(t *testing.T) {
	require.Equal(t,
		"🚨 <b>КРИТИЧЕСКИЙ АЛЕРТ</b>\n\nстраница &lt;a&amp;b&gt; недоступна\n\nИнцидент: <code>abcd1234</code>\n\n@oncall",
		FormatAlert("страница <a&b> недоступна", "@oncall", "abcd1234"),
	)
	require.Equal(t, "🚨 <b>КРИТИЧЕСКИЙ АЛЕРТ</b>\n\nboom", FormatAlert("boom", "", ""))
}

func TestTruncateKeepsTail(t *testing.T) {
	short := strings.Repeat("a", MaxAlertLength)
	require.Equal(t, short, Truncate(short))

	long := strings.Repeat("ж", MaxAlertLength) + "конец"
	truncated := Truncate(long)
	require.Len(t, []rune(truncated), MaxAlertLength)
	require.True(t, strings.HasPrefix(truncated, "…"))
	require.True(t, strings.HasSuffix(truncated, "конец"))
}

func TestSendCriticalAlert(t *testing.T) {
	sender := &fakeSender{failFor: map[int64]error{2: errors.New("forbidden")}}
	mailer := &fakeMailer{}
	tel := telemetry.NewTestingAPI()
	alerter := NewAlerter(sender, func() []int64 { return []int64{1, 2, 3} }, "@oncall", mailer, tel)

	alerter.Critical(context.Background(), "Не удалось загрузить страницу")

	messages := sender.Messages()
	require.Len(t, messages, 2)
	require.Equal(t, int64(1), messages[0].ChatID)
	require.Equal(t, int64(3), messages[1].ChatID)
	for _, m := range messages {
		require.Equal(t, delivery.PARSE_MODE_HTML, m.Mode)
		require.Contains(t, m.Text, "Не удалось загрузить страницу")
		require.Regexp(t, incidentRegex, m.Text)
		require.True(t, strings.HasSuffix(m.Text, "\n\n@oncall"))
	}
	require.Equal(t, messages[0].Text, messages[1].Text, "all recipients share one incident id")

	require.Len(t, tel.Reports("warning", report_alerts_send), 1)
	require.Equal(t, []string{"Не удалось загрузить страницу"}, mailer.bodies)
	require.Contains(t, mailer.subjects[0], "Критический алерт ")
}

func TestAlertFailuresNeverPropagate(t *testing.T) {
	sender := &fakeSender{failFor: map[int64]error{1: errors.New("down")}}
	mailer := &fakeMailer{err: errors.New("smtp down")}
	tel := telemetry.NewTestingAPI()
	alerter := NewAlerter(sender, func() []int64 { return []int64{1} }, "", mailer, tel)

	require.NotPanics(t, func() {
		alerter.Critical(context.Background(), "boom")
	})
	require.Len(t, tel.Reports("warning", report_alerts_send), 1)
	require.Len(t, tel.Reports("warning", report_alerts_mail), 1)
	require.Empty(t, tel.Reports("broken", ""))
}

func TestAlertWithoutRecipients(t *testing.T) {
	sender := &fakeSender{}
	tel := telemetry.NewTestingAPI()
	alerter := NewAlerter(sender, func() []int64 { return nil }, "", nil, tel)

	alerter.Critical(context.Background(), "boom")
	require.Empty(t, sender.Messages())
	require.Len(t, tel.Reports("warning", report_alerts_send), 1)
}

type recordingEscalator struct {
	messages chan string
}

func (r recordingEscalator) Critical(ctx context.Context, message string) {
	r.messages <- message
}

func TestTelemetryForwarder(t *testing.T) {
	inner := telemetry.NewTestingAPI()
	escalator := recordingEscalator{messages: make(chan string, 8)}
	clock := chrono.NewFakeImpl(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	forwarder := NewTelemetryForwarder(inner, escalator, clock)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go forwarder.Run(ctx)

	forwarder.ReportWarning("store.history", "not forwarded")
	forwarder.ReportBroken("db.query", errors.New("disk I/O error"), "UpsertItem")

	select {
	case message := <-escalator.messages:
		require.Equal(t,
			"⚠️ Ошибка\nВремя: 2024-05-01 12:00:00 UTC\nКомпонент: db.query\n\ndisk I/O error\nUpsertItem",
			message,
		)
	case <-time.After(time.Second):
		t.Fatal("broken report was not forwarded")
	}

	require.Len(t, inner.Reports("broken", "db.query"), 1)
	require.Len(t, inner.Reports("warning", "store.history"), 1)
	require.Empty(t, escalator.messages)
}

func TestTelemetryForwarderDropsBursts(t *testing.T) {
	inner := telemetry.NewTestingAPI()
	escalator := recordingEscalator{messages: make(chan string, 32)}
	forwarder := NewTelemetryForwarder(inner, escalator, chrono.NewFakeImpl(time.Now()))

	for i := 0; i < 10; i++ {
		forwarder.ReportBroken("db.query", "boom")
	}

	require.Len(t, inner.Reports("broken", "db.query"), 10)
	require.Len(t, forwarder.queue, 3)
	require.Len(t, inner.Reports("warning", report_forwarder_drop), 7)
}
