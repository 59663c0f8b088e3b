package alerts

import (
	"aywatch/internal/components/assert"
	"aywatch/internal/components/chrono"
	"aywatch/internal/components/telemetry"
	"aywatch/internal/delivery"
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	report_forwarder_drop = "forwarder.drop"
)

const forwarderQueueSize = 16

// TelemetryForwarder passes every report on to an inner telemetry.API and additionally
// escalates ReportBroken reports to administrators. Forwarding happens on the goroutine
// running Run, bursts beyond the rate limit are dropped.
type TelemetryForwarder struct {
	inner     telemetry.API
	escalator delivery.Escalator
	time      chrono.API
	limiter   *rate.Limiter
	queue     chan string
}

var _ telemetry.API = (*TelemetryForwarder)(nil)

// NewTelemetryForwarder creates a forwarder, the escalator must not report through
// the returned forwarder itself.
func NewTelemetryForwarder(inner telemetry.API, escalator delivery.Escalator, clock chrono.API) *TelemetryForwarder {
	assert.NotNil(inner, "inner telemetry")
	assert.NotNil(escalator, "escalator")
	assert.NotNil(clock, "time")

	return &TelemetryForwarder{
		inner:     inner,
		escalator: escalator,
		time:      clock,
		limiter:   rate.NewLimiter(rate.Every(10*time.Second), 3),
		queue:     make(chan string, forwarderQueueSize),
	}
}

func (f *TelemetryForwarder) format(id string, params []any) string {
	details := make([]string, len(params))
	for i, param := range params {
		details[i] = fmt.Sprint(param)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "⚠️ Ошибка\nВремя: %s\nКомпонент: %s", f.time.Now().UTC().Format("2006-01-02 15:04:05 MST"), id)
	if len(details) > 0 {
		sb.WriteString("\n\n")
		sb.WriteString(strings.Join(details, "\n"))
	}
	return sb.String()
}

func (f *TelemetryForwarder) ReportBroken(id string, params ...any) {
	f.inner.ReportBroken(id, params...)

	if !f.limiter.Allow() {
		f.inner.ReportWarning(report_forwarder_drop, "rate limited", id)
		return
	}
	select {
	case f.queue <- f.format(id, params):
	default:
		f.inner.ReportWarning(report_forwarder_drop, "queue full", id)
	}
}

func (f *TelemetryForwarder) ReportWarning(id string, params ...any) {
	f.inner.ReportWarning(id, params...)
}

func (f *TelemetryForwarder) ReportDebug(msg string, params ...any) {
	f.inner.ReportDebug(msg, params...)
}

func (f *TelemetryForwarder) ReportCount(id string, count int64) {
	f.inner.ReportCount(id, count)
}

// Run escalates queued reports until ctx is done.
func (f *TelemetryForwarder) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case message := <-f.queue:
			f.escalator.Critical(ctx, message)
		}
	}
}
