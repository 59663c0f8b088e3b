package telemetry

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	report_resty_request  = "resty.request"
	report_resty_response = "resty.response"
)

type instrumentResty struct {
	tel       API
	tracer    trace.Tracer
	idcounter *uint64
	redactor  *strings.Replacer
}

// InstrumentResty reports every request made by the client with a request id and
// its duration, and records a span for it on the global tracer provider.
// Every occurrence of a secret in a reported url or error is masked.
func InstrumentResty(client *resty.Client, tel API, tracerName string, secrets ...string) {
	var idcounter uint64
	pairs := []string{}
	for _, secret := range secrets {
		if secret != "" {
			pairs = append(pairs, secret, "<redacted>")
		}
	}
	i := instrumentResty{
		tel:       tel,
		tracer:    otel.Tracer(tracerName),
		idcounter: &idcounter,
		redactor:  strings.NewReplacer(pairs...),
	}

	client.OnBeforeRequest(i.onBeforeRequest)
	client.OnAfterResponse(i.onAfterResponse)
	client.OnError(i.onError)
}

type reqCtxKeyType int

var reqCtxKey reqCtxKeyType

type reqCtx struct {
	id uint64
	// startTime does not need to rely on chrono because it does not depend on the
	// absolute time, just the difference in time.
	startTime time.Time
}

func (i instrumentResty) redact(s string) string {
	return i.redactor.Replace(s)
}

func (i instrumentResty) onBeforeRequest(_ *resty.Client, req *resty.Request) error {
	start := time.Now()
	ctx := req.Context()

	id := atomic.AddUint64(i.idcounter, 1)
	ctx = context.WithValue(ctx, reqCtxKey, reqCtx{
		id:        id,
		startTime: start,
	})
	ctx, _ = i.tracer.Start(ctx, "http "+req.Method, trace.WithAttributes(
		attribute.String("http.url", i.redact(req.URL)),
		attribute.Int("http.attempt", req.Attempt),
	))
	i.tel.ReportDebug(report_resty_request, id, req.Method, i.redact(req.URL))

	req.SetContext(ctx)
	return nil
}

func (i instrumentResty) onAfterResponse(_ *resty.Client, res *resty.Response) error {
	ctx := res.Request.Context()
	span := trace.SpanFromContext(ctx)
	defer span.End()

	span.SetAttributes(attribute.Int("http.status_code", res.StatusCode()))
	if res.IsError() {
		span.SetStatus(codes.Error, res.Status())
	}

	rc, ok := ctx.Value(reqCtxKey).(reqCtx)
	if !ok {
		return nil
	}
	i.tel.ReportDebug(
		report_resty_response,
		rc.id,
		time.Since(rc.startTime).String(),
		res.Status(),
	)
	return nil
}

func (i instrumentResty) onError(req *resty.Request, err error) {
	ctx := req.Context()
	span := trace.SpanFromContext(ctx)
	defer span.End()
	message := i.redact(err.Error())
	span.RecordError(errors.New(message))
	span.SetStatus(codes.Error, message)

	// a failing OnBeforeRequest hook (ex. a cancelled rate limiter wait) skips
	// our own hook, so the request context may not carry an id.
	rc, ok := ctx.Value(reqCtxKey).(reqCtx)
	if !ok {
		i.tel.ReportDebug(report_resty_response, req.Method, i.redact(req.URL), message)
		return
	}
	i.tel.ReportDebug(
		report_resty_response,
		rc.id,
		req.Method,
		i.redact(req.URL),
		time.Since(rc.startTime).String(),
		message,
	)
}
