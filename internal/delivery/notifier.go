package delivery

import (
	"aywatch/internal/components/assert"
	"aywatch/internal/components/chrono"
	"aywatch/internal/components/telemetry"
	"aywatch/internal/listing"
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	report_notifier_deliver = "notifier.deliver"
	report_notifier_notify  = "notifier.notify"
)

const (
	MAX_ATTEMPTS = 3

	// added on top of the wait the transport asks for
	RATE_LIMIT_MARGIN   = time.Second
	PAUSE_AFTER_MESSAGE = time.Second
	PAUSE_AFTER_ALBUM   = 3 * time.Second
	RETRY_PAUSE         = 2 * time.Second
)

// Escalator receives deliveries that could not be completed.
//
// note: fault injection point
type Escalator interface {
	Critical(ctx context.Context, message string)
}

type Status int

const (
	STATUS_DELIVERED Status = iota
	STATUS_UNREACHABLE
	STATUS_FAILED
	STATUS_CANCELLED
)

func (s Status) String() string {
	switch s {
	case STATUS_DELIVERED:
		return "delivered"
	case STATUS_UNREACHABLE:
		return "unreachable"
	case STATUS_FAILED:
		return "failed"
	default:
		return "cancelled"
	}
}

// Outcome is the result of delivering to one recipient.
type Outcome struct {
	ChatID   int64
	Status   Status
	Attempts int

	// Plain is set when the message went out with its markup stripped.
	Plain bool
	Err   error
}

// Notifier delivers messages to every recipient, one message at a time per recipient.
type Notifier struct {
	transport  Transport
	recipients func() []int64
	escalator  Escalator
	time       chrono.API
	tel        telemetry.API

	mu sync.Mutex
	// one lock per chat id, the number of admins is small and fixed in practice
	locks map[int64]*sync.Mutex
}

func NewNotifier(
	transport Transport,
	recipients func() []int64,
	escalator Escalator,
	time chrono.API,
	tel telemetry.API,
) *Notifier {
	assert.NotNil(transport, "transport")
	assert.NotNil(recipients, "recipients")
	assert.NotNil(escalator, "escalator")
	assert.NotNil(time, "time")
	assert.NotNil(tel, "telemetry")

	return &Notifier{
		transport:  transport,
		recipients: recipients,
		escalator:  escalator,
		time:       time,
		tel:        telemetry.NewScopedAPI("delivery", tel),
		locks:      map[int64]*sync.Mutex{},
	}
}

func (n *Notifier) lock(chatId int64) *sync.Mutex {
	n.mu.Lock()
	defer n.mu.Unlock()
	lock, ok := n.locks[chatId]
	if !ok {
		lock = &sync.Mutex{}
		n.locks[chatId] = lock
	}
	return lock
}

// Notify delivers a new listing to every recipient concurrently. label and pageUrl
// name the tracked page it was found on and may be empty.
func (n *Notifier) Notify(ctx context.Context, l listing.Listing, label, pageUrl string) []Outcome {
	plan := BuildPlan(l, BuildCaption(l, label, pageUrl))
	outcomes := n.Send(ctx, plan, fmt.Sprintf("listing %s", l.Url))

	delivered := 0
	for _, outcome := range outcomes {
		if outcome.Status == STATUS_DELIVERED {
			delivered++
		}
	}
	n.tel.ReportDebug(report_notifier_notify, l.Url, delivered, len(outcomes))
	return outcomes
}

// Broadcast delivers an html announcement to every recipient.
func (n *Notifier) Broadcast(ctx context.Context, text string) []Outcome {
	return n.Send(ctx, TextPlan(text), "broadcast")
}

// Send delivers plan to every recipient, subject names the message in escalations.
func (n *Notifier) Send(ctx context.Context, plan Plan, subject string) []Outcome {
	recipients := n.recipients()
	outcomes := make([]Outcome, len(recipients))

	var group errgroup.Group
	for i, chatId := range recipients {
		group.Go(func() error {
			outcomes[i] = n.deliver(ctx, chatId, plan, subject)
			return nil
		})
	}
	group.Wait()

	return outcomes
}

func (n *Notifier) pause(ctx context.Context, plan Plan) {
	wait := PAUSE_AFTER_MESSAGE
	if plan.Kind == PLAN_ALBUM {
		wait = PAUSE_AFTER_ALBUM
	}
	n.time.Sleep(ctx, wait)
}

func (n *Notifier) escalate(ctx context.Context, chatId int64, subject string, attempts int, err error) {
	n.tel.ReportWarning(report_notifier_deliver, "escalating", err, chatId, subject)
	n.escalator.Critical(ctx, fmt.Sprintf(
		"Не удалось доставить сообщение.\nПолучатель: %d\nСообщение: %s\nПопыток: %d\nПричина: %v",
		chatId, subject, attempts, err,
	))
}

// deliver sends plan to a single recipient while holding its lock. Rate limits wait and
// retry, an unreachable recipient is given up on, malformed markup is retried once as
// plain text without using up an attempt.
func (n *Notifier) deliver(ctx context.Context, chatId int64, plan Plan, subject string) Outcome {
	lock := n.lock(chatId)
	lock.Lock()
	defer lock.Unlock()

	outcome := Outcome{ChatID: chatId}
	mode := PARSE_MODE_HTML

	var lastErr error
	for outcome.Attempts < MAX_ATTEMPTS {
		if err := ctx.Err(); err != nil {
			outcome.Status = STATUS_CANCELLED
			outcome.Err = err
			return outcome
		}

		outcome.Attempts++
		err := plan.send(ctx, n.transport, chatId, mode)
		if err == nil {
			outcome.Status = STATUS_DELIVERED
			n.pause(ctx, plan)
			return outcome
		}
		lastErr = err

		if ctx.Err() != nil {
			outcome.Status = STATUS_CANCELLED
			outcome.Err = ctx.Err()
			return outcome
		}

		derr, ok := AsError(err)
		if !ok {
			outcome.Status = STATUS_FAILED
			outcome.Err = err
			n.escalate(ctx, chatId, subject, outcome.Attempts, fmt.Errorf("unexpected error: %w", err))
			return outcome
		}

		switch derr.Kind {
		case KIND_RATE_LIMITED:
			n.tel.ReportWarning(report_notifier_deliver, err, chatId)
			n.time.Sleep(ctx, derr.RetryAfter+RATE_LIMIT_MARGIN)
		case KIND_UNREACHABLE:
			n.tel.ReportWarning(report_notifier_deliver, err, chatId)
			outcome.Status = STATUS_UNREACHABLE
			outcome.Err = err
			return outcome
		case KIND_MALFORMED:
			if outcome.Plain {
				outcome.Status = STATUS_FAILED
				outcome.Err = err
				n.escalate(ctx, chatId, subject, outcome.Attempts, err)
				return outcome
			}
			n.tel.ReportWarning(report_notifier_deliver, fmt.Errorf("falling back to plain text: %w", err), chatId)
			plan = plan.Plain()
			mode = PARSE_MODE_NONE
			outcome.Plain = true
			outcome.Attempts--
		default:
			n.tel.ReportWarning(report_notifier_deliver, err, chatId, outcome.Attempts)
			if outcome.Attempts < MAX_ATTEMPTS {
				n.time.Sleep(ctx, RETRY_PAUSE)
			}
		}
	}

	outcome.Status = STATUS_FAILED
	outcome.Err = lastErr
	n.escalate(ctx, chatId, subject, outcome.Attempts, lastErr)
	return outcome
}
