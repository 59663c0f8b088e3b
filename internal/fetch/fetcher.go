package fetch

import (
	"aywatch/internal/components/assert"
	"aywatch/internal/components/restydump"
	"aywatch/internal/components/telemetry"
	"context"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

const (
	report_fetcher_get    = "fetcher.get"
	report_fetcher_pacing = "fetcher.pacing"
	report_fetcher_dump   = "fetcher.dump"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

// domains the fetcher remembers a pacing limiter for
const maxTrackedDomains = 64

// the shortest pause between retries, resty falls back to a jittered
// backoff when a retry wait computes to zero
const minRetryWait = 10 * time.Millisecond

const maxRetryWait = 2 * time.Minute

var retryableStatus = map[int]struct{}{
	http.StatusTooManyRequests:     {},
	http.StatusInternalServerError: {},
	http.StatusBadGateway:          {},
	http.StatusServiceUnavailable:  {},
	http.StatusGatewayTimeout:      {},
}

// Settings are the live tunables of the fetcher.
type Settings struct {
	Timeout    time.Duration
	MaxRetries int
	// BackoffFactor is in seconds, the n-th retry waits BackoffFactor * 2^(n-1).
	BackoffFactor float64
	// Delay is the minimum gap between two requests to the same domain.
	Delay time.Duration
}

// Backoff returns the wait before the given retry attempt (1 is the first retry).
func (s Settings) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	seconds := s.BackoffFactor * math.Exp2(float64(attempt-1))
	wait := time.Duration(seconds * float64(time.Second))
	if wait > maxRetryWait {
		wait = maxRetryWait
	}
	return wait
}

// Fetcher issues paced and retried GET requests.
type Fetcher struct {
	tel    telemetry.API
	bypass bool

	mu       sync.Mutex
	settings Settings
	dump     restydump.Output
	http     *resty.Client
	limiters *lru.Cache[string, *rate.Limiter]
}

func NewFetcher(settings Settings, tel telemetry.API) *Fetcher {
	return newFetcher(settings, tel, true)
}

func newFetcher(settings Settings, tel telemetry.API, bypass bool) *Fetcher {
	assert.NotNil(tel, "telemetry")
	assert.Positive(settings.Timeout, "fetcher timeout")

	limiters, err := lru.New[string, *rate.Limiter](maxTrackedDomains)
	if err != nil {
		panic(err)
	}

	f := &Fetcher{
		tel:      telemetry.NewScopedAPI("fetch", tel),
		bypass:   bypass,
		limiters: limiters,
	}
	f.Apply(settings)
	return f
}

// Settings returns the settings currently in use.
func (f *Fetcher) Settings() Settings {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.settings
}

// Dump writes every response received from now on to output.
func (f *Fetcher) Dump(output restydump.Output) {
	f.mu.Lock()
	f.dump = output
	settings := f.settings
	f.mu.Unlock()

	f.Apply(settings)
}

// Apply swaps in new settings, requests already in flight finish with the old ones.
func (f *Fetcher) Apply(settings Settings) {
	f.mu.Lock()
	dump := f.dump
	f.mu.Unlock()

	client := f.newClient(settings, dump)

	f.mu.Lock()
	defer f.mu.Unlock()

	f.settings = settings
	f.http = client
	for _, domain := range f.limiters.Keys() {
		limiter, ok := f.limiters.Peek(domain)
		if ok {
			limiter.SetLimit(pacing(settings.Delay))
		}
	}
}

func pacing(delay time.Duration) rate.Limit {
	if delay <= 0 {
		return rate.Inf
	}
	return rate.Every(delay)
}

func (f *Fetcher) limiter(domain string) *rate.Limiter {
	f.mu.Lock()
	defer f.mu.Unlock()

	limiter, ok := f.limiters.Get(domain)
	if ok {
		return limiter
	}
	limiter = rate.NewLimiter(pacing(f.settings.Delay), 1)
	f.limiters.Add(domain, limiter)
	return limiter
}

func (f *Fetcher) newClient(settings Settings, dump restydump.Output) *resty.Client {
	client := resty.New()
	if f.bypass {
		client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	}
	client.SetHeader("user-agent", userAgent)
	client.SetTimeout(settings.Timeout)

	client.SetRetryCount(settings.MaxRetries)
	client.SetRetryWaitTime(max(minRetryWait, settings.Backoff(1)))
	client.SetRetryMaxWaitTime(maxRetryWait)
	client.AddRetryCondition(func(res *resty.Response, err error) bool {
		if err != nil {
			// a nil response means one of our own hooks refused the request
			if res == nil || res.Request == nil {
				return false
			}
			return res.Request.Context().Err() == nil
		}
		_, retry := retryableStatus[res.StatusCode()]
		return retry
	})
	client.SetRetryAfter(func(_ *resty.Client, res *resty.Response) (time.Duration, error) {
		if header := res.Header().Get("Retry-After"); header != "" {
			seconds, err := strconv.Atoi(strings.TrimSpace(header))
			if err == nil && seconds > 0 {
				return time.Duration(seconds) * time.Second, nil
			}
		}
		return max(minRetryWait, settings.Backoff(res.Request.Attempt)), nil
	})

	client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		parsed, err := url.Parse(req.URL)
		if err != nil {
			return err
		}
		err = f.limiter(parsed.Hostname()).Wait(req.Context())
		if err != nil {
			f.tel.ReportDebug(report_fetcher_pacing, req.URL, err)
			return err
		}
		return nil
	})

	telemetry.InstrumentResty(client, f.tel, "aywatch/fetch")
	if dump != nil {
		restydump.Instrument(client, dump, func(err error) {
			f.tel.ReportWarning(report_fetcher_dump, err)
		})
	}

	return client
}

func (f *Fetcher) client() *resty.Client {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.http
}

// Get returns the body of target. Every failure is returned as an *Error,
// a response that succeeds after retries is indistinguishable from a first try.
func (f *Fetcher) Get(ctx context.Context, target string) (string, error) {
	parsed, err := url.Parse(target)
	if err != nil || !parsed.IsAbs() || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		ferr := &Error{Kind: KIND_OTHER, Url: target, Cause: fmt.Errorf("not an absolute http(s) url")}
		f.tel.ReportWarning(report_fetcher_get, ferr)
		return "", ferr
	}

	res, err := f.client().R().
		SetContext(ctx).
		Get(target)
	if err != nil {
		ferr := classify(target, err)
		f.tel.ReportWarning(report_fetcher_get, ferr)
		return "", ferr
	}
	if res.IsError() {
		ferr := &Error{
			Kind:       KIND_HTTP,
			Url:        target,
			StatusCode: res.StatusCode(),
			Cause:      fmt.Errorf("%s", res.Status()),
		}
		f.tel.ReportWarning(report_fetcher_get, ferr)
		return "", ferr
	}

	return res.String(), nil
}
