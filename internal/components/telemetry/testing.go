package telemetry

import (
	"strings"
	"sync"
)

// Report is a single report captured by TestingAPI.
type Report struct {
	Kind   string
	ID     string
	Params []any
}

// TestingAPI records every report so tests can assert on what a component reported.
type TestingAPI struct {
	mu      sync.Mutex
	reports []Report
}

func NewTestingAPI() *TestingAPI {
	return &TestingAPI{}
}

func (t *TestingAPI) record(kind, id string, params []any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reports = append(t.reports, Report{Kind: kind, ID: id, Params: params})
}

func (t *TestingAPI) ReportBroken(id string, params ...any) {
	t.record("broken", id, params)
}

func (t *TestingAPI) ReportWarning(id string, params ...any) {
	t.record("warning", id, params)
}

func (t *TestingAPI) ReportDebug(msg string, params ...any) {
	t.record("debug", msg, params)
}

func (t *TestingAPI) ReportCount(id string, count int64) {
	t.record("count", id, []any{count})
}

// Reports returns the captured reports of the given kind whose id contains substr.
func (t *TestingAPI) Reports(kind, substr string) []Report {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []Report
	for _, r := range t.reports {
		if r.Kind == kind && strings.Contains(r.ID, substr) {
			out = append(out, r)
		}
	}
	return out
}
