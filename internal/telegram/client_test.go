package telegram

import (
	"aywatch/internal/components/telemetry"
	"aywatch/internal/delivery"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testToken = "123456:SECRET-token"

type call struct {
	Method string
	Body   map[string]any
}

type fakeApi struct {
	mu    sync.Mutex
	calls []call
	// reply is written for every call, the zero value is a successful reply.
	status int
	reply  string
}

func (f *fakeApi) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	prefix := "/bot" + testToken + "/"
	if !strings.HasPrefix(r.URL.Path, prefix) {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	body := map[string]any{}
	json.NewDecoder(r.Body).Decode(&body)

	f.mu.Lock()
	f.calls = append(f.calls, call{Method: strings.TrimPrefix(r.URL.Path, prefix), Body: body})
	status, reply := f.status, f.reply
	f.mu.Unlock()

	w.Header().Set("content-type", "application/json")
	if status == 0 {
		w.Write([]byte(`{"ok":true,"result":{"id":42,"is_bot":true,"first_name":"Aywatch","username":"aywatch_bot"}}`))
		return
	}
	w.WriteHeader(status)
	w.Write([]byte(reply))
}

func (f *fakeApi) Calls() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

func newTestClient(t *testing.T, api *fakeApi) (*Client, *telemetry.TestingAPI) {
	server := httptest.NewServer(api)
	t.Cleanup(server.Close)

	tel := telemetry.NewTestingAPI()
	return NewClient(Config{
		Token:   testToken,
		BaseUrl: server.URL,
		Timeout: time.Second,
	}, tel), tel
}

func TestSendText(t *testing.T) {
	api := &fakeApi{}
	client, _ := newTestClient(t, api)

	err := client.SendText(context.Background(), 10, "<b>hi</b>", delivery.PARSE_MODE_HTML)
	require.NoError(t, err)

	calls := api.Calls()
	require.Len(t, calls, 1)
	require.Equal(t, "sendMessage", calls[0].Method)
	require.Equal(t, float64(10), calls[0].Body["chat_id"])
	require.Equal(t, "<b>hi</b>", calls[0].Body["text"])
	require.Equal(t, "HTML", calls[0].Body["parse_mode"])
}

func TestSendPlainTextOmitsParseMode(t *testing.T) {
	api := &fakeApi{}
	client, _ := newTestClient(t, api)

	require.NoError(t, client.SendText(context.Background(), 10, "hi", delivery.PARSE_MODE_NONE))
	_, ok := api.Calls()[0].Body["parse_mode"]
	require.False(t, ok)
}

func TestSendPhoto(t *testing.T) {
	api := &fakeApi{}
	client, _ := newTestClient(t, api)

	err := client.SendPhoto(context.Background(), 10, delivery.Photo{
		Url:     "https://img.ay.by/1.jpg",
		Caption: "caption",
	}, delivery.PARSE_MODE_HTML)
	require.NoError(t, err)

	body := api.Calls()[0].Body
	require.Equal(t, "https://img.ay.by/1.jpg", body["photo"])
	require.Equal(t, "caption", body["caption"])
}

func TestSendAlbum(t *testing.T) {
	api := &fakeApi{}
	client, _ := newTestClient(t, api)

	err := client.SendAlbum(context.Background(), 10, []delivery.Photo{
		{Url: "https://img.ay.by/1.jpg", Caption: "caption"},
		{Url: "https://img.ay.by/2.jpg"},
	}, delivery.PARSE_MODE_HTML)
	require.NoError(t, err)

	calls := api.Calls()
	require.Equal(t, "sendMediaGroup", calls[0].Method)
	require.Equal(t, []any{
		map[string]any{"type": "photo", "media": "https://img.ay.by/1.jpg", "caption": "caption", "parse_mode": "HTML"},
		map[string]any{"type": "photo", "media": "https://img.ay.by/2.jpg"},
	}, calls[0].Body["media"])

	err = client.SendAlbum(context.Background(), 10, []delivery.Photo{{Url: "https://img.ay.by/1.jpg"}}, delivery.PARSE_MODE_HTML)
	require.Error(t, err)
	require.Len(t, api.Calls(), 1)
}

func TestGetMe(t *testing.T) {
	client, _ := newTestClient(t, &fakeApi{})
	user, err := client.GetMe(context.Background())
	require.NoError(t, err)
	require.Equal(t, User{ID: 42, IsBot: true, FirstName: "Aywatch", Username: "aywatch_bot"}, user)
}

func TestErrorClassification(t *testing.T) {
	testCases := []struct {
		name       string
		status     int
		reply      string
		kind       delivery.Kind
		retryAfter time.Duration
	}{
		{
			name:       "flood control",
			status:     http.StatusTooManyRequests,
			reply:      `{"ok":false,"error_code":429,"description":"Too Many Requests: retry after 7","parameters":{"retry_after":7}}`,
			kind:       delivery.KIND_RATE_LIMITED,
			retryAfter: 7 * time.Second,
		},
		{
			name:       "rate limited without parameters",
			status:     http.StatusTooManyRequests,
			reply:      `{"ok":false,"error_code":429,"description":"Too Many Requests"}`,
			kind:       delivery.KIND_RATE_LIMITED,
			retryAfter: time.Second,
		},
		{
			name:   "blocked",
			status: http.StatusForbidden,
			reply:  `{"ok":false,"error_code":403,"description":"Forbidden: bot was blocked by the user"}`,
			kind:   delivery.KIND_UNREACHABLE,
		},
		{
			name:   "chat not found",
			status: http.StatusBadRequest,
			reply:  `{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`,
			kind:   delivery.KIND_UNREACHABLE,
		},
		{
			name:   "deactivated",
			status: http.StatusForbidden,
			reply:  `{"ok":false,"error_code":403,"description":"Forbidden: user is deactivated"}`,
			kind:   delivery.KIND_UNREACHABLE,
		},
		{
			name:   "bad markup",
			status: http.StatusBadRequest,
			reply:  `{"ok":false,"error_code":400,"description":"Bad Request: can't parse entities: Unsupported start tag \"br\" at byte offset 12"}`,
			kind:   delivery.KIND_MALFORMED,
		},
		{
			name:   "bad photo",
			status: http.StatusBadRequest,
			reply:  `{"ok":false,"error_code":400,"description":"Bad Request: wrong file identifier/HTTP URL specified"}`,
			kind:   delivery.KIND_OTHER,
		},
		{
			name:   "server error without body",
			status: http.StatusBadGateway,
			reply:  ``,
			kind:   delivery.KIND_OTHER,
		},
	}

	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			client, tel := newTestClient(t, &fakeApi{status: test.status, reply: test.reply})

			err := client.SendText(context.Background(), 10, "hi", delivery.PARSE_MODE_HTML)
			derr, ok := delivery.AsError(err)
			require.True(t, ok, "expected a delivery error, got %v", err)
			require.Equal(t, test.kind, derr.Kind)
			require.Equal(t, test.retryAfter, derr.RetryAfter)
			require.Len(t, tel.Reports("warning", report_telegram_call), 1)
		})
	}
}

func TestNetworkErrorDoesNotLeakToken(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	server.Close()

	tel := telemetry.NewTestingAPI()
	client := NewClient(Config{Token: testToken, BaseUrl: server.URL, Timeout: time.Second}, tel)

	err := client.SendText(context.Background(), 10, "hi", delivery.PARSE_MODE_HTML)
	derr, ok := delivery.AsError(err)
	require.True(t, ok)
	require.Equal(t, delivery.KIND_OTHER, derr.Kind)
	require.NotContains(t, derr.Error(), testToken)

	for _, report := range tel.Reports("debug", "resty") {
		for _, param := range report.Params {
			require.NotContains(t, fmt.Sprint(param), testToken)
		}
	}
}
