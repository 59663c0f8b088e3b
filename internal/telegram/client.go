package telegram

import (
	"aywatch/internal/components/assert"
	"aywatch/internal/components/telemetry"
	"aywatch/internal/delivery"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	report_telegram_call = "telegram.call"
)

const DefaultBaseUrl = "https://api.telegram.org"

// Config holds what is needed to reach the Bot API.
type Config struct {
	Token string
	// BaseUrl defaults to DefaultBaseUrl.
	BaseUrl string
	Timeout time.Duration
}

// Client is a delivery.Transport backed by the Telegram Bot API. It never retries
// on its own, retries are decided by the caller from the returned *delivery.Error.
type Client struct {
	http  *resty.Client
	token string
	tel   telemetry.API
}

var _ delivery.Transport = (*Client)(nil)

func NewClient(config Config, tel telemetry.API) *Client {
	assert.NotNil(tel, "telemetry")
	assert.NotEmptyStr(config.Token, "bot token")

	baseUrl := config.BaseUrl
	if baseUrl == "" {
		baseUrl = DefaultBaseUrl
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	scoped := telemetry.NewScopedAPI("telegram", tel)
	client := resty.New()
	client.SetBaseURL(fmt.Sprintf("%s/bot%s", strings.TrimSuffix(baseUrl, "/"), config.Token))
	client.SetTimeout(timeout)
	client.SetHeader("content-type", "application/json")
	telemetry.InstrumentResty(client, scoped, "aywatch/telegram", config.Token)

	return &Client{
		http:  client,
		token: config.Token,
		tel:   scoped,
	}
}

type responseParameters struct {
	RetryAfter int `json:"retry_after"`
}

type apiResponse struct {
	Ok          bool                `json:"ok"`
	ErrorCode   int                 `json:"error_code"`
	Description string              `json:"description"`
	Parameters  *responseParameters `json:"parameters"`
}

type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name"`
	Username  string `json:"username"`
}

type getMeResponse struct {
	apiResponse
	Result User `json:"result"`
}

type sendMessageRequest struct {
	ChatID                int64  `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode,omitempty"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview,omitempty"`
}

type sendPhotoRequest struct {
	ChatID    int64  `json:"chat_id"`
	Photo     string `json:"photo"`
	Caption   string `json:"caption,omitempty"`
	ParseMode string `json:"parse_mode,omitempty"`
}

type inputMediaPhoto struct {
	Type      string `json:"type"`
	Media     string `json:"media"`
	Caption   string `json:"caption,omitempty"`
	ParseMode string `json:"parse_mode,omitempty"`
}

type sendMediaGroupRequest struct {
	ChatID int64             `json:"chat_id"`
	Media  []inputMediaPhoto `json:"media"`
}

func (c *Client) redact(s string) string {
	return strings.ReplaceAll(s, c.token, "<redacted>")
}

// call posts body to the given Bot API method and decodes the reply into result.
func (c *Client) call(ctx context.Context, method string, body, result any) error {
	failure := &apiResponse{}
	res, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(result).
		SetError(failure).
		Post("/" + method)
	if err != nil {
		derr := &delivery.Error{
			Kind:        delivery.KIND_OTHER,
			Description: c.redact(err.Error()),
		}
		c.tel.ReportWarning(report_telegram_call, method, derr)
		return derr
	}
	if res.IsError() {
		derr := classify(res.StatusCode(), failure)
		c.tel.ReportWarning(report_telegram_call, method, derr)
		return derr
	}
	return nil
}

// classify maps a failed Bot API reply onto the delivery error kinds.
func classify(status int, reply *apiResponse) *delivery.Error {
	code := reply.ErrorCode
	if code == 0 {
		code = status
	}
	description := reply.Description
	if description == "" {
		description = http.StatusText(status)
	}
	lower := strings.ToLower(description)

	switch {
	case code == http.StatusTooManyRequests || reply.Parameters != nil && reply.Parameters.RetryAfter > 0:
		retryAfter := time.Second
		if reply.Parameters != nil && reply.Parameters.RetryAfter > 0 {
			retryAfter = time.Duration(reply.Parameters.RetryAfter) * time.Second
		}
		return &delivery.Error{Kind: delivery.KIND_RATE_LIMITED, RetryAfter: retryAfter, Description: description}
	case code == http.StatusForbidden,
		strings.Contains(lower, "chat not found"),
		strings.Contains(lower, "bot was blocked"),
		strings.Contains(lower, "user is deactivated"):
		return &delivery.Error{Kind: delivery.KIND_UNREACHABLE, Description: description}
	case code == http.StatusBadRequest && strings.Contains(lower, "can't parse entities"):
		return &delivery.Error{Kind: delivery.KIND_MALFORMED, Description: description}
	default:
		return &delivery.Error{Kind: delivery.KIND_OTHER, Description: fmt.Sprintf("%d %s", code, description)}
	}
}

// GetMe returns the bot account the token belongs to.
func (c *Client) GetMe(ctx context.Context) (User, error) {
	reply := &getMeResponse{}
	err := c.call(ctx, "getMe", map[string]any{}, reply)
	if err != nil {
		return User{}, err
	}
	return reply.Result, nil
}

func (c *Client) SendText(ctx context.Context, chatId int64, text string, mode delivery.ParseMode) error {
	return c.call(ctx, "sendMessage", sendMessageRequest{
		ChatID:                chatId,
		Text:                  text,
		ParseMode:             string(mode),
		DisableWebPagePreview: true,
	}, &apiResponse{})
}

func (c *Client) SendPhoto(ctx context.Context, chatId int64, photo delivery.Photo, mode delivery.ParseMode) error {
	return c.call(ctx, "sendPhoto", sendPhotoRequest{
		ChatID:    chatId,
		Photo:     photo.Url,
		Caption:   photo.Caption,
		ParseMode: string(mode),
	}, &apiResponse{})
}

func (c *Client) SendAlbum(ctx context.Context, chatId int64, photos []delivery.Photo, mode delivery.ParseMode) error {
	if len(photos) < 2 || len(photos) > delivery.MAX_ALBUM_SIZE {
		return fmt.Errorf("an album needs 2 to %d photos, got %d", delivery.MAX_ALBUM_SIZE, len(photos))
	}

	media := make([]inputMediaPhoto, len(photos))
	for i, photo := range photos {
		media[i] = inputMediaPhoto{
			Type:    "photo",
			Media:   photo.Url,
			Caption: photo.Caption,
		}
		if photo.Caption != "" {
			media[i].ParseMode = string(mode)
		}
	}
	return c.call(ctx, "sendMediaGroup", sendMediaGroupRequest{
		ChatID: chatId,
		Media:  media,
	}, &apiResponse{})
}
