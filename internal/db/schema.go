package db

import _ "embed"

//go:embed schema.sql
var Schema string

const (
	SETTING_PAGES_SEEDED     = "pages_seeded"
	SETTING_CHECK_INTERVAL   = "check_interval_minutes"
	SETTING_HTTP_TIMEOUT     = "http_timeout_seconds"
	SETTING_HTTP_MAX_RETRIES = "http_max_retries"
	SETTING_HTTP_BACKOFF     = "http_backoff_factor"
	SETTING_HTTP_DELAY       = "http_request_delay_seconds"
	SETTING_ADMIN_CHAT_IDS   = "admin_chat_ids"
)
