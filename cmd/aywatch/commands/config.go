package commands

import (
	"aywatch/internal/alerts"
	"aywatch/internal/components/configutil"
	configlibsql "aywatch/internal/components/configutil/libsql"
	"aywatch/internal/components/telemetry"
	"aywatch/internal/store"
	"errors"
	"fmt"
	"os"
	"time"

	"dario.cat/mergo"
)

var defaultMonitorUrls = []string{
	"https://coins.ay.by/sssr/yubilejnye/iz-dragocennyh-metallov/",
	"https://coins.ay.by/rossiya/?f=1&ti1=6",
}

type HttpConfig struct {
	TimeoutSeconds float64 `json:"timeout_seconds"`
	MaxRetries     int     `json:"max_retries"`
	BackoffFactor  float64 `json:"backoff_factor"`
	DelaySeconds   float64 `json:"delay_seconds"`
}

type Config struct {
	BotToken             string              `json:"bot_token"`
	TelegramBaseUrl      string              `json:"telegram_base_url"`
	AdminChatIds         []int64             `json:"admin_chat_ids"`
	MonitorUrls          []string            `json:"monitor_urls"`
	CheckIntervalMinutes int                 `json:"check_interval_minutes"`
	OncallTag            string              `json:"oncall_tag"`
	Http                 HttpConfig          `json:"http"`
	Database             configlibsql.Struct `json:"database"`
	Smtp                 alerts.SmtpConfig   `json:"smtp"`
	Telemetry            telemetry.Config    `json:"telemetry"`
}

func defaultConfig() Config {
	return Config{
		MonitorUrls:          defaultMonitorUrls,
		CheckIntervalMinutes: 60,
		Http: HttpConfig{
			TimeoutSeconds: 20,
			MaxRetries:     3,
			BackoffFactor:  1,
			DelaySeconds:   1,
		},
		Database: configlibsql.Struct{
			File: "data/aywatch.db",
		},
	}
}

// loadConfig reads config.json5 (when present) and applies environment overrides,
// the environment wins.
func loadConfig(path string) (Config, error) {
	config := defaultConfig()

	err := configutil.LoadDotEnv()
	if err != nil {
		return config, err
	}

	fromFile, err := configutil.ReadConfig[Config](path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return config, err
	}
	if err == nil {
		err = mergo.Merge(&config, fromFile, mergo.WithOverride)
		if err != nil {
			return config, err
		}
	}

	configutil.EnvString("BOT_TOKEN", &config.BotToken)
	configutil.EnvString("ONCALL_TAG", &config.OncallTag)
	configutil.EnvString("DATABASE_FILE", &config.Database.File)
	configutil.EnvList("MONITOR_URLS", &config.MonitorUrls)
	errs := []error{
		configutil.EnvInt64List("ADMIN_CHAT_IDS", &config.AdminChatIds),
		configutil.EnvInt("CHECK_INTERVAL_MINUTES", &config.CheckIntervalMinutes),
		configutil.EnvFloat("HTTP_TIMEOUT_SECONDS", &config.Http.TimeoutSeconds),
		configutil.EnvInt("HTTP_MAX_RETRIES", &config.Http.MaxRetries),
		configutil.EnvFloat("HTTP_BACKOFF_FACTOR", &config.Http.BackoffFactor),
		configutil.EnvFloat("HTTP_REQUEST_DELAY_SECONDS", &config.Http.DelaySeconds),
	}
	return config, errors.Join(errs...)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// defaults are the runtime settings used until an admin changes them.
func (c Config) defaults() store.Snapshot {
	return store.Snapshot{
		CheckInterval: time.Duration(c.CheckIntervalMinutes) * time.Minute,
		Timeout:       seconds(c.Http.TimeoutSeconds),
		MaxRetries:    c.Http.MaxRetries,
		BackoffFactor: c.Http.BackoffFactor,
		Delay:         seconds(c.Http.DelaySeconds),
		Admins:        append([]int64(nil), c.AdminChatIds...),
	}
}

// validateForBot checks what is needed to talk to Telegram.
func (c Config) validateForBot() error {
	if c.BotToken == "" {
		return fmt.Errorf("BOT_TOKEN is required")
	}
	return nil
}
