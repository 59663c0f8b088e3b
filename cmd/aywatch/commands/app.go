package commands

import (
	"aywatch/internal/alerts"
	"aywatch/internal/components/chrono"
	"aywatch/internal/components/telemetry"
	"aywatch/internal/db"
	"aywatch/internal/delivery"
	"aywatch/internal/fetch"
	"aywatch/internal/monitor"
	"aywatch/internal/scrapers/ayby"
	"aywatch/internal/store"
	"aywatch/internal/telegram"
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// stores are what every admin command works with.
type stores struct {
	database *sql.DB
	tel      telemetry.API
	clock    chrono.StandardImpl
	pages    store.Pages
	history  store.History
	settings *store.Settings
}

func openStores(ctx context.Context, tel telemetry.API) (*stores, error) {
	database, err := config.Database.OpenDB(db.Schema)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	qry := db.New(database)
	makeTx := db.NewMakeTx(database)
	clock := chrono.NewStandardImpl()

	settings, err := store.NewSettings(ctx, qry, config.defaults(), tel)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("load settings: %w", err)
	}

	s := &stores{
		database: database,
		tel:      tel,
		clock:    clock,
		pages:    store.NewPages(qry, makeTx, tel),
		history:  store.NewHistory(qry, makeTx, clock, tel),
		settings: settings,
	}

	seeded, err := s.pages.SeedDefaults(ctx, config.MonitorUrls)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("seed default pages: %w", err)
	}
	if seeded {
		slog.Info("seeded tracked pages", "urls", config.MonitorUrls)
	}
	return s, nil
}

func (s *stores) Close() error {
	return s.database.Close()
}

func fetchSettings(snapshot store.Snapshot) fetch.Settings {
	return fetch.Settings{
		Timeout:       snapshot.Timeout,
		MaxRetries:    snapshot.MaxRetries,
		BackoffFactor: snapshot.BackoffFactor,
		Delay:         snapshot.Delay,
	}
}

// bot is the fully wired monitoring pipeline.
type bot struct {
	*stores
	telegram  *telegram.Client
	alerter   *alerts.Alerter
	forwarder *alerts.TelemetryForwarder
	fetcher   *fetch.Fetcher
	notifier  *delivery.Notifier
	monitor   monitor.Monitor
}

func (b *bot) admins() []int64 {
	return b.settings.Snapshot().Admins
}

// openBot wires the pipeline. Broken reports of every component are forwarded to
// the admins, the alerting path itself reports to base only.
func openBot(ctx context.Context, base telemetry.API) (*bot, error) {
	err := config.validateForBot()
	if err != nil {
		return nil, err
	}

	b := &bot{}
	b.telegram = telegram.NewClient(telegram.Config{
		Token:   config.BotToken,
		BaseUrl: config.TelegramBaseUrl,
	}, base)

	var mailer alerts.Mailer
	if config.Smtp.Enabled() {
		mailer = alerts.NewSmtpMailer(config.Smtp)
	}
	b.alerter = alerts.NewAlerter(b.telegram, b.admins, config.OncallTag, mailer, base)
	clock := chrono.NewStandardImpl()
	b.forwarder = alerts.NewTelemetryForwarder(base, b.alerter, clock)

	b.stores, err = openStores(ctx, b.forwarder)
	if err != nil {
		return nil, err
	}

	b.fetcher = fetch.NewFetcher(fetchSettings(b.settings.Snapshot()), b.forwarder)
	b.notifier = delivery.NewNotifier(b.telegram, b.admins, b.alerter, b.clock, b.forwarder)
	b.monitor = monitor.NewMonitor(
		ayby.NewScraper(b.fetcher, b.forwarder),
		b.pages,
		b.history,
		b.notifier,
		b.alerter,
		b.forwarder,
	)
	return b, nil
}
