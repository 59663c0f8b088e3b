package store

import (
	"aywatch/internal/components/assert"
	"aywatch/internal/components/telemetry"
	"aywatch/internal/db"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	report_settings_load = "settings.load"
)

const (
	MIN_CHECK_INTERVAL_MINUTES = 3
	MAX_CHECK_INTERVAL_MINUTES = 1440
	MAX_TIMEOUT_SECONDS        = 120
	MAX_RETRIES                = 10
	MAX_BACKOFF_FACTOR         = 30
	MAX_DELAY_SECONDS          = 60
)

// Snapshot is a copy of the runtime settings at one point in time.
type Snapshot struct {
	CheckInterval time.Duration
	Timeout       time.Duration
	MaxRetries    int
	BackoffFactor float64
	Delay         time.Duration
	Admins        []int64
}

func (s Snapshot) clone() Snapshot {
	s.Admins = slices.Clone(s.Admins)
	return s
}

func (s Snapshot) equal(other Snapshot) bool {
	return s.CheckInterval == other.CheckInterval &&
		s.Timeout == other.Timeout &&
		s.MaxRetries == other.MaxRetries &&
		s.BackoffFactor == other.BackoffFactor &&
		s.Delay == other.Delay &&
		slices.Equal(s.Admins, other.Admins)
}

func seconds(d time.Duration) float64 {
	return d.Seconds()
}

func fromSeconds(s float64) time.Duration {
	return time.Duration(math.Round(s * float64(time.Second)))
}

func validateInterval(minutes int) error {
	if minutes < MIN_CHECK_INTERVAL_MINUTES || minutes > MAX_CHECK_INTERVAL_MINUTES {
		return invalid("interval", "must be between %d and %d minutes, got %d", MIN_CHECK_INTERVAL_MINUTES, MAX_CHECK_INTERVAL_MINUTES, minutes)
	}
	return nil
}

func validateTimeout(secs float64) error {
	if math.IsNaN(secs) || secs <= 0 || secs > MAX_TIMEOUT_SECONDS {
		return invalid("timeout", "must be above 0 and at most %d seconds, got %g", MAX_TIMEOUT_SECONDS, secs)
	}
	return nil
}

func validateRetries(n int) error {
	if n < 0 || n > MAX_RETRIES {
		return invalid("retries", "must be between 0 and %d, got %d", MAX_RETRIES, n)
	}
	return nil
}

func validateBackoff(factor float64) error {
	if math.IsNaN(factor) || factor < 0 || factor > MAX_BACKOFF_FACTOR {
		return invalid("backoff", "must be between 0 and %d, got %g", MAX_BACKOFF_FACTOR, factor)
	}
	return nil
}

func validateDelay(secs float64) error {
	if math.IsNaN(secs) || secs < 0 || secs > MAX_DELAY_SECONDS {
		return invalid("delay", "must be between 0 and %d seconds, got %g", MAX_DELAY_SECONDS, secs)
	}
	return nil
}

func validateAdmins(admins []int64) error {
	if len(admins) == 0 {
		return invalid("admins", "at least one admin is required")
	}
	seen := map[int64]struct{}{}
	for _, id := range admins {
		if id == 0 {
			return invalid("admins", "0 is not a chat id")
		}
		if _, ok := seen[id]; ok {
			return invalid("admins", "%d is listed twice", id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

// Validate checks every field of the snapshot against its bounds.
func (s Snapshot) Validate() error {
	return errors.Join(
		validateInterval(int(s.CheckInterval/time.Minute)),
		validateTimeout(seconds(s.Timeout)),
		validateRetries(s.MaxRetries),
		validateBackoff(s.BackoffFactor),
		validateDelay(seconds(s.Delay)),
		validateAdmins(s.Admins),
	)
}

func formatAdmins(admins []int64) string {
	parts := make([]string, len(admins))
	for i, id := range admins {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}

func parseAdmins(value string) ([]int64, error) {
	var admins []int64
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, err
		}
		admins = append(admins, id)
	}
	return admins, nil
}

// Settings holds the live runtime settings. Defaults come from the environment,
// every change is validated, persisted and then announced to subscribers.
type Settings struct {
	qry      *db.Queries
	tel      telemetry.API
	defaults Snapshot

	mu          sync.Mutex
	current     Snapshot
	subscribers []func(Snapshot)
}

// NewSettings loads persisted overrides on top of defaults. A persisted value that
// no longer passes validation is reported and the default is kept.
func NewSettings(ctx context.Context, qry *db.Queries, defaults Snapshot, tel telemetry.API) (*Settings, error) {
	assert.NotNil(qry, "queries")
	assert.NotNil(tel, "telemetry")

	s := &Settings{
		qry:      qry,
		tel:      telemetry.NewScopedAPI("store", tel),
		defaults: defaults.clone(),
	}
	current, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	s.current = current
	return s, nil
}

// load reads the persisted overrides on top of the defaults.
func (s *Settings) load(ctx context.Context) (Snapshot, error) {
	snap := s.defaults.clone()

	load := func(key string, apply func(value string) error) error {
		value, err := s.qry.GetAppSetting(ctx, key)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			s.tel.ReportBroken(report_db_query, err, "GetAppSetting", key)
			return err
		}
		err = apply(value)
		if err != nil {
			s.tel.ReportWarning(report_settings_load, fmt.Errorf("%s=%q: %w", key, value, err))
		}
		return nil
	}

	loaders := []struct {
		key   string
		apply func(value string) error
	}{
		{db.SETTING_CHECK_INTERVAL, func(value string) error {
			minutes, err := strconv.Atoi(value)
			if err != nil {
				return err
			}
			if err := validateInterval(minutes); err != nil {
				return err
			}
			snap.CheckInterval = time.Duration(minutes) * time.Minute
			return nil
		}},
		{db.SETTING_HTTP_TIMEOUT, func(value string) error {
			secs, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return err
			}
			if err := validateTimeout(secs); err != nil {
				return err
			}
			snap.Timeout = fromSeconds(secs)
			return nil
		}},
		{db.SETTING_HTTP_MAX_RETRIES, func(value string) error {
			n, err := strconv.Atoi(value)
			if err != nil {
				return err
			}
			if err := validateRetries(n); err != nil {
				return err
			}
			snap.MaxRetries = n
			return nil
		}},
		{db.SETTING_HTTP_BACKOFF, func(value string) error {
			factor, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return err
			}
			if err := validateBackoff(factor); err != nil {
				return err
			}
			snap.BackoffFactor = factor
			return nil
		}},
		{db.SETTING_HTTP_DELAY, func(value string) error {
			secs, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return err
			}
			if err := validateDelay(secs); err != nil {
				return err
			}
			snap.Delay = fromSeconds(secs)
			return nil
		}},
		{db.SETTING_ADMIN_CHAT_IDS, func(value string) error {
			admins, err := parseAdmins(value)
			if err != nil {
				return err
			}
			if err := validateAdmins(admins); err != nil {
				return err
			}
			snap.Admins = admins
			return nil
		}},
	}
	for _, loader := range loaders {
		err := load(loader.key, loader.apply)
		if err != nil {
			return Snapshot{}, err
		}
	}
	return snap, nil
}

// Reload picks up changes persisted by another process and announces them to
// subscribers when anything changed.
func (s *Settings) Reload(ctx context.Context) error {
	snap, err := s.load(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if snap.equal(s.current) {
		s.mu.Unlock()
		return nil
	}
	s.current = snap
	subscribers := slices.Clone(s.subscribers)
	s.mu.Unlock()

	for _, fn := range subscribers {
		fn(snap.clone())
	}
	return nil
}

// Snapshot returns a copy of the current settings.
func (s *Settings) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.clone()
}

// Subscribe registers fn to be called with the new settings after every change.
func (s *Settings) Subscribe(fn func(Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append(s.subscribers, fn)
}

func (s *Settings) update(ctx context.Context, key, value string, mutate func(*Snapshot)) error {
	s.mu.Lock()
	err := s.qry.SetAppSetting(ctx, db.SetAppSettingParams{Key: key, Value: value})
	if err != nil {
		s.mu.Unlock()
		s.tel.ReportBroken(report_db_query, err, "SetAppSetting", key)
		return err
	}
	mutate(&s.current)
	snapshot := s.current.clone()
	subscribers := slices.Clone(s.subscribers)
	s.mu.Unlock()

	for _, fn := range subscribers {
		fn(snapshot.clone())
	}
	return nil
}

func (s *Settings) SetCheckInterval(ctx context.Context, minutes int) error {
	if err := validateInterval(minutes); err != nil {
		return err
	}
	return s.update(ctx, db.SETTING_CHECK_INTERVAL, strconv.Itoa(minutes), func(snap *Snapshot) {
		snap.CheckInterval = time.Duration(minutes) * time.Minute
	})
}

func (s *Settings) SetTimeout(ctx context.Context, secs float64) error {
	if err := validateTimeout(secs); err != nil {
		return err
	}
	return s.update(ctx, db.SETTING_HTTP_TIMEOUT, strconv.FormatFloat(secs, 'f', -1, 64), func(snap *Snapshot) {
		snap.Timeout = fromSeconds(secs)
	})
}

func (s *Settings) SetMaxRetries(ctx context.Context, n int) error {
	if err := validateRetries(n); err != nil {
		return err
	}
	return s.update(ctx, db.SETTING_HTTP_MAX_RETRIES, strconv.Itoa(n), func(snap *Snapshot) {
		snap.MaxRetries = n
	})
}

func (s *Settings) SetBackoffFactor(ctx context.Context, factor float64) error {
	if err := validateBackoff(factor); err != nil {
		return err
	}
	return s.update(ctx, db.SETTING_HTTP_BACKOFF, strconv.FormatFloat(factor, 'f', -1, 64), func(snap *Snapshot) {
		snap.BackoffFactor = factor
	})
}

func (s *Settings) SetDelay(ctx context.Context, secs float64) error {
	if err := validateDelay(secs); err != nil {
		return err
	}
	return s.update(ctx, db.SETTING_HTTP_DELAY, strconv.FormatFloat(secs, 'f', -1, 64), func(snap *Snapshot) {
		snap.Delay = fromSeconds(secs)
	})
}

func (s *Settings) SetAdmins(ctx context.Context, admins []int64) error {
	if err := validateAdmins(admins); err != nil {
		return err
	}
	admins = slices.Clone(admins)
	return s.update(ctx, db.SETTING_ADMIN_CHAT_IDS, formatAdmins(admins), func(snap *Snapshot) {
		snap.Admins = admins
	})
}

// AddAdmin appends id to the admin list, adding an existing admin is a validation error.
func (s *Settings) AddAdmin(ctx context.Context, id int64) ([]int64, error) {
	current := s.Snapshot().Admins
	if slices.Contains(current, id) {
		return nil, invalid("admins", "%d is already an admin", id)
	}
	updated := append(current, id)
	err := s.SetAdmins(ctx, updated)
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// RemoveAdmin drops id from the admin list, the last admin cannot be removed.
func (s *Settings) RemoveAdmin(ctx context.Context, id int64) ([]int64, error) {
	current := s.Snapshot().Admins
	index := slices.Index(current, id)
	if index < 0 {
		return nil, invalid("admins", "%d is not an admin", id)
	}
	updated := slices.Delete(current, index, index+1)
	err := s.SetAdmins(ctx, updated)
	if err != nil {
		return nil, err
	}
	return updated, nil
}
