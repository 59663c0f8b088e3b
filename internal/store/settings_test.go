package store

import (
	"aywatch/internal/components/telemetry"
	"aywatch/internal/db"
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testDefaults() Snapshot {
	return Snapshot{
		CheckInterval: time.Hour,
		Timeout:       10 * time.Second,
		MaxRetries:    3,
		BackoffFactor: 0.5,
		Delay:         time.Second,
		Admins:        []int64{123456789, 987654321},
	}
}

func newTestSettings(t testing.TB, database *sql.DB) (*Settings, *telemetry.TestingAPI) {
	t.Helper()
	tel := telemetry.NewTestingAPI()
	settings, err := NewSettings(context.Background(), db.New(database), testDefaults(), tel)
	require.NoError(t, err)
	return settings, tel
}

func TestSettingsDefaults(t *testing.T) {
	settings, _ := newTestSettings(t, openTestDB(t))
	require.Equal(t, testDefaults(), settings.Snapshot())
	require.NoError(t, settings.Snapshot().Validate())
}

func TestSettingsIntervalPersists(t *testing.T) {
	ctx := context.Background()
	database := openTestDB(t)
	settings, _ := newTestSettings(t, database)

	err := settings.SetCheckInterval(ctx, 2)
	require.True(t, IsValidation(err))
	require.Equal(t, time.Hour, settings.Snapshot().CheckInterval)

	require.NoError(t, settings.SetCheckInterval(ctx, 5))
	require.Equal(t, 5*time.Minute, settings.Snapshot().CheckInterval)

	again, _ := newTestSettings(t, database)
	require.Equal(t, 5*time.Minute, again.Snapshot().CheckInterval)
}

func TestSettingsBounds(t *testing.T) {
	ctx := context.Background()
	settings, _ := newTestSettings(t, openTestDB(t))

	testCases := []struct {
		name  string
		set   func() error
		valid bool
	}{
		{name: "interval floor", set: func() error { return settings.SetCheckInterval(ctx, 3) }, valid: true},
		{name: "interval ceiling", set: func() error { return settings.SetCheckInterval(ctx, 1441) }},
		{name: "zero timeout", set: func() error { return settings.SetTimeout(ctx, 0) }},
		{name: "fractional timeout", set: func() error { return settings.SetTimeout(ctx, 2.5) }, valid: true},
		{name: "timeout ceiling", set: func() error { return settings.SetTimeout(ctx, 121) }},
		{name: "no retries", set: func() error { return settings.SetMaxRetries(ctx, 0) }, valid: true},
		{name: "negative retries", set: func() error { return settings.SetMaxRetries(ctx, -1) }},
		{name: "retries ceiling", set: func() error { return settings.SetMaxRetries(ctx, 11) }},
		{name: "no backoff", set: func() error { return settings.SetBackoffFactor(ctx, 0) }, valid: true},
		{name: "negative backoff", set: func() error { return settings.SetBackoffFactor(ctx, -0.1) }},
		{name: "no delay", set: func() error { return settings.SetDelay(ctx, 0) }, valid: true},
		{name: "delay ceiling", set: func() error { return settings.SetDelay(ctx, 61) }},
		{name: "no admins", set: func() error { return settings.SetAdmins(ctx, nil) }},
		{name: "duplicate admins", set: func() error { return settings.SetAdmins(ctx, []int64{1, 1}) }},
	}

	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			err := test.set()
			if test.valid {
				require.NoError(t, err)
				return
			}
			require.True(t, IsValidation(err), err)
		})
	}

	snapshot := settings.Snapshot()
	require.Equal(t, 3*time.Minute, snapshot.CheckInterval)
	require.Equal(t, 2500*time.Millisecond, snapshot.Timeout)
	require.Equal(t, 0, snapshot.MaxRetries)
	require.Equal(t, time.Duration(0), snapshot.Delay)
	require.Equal(t, testDefaults().Admins, snapshot.Admins)
}

func TestSettingsAdmins(t *testing.T) {
	ctx := context.Background()
	database := openTestDB(t)
	settings, _ := newTestSettings(t, database)

	updated, err := settings.AddAdmin(ctx, 555666777)
	require.NoError(t, err)
	require.Equal(t, []int64{123456789, 987654321, 555666777}, updated)

	_, err = settings.AddAdmin(ctx, 555666777)
	require.True(t, IsValidation(err))

	again, _ := newTestSettings(t, database)
	require.Contains(t, again.Snapshot().Admins, int64(555666777))

	updated, err = settings.RemoveAdmin(ctx, 123456789)
	require.NoError(t, err)
	require.Equal(t, []int64{987654321, 555666777}, updated)

	_, err = settings.RemoveAdmin(ctx, 1)
	require.True(t, IsValidation(err))

	_, err = settings.RemoveAdmin(ctx, 987654321)
	require.NoError(t, err)
	_, err = settings.RemoveAdmin(ctx, 555666777)
	require.True(t, IsValidation(err))
}

func TestSettingsSnapshotIsACopy(t *testing.T) {
	settings, _ := newTestSettings(t, openTestDB(t))
	snapshot := settings.Snapshot()
	snapshot.Admins[0] = 42
	require.Equal(t, int64(123456789), settings.Snapshot().Admins[0])
}

func TestSettingsSubscribe(t *testing.T) {
	ctx := context.Background()
	settings, _ := newTestSettings(t, openTestDB(t))

	var received []Snapshot
	settings.Subscribe(func(s Snapshot) {
		received = append(received, s)
	})

	require.NoError(t, settings.SetMaxRetries(ctx, 7))
	require.Error(t, settings.SetMaxRetries(ctx, 70))
	require.NoError(t, settings.SetDelay(ctx, 1.5))

	require.Len(t, received, 2)
	require.Equal(t, 7, received[0].MaxRetries)
	require.Equal(t, 1500*time.Millisecond, received[1].Delay)
}

func TestSettingsIgnoresInvalidPersistedValue(t *testing.T) {
	ctx := context.Background()
	database := openTestDB(t)

	err := db.New(database).SetAppSetting(ctx, db.SetAppSettingParams{
		Key:   db.SETTING_CHECK_INTERVAL,
		Value: "1",
	})
	require.NoError(t, err)

	settings, tel := newTestSettings(t, database)
	require.Equal(t, time.Hour, settings.Snapshot().CheckInterval)
	require.Len(t, tel.Reports("warning", report_settings_load), 1)
}

func TestSettingsReloadPicksUpOtherWriters(t *testing.T) {
	ctx := context.Background()
	database := openTestDB(t)
	running, _ := newTestSettings(t, database)
	cli, _ := newTestSettings(t, database)

	var announced []Snapshot
	running.Subscribe(func(s Snapshot) {
		announced = append(announced, s)
	})

	require.NoError(t, running.Reload(ctx))
	require.Empty(t, announced, "nothing changed")

	require.NoError(t, cli.SetDelay(ctx, 2.5))
	require.NoError(t, running.Reload(ctx))
	require.Len(t, announced, 1)
	require.Equal(t, 2500*time.Millisecond, announced[0].Delay)
	require.Equal(t, 2500*time.Millisecond, running.Snapshot().Delay)
}
