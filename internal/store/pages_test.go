package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

var defaultUrls = []string{
	"https://coins.ay.by/sssr/yubilejnye/iz-dragocennyh-metallov/",
	"https://coins.ay.by/rossiya/?f=1&ti1=6",
}

func TestSeedDefaultsOnce(t *testing.T) {
	ctx := context.Background()
	database := openTestDB(t)
	pages, _ := newTestPages(t, database)

	seeded, err := pages.SeedDefaults(ctx, defaultUrls)
	require.NoError(t, err)
	require.True(t, seeded)

	list, err := pages.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, defaultUrls[0], list[0].Url)
	require.Equal(t, "iz dragocennyh metallov", list[0].Label)
	require.True(t, list[0].Enabled)

	for _, page := range list {
		_, err := pages.Remove(ctx, page.ID)
		require.NoError(t, err)
	}

	again, _ := newTestPages(t, database)
	seeded, err = again.SeedDefaults(ctx, defaultUrls)
	require.NoError(t, err)
	require.False(t, seeded)

	list, err = again.List(ctx)
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestSeedDefaultsSkipsInvalid(t *testing.T) {
	ctx := context.Background()
	pages, tel := newTestPages(t, openTestDB(t))

	_, err := pages.SeedDefaults(ctx, []string{"not a url", defaultUrls[0], defaultUrls[0]})
	require.NoError(t, err)

	list, err := pages.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Len(t, tel.Reports("warning", report_pages_seed), 1)
}

func TestPageLifecycle(t *testing.T) {
	ctx := context.Background()
	pages, _ := newTestPages(t, openTestDB(t))

	page, err := pages.Add(ctx, "https://coins.ay.by/some-page?order=create", "Новые предложения")
	require.NoError(t, err)
	require.NotZero(t, page.ID)
	require.True(t, page.Enabled)

	toggled, err := pages.Toggle(ctx, page.ID)
	require.NoError(t, err)
	require.False(t, toggled.Enabled)

	enabled, err := pages.Enabled(ctx)
	require.NoError(t, err)
	require.Empty(t, enabled)

	renamed, err := pages.Rename(ctx, page.ID, "Обновлённые предложения")
	require.NoError(t, err)
	require.Equal(t, "Обновлённые предложения", renamed.Label)
	require.False(t, renamed.Enabled)

	removed, err := pages.Remove(ctx, page.ID)
	require.NoError(t, err)
	require.Equal(t, page.ID, removed.ID)

	_, err = pages.Toggle(ctx, page.ID)
	require.ErrorIs(t, err, ErrPageNotFound)
	_, err = pages.Rename(ctx, page.ID, "x")
	require.ErrorIs(t, err, ErrPageNotFound)
	_, err = pages.Remove(ctx, page.ID)
	require.ErrorIs(t, err, ErrPageNotFound)
}

func TestAddValidation(t *testing.T) {
	ctx := context.Background()
	pages, _ := newTestPages(t, openTestDB(t))

	_, err := pages.Add(ctx, "https://coins.ay.by/catalog/", "")
	require.NoError(t, err)

	testCases := []struct {
		name  string
		url   string
		field string
	}{
		{name: "duplicate", url: "https://coins.ay.by/catalog/", field: "url"},
		{name: "empty", url: "", field: "url"},
		{name: "relative", url: "/catalog/", field: "url"},
		{name: "ftp", url: "ftp://coins.ay.by/catalog/", field: "url"},
	}
	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			_, err := pages.Add(ctx, test.url, "")
			require.True(t, IsValidation(err), err)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			require.Equal(t, test.field, verr.Field)
			require.NotEmpty(t, verr.Reason)
		})
	}

	_, err = pages.Rename(ctx, 1, "   ")
	require.True(t, IsValidation(err))
}

func TestDeriveLabel(t *testing.T) {
	testCases := []struct {
		url      string
		expected string
	}{
		{url: "https://coins.ay.by/sssr/yubilejnye/iz-dragocennyh-metallov/", expected: "iz dragocennyh metallov"},
		{url: "https://coins.ay.by/rossiya/?f=1&order=cost_desc", expected: "rossiya (дороже)"},
		{url: "https://coins.ay.by/rossiya/?order=unknown", expected: "rossiya"},
		{url: "https://coins.ay.by/", expected: "coins.ay.by"},
	}
	for _, test := range testCases {
		t.Run(test.url, func(t *testing.T) {
			require.Equal(t, test.expected, DeriveLabel(test.url))
		})
	}
}

func TestSetSortOrder(t *testing.T) {
	ctx := context.Background()
	pages, _ := newTestPages(t, openTestDB(t))

	page, err := pages.Add(ctx, "https://coins.ay.by/rossiya/", "")
	require.NoError(t, err)
	require.Equal(t, "rossiya", page.Label)

	updated, err := pages.SetSortOrder(ctx, page.ID, "cost_desc")
	require.NoError(t, err)
	require.Equal(t, "https://coins.ay.by/rossiya/?order=cost_desc", updated.Url)
	require.Equal(t, "rossiya (дороже)", updated.Label)

	stored, err := pages.Get(ctx, page.ID)
	require.NoError(t, err)
	require.Equal(t, updated, stored)

	reverted, err := pages.SetSortOrder(ctx, page.ID, "")
	require.NoError(t, err)
	require.Equal(t, "https://coins.ay.by/rossiya/", reverted.Url)
	require.Equal(t, "rossiya", reverted.Label)

	_, err = pages.SetSortOrder(ctx, page.ID, "unknown-sort")
	require.True(t, IsValidation(err))

	_, err = pages.SetSortOrder(ctx, 999, "create")
	require.ErrorIs(t, err, ErrPageNotFound)
}

func TestSetSortOrderKeepsCustomLabel(t *testing.T) {
	ctx := context.Background()
	pages, _ := newTestPages(t, openTestDB(t))

	page, err := pages.Add(ctx, "https://example.com/catalog?f=1&ti1=6", "Каталог")
	require.NoError(t, err)

	sorted, err := pages.SetSortOrder(ctx, page.ID, "create")
	require.NoError(t, err)
	require.Equal(t, "https://example.com/catalog?f=1&ti1=6&order=create", sorted.Url)
	require.Equal(t, "Каталог", sorted.Label)

	reverted, err := pages.SetSortOrder(ctx, page.ID, "")
	require.NoError(t, err)
	require.Equal(t, "https://example.com/catalog?f=1&ti1=6", reverted.Url)
}

func TestWithSortOrder(t *testing.T) {
	testCases := []struct {
		name     string
		url      string
		order    string
		expected string
	}{
		{
			name:     "moves order to the end",
			url:      "https://coins.ay.by/x/?f=1&order=create&ti1=6/",
			order:    "end",
			expected: "https://coins.ay.by/x/?f=1&ti1=6/&order=end",
		},
		{
			name:     "keeps encoding verbatim",
			url:      "https://coins.ay.by/x/?q=%D0%BC%D0%BE%D0%BD%D0%B5%D1%82%D0%B0&b=a+b",
			order:    "cost_asc",
			expected: "https://coins.ay.by/x/?q=%D0%BC%D0%BE%D0%BD%D0%B5%D1%82%D0%B0&b=a+b&order=cost_asc",
		},
		{
			name:     "removes duplicates",
			url:      "https://coins.ay.by/x/?order=create&order=end",
			order:    "",
			expected: "https://coins.ay.by/x/",
		},
	}
	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			result, err := WithSortOrder(test.url, test.order)
			require.NoError(t, err)
			require.Equal(t, test.expected, result)
		})
	}
}
