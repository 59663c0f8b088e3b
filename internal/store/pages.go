package store

import (
	"aywatch/internal/components/assert"
	"aywatch/internal/components/telemetry"
	"aywatch/internal/db"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
)

const (
	report_db_query   = "db.query"
	report_pages_seed = "pages.seed"
)

// SortOrders maps the values of the catalogue's "order" query parameter to a
// short human hint used in derived labels.
var SortOrders = map[string]string{
	"create":    "новые",
	"cost_asc":  "дешевле",
	"cost_desc": "дороже",
	"end":       "скоро завершатся",
}

type Page struct {
	ID      int64
	Label   string
	Url     string
	Enabled bool
}

func pageFromRow(row db.TrackedPage) Page {
	return Page{
		ID:      row.ID,
		Label:   row.Label,
		Url:     row.Url,
		Enabled: row.Enabled,
	}
}

// Pages is the store of tracked catalogue pages.
type Pages struct {
	qry    *db.Queries
	makeTx db.MakeTx
	tel    telemetry.API
}

func NewPages(qry *db.Queries, makeTx db.MakeTx, tel telemetry.API) Pages {
	assert.NotNil(qry, "queries")
	assert.NotNil(makeTx, "makeTx")
	assert.NotNil(tel, "telemetry")

	return Pages{
		qry:    qry,
		makeTx: makeTx,
		tel:    telemetry.NewScopedAPI("store", tel),
	}
}

// ValidatePageUrl checks that raw is an absolute http(s) url.
func ValidatePageUrl(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, invalid("url", "url is empty")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, invalid("url", "cannot parse %q", raw)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, invalid("url", "%q is not an http(s) url", raw)
	}
	if parsed.Host == "" {
		return nil, invalid("url", "%q has no host", raw)
	}
	return parsed, nil
}

// queryParam returns the value of key in a raw query without decoding the rest of it.
func queryParam(rawQuery, key string) string {
	for _, pair := range strings.Split(rawQuery, "&") {
		k, v, _ := strings.Cut(pair, "=")
		if k == key {
			return v
		}
	}
	return ""
}

// DeriveLabel builds a label out of the last path segment of a page url and
// the hint of its sort order.
func DeriveLabel(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	slug := path.Base(strings.TrimRight(parsed.Path, "/"))
	if slug == "." || slug == "/" || slug == "" {
		slug = parsed.Hostname()
	}
	slug = strings.ReplaceAll(slug, "-", " ")
	slug = strings.ReplaceAll(slug, "_", " ")

	order := queryParam(parsed.RawQuery, "order")
	if hint, ok := SortOrders[order]; ok {
		return fmt.Sprintf("%s (%s)", slug, hint)
	}
	return slug
}

// WithSortOrder rewrites the "order" query parameter of raw, keeping every other
// parameter verbatim and in place. An empty order removes the parameter.
func WithSortOrder(raw, order string) (string, error) {
	parsed, err := ValidatePageUrl(raw)
	if err != nil {
		return "", err
	}
	if order != "" {
		if _, ok := SortOrders[order]; !ok {
			return "", invalid("order", "unknown sort order %q", order)
		}
	}

	var pairs []string
	if parsed.RawQuery != "" {
		for _, pair := range strings.Split(parsed.RawQuery, "&") {
			key, _, _ := strings.Cut(pair, "=")
			if key == "order" {
				continue
			}
			pairs = append(pairs, pair)
		}
	}
	if order != "" {
		pairs = append(pairs, "order="+order)
	}
	parsed.RawQuery = strings.Join(pairs, "&")
	parsed.ForceQuery = false
	return parsed.String(), nil
}

func (p Pages) List(ctx context.Context) ([]Page, error) {
	rows, err := p.qry.ListTrackedPages(ctx)
	if err != nil {
		p.tel.ReportBroken(report_db_query, err, "ListTrackedPages")
		return nil, err
	}
	pages := make([]Page, len(rows))
	for i, row := range rows {
		pages[i] = pageFromRow(row)
	}
	return pages, nil
}

func (p Pages) Enabled(ctx context.Context) ([]Page, error) {
	rows, err := p.qry.ListEnabledTrackedPages(ctx)
	if err != nil {
		p.tel.ReportBroken(report_db_query, err, "ListEnabledTrackedPages")
		return nil, err
	}
	pages := make([]Page, len(rows))
	for i, row := range rows {
		pages[i] = pageFromRow(row)
	}
	return pages, nil
}

func (p Pages) Get(ctx context.Context, id int64) (Page, error) {
	return p.get(ctx, p.qry, id)
}

func (p Pages) get(ctx context.Context, qry *db.Queries, id int64) (Page, error) {
	row, err := qry.GetTrackedPage(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Page{}, ErrPageNotFound
	}
	if err != nil {
		p.tel.ReportBroken(report_db_query, err, "GetTrackedPage", id)
		return Page{}, err
	}
	return pageFromRow(row), nil
}

func (p Pages) ensureUnique(ctx context.Context, qry *db.Queries, pageUrl string) error {
	existing, err := qry.GetTrackedPageByUrl(ctx, pageUrl)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		p.tel.ReportBroken(report_db_query, err, "GetTrackedPageByUrl", pageUrl)
		return err
	}
	return invalid("url", "already tracked as #%d %q", existing.ID, existing.Label)
}

// Add tracks a new page, the label is derived from the url when empty.
func (p Pages) Add(ctx context.Context, pageUrl, label string) (Page, error) {
	parsed, err := ValidatePageUrl(pageUrl)
	if err != nil {
		return Page{}, err
	}
	pageUrl = parsed.String()
	label = strings.TrimSpace(label)
	if label == "" {
		label = DeriveLabel(pageUrl)
	}

	tx, discard, commit, err := p.makeTx()
	if err != nil {
		p.tel.ReportBroken(report_db_query, fmt.Errorf("make tx: %w", err))
		return Page{}, err
	}
	defer discard()

	err = p.ensureUnique(ctx, tx, pageUrl)
	if err != nil {
		return Page{}, err
	}
	id, err := tx.CreateTrackedPage(ctx, db.CreateTrackedPageParams{
		Label:   label,
		Url:     pageUrl,
		Enabled: true,
	})
	if err != nil {
		p.tel.ReportBroken(report_db_query, err, "CreateTrackedPage", pageUrl)
		return Page{}, err
	}
	err = commit()
	if err != nil {
		p.tel.ReportBroken(report_db_query, fmt.Errorf("commit: %w", err))
		return Page{}, err
	}

	return Page{ID: id, Label: label, Url: pageUrl, Enabled: true}, nil
}

// Toggle flips whether the page is checked and returns the updated page.
func (p Pages) Toggle(ctx context.Context, id int64) (Page, error) {
	tx, discard, commit, err := p.makeTx()
	if err != nil {
		p.tel.ReportBroken(report_db_query, fmt.Errorf("make tx: %w", err))
		return Page{}, err
	}
	defer discard()

	page, err := p.get(ctx, tx, id)
	if err != nil {
		return Page{}, err
	}
	page.Enabled = !page.Enabled
	_, err = tx.SetTrackedPageEnabled(ctx, db.SetTrackedPageEnabledParams{
		Enabled: page.Enabled,
		ID:      id,
	})
	if err != nil {
		p.tel.ReportBroken(report_db_query, err, "SetTrackedPageEnabled", id)
		return Page{}, err
	}
	err = commit()
	if err != nil {
		p.tel.ReportBroken(report_db_query, fmt.Errorf("commit: %w", err))
		return Page{}, err
	}
	return page, nil
}

func (p Pages) Rename(ctx context.Context, id int64, label string) (Page, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return Page{}, invalid("label", "label is empty")
	}
	affected, err := p.qry.RenameTrackedPage(ctx, db.RenameTrackedPageParams{
		Label: label,
		ID:    id,
	})
	if err != nil {
		p.tel.ReportBroken(report_db_query, err, "RenameTrackedPage", id)
		return Page{}, err
	}
	if affected == 0 {
		return Page{}, ErrPageNotFound
	}
	return p.Get(ctx, id)
}

// Remove stops tracking a page and returns it as it was.
func (p Pages) Remove(ctx context.Context, id int64) (Page, error) {
	tx, discard, commit, err := p.makeTx()
	if err != nil {
		p.tel.ReportBroken(report_db_query, fmt.Errorf("make tx: %w", err))
		return Page{}, err
	}
	defer discard()

	page, err := p.get(ctx, tx, id)
	if err != nil {
		return Page{}, err
	}
	_, err = tx.DeleteTrackedPage(ctx, id)
	if err != nil {
		p.tel.ReportBroken(report_db_query, err, "DeleteTrackedPage", id)
		return Page{}, err
	}
	err = commit()
	if err != nil {
		p.tel.ReportBroken(report_db_query, fmt.Errorf("commit: %w", err))
		return Page{}, err
	}
	return page, nil
}

// SetSortOrder rewrites the sort order of a page's url, an empty order removes it.
// A label that was derived from the old url is derived again from the new one.
func (p Pages) SetSortOrder(ctx context.Context, id int64, order string) (Page, error) {
	tx, discard, commit, err := p.makeTx()
	if err != nil {
		p.tel.ReportBroken(report_db_query, fmt.Errorf("make tx: %w", err))
		return Page{}, err
	}
	defer discard()

	page, err := p.get(ctx, tx, id)
	if err != nil {
		return Page{}, err
	}
	updatedUrl, err := WithSortOrder(page.Url, order)
	if err != nil {
		return Page{}, err
	}
	if updatedUrl == page.Url {
		return page, nil
	}
	err = p.ensureUnique(ctx, tx, updatedUrl)
	if err != nil {
		return Page{}, err
	}

	label := page.Label
	if label == DeriveLabel(page.Url) {
		label = DeriveLabel(updatedUrl)
	}
	_, err = tx.SetTrackedPageUrl(ctx, db.SetTrackedPageUrlParams{
		Url:   updatedUrl,
		Label: label,
		ID:    id,
	})
	if err != nil {
		p.tel.ReportBroken(report_db_query, err, "SetTrackedPageUrl", id)
		return Page{}, err
	}
	err = commit()
	if err != nil {
		p.tel.ReportBroken(report_db_query, fmt.Errorf("commit: %w", err))
		return Page{}, err
	}

	page.Url = updatedUrl
	page.Label = label
	return page, nil
}

// SeedDefaults tracks the default pages the first time it runs against a database.
// Later calls do nothing, even when every page has been removed since.
func (p Pages) SeedDefaults(ctx context.Context, urls []string) (bool, error) {
	tx, discard, commit, err := p.makeTx()
	if err != nil {
		p.tel.ReportBroken(report_db_query, fmt.Errorf("make tx: %w", err))
		return false, err
	}
	defer discard()

	_, err = tx.GetAppSetting(ctx, db.SETTING_PAGES_SEEDED)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		p.tel.ReportBroken(report_db_query, err, "GetAppSetting", db.SETTING_PAGES_SEEDED)
		return false, err
	}

	for _, raw := range urls {
		parsed, err := ValidatePageUrl(raw)
		if err != nil {
			p.tel.ReportWarning(report_pages_seed, err)
			continue
		}
		pageUrl := parsed.String()
		err = p.ensureUnique(ctx, tx, pageUrl)
		if IsValidation(err) {
			continue
		}
		if err != nil {
			return false, err
		}
		_, err = tx.CreateTrackedPage(ctx, db.CreateTrackedPageParams{
			Label:   DeriveLabel(pageUrl),
			Url:     pageUrl,
			Enabled: true,
		})
		if err != nil {
			p.tel.ReportBroken(report_db_query, err, "CreateTrackedPage", pageUrl)
			return false, err
		}
	}

	err = tx.SetAppSetting(ctx, db.SetAppSettingParams{
		Key:   db.SETTING_PAGES_SEEDED,
		Value: "1",
	})
	if err != nil {
		p.tel.ReportBroken(report_db_query, err, "SetAppSetting", db.SETTING_PAGES_SEEDED)
		return false, err
	}
	err = commit()
	if err != nil {
		p.tel.ReportBroken(report_db_query, fmt.Errorf("commit: %w", err))
		return false, err
	}
	return true, nil
}
