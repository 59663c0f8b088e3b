package monitor

import (
	"aywatch/internal/components/assert"
	"aywatch/internal/components/telemetry"
	"aywatch/internal/delivery"
	"aywatch/internal/listing"
	"aywatch/internal/scrapers/ayby"
	"aywatch/internal/store"
	"context"
	"fmt"
	"strings"
)

const (
	report_monitor_check = "monitor.check"
	report_monitor_sweep = "monitor.sweep"
	report_monitor_found = "monitor.listings_found"
	report_monitor_new   = "monitor.listings_new"
)

// how many failed lot urls a gallery alert lists
const galleryPreviewSize = 5

// note: fault injection point
type Scraper interface {
	Scrape(ctx context.Context, pageUrl string) (ayby.Page, error)
}

// note: fault injection point
type Pages interface {
	Enabled(ctx context.Context) ([]store.Page, error)
}

// note: fault injection point
type History interface {
	KnownUrls(ctx context.Context, sourceUrl string) (listing.Set, error)
	Save(ctx context.Context, listings []listing.Listing, sourceUrl string) error
}

// note: fault injection point
type Notifier interface {
	Notify(ctx context.Context, l listing.Listing, label, pageUrl string) []delivery.Outcome
}

// CheckResult describes what a single page check did.
type CheckResult struct {
	Page store.Page
	// Seeded is set when this check recorded the page for the first time.
	Seeded bool
	Found  int
	New    int

	Skipped bool
	Reason  string
}

// Monitor checks tracked pages for listings that were not seen before.
type Monitor struct {
	scraper  Scraper
	pages    Pages
	history  History
	notifier Notifier
	alerter  delivery.Escalator
	tel      telemetry.API
}

func NewMonitor(
	scraper Scraper,
	pages Pages,
	history History,
	notifier Notifier,
	alerter delivery.Escalator,
	tel telemetry.API,
) Monitor {
	assert.NotNil(scraper, "scraper")
	assert.NotNil(pages, "pages")
	assert.NotNil(history, "history")
	assert.NotNil(notifier, "notifier")
	assert.NotNil(alerter, "alerter")
	assert.NotNil(tel, "telemetry")

	return Monitor{
		scraper:  scraper,
		pages:    pages,
		history:  history,
		notifier: notifier,
		alerter:  alerter,
		tel:      telemetry.NewScopedAPI("monitor", tel),
	}
}

func skip(result CheckResult, reason string) CheckResult {
	result.Skipped = true
	result.Reason = reason
	return result
}

func (m Monitor) alertGalleryFailures(ctx context.Context, page store.Page, failures []ayby.GalleryFailure) {
	if len(failures) == 0 {
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Не удалось загрузить галереи %d лотов на странице «%s»\n%s\n", len(failures), page.Label, page.Url)
	for i, failure := range failures {
		if i == galleryPreviewSize {
			fmt.Fprintf(&sb, "\n… и ещё %d", len(failures)-galleryPreviewSize)
			break
		}
		fmt.Fprintf(&sb, "\n• %s: %v", failure.Url, failure.Err)
	}
	m.alerter.Critical(ctx, sb.String())
}

// Check scrapes one page, records what it found and notifies about new listings. The
// first successful check of a page only records the listings. A page that failed to
// load is skipped without touching its history.
func (m Monitor) Check(ctx context.Context, page store.Page) CheckResult {
	result := CheckResult{Page: page}

	scraped, err := m.scraper.Scrape(ctx, page.Url)
	if err != nil {
		if ctx.Err() != nil {
			return skip(result, "cancelled")
		}
		m.tel.ReportWarning(report_monitor_check, err, page.Url)
		m.alerter.Critical(ctx, fmt.Sprintf(
			"Не удалось загрузить страницу «%s»\n%s\nПричина: %v",
			page.Label, page.Url, err,
		))
		return skip(result, fmt.Sprintf("page failed to load: %v", err))
	}

	// the page loaded, from here on the check runs to completion so the history and
	// the notifications sent stay consistent when the sweep is cancelled
	ctx = context.WithoutCancel(ctx)

	result.Found = len(scraped.Listings)
	if result.Found == 0 {
		m.tel.ReportWarning(report_monitor_check, "no listings found", page.Url)
		return skip(result, "no listings found")
	}

	m.alertGalleryFailures(ctx, page, scraped.GalleryFailures)

	known, err := m.history.KnownUrls(ctx, page.Url)
	if err != nil {
		return skip(result, fmt.Sprintf("read history: %v", err))
	}

	var fresh []listing.Listing
	if len(known) > 0 {
		fresh = known.Missing(scraped.Listings)
	}

	err = m.history.Save(ctx, scraped.Listings, page.Url)
	if err != nil {
		return skip(result, fmt.Sprintf("save history: %v", err))
	}

	if len(known) == 0 {
		result.Seeded = true
		m.tel.ReportDebug("seeded page", page.Url, result.Found)
		return result
	}

	for _, l := range fresh {
		m.notifier.Notify(ctx, l, page.Label, page.Url)
	}
	result.New = len(fresh)

	m.tel.ReportDebug("checked page", page.Url, result.Found, result.New)
	return result
}

// Sweep checks every enabled page in order, stopping between pages once ctx is done.
func (m Monitor) Sweep(ctx context.Context) []CheckResult {
	pages, err := m.pages.Enabled(ctx)
	if err != nil {
		m.tel.ReportWarning(report_monitor_sweep, err)
		return nil
	}

	results := make([]CheckResult, 0, len(pages))
	found := 0
	fresh := 0
	for _, page := range pages {
		if ctx.Err() != nil {
			m.tel.ReportDebug("sweep cancelled", len(results), len(pages))
			break
		}
		result := m.Check(ctx, page)
		found += result.Found
		fresh += result.New
		results = append(results, result)
	}

	m.tel.ReportCount(report_monitor_found, int64(found))
	m.tel.ReportCount(report_monitor_new, int64(fresh))
	return results
}
