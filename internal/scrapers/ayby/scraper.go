package ayby

import (
	"aywatch/internal/components/assert"
	"aywatch/internal/components/telemetry"
	"aywatch/internal/listing"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	report_scraper_scrape = "scraper.scrape"
	report_scraper_enrich = "scraper.enrich"
)

// Fetcher is what the scraper needs to load pages.
//
// note: fault injection point
type Fetcher interface {
	Get(ctx context.Context, target string) (string, error)
}

// GalleryFailure is a lot whose page could not be loaded, the lot was kept with its thumbnail.
type GalleryFailure struct {
	Url string
	Err error
}

// Page is the result of scraping one catalogue page.
type Page struct {
	Listings        []listing.Listing
	GalleryFailures []GalleryFailure
}

// Scraper loads catalogue pages and the pages of every lot on them.
type Scraper struct {
	fetcher Fetcher
	tel     telemetry.API
}

func NewScraper(fetcher Fetcher, tel telemetry.API) Scraper {
	assert.NotNil(fetcher, "fetcher")
	assert.NotNil(tel, "telemetry")

	return Scraper{
		fetcher: fetcher,
		tel:     telemetry.NewScopedAPI("ayby", tel),
	}
}

// Scrape loads a catalogue page and enriches each of its cards from the lot page.
// The returned error is the fetcher's error for the catalogue page itself or the
// context's error, lot page failures only end up in Page.GalleryFailures.
func (s Scraper) Scrape(ctx context.Context, pageUrl string) (Page, error) {
	body, err := s.fetcher.Get(ctx, pageUrl)
	if err != nil {
		s.tel.ReportWarning(report_scraper_scrape, err, pageUrl)
		return Page{}, err
	}

	page := Page{}
	for card := range ExtractListings(body, pageUrl, s.tel) {
		if err := ctx.Err(); err != nil {
			return Page{}, err
		}
		enriched, failure := s.enrich(ctx, card)
		if failure != nil {
			page.GalleryFailures = append(page.GalleryFailures, *failure)
		}
		page.Listings = append(page.Listings, enriched)
	}
	page.Listings = listing.Dedupe(page.Listings)

	return page, nil
}

// enrich fetches the lot page of a card once. A parsed lot page wins, a page that
// does not parse as a lot still contributes its gallery, and without either the card
// keeps its thumbnail as a single image gallery.
func (s Scraper) enrich(ctx context.Context, card listing.Listing) (listing.Listing, *GalleryFailure) {
	fallback := card
	fallback.GalleryUrls = []string{card.ImageUrl}

	body, err := s.fetcher.Get(ctx, card.Url)
	if err != nil {
		s.tel.ReportWarning(report_scraper_enrich, fmt.Errorf("fetch lot page: %w", err), card.Url)
		return fallback, &GalleryFailure{Url: card.Url, Err: err}
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		s.tel.ReportWarning(report_scraper_enrich, fmt.Errorf("parse lot page: %w", err), card.Url)
		return fallback, nil
	}

	detail := ExtractDetail(doc, card.Url, s.tel)
	if detail != nil {
		merged := *detail
		merged.Url = card.Url
		if !merged.HasPrice() {
			merged.Price = card.Price
		}
		return merged, nil
	}

	base, err := url.Parse(card.Url)
	if err == nil {
		gallery := galleryImages(doc, base)
		if len(gallery) > 0 {
			withGallery := card
			withGallery.GalleryUrls = gallery
			return withGallery, nil
		}
	}

	return fallback, nil
}
