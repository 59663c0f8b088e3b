package ayby

import (
	"aywatch/internal/components/htmlutil"
	"aywatch/internal/components/telemetry"
	"aywatch/internal/listing"
	"fmt"
	"iter"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	report_cards_parse = "cards.parse"
	report_cards_card  = "cards.card"
)

// lazy loaded images keep the real source in data attributes and a placeholder in src
var imageAttrs = []string{"data-origin", "data-src", "src"}

func imageSource(base *url.URL, img *goquery.Selection) string {
	for _, attr := range imageAttrs {
		value, ok := img.Attr(attr)
		if !ok {
			continue
		}
		resolved := htmlutil.ResolveUrl(base, value)
		if resolved != "" {
			return resolved
		}
	}
	return ""
}

// ExtractListings parses the product cards of a catalogue page. Cards without a
// link, title or image are reported and skipped, a page without cards yields nothing.
func ExtractListings(body, pageUrl string, tel telemetry.API) iter.Seq[listing.Listing] {
	return func(yield func(listing.Listing) bool) {
		base, err := url.Parse(pageUrl)
		if err != nil {
			tel.ReportWarning(report_cards_parse, fmt.Errorf("parse page url: %w", err), pageUrl)
			return
		}
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
		if err != nil {
			tel.ReportWarning(report_cards_parse, fmt.Errorf("parse html: %w", err), pageUrl)
			return
		}

		cards := doc.Find("div.product-card")
		for i := range cards.Length() {
			card, err := parseCard(base, cards.Eq(i))
			if err != nil {
				tel.ReportWarning(report_cards_card, err, pageUrl)
				continue
			}
			if !yield(card) {
				return
			}
		}
	}
}

func parseCard(base *url.URL, card *goquery.Selection) (listing.Listing, error) {
	link := card.Find("a.product-card__name").First()
	if link.Length() == 0 {
		return listing.Listing{}, fmt.Errorf("card without a.product-card__name")
	}
	href := htmlutil.ResolveUrl(base, link.AttrOr("href", ""))
	if href == "" {
		return listing.Listing{}, fmt.Errorf("card link has no usable href")
	}

	title := htmlutil.SelectionText(link)
	if title == "" {
		title = htmlutil.CleanText(link.AttrOr("title", ""))
	}
	if title == "" {
		return listing.Listing{}, fmt.Errorf("card %s has no title", href)
	}

	img := card.Find("img.product-card__image").First()
	if img.Length() == 0 {
		return listing.Listing{}, fmt.Errorf("card %s without img.product-card__image", href)
	}
	image := imageSource(base, img)
	if image == "" {
		return listing.Listing{}, fmt.Errorf("card %s image has no usable source", href)
	}

	return listing.Listing{
		Url:      href,
		Title:    title,
		Price:    MatchPrice(htmlutil.SelectionText(card.Find(".product-card__price"))),
		ImageUrl: image,
	}, nil
}
