package ayby

import (
	"aywatch/internal/components/htmlutil"
	"aywatch/internal/components/telemetry"
	"aywatch/internal/listing"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	report_detail_parse = "detail.parse"
)

var titleSelectors = []string{
	"h1.lot-title",
	"h1[itemprop=name]",
	".lot-header h1",
	"h1",
}

var galleryAnchorSelectors = []string{
	"a[data-fancybox]",
	"a[data-lightbox]",
	"a.fancybox",
	".lot-gallery a",
	".gallery a",
}

var galleryImageSelectors = []string{
	".lot-photos img",
	".lot-gallery img",
	".gallery img",
	".photo img",
	"[class*=photo] img",
}

var descriptionSelectors = []string{
	".lot-description",
	"[itemprop=description]",
	"#description",
	".description",
}

func detailTitle(doc *goquery.Document) string {
	for _, selector := range titleSelectors {
		title := htmlutil.SelectionText(doc.Find(selector).First())
		if title != "" {
			return title
		}
	}
	if title := htmlutil.CleanText(doc.Find("meta[property='og:title']").AttrOr("content", "")); title != "" {
		return title
	}
	return htmlutil.SelectionText(doc.Find("title").First())
}

type imageList struct {
	seen map[string]struct{}
	urls []string
}

func (l *imageList) add(link string) {
	if link == "" {
		return
	}
	if l.seen == nil {
		l.seen = map[string]struct{}{}
	}
	if _, ok := l.seen[link]; ok {
		return
	}
	l.seen[link] = struct{}{}
	l.urls = append(l.urls, link)
}

// galleryImages prefers the lightbox anchors of a lot page and falls back to the
// images of its photo containers. Urls are normalized and deduplicated in first seen order.
func galleryImages(doc *goquery.Document, base *url.URL) []string {
	list := imageList{}
	for _, selector := range galleryAnchorSelectors {
		for _, anchor := range htmlutil.GetAnchors(base, doc.Find(selector)) {
			list.add(anchor.Href)
		}
		if len(list.urls) > 0 {
			return list.urls
		}
	}

	for _, selector := range galleryImageSelectors {
		images := doc.Find(selector)
		for i := range images.Length() {
			list.add(imageSource(base, images.Eq(i)))
		}
		if len(list.urls) > 0 {
			return list.urls
		}
	}
	return nil
}

var freeTextBreaks = map[atom.Atom]struct{}{
	atom.P:   {},
	atom.Div: {},
	atom.Li:  {},
	atom.Br:  {},
	atom.H1:  {},
	atom.H2:  {},
	atom.H3:  {},
	atom.H4:  {},
	atom.Ul:  {},
	atom.Ol:  {},
}

func descriptionTable(block *goquery.Selection) map[string]string {
	out := map[string]string{}
	rows := block.Find("table tr")
	for i := range rows.Length() {
		cells := rows.Eq(i).ChildrenFiltered("td, th")
		if cells.Length() != 2 {
			continue
		}
		label := strings.TrimSuffix(htmlutil.SelectionText(cells.Eq(0)), ":")
		label = strings.TrimSpace(label)
		value := htmlutil.SelectionText(cells.Eq(1))
		if label == "" || value == "" {
			continue
		}
		out[label] = value
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// descriptionText collects the text of a description block outside its tables,
// one paragraph per block level element, without repeated paragraphs.
func descriptionText(block *goquery.Selection) string {
	var paragraphs []string
	seen := map[string]struct{}{}
	var current strings.Builder

	flush := func() {
		text := htmlutil.CleanText(current.String())
		current.Reset()
		if text == "" {
			return
		}
		if _, ok := seen[text]; ok {
			return
		}
		seen[text] = struct{}{}
		paragraphs = append(paragraphs, text)
	}

	var walk func(node *html.Node)
	walk = func(node *html.Node) {
		switch node.Type {
		case html.TextNode:
			current.WriteString(node.Data)
			current.WriteByte(' ')
			return
		case html.ElementNode:
			switch node.DataAtom {
			case atom.Table, atom.Script, atom.Style:
				flush()
				return
			}
		}
		_, breaks := freeTextBreaks[node.DataAtom]
		if breaks {
			flush()
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
		if breaks {
			flush()
		}
	}
	for _, node := range block.Nodes {
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	flush()

	return strings.Join(paragraphs, "\n\n")
}

// ExtractDetail parses a lot page. It returns nil for documents without a title
// and for lots without a single resolvable image.
func ExtractDetail(doc *goquery.Document, itemUrl string, tel telemetry.API) *listing.Listing {
	base, err := url.Parse(itemUrl)
	if err != nil {
		tel.ReportWarning(report_detail_parse, fmt.Errorf("parse item url: %w", err), itemUrl)
		return nil
	}

	title := detailTitle(doc)
	if title == "" {
		tel.ReportWarning(report_detail_parse, fmt.Errorf("no title"), itemUrl)
		return nil
	}

	gallery := galleryImages(doc, base)
	if len(gallery) == 0 {
		tel.ReportWarning(report_detail_parse, fmt.Errorf("no images"), itemUrl)
		return nil
	}

	result := &listing.Listing{
		Url:         itemUrl,
		Title:       title,
		Price:       mainPrice(doc),
		ImageUrl:    gallery[0],
		GalleryUrls: gallery,
	}

	for _, selector := range descriptionSelectors {
		block := doc.Find(selector).First()
		if block.Length() == 0 {
			continue
		}
		result.DescriptionTable = descriptionTable(block)
		result.DescriptionText = descriptionText(block)
		break
	}

	return result
}
