package ayby

import (
	"aywatch/internal/components/htmlutil"
	"aywatch/internal/listing"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// a belarusian ruble amount, "1 250,00 р.", "25 руб.", "3,50 BYN"
var priceRegex = regexp.MustCompile(`(?i)(?:\d{1,3}(?: \d{3})+|\d+)(?:,\d{1,2})? ?(?:бел\. ?руб\.?|руб\.?|р\.|byn)`)

// MatchPrice returns the first ruble amount found in text or listing.NoPrice.
func MatchPrice(text string) string {
	match := priceRegex.FindString(htmlutil.CleanText(text))
	if match == "" {
		return listing.NoPrice
	}
	return match
}

// class name parts that mark a node around the main price as a conversion to another currency
var conversionParts = map[string]bool{
	"convert":    true,
	"conversion": true,
	"currency":   true,
	"rate":       true,
	"rates":      true,
	"course":     true,
	"usd":        true,
	"eur":        true,
}

// isConversion reports whether one of the node's class tokens has a conversion part
// between "-" or "_" separators, so "lot-price__usd" matches and "separate" does not.
func isConversion(s *goquery.Selection) bool {
	class, ok := s.Attr("class")
	if !ok {
		return false
	}
	for _, token := range strings.Fields(strings.ToLower(class)) {
		parts := strings.FieldsFunc(token, func(r rune) bool {
			return r == '-' || r == '_'
		})
		for _, part := range parts {
			if conversionParts[part] {
				return true
			}
		}
	}
	return false
}

var mainPriceSelectors = []string{
	".lot-price__main",
	".price-block__main",
	".b-lot-price__main",
	"[itemprop=price]",
	".lot-price",
	".product-price",
	".price",
}

// ownText is the text of the direct text children of node.
func ownText(node *html.Node) string {
	var sb strings.Builder
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == html.TextNode {
			sb.WriteString(child.Data)
		}
	}
	return sb.String()
}

// mainPrice isolates the main price block of a lot page and returns the ruble figure in it.
// Sibling conversions into other currencies and the "курс" reference rate annotation are
// dropped before matching, they may carry their own ruble figures.
func mainPrice(doc *goquery.Document) string {
	for _, selector := range mainPriceSelectors {
		block := doc.Find(selector).First()
		if block.Length() == 0 {
			continue
		}
		block = block.Clone()
		block.Find("[class]").FilterFunction(func(_ int, s *goquery.Selection) bool {
			return isConversion(s)
		}).Remove()
		block.Find("*").FilterFunction(func(_ int, s *goquery.Selection) bool {
			return strings.Contains(strings.ToLower(ownText(s.Get(0))), "курс")
		}).Remove()

		var sb strings.Builder
		for _, n := range block.Nodes {
			for child := n.FirstChild; child != nil; child = child.NextSibling {
				if child.Type == html.TextNode && strings.Contains(strings.ToLower(child.Data), "курс") {
					continue
				}
				sb.WriteString(htmlutil.GetText(child))
				sb.WriteByte(' ')
			}
		}
		price := MatchPrice(sb.String())
		if price != listing.NoPrice {
			return price
		}
	}
	return listing.NoPrice
}
