package commands

import (
	"aywatch/internal/store"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/antzucaro/matchr"
)

// labels closer than this to the query are not considered a match
const minLabelSimilarity = 0.8

// matchPage finds the page whose label is most similar to query.
func matchPage(pages []store.Page, query string) (store.Page, bool) {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return store.Page{}, false
	}

	var best store.Page
	bestScore := 0.0
	for _, page := range pages {
		label := strings.ToLower(page.Label)
		if label == query {
			return page, true
		}
		score := matchr.JaroWinkler(query, label, false)
		if score > bestScore {
			best = page
			bestScore = score
		}
	}
	if bestScore < minLabelSimilarity {
		return store.Page{}, false
	}
	return best, true
}

// resolvePage looks a page up by its id or, failing that, by its label.
func resolvePage(ctx context.Context, pages store.Pages, ref string) (store.Page, error) {
	id, err := strconv.ParseInt(ref, 10, 64)
	if err == nil {
		return pages.Get(ctx, id)
	}

	list, err := pages.List(ctx)
	if err != nil {
		return store.Page{}, err
	}
	page, ok := matchPage(list, ref)
	if !ok {
		return store.Page{}, fmt.Errorf("no page matches %q", ref)
	}
	return page, nil
}
