package commands

import (
	"aywatch/internal/store"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMatchPage(t *testing.T) {
	pages := []store.Page{
		{ID: 1, Label: "iz dragocennyh metallov"},
		{ID: 2, Label: "rossiya (новые)"},
		{ID: 3, Label: "germaniya"},
	}

	testCases := []struct {
		query string
		id    int64
		ok    bool
	}{
		{query: "germaniya", id: 3, ok: true},
		{query: "GERMANIYA", id: 3, ok: true},
		{query: "germania", id: 3, ok: true},
		{query: "rossiya", id: 2, ok: true},
		{query: "iz dragocennyh", id: 1, ok: true},
		{query: "zzz", ok: false},
		{query: "  ", ok: false},
	}

	for _, test := range testCases {
		t.Run(test.query, func(t *testing.T) {
			page, ok := matchPage(pages, test.query)
			require.Equal(t, test.ok, ok)
			if test.ok {
				require.Equal(t, test.id, page.ID)
			}
		})
	}
}
