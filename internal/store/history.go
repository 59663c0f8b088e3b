package store

import (
	"aywatch/internal/components/assert"
	"aywatch/internal/components/chrono"
	"aywatch/internal/components/telemetry"
	"aywatch/internal/db"
	"aywatch/internal/listing"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Record is a listing as it was stored.
type Record struct {
	Listing    listing.Listing
	SourceUrl  string
	CapturedAt time.Time
}

// History is the store of every listing seen on tracked pages.
type History struct {
	qry    *db.Queries
	makeTx db.MakeTx
	time   chrono.API
	tel    telemetry.API
}

func NewHistory(qry *db.Queries, makeTx db.MakeTx, time chrono.API, tel telemetry.API) History {
	assert.NotNil(qry, "queries")
	assert.NotNil(makeTx, "makeTx")
	assert.NotNil(time, "time")
	assert.NotNil(tel, "telemetry")

	return History{
		qry:    qry,
		makeTx: makeTx,
		time:   time,
		tel:    telemetry.NewScopedAPI("store", tel),
	}
}

// KnownUrls returns the urls of every listing captured from sourceUrl.
func (h History) KnownUrls(ctx context.Context, sourceUrl string) (listing.Set, error) {
	urls, err := h.qry.GetKnownItemUrls(ctx, sourceUrl)
	if err != nil {
		h.tel.ReportBroken(report_db_query, err, "GetKnownItemUrls", sourceUrl)
		return nil, err
	}
	known := make(listing.Set, len(urls))
	for _, u := range urls {
		known[u] = struct{}{}
	}
	return known, nil
}

func upsertParams(l listing.Listing, sourceUrl string, capturedAt int64) (db.UpsertItemParams, error) {
	gallery := l.GalleryUrls
	if gallery == nil {
		gallery = []string{}
	}
	galleryJson, err := json.Marshal(gallery)
	if err != nil {
		return db.UpsertItemParams{}, err
	}

	params := db.UpsertItemParams{
		Url:        l.Url,
		Title:      l.Title,
		Price:      l.Price,
		ImgUrl:     l.ImageUrl,
		Gallery:    string(galleryJson),
		SourceUrl:  sourceUrl,
		CapturedAt: capturedAt,
	}
	if len(l.DescriptionTable) > 0 {
		table, err := json.Marshal(l.DescriptionTable)
		if err != nil {
			return db.UpsertItemParams{}, err
		}
		params.DescriptionTable = sql.NullString{String: string(table), Valid: true}
	}
	if l.DescriptionText != "" {
		params.DescriptionText = sql.NullString{String: l.DescriptionText, Valid: true}
	}
	return params, nil
}

// Save upserts every listing under sourceUrl in a single transaction. A lot shown on
// several pages has a row per page. Existing rows get their fields refreshed and keep
// the time they were first captured.
func (h History) Save(ctx context.Context, listings []listing.Listing, sourceUrl string) error {
	if len(listings) == 0 {
		return nil
	}
	capturedAt := h.time.Now().Unix()

	tx, discard, commit, err := h.makeTx()
	if err != nil {
		h.tel.ReportBroken(report_db_query, fmt.Errorf("make tx: %w", err))
		return err
	}
	defer discard()

	for _, l := range listings {
		params, err := upsertParams(l, sourceUrl, capturedAt)
		if err != nil {
			h.tel.ReportBroken(report_db_query, fmt.Errorf("encode listing: %w", err), l.Url)
			return err
		}
		err = tx.UpsertItem(ctx, params)
		if err != nil {
			h.tel.ReportBroken(report_db_query, err, "UpsertItem", l.Url)
			return err
		}
	}

	err = commit()
	if err != nil {
		h.tel.ReportBroken(report_db_query, fmt.Errorf("commit: %w", err))
		return err
	}
	return nil
}

func (h History) recordFromRow(row db.Item) Record {
	l := listing.Listing{
		Url:      row.Url,
		Title:    row.Title,
		Price:    row.Price,
		ImageUrl: row.ImgUrl,
	}
	err := json.Unmarshal([]byte(row.Gallery), &l.GalleryUrls)
	if err != nil {
		h.tel.ReportWarning(report_db_query, fmt.Errorf("decode gallery: %w", err), row.Url)
	}
	if row.DescriptionTable.Valid {
		err := json.Unmarshal([]byte(row.DescriptionTable.String), &l.DescriptionTable)
		if err != nil {
			h.tel.ReportWarning(report_db_query, fmt.Errorf("decode description table: %w", err), row.Url)
		}
	}
	if row.DescriptionText.Valid {
		l.DescriptionText = row.DescriptionText.String
	}
	return Record{
		Listing:    l,
		SourceUrl:  row.SourceUrl,
		CapturedAt: time.Unix(row.CapturedAt, 0).In(h.time.Location()),
	}
}

// Recent returns at most limit listings captured from sourceUrl, newest first.
func (h History) Recent(ctx context.Context, sourceUrl string, limit int) ([]Record, error) {
	if limit <= 0 {
		return []Record{}, nil
	}
	rows, err := h.qry.GetRecentItems(ctx, db.GetRecentItemsParams{
		SourceUrl: sourceUrl,
		Limit:     int64(limit),
	})
	if err != nil {
		h.tel.ReportBroken(report_db_query, err, "GetRecentItems", sourceUrl)
		return nil, err
	}
	records := make([]Record, len(rows))
	for i, row := range rows {
		records[i] = h.recordFromRow(row)
	}
	return records, nil
}

// Clear forgets every captured listing, the next check of each page seeds it again.
func (h History) Clear(ctx context.Context) error {
	err := h.qry.DeleteAllItems(ctx)
	if err != nil {
		h.tel.ReportBroken(report_db_query, err, "DeleteAllItems")
		return err
	}
	return nil
}
