// source: query.sql

package db

import (
	"context"
	"database/sql"
)

const createTrackedPage = `-- name: CreateTrackedPage :one
INSERT INTO tracked_page(label, url, enabled) VALUES (?, ?, ?)
RETURNING id
`

type CreateTrackedPageParams struct {
	Label   string
	Url     string
	Enabled bool
}

func (q *Queries) CreateTrackedPage(ctx context.Context, arg CreateTrackedPageParams) (int64, error) {
	row := q.db.QueryRowContext(ctx, createTrackedPage, arg.Label, arg.Url, arg.Enabled)
	var id int64
	err := row.Scan(&id)
	return id, err
}

const deleteAllItems = `-- name: DeleteAllItems :exec
DELETE FROM item
`

func (q *Queries) DeleteAllItems(ctx context.Context) error {
	_, err := q.db.ExecContext(ctx, deleteAllItems)
	return err
}

const deleteTrackedPage = `-- name: DeleteTrackedPage :execrows
DELETE FROM tracked_page WHERE id = ?
`

func (q *Queries) DeleteTrackedPage(ctx context.Context, id int64) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteTrackedPage, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const getAppSetting = `-- name: GetAppSetting :one
SELECT value FROM app_setting WHERE key = ?
`

func (q *Queries) GetAppSetting(ctx context.Context, key string) (string, error) {
	row := q.db.QueryRowContext(ctx, getAppSetting, key)
	var value string
	err := row.Scan(&value)
	return value, err
}

const getKnownItemUrls = `-- name: GetKnownItemUrls :many
SELECT url FROM item WHERE source_url = ?
`

func (q *Queries) GetKnownItemUrls(ctx context.Context, sourceUrl string) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, getKnownItemUrls, sourceUrl)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []string
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			return nil, err
		}
		items = append(items, url)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getRecentItems = `-- name: GetRecentItems :many
SELECT id, url, title, price, img_url, gallery, description_table, description_text, source_url, captured_at FROM item WHERE source_url = ? ORDER BY captured_at DESC, id DESC LIMIT ?
`

type GetRecentItemsParams struct {
	SourceUrl string
	Limit     int64
}

func (q *Queries) GetRecentItems(ctx context.Context, arg GetRecentItemsParams) ([]Item, error) {
	rows, err := q.db.QueryContext(ctx, getRecentItems, arg.SourceUrl, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Item
	for rows.Next() {
		var i Item
		if err := rows.Scan(
			&i.ID,
			&i.Url,
			&i.Title,
			&i.Price,
			&i.ImgUrl,
			&i.Gallery,
			&i.DescriptionTable,
			&i.DescriptionText,
			&i.SourceUrl,
			&i.CapturedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getTrackedPage = `-- name: GetTrackedPage :one
SELECT id, label, url, enabled FROM tracked_page WHERE id = ?
`

func (q *Queries) GetTrackedPage(ctx context.Context, id int64) (TrackedPage, error) {
	row := q.db.QueryRowContext(ctx, getTrackedPage, id)
	var i TrackedPage
	err := row.Scan(
		&i.ID,
		&i.Label,
		&i.Url,
		&i.Enabled,
	)
	return i, err
}

const getTrackedPageByUrl = `-- name: GetTrackedPageByUrl :one
SELECT id, label, url, enabled FROM tracked_page WHERE url = ?
`

func (q *Queries) GetTrackedPageByUrl(ctx context.Context, url string) (TrackedPage, error) {
	row := q.db.QueryRowContext(ctx, getTrackedPageByUrl, url)
	var i TrackedPage
	err := row.Scan(
		&i.ID,
		&i.Label,
		&i.Url,
		&i.Enabled,
	)
	return i, err
}

const listEnabledTrackedPages = `-- name: ListEnabledTrackedPages :many
SELECT id, label, url, enabled FROM tracked_page WHERE enabled = 1 ORDER BY id
`

func (q *Queries) ListEnabledTrackedPages(ctx context.Context) ([]TrackedPage, error) {
	return q.listTrackedPages(ctx, listEnabledTrackedPages)
}

const listTrackedPages = `-- name: ListTrackedPages :many
SELECT id, label, url, enabled FROM tracked_page ORDER BY id
`

func (q *Queries) ListTrackedPages(ctx context.Context) ([]TrackedPage, error) {
	return q.listTrackedPages(ctx, listTrackedPages)
}

func (q *Queries) listTrackedPages(ctx context.Context, query string) ([]TrackedPage, error) {
	rows, err := q.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []TrackedPage
	for rows.Next() {
		var i TrackedPage
		if err := rows.Scan(
			&i.ID,
			&i.Label,
			&i.Url,
			&i.Enabled,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const renameTrackedPage = `-- name: RenameTrackedPage :execrows
UPDATE tracked_page SET label = ? WHERE id = ?
`

type RenameTrackedPageParams struct {
	Label string
	ID    int64
}

func (q *Queries) RenameTrackedPage(ctx context.Context, arg RenameTrackedPageParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, renameTrackedPage, arg.Label, arg.ID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const setAppSetting = `-- name: SetAppSetting :exec
INSERT INTO app_setting(key, value) VALUES (?, ?)
ON CONFLICT (key) DO UPDATE SET value = excluded.value
`

type SetAppSettingParams struct {
	Key   string
	Value string
}

func (q *Queries) SetAppSetting(ctx context.Context, arg SetAppSettingParams) error {
	_, err := q.db.ExecContext(ctx, setAppSetting, arg.Key, arg.Value)
	return err
}

const setTrackedPageEnabled = `-- name: SetTrackedPageEnabled :execrows
UPDATE tracked_page SET enabled = ? WHERE id = ?
`

type SetTrackedPageEnabledParams struct {
	Enabled bool
	ID      int64
}

func (q *Queries) SetTrackedPageEnabled(ctx context.Context, arg SetTrackedPageEnabledParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, setTrackedPageEnabled, arg.Enabled, arg.ID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const setTrackedPageUrl = `-- name: SetTrackedPageUrl :execrows
UPDATE tracked_page SET url = ?, label = ? WHERE id = ?
`

type SetTrackedPageUrlParams struct {
	Url   string
	Label string
	ID    int64
}

func (q *Queries) SetTrackedPageUrl(ctx context.Context, arg SetTrackedPageUrlParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, setTrackedPageUrl, arg.Url, arg.Label, arg.ID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const upsertItem = `-- name: UpsertItem :exec
INSERT INTO item(url, title, price, img_url, gallery, description_table, description_text, source_url, captured_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (url, source_url) DO UPDATE SET
    title = excluded.title,
    price = excluded.price,
    img_url = excluded.img_url,
    gallery = excluded.gallery,
    description_table = excluded.description_table,
    description_text = excluded.description_text
`

type UpsertItemParams struct {
	Url              string
	Title            string
	Price            string
	ImgUrl           string
	Gallery          string
	DescriptionTable sql.NullString
	DescriptionText  sql.NullString
	SourceUrl        string
	CapturedAt       int64
}

func (q *Queries) UpsertItem(ctx context.Context, arg UpsertItemParams) error {
	_, err := q.db.ExecContext(ctx, upsertItem,
		arg.Url,
		arg.Title,
		arg.Price,
		arg.ImgUrl,
		arg.Gallery,
		arg.DescriptionTable,
		arg.DescriptionText,
		arg.SourceUrl,
		arg.CapturedAt,
	)
	return err
}
