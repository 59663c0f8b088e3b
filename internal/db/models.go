package db

import (
	"database/sql"
)

type AppSetting struct {
	Key   string
	Value string
}

type Item struct {
	ID               int64
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

type TrackedPage struct {
	ID      int64
	Label   string
	Url     string
	Enabled bool
}
