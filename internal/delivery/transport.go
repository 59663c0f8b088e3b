package delivery

import "context"

type ParseMode string

const (
	PARSE_MODE_HTML ParseMode = "HTML"
	PARSE_MODE_NONE ParseMode = ""
)

type Photo struct {
	Url     string
	Caption string
}

// Transport is the chat protocol used to reach recipients. Expected failures must be
// returned as *Error, anything else is treated as a bug and escalated right away.
//
// note: fault injection point
type Transport interface {
	SendText(ctx context.Context, chatId int64, text string, mode ParseMode) error
	SendPhoto(ctx context.Context, chatId int64, photo Photo, mode ParseMode) error
	// SendAlbum sends 2 to MAX_ALBUM_SIZE photos as one grouped message.
	SendAlbum(ctx context.Context, chatId int64, photos []Photo, mode ParseMode) error
}
