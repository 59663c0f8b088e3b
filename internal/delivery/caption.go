package delivery

import (
	"aywatch/internal/listing"
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// MAX_ALBUM_SIZE is the most photos a single album may carry, the rest are dropped.
const MAX_ALBUM_SIZE = 10

// titles are cut to keep the caption under the protocol's caption limit
const maxTitleRunes = 300

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-1]) + "…"
}

// BuildCaption renders the notification text of a new listing. label and pageUrl
// describe the tracked page it was found on and may be empty.
func BuildCaption(l listing.Listing, label, pageUrl string) string {
	var sb strings.Builder
	sb.WriteString("🆕 <b>Новый лот!</b>\n\n")
	sb.WriteString("<b>")
	sb.WriteString(html.EscapeString(truncate(l.Title, maxTitleRunes)))
	sb.WriteString("</b>\n")

	if label != "" {
		if pageUrl != "" {
			fmt.Fprintf(&sb, "📂 <a href=\"%s\">%s</a>\n", html.EscapeString(pageUrl), html.EscapeString(label))
		} else {
			fmt.Fprintf(&sb, "📂 %s\n", html.EscapeString(label))
		}
	}

	if l.HasPrice() {
		fmt.Fprintf(&sb, "💰 Цена: <b>%s</b>\n", html.EscapeString(l.Price))
	} else {
		sb.WriteString("💰 Цена: <i>не указана</i>\n")
	}

	fmt.Fprintf(&sb, "🔗 <a href=\"%s\">%s</a>", html.EscapeString(l.Url), html.EscapeString(l.Url))
	return sb.String()
}

var strictPolicy = bluemonday.StrictPolicy()

// StripMarkup removes every tag from an html caption and unescapes its entities.
func StripMarkup(s string) string {
	return html.UnescapeString(strictPolicy.Sanitize(s))
}

type PlanKind int

const (
	PLAN_TEXT PlanKind = iota
	PLAN_PHOTO
	PLAN_ALBUM
)

// Plan is the message a listing is delivered as.
type Plan struct {
	Kind PlanKind
	Text string
	// Photos holds one photo for PLAN_PHOTO, the first photo carries the caption.
	Photos []Photo
}

// BuildPlan picks an album for several images, a photo for one and a text message
// for none.
func BuildPlan(l listing.Listing, caption string) Plan {
	images := l.Images()
	switch {
	case len(images) > 1:
		if len(images) > MAX_ALBUM_SIZE {
			images = images[:MAX_ALBUM_SIZE]
		}
		photos := make([]Photo, len(images))
		for i, image := range images {
			photos[i] = Photo{Url: image}
		}
		photos[0].Caption = caption
		return Plan{Kind: PLAN_ALBUM, Photos: photos}
	case len(images) == 1:
		return Plan{Kind: PLAN_PHOTO, Photos: []Photo{{Url: images[0], Caption: caption}}}
	default:
		return Plan{Kind: PLAN_TEXT, Text: caption}
	}
}

// TextPlan is a plain announcement.
func TextPlan(text string) Plan {
	return Plan{Kind: PLAN_TEXT, Text: text}
}

// Plain returns a copy of the plan with markup stripped from every caption.
func (p Plan) Plain() Plan {
	plain := Plan{Kind: p.Kind, Text: StripMarkup(p.Text)}
	if p.Photos != nil {
		plain.Photos = make([]Photo, len(p.Photos))
		for i, photo := range p.Photos {
			plain.Photos[i] = Photo{Url: photo.Url}
			if photo.Caption != "" {
				plain.Photos[i].Caption = StripMarkup(photo.Caption)
			}
		}
	}
	return plain
}

func (p Plan) send(ctx context.Context, transport Transport, chatId int64, mode ParseMode) error {
	switch p.Kind {
	case PLAN_ALBUM:
		return transport.SendAlbum(ctx, chatId, p.Photos, mode)
	case PLAN_PHOTO:
		return transport.SendPhoto(ctx, chatId, p.Photos[0], mode)
	default:
		return transport.SendText(ctx, chatId, p.Text, mode)
	}
}
