// Package screen keeps exactly one live message per conversation and turns
// every logical screen into the cheapest edit of that message.
package screen

import (
	"context"

	"github.com/example/anime-bot/services/bot/internal/domain"
)

type MessageID int

type Kind int

const (
	KindNone Kind = iota
	KindText
	KindImage
	KindVideo
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindImage:
		return "image"
	case KindVideo:
		return "video"
	default:
		return "none"
	}
}

type Button struct {
	Text string
	Data string
}

type Menu struct {
	Rows [][]Button
}

// Row appends a row of buttons and returns the menu for chaining.
func (m Menu) Row(buttons ...Button) Menu {
	if len(buttons) > 0 {
		m.Rows = append(m.Rows, buttons)
	}
	return m
}

type Media struct {
	Kind Kind // KindImage or KindVideo
	Ref  string
}

// Content is caption-only when Media is nil.
type Content struct {
	Caption string
	Media   *Media
}

func Text(caption string) Content { return Content{Caption: caption} }

func Image(ref, caption string) Content {
	return Content{Caption: caption, Media: &Media{Kind: KindImage, Ref: ref}}
}

func Video(ref, caption string) Content {
	return Content{Caption: caption, Media: &Media{Kind: KindVideo, Ref: ref}}
}

// State is what the conversation currently sees.
type State struct {
	MessageID MessageID
	Kind      Kind
}

func (s State) Live() bool { return s.Kind != KindNone }

// Backend is the messaging transport. Every call may fail; the renderer
// decides how to recover.
type Backend interface {
	SendText(ctx context.Context, conv domain.ConversationID, text string, menu Menu) (MessageID, error)
	SendPhoto(ctx context.Context, conv domain.ConversationID, ref, caption string, menu Menu) (MessageID, error)
	SendVideo(ctx context.Context, conv domain.ConversationID, ref, caption string, menu Menu) (MessageID, error)
	EditText(ctx context.Context, conv domain.ConversationID, id MessageID, text string, menu Menu) error
	EditCaption(ctx context.Context, conv domain.ConversationID, id MessageID, caption string, menu Menu) error
	EditMedia(ctx context.Context, conv domain.ConversationID, id MessageID, media Media, caption string, menu Menu) error
	Delete(ctx context.Context, conv domain.ConversationID, id MessageID) error
}
