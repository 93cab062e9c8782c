// Package telegram adapts telebot to the screen renderer and routes updates
// into the conversation controller.
package telegram

import (
	"context"
	"errors"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	tele "gopkg.in/telebot.v4"

	"github.com/example/anime-bot/services/bot/internal/domain"
	"github.com/example/anime-bot/services/bot/internal/screen"
)

// API is the subset of *tele.Bot the backend calls.
type API interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
	Edit(msg tele.Editable, what interface{}, opts ...interface{}) (*tele.Message, error)
	EditCaption(msg tele.Editable, caption string, opts ...interface{}) (*tele.Message, error)
	EditMedia(msg tele.Editable, media tele.Inputtable, opts ...interface{}) (*tele.Message, error)
	Delete(msg tele.Editable) error
}

var _ API = (*tele.Bot)(nil)

// Backend implements screen.Backend over the Telegram Bot API. Calls go
// through a circuit breaker that trips on transport failures only; API
// rejections (a deleted message, a bad edit) are answers, not outages.
type Backend struct {
	API API
	CB  *gobreaker.CircuitBreaker
	Log *zap.Logger
}

var _ screen.Backend = (*Backend)(nil)

func NewBackend(api API, cb *gobreaker.CircuitBreaker, log *zap.Logger) *Backend {
	if log == nil {
		log = zap.NewNop()
	}
	return &Backend{API: api, CB: cb, Log: log}
}

type BreakerConfig struct {
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
}

// NewBreaker builds a breaker that trips on consecutive transport failures.
func NewBreaker(cfg BreakerConfig, log *zap.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "telegram",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !isTransport(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Info("circuit-breaker state change", zap.String("name", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})
}

func isTransport(err error) bool {
	var netErr net.Error
	var urlErr *url.Error
	return errors.As(err, &netErr) || errors.As(err, &urlErr)
}

// isNotModified reports Telegram's answer to an edit that changes nothing.
func isNotModified(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "message is not modified")
}

func call[T any](ctx context.Context, b *Backend, fn func() (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	if b.CB == nil {
		return fn()
	}
	out, err := b.CB.Execute(func() (interface{}, error) { return fn() })
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, errors.Join(domain.ErrTransientIO, err)
		}
		return zero, err
	}
	return out.(T), nil
}

func chat(conv domain.ConversationID) tele.Recipient { return tele.ChatID(conv) }

func stored(conv domain.ConversationID, id screen.MessageID) tele.Editable {
	return tele.StoredMessage{MessageID: strconv.Itoa(int(id)), ChatID: int64(conv)}
}

func markup(menu screen.Menu) *tele.ReplyMarkup {
	rows := make([][]tele.InlineButton, 0, len(menu.Rows))
	for _, row := range menu.Rows {
		buttons := make([]tele.InlineButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, tele.InlineButton{Text: b.Text, Data: b.Data})
		}
		rows = append(rows, buttons)
	}
	return &tele.ReplyMarkup{InlineKeyboard: rows}
}

// file treats refs with a scheme as URLs, paths as local files and anything
// else as a Telegram file id.
func file(ref string) tele.File {
	switch {
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		return tele.FromURL(ref)
	case strings.HasPrefix(ref, "/"), strings.HasPrefix(ref, "./"):
		return tele.FromDisk(ref)
	default:
		return tele.File{FileID: ref}
	}
}

func inputMedia(m screen.Media, caption string) tele.Inputtable {
	if m.Kind == screen.KindVideo {
		return &tele.Video{File: file(m.Ref), Caption: caption, Streaming: true}
	}
	return &tele.Photo{File: file(m.Ref), Caption: caption}
}

func messageID(m *tele.Message) screen.MessageID {
	if m == nil {
		return 0
	}
	return screen.MessageID(m.ID)
}

func (b *Backend) send(ctx context.Context, conv domain.ConversationID, what interface{}, menu screen.Menu) (screen.MessageID, error) {
	m, err := call(ctx, b, func() (*tele.Message, error) {
		return b.API.Send(chat(conv), what, markup(menu))
	})
	if err != nil {
		return 0, err
	}
	return messageID(m), nil
}

func (b *Backend) SendText(ctx context.Context, conv domain.ConversationID, text string, menu screen.Menu) (screen.MessageID, error) {
	return b.send(ctx, conv, text, menu)
}

func (b *Backend) SendPhoto(ctx context.Context, conv domain.ConversationID, ref, caption string, menu screen.Menu) (screen.MessageID, error) {
	return b.send(ctx, conv, &tele.Photo{File: file(ref), Caption: caption}, menu)
}

func (b *Backend) SendVideo(ctx context.Context, conv domain.ConversationID, ref, caption string, menu screen.Menu) (screen.MessageID, error) {
	return b.send(ctx, conv, &tele.Video{File: file(ref), Caption: caption, Streaming: true}, menu)
}

func (b *Backend) edit(ctx context.Context, fn func() (*tele.Message, error)) error {
	_, err := call(ctx, b, fn)
	if isNotModified(err) {
		return nil
	}
	return err
}

func (b *Backend) EditText(ctx context.Context, conv domain.ConversationID, id screen.MessageID, text string, menu screen.Menu) error {
	return b.edit(ctx, func() (*tele.Message, error) {
		return b.API.Edit(stored(conv, id), text, markup(menu))
	})
}

func (b *Backend) EditCaption(ctx context.Context, conv domain.ConversationID, id screen.MessageID, caption string, menu screen.Menu) error {
	return b.edit(ctx, func() (*tele.Message, error) {
		return b.API.EditCaption(stored(conv, id), caption, markup(menu))
	})
}

func (b *Backend) EditMedia(ctx context.Context, conv domain.ConversationID, id screen.MessageID, media screen.Media, caption string, menu screen.Menu) error {
	return b.edit(ctx, func() (*tele.Message, error) {
		return b.API.EditMedia(stored(conv, id), inputMedia(media, caption), markup(menu))
	})
}

func (b *Backend) Delete(ctx context.Context, conv domain.ConversationID, id screen.MessageID) error {
	_, err := call(ctx, b, func() (struct{}, error) {
		return struct{}{}, b.API.Delete(stored(conv, id))
	})
	return err
}
