package telegram

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"
	tele "gopkg.in/telebot.v4"

	"github.com/example/anime-bot/services/bot/internal/action"
	"github.com/example/anime-bot/services/bot/internal/bot"
	"github.com/example/anime-bot/services/bot/internal/catalog"
	"github.com/example/anime-bot/services/bot/internal/domain"
	"github.com/example/anime-bot/services/bot/internal/ingest"
	"github.com/example/anime-bot/services/bot/internal/persist"
)

// Controller is what the router needs from the conversation controller.
type Controller interface {
	Start(ctx context.Context, conv domain.ConversationID) error
	HandleAction(ctx context.Context, conv domain.ConversationID, a action.Action) (bot.Outcome, error)
	HandleText(ctx context.Context, conv domain.ConversationID, text string) error
	AdminPurgeTitle(ctx context.Context, conv domain.ConversationID, slug string) error
	AdminPurgeEpisode(ctx context.Context, conv domain.ConversationID, slug string, ep int) error
	AdminExport(ctx context.Context, conv domain.ConversationID) ([]persist.Document, error)
	Notify(ctx context.Context, conv domain.ConversationID, caption string, err error) error
	IsAdmin(conv domain.ConversationID) bool
	Ingest(ctx context.Context, u catalog.EpisodeUpsert) error
}

var _ Controller = (*bot.Controller)(nil)

const (
	usageClearSlug = "Usage: /clear_slug <slug>"
	usageClearEp   = "Usage: /clear_ep <slug> <episode>"
)

// Router registers update handlers on a telebot bot.
type Router struct {
	Bot  *tele.Bot
	Ctrl Controller
	Log  *zap.Logger
	// SourceChat is where captioned episode videos are posted. Zero disables
	// source-chat ingestion.
	SourceChat int64

	ctx context.Context
}

// Run registers handlers and polls until ctx is done.
func (r *Router) Run(ctx context.Context) error {
	r.ctx = ctx
	r.register()

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Bot.Start()
	}()
	r.Log.Info("telegram poller started")

	<-ctx.Done()
	r.Bot.Stop()
	<-done
	return nil
}

func (r *Router) register() {
	r.Bot.Handle("/start", r.logged("/start", r.onStart))
	r.Bot.Handle("/dump_all", r.logged("/dump_all", r.onDumpAll))
	r.Bot.Handle("/clear_slug", r.logged("/clear_slug", r.onClearSlug))
	r.Bot.Handle("/clear_ep", r.logged("/clear_ep", r.onClearEp))
	r.Bot.Handle(tele.OnCallback, r.logged("OnCallback", r.onCallback))
	r.Bot.Handle(tele.OnText, r.logged("OnText", r.onText))
	r.Bot.Handle(tele.OnVideo, r.logged("OnVideo", r.onVideo))
	r.Bot.Handle(tele.OnChannelPost, r.logged("OnChannelPost", r.onVideo))
	r.Bot.Handle(tele.OnPhoto, r.logged("OnPhoto", r.onStray))
	r.Bot.Handle(tele.OnSticker, r.logged("OnSticker", r.onStray))
	r.Bot.Handle(tele.OnDocument, r.logged("OnDocument", r.onStray))
}

func (r *Router) logged(name string, handler func(tele.Context) error) func(tele.Context) error {
	return func(c tele.Context) error {
		var chatID int64
		if chat := c.Chat(); chat != nil {
			chatID = chat.ID
		}
		r.Log.Debug("telegram update", zap.String("handler", name), zap.Int64("conversation_id", chatID))
		err := handler(c)
		if errors.Is(err, domain.ErrNoPresentation) {
			r.Log.Warn("update dropped", zap.String("handler", name), zap.Int64("conversation_id", chatID), zap.Error(err))
			return nil
		}
		return err
	}
}

func conversation(c tele.Context) domain.ConversationID {
	if chat := c.Chat(); chat != nil {
		return domain.ConversationID(chat.ID)
	}
	return 0
}

// tidy deletes the user's own message so the chat holds only the bot's screen.
func (r *Router) tidy(c tele.Context) {
	if c.Message() == nil {
		return
	}
	if err := c.Delete(); err != nil {
		r.Log.Debug("delete user message failed", zap.Error(err))
	}
}

func (r *Router) onStart(c tele.Context) error {
	defer r.tidy(c)
	return r.Ctrl.Start(r.ctx, conversation(c))
}

func (r *Router) onCallback(c tele.Context) error {
	cb := c.Callback()
	if cb == nil {
		return nil
	}
	a, err := action.Decode(cb.Data)
	if err != nil {
		r.Log.Warn("undecodable callback", zap.String("data", cb.Data), zap.Error(err))
		a = action.ReturnToMain{}
	}
	out, err := r.Ctrl.HandleAction(r.ctx, conversation(c), a)
	if rerr := c.Respond(&tele.CallbackResponse{Text: out.Notice, ShowAlert: out.Alert}); rerr != nil {
		r.Log.Debug("callback answer failed", zap.Error(rerr))
	}
	return err
}

func (r *Router) onText(c tele.Context) error {
	if r.fromSource(c) {
		return nil
	}
	text := strings.TrimSpace(c.Text())
	if strings.HasPrefix(text, "/") {
		return nil
	}
	defer r.tidy(c)
	return r.Ctrl.HandleText(r.ctx, conversation(c), text)
}

func (r *Router) onStray(c tele.Context) error {
	if !r.fromSource(c) {
		r.tidy(c)
	}
	return nil
}

func (r *Router) fromSource(c tele.Context) bool {
	return r.SourceChat != 0 && int64(conversation(c)) == r.SourceChat
}

// onVideo ingests captioned videos from the source chat.
func (r *Router) onVideo(c tele.Context) error {
	if !r.fromSource(c) {
		r.tidy(c)
		return nil
	}
	m := c.Message()
	if m == nil || m.Video == nil {
		return nil
	}
	u, err := ingest.ParseCaption(m.Caption, m.Video.FileID)
	if err != nil {
		r.Log.Warn("source video skipped", zap.Int("message_id", m.ID), zap.Error(err), zap.String("format", ingest.CaptionHelp))
		return nil
	}
	if err := r.Ctrl.Ingest(r.ctx, u); err != nil {
		r.Log.Error("source video ingest failed", zap.String("slug", u.Slug), zap.Int("episode", u.Episode), zap.Error(err))
	}
	return nil
}

func (r *Router) onDumpAll(c tele.Context) error {
	defer r.tidy(c)
	docs, err := r.Ctrl.AdminExport(r.ctx, conversation(c))
	if err != nil {
		return err
	}
	for _, d := range docs {
		doc := &tele.Document{
			File:     tele.FromReader(bytes.NewReader(d.Data)),
			FileName: d.Name,
			Caption:  "📁 " + d.Name,
		}
		if _, err := r.Bot.Send(c.Chat(), doc); err != nil {
			r.Log.Error("export send failed", zap.String("doc", d.Name), zap.Error(err))
		}
	}
	return nil
}

func (r *Router) onClearSlug(c tele.Context) error {
	defer r.tidy(c)
	return r.clearSlug(conversation(c), c.Args())
}

func (r *Router) onClearEp(c tele.Context) error {
	defer r.tidy(c)
	return r.clearEp(conversation(c), c.Args())
}

// Usage hints are shown to operators only; anyone else gets the refusal.
func (r *Router) clearSlug(conv domain.ConversationID, args []string) error {
	if !r.Ctrl.IsAdmin(conv) {
		return r.refuse(conv, "/clear_slug")
	}
	if len(args) < 1 {
		return r.Ctrl.Notify(r.ctx, conv, usageClearSlug, nil)
	}
	return r.Ctrl.AdminPurgeTitle(r.ctx, conv, strings.TrimSpace(args[0]))
}

func (r *Router) clearEp(conv domain.ConversationID, args []string) error {
	if !r.Ctrl.IsAdmin(conv) {
		return r.refuse(conv, "/clear_ep")
	}
	slug, ep, err := parseClearEp(args)
	if err != nil {
		return r.Ctrl.Notify(r.ctx, conv, fmt.Sprintf("%v\n%s", err, usageClearEp), nil)
	}
	return r.Ctrl.AdminPurgeEpisode(r.ctx, conv, slug, ep)
}

func (r *Router) refuse(conv domain.ConversationID, command string) error {
	return r.Ctrl.Notify(r.ctx, conv, "", fmt.Errorf("%s: %w", command, domain.ErrPermissionDenied))
}

func parseClearEp(args []string) (string, int, error) {
	if len(args) < 2 {
		return "", 0, errors.New("slug and episode are required")
	}
	ep, err := strconv.Atoi(strings.TrimSpace(args[1]))
	if err != nil || ep <= 0 {
		return "", 0, fmt.Errorf("episode must be a positive number, got %q", args[1])
	}
	return strings.TrimSpace(args[0]), ep, nil
}
