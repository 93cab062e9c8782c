// Package bot is the conversation controller: it turns decoded actions and
// text messages into state changes and screens.
package bot

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"

	"go.uber.org/zap"

	"github.com/example/anime-bot/internal/platform/analytics"
	"github.com/example/anime-bot/internal/platform/auth"
	"github.com/example/anime-bot/services/bot/internal/action"
	"github.com/example/anime-bot/services/bot/internal/catalog"
	"github.com/example/anime-bot/services/bot/internal/domain"
	"github.com/example/anime-bot/services/bot/internal/ledger"
	"github.com/example/anime-bot/services/bot/internal/persist"
	"github.com/example/anime-bot/services/bot/internal/screen"
	"github.com/example/anime-bot/services/bot/internal/userstate"
)

// Screens is the only path to the messaging backend.
type Screens interface {
	Render(ctx context.Context, conv domain.ConversationID, content screen.Content, menu screen.Menu) error
	RenderCaptionOnly(ctx context.Context, conv domain.ConversationID, caption string, menu screen.Menu) error
	Forget(ctx context.Context, conv domain.ConversationID)
}

type Documents interface {
	SaveUsers(ctx context.Context, states map[domain.ConversationID]*userstate.State) error
	SaveCatalog(ctx context.Context, snap *catalog.Snapshot) error
	Export(ctx context.Context) ([]persist.Document, error)
}

type Events interface {
	Publish(subject, eventName string, conversationID int64, props map[string]any)
}

type Options struct {
	Trigger      ledger.Trigger
	PageSize     int
	WelcomeImage string
	Admins       auth.Operators
	Logger       *zap.Logger
	Events       Events
	// Pick returns a uniform int in [0, n). Defaults to math/rand/v2.
	Pick func(n int) int
}

// Outcome is the short acknowledgement shown for a button press.
type Outcome struct {
	Notice string
	Alert  bool
}

type Controller struct {
	catalog *catalog.Store
	users   *userstate.Store
	screens Screens
	docs    Documents
	events  Events
	log     *zap.Logger

	// purgeMu is held shared by every turn and exclusively by admin purges,
	// so no turn can re-add a slug while its cascade runs.
	purgeMu sync.RWMutex
	// Each save takes its snapshot under its mutex, so writes land in snapshot order.
	usersSaveMu   sync.Mutex
	catalogSaveMu sync.Mutex

	trigger      ledger.Trigger
	pageSize     int
	welcomeImage string
	admins       auth.Operators
	pick         func(n int) int
}

func New(cat *catalog.Store, users *userstate.Store, screens Screens, docs Documents, opts Options) *Controller {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 10
	}
	if opts.Trigger == "" {
		opts.Trigger = ledger.TriggerAdvance
	}
	if opts.Pick == nil {
		opts.Pick = rand.IntN
	}
	if opts.Events == nil {
		opts.Events = nopEvents{}
	}
	return &Controller{
		catalog:      cat,
		users:        users,
		screens:      screens,
		docs:         docs,
		events:       opts.Events,
		log:          opts.Logger,
		trigger:      opts.Trigger,
		pageSize:     opts.PageSize,
		welcomeImage: opts.WelcomeImage,
		admins:       opts.Admins,
		pick:         opts.Pick,
	}
}

type nopEvents struct{}

func (nopEvents) Publish(string, string, int64, map[string]any) {}

// turn carries per-event bookkeeping while a handler runs.
type turn struct {
	conv    domain.ConversationID
	log     *zap.Logger
	dirty   bool
	outcome Outcome
}

func (c *Controller) begin(conv domain.ConversationID) (*turn, func()) {
	release := c.users.Turn(conv)
	c.purgeMu.RLock()
	t := &turn{conv: conv, log: c.log.With(zap.Int64("conversation_id", int64(conv)))}
	return t, func() {
		c.purgeMu.RUnlock()
		release()
	}
}

// mutate changes persisted state; the turn saves users when it ends.
func (c *Controller) mutate(t *turn, fn func(*userstate.State)) {
	c.users.Update(t.conv, fn)
	t.dirty = true
}

// session changes state that is never persisted.
func (c *Controller) session(t *turn, fn func(*userstate.State)) {
	c.users.Update(t.conv, fn)
}

// finish saves dirty state and converts err into a user-visible fallback.
// Only ErrNoPresentation survives.
func (c *Controller) finish(ctx context.Context, t *turn, err error) error {
	if t.dirty {
		if serr := c.saveUsers(ctx); serr != nil {
			t.log.Error("save users failed", zap.Error(serr))
		}
	}
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrNoPresentation):
		t.log.Warn("conversation has no presentation", zap.Error(err))
		return err
	case errors.Is(err, domain.ErrNotFound):
		t.log.Info("not found", zap.Error(err))
		return c.screens.RenderCaptionOnly(ctx, t.conv, captionNotFound, c.mainMenu())
	case errors.Is(err, domain.ErrPermissionDenied):
		t.log.Warn("admin operation refused", zap.Error(err))
		return c.screens.RenderCaptionOnly(ctx, t.conv, captionDenied, c.mainMenu())
	default:
		t.log.Error("handler failed", zap.Error(err))
		return nil
	}
}

func (c *Controller) saveUsers(ctx context.Context) error {
	c.usersSaveMu.Lock()
	defer c.usersSaveMu.Unlock()
	return c.docs.SaveUsers(ctx, c.users.Snapshot())
}

func (c *Controller) saveCatalog(ctx context.Context) error {
	c.catalogSaveMu.Lock()
	defer c.catalogSaveMu.Unlock()
	return c.docs.SaveCatalog(ctx, c.catalog.Snapshot())
}

// Start resets the conversation's screen and shows the main menu.
func (c *Controller) Start(ctx context.Context, conv domain.ConversationID) error {
	t, release := c.begin(conv)
	defer release()

	c.screens.Forget(ctx, conv)
	c.session(t, func(s *userstate.State) {
		s.SearchMode = false
		s.RandomMode = false
	})
	c.events.Publish(analytics.SubjectConversationStarted, "conversation_started", int64(conv), nil)
	return c.finish(ctx, t, c.showMain(ctx, t))
}

// HandleAction runs one button press to completion.
func (c *Controller) HandleAction(ctx context.Context, conv domain.ConversationID, a action.Action) (Outcome, error) {
	t, release := c.begin(conv)
	defer release()

	if _, search := a.(action.StartSearch); !search {
		c.session(t, func(s *userstate.State) { s.SearchMode = false })
	}
	err := c.dispatch(ctx, t, a)
	return t.outcome, c.finish(ctx, t, err)
}

func (c *Controller) dispatch(ctx context.Context, t *turn, a action.Action) error {
	switch v := a.(type) {
	case action.ReturnToMain:
		return c.showMain(ctx, t)
	case action.OpenTitle:
		return c.openTitle(ctx, t, v.Slug, false)
	case action.OpenEpisode:
		return c.showEpisode(ctx, t, v.Slug, v.Episode, "", false)
	case action.AdvanceNext:
		return c.advance(ctx, t, v.Slug, v.Episode)
	case action.AdvanceNextOtherVariant:
		return c.advance(ctx, t, v.Slug, v.Episode)
	case action.GoPrevious:
		return c.showEpisode(ctx, t, v.Slug, v.Episode-1, "", false)
	case action.ToggleFavorite:
		if err := c.requireTitle(v.Slug); err != nil {
			return err
		}
		c.mutate(t, func(s *userstate.State) { s.SetFavorite(v.Slug, !s.IsFavorite(v.Slug)) })
		return c.showEpisode(ctx, t, v.Slug, c.currentEpisode(t, v.Slug, v.Episode), "", false)
	case action.ToggleWatched:
		if err := c.requireTitle(v.Slug); err != nil {
			return err
		}
		c.mutate(t, func(s *userstate.State) { s.SetWatched(v.Slug, !s.IsWatched(v.Slug)) })
		return c.showEpisode(ctx, t, v.Slug, c.currentEpisode(t, v.Slug, v.Episode), "", false)
	case action.ChooseVariant:
		return c.showEpisode(ctx, t, v.Slug, v.Episode, v.Variant, false)
	case action.ShowContinuationList:
		return c.showContinuation(ctx, t, v.Page)
	case action.RemoveFromContinuation:
		c.mutate(t, func(s *userstate.State) { s.Ledger.Remove(v.Slug) })
		t.outcome = Outcome{Notice: noticeRemoved}
		return c.showContinuation(ctx, t, 0)
	case action.ShowGenres:
		return c.showGenres(ctx, t)
	case action.ShowGenre:
		return c.showGenre(ctx, t, v.Genre, v.Page)
	case action.ShowOngoing:
		return c.showOngoing(ctx, t)
	case action.RandomTitle:
		return c.randomTitle(ctx, t)
	case action.ShowEpisodeList:
		return c.showEpisodeList(ctx, t, v.Slug)
	case action.ShowFavorites:
		return c.showFavorites(ctx, t)
	case action.ShowWatched:
		return c.showWatched(ctx, t, v.Page)
	case action.ShowContinuationItem:
		return c.showContinuationItem(ctx, t, v.Slug)
	case action.ContinuePlay:
		return c.continuePlay(ctx, t, v.Slug)
	case action.StartSearch:
		c.session(t, func(s *userstate.State) { s.SearchMode = true })
		return c.screens.RenderCaptionOnly(ctx, t.conv, captionSearchPrompt, c.mainMenu())
	default:
		t.log.Warn("unhandled action", zap.String("type", fmt.Sprintf("%T", a)))
		return c.showMain(ctx, t)
	}
}

// HandleText treats text as a search query when the conversation asked for
// one. Other text is ignored.
func (c *Controller) HandleText(ctx context.Context, conv domain.ConversationID, text string) error {
	t, release := c.begin(conv)
	defer release()

	if !c.users.Get(conv).SearchMode {
		return nil
	}
	c.session(t, func(s *userstate.State) { s.SearchMode = false })
	return c.finish(ctx, t, c.search(ctx, t, text))
}
