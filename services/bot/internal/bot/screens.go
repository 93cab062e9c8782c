package bot

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/example/anime-bot/internal/platform/analytics"
	"github.com/example/anime-bot/services/bot/internal/action"
	"github.com/example/anime-bot/services/bot/internal/catalog"
	"github.com/example/anime-bot/services/bot/internal/domain"
	"github.com/example/anime-bot/services/bot/internal/ledger"
	"github.com/example/anime-bot/services/bot/internal/resolver"
	"github.com/example/anime-bot/services/bot/internal/screen"
	"github.com/example/anime-bot/services/bot/internal/userstate"
)

func (c *Controller) showMain(ctx context.Context, t *turn) error {
	c.session(t, func(s *userstate.State) { s.RandomMode = false })
	if c.welcomeImage != "" {
		return c.screens.Render(ctx, t.conv, screen.Image(c.welcomeImage, captionMain), c.mainMenu())
	}
	return c.screens.RenderCaptionOnly(ctx, t.conv, captionMain, c.mainMenu())
}

// list renders a caption-only screen and leaves random browsing.
func (c *Controller) list(ctx context.Context, t *turn, caption string, menu screen.Menu) error {
	c.session(t, func(s *userstate.State) { s.RandomMode = false })
	return c.screens.RenderCaptionOnly(ctx, t.conv, caption, menu)
}

func (c *Controller) requireTitle(slug string) error {
	if _, ok := c.catalog.Snapshot().Title(slug); !ok {
		return fmt.Errorf("title %q: %w", slug, domain.ErrNotFound)
	}
	return nil
}

// currentEpisode picks the episode a title screen should stay on: the one the
// button was pressed on, else saved progress, else the first episode.
func (c *Controller) currentEpisode(t *turn, slug string, pressed int) int {
	title, ok := c.catalog.Snapshot().Title(slug)
	if !ok {
		return pressed
	}
	if _, ok := title.Episode(pressed); ok {
		return pressed
	}
	if ep, ok := c.users.Get(t.conv).Progress[slug]; ok {
		if _, ok := title.Episode(ep); ok {
			return ep
		}
	}
	first, _ := title.FirstEpisode()
	return first
}

func (c *Controller) openTitle(ctx context.Context, t *turn, slug string, fromRandom bool) error {
	title, ok := c.catalog.Snapshot().Title(slug)
	if !ok {
		return fmt.Errorf("title %q: %w", slug, domain.ErrNotFound)
	}
	first, ok := title.FirstEpisode()
	if !ok {
		return fmt.Errorf("title %q has no episodes: %w", slug, domain.ErrNotFound)
	}
	c.events.Publish(analytics.SubjectTitleOpened, "title_opened", int64(t.conv), map[string]any{
		"slug":   slug,
		"random": fromRandom,
	})
	return c.showEpisode(ctx, t, slug, first, "", fromRandom)
}

// showEpisode resolves and plays one episode, then records progress and the
// resolved variant as the conversation's preference for the title.
func (c *Controller) showEpisode(ctx context.Context, t *turn, slug string, ep int, requested string, fromRandom bool) error {
	remembered := c.users.Get(t.conv).ChosenVariant[slug]
	res, err := resolver.Resolve(c.catalog.Snapshot(), slug, ep, remembered, requested)
	if err != nil {
		return err
	}

	c.mutate(t, func(s *userstate.State) {
		s.ChosenVariant[slug] = res.Variant
		s.Progress[slug] = res.Episode
		s.RandomMode = fromRandom
		if c.trigger == ledger.TriggerView {
			s.Ledger.Advance(slug)
		}
	})
	st := c.users.Get(t.conv)

	c.events.Publish(analytics.SubjectEpisodeViewed, "episode_viewed", int64(t.conv), map[string]any{
		"slug":    slug,
		"episode": res.Episode,
		"variant": res.Variant,
	})

	menu := c.episodeMenu(res, st.IsFavorite(slug), st.IsWatched(slug), fromRandom)
	return c.screens.Render(ctx, t.conv, screen.Video(res.Track.Source, episodeCaption(res)), menu)
}

// advance plays episode+1. At the end of a finished title the title leaves
// the continuation ledger and is marked watched.
func (c *Controller) advance(ctx context.Context, t *turn, slug string, ep int) error {
	title, ok := c.catalog.Snapshot().Title(slug)
	if !ok {
		return fmt.Errorf("title %q: %w", slug, domain.ErrNotFound)
	}
	if _, ok := title.Episode(ep + 1); !ok {
		if title.Status == domain.StatusFinished {
			c.mutate(t, func(s *userstate.State) {
				s.Ledger.Remove(slug)
				s.SetWatched(slug, true)
			})
			return c.list(ctx, t, captionLastEpisode, c.mainMenu())
		}
		t.outcome = Outcome{Notice: noticeNotOutYet, Alert: true}
		return nil
	}

	fromRandom := c.users.Get(t.conv).RandomMode
	if err := c.showEpisode(ctx, t, slug, ep+1, "", fromRandom); err != nil {
		return err
	}
	c.touchLedger(t, slug)
	return nil
}

// touchLedger records an explicit continuation. Under the view trigger
// showEpisode has already done it.
func (c *Controller) touchLedger(t *turn, slug string) {
	if c.trigger == ledger.TriggerView {
		return
	}
	c.mutate(t, func(s *userstate.State) { s.Ledger.Advance(slug) })
}

func (c *Controller) continuePlay(ctx context.Context, t *turn, slug string) error {
	ep, ok := c.users.Get(t.conv).Progress[slug]
	if !ok || ep <= 0 {
		t.outcome = Outcome{Notice: noticeNoProgress, Alert: true}
		return c.showContinuation(ctx, t, 0)
	}
	if err := c.showEpisode(ctx, t, slug, c.currentEpisode(t, slug, ep), "", false); err != nil {
		return err
	}
	c.touchLedger(t, slug)
	return nil
}

func (c *Controller) randomTitle(ctx context.Context, t *turn) error {
	titles := c.catalog.Snapshot().Navigable()
	if len(titles) == 0 {
		return c.list(ctx, t, captionNoTitles, c.mainMenu())
	}
	catalog.SortByName(titles)
	return c.openTitle(ctx, t, titles[c.pick(len(titles))].Slug, true)
}

// showContinuation lists the ledger most recent first, skipping titles that
// have left the catalog or have nothing playable.
func (c *Controller) showContinuation(ctx context.Context, t *turn, want int) error {
	st := c.users.Get(t.conv)
	snap := c.catalog.Snapshot()

	var items []item
	for _, slug := range st.Ledger.Recent() {
		title, ok := snap.Title(slug)
		if !ok || !title.Navigable() {
			continue
		}
		ep := st.Progress[slug]
		if ep <= 0 {
			ep = 1
		}
		items = append(items, item{
			fmt.Sprintf("%s — from episode %d", listLabel(title), ep),
			action.ShowContinuationItem{Slug: slug},
		})
	}

	b := c.newMenu()
	if len(items) == 0 {
		b.row(item{"Nothing to continue yet", action.ReturnToMain{}})
		return c.list(ctx, t, captionContinue, b.row(toMenu()).build())
	}
	start, end, cur, pages := paginate(len(items), want, c.pageSize)
	b.grid(items[start:end], 1).
		pager(cur, pages, func(p int) action.Action { return action.ShowContinuationList{Page: p} })
	return c.list(ctx, t, captionContinue, b.row(toMenu()).build())
}

func (c *Controller) showContinuationItem(ctx context.Context, t *turn, slug string) error {
	title, ok := c.catalog.Snapshot().Title(slug)
	if !ok {
		return fmt.Errorf("title %q: %w", slug, domain.ErrNotFound)
	}
	name := listLabel(title)
	b := c.newMenu()
	if ep, ok := c.users.Get(t.conv).Progress[slug]; ok && ep > 0 {
		b.row(item{fmt.Sprintf("▶ Continue «%s» from episode %d", name, ep), action.ContinuePlay{Slug: slug}})
	}
	b.row(item{fmt.Sprintf("✖ Remove «%s» from continue", name), action.RemoveFromContinuation{Slug: slug}}).
		row(item{"⬅️ Back to list", action.ShowContinuationList{}}).
		row(toMenu())
	return c.list(ctx, t, captionContinueItem, b.build())
}

func (c *Controller) showGenres(ctx context.Context, t *turn) error {
	genres := c.catalog.Snapshot().Genres()
	items := make([]item, 0, len(genres))
	for _, g := range genres {
		items = append(items, item{capitalize(g), action.ShowGenre{Genre: g}})
	}
	b := c.newMenu().
		grid(items, genresPerRow).
		row(item{"📡 Ongoing", action.ShowOngoing{}}).
		row(toMenu())
	return c.list(ctx, t, captionGenres, b.build())
}

func (c *Controller) showGenre(ctx context.Context, t *turn, genre string, want int) error {
	titles := c.catalog.Snapshot().ByGenre(genre)
	catalog.SortByName(titles)

	b := c.newMenu()
	if len(titles) == 0 {
		b.row(item{"Nothing found", action.ShowGenres{}})
	} else {
		start, end, cur, pages := paginate(len(titles), want, c.pageSize)
		b.grid(titleItems(titles[start:end]), 1).
			pager(cur, pages, func(p int) action.Action { return action.ShowGenre{Genre: genre, Page: p} })
	}
	b.row(item{"⬅️ Genres", action.ShowGenres{}}).row(toMenu())
	return c.list(ctx, t, fmt.Sprintf("Genre: %s\nPick a title:", capitalize(genre)), b.build())
}

func (c *Controller) showOngoing(ctx context.Context, t *turn) error {
	titles := c.catalog.Snapshot().Ongoing()
	catalog.SortByName(titles)
	b := c.newMenu()
	if len(titles) == 0 {
		b.row(item{"No ongoing titles", action.ReturnToMain{}})
	}
	b.grid(titleItems(titles), 1).row(toMenu())
	return c.list(ctx, t, captionOngoing, b.build())
}

func (c *Controller) showEpisodeList(ctx context.Context, t *turn, slug string) error {
	title, ok := c.catalog.Snapshot().Title(slug)
	if !ok {
		return fmt.Errorf("title %q: %w", slug, domain.ErrNotFound)
	}
	ordinals := title.Ordinals()
	items := make([]item, 0, len(ordinals))
	for _, n := range ordinals {
		items = append(items, item{fmt.Sprintf("Episode %d", n), action.OpenEpisode{Slug: slug, Episode: n}})
	}
	b := c.newMenu().grid(items, episodesPerRow).row(toMenu())
	return c.list(ctx, t, "Episodes of "+title.Name, b.build())
}

func (c *Controller) showFavorites(ctx context.Context, t *turn) error {
	titles := c.known(c.users.Get(t.conv).FavoriteSlugs())
	b := c.newMenu()
	if len(titles) == 0 {
		b.row(item{"Empty", action.ReturnToMain{}})
	}
	b.grid(titleItems(titles), 1).row(toMenu())
	return c.list(ctx, t, captionFavorites, b.build())
}

func (c *Controller) showWatched(ctx context.Context, t *turn, want int) error {
	titles := c.known(c.users.Get(t.conv).WatchedSlugs())
	b := c.newMenu()
	if len(titles) == 0 {
		b.row(item{"Empty", action.ReturnToMain{}})
	} else {
		start, end, cur, pages := paginate(len(titles), want, c.pageSize)
		b.grid(titleItems(titles[start:end]), 1).
			pager(cur, pages, func(p int) action.Action { return action.ShowWatched{Page: p} })
	}
	return c.list(ctx, t, captionWatched, b.row(toMenu()).build())
}

func (c *Controller) search(ctx context.Context, t *turn, query string) error {
	hits := c.catalog.Snapshot().Search(query)
	catalog.SortByName(hits)
	c.events.Publish(analytics.SubjectSearchPerformed, "search_performed", int64(t.conv), map[string]any{
		"query": query,
		"hits":  len(hits),
	})
	t.log.Debug("search", zap.String("query", query), zap.Int("hits", len(hits)))

	switch len(hits) {
	case 0:
		return c.list(ctx, t, captionSearchNone, c.mainMenu())
	case 1:
		return c.openTitle(ctx, t, hits[0].Slug, false)
	}
	b := c.newMenu().grid(titleItems(hits), 1).row(toMenu())
	return c.list(ctx, t, fmt.Sprintf("🔍 Several titles match «%s»:\nPick one:", query), b.build())
}

// known returns the navigable catalog titles for slugs, sorted by name.
func (c *Controller) known(slugs []string) []catalog.Title {
	snap := c.catalog.Snapshot()
	titles := make([]catalog.Title, 0, len(slugs))
	for _, slug := range slugs {
		if title, ok := snap.Title(slug); ok && title.Navigable() {
			titles = append(titles, title)
		}
	}
	catalog.SortByName(titles)
	return titles
}

func titleItems(titles []catalog.Title) []item {
	items := make([]item, 0, len(titles))
	for _, title := range titles {
		items = append(items, item{listLabel(title), action.OpenTitle{Slug: title.Slug}})
	}
	return items
}
