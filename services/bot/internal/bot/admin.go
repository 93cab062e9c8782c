package bot

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/example/anime-bot/internal/platform/analytics"
	"github.com/example/anime-bot/services/bot/internal/catalog"
	"github.com/example/anime-bot/services/bot/internal/domain"
	"github.com/example/anime-bot/services/bot/internal/persist"
)

// PurgeReport describes what an admin purge removed.
type PurgeReport struct {
	Slug          string `json:"slug"`
	Episode       int    `json:"episode,omitempty"`
	TitleRemoved  bool   `json:"title_removed"`
	Conversations int    `json:"conversations"`
}

func (r PurgeReport) String() string {
	switch {
	case r.Episode > 0 && !r.TitleRemoved:
		return fmt.Sprintf("Episode %d of %s removed. Progress moved in %d conversations.", r.Episode, r.Slug, r.Conversations)
	case r.Episode > 0:
		return fmt.Sprintf("Episode %d was the last one. Title %s removed, %d conversations cleaned.", r.Episode, r.Slug, r.Conversations)
	default:
		return fmt.Sprintf("Title %s removed, %d conversations cleaned.", r.Slug, r.Conversations)
	}
}

// IsAdmin reports whether conv may run admin commands.
func (c *Controller) IsAdmin(conv domain.ConversationID) bool {
	return c.admins.Allowed(int64(conv))
}

// PurgeTitle removes a title and every conversation's reference to it.
// The caller is trusted; see AdminPurgeTitle for the chat path.
func (c *Controller) PurgeTitle(ctx context.Context, slug string) (PurgeReport, error) {
	c.purgeMu.Lock()
	defer c.purgeMu.Unlock()

	if !c.catalog.PurgeTitle(slug) {
		return PurgeReport{}, fmt.Errorf("title %q: %w", slug, domain.ErrNotFound)
	}
	rep := PurgeReport{Slug: slug, TitleRemoved: true, Conversations: c.users.PurgeSlug(slug)}
	return rep, c.afterPurge(ctx, rep)
}

// PurgeEpisode removes one episode. When it was the title's last playable
// episode the title goes too, with the same cascade as PurgeTitle. Otherwise
// progress that pointed at the episode moves to the closest earlier one.
func (c *Controller) PurgeEpisode(ctx context.Context, slug string, ep int) (PurgeReport, error) {
	c.purgeMu.Lock()
	defer c.purgeMu.Unlock()

	removed, err := c.catalog.PurgeEpisode(slug, ep)
	if err != nil {
		return PurgeReport{}, err
	}
	rep := PurgeReport{Slug: slug, Episode: ep, TitleRemoved: removed}
	if removed {
		rep.Conversations = c.users.PurgeSlug(slug)
	} else if title, ok := c.catalog.Snapshot().Title(slug); ok {
		rep.Conversations = c.users.RewriteProgress(slug, ep, closestBefore(title, ep))
	}
	return rep, c.afterPurge(ctx, rep)
}

// closestBefore returns the highest ordinal below ep, or 0 when there is none.
func closestBefore(t catalog.Title, ep int) int {
	best := 0
	for _, n := range t.Ordinals() {
		if n < ep {
			best = n
		}
	}
	return best
}

func (c *Controller) afterPurge(ctx context.Context, rep PurgeReport) error {
	c.log.Info("catalog purge",
		zap.String("slug", rep.Slug),
		zap.Int("episode", rep.Episode),
		zap.Bool("title_removed", rep.TitleRemoved),
		zap.Int("conversations", rep.Conversations),
	)
	c.events.Publish(analytics.SubjectCatalogPurged, "catalog_purged", 0, map[string]any{
		"slug":          rep.Slug,
		"episode":       rep.Episode,
		"title_removed": rep.TitleRemoved,
	})
	return errors.Join(
		c.saveCatalog(ctx),
		c.saveUsers(ctx),
	)
}

// Export returns the stored catalog and users documents.
func (c *Controller) Export(ctx context.Context) ([]persist.Document, error) {
	return c.docs.Export(ctx)
}

// Ingest applies one episode upsert and saves the catalog. Invalid upserts
// wrap catalog.ErrInvalidUpsert; save failures wrap domain.ErrTransientIO.
func (c *Controller) Ingest(ctx context.Context, u catalog.EpisodeUpsert) error {
	if err := c.catalog.UpsertEpisode(u); err != nil {
		return err
	}
	c.log.Info("episode ingested",
		zap.String("slug", u.Slug),
		zap.Int("episode", u.Episode),
		zap.String("variant", u.Variant),
	)
	return c.saveCatalog(ctx)
}

// AdminPurgeTitle is PurgeTitle for a conversation, gated on the admin set.
// The report or refusal is rendered as the conversation's screen.
func (c *Controller) AdminPurgeTitle(ctx context.Context, conv domain.ConversationID, slug string) error {
	if !c.IsAdmin(conv) {
		return c.Notify(ctx, conv, "", fmt.Errorf("purge title %q: %w", slug, domain.ErrPermissionDenied))
	}
	rep, err := c.PurgeTitle(ctx, slug)
	return c.Notify(ctx, conv, rep.String(), err)
}

func (c *Controller) AdminPurgeEpisode(ctx context.Context, conv domain.ConversationID, slug string, ep int) error {
	if !c.IsAdmin(conv) {
		return c.Notify(ctx, conv, "", fmt.Errorf("purge episode %q/%d: %w", slug, ep, domain.ErrPermissionDenied))
	}
	rep, err := c.PurgeEpisode(ctx, slug, ep)
	return c.Notify(ctx, conv, rep.String(), err)
}

// AdminExport returns the stored documents for an admin conversation. For
// anyone else it renders the refusal and returns nothing.
func (c *Controller) AdminExport(ctx context.Context, conv domain.ConversationID) ([]persist.Document, error) {
	if !c.IsAdmin(conv) {
		return nil, c.Notify(ctx, conv, "", fmt.Errorf("export: %w", domain.ErrPermissionDenied))
	}
	docs, err := c.docs.Export(ctx)
	if err != nil || len(docs) == 0 {
		return nil, c.Notify(ctx, conv, "Nothing stored yet.", err)
	}
	return docs, nil
}

// Notify shows caption with the main menu, or the fallback screen for err.
func (c *Controller) Notify(ctx context.Context, conv domain.ConversationID, caption string, err error) error {
	t, release := c.begin(conv)
	defer release()
	if err == nil {
		err = c.list(ctx, t, caption, c.mainMenu())
	}
	return c.finish(ctx, t, err)
}
