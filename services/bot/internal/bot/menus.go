package bot

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/example/anime-bot/services/bot/internal/action"
	"github.com/example/anime-bot/services/bot/internal/catalog"
	"github.com/example/anime-bot/services/bot/internal/domain"
	"github.com/example/anime-bot/services/bot/internal/resolver"
	"github.com/example/anime-bot/services/bot/internal/screen"
)

const (
	captionMain         = "Enjoy watching ✨\nEverything works through the buttons below."
	captionNotFound     = "That title or episode is no longer available."
	captionDenied       = "This command is for operators only."
	captionGenres       = "Pick a genre:"
	captionOngoing      = "Ongoing (still airing):"
	captionContinue     = "Titles you are watching:"
	captionContinueItem = "What should I do with this title?"
	captionFavorites    = "Favorites:"
	captionWatched      = "Watched:"
	captionSearchPrompt = "🔍 Send a title name (or part of it) as a message.\n(I delete the text and react only to buttons.)"
	captionSearchNone   = "😔 Nothing found for that name.\nTry another word."
	captionLastEpisode  = "That was the last episode. The title is marked as watched."
	captionNoTitles     = "No titles available yet 😔"

	noticeRemoved    = "Removed from continue."
	noticeNotOutYet  = "The next episode is not out yet."
	noticeNoProgress = "No saved progress for this title."
	unnamedVariant   = "Untitled"
	ongoingMarker    = " [ongoing]"
	episodesPerRow   = 3
	genresPerRow     = 2
)

// item is one button before its payload is encoded.
type item struct {
	text string
	act  action.Action
}

// menuBuilder drops buttons whose payload cannot be encoded and rows that
// end up empty.
type menuBuilder struct {
	log  *zap.Logger
	menu screen.Menu
}

func (c *Controller) newMenu() *menuBuilder {
	return &menuBuilder{log: c.log}
}

func (b *menuBuilder) row(items ...item) *menuBuilder {
	buttons := make([]screen.Button, 0, len(items))
	for _, it := range items {
		data, err := action.Encode(it.act)
		if err != nil {
			b.log.Warn("button dropped", zap.String("text", it.text), zap.Error(err))
			continue
		}
		buttons = append(buttons, screen.Button{Text: it.text, Data: data})
	}
	if len(buttons) > 0 {
		b.menu = b.menu.Row(buttons...)
	}
	return b
}

func (b *menuBuilder) grid(items []item, perRow int) *menuBuilder {
	for start := 0; start < len(items); start += perRow {
		end := min(start+perRow, len(items))
		b.row(items[start:end]...)
	}
	return b
}

func (b *menuBuilder) build() screen.Menu { return b.menu }

func toMenu() item { return item{"🍄 Menu", action.ReturnToMain{}} }

func (c *Controller) mainMenu() screen.Menu {
	return c.newMenu().
		row(item{"📚 Catalog", action.ShowGenres{}}, item{"🎲 Random", action.RandomTitle{}}).
		row(item{"▶ Continue", action.ShowContinuationList{}}).
		row(item{"🔍 Search", action.StartSearch{}}).
		row(item{"💖 Favorites", action.ShowFavorites{}}, item{"👁 Watched", action.ShowWatched{}}).
		build()
}

// paginate clamps want into range and returns the slice bounds for it.
func paginate(total, want, size int) (start, end, cur, pages int) {
	pages = (total + size - 1) / size
	if pages == 0 {
		return 0, 0, 0, 0
	}
	cur = max(0, min(want, pages-1))
	start = cur * size
	end = min(start+size, total)
	return start, end, cur, pages
}

// pager appends the back/forward row for a paged list.
func (b *menuBuilder) pager(cur, pages int, at func(p int) action.Action) *menuBuilder {
	var nav []item
	if cur > 0 {
		nav = append(nav, item{"⬅️ Back", at(cur - 1)})
	}
	if cur < pages-1 {
		nav = append(nav, item{"➡️ Next", at(cur + 1)})
	}
	return b.row(nav...)
}

func listLabel(t catalog.Title) string {
	if t.Status == domain.StatusOngoing {
		return t.Name + ongoingMarker
	}
	return t.Name
}

func variantLabel(v string) string {
	if v == catalog.DefaultVariant {
		return unnamedVariant
	}
	return v
}

func statusLabel(s domain.Status) string {
	if s == domain.StatusFinished {
		return "Finished"
	}
	return "Ongoing"
}

func episodeCaption(res resolver.Resolution) string {
	lines := []string{
		fmt.Sprintf("%s (%s)", res.Title.Name, statusLabel(res.Title.Status)),
		fmt.Sprintf("Episode %d", res.Episode),
		"Voice: " + variantLabel(res.Variant),
	}
	if res.Track.Skip != "" {
		lines = append(lines, "⏩ Skip opening: "+res.Track.Skip)
	}
	return strings.Join(lines, "\n")
}

func (c *Controller) episodeMenu(res resolver.Resolution, favorite, watched, fromRandom bool) screen.Menu {
	slug, ep := res.Title.Slug, res.Episode

	fav := item{"💖 Add to favorites", action.ToggleFavorite{Slug: slug, Episode: ep}}
	if favorite {
		fav.text = "💔 Remove from favorites"
	}
	seen := item{"👁 Mark title watched", action.ToggleWatched{Slug: slug, Episode: ep}}
	if watched {
		seen.text = "👁 Unmark title watched"
	}

	b := c.newMenu().
		row(item{"📺 Episodes", action.ShowEpisodeList{Slug: slug}}).
		row(fav).
		row(seen)

	if len(res.Variants) > 1 {
		for _, v := range res.Variants {
			prefix := "🎧 "
			if v == res.Variant {
				prefix = "✅ "
			}
			b.row(item{prefix + variantLabel(v), action.ChooseVariant{Slug: slug, Episode: ep, Variant: v}})
		}
	}

	var nav []item
	if res.HasPrev {
		nav = append(nav, item{"◀️ Previous", action.GoPrevious{Slug: slug, Episode: ep}})
	}
	switch {
	case res.HasNextSame:
		nav = append(nav, item{"Next ▶️", action.AdvanceNext{Slug: slug, Episode: ep}})
	case res.HasNextOther:
		nav = append(nav, item{"Next (other voice) ▶️", action.AdvanceNextOtherVariant{Slug: slug, Episode: ep}})
	}
	b.row(nav...)

	if fromRandom {
		b.row(item{"🎲 Random", action.RandomTitle{}})
	}
	return b.row(toMenu()).build()
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
