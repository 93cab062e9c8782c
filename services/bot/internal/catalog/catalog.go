// Package catalog holds the in-memory title/episode/track catalog.
//
// Readers take an immutable *Snapshot and never block. Writers (ingestion,
// admin purge, document reload) build a modified copy under a mutex and swap
// it in atomically.
package catalog

import (
	"sort"
	"strings"

	"github.com/example/anime-bot/services/bot/internal/domain"
)

// DefaultVariant names the track of a title that never had a dub choice.
const DefaultVariant = "default"

type Track struct {
	Source string
	Skip   string
}

type Episode struct {
	Ordinal  int
	Variants map[string]Track
}

// Playable reports whether the episode has at least one variant.
// Episodes without variants are treated as absent everywhere.
func (e Episode) Playable() bool { return len(e.Variants) > 0 }

// VariantNames returns the variant names in lexicographic order.
func (e Episode) VariantNames() []string {
	names := make([]string, 0, len(e.Variants))
	for n := range e.Variants {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

type Title struct {
	Slug     string
	Name     string
	Genres   []string
	Status   domain.Status
	Episodes map[int]Episode
}

// Episode returns the playable episode with the given ordinal.
func (t Title) Episode(ordinal int) (Episode, bool) {
	ep, ok := t.Episodes[ordinal]
	if !ok || !ep.Playable() {
		return Episode{}, false
	}
	return ep, true
}

// Ordinals returns the sorted ordinals of playable episodes.
func (t Title) Ordinals() []int {
	out := make([]int, 0, len(t.Episodes))
	for n, ep := range t.Episodes {
		if ep.Playable() {
			out = append(out, n)
		}
	}
	sort.Ints(out)
	return out
}

// FirstEpisode returns the lowest playable ordinal.
func (t Title) FirstEpisode() (int, bool) {
	ords := t.Ordinals()
	if len(ords) == 0 {
		return 0, false
	}
	return ords[0], true
}

// Navigable reports whether the title may appear in a user-facing listing.
func (t Title) Navigable() bool {
	_, ok := t.FirstEpisode()
	return ok
}

func (t Title) HasGenre(genre string) bool {
	for _, g := range t.Genres {
		if g == genre {
			return true
		}
	}
	return false
}

func (t Title) clone() Title {
	out := t
	out.Genres = append([]string(nil), t.Genres...)
	out.Episodes = make(map[int]Episode, len(t.Episodes))
	for n, ep := range t.Episodes {
		vs := make(map[string]Track, len(ep.Variants))
		for name, tr := range ep.Variants {
			vs[name] = tr
		}
		out.Episodes[n] = Episode{Ordinal: n, Variants: vs}
	}
	return out
}

// NormalizeGenres lowercases, trims and deduplicates genres, sorted.
func NormalizeGenres(genres []string) []string {
	seen := make(map[string]struct{}, len(genres))
	out := make([]string, 0, len(genres))
	for _, g := range genres {
		g = strings.ToLower(strings.TrimSpace(g))
		if g == "" {
			continue
		}
		if _, dup := seen[g]; dup {
			continue
		}
		seen[g] = struct{}{}
		out = append(out, g)
	}
	sort.Strings(out)
	return out
}
