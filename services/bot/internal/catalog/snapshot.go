package catalog

import (
	"sort"
	"strings"

	"github.com/example/anime-bot/services/bot/internal/domain"
)

// Snapshot is an immutable view of the catalog. Do not mutate returned titles.
type Snapshot struct {
	titles map[string]Title
}

// NewSnapshot takes ownership of titles.
func NewSnapshot(titles map[string]Title) *Snapshot {
	if titles == nil {
		titles = map[string]Title{}
	}
	return &Snapshot{titles: titles}
}

func (s *Snapshot) Len() int { return len(s.titles) }

func (s *Snapshot) Title(slug string) (Title, bool) {
	t, ok := s.titles[slug]
	return t, ok
}

// Titles returns every title including ones without playable episodes,
// keyed by slug. The map is a fresh copy; the titles are shared.
func (s *Snapshot) Titles() map[string]Title {
	out := make(map[string]Title, len(s.titles))
	for k, v := range s.titles {
		out[k] = v
	}
	return out
}

// Navigable returns titles that have at least one playable episode, sorted by name.
func (s *Snapshot) Navigable() []Title {
	return s.filter(func(Title) bool { return true })
}

// Genres returns every genre carried by a navigable title.
func (s *Snapshot) Genres() []string {
	var all []string
	for _, t := range s.titles {
		if t.Navigable() {
			all = append(all, t.Genres...)
		}
	}
	return NormalizeGenres(all)
}

func (s *Snapshot) ByGenre(genre string) []Title {
	genre = strings.ToLower(strings.TrimSpace(genre))
	return s.filter(func(t Title) bool { return t.HasGenre(genre) })
}

func (s *Snapshot) Ongoing() []Title {
	return s.filter(func(t Title) bool { return t.Status == domain.StatusOngoing })
}

// Search matches query as a case-insensitive substring of the display name.
func (s *Snapshot) Search(query string) []Title {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}
	return s.filter(func(t Title) bool { return strings.Contains(strings.ToLower(t.Name), q) })
}

func (s *Snapshot) filter(keep func(Title) bool) []Title {
	var out []Title
	for _, t := range s.titles {
		if t.Navigable() && keep(t) {
			out = append(out, t)
		}
	}
	SortByName(out)
	return out
}

// SortByName orders titles by display name, then slug.
func SortByName(titles []Title) {
	sort.Slice(titles, func(i, j int) bool {
		a, b := strings.ToLower(titles[i].Name), strings.ToLower(titles[j].Name)
		if a != b {
			return a < b
		}
		return titles[i].Slug < titles[j].Slug
	})
}
