// Package userstate owns every conversation's progress, favorites, watched
// titles, variant choices and continuation ledger.
package userstate

import (
	"sort"

	"github.com/example/anime-bot/services/bot/internal/ledger"
)

type State struct {
	Progress      map[string]int
	Favorites     map[string]struct{}
	Watched       map[string]struct{}
	ChosenVariant map[string]string
	Ledger        *ledger.Ledger

	// Session only, never persisted.
	SearchMode bool
	RandomMode bool
}

func New() *State {
	return &State{
		Progress:      map[string]int{},
		Favorites:     map[string]struct{}{},
		Watched:       map[string]struct{}{},
		ChosenVariant: map[string]string{},
		Ledger:        &ledger.Ledger{},
	}
}

func (s *State) IsFavorite(slug string) bool {
	_, ok := s.Favorites[slug]
	return ok
}

func (s *State) IsWatched(slug string) bool {
	_, ok := s.Watched[slug]
	return ok
}

// SetFavorite adds or removes slug from favorites.
func (s *State) SetFavorite(slug string, on bool) {
	if on {
		s.Favorites[slug] = struct{}{}
		return
	}
	delete(s.Favorites, slug)
}

func (s *State) SetWatched(slug string, on bool) {
	if on {
		s.Watched[slug] = struct{}{}
		return
	}
	delete(s.Watched, slug)
}

// FavoriteSlugs returns favorites sorted by slug.
func (s *State) FavoriteSlugs() []string { return sortedKeys(s.Favorites) }

// WatchedSlugs returns watched titles sorted by slug.
func (s *State) WatchedSlugs() []string { return sortedKeys(s.Watched) }

// Empty reports whether nothing about the conversation is worth persisting.
func (s *State) Empty() bool {
	return len(s.Progress) == 0 && len(s.Favorites) == 0 && len(s.Watched) == 0 &&
		len(s.ChosenVariant) == 0 && s.Ledger.Len() == 0
}

// forget drops every reference to slug. Reports whether anything changed.
func (s *State) forget(slug string) bool {
	changed := false
	if _, ok := s.Progress[slug]; ok {
		delete(s.Progress, slug)
		changed = true
	}
	if _, ok := s.Favorites[slug]; ok {
		delete(s.Favorites, slug)
		changed = true
	}
	if _, ok := s.Watched[slug]; ok {
		delete(s.Watched, slug)
		changed = true
	}
	if _, ok := s.ChosenVariant[slug]; ok {
		delete(s.ChosenVariant, slug)
		changed = true
	}
	if s.Ledger.Remove(slug) {
		changed = true
	}
	return changed
}

// Clone returns a deep copy.
func (s *State) Clone() *State {
	out := &State{
		Progress:      make(map[string]int, len(s.Progress)),
		Favorites:     make(map[string]struct{}, len(s.Favorites)),
		Watched:       make(map[string]struct{}, len(s.Watched)),
		ChosenVariant: make(map[string]string, len(s.ChosenVariant)),
		Ledger:        ledger.FromSlice(s.Ledger.Items()),
		SearchMode:    s.SearchMode,
		RandomMode:    s.RandomMode,
	}
	for k, v := range s.Progress {
		out.Progress[k] = v
	}
	for k := range s.Favorites {
		out.Favorites[k] = struct{}{}
	}
	for k := range s.Watched {
		out.Watched[k] = struct{}{}
	}
	for k, v := range s.ChosenVariant {
		out.ChosenVariant[k] = v
	}
	return out
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
