package catalog

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/example/anime-bot/services/bot/internal/domain"
)

var ErrInvalidUpsert = errors.New("invalid episode upsert")

// EpisodeUpsert is one ingested (slug, episode, variant) triple plus title metadata.
type EpisodeUpsert struct {
	Slug    string
	Title   string
	Status  domain.Status
	Genres  []string
	Episode int
	Variant string
	Source  string
	Skip    string
}

type Store struct {
	mu  sync.Mutex
	cur atomic.Pointer[Snapshot]
}

func NewStore(initial *Snapshot) *Store {
	if initial == nil {
		initial = NewSnapshot(nil)
	}
	s := &Store{}
	s.cur.Store(initial)
	return s
}

// Snapshot returns the current catalog view.
func (s *Store) Snapshot() *Snapshot { return s.cur.Load() }

// Replace swaps in a whole new catalog, e.g. after the document changed on disk.
func (s *Store) Replace(snap *Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cur.Store(snap)
}

// UpsertEpisode inserts or replaces the track for (slug, episode, variant).
// Title metadata is refreshed from the non-empty fields of u.
func (s *Store) UpsertEpisode(u EpisodeUpsert) error {
	u.Slug = strings.TrimSpace(u.Slug)
	u.Variant = strings.TrimSpace(u.Variant)
	if u.Variant == "" {
		u.Variant = DefaultVariant
	}
	switch {
	case u.Slug == "":
		return fmt.Errorf("%w: empty slug", ErrInvalidUpsert)
	case u.Episode <= 0:
		return fmt.Errorf("%w: episode %d", ErrInvalidUpsert, u.Episode)
	case strings.TrimSpace(u.Source) == "":
		return fmt.Errorf("%w: empty source for %s/%d", ErrInvalidUpsert, u.Slug, u.Episode)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.cur.Load()
	titles := old.Titles()

	t, ok := titles[u.Slug]
	if ok {
		t = t.clone()
	} else {
		t = Title{Slug: u.Slug, Name: u.Slug, Status: domain.StatusOngoing, Episodes: map[int]Episode{}}
	}
	if name := strings.TrimSpace(u.Title); name != "" {
		t.Name = name
	}
	if u.Status != "" {
		t.Status = u.Status
	}
	if genres := NormalizeGenres(u.Genres); len(genres) > 0 {
		t.Genres = genres
	}

	ep, ok := t.Episodes[u.Episode]
	if !ok {
		ep = Episode{Ordinal: u.Episode, Variants: map[string]Track{}}
	}
	ep.Variants[u.Variant] = Track{Source: u.Source, Skip: strings.TrimSpace(u.Skip)}
	t.Episodes[u.Episode] = ep

	titles[u.Slug] = t
	s.cur.Store(NewSnapshot(titles))
	return nil
}

// PurgeTitle removes a title. Reports whether it existed.
func (s *Store) PurgeTitle(slug string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.cur.Load()
	if _, ok := old.Title(slug); !ok {
		return false
	}
	titles := old.Titles()
	delete(titles, slug)
	s.cur.Store(NewSnapshot(titles))
	return true
}

// PurgeEpisode removes one episode. Removing the last playable episode removes
// the whole title, reported by titleRemoved.
func (s *Store) PurgeEpisode(slug string, ordinal int) (titleRemoved bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.cur.Load()
	t, ok := old.Title(slug)
	if !ok {
		return false, fmt.Errorf("title %q: %w", slug, domain.ErrNotFound)
	}
	if _, ok := t.Episodes[ordinal]; !ok {
		return false, fmt.Errorf("title %q episode %d: %w", slug, ordinal, domain.ErrNotFound)
	}

	titles := old.Titles()
	t = t.clone()
	delete(t.Episodes, ordinal)
	if !t.Navigable() {
		delete(titles, slug)
		titleRemoved = true
	} else {
		titles[slug] = t
	}
	s.cur.Store(NewSnapshot(titles))
	return titleRemoved, nil
}
