package catalog

import (
	"errors"
	"testing"

	"github.com/example/anime-bot/services/bot/internal/domain"
)

func upsert(t *testing.T, s *Store, u EpisodeUpsert) {
	t.Helper()
	if err := s.UpsertEpisode(u); err != nil {
		t.Fatalf("upsert %+v: %v", u, err)
	}
}

func TestUpsertEpisode_Idempotent(t *testing.T) {
	s := NewStore(nil)
	upsert(t, s, EpisodeUpsert{Slug: "x", Title: "X", Episode: 1, Variant: "a", Source: "file-1"})
	upsert(t, s, EpisodeUpsert{Slug: "x", Title: "X", Episode: 1, Variant: "a", Source: "file-2"})

	title, ok := s.Snapshot().Title("x")
	if !ok {
		t.Fatal("expected title x")
	}
	if len(title.Episodes) != 1 {
		t.Fatalf("expected 1 episode, got %d", len(title.Episodes))
	}
	ep := title.Episodes[1]
	if len(ep.Variants) != 1 {
		t.Fatalf("expected exactly one variant, got %d", len(ep.Variants))
	}
	if ep.Variants["a"].Source != "file-2" {
		t.Fatalf("expected latest source, got %q", ep.Variants["a"].Source)
	}
}

func TestUpsertEpisode_DefaultsAndMetadata(t *testing.T) {
	s := NewStore(nil)
	upsert(t, s, EpisodeUpsert{Slug: "x", Episode: 2, Source: "src", Genres: []string{" Action", "action", "Drama"}})

	title, _ := s.Snapshot().Title("x")
	if title.Name != "x" {
		t.Fatalf("expected slug as fallback name, got %q", title.Name)
	}
	if title.Status != domain.StatusOngoing {
		t.Fatalf("expected ongoing by default, got %q", title.Status)
	}
	if _, ok := title.Episodes[2].Variants[DefaultVariant]; !ok {
		t.Fatal("expected default variant")
	}
	if len(title.Genres) != 2 || title.Genres[0] != "action" || title.Genres[1] != "drama" {
		t.Fatalf("unexpected genres %v", title.Genres)
	}

	upsert(t, s, EpisodeUpsert{Slug: "x", Title: "Xeno", Status: domain.StatusFinished, Episode: 3, Source: "src"})
	title, _ = s.Snapshot().Title("x")
	if title.Name != "Xeno" || title.Status != domain.StatusFinished {
		t.Fatalf("metadata not refreshed: %+v", title)
	}
	if len(title.Genres) != 2 {
		t.Fatalf("empty genre list must not clear genres, got %v", title.Genres)
	}
}

func TestUpsertEpisode_Invalid(t *testing.T) {
	s := NewStore(nil)
	for _, u := range []EpisodeUpsert{
		{Slug: "", Episode: 1, Source: "s"},
		{Slug: "x", Episode: 0, Source: "s"},
		{Slug: "x", Episode: 1, Source: " "},
	} {
		if err := s.UpsertEpisode(u); !errors.Is(err, ErrInvalidUpsert) {
			t.Fatalf("expected ErrInvalidUpsert for %+v, got %v", u, err)
		}
	}
	if s.Snapshot().Len() != 0 {
		t.Fatal("invalid upserts must not create titles")
	}
}

func TestUpsertEpisode_SnapshotsAreImmutable(t *testing.T) {
	s := NewStore(nil)
	upsert(t, s, EpisodeUpsert{Slug: "x", Episode: 1, Variant: "a", Source: "one"})
	before := s.Snapshot()

	upsert(t, s, EpisodeUpsert{Slug: "x", Episode: 1, Variant: "b", Source: "two"})

	title, _ := before.Title("x")
	if len(title.Episodes[1].Variants) != 1 {
		t.Fatal("old snapshot was mutated by a later upsert")
	}
}

func TestPurgeTitle(t *testing.T) {
	s := NewStore(nil)
	upsert(t, s, EpisodeUpsert{Slug: "x", Episode: 1, Source: "s"})

	if !s.PurgeTitle("x") {
		t.Fatal("expected purge to report existing title")
	}
	if s.PurgeTitle("x") {
		t.Fatal("second purge should report missing title")
	}
}

func TestPurgeEpisode_LastEpisodeRemovesTitle(t *testing.T) {
	s := NewStore(nil)
	upsert(t, s, EpisodeUpsert{Slug: "x", Episode: 1, Source: "s"})
	upsert(t, s, EpisodeUpsert{Slug: "x", Episode: 2, Source: "s"})

	removed, err := s.PurgeEpisode("x", 1)
	if err != nil || removed {
		t.Fatalf("expected episode-only purge, got removed=%v err=%v", removed, err)
	}
	removed, err = s.PurgeEpisode("x", 2)
	if err != nil || !removed {
		t.Fatalf("expected title removal, got removed=%v err=%v", removed, err)
	}
	if _, ok := s.Snapshot().Title("x"); ok {
		t.Fatal("title should be gone")
	}
	if _, err := s.PurgeEpisode("x", 2); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSnapshot_ListingsSkipEmptyTitles(t *testing.T) {
	snap := NewSnapshot(map[string]Title{
		"empty": {Slug: "empty", Name: "Empty", Genres: []string{"drama"}, Episodes: map[int]Episode{1: {Ordinal: 1}}},
		"b":     {Slug: "b", Name: "Beta", Genres: []string{"drama"}, Status: domain.StatusOngoing, Episodes: map[int]Episode{1: {Ordinal: 1, Variants: map[string]Track{"a": {Source: "s"}}}}},
		"a":     {Slug: "a", Name: "alpha", Genres: []string{"comedy"}, Status: domain.StatusFinished, Episodes: map[int]Episode{3: {Ordinal: 3, Variants: map[string]Track{"a": {Source: "s"}}}}},
	})

	nav := snap.Navigable()
	if len(nav) != 2 || nav[0].Slug != "a" || nav[1].Slug != "b" {
		t.Fatalf("unexpected navigable listing %+v", nav)
	}
	if got := snap.ByGenre("Drama"); len(got) != 1 || got[0].Slug != "b" {
		t.Fatalf("unexpected genre listing %+v", got)
	}
	if got := snap.Ongoing(); len(got) != 1 || got[0].Slug != "b" {
		t.Fatalf("unexpected ongoing listing %+v", got)
	}
	if got := snap.Search("ALP"); len(got) != 1 || got[0].Slug != "a" {
		t.Fatalf("unexpected search result %+v", got)
	}
	if got := snap.Search("empty"); len(got) != 0 {
		t.Fatalf("empty title leaked into search: %+v", got)
	}
	if g := snap.Genres(); len(g) != 2 {
		t.Fatalf("expected genres of navigable titles only, got %v", g)
	}
}
