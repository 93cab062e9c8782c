package resolver

import (
	"errors"
	"testing"

	"github.com/example/anime-bot/services/bot/internal/catalog"
	"github.com/example/anime-bot/services/bot/internal/domain"
)

func variants(names ...string) map[string]catalog.Track {
	out := make(map[string]catalog.Track, len(names))
	for _, n := range names {
		out[n] = catalog.Track{Source: "src-" + n}
	}
	return out
}

func snapshot(episodes map[int]catalog.Episode) *catalog.Snapshot {
	return catalog.NewSnapshot(map[string]catalog.Title{
		"x": {Slug: "x", Name: "X", Status: domain.StatusOngoing, Episodes: episodes},
	})
}

func TestResolve_RequestedWins(t *testing.T) {
	snap := snapshot(map[int]catalog.Episode{1: {Ordinal: 1, Variants: variants("a", "b", "c")}})

	res, err := Resolve(snap, "x", 1, "b", "c")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Variant != "c" || res.Track.Source != "src-c" {
		t.Fatalf("expected requested variant c, got %q", res.Variant)
	}
}

func TestResolve_RememberedBeatsDefault(t *testing.T) {
	snap := snapshot(map[int]catalog.Episode{1: {Ordinal: 1, Variants: variants("a", "b")}})

	res, err := Resolve(snap, "x", 1, "b", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Variant != "b" {
		t.Fatalf("expected remembered variant b, got %q", res.Variant)
	}
}

func TestResolve_FallsBackToFirstSorted(t *testing.T) {
	snap := snapshot(map[int]catalog.Episode{1: {Ordinal: 1, Variants: variants("zeta", "alpha")}})

	res, err := Resolve(snap, "x", 1, "missing", "also-missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Variant != "alpha" {
		t.Fatalf("expected alpha, got %q", res.Variant)
	}
	if len(res.Variants) != 2 || res.Variants[0] != "alpha" {
		t.Fatalf("unexpected variant listing %v", res.Variants)
	}
}

func TestResolve_NextOtherVariant(t *testing.T) {
	snap := snapshot(map[int]catalog.Episode{
		1: {Ordinal: 1, Variants: variants("a", "b")},
		2: {Ordinal: 2, Variants: variants("a")},
	})

	res, err := Resolve(snap, "x", 1, "b", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.HasNextSame {
		t.Fatal("episode 2 lacks b, has_next_same must be false")
	}
	if !res.HasNextOther {
		t.Fatal("episode 2 has a, has_next_other must be true")
	}
	if res.HasPrev {
		t.Fatal("episode 1 has no previous")
	}
}

func TestResolve_NextSameVariant(t *testing.T) {
	snap := snapshot(map[int]catalog.Episode{
		1: {Ordinal: 1, Variants: variants("a")},
		2: {Ordinal: 2, Variants: variants("a", "b")},
	})

	res, err := Resolve(snap, "x", 2, "", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.HasPrev || res.HasNext() {
		t.Fatalf("unexpected adjacency %+v", res)
	}

	res, _ = Resolve(snap, "x", 1, "", "")
	if !res.HasNextSame || res.HasNextOther {
		t.Fatalf("next axis must be exclusive: %+v", res)
	}
}

func TestResolve_EmptyEpisodesActAbsent(t *testing.T) {
	snap := snapshot(map[int]catalog.Episode{
		1: {Ordinal: 1, Variants: variants("a")},
		2: {Ordinal: 2},
		3: {Ordinal: 3, Variants: variants("a")},
	})

	if _, err := Resolve(snap, "x", 2, "", ""); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for variant-less episode, got %v", err)
	}
	res, _ := Resolve(snap, "x", 1, "", "")
	if res.HasNext() {
		t.Fatal("variant-less successor must not count as next")
	}
	res, _ = Resolve(snap, "x", 3, "", "")
	if res.HasPrev {
		t.Fatal("variant-less predecessor must not count as previous")
	}
}

func TestResolve_MissingTitle(t *testing.T) {
	snap := catalog.NewSnapshot(map[string]catalog.Title{
		"bare": {Slug: "bare", Name: "Bare"},
	})
	if _, err := Resolve(snap, "nope", 1, "", ""); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := Resolve(snap, "bare", 1, "", ""); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for title without episodes, got %v", err)
	}
}
