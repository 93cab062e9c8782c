package ingest

import (
	"errors"
	"testing"

	"github.com/example/anime-bot/services/bot/internal/domain"
)

func TestParseCaption(t *testing.T) {
	caption := "Slug: frieren\ntitle: Frieren\nep: 3\nstatus: completed\nozv: Studio A\nskip: 1:30\ngenres: Fantasy, adventure\nnotes: ignored"
	u, err := ParseCaption(caption, "file-id")
	if err != nil {
		t.Fatalf("ParseCaption: %v", err)
	}
	if u.Slug != "frieren" || u.Title != "Frieren" || u.Episode != 3 {
		t.Fatalf("unexpected upsert %+v", u)
	}
	if u.Status != domain.StatusFinished {
		t.Fatalf("expected finished, got %q", u.Status)
	}
	if u.Variant != "Studio A" || u.Skip != "1:30" || u.Source != "file-id" {
		t.Fatalf("unexpected track fields %+v", u)
	}
	if len(u.Genres) != 2 {
		t.Fatalf("expected 2 genres, got %v", u.Genres)
	}
}

func TestParseCaption_RequiresCoreFields(t *testing.T) {
	for _, caption := range []string{
		"",
		"slug: a\ntitle: A",
		"slug: a\ntitle: A\nep: three",
		"slug: a\ntitle: A\nep: 0",
	} {
		if _, err := ParseCaption(caption, "f"); !errors.Is(err, ErrBadCaption) {
			t.Fatalf("caption %q: expected ErrBadCaption, got %v", caption, err)
		}
	}
}

func TestParseCaption_DefaultsToOngoing(t *testing.T) {
	u, err := ParseCaption("slug: a\ntitle: A\nep: 1", "f")
	if err != nil {
		t.Fatalf("ParseCaption: %v", err)
	}
	if u.Status != domain.StatusOngoing || u.Variant != "" {
		t.Fatalf("unexpected defaults %+v", u)
	}
}
