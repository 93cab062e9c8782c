package action

import (
	"errors"
	"strings"
	"testing"
)

func TestEncodeDecode_EveryAction(t *testing.T) {
	all := []Action{
		ReturnToMain{},
		OpenTitle{Slug: "naruto"},
		OpenEpisode{Slug: "naruto", Episode: 3},
		AdvanceNext{Slug: "naruto", Episode: 3},
		AdvanceNextOtherVariant{Slug: "naruto", Episode: 3},
		GoPrevious{Slug: "naruto", Episode: 3},
		ToggleFavorite{Slug: "naruto", Episode: 3},
		ToggleWatched{Slug: "naruto", Episode: 3},
		ChooseVariant{Slug: "naruto", Episode: 3, Variant: "Studio: Band"},
		ShowContinuationList{Page: 2},
		RemoveFromContinuation{Slug: "naruto"},
		ShowGenres{},
		ShowGenre{Genre: "slice of life", Page: 1},
		ShowOngoing{},
		RandomTitle{},
		ShowEpisodeList{Slug: "naruto"},
		ShowFavorites{},
		ShowWatched{Page: 0},
		ShowContinuationItem{Slug: "naruto"},
		ContinuePlay{Slug: "naruto"},
		StartSearch{},
	}
	for _, a := range all {
		payload, err := Encode(a)
		if err != nil {
			t.Fatalf("encode %#v: %v", a, err)
		}
		got, err := Decode(payload)
		if err != nil {
			t.Fatalf("decode %q: %v", payload, err)
		}
		if got != a {
			t.Fatalf("round trip mismatch: %#v -> %q -> %#v", a, payload, got)
		}
	}
}

func TestEncode_EscapesColons(t *testing.T) {
	payload, err := Encode(ChooseVariant{Slug: "x", Episode: 1, Variant: "a:b"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if strings.Count(payload, ":") != 3 {
		t.Fatalf("variant colon leaked into payload %q", payload)
	}
}

func TestEncode_TooLong(t *testing.T) {
	_, err := Encode(OpenTitle{Slug: strings.Repeat("s", MaxPayload)})
	if !errors.Is(err, ErrTooLong) {
		t.Fatalf("expected ErrTooLong, got %v", err)
	}
}

func TestDecode_Malformed(t *testing.T) {
	bad := []string{
		"",
		"bogus",
		"anime",
		"anime:",
		"ep:x",
		"ep:x:zero",
		"ep:x:0",
		"next:x:1:extra",
		"menu:extra",
		"track:x:1",
		"anime:%zz",
	}
	for _, p := range bad {
		if _, err := Decode(p); !errors.Is(err, ErrMalformed) {
			t.Fatalf("expected ErrMalformed for %q, got %v", p, err)
		}
	}
}

func TestDecode_BadPageIsZero(t *testing.T) {
	a, err := Decode("continue:abc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.(ShowContinuationList).Page != 0 {
		t.Fatalf("expected page 0, got %#v", a)
	}
}
