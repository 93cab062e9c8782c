package domain

import "testing"

func TestParseStatus(t *testing.T) {
	cases := map[string]Status{
		"finish":    StatusFinished,
		" Finished": StatusFinished,
		"COMPLETED": StatusFinished,
		"ongoing":   StatusOngoing,
		"":          StatusOngoing,
		"airing":    StatusOngoing,
	}
	for in, want := range cases {
		if got := ParseStatus(in); got != want {
			t.Fatalf("ParseStatus(%q) = %q, want %q", in, got, want)
		}
	}
}
