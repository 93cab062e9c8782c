package persist

import (
	"encoding/json"
	"testing"

	"github.com/example/anime-bot/services/bot/internal/catalog"
)

func decode(t *testing.T, raw string) any {
	t.Helper()
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		t.Fatalf("bad fixture %s: %v", raw, err)
	}
	return v
}

func TestSingleSourceToTracks(t *testing.T) {
	got := singleSourceToTracks("file-1").(map[string]any)
	tracks := got["tracks"].(map[string]any)
	if tracks[catalog.DefaultVariant].(map[string]any)["source"] != "file-1" {
		t.Fatalf("unexpected migration %v", got)
	}

	obj := singleSourceToTracks(decode(t, `{"source":"f","skip":"1:20","track":"ru"}`)).(map[string]any)
	ru := obj["tracks"].(map[string]any)["ru"].(map[string]any)
	if ru["source"] != "f" || ru["skip"] != "1:20" {
		t.Fatalf("unexpected migration %v", obj)
	}

	// Not a single-source payload: unchanged.
	in := decode(t, `{"a":{"source":"f"}}`)
	if out := singleSourceToTracks(in); out.(map[string]any)["tracks"] != nil {
		t.Fatalf("variant map should pass through, got %v", out)
	}
}

func TestUnwrapTracks(t *testing.T) {
	out := unwrapTracks(decode(t, `{"tracks":{"a":{"source":"f"}}}`)).(map[string]any)
	if _, ok := out["a"]; !ok {
		t.Fatalf("expected unwrapped map, got %v", out)
	}
	if s, ok := unwrapTracks("plain").(string); !ok || s != "plain" {
		t.Fatal("non-map input must pass through")
	}
}

func TestMigrateEpisode_AllShapesAgree(t *testing.T) {
	shapes := map[string]string{
		"single": `{"source":"f"}`,
		"map":    `{"default":{"source":"f"}}`,
		"tracks": `{"tracks":{"default":{"source":"f"}}}`,
		"string": `"f"`,
	}
	for name, raw := range shapes {
		vs := migrateEpisode(decode(t, raw))
		if len(vs) != 1 || vs[catalog.DefaultVariant].Source != "f" {
			t.Fatalf("%s: unexpected variants %+v", name, vs)
		}
	}
}

func TestMigrateEpisode_DropsUnusableVariants(t *testing.T) {
	vs := migrateEpisode(decode(t, `{"a":{"source":""},"b":{"skip":"x"},"c":"direct","d":{"source":"ok","skip":95}}`))
	if len(vs) != 2 {
		t.Fatalf("expected 2 variants, got %+v", vs)
	}
	if vs["c"].Source != "direct" || vs["d"].Skip != "95" {
		t.Fatalf("unexpected variants %+v", vs)
	}
	if migrateEpisode(decode(t, `[1,2]`)) != nil {
		t.Fatal("list payload should produce no variants")
	}
}

func TestParseOrdinal(t *testing.T) {
	good := []any{"3", " 12 ", float64(7)}
	for _, v := range good {
		if _, ok := parseOrdinal(v); !ok {
			t.Fatalf("expected %v to parse", v)
		}
	}
	bad := []any{"0", "-1", "ep1", float64(1.5), nil, true}
	for _, v := range bad {
		if _, ok := parseOrdinal(v); ok {
			t.Fatalf("expected %v to be rejected", v)
		}
	}
}

func TestLegacyUsersToConversationMajor(t *testing.T) {
	doc := decode(t, `{
		"progress": {"10": {"x": 3}},
		"continue": {"10": ["x", "y"]},
		"favorites": {"10": ["y"]},
		"watched_titles": {"11": ["z"]},
		"current_track": {"10": {"x": "dub"}}
	}`).(map[string]any)

	out := legacyUsersToConversationMajor(doc)
	c10 := out["10"].(map[string]any)
	if c10["continuation_ledger"] == nil || c10["chosen_variant"] == nil || c10["progress"] == nil {
		t.Fatalf("conversation 10 missing fields: %v", c10)
	}
	if _, ok := out["11"].(map[string]any)["watched_titles"]; !ok {
		t.Fatalf("conversation 11 missing watched: %v", out["11"])
	}

	current := map[string]any{"10": map[string]any{"progress": map[string]any{}}}
	if got := legacyUsersToConversationMajor(current); got["10"] == nil {
		t.Fatal("current shape must pass through")
	}
}
