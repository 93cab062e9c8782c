package persist

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/example/anime-bot/services/bot/internal/catalog"
)

// Episode payloads went through three shapes:
//
//	v1  "file_id"  or  {"source": "file_id", "skip": "..."}
//	v2  {"tracks": {"dub": {"source": "...", "skip": "..."}}}
//	v3  {"dub": {"source": "...", "skip": "..."}}
//
// Each step below converts one shape into the next and passes anything else
// through untouched, so the chain can run on any payload.
type episodeMigration struct {
	name  string
	apply func(v any) any
}

var episodeChain = []episodeMigration{
	{name: "single-source-to-tracks", apply: singleSourceToTracks},
	{name: "unwrap-tracks", apply: unwrapTracks},
}

func singleSourceToTracks(v any) any {
	switch t := v.(type) {
	case string:
		return map[string]any{"tracks": map[string]any{catalog.DefaultVariant: map[string]any{"source": t}}}
	case map[string]any:
		src, ok := t["source"].(string)
		if !ok {
			return v
		}
		track := map[string]any{"source": src}
		if skip, ok := t["skip"]; ok {
			track["skip"] = skip
		}
		variant := catalog.DefaultVariant
		if name, ok := t["track"].(string); ok && strings.TrimSpace(name) != "" {
			variant = strings.TrimSpace(name)
		}
		return map[string]any{"tracks": map[string]any{variant: track}}
	}
	return v
}

func unwrapTracks(v any) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}
	tracks, ok := m["tracks"].(map[string]any)
	if !ok {
		return v
	}
	return tracks
}

// migrateEpisode runs the chain and decodes the resulting variant map.
// Variants without a usable source are dropped.
func migrateEpisode(v any) map[string]catalog.Track {
	for _, m := range episodeChain {
		v = m.apply(v)
	}
	raw, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]catalog.Track, len(raw))
	for name, tv := range raw {
		var tr catalog.Track
		switch t := tv.(type) {
		case string:
			tr.Source = t
		case map[string]any:
			tr.Source, _ = t["source"].(string)
			tr.Skip = skipString(t["skip"])
		}
		if strings.TrimSpace(tr.Source) == "" {
			continue
		}
		out[name] = tr
	}
	return out
}

func skipString(v any) string {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	}
	return ""
}

// parseOrdinal accepts "12", 12 and 12.0. Anything else is invalid.
func parseOrdinal(v any) (int, bool) {
	switch t := v.(type) {
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		return n, err == nil && n > 0
	case float64:
		if t != math.Trunc(t) || t <= 0 || t > math.MaxInt32 {
			return 0, false
		}
		return int(t), true
	case json.Number:
		n, err := strconv.Atoi(t.String())
		return n, err == nil && n > 0
	}
	return 0, false
}

// Users documents went through two shapes. The legacy one is field-major:
//
//	{"progress": {"<conv>": {...}}, "continue": {"<conv>": [...]}, "favorites": ..., "watched_titles": ..., "current_track": ...}
//
// The current one is conversation-major: {"<conv>": {"progress": ..., ...}}.
var legacyUserFields = map[string]string{
	"progress":       "progress",
	"continue":       "continuation_ledger",
	"favorites":      "favorites",
	"watched_titles": "watched_titles",
	"current_track":  "chosen_variant",
}

func isLegacyUsers(doc map[string]any) bool {
	for k := range doc {
		if _, legacy := legacyUserFields[k]; legacy {
			return true
		}
	}
	return false
}

// legacyUsersToConversationMajor pivots the legacy shape. Non-legacy input passes through.
func legacyUsersToConversationMajor(doc map[string]any) map[string]any {
	if !isLegacyUsers(doc) {
		return doc
	}
	out := map[string]any{}
	for field, perConv := range doc {
		target, ok := legacyUserFields[field]
		if !ok {
			continue
		}
		byConv, ok := perConv.(map[string]any)
		if !ok {
			continue
		}
		for conv, value := range byConv {
			entry, ok := out[conv].(map[string]any)
			if !ok {
				entry = map[string]any{}
				out[conv] = entry
			}
			entry[target] = value
		}
	}
	return out
}

func stringList(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

func stringMap(v any) map[string]string {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, val := range m {
		if s, ok := val.(string); ok && s != "" {
			out[k] = s
		}
	}
	return out
}

// progressMap keeps entries whose ordinal parses; the rest are reported.
func progressMap(v any) (map[string]int, []string) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, nil
	}
	out := make(map[string]int, len(m))
	var dropped []string
	for slug, val := range m {
		n, ok := parseOrdinal(val)
		if !ok {
			dropped = append(dropped, fmt.Sprintf("%s=%v", slug, val))
			continue
		}
		out[slug] = n
	}
	return out, dropped
}
