package ingest

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/example/anime-bot/services/bot/internal/catalog"
	"github.com/example/anime-bot/services/bot/internal/domain"
)

// ErrBadCaption is returned for captions without slug, title and ep lines.
var ErrBadCaption = errors.New("caption needs slug, title and ep lines")

// CaptionHelp describes the caption format accepted by ParseCaption.
const CaptionHelp = "slug: ...\ntitle: ...\nep: ...\n[status: ongoing/finished]\n[voice: ...]\n[skip: ...]\n[genres: a, b]"

// ParseCaption reads "key: value" lines of a source-chat video caption into
// an upsert for the video identified by source. Unknown keys are ignored.
func ParseCaption(caption, source string) (catalog.EpisodeUpsert, error) {
	fields := map[string]string{}
	for _, line := range strings.Split(caption, "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		if key == "ozv" {
			key = "voice"
		}
		fields[key] = strings.TrimSpace(value)
	}

	if fields["slug"] == "" || fields["title"] == "" || fields["ep"] == "" {
		return catalog.EpisodeUpsert{}, ErrBadCaption
	}
	ep, err := strconv.Atoi(fields["ep"])
	if err != nil || ep <= 0 {
		return catalog.EpisodeUpsert{}, fmt.Errorf("%w: ep %q", ErrBadCaption, fields["ep"])
	}

	var genres []string
	if raw := fields["genres"]; raw != "" {
		genres = strings.Split(raw, ",")
	}
	return catalog.EpisodeUpsert{
		Slug:    fields["slug"],
		Title:   fields["title"],
		Status:  domain.ParseStatus(fields["status"]),
		Genres:  genres,
		Episode: ep,
		Variant: fields["voice"],
		Source:  source,
		Skip:    fields["skip"],
	}, nil
}
