// Package resolver picks the track to serve for an episode and computes the
// navigation facts that drive the previous/next controls.
package resolver

import (
	"fmt"

	"github.com/example/anime-bot/services/bot/internal/catalog"
	"github.com/example/anime-bot/services/bot/internal/domain"
)

type Resolution struct {
	Title   catalog.Title
	Episode int
	Variant string
	Track   catalog.Track

	// Variants lists every variant of the episode, sorted.
	Variants []string

	HasPrev      bool
	HasNextSame  bool
	HasNextOther bool
}

// HasNext reports whether episode e+1 is playable in any variant.
func (r Resolution) HasNext() bool { return r.HasNextSame || r.HasNextOther }

// Resolve picks the variant for (slug, episode): requested first, then
// remembered, then the lexicographically first. Both preferences are ignored
// when the episode does not carry them.
func Resolve(snap *catalog.Snapshot, slug string, episode int, remembered, requested string) (Resolution, error) {
	title, ok := snap.Title(slug)
	if !ok {
		return Resolution{}, fmt.Errorf("title %q: %w", slug, domain.ErrNotFound)
	}
	ep, ok := title.Episode(episode)
	if !ok {
		return Resolution{}, fmt.Errorf("title %q episode %d: %w", slug, episode, domain.ErrNotFound)
	}

	names := ep.VariantNames()
	variant := names[0]
	switch {
	case requested != "" && has(ep, requested):
		variant = requested
	case remembered != "" && has(ep, remembered):
		variant = remembered
	}

	res := Resolution{
		Title:    title,
		Episode:  episode,
		Variant:  variant,
		Track:    ep.Variants[variant],
		Variants: names,
	}
	_, res.HasPrev = title.Episode(episode - 1)
	if next, ok := title.Episode(episode + 1); ok {
		res.HasNextSame = has(next, variant)
		res.HasNextOther = !res.HasNextSame
	}
	return res, nil
}

func has(ep catalog.Episode, variant string) bool {
	_, ok := ep.Variants[variant]
	return ok
}
