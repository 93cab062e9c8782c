package action

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// MaxPayload is the largest callback payload the messaging backend accepts.
const MaxPayload = 64

var (
	ErrMalformed = errors.New("malformed action payload")
	ErrTooLong   = errors.New("action payload too long")
)

const (
	tagMenu        = "menu"
	tagTitle       = "anime"
	tagEpisode     = "ep"
	tagNext        = "next"
	tagNextOther   = "next_other"
	tagPrev        = "prev"
	tagFavorite    = "fav"
	tagWatched     = "watch"
	tagVariant     = "track"
	tagContinue    = "continue"
	tagContRemove  = "cont_remove"
	tagGenres      = "catalog"
	tagGenre       = "genre"
	tagOngoing     = "ongoings"
	tagRandom      = "random"
	tagEpisodeList = "list"
	tagFavorites   = "favorites"
	tagWatchedList = "watched"
	tagContItem    = "cont"
	tagContPlay    = "cont_play"
	tagSearch      = "search"
)

// Encode renders a as a colon separated payload. Free-form fields are
// escaped so they can contain colons.
func Encode(a Action) (string, error) {
	var parts []string
	switch v := a.(type) {
	case ReturnToMain:
		parts = []string{tagMenu}
	case OpenTitle:
		parts = []string{tagTitle, esc(v.Slug)}
	case OpenEpisode:
		parts = []string{tagEpisode, esc(v.Slug), itoa(v.Episode)}
	case AdvanceNext:
		parts = []string{tagNext, esc(v.Slug), itoa(v.Episode)}
	case AdvanceNextOtherVariant:
		parts = []string{tagNextOther, esc(v.Slug), itoa(v.Episode)}
	case GoPrevious:
		parts = []string{tagPrev, esc(v.Slug), itoa(v.Episode)}
	case ToggleFavorite:
		parts = []string{tagFavorite, esc(v.Slug), itoa(v.Episode)}
	case ToggleWatched:
		parts = []string{tagWatched, esc(v.Slug), itoa(v.Episode)}
	case ChooseVariant:
		parts = []string{tagVariant, esc(v.Slug), itoa(v.Episode), esc(v.Variant)}
	case ShowContinuationList:
		parts = []string{tagContinue, itoa(v.Page)}
	case RemoveFromContinuation:
		parts = []string{tagContRemove, esc(v.Slug)}
	case ShowGenres:
		parts = []string{tagGenres}
	case ShowGenre:
		parts = []string{tagGenre, esc(v.Genre), itoa(v.Page)}
	case ShowOngoing:
		parts = []string{tagOngoing}
	case RandomTitle:
		parts = []string{tagRandom}
	case ShowEpisodeList:
		parts = []string{tagEpisodeList, esc(v.Slug)}
	case ShowFavorites:
		parts = []string{tagFavorites}
	case ShowWatched:
		parts = []string{tagWatchedList, itoa(v.Page)}
	case ShowContinuationItem:
		parts = []string{tagContItem, esc(v.Slug)}
	case ContinuePlay:
		parts = []string{tagContPlay, esc(v.Slug)}
	case StartSearch:
		parts = []string{tagSearch}
	default:
		return "", fmt.Errorf("%w: unknown action %T", ErrMalformed, a)
	}
	out := strings.Join(parts, ":")
	if len(out) > MaxPayload {
		return "", fmt.Errorf("%w: %d bytes for %q", ErrTooLong, len(out), parts[0])
	}
	return out, nil
}

// Decode parses a payload produced by Encode.
func Decode(payload string) (Action, error) {
	parts := strings.Split(payload, ":")
	d := decoder{tag: parts[0], args: parts[1:]}

	var a Action
	switch d.tag {
	case tagMenu:
		a = ReturnToMain{}
	case tagTitle:
		a = OpenTitle{Slug: d.str(0)}
	case tagEpisode:
		a = OpenEpisode{Slug: d.str(0), Episode: d.ordinal(1)}
	case tagNext:
		a = AdvanceNext{Slug: d.str(0), Episode: d.ordinal(1)}
	case tagNextOther:
		a = AdvanceNextOtherVariant{Slug: d.str(0), Episode: d.ordinal(1)}
	case tagPrev:
		a = GoPrevious{Slug: d.str(0), Episode: d.ordinal(1)}
	case tagFavorite:
		a = ToggleFavorite{Slug: d.str(0), Episode: d.ordinal(1)}
	case tagWatched:
		a = ToggleWatched{Slug: d.str(0), Episode: d.ordinal(1)}
	case tagVariant:
		a = ChooseVariant{Slug: d.str(0), Episode: d.ordinal(1), Variant: d.str(2)}
	case tagContinue:
		a = ShowContinuationList{Page: d.page(0)}
	case tagContRemove:
		a = RemoveFromContinuation{Slug: d.str(0)}
	case tagGenres:
		a = ShowGenres{}
	case tagGenre:
		a = ShowGenre{Genre: d.str(0), Page: d.page(1)}
	case tagOngoing:
		a = ShowOngoing{}
	case tagRandom:
		a = RandomTitle{}
	case tagEpisodeList:
		a = ShowEpisodeList{Slug: d.str(0)}
	case tagFavorites:
		a = ShowFavorites{}
	case tagWatchedList:
		a = ShowWatched{Page: d.page(0)}
	case tagContItem:
		a = ShowContinuationItem{Slug: d.str(0)}
	case tagContPlay:
		a = ContinuePlay{Slug: d.str(0)}
	case tagSearch:
		a = StartSearch{}
	default:
		return nil, fmt.Errorf("%w: unknown tag %q", ErrMalformed, d.tag)
	}
	if d.err != nil {
		return nil, d.err
	}
	if d.used != len(d.args) {
		return nil, fmt.Errorf("%w: %q takes %d fields, got %d", ErrMalformed, d.tag, d.used, len(d.args))
	}
	return a, nil
}

type decoder struct {
	tag  string
	args []string
	used int
	err  error
}

func (d *decoder) field(i int) (string, bool) {
	if i+1 > d.used {
		d.used = i + 1
	}
	if d.err != nil {
		return "", false
	}
	if i >= len(d.args) {
		d.err = fmt.Errorf("%w: %q missing field %d", ErrMalformed, d.tag, i)
		return "", false
	}
	return d.args[i], true
}

func (d *decoder) str(i int) string {
	raw, ok := d.field(i)
	if !ok {
		return ""
	}
	s, err := url.QueryUnescape(raw)
	if err != nil || s == "" {
		d.err = fmt.Errorf("%w: %q field %d", ErrMalformed, d.tag, i)
		return ""
	}
	return s
}

func (d *decoder) ordinal(i int) int {
	n := d.number(i)
	if d.err == nil && n < 1 {
		d.err = fmt.Errorf("%w: %q episode %d", ErrMalformed, d.tag, n)
	}
	return n
}

// page tolerates garbage the way old keyboards did: it becomes page 0.
func (d *decoder) page(i int) int {
	raw, ok := d.field(i)
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func (d *decoder) number(i int) int {
	raw, ok := d.field(i)
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		d.err = fmt.Errorf("%w: %q field %d not a number", ErrMalformed, d.tag, i)
		return 0
	}
	return n
}

func esc(s string) string { return url.QueryEscape(s) }

func itoa(n int) string { return strconv.Itoa(n) }
