package persist

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/example/anime-bot/services/bot/internal/catalog"
	"github.com/example/anime-bot/services/bot/internal/domain"
	"github.com/example/anime-bot/services/bot/internal/ledger"
	"github.com/example/anime-bot/services/bot/internal/userstate"
)

const (
	DefaultCatalogDoc = "anime.json"
	DefaultUsersDoc   = "users.json"
)

type titleDoc struct {
	Title    string                          `json:"title"`
	Genres   []string                        `json:"genres"`
	Status   string                          `json:"status"`
	Episodes map[string]map[string]trackDoc `json:"episodes"`
}

type trackDoc struct {
	Source string `json:"source"`
	Skip   string `json:"skip,omitempty"`
}

type userDoc struct {
	Progress           map[string]int    `json:"progress"`
	Favorites          []string          `json:"favorites"`
	WatchedTitles      []string          `json:"watched_titles"`
	ChosenVariant      map[string]string `json:"chosen_variant"`
	ContinuationLedger []string          `json:"continuation_ledger"`
}

// Layer reads and writes the two documents through a Backend.
// Saves are serialized; loads may run concurrently with them.
type Layer struct {
	backend    Backend
	log        *zap.Logger
	catalogDoc string
	usersDoc   string

	mu            sync.Mutex
	catalogDigest [sha256.Size]byte
}

type Options struct {
	CatalogDoc string
	UsersDoc   string
	Logger     *zap.Logger
}

func New(backend Backend, opts Options) *Layer {
	if opts.CatalogDoc == "" {
		opts.CatalogDoc = DefaultCatalogDoc
	}
	if opts.UsersDoc == "" {
		opts.UsersDoc = DefaultUsersDoc
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Layer{backend: backend, log: opts.Logger, catalogDoc: opts.CatalogDoc, usersDoc: opts.UsersDoc}
}

func (l *Layer) CatalogDoc() string { return l.catalogDoc }

// read classifies backend results: (nil, nil) for a missing document,
// ErrTransientIO for anything the backend could not deliver.
func (l *Layer) read(ctx context.Context, name string) ([]byte, error) {
	data, err := l.backend.Read(ctx, name)
	if errors.Is(err, ErrNotExist) {
		l.log.Debug("document missing", zap.String("doc", name))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrTransientIO, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	return data, nil
}

// corrupt keeps a copy of the unreadable bytes next to the document and
// returns the classified error. The caller continues with empty state.
func (l *Layer) corrupt(ctx context.Context, name string, data []byte, cause error) error {
	l.log.Error("document unreadable, continuing with empty state", zap.String("doc", name), zap.Error(cause))
	if err := l.backend.Write(ctx, name+".corrupt", data); err != nil {
		l.log.Warn("could not keep a copy of the corrupt document", zap.String("doc", name), zap.Error(err))
	}
	return fmt.Errorf("%s: %w: %v", name, domain.ErrCorruptState, cause)
}

// LoadCatalog returns the stored catalog. A missing document yields an empty
// catalog and no error; a corrupt one yields an empty catalog and an error
// wrapping ErrCorruptState.
func (l *Layer) LoadCatalog(ctx context.Context) (*catalog.Snapshot, error) {
	data, err := l.read(ctx, l.catalogDoc)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.catalogDigest = sha256.Sum256(data)
	l.mu.Unlock()
	if data == nil {
		return catalog.NewSnapshot(nil), nil
	}
	snap, err := l.decodeCatalog(data)
	if err != nil {
		return catalog.NewSnapshot(nil), l.corrupt(ctx, l.catalogDoc, data, err)
	}
	return snap, nil
}

// LoadCatalogIfChanged reloads the catalog only when the stored bytes differ
// from what this layer last loaded or saved.
func (l *Layer) LoadCatalogIfChanged(ctx context.Context) (*catalog.Snapshot, bool, error) {
	data, err := l.read(ctx, l.catalogDoc)
	if err != nil {
		return nil, false, err
	}
	digest := sha256.Sum256(data)
	l.mu.Lock()
	same := digest == l.catalogDigest
	l.mu.Unlock()
	if same || data == nil {
		return nil, false, nil
	}
	snap, err := l.decodeCatalog(data)
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w: %v", l.catalogDoc, domain.ErrCorruptState, err)
	}
	l.mu.Lock()
	l.catalogDigest = digest
	l.mu.Unlock()
	return snap, true, nil
}

func (l *Layer) decodeCatalog(data []byte) (*catalog.Snapshot, error) {
	var doc map[string]map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	titles := make(map[string]catalog.Title, len(doc))
	for slug, raw := range doc {
		status, _ := raw["status"].(string)
		t := catalog.Title{
			Slug:     slug,
			Name:     slug,
			Status:   domain.ParseStatus(status),
			Genres:   catalog.NormalizeGenres(stringList(raw["genres"])),
			Episodes: map[int]catalog.Episode{},
		}
		if name, ok := raw["title"].(string); ok && strings.TrimSpace(name) != "" {
			t.Name = name
		}
		eps, _ := raw["episodes"].(map[string]any)
		for key, payload := range eps {
			n, ok := parseOrdinal(key)
			if !ok {
				l.log.Warn("dropping episode with invalid ordinal", zap.String("slug", slug), zap.String("ordinal", key))
				continue
			}
			t.Episodes[n] = catalog.Episode{Ordinal: n, Variants: migrateEpisode(payload)}
		}
		titles[slug] = t
	}
	return catalog.NewSnapshot(titles), nil
}

// SaveCatalog writes the catalog in the current shape.
func (l *Layer) SaveCatalog(ctx context.Context, snap *catalog.Snapshot) error {
	doc := map[string]titleDoc{}
	for slug, t := range snap.Titles() {
		td := titleDoc{
			Title:    t.Name,
			Genres:   append([]string{}, t.Genres...),
			Status:   string(t.Status),
			Episodes: map[string]map[string]trackDoc{},
		}
		for n, ep := range t.Episodes {
			vs := map[string]trackDoc{}
			for name, tr := range ep.Variants {
				vs[name] = trackDoc{Source: tr.Source, Skip: tr.Skip}
			}
			td.Episodes[strconv.Itoa(n)] = vs
		}
		doc[slug] = td
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.backend.Write(ctx, l.catalogDoc, data); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrTransientIO, err)
	}
	l.catalogDigest = sha256.Sum256(data)
	return nil
}

// LoadUsers returns every stored conversation state, with the same
// missing/corrupt semantics as LoadCatalog.
func (l *Layer) LoadUsers(ctx context.Context) (map[domain.ConversationID]*userstate.State, error) {
	data, err := l.read(ctx, l.usersDoc)
	if err != nil {
		return nil, err
	}
	out := map[domain.ConversationID]*userstate.State{}
	if data == nil {
		return out, nil
	}

	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return out, l.corrupt(ctx, l.usersDoc, data, err)
	}
	if isLegacyUsers(doc) {
		l.log.Info("migrating legacy users document", zap.String("doc", l.usersDoc))
	}
	doc = legacyUsersToConversationMajor(doc)

	for key, raw := range doc {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			l.log.Warn("dropping user entry with invalid conversation id", zap.String("key", key))
			continue
		}
		entry, ok := raw.(map[string]any)
		if !ok {
			l.log.Warn("dropping malformed user entry", zap.Int64("conversation_id", id))
			continue
		}
		st := userstate.New()
		progress, dropped := progressMap(entry["progress"])
		if len(dropped) > 0 {
			l.log.Warn("dropping progress with invalid ordinals", zap.Int64("conversation_id", id), zap.Strings("entries", dropped))
		}
		if progress != nil {
			st.Progress = progress
		}
		for _, s := range stringList(entry["favorites"]) {
			st.SetFavorite(s, true)
		}
		for _, s := range stringList(entry["watched_titles"]) {
			st.SetWatched(s, true)
		}
		if cv := stringMap(entry["chosen_variant"]); cv != nil {
			st.ChosenVariant = cv
		}
		st.Ledger = ledger.FromSlice(stringList(entry["continuation_ledger"]))
		out[domain.ConversationID(id)] = st
	}
	return out, nil
}

// SaveUsers writes every non-empty conversation state.
func (l *Layer) SaveUsers(ctx context.Context, states map[domain.ConversationID]*userstate.State) error {
	doc := make(map[string]userDoc, len(states))
	for id, st := range states {
		if st == nil || st.Empty() {
			continue
		}
		doc[strconv.FormatInt(int64(id), 10)] = userDoc{
			Progress:           st.Progress,
			Favorites:          st.FavoriteSlugs(),
			WatchedTitles:      st.WatchedSlugs(),
			ChosenVariant:      st.ChosenVariant,
			ContinuationLedger: st.Ledger.Items(),
		}
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.backend.Write(ctx, l.usersDoc, data); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrTransientIO, err)
	}
	return nil
}

// Document is one stored document as raw bytes.
type Document struct {
	Name string
	Data []byte
}

// Export returns both documents as stored. Missing ones are skipped.
func (l *Layer) Export(ctx context.Context) ([]Document, error) {
	var out []Document
	for _, name := range []string{l.catalogDoc, l.usersDoc} {
		data, err := l.read(ctx, name)
		if err != nil {
			return nil, err
		}
		if data != nil {
			out = append(out, Document{Name: name, Data: data})
		}
	}
	return out, nil
}
