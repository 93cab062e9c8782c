package persist

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/example/anime-bot/services/bot/internal/domain"
	"github.com/example/anime-bot/services/bot/internal/userstate"
)

type failingBackend struct{ err error }

func (f failingBackend) Read(context.Context, string) ([]byte, error) { return nil, f.err }
func (f failingBackend) Write(context.Context, string, []byte) error  { return f.err }

const usersFixture = `{"42": {
	"progress": {"x": 2, "y": "5", "bad": "nope"},
	"favorites": ["x"],
	"watched_titles": ["y"],
	"chosen_variant": {"x": "b"},
	"continuation_ledger": ["y", "x"]
}}`

var catalogShapes = map[string]string{
	"single-source": `{"x": {"title": "X", "status": "finish", "genres": ["Action"], "episodes": {
		"1": "file-1",
		"2": {"source": "file-2", "skip": "0:30"}
	}}}`,
	"variant-map": `{"x": {"title": "X", "status": "finished", "genres": ["action"], "episodes": {
		"1": {"default": {"source": "file-1"}},
		"2": {"default": {"source": "file-2", "skip": "0:30"}}
	}}}`,
	"tracks-wrapper": `{"x": {"title": "X", "status": "completed", "genres": ["ACTION"], "episodes": {
		"1": {"tracks": {"default": {"source": "file-1"}}},
		"2": {"tracks": {"default": {"source": "file-2", "skip": "0:30"}}},
		"zero": {"tracks": {"default": {"source": "bogus"}}}
	}}}`,
}

func TestRoundTrip_AllHistoricalShapes(t *testing.T) {
	ctx := context.Background()
	for name, catalogDoc := range catalogShapes {
		t.Run(name, func(t *testing.T) {
			backend := NewInMemoryBackend()
			_ = backend.Write(ctx, DefaultCatalogDoc, []byte(catalogDoc))
			_ = backend.Write(ctx, DefaultUsersDoc, []byte(usersFixture))
			layer := New(backend, Options{})

			snap, err := layer.LoadCatalog(ctx)
			if err != nil {
				t.Fatalf("load catalog: %v", err)
			}
			users, err := layer.LoadUsers(ctx)
			if err != nil {
				t.Fatalf("load users: %v", err)
			}
			if err := layer.SaveCatalog(ctx, snap); err != nil {
				t.Fatalf("save catalog: %v", err)
			}
			if err := layer.SaveUsers(ctx, users); err != nil {
				t.Fatalf("save users: %v", err)
			}

			snap, err = layer.LoadCatalog(ctx)
			if err != nil {
				t.Fatalf("reload catalog: %v", err)
			}
			title, ok := snap.Title("x")
			if !ok {
				t.Fatal("title x missing after round trip")
			}
			if title.Status != domain.StatusFinished || title.Name != "X" {
				t.Fatalf("unexpected metadata %+v", title)
			}
			if len(title.Genres) != 1 || title.Genres[0] != "action" {
				t.Fatalf("unexpected genres %v", title.Genres)
			}
			if len(title.Episodes) != 2 {
				t.Fatalf("expected 2 episodes, got %d", len(title.Episodes))
			}
			if tr := title.Episodes[2].Variants["default"]; tr.Source != "file-2" || tr.Skip != "0:30" {
				t.Fatalf("unexpected episode 2 track %+v", tr)
			}

			users, err = layer.LoadUsers(ctx)
			if err != nil {
				t.Fatalf("reload users: %v", err)
			}
			st := users[42]
			if st == nil {
				t.Fatal("conversation 42 missing")
			}
			ledgerItems := st.Ledger.Items()
			if len(ledgerItems) != 2 || ledgerItems[0] != "y" || ledgerItems[1] != "x" {
				t.Fatalf("ledger order changed: %v", ledgerItems)
			}
			if len(st.Progress) != 2 || st.Progress["x"] != 2 || st.Progress["y"] != 5 {
				t.Fatalf("unexpected progress %v", st.Progress)
			}
			if !st.IsFavorite("x") || !st.IsWatched("y") || st.ChosenVariant["x"] != "b" {
				t.Fatalf("sets or variants lost: %+v", st)
			}
		})
	}
}

func TestLoad_MissingDocumentsAreEmpty(t *testing.T) {
	layer := New(NewInMemoryBackend(), Options{})
	snap, err := layer.LoadCatalog(context.Background())
	if err != nil || snap.Len() != 0 {
		t.Fatalf("expected empty catalog, got %d titles, err=%v", snap.Len(), err)
	}
	users, err := layer.LoadUsers(context.Background())
	if err != nil || len(users) != 0 {
		t.Fatalf("expected no users, got %d, err=%v", len(users), err)
	}
}

func TestLoad_CorruptDocumentFallsBackToEmpty(t *testing.T) {
	ctx := context.Background()
	backend := NewInMemoryBackend()
	_ = backend.Write(ctx, DefaultUsersDoc, []byte(`{"42": {"progress":`))
	layer := New(backend, Options{})

	users, err := layer.LoadUsers(ctx)
	if !errors.Is(err, domain.ErrCorruptState) {
		t.Fatalf("expected ErrCorruptState, got %v", err)
	}
	if users == nil || len(users) != 0 {
		t.Fatalf("expected empty state alongside the error, got %v", users)
	}
	kept, err := backend.Read(ctx, DefaultUsersDoc+".corrupt")
	if err != nil || string(kept) != `{"42": {"progress":` {
		t.Fatalf("expected corrupt copy to be kept, got %q err=%v", kept, err)
	}
}

func TestLoad_BackendFailureIsTransient(t *testing.T) {
	layer := New(failingBackend{err: errors.New("disk on fire")}, Options{})
	if _, err := layer.LoadCatalog(context.Background()); !errors.Is(err, domain.ErrTransientIO) {
		t.Fatalf("expected ErrTransientIO, got %v", err)
	}
	if err := layer.SaveUsers(context.Background(), nil); !errors.Is(err, domain.ErrTransientIO) {
		t.Fatalf("expected ErrTransientIO on save, got %v", err)
	}
}

func TestLoadUsers_LegacyFieldMajor(t *testing.T) {
	ctx := context.Background()
	backend := NewInMemoryBackend()
	_ = backend.Write(ctx, DefaultUsersDoc, []byte(`{
		"progress": {"7": {"x": 4}},
		"continue": {"7": ["a", "x"], "junk": ["q"]},
		"favorites": {"7": ["x"]},
		"watched_titles": {"7": []},
		"current_track": {"7": {"x": "dub"}}
	}`))

	users, err := New(backend, Options{}).LoadUsers(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(users) != 1 {
		t.Fatalf("expected only conversation 7, got %d", len(users))
	}
	st := users[7]
	if st.Progress["x"] != 4 || st.ChosenVariant["x"] != "dub" || !st.IsFavorite("x") {
		t.Fatalf("legacy fields not migrated: %+v", st)
	}
	if items := st.Ledger.Items(); len(items) != 2 || items[1] != "x" {
		t.Fatalf("legacy ledger not migrated: %v", items)
	}
}

func TestSaveUsers_SkipsEmptyStates(t *testing.T) {
	ctx := context.Background()
	backend := NewInMemoryBackend()
	layer := New(backend, Options{})

	busy := userstate.New()
	busy.Ledger.Advance("x")
	err := layer.SaveUsers(ctx, map[domain.ConversationID]*userstate.State{1: userstate.New(), 2: busy})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	users, _ := layer.LoadUsers(ctx)
	if len(users) != 1 || users[2] == nil {
		t.Fatalf("expected only conversation 2, got %v", users)
	}
}

func TestLoadCatalogIfChanged(t *testing.T) {
	ctx := context.Background()
	backend := NewInMemoryBackend()
	_ = backend.Write(ctx, DefaultCatalogDoc, []byte(catalogShapes["variant-map"]))
	layer := New(backend, Options{})

	if _, err := layer.LoadCatalog(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, changed, err := layer.LoadCatalogIfChanged(ctx); err != nil || changed {
		t.Fatalf("expected no change, got changed=%v err=%v", changed, err)
	}

	_ = backend.Write(ctx, DefaultCatalogDoc, []byte(`{"y": {"title": "Y", "episodes": {"1": "f"}}}`))
	snap, changed, err := layer.LoadCatalogIfChanged(ctx)
	if err != nil || !changed {
		t.Fatalf("expected change, got changed=%v err=%v", changed, err)
	}
	if _, ok := snap.Title("y"); !ok {
		t.Fatal("expected reloaded catalog to contain y")
	}

	if err := layer.SaveCatalog(ctx, snap); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, changed, _ := layer.LoadCatalogIfChanged(ctx); changed {
		t.Fatal("our own save must not count as an external change")
	}
}

func TestExport(t *testing.T) {
	ctx := context.Background()
	backend := NewInMemoryBackend()
	_ = backend.Write(ctx, DefaultUsersDoc, []byte(`{}`))

	docs, err := New(backend, Options{}).Export(ctx)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(docs) != 1 || docs[0].Name != DefaultUsersDoc {
		t.Fatalf("unexpected export %+v", docs)
	}
}

func TestFileBackend_WriteRead(t *testing.T) {
	ctx := context.Background()
	b, err := NewFileBackend(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := b.Read(ctx, "users.json"); !errors.Is(err, ErrNotExist) {
		t.Fatalf("expected ErrNotExist, got %v", err)
	}
	if err := b.Write(ctx, "users.json", []byte(`{"1":{}}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	data, err := b.Read(ctx, "users.json")
	if err != nil || string(data) != `{"1":{}}` {
		t.Fatalf("unexpected read %q err=%v", data, err)
	}
	if _, err := os.Stat(b.Path("users.json") + ".tmp"); !os.IsNotExist(err) {
		t.Fatal("temp file left behind")
	}
}
