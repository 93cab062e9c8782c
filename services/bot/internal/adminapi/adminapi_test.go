package adminapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/example/anime-bot/services/bot/internal/bot"
	"github.com/example/anime-bot/services/bot/internal/catalog"
	"github.com/example/anime-bot/services/bot/internal/domain"
	"github.com/example/anime-bot/services/bot/internal/persist"
)

type stubAdmin struct {
	purgedSlug string
	purgedEp   int
	ingested   []catalog.EpisodeUpsert
	err        error
}

func (s *stubAdmin) PurgeTitle(_ context.Context, slug string) (bot.PurgeReport, error) {
	s.purgedSlug = slug
	return bot.PurgeReport{Slug: slug, TitleRemoved: true, Conversations: 2}, s.err
}

func (s *stubAdmin) PurgeEpisode(_ context.Context, slug string, ep int) (bot.PurgeReport, error) {
	s.purgedSlug, s.purgedEp = slug, ep
	return bot.PurgeReport{Slug: slug, Episode: ep}, s.err
}

func (s *stubAdmin) Export(context.Context) ([]persist.Document, error) {
	return []persist.Document{{Name: "anime.json", Data: []byte(`{"x":{}}`)}}, s.err
}

func (s *stubAdmin) Ingest(_ context.Context, u catalog.EpisodeUpsert) error {
	s.ingested = append(s.ingested, u)
	return s.err
}

func router(admin Admin) http.Handler {
	snap := catalog.NewSnapshot(map[string]catalog.Title{
		"x": {Slug: "x", Name: "X", Status: domain.StatusOngoing, Episodes: map[int]catalog.Episode{
			1: {Ordinal: 1, Variants: map[string]catalog.Track{"a": {Source: "s"}}},
		}},
	})
	r := chi.NewRouter()
	Handler{Admin: admin, Catalog: func() *catalog.Snapshot { return snap }, Log: zap.NewNop()}.Register(r)
	return r
}

func do(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestPurgeTitle_OK(t *testing.T) {
	admin := &stubAdmin{}
	rr := do(router(admin), http.MethodDelete, "/titles/frieren", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if admin.purgedSlug != "frieren" {
		t.Fatalf("expected slug frieren, got %q", admin.purgedSlug)
	}
	var rep bot.PurgeReport
	if err := json.Unmarshal(rr.Body.Bytes(), &rep); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rep.Conversations != 2 || !rep.TitleRemoved {
		t.Fatalf("unexpected report %+v", rep)
	}
}

func TestPurgeTitle_NotFound(t *testing.T) {
	admin := &stubAdmin{err: fmt.Errorf("title %q: %w", "nope", domain.ErrNotFound)}
	rr := do(router(admin), http.MethodDelete, "/titles/nope", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestPurgeEpisode_BadOrdinal(t *testing.T) {
	admin := &stubAdmin{}
	rr := do(router(admin), http.MethodDelete, "/titles/x/episodes/zero", "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if admin.purgedSlug != "" {
		t.Fatal("admin must not be called for a bad ordinal")
	}
}

func TestPurgeEpisode_TransientIsUnavailable(t *testing.T) {
	admin := &stubAdmin{err: domain.ErrTransientIO}
	rr := do(router(admin), http.MethodDelete, "/titles/x/episodes/2", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	if admin.purgedEp != 2 {
		t.Fatalf("expected episode 2, got %d", admin.purgedEp)
	}
}

func TestUpsertEpisode(t *testing.T) {
	admin := &stubAdmin{}
	rr := do(router(admin), http.MethodPost, "/episodes", `{"slug":"x","title":"X","episode":2,"variant":"a","source":"f","status":"completed"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if len(admin.ingested) != 1 || admin.ingested[0].Status != domain.StatusFinished {
		t.Fatalf("unexpected ingest %+v", admin.ingested)
	}

	admin.err = fmt.Errorf("%w: empty slug", catalog.ErrInvalidUpsert)
	if rr := do(router(admin), http.MethodPost, "/episodes", `{"episode":1}`); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for an invalid upsert, got %d", rr.Code)
	}
	if rr := do(router(admin), http.MethodPost, "/episodes", `not json`); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a bad body, got %d", rr.Code)
	}
}

func TestListTitlesAndExport(t *testing.T) {
	h := router(&stubAdmin{})

	rr := do(h, http.MethodGet, "/titles", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"slug":"x"`) {
		t.Fatalf("unexpected titles response %d %s", rr.Code, rr.Body.String())
	}

	rr = do(h, http.MethodGet, "/export", "")
	var out map[string]json.RawMessage
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := out["anime.json"]; !ok {
		t.Fatalf("expected anime.json in export, got %v", out)
	}
}
