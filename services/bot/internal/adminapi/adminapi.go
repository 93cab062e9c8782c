// Package adminapi exposes operator commands over HTTP.
package adminapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/example/anime-bot/internal/platform/api"
	"github.com/example/anime-bot/internal/platform/httpserver"
	"github.com/example/anime-bot/services/bot/internal/bot"
	"github.com/example/anime-bot/services/bot/internal/catalog"
	"github.com/example/anime-bot/services/bot/internal/domain"
	"github.com/example/anime-bot/services/bot/internal/ingest"
	"github.com/example/anime-bot/services/bot/internal/persist"
)

type Admin interface {
	PurgeTitle(ctx context.Context, slug string) (bot.PurgeReport, error)
	PurgeEpisode(ctx context.Context, slug string, ep int) (bot.PurgeReport, error)
	Export(ctx context.Context) ([]persist.Document, error)
	Ingest(ctx context.Context, u catalog.EpisodeUpsert) error
}

var _ Admin = (*bot.Controller)(nil)

type Handler struct {
	Admin   Admin
	Catalog func() *catalog.Snapshot
	Log     *zap.Logger
}

func (h Handler) Register(r chi.Router) {
	r.Get("/titles", h.listTitles)
	r.Delete("/titles/{slug}", h.purgeTitle)
	r.Delete("/titles/{slug}/episodes/{ep}", h.purgeEpisode)
	r.Post("/episodes", h.upsertEpisode)
	r.Get("/export", h.export)
}

type titleSummary struct {
	Slug     string   `json:"slug"`
	Name     string   `json:"name"`
	Status   string   `json:"status"`
	Genres   []string `json:"genres"`
	Episodes []int    `json:"episodes"`
}

func (h Handler) listTitles(w http.ResponseWriter, r *http.Request) {
	titles := h.Catalog().Titles()
	out := make([]titleSummary, 0, len(titles))
	for _, t := range titles {
		out = append(out, titleSummary{
			Slug:     t.Slug,
			Name:     t.Name,
			Status:   string(t.Status),
			Genres:   t.Genres,
			Episodes: t.Ordinals(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	api.WriteJSON(w, http.StatusOK, map[string]any{"titles": out})
}

func (h Handler) purgeTitle(w http.ResponseWriter, r *http.Request) {
	rep, err := h.Admin.PurgeTitle(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, rep)
}

func (h Handler) purgeEpisode(w http.ResponseWriter, r *http.Request) {
	rid := httpserver.RequestIDFromContext(r.Context())
	ep, err := strconv.Atoi(chi.URLParam(r, "ep"))
	if err != nil || ep <= 0 {
		api.BadRequest(w, "INVALID_EPISODE", "episode must be a positive integer", rid, nil)
		return
	}
	rep, err := h.Admin.PurgeEpisode(r.Context(), chi.URLParam(r, "slug"), ep)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, rep)
}

func (h Handler) upsertEpisode(w http.ResponseWriter, r *http.Request) {
	var job ingest.Job
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(&job); err != nil {
		api.BadRequest(w, "INVALID_BODY", "request body must be an episode job", httpserver.RequestIDFromContext(r.Context()), nil)
		return
	}
	u := job.Upsert()
	if err := h.Admin.Ingest(r.Context(), u); err != nil {
		h.fail(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"slug": u.Slug, "episode": u.Episode})
}

func (h Handler) export(w http.ResponseWriter, r *http.Request) {
	docs, err := h.Admin.Export(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make(map[string]json.RawMessage, len(docs))
	for _, d := range docs {
		out[d.Name] = json.RawMessage(d.Data)
	}
	api.WriteJSON(w, http.StatusOK, out)
}

func (h Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	rid := httpserver.RequestIDFromContext(r.Context())
	switch {
	case errors.Is(err, domain.ErrNotFound):
		api.NotFound(w, "NOT_FOUND", err.Error(), rid)
	case errors.Is(err, catalog.ErrInvalidUpsert):
		api.BadRequest(w, "INVALID_UPSERT", err.Error(), rid, nil)
	case errors.Is(err, domain.ErrTransientIO):
		h.Log.Warn("admin request hit transient storage error", zap.String("request_id", rid), zap.Error(err))
		api.Unavailable(w, "STORAGE_UNAVAILABLE", "storage is temporarily unavailable", rid)
	default:
		h.Log.Error("admin request failed", zap.String("request_id", rid), zap.Error(err))
		api.Internal(w, rid)
	}
}
