// Package status exposes the operational read surface: health probes,
// crawl statistics, stored repository lookups, and the SSE event stream.
package status

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/models"
	"github.com/starford/raido/internal/store"
)

// ClientCounter reports how many SSE clients are connected. The broker
// satisfies it.
type ClientCounter interface {
	ClientCount() int
}

// Handler serves the read-only status endpoints.
type Handler struct {
	st      store.Store
	queues  []string
	clients ClientCounter
	started time.Time
}

// NewHandler creates a status handler over the store. queues names the
// work queues whose depths are reported.
func NewHandler(st store.Store, queues []string, clients ClientCounter) *Handler {
	return &Handler{
		st:      st,
		queues:  queues,
		clients: clients,
		started: time.Now(),
	}
}

// NewRouter mounts the status surface. sseHandler, if non-nil, is
// mounted at GET /events.
func NewRouter(h *Handler, sseHandler http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Get("/health/live", h.Live)
	r.Get("/health/ready", h.Ready)
	r.Get("/status", h.Status)
	r.Get("/repos/{platform}/*", h.Repo)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}
	return r
}

// Live reports process liveness.
func (h *Handler) Live(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready reports readiness: the database must answer a ping.
func (h *Handler) Ready(w http.ResponseWriter, _ *http.Request) {
	if err := h.st.Ping(); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody("database unavailable"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusResponse struct {
	store.Counts
	Queues        map[string]int `json:"queues"`
	SSEClients    int            `json:"sse_clients"`
	UptimeSeconds int64          `json:"uptime_seconds"`
}

// Status returns row counts, queue depths, and broker stats.
func (h *Handler) Status(w http.ResponseWriter, _ *http.Request) {
	counts, err := h.st.Counts()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody("counts unavailable"))
		return
	}

	depths := make(map[string]int, len(h.queues))
	for _, q := range h.queues {
		n, err := h.st.CountItems(q)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, errorBody("queue depth unavailable"))
			return
		}
		depths[q] = n
	}

	resp := statusResponse{
		Counts:        counts,
		Queues:        depths,
		UptimeSeconds: int64(time.Since(h.started).Seconds()),
	}
	if h.clients != nil {
		resp.SSEClients = h.clients.ClientCount()
	}
	writeJSON(w, http.StatusOK, resp)
}

type repoResponse struct {
	Repo         *models.Repository  `json:"repo"`
	Manifest     *models.Manifest    `json:"manifest,omitempty"`
	Dependencies []models.Dependency `json:"dependencies"`
}

// Repo returns one stored repository with its manifest snapshot and
// dependency edges.
func (h *Handler) Repo(w http.ResponseWriter, r *http.Request) {
	platform := models.Platform(chi.URLParam(r, "platform"))
	fullName := chi.URLParam(r, "*")

	repo, err := h.st.GetRepo(platform, fullName)
	if errors.Is(err, apperr.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorBody("repository not found"))
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody("lookup failed"))
		return
	}

	resp := repoResponse{Repo: repo, Dependencies: []models.Dependency{}}

	m, err := h.st.GetManifest(repo.ID)
	switch {
	case err == nil:
		resp.Manifest = m
	case errors.Is(err, apperr.ErrNotFound):
		// No snapshot yet.
	default:
		writeJSON(w, http.StatusInternalServerError, errorBody("lookup failed"))
		return
	}

	deps, err := h.st.RepoDependencies(repo.ID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody("lookup failed"))
		return
	}
	if deps != nil {
		resp.Dependencies = deps
	}

	writeJSON(w, http.StatusOK, resp)
}
