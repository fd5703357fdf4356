package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/pprof"

	"github.com/go-chi/chi/v5"

	"forumwatch-go/internal/model"
)

// StatusSource is the read-only view of the watcher exposed over HTTP.
type StatusSource interface {
	LastReport() (model.CycleReport, bool)
	SeenCounts(ctx context.Context) (map[string]int, error)
	Sites() []model.Site
}

type Handler struct {
	status StatusSource
}

func NewHandler(status StatusSource) *Handler {
	return &Handler{status: status}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", h.handleHealth)
	r.Get("/status", h.handleStatus)
	r.Route("/debug/pprof", func(r chi.Router) {
		r.Get("/", pprof.Index)
		r.Get("/cmdline", pprof.Cmdline)
		r.Get("/profile", pprof.Profile)
		r.Get("/symbol", pprof.Symbol)
		r.Post("/symbol", pprof.Symbol)
		r.Get("/trace", pprof.Trace)
		r.Get("/allocs", pprof.Handler("allocs").ServeHTTP)
		r.Get("/block", pprof.Handler("block").ServeHTTP)
		r.Get("/goroutine", pprof.Handler("goroutine").ServeHTTP)
		r.Get("/heap", pprof.Handler("heap").ServeHTTP)
		r.Get("/mutex", pprof.Handler("mutex").ServeHTTP)
		r.Get("/threadcreate", pprof.Handler("threadcreate").ServeHTTP)
	})
	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type siteStatus struct {
	URL    string `json:"url"`
	Name   string `json:"name,omitempty"`
	Format string `json:"format"`
	Seen   int    `json:"seen"`
}

type statusResponse struct {
	Sites     []siteStatus       `json:"sites"`
	LastCycle *model.CycleReport `json:"lastCycle,omitempty"`
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	counts, err := h.status.SeenCounts(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	resp := statusResponse{Sites: []siteStatus{}}
	for _, site := range h.status.Sites() {
		resp.Sites = append(resp.Sites, siteStatus{
			URL:    site.URL,
			Name:   site.Name,
			Format: site.Format,
			Seen:   counts[site.URL],
		})
	}
	if report, ok := h.status.LastReport(); ok {
		resp.LastCycle = &report
	}

	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
