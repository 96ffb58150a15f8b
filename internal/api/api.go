// Package api exposes the read-only cache introspection endpoints:
// listing recorded entries, fetching one entry (request, response headers
// and buffered body; streaming chunks are not included), aggregate
// stats, and the resolved (secret-redacted) configuration. Mounted by
// internal/server under /api.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/inferencegate/inferencegate/internal/config"
	"github.com/inferencegate/inferencegate/internal/router"
	"github.com/inferencegate/inferencegate/internal/store"
)

// API holds the dependencies the introspection handlers read from.
type API struct {
	Store  *store.Store
	Config *config.Config
	Mode   router.Mode
}

// New returns an http.Handler mounting the four introspection routes.
func New(a *API) http.Handler {
	r := chi.NewRouter()
	r.Get("/cache", a.handleCacheList)
	r.Get("/cache/{id}", a.handleCacheInfo)
	r.Get("/stats", a.handleStats)
	r.Get("/config", a.handleConfig)
	return r
}

func (a *API) handleCacheList(w http.ResponseWriter, r *http.Request) {
	summaries, err := a.Store.List()
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "storage_io", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (a *API) handleCacheInfo(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	e, err := a.Store.Get(id)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "storage_io", err.Error())
		return
	}
	if e == nil {
		writeJSONError(w, http.StatusNotFound, "cache_miss", "no entry with id "+id)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (a *API) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.Store.Stats())
}

// configView is the serialized shape of GET /api/config — deliberately
// excludes APIKey, the same redaction discipline config.Config.APIKey's
// koanf:"-" tag already enforces for the file itself.
type configView struct {
	Mode        string `json:"mode"`
	UpstreamURL string `json:"upstream_url,omitempty"`
	Host        string `json:"host"`
	Port        int    `json:"port"`
	CacheDir    string `json:"cache_dir"`
}

func (a *API) handleConfig(w http.ResponseWriter, r *http.Request) {
	view := configView{
		Mode:     a.Mode.String(),
		Host:     a.Config.Host,
		Port:     a.Config.Port,
		CacheDir: a.Config.CacheDir,
	}
	if a.Mode == router.RecordAndReplay {
		view.UpstreamURL = a.Config.Upstream
	}
	writeJSON(w, http.StatusOK, view)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: code, Message: message})
}
