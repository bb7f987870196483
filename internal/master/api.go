package master

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/charmbracelet/log"

	"flotilla/internal/storage"
)

// API exposes the routing decisions to the data plane as an internal JSON
// endpoint pair.
type API struct {
	master *Master
}

func NewAPI(m *Master) *API {
	return &API{master: m}
}

func (api *API) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /project", api.handleProject)
	mux.HandleFunc("POST /proxy", api.handleProxy)
	return mux
}

type projectRequest struct {
	Token    string      `json:"token"`
	Mode     ConnectMode `json:"mode"`
	Hostname string      `json:"hostname"`
}

func (api *API) handleProject(w http.ResponseWriter, r *http.Request) {
	var req projectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	decision, err := api.master.GetProjectToConnect(r.Context(), req.Token, req.Mode, req.Hostname)
	if storage.IsNotFound(err) {
		// An unknown token is an authentication failure, not a lookup miss.
		http.Error(w, "invalid token", http.StatusForbidden)
		return
	}
	if err != nil {
		log.Error("master: project lookup failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, decision)
}

type proxyRequest struct {
	ProjectID string  `json:"projectId"`
	Proxyname *string `json:"proxyname"`
}

func (api *API) handleProxy(w http.ResponseWriter, r *http.Request) {
	var req proxyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	proxy, err := api.master.GetNextProxyToConnect(r.Context(), req.ProjectID, req.Proxyname)
	if errors.Is(err, storage.ErrNoProjectProxy) {
		http.Error(w, "no proxy available", http.StatusServiceUnavailable)
		return
	}
	if storage.IsNotFound(err) {
		http.Error(w, "unknown project", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Error("master: proxy lookup failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, proxy)
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error("master: cannot encode response", "error", err)
	}
}
