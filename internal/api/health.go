package api

import (
	"encoding/json"
	"net/http"
)

type healthResponse struct {
	Status  string `json:"status"`
	Details any    `json:"details"`
}

// handleHealthLive always succeeds while the process is up (spec.md §6).
func (s *Server) handleHealthLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Details: nil})
}

// handleHealthReady reports warming_up and DB availability (spec.md §6).
func (s *Server) handleHealthReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.AppState.WarmingUp() {
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "warming_up", Details: nil})
		return
	}

	dbStatus := "unavailable"
	if s.deps.DB != nil {
		if err := s.deps.DB.HealthCheck(r.Context()); err == nil {
			dbStatus = "available"
		}
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Status:  "ready",
		Details: map[string]string{"db": dbStatus},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
