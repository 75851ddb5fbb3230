package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pkordes/tripmate/internal/domain"
)

// GetState handles GET /v1/trips/{key}/state.
// Returns 404 when no device has saved the trip yet.
func (s *Server) GetState(w http.ResponseWriter, r *http.Request) {
	doc, err := s.state.Load(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// PutState handles PUT /v1/trips/{key}/state.
// The body is a complete TripState; it replaces whatever is stored.
func (s *Server) PutState(w http.ResponseWriter, r *http.Request) {
	var state domain.TripState
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&state); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "request body must be a trip state document")
		return
	}

	doc, err := s.state.Save(r.Context(), chi.URLParam(r, "key"), state)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// DeleteState handles DELETE /v1/trips/{key}/state.
func (s *Server) DeleteState(w http.ResponseWriter, r *http.Request) {
	if err := s.state.Reset(r.Context(), chi.URLParam(r, "key")); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetExport handles GET /v1/trips/{key}/export?format=json|csv|pdf.
func (s *Server) GetExport(w http.ResponseWriter, r *http.Request) {
	f, err := s.export.Export(r.Context(), chi.URLParam(r, "key"), r.URL.Query().Get("format"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", f.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+f.Filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(f.Body)
}

type sessionResponse struct {
	Token     string `json:"token"`
	SessionID string `json:"sessionId"`
}

// CreateSession handles POST /v1/session. Sessions are anonymous; the token
// only proves a device obtained it from this server.
func (s *Server) CreateSession(w http.ResponseWriter, r *http.Request) {
	token, id, err := s.sessions.Issue()
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse{Token: token, SessionID: id})
}
