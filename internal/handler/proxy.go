package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/pkordes/tripmate/internal/domain"
	"github.com/pkordes/tripmate/internal/service"
)

// GetFlight handles GET /flight?num=&date=.
// Malformed input is a 400 here rather than the usual 422.
func (s *Server) GetFlight(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	status, err := s.flights.Lookup(r.Context(), q.Get("num"), q.Get("date"))
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			writeError(w, http.StatusBadRequest, "bad_request", unwrapMessage(err))
			return
		}
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

type newsResponse struct {
	Items []service.NewsItem `json:"items"`
}

// GetNews handles GET /news?query=&page=&pageSize=.
func (s *Server) GetNews(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := optionalInt(q.Get("page"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "page must be an integer")
		return
	}
	size, err := optionalInt(q.Get("pageSize"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "pageSize must be an integer")
		return
	}

	items, err := s.news.Search(r.Context(), q.Get("query"), domain.NewPageParams(page, size))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newsResponse{Items: items})
}

type conciergeRequest struct {
	Question string          `json:"question"`
	Context  json.RawMessage `json:"context"`
}

type conciergeResponse struct {
	Answer string `json:"answer"`
}

// PostConcierge handles POST /ai-concierge. Any other method gets a 405
// with the JSON error envelope.
func (s *Server) PostConcierge(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use POST")
		return
	}

	var req conciergeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "request body must be {question, context}")
		return
	}

	answer, err := s.concierge.Ask(r.Context(), req.Question, req.Context)
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			writeError(w, http.StatusBadRequest, "bad_request", unwrapMessage(err))
			return
		}
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, conciergeResponse{Answer: answer})
}

func optionalInt(s string) (*int, error) {
	if s == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil, err
	}
	return &n, nil
}
