// Package handler implements the HTTP handlers for the TripMate API.
// All handlers are methods on Server. Methods are split into files by area
// (state.go, subscribe.go, proxy.go, ...) but share the same Server struct
// so they can access its dependencies.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pkordes/tripmate/internal/domain"
	"github.com/pkordes/tripmate/internal/notify"
	"github.com/pkordes/tripmate/internal/service"
)

// StateServicer defines the document operations the state handlers depend on.
// Defining the interface here (in the consumer package) lets handler tests
// inject a mock without touching the database or service layer.
type StateServicer interface {
	Load(ctx context.Context, key string) (domain.Document, error)
	Save(ctx context.Context, key string, state domain.TripState) (domain.Document, error)
	Reset(ctx context.Context, key string) error
}

// Exporter renders one trip document as a downloadable file.
type Exporter interface {
	Export(ctx context.Context, key, format string) (service.ExportFile, error)
}

// FlightLooker resolves a flight number to its normalised status.
type FlightLooker interface {
	Lookup(ctx context.Context, num, date string) (service.FlightStatus, error)
}

// NewsSearcher returns travel news for a query.
type NewsSearcher interface {
	Search(ctx context.Context, query string, page domain.PageParams) ([]service.NewsItem, error)
}

// Concierge answers free-text questions about the trip.
type Concierge interface {
	Ask(ctx context.Context, question string, tripContext json.RawMessage) (string, error)
}

// SessionIssuer mints anonymous session tokens.
type SessionIssuer interface {
	Issue() (token, sessionID string, err error)
}

// Subscriptions is the room registry websocket clients join. *notify.Hub
// satisfies it.
type Subscriptions interface {
	Register(ctx context.Context, c *notify.Client) error
	Unregister(ctx context.Context, c *notify.Client)
}

// Deps groups the Server's collaborators. Nil members disable the routes
// that need them.
type Deps struct {
	State     StateServicer
	Export    Exporter
	Flights   FlightLooker
	News      NewsSearcher
	Concierge Concierge
	Sessions  SessionIssuer
	Hub       Subscriptions
	OpenAPI   []byte
	Logger    *slog.Logger
}

// Server holds every handler dependency.
type Server struct {
	state     StateServicer
	export    Exporter
	flights   FlightLooker
	news      NewsSearcher
	concierge Concierge
	sessions  SessionIssuer
	hub       Subscriptions
	openapi   []byte
	logger    *slog.Logger
}

// NewServer constructs the Server with all its dependencies.
func NewServer(d Deps) *Server {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		state:     d.State,
		export:    d.Export,
		flights:   d.Flights,
		news:      d.News,
		concierge: d.Concierge,
		sessions:  d.Sessions,
		hub:       d.Hub,
		openapi:   d.OpenAPI,
		logger:    logger,
	}
}

// RouteOptions attaches extra middleware to route groups.
type RouteOptions struct {
	// Trips wraps every /v1/trips route (session enforcement).
	Trips []func(http.Handler) http.Handler
	// Proxies wraps /flight, /news and /ai-concierge (rate limiting).
	Proxies []func(http.Handler) http.Handler
}

// Routes returns a chi router with every endpoint registered.
func (s *Server) Routes(opts RouteOptions) chi.Router {
	r := chi.NewRouter()

	r.Get("/healthz", s.GetHealth)
	if s.openapi != nil {
		r.Get("/openapi.yaml", s.GetOpenAPI)
	}
	if s.sessions != nil {
		r.Post("/v1/session", s.CreateSession)
	}

	if s.state != nil {
		r.Route("/v1/trips/{key}", func(r chi.Router) {
			r.Use(opts.Trips...)
			r.Get("/state", s.GetState)
			r.Put("/state", s.PutState)
			r.Delete("/state", s.DeleteState)
			if s.hub != nil {
				r.Get("/state/subscribe", s.SubscribeState)
			}
			if s.export != nil {
				r.Get("/export", s.GetExport)
			}
		})
	}

	r.Group(func(r chi.Router) {
		r.Use(opts.Proxies...)
		if s.flights != nil {
			r.Get("/flight", s.GetFlight)
		}
		if s.news != nil {
			r.Get("/news", s.GetNews)
		}
		if s.concierge != nil {
			r.HandleFunc("/ai-concierge", s.PostConcierge)
		}
	})

	return r
}

// GetHealth handles GET /healthz.
// It returns HTTP 200 with {"status":"ok"} when the server is running.
func (s *Server) GetHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetOpenAPI serves the embedded API description.
func (s *Server) GetOpenAPI(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(s.openapi)
}
