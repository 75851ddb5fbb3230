package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/tripmate/internal/domain"
	"github.com/pkordes/tripmate/internal/handler"
	"github.com/pkordes/tripmate/internal/service"
)

type mockFlights struct {
	lookup func(ctx context.Context, num, date string) (service.FlightStatus, error)
}

func (m *mockFlights) Lookup(ctx context.Context, num, date string) (service.FlightStatus, error) {
	return m.lookup(ctx, num, date)
}

type mockNews struct {
	search func(ctx context.Context, q string, page domain.PageParams) ([]service.NewsItem, error)
}

func (m *mockNews) Search(ctx context.Context, q string, page domain.PageParams) ([]service.NewsItem, error) {
	return m.search(ctx, q, page)
}

type mockConcierge struct {
	ask func(ctx context.Context, q string, c json.RawMessage) (string, error)
}

func (m *mockConcierge) Ask(ctx context.Context, q string, c json.RawMessage) (string, error) {
	return m.ask(ctx, q, c)
}

var (
	_ handler.FlightLooker = (*mockFlights)(nil)
	_ handler.NewsSearcher = (*mockNews)(nil)
	_ handler.Concierge    = (*mockConcierge)(nil)
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// ---- GET /flight -----------------------------------------------------------

func TestGetFlight_StatusMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"malformed number", fmt.Errorf("%w: flight number must be two letters and 2-4 digits", domain.ErrValidation), http.StatusBadRequest},
		{"no data", domain.ErrNotFound, http.StatusNotFound},
		{"plan restricted", fmt.Errorf("%w: live data requires a paid plan", domain.ErrPlanRestricted), http.StatusPaymentRequired},
		{"upstream", fmt.Errorf("%w: aviationstack returned 500", domain.ErrUpstream), http.StatusBadGateway},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			flights := &mockFlights{lookup: func(context.Context, string, string) (service.FlightStatus, error) {
				return service.FlightStatus{}, tc.err
			}}
			h := handler.NewServer(handler.Deps{Flights: flights, Logger: discardLogger()}).Routes(handler.RouteOptions{})

			rec := serve(h, httptest.NewRequest(http.MethodGet, "/flight?num=QR24", nil))

			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestGetFlight_200(t *testing.T) {
	airline := "Qatar Airways"
	flights := &mockFlights{lookup: func(_ context.Context, num, date string) (service.FlightStatus, error) {
		assert.Equal(t, "qr 24", num)
		assert.Equal(t, "2025-09-24", date)
		return service.FlightStatus{Flight: service.FlightInfo{Airline: &airline}, Live: json.RawMessage("null")}, nil
	}}
	h := handler.NewServer(handler.Deps{Flights: flights}).Routes(handler.RouteOptions{})

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/flight?num=qr+24&date=2025-09-24", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Flight struct {
			Airline string `json:"airline"`
		} `json:"flight"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "Qatar Airways", body.Flight.Airline)
}

// ---- GET /news -------------------------------------------------------------

func TestGetNews_200(t *testing.T) {
	news := &mockNews{search: func(_ context.Context, q string, page domain.PageParams) ([]service.NewsItem, error) {
		assert.Equal(t, "Doha", q)
		assert.Equal(t, domain.PageParams{Page: 2, Size: 5}, page)
		return []service.NewsItem{{Title: "Souq Waqif reopens", URL: "https://example.com"}}, nil
	}}
	h := handler.NewServer(handler.Deps{News: news}).Routes(handler.RouteOptions{})

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/news?query=Doha&page=2&pageSize=5", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Items []service.NewsItem `json:"items"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Len(t, body.Items, 1)
	assert.Equal(t, "Souq Waqif reopens", body.Items[0].Title)
}

func TestGetNews_400BadPage(t *testing.T) {
	h := handler.NewServer(handler.Deps{News: &mockNews{}}).Routes(handler.RouteOptions{})

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/news?page=two", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetNews_500NotConfigured(t *testing.T) {
	news := &mockNews{search: func(context.Context, string, domain.PageParams) ([]service.NewsItem, error) {
		return nil, fmt.Errorf("service.NewsService.Search: %w: NEWS_API_KEY is not set", domain.ErrNotConfigured)
	}}
	h := handler.NewServer(handler.Deps{News: news}).Routes(handler.RouteOptions{})

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/news", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "not_configured", errorCode(t, rec))
}

// ---- /ai-concierge ---------------------------------------------------------

func TestPostConcierge_200(t *testing.T) {
	c := &mockConcierge{ask: func(_ context.Context, q string, ctx json.RawMessage) (string, error) {
		assert.Equal(t, "Best beach?", q)
		assert.JSONEq(t, `{"area":"Samui"}`, string(ctx))
		return "Chaweng Noi.", nil
	}}
	h := handler.NewServer(handler.Deps{Concierge: c}).Routes(handler.RouteOptions{})

	req := httptest.NewRequest(http.MethodPost, "/ai-concierge", bytes.NewBufferString(`{"question":"Best beach?","context":{"area":"Samui"}}`))
	rec := serve(h, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"answer":"Chaweng Noi."}`, rec.Body.String())
}

func TestPostConcierge_405(t *testing.T) {
	h := handler.NewServer(handler.Deps{Concierge: &mockConcierge{}}).Routes(handler.RouteOptions{})

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/ai-concierge", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, http.MethodPost, rec.Header().Get("Allow"))
}

func TestPostConcierge_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not configured", domain.ErrNotConfigured, http.StatusInternalServerError},
		{"upstream", domain.ErrUpstream, http.StatusBadGateway},
		{"empty question", fmt.Errorf("%w: question is required", domain.ErrValidation), http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := &mockConcierge{ask: func(context.Context, string, json.RawMessage) (string, error) {
				return "", tc.err
			}}
			h := handler.NewServer(handler.Deps{Concierge: c, Logger: discardLogger()}).Routes(handler.RouteOptions{})

			rec := serve(h, httptest.NewRequest(http.MethodPost, "/ai-concierge", bytes.NewBufferString(`{"question":"x"}`)))

			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestProxyMiddlewareApplied(t *testing.T) {
	var hits int
	count := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits++
			next.ServeHTTP(w, r)
		})
	}
	c := &mockConcierge{ask: func(context.Context, string, json.RawMessage) (string, error) { return "ok", nil }}
	h := handler.NewServer(handler.Deps{Concierge: c}).Routes(handler.RouteOptions{Proxies: []func(http.Handler) http.Handler{count}})

	serve(h, httptest.NewRequest(http.MethodPost, "/ai-concierge", bytes.NewBufferString(`{"question":"x"}`)))
	serve(h, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, 1, hits)
}
