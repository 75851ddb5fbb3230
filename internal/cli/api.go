package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkordes/tripmate/internal/domain"
	"github.com/pkordes/tripmate/internal/remote"
	"github.com/pkordes/tripmate/internal/service"
)

// APIClient calls the server's collaborator proxies.
type APIClient struct {
	base   string
	tokens remote.TokenSource
	http   *http.Client
}

func NewAPIClient(baseURL string, tokens remote.TokenSource, client *http.Client) *APIClient {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &APIClient{base: strings.TrimRight(baseURL, "/"), tokens: tokens, http: client}
}

// Flight looks up a flight's status on date (YYYY-MM-DD, optional).
func (a *APIClient) Flight(ctx context.Context, num, date string) (service.FlightStatus, error) {
	q := url.Values{}
	q.Set("num", num)
	if date != "" {
		q.Set("date", date)
	}
	var out service.FlightStatus
	err := a.do(ctx, http.MethodGet, "/flight?"+q.Encode(), nil, &out)
	return out, err
}

// News searches headlines. An empty query uses the server's default.
func (a *APIClient) News(ctx context.Context, query string, page domain.PageParams) ([]service.NewsItem, error) {
	q := url.Values{}
	if query != "" {
		q.Set("query", query)
	}
	q.Set("page", strconv.Itoa(page.Page))
	q.Set("pageSize", strconv.Itoa(page.Size))
	var out struct {
		Items []service.NewsItem `json:"items"`
	}
	err := a.do(ctx, http.MethodGet, "/news?"+q.Encode(), nil, &out)
	return out.Items, err
}

// Ask sends a question with a trip snapshot to the concierge.
func (a *APIClient) Ask(ctx context.Context, question string, tripContext any) (string, error) {
	body, err := json.Marshal(map[string]any{"question": question, "context": tripContext})
	if err != nil {
		return "", fmt.Errorf("cli.APIClient.Ask: %w", err)
	}
	var out struct {
		Answer string `json:"answer"`
	}
	err = a.do(ctx, http.MethodPost, "/ai-concierge", body, &out)
	return out.Answer, err
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (a *APIClient) do(ctx context.Context, method, path string, body []byte, out any) error {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, a.base+path, rd)
	if err != nil {
		return fmt.Errorf("cli.APIClient: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if a.tokens != nil {
		if tok, err := a.tokens.Token(ctx); err == nil && tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("cli.APIClient: %w: %v", remote.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusErr(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("cli.APIClient: decode: %w", err)
	}
	return nil
}

// statusErr maps an error response back onto the domain sentinels.
func statusErr(resp *http.Response) error {
	var e errorBody
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&e)
	msg := e.Error.Message
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}

	var sentinel error
	switch resp.StatusCode {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		sentinel = domain.ErrValidation
	case http.StatusNotFound:
		sentinel = domain.ErrNotFound
	case http.StatusPaymentRequired:
		sentinel = domain.ErrPlanRestricted
	case http.StatusBadGateway:
		sentinel = domain.ErrUpstream
	default:
		if e.Error.Code == "not_configured" {
			sentinel = domain.ErrNotConfigured
		} else {
			sentinel = remote.ErrBackend
		}
	}
	return fmt.Errorf("%w: %s", sentinel, msg)
}
