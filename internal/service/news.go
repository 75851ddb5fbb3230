package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkordes/tripmate/internal/domain"
)

// Defaults for the news search.
const (
	NewsAPIURL       = "https://newsapi.org/v2/everything"
	DefaultNewsQuery = `Qatar OR Doha OR "Koh Samui" OR Thailand`
)

// NewsItem is one headline.
type NewsItem struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Source      string `json:"source"`
	PublishedAt string `json:"publishedAt"`
}

// NewsService searches recent English-language headlines through NewsAPI.
type NewsService struct {
	key     string
	baseURL string
	client  *http.Client
}

// NewNewsService returns a NewsService. An empty key makes Search return
// domain.ErrNotConfigured. An empty baseURL means NewsAPIURL.
func NewNewsService(key, baseURL string, client *http.Client) *NewsService {
	if baseURL == "" {
		baseURL = NewsAPIURL
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &NewsService{key: key, baseURL: baseURL, client: client}
}

// Search returns the newest headlines matching query, or DefaultNewsQuery
// when query is blank. The result is never nil.
func (s *NewsService) Search(ctx context.Context, query string, page domain.PageParams) ([]NewsItem, error) {
	if s.key == "" {
		return nil, fmt.Errorf("service.NewsService.Search: %w: NEWS_API_KEY missing", domain.ErrNotConfigured)
	}
	query = strings.TrimSpace(query)
	if query == "" {
		query = DefaultNewsQuery
	}

	q := url.Values{}
	q.Set("q", query)
	q.Set("language", "en")
	q.Set("sortBy", "publishedAt")
	q.Set("pageSize", strconv.Itoa(page.Size))
	q.Set("page", strconv.Itoa(page.Page))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("service.NewsService.Search: %w", err)
	}
	req.Header.Set("X-Api-Key", s.key)

	status, raw, err := doRequest(s.client, req)
	if err != nil {
		return nil, fmt.Errorf("service.NewsService.Search: %w", err)
	}
	if status/100 != 2 {
		return nil, fmt.Errorf("service.NewsService.Search: %w: status %d: %s", domain.ErrUpstream, status, truncate(raw))
	}

	var body struct {
		Articles []struct {
			Title  string `json:"title"`
			URL    string `json:"url"`
			Source struct {
				Name string `json:"name"`
			} `json:"source"`
			PublishedAt string `json:"publishedAt"`
		} `json:"articles"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("service.NewsService.Search: %w: undecodable body", domain.ErrUpstream)
	}

	items := make([]NewsItem, 0, len(body.Articles))
	for _, a := range body.Articles {
		items = append(items, NewsItem{
			Title:       a.Title,
			URL:         a.URL,
			Source:      a.Source.Name,
			PublishedAt: a.PublishedAt,
		})
	}
	return items, nil
}
