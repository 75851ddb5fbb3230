package service_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/tripmate/internal/domain"
	"github.com/pkordes/tripmate/internal/service"
)

func TestNewsService_Search(t *testing.T) {
	srv := upstream(t, http.StatusOK, `{"status":"ok","articles":[
		{"title":"Samui ferry schedule changes","url":"https://example.com/a","source":{"name":"Bangkok Post"},"publishedAt":"2025-09-10T08:00:00Z"}
	]}`, func(r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, service.DefaultNewsQuery, q.Get("q"))
		assert.Equal(t, "en", q.Get("language"))
		assert.Equal(t, "publishedAt", q.Get("sortBy"))
		assert.Equal(t, "20", q.Get("pageSize"))
		assert.Equal(t, "news-key", r.Header.Get("X-Api-Key"))
	})
	svc := service.NewNewsService("news-key", srv.URL, nil)

	items, err := svc.Search(context.Background(), "  ", domain.NewPageParams(nil, nil))

	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, service.NewsItem{
		Title:       "Samui ferry schedule changes",
		URL:         "https://example.com/a",
		Source:      "Bangkok Post",
		PublishedAt: "2025-09-10T08:00:00Z",
	}, items[0])
}

func TestNewsService_EmptyResultIsNotNil(t *testing.T) {
	srv := upstream(t, http.StatusOK, `{"status":"ok","articles":[]}`, nil)
	svc := service.NewNewsService("k", srv.URL, nil)

	items, err := svc.Search(context.Background(), "Doha", domain.NewPageParams(nil, nil))

	require.NoError(t, err)
	assert.NotNil(t, items)
	assert.Empty(t, items)
}

func TestNewsService_NotConfigured(t *testing.T) {
	svc := service.NewNewsService("", "", nil)

	_, err := svc.Search(context.Background(), "", domain.NewPageParams(nil, nil))

	assert.ErrorIs(t, err, domain.ErrNotConfigured)
}

func TestNewsService_Upstream(t *testing.T) {
	srv := upstream(t, http.StatusUnauthorized, `{"status":"error"}`, nil)
	svc := service.NewNewsService("k", srv.URL, nil)

	_, err := svc.Search(context.Background(), "", domain.NewPageParams(nil, nil))

	assert.ErrorIs(t, err, domain.ErrUpstream)
}

func TestNewPageParams(t *testing.T) {
	page, size, huge := 3, 5, 500

	assert.Equal(t, domain.PageParams{Page: 1, Size: 20}, domain.NewPageParams(nil, nil))
	assert.Equal(t, domain.PageParams{Page: 3, Size: 5}, domain.NewPageParams(&page, &size))
	assert.Equal(t, 100, domain.NewPageParams(nil, &huge).Size)
}
