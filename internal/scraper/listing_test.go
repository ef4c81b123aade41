package scraper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jennfreelancing-alt/primcechances-v1-sub000/internal/domain"
)

func TestListingLoaderPlaceholderPagination(t *testing.T) {
	fetcher := mapFetcher{
		"https://example.org/list/1": "<p>one</p>",
		"https://example.org/list/2": "<p>two</p>",
	}
	src := domain.SourceConfig{
		ID:          "paged",
		BaseURL:     "https://example.org",
		ListingPath: "/list/{page}",
		Pagination:  domain.Pagination{Type: domain.PaginationURL, MaxPages: 5},
	}

	pages, err := NewListingLoader(fetcher, nil, time.Second, zap.NewNop()).Load(context.Background(), src, NewPoliteness(0))
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, "https://example.org/list/1", pages[0].URL)
	assert.Equal(t, "<p>two</p>", pages[1].HTML)
}

func TestListingLoaderMaxPages(t *testing.T) {
	fetcher := mapFetcher{
		"https://example.org/list/1": "1",
		"https://example.org/list/2": "2",
		"https://example.org/list/3": "3",
	}
	src := domain.SourceConfig{
		ID:          "paged",
		BaseURL:     "https://example.org",
		ListingPath: "/list/{page}",
		Pagination:  domain.Pagination{Type: domain.PaginationURL, MaxPages: 2},
	}

	pages, err := NewListingLoader(fetcher, nil, time.Second, zap.NewNop()).Load(context.Background(), src, NewPoliteness(0))
	require.NoError(t, err)
	assert.Len(t, pages, 2)
}

func TestListingLoaderNextPageSelector(t *testing.T) {
	fetcher := mapFetcher{
		"https://example.org/jobs":        `<a class="next" href="/jobs?page=2">Next</a>`,
		"https://example.org/jobs?page=2": `<a class="next" href="/jobs">Back to start</a>`,
	}
	src := domain.SourceConfig{
		ID:          "linked",
		BaseURL:     "https://example.org",
		ListingPath: "/jobs",
		Selectors:   domain.Selectors{NextPage: "a.next"},
		Pagination:  domain.Pagination{Type: domain.PaginationURL, MaxPages: 10},
	}

	pages, err := NewListingLoader(fetcher, nil, time.Second, zap.NewNop()).Load(context.Background(), src, NewPoliteness(0))
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, "https://example.org/jobs?page=2", pages[1].URL)
}

func TestListingLoaderFirstPageFailure(t *testing.T) {
	src := domain.SourceConfig{ID: "gone", BaseURL: "https://example.org", ListingPath: "/missing"}

	pages, err := NewListingLoader(mapFetcher{}, nil, time.Second, zap.NewNop()).Load(context.Background(), src, NewPoliteness(0))
	require.Error(t, err)
	assert.Nil(t, pages)

	var fetchErr *FetchError
	assert.True(t, errors.As(err, &fetchErr))
}

type fakeRenderer struct {
	html  string
	err   error
	calls int
}

func (r *fakeRenderer) Render(context.Context, string, domain.Pagination, string) (string, error) {
	r.calls++
	return r.html, r.err
}

func TestListingLoaderRendersScrollSources(t *testing.T) {
	src := domain.SourceConfig{
		ID:          "scrolly",
		BaseURL:     "https://example.org",
		ListingPath: "/feed",
		Pagination:  domain.Pagination{Type: domain.PaginationScroll, MaxPages: 3},
	}
	renderer := &fakeRenderer{html: "<p>rendered</p>"}
	fetcher := mapFetcher{"https://example.org/feed": "<p>static</p>"}

	pages, err := NewListingLoader(fetcher, renderer, time.Second, zap.NewNop()).Load(context.Background(), src, NewPoliteness(0))
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, "<p>rendered</p>", pages[0].HTML)

	renderer.err = errors.New("chrome not found")
	pages, err = NewListingLoader(fetcher, renderer, time.Second, zap.NewNop()).Load(context.Background(), src, NewPoliteness(0))
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, "<p>static</p>", pages[0].HTML)
	assert.Equal(t, 2, renderer.calls)
}

func TestPolitenessSpacesRequests(t *testing.T) {
	p := NewPoliteness(30 * time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, p.Wait(ctx))
	require.NoError(t, p.Wait(ctx))
	require.NoError(t, p.Wait(ctx))
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}
