// Package news fetches headlines from a NewsAPI-style search provider with
// paging, URL deduplication, per-page caching, rate limiting, and request
// coalescing.
package news

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rewired-gh/marketmood/internal/cache"
	"github.com/rewired-gh/marketmood/internal/coalesce"
	"github.com/rewired-gh/marketmood/internal/config"
	"github.com/rewired-gh/marketmood/internal/httpx"
	"github.com/rewired-gh/marketmood/internal/logger"
	"github.com/rewired-gh/marketmood/internal/models"
	"github.com/rewired-gh/marketmood/internal/ratelimit"
)

// marketZone approximates the US market's local day as a fixed UTC-5 offset.
// DST shifts the true boundary by an hour twice a year; headline timestamps
// near midnight are rare enough that the fixed offset is acceptable.
var marketZone = time.FixedZone("UTC-5", -5*60*60)

// DayWindow maps a trading day to the half-open UTC interval [from, to) that
// covers its local calendar day.
func DayWindow(day time.Time) (from, to time.Time) {
	y, m, d := day.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, marketZone)
	return start.UTC(), start.Add(24 * time.Hour).UTC()
}

// Fetcher retrieves headlines through the cache → gate → coalesce → HTTP
// pipeline. Safe for concurrent use.
type Fetcher struct {
	http     *httpx.Client
	cache    *cache.Cache[[]models.Headline]
	gate     *ratelimit.Gate
	group    coalesce.Group[[]models.Headline]
	baseURL  string
	apiKey   string
	pageSize int

	recentTTL     time.Duration
	historicalTTL time.Duration

	now func() time.Time
}

// New creates a fetcher with its own page cache, sharing the provider gate
// with other callers of the same upstream.
func New(cfg config.NewsConfig, httpCfg config.HTTPConfig, cacheCapacity int, gate *ratelimit.Gate) *Fetcher {
	pageSize := cfg.PageSize
	if pageSize < 1 || pageSize > 100 {
		pageSize = 100
	}
	return &Fetcher{
		http:          httpx.NewClient(cfg.Timeout, httpCfg.MaxRetries, httpCfg.RetryDelayBase),
		cache:         cache.New[[]models.Headline](cacheCapacity),
		gate:          gate,
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:        cfg.APIKey,
		pageSize:      pageSize,
		recentTTL:     cfg.RecentTTL,
		historicalTTL: cfg.HistoricalTTL,
		now:           time.Now,
	}
}

type searchResponse struct {
	Status       string `json:"status"`
	TotalResults int    `json:"totalResults"`
	Articles     []struct {
		Source struct {
			Name string `json:"name"`
		} `json:"source"`
		Title       string    `json:"title"`
		URL         string    `json:"url"`
		PublishedAt time.Time `json:"publishedAt"`
	} `json:"articles"`
}

// FetchWindow returns up to targetCount deduplicated headlines published in
// [from, to), paging through the provider until a short page, the target
// count, or maxPages. Provider order is preserved; the first occurrence of a
// URL wins.
func (f *Fetcher) FetchWindow(ctx context.Context, query string, from, to time.Time, targetCount, maxPages int) ([]models.Headline, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty query", models.ErrInvalidQuery)
	}
	if maxPages < 1 {
		maxPages = 1
	}
	if targetCount < 1 {
		targetCount = f.pageSize
	}

	seen := make(map[string]struct{})
	var collected []models.Headline

	for page := 1; page <= maxPages; page++ {
		items, err := f.fetchPage(ctx, query, from, to, page)
		if err != nil {
			if page == 1 {
				return nil, err
			}
			// Later pages are best-effort: keep what we have.
			logger.Warn("News page %d for %q failed, returning %d headlines: %v", page, query, len(collected), err)
			break
		}

		for _, h := range items {
			if _, dup := seen[h.URL]; dup {
				continue
			}
			seen[h.URL] = struct{}{}
			collected = append(collected, h)
		}

		if len(items) < f.pageSize || len(collected) >= targetCount {
			break
		}
	}

	if len(collected) > targetCount {
		collected = collected[:targetCount]
	}
	return collected, nil
}

// Recent returns up to limit headlines from a single non-windowed query.
func (f *Fetcher) Recent(ctx context.Context, query string, limit int) ([]models.Headline, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty query", models.ErrInvalidQuery)
	}
	if limit < 1 || limit > f.pageSize {
		limit = f.pageSize
	}

	key := fmt.Sprintf("news-recent|%s|%d", query, limit)
	if hit, ok := f.cache.Get(key); ok {
		return hit, nil
	}

	return f.group.Do(key, func() ([]models.Headline, error) {
		if !f.gate.TryTake() || !f.gate.Allow() {
			return nil, fmt.Errorf("%w: news provider budget exhausted", models.ErrRateLimited)
		}

		params := url.Values{}
		params.Set("q", query)
		params.Set("pageSize", fmt.Sprintf("%d", limit))
		params.Set("sortBy", "publishedAt")

		items, err := f.call(ctx, params)
		if err != nil {
			return nil, err
		}
		// Single request regardless of how full the page came back, but the
		// quota charge mirrors what a windowed fetch of the same volume
		// would have cost.
		pages := (len(items) + f.pageSize - 1) / f.pageSize
		if pages < 1 {
			pages = 1
		}
		f.gate.Record(pages)

		f.cache.Set(key, items, f.recentTTL)
		return items, nil
	})
}

// fetchPage returns one page of the windowed query, served from cache when
// possible. Concurrent identical requests share a single upstream call.
func (f *Fetcher) fetchPage(ctx context.Context, query string, from, to time.Time, page int) ([]models.Headline, error) {
	key := fmt.Sprintf("news|%s|%s|%s|%d", query, from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339), page)
	if hit, ok := f.cache.Get(key); ok {
		return hit, nil
	}

	return f.group.Do(key, func() ([]models.Headline, error) {
		if !f.gate.TryTake() || !f.gate.Allow() {
			return nil, fmt.Errorf("%w: news provider budget exhausted", models.ErrRateLimited)
		}

		params := url.Values{}
		params.Set("q", query)
		params.Set("from", from.UTC().Format(time.RFC3339))
		params.Set("to", to.UTC().Format(time.RFC3339))
		params.Set("page", fmt.Sprintf("%d", page))
		params.Set("pageSize", fmt.Sprintf("%d", f.pageSize))
		params.Set("sortBy", "publishedAt")

		items, err := f.call(ctx, params)
		if err != nil {
			return nil, err
		}
		f.gate.Record(1)

		f.cache.Set(key, items, f.windowTTL(to))
		return items, nil
	})
}

func (f *Fetcher) call(ctx context.Context, params url.Values) ([]models.Headline, error) {
	reqURL := f.baseURL + "/everything?" + params.Encode()
	header := http.Header{}
	if f.apiKey != "" {
		header.Set("Authorization", "Bearer "+f.apiKey)
	}

	var resp searchResponse
	if err := f.http.GetJSON(ctx, reqURL, header, &resp); err != nil {
		return nil, fmt.Errorf("news search failed: %w", err)
	}

	headlines := make([]models.Headline, 0, len(resp.Articles))
	for _, a := range resp.Articles {
		h := models.Headline{
			Title:       a.Title,
			URL:         a.URL,
			Source:      a.Source.Name,
			PublishedAt: a.PublishedAt,
		}
		if err := h.Validate(); err != nil {
			logger.Debug("Dropping malformed headline from provider: %v", err)
			continue
		}
		headlines = append(headlines, h)
	}
	return headlines, nil
}

// windowTTL picks the cache lifetime for a page: fully historical windows are
// stable and cache long; windows still extending past now can gain articles
// and cache short.
func (f *Fetcher) windowTTL(to time.Time) time.Duration {
	if to.After(f.now()) {
		return f.recentTTL
	}
	return f.historicalTTL
}
