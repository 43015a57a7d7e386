// Package prices fetches daily close series from an Alpha Vantage-style
// quote provider and normalizes them into an ascending date axis.
package prices

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
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

// Client retrieves daily price series through the cache → gate → coalesce →
// HTTP pipeline. Safe for concurrent use.
type Client struct {
	http     *httpx.Client
	cache    *cache.Cache[[]models.PricePoint]
	gate     *ratelimit.Gate
	group    coalesce.Group[[]models.PricePoint]
	baseURL  string
	apiKey   string
	cacheTTL time.Duration
}

// New creates a client with its own series cache, sharing the provider gate
// with other callers of the same upstream.
func New(cfg config.PricesConfig, httpCfg config.HTTPConfig, cacheCapacity int, gate *ratelimit.Gate) *Client {
	return &Client{
		http:     httpx.NewClient(cfg.Timeout, httpCfg.MaxRetries, httpCfg.RetryDelayBase),
		cache:    cache.New[[]models.PricePoint](cacheCapacity),
		gate:     gate,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:   cfg.APIKey,
		cacheTTL: cfg.CacheTTL,
	}
}

type dailyResponse struct {
	// The provider signals its own rate limiting through a "Note" (or, on
	// newer tiers, "Information") body on an HTTP 200.
	Note         string                       `json:"Note"`
	Information  string                       `json:"Information"`
	ErrorMessage string                       `json:"Error Message"`
	Series       map[string]map[string]string `json:"Time Series (Daily)"`
}

// Daily returns the last days closing prices for symbol, oldest first. The
// full series is cached per symbol; the tail is sliced per request.
func (c *Client) Daily(ctx context.Context, symbol string, days int) ([]models.PricePoint, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, fmt.Errorf("%w: empty ticker symbol", models.ErrInvalidQuery)
	}

	key := "prices|" + symbol
	if hit, ok := c.cache.Get(key); ok {
		return tail(hit, days), nil
	}

	series, err := c.group.Do(key, func() ([]models.PricePoint, error) {
		if !c.gate.TryTake() || !c.gate.Allow() {
			return nil, fmt.Errorf("%w: price provider budget exhausted", models.ErrRateLimited)
		}

		series, err := c.fetch(ctx, symbol)
		if err != nil {
			return nil, err
		}
		c.gate.Record(1)
		c.cache.Set(key, series, c.cacheTTL)
		return series, nil
	})
	if err != nil {
		return nil, err
	}
	return tail(series, days), nil
}

func (c *Client) fetch(ctx context.Context, symbol string) ([]models.PricePoint, error) {
	params := url.Values{}
	params.Set("function", "TIME_SERIES_DAILY")
	params.Set("symbol", symbol)
	params.Set("apikey", c.apiKey)
	reqURL := c.baseURL + "/query?" + params.Encode()

	var resp dailyResponse
	if err := c.http.GetJSON(ctx, reqURL, nil, &resp); err != nil {
		return nil, fmt.Errorf("price fetch failed: %w", err)
	}

	if resp.Note != "" || resp.Information != "" {
		return nil, fmt.Errorf("%w: price provider throttled the request", models.ErrRateLimited)
	}
	if resp.ErrorMessage != "" {
		return nil, fmt.Errorf("%w: unknown ticker symbol %q", models.ErrInvalidQuery, symbol)
	}
	if len(resp.Series) == 0 {
		return nil, fmt.Errorf("%w: price provider returned no series", models.ErrUpstreamUnavailable)
	}

	series := make([]models.PricePoint, 0, len(resp.Series))
	for date, fields := range resp.Series {
		closePx, err := strconv.ParseFloat(fields["4. close"], 64)
		if err != nil {
			logger.Debug("Skipping %s %s: unparseable close %q", symbol, date, fields["4. close"])
			continue
		}
		p := models.PricePoint{Date: date, Close: closePx}
		if err := p.Validate(); err != nil {
			logger.Debug("Skipping %s %s: %v", symbol, date, err)
			continue
		}
		series = append(series, p)
	}
	if len(series) == 0 {
		return nil, fmt.Errorf("%w: price series had no usable points", models.ErrUpstreamUnavailable)
	}

	// ISO dates sort correctly as strings.
	sort.Slice(series, func(i, j int) bool { return series[i].Date < series[j].Date })
	return series, nil
}

// tail returns the most recent n points, still ascending.
func tail(series []models.PricePoint, n int) []models.PricePoint {
	if n > 0 && len(series) > n {
		return series[len(series)-n:]
	}
	return series
}
