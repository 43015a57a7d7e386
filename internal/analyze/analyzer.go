// Package analyze orchestrates the headline, price, and sentiment providers
// into a single day-aligned market mood report. Partial upstream failure
// degrades the report instead of failing it; the only fatal conditions are
// an invalid request and a headline fetch that yields nothing at all.
package analyze

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rewired-gh/marketmood/internal/config"
	"github.com/rewired-gh/marketmood/internal/logger"
	"github.com/rewired-gh/marketmood/internal/models"
	"github.com/rewired-gh/marketmood/internal/news"
)

// NewsSource is the headline provider surface the orchestrator needs.
type NewsSource interface {
	FetchWindow(ctx context.Context, query string, from, to time.Time, targetCount, maxPages int) ([]models.Headline, error)
	Recent(ctx context.Context, query string, limit int) ([]models.Headline, error)
}

// PriceSource is the quote provider surface the orchestrator needs.
type PriceSource interface {
	Daily(ctx context.Context, symbol string, days int) ([]models.PricePoint, error)
}

// TextClassifier is the sentiment provider surface the orchestrator needs.
type TextClassifier interface {
	ClassifyAll(ctx context.Context, texts []string) []models.SentimentResult
}

// Request describes one analysis run. Ticker is optional: without it there is
// no price axis and the report covers recent headlines only.
type Request struct {
	Query     string
	Ticker    string
	RangeDays int
}

// Analyzer composes the three providers into reports.
type Analyzer struct {
	news       NewsSource
	prices     PriceSource
	classifier TextClassifier
	cfg        config.AnalysisConfig

	newsMaxPages int

	now   func() time.Time
	newID func() string
}

// New creates an analyzer. newsMaxPages caps pagination within a single day
// window.
func New(n NewsSource, p PriceSource, c TextClassifier, cfg config.AnalysisConfig, newsMaxPages int) *Analyzer {
	if newsMaxPages < 1 {
		newsMaxPages = 1
	}
	return &Analyzer{
		news:         n,
		prices:       p,
		classifier:   c,
		cfg:          cfg,
		newsMaxPages: newsMaxPages,
		now:          time.Now,
		newID:        uuid.NewString,
	}
}

// Run produces a report for req. The returned error is ErrInvalidQuery for a
// bad request; upstream trouble surfaces as an error only when it leaves the
// report with no headlines at all.
func (a *Analyzer) Run(ctx context.Context, req Request) (*models.Report, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, fmt.Errorf("%w: query must not be empty", models.ErrInvalidQuery)
	}
	ticker := strings.TrimSpace(req.Ticker)

	rangeDays := req.RangeDays
	if rangeDays <= 0 {
		rangeDays = a.cfg.RangeDays
	}
	if rangeDays > 30 {
		return nil, fmt.Errorf("%w: range must not exceed 30 days", models.ErrInvalidQuery)
	}

	axis, err := a.resolveDateAxis(ctx, ticker, rangeDays)
	if err != nil {
		return nil, err
	}

	var (
		headlines []models.Headline
		dayOf     []int
		daily     []models.DaySentiment
	)
	if len(axis) > 0 {
		headlines, dayOf, daily, err = a.fetchPerDay(ctx, query, axis)
	} else {
		headlines, err = a.news.Recent(ctx, query, a.cfg.MaxHeadlines)
	}
	if err != nil {
		return nil, err
	}

	texts := make([]string, len(headlines))
	for i, h := range headlines {
		texts[i] = h.Title
	}
	results := a.classifier.ClassifyAll(ctx, texts)

	articles := make([]models.Article, len(headlines))
	for i, h := range headlines {
		articles[i] = models.Article{Headline: h}
		if cls, ok := results[i].Classification(); ok {
			c := cls
			articles[i].Sentiment = &c
		} else {
			articles[i].Error = results[i].Failure()
		}
	}

	fillDaily(daily, dayOf, results)

	topPos, topNeg := topLists(articles, a.cfg.TopN)

	report := &models.Report{
		ID:          a.newID(),
		Query:       query,
		Count:       len(articles),
		Articles:    articles,
		Summary:     summarize(results),
		TopPositive: topPos,
		TopNegative: topNeg,
		Prices:      axis,
		Daily:       daily,
		Rolling:     rolling(daily, a.cfg.RollingWindow),
		GeneratedAt: a.now().UTC(),
	}
	return report, nil
}

// resolveDateAxis fetches the price series when a ticker is given. An unknown
// symbol is the caller's mistake and fails the run; any other price trouble
// degrades to a report without a date axis.
func (a *Analyzer) resolveDateAxis(ctx context.Context, ticker string, rangeDays int) ([]models.PricePoint, error) {
	if ticker == "" {
		return nil, nil
	}
	axis, err := a.prices.Daily(ctx, ticker, rangeDays)
	if err != nil {
		if errors.Is(err, models.ErrInvalidQuery) {
			return nil, err
		}
		logger.Warn("Price axis for %s unavailable, degrading to recent mode: %v", ticker, err)
		return nil, nil
	}
	return axis, nil
}

// fetchPerDay walks the date axis oldest first under the global call budget.
// Days past the budget, and days whose fetch fails, contribute zero articles
// but still appear in the daily series.
func (a *Analyzer) fetchPerDay(ctx context.Context, query string, axis []models.PricePoint) ([]models.Headline, []int, []models.DaySentiment, error) {
	var (
		headlines []models.Headline
		dayOf     []int
		lastErr   error
	)
	daily := make([]models.DaySentiment, len(axis))
	remaining := a.cfg.CallBudget
	stopped := false

	for i, p := range axis {
		daily[i] = models.DaySentiment{Date: p.Date}
		if stopped || remaining <= 0 {
			continue
		}

		day, err := time.Parse(time.DateOnly, p.Date)
		if err != nil {
			lastErr = fmt.Errorf("bad axis date %q: %w", p.Date, err)
			continue
		}
		from, to := news.DayWindow(day)

		maxPages := a.newsMaxPages
		if maxPages > remaining {
			maxPages = remaining
		}
		items, err := a.news.FetchWindow(ctx, query, from, to, a.cfg.MaxHeadlines, maxPages)
		if err != nil {
			lastErr = err
			if errors.Is(err, models.ErrRateLimited) {
				// Further days would hit the same wall.
				logger.Warn("News budget hit at %s, remaining days get no articles", p.Date)
				stopped = true
			}
			continue
		}
		remaining -= chargedPages(len(items), a.cfg.MaxHeadlines, maxPages)

		daily[i].ArticleCount = len(items)
		for range items {
			dayOf = append(dayOf, i)
		}
		headlines = append(headlines, items...)
	}

	if len(headlines) == 0 && lastErr != nil {
		return nil, nil, nil, lastErr
	}
	return headlines, dayOf, daily, nil
}

// chargedPages estimates how many provider calls a day's fetch consumed. A
// fetch that filled its target may have used every allowed page; an
// under-filled one stopped at its first short page.
func chargedPages(got, target, maxPages int) int {
	if got >= target {
		return maxPages
	}
	return 1
}

// fillDaily writes each day's mean signed score using the flattened results
// and the day side-index. Days with no classified items stay at zero.
func fillDaily(daily []models.DaySentiment, dayOf []int, results []models.SentimentResult) {
	if len(daily) == 0 {
		return
	}
	sums := make([]float64, len(daily))
	counts := make([]int, len(daily))
	for i, day := range dayOf {
		if _, ok := results[i].Classification(); !ok {
			continue
		}
		sums[day] += results[i].SignedScore()
		counts[day]++
	}
	for i := range daily {
		if counts[i] > 0 {
			daily[i].Value = sums[i] / float64(counts[i])
		}
	}
}

// rolling computes the trailing mean of the daily values over up to window
// days ending at each date.
func rolling(daily []models.DaySentiment, window int) []models.RollingDaySentiment {
	if len(daily) == 0 {
		return nil
	}
	if window < 1 {
		window = 1
	}
	out := make([]models.RollingDaySentiment, len(daily))
	for i := range daily {
		start := i - window + 1
		if start < 0 {
			start = 0
		}
		var sum float64
		for j := start; j <= i; j++ {
			sum += daily[j].Value
		}
		out[i] = models.RollingDaySentiment{
			Date:  daily[i].Date,
			Value: sum / float64(i-start+1),
		}
	}
	return out
}

// summarize aggregates the classified results only. Percentages are over the
// classified total; the score is the mean signed score clamped to [-1, 1].
func summarize(results []models.SentimentResult) models.Summary {
	var s models.Summary
	var sum float64
	classified := 0
	for _, r := range results {
		cls, ok := r.Classification()
		if !ok {
			continue
		}
		classified++
		sum += r.SignedScore()
		switch cls.Label {
		case models.LabelPositive:
			s.Positive++
		case models.LabelNegative:
			s.Negative++
		default:
			s.Neutral++
		}
	}
	if classified == 0 {
		return s
	}
	total := float64(classified)
	s.PositivePct = float64(s.Positive) / total * 100
	s.NeutralPct = float64(s.Neutral) / total * 100
	s.NegativePct = float64(s.Negative) / total * 100
	score := sum / total
	if score > 1 {
		score = 1
	}
	if score < -1 {
		score = -1
	}
	s.Score = score
	return s
}

// topLists picks the strongest classified articles per sign, ranked by
// confidence with input order as the tiebreak.
func topLists(articles []models.Article, n int) (pos, neg []models.Article) {
	for _, a := range articles {
		if a.Sentiment == nil {
			continue
		}
		switch a.Sentiment.Label {
		case models.LabelPositive:
			pos = append(pos, a)
		case models.LabelNegative:
			neg = append(neg, a)
		}
	}
	sort.SliceStable(pos, func(i, j int) bool { return pos[i].Sentiment.Score > pos[j].Sentiment.Score })
	sort.SliceStable(neg, func(i, j int) bool { return neg[i].Sentiment.Score > neg[j].Sentiment.Score })
	if n > 0 && len(pos) > n {
		pos = pos[:n]
	}
	if n > 0 && len(neg) > n {
		neg = neg[:n]
	}
	return pos, neg
}
