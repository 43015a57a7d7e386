package analyze

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/rewired-gh/marketmood/internal/config"
	"github.com/rewired-gh/marketmood/internal/models"
)

// fakeNews serves canned headlines keyed by the window's start date.
type fakeNews struct {
	perDay      map[string][]models.Headline
	recent      []models.Headline
	recentErr   error
	windowErr   error
	errFromCall int
	windowCalls int
}

func (f *fakeNews) FetchWindow(ctx context.Context, query string, from, to time.Time, targetCount, maxPages int) ([]models.Headline, error) {
	f.windowCalls++
	if f.windowErr != nil && (f.errFromCall == 0 || f.windowCalls >= f.errFromCall) {
		return nil, f.windowErr
	}
	items := f.perDay[from.UTC().Format(time.DateOnly)]
	if len(items) > targetCount {
		items = items[:targetCount]
	}
	return items, nil
}

func (f *fakeNews) Recent(ctx context.Context, query string, limit int) ([]models.Headline, error) {
	if f.recentErr != nil {
		return nil, f.recentErr
	}
	return f.recent, nil
}

type fakePrices struct {
	series []models.PricePoint
	err    error
}

func (f *fakePrices) Daily(ctx context.Context, symbol string, days int) ([]models.PricePoint, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.series, nil
}

// fakeClassifier classifies by headline text lookup; unknown texts fail.
type fakeClassifier struct {
	byText map[string]models.SentimentResult
}

func (f *fakeClassifier) ClassifyAll(ctx context.Context, texts []string) []models.SentimentResult {
	out := make([]models.SentimentResult, len(texts))
	for i, text := range texts {
		r, ok := f.byText[text]
		if !ok {
			r = models.Failed("no canned result")
		}
		out[i] = r
	}
	return out
}

func testAnalysisConfig() config.AnalysisConfig {
	return config.AnalysisConfig{
		CallBudget:    25,
		RollingWindow: 3,
		TopN:          5,
		MaxHeadlines:  50,
		RangeDays:     7,
	}
}

func h(title string) models.Headline {
	return models.Headline{
		Title:       title,
		URL:         "https://x/" + title,
		Source:      "wire",
		PublishedAt: time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC),
	}
}

func newTestAnalyzer(n NewsSource, p PriceSource, c TextClassifier, cfg config.AnalysisConfig) *Analyzer {
	a := New(n, p, c, cfg, 3)
	a.now = func() time.Time { return time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC) }
	a.newID = func() string { return "report-1" }
	return a
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestRun_SummaryFromMixedPair(t *testing.T) {
	// One positive at 0.9 and one negative at 0.7:
	// counts {1, 0, 1}, pcts {50, 0, 50}, score (0.9 - 0.7) / 2 = 0.1.
	nw := &fakeNews{recent: []models.Headline{h("up"), h("down")}}
	cl := &fakeClassifier{byText: map[string]models.SentimentResult{
		"up":   models.Classified(models.LabelPositive, 0.9),
		"down": models.Classified(models.LabelNegative, 0.7),
	}}
	a := newTestAnalyzer(nw, &fakePrices{}, cl, testAnalysisConfig())

	report, err := a.Run(context.Background(), Request{Query: "acme"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	s := report.Summary
	if s.Positive != 1 || s.Neutral != 0 || s.Negative != 1 {
		t.Errorf("counts = {%d,%d,%d}, want {1,0,1}", s.Positive, s.Neutral, s.Negative)
	}
	if !almostEqual(s.PositivePct, 50) || !almostEqual(s.NegativePct, 50) || !almostEqual(s.NeutralPct, 0) {
		t.Errorf("pcts = {%v,%v,%v}, want {50,0,50}", s.PositivePct, s.NeutralPct, s.NegativePct)
	}
	if !almostEqual(s.Score, 0.1) {
		t.Errorf("score = %v, want 0.1", s.Score)
	}
	if report.ID != "report-1" || report.Count != 2 {
		t.Errorf("report meta = (%s, %d), want (report-1, 2)", report.ID, report.Count)
	}
}

func TestRun_FailedItemsExcludedFromSummaryButCounted(t *testing.T) {
	nw := &fakeNews{recent: []models.Headline{h("up"), h("mystery")}}
	cl := &fakeClassifier{byText: map[string]models.SentimentResult{
		"up": models.Classified(models.LabelPositive, 0.8),
	}}
	a := newTestAnalyzer(nw, &fakePrices{}, cl, testAnalysisConfig())

	report, err := a.Run(context.Background(), Request{Query: "acme"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if report.Count != 2 {
		t.Errorf("Count = %d, want 2 (failures still count as attempts)", report.Count)
	}
	if report.Summary.Positive != 1 || report.Summary.Negative != 0 || report.Summary.Neutral != 0 {
		t.Errorf("summary counts include a failed item: %+v", report.Summary)
	}
	if !almostEqual(report.Summary.PositivePct, 100) {
		t.Errorf("PositivePct = %v, want 100 (over classified only)", report.Summary.PositivePct)
	}

	var failed *models.Article
	for i := range report.Articles {
		if report.Articles[i].Title == "mystery" {
			failed = &report.Articles[i]
		}
	}
	if failed == nil || failed.Sentiment != nil || failed.Error == "" {
		t.Errorf("failed article should carry an error marker, got %+v", failed)
	}
}

func TestRun_PerDayAggregation(t *testing.T) {
	axis := []models.PricePoint{
		{Date: "2026-03-02", Close: 100},
		{Date: "2026-03-03", Close: 101},
	}
	nw := &fakeNews{perDay: map[string][]models.Headline{
		"2026-03-02": {h("up"), h("down")},
		"2026-03-03": {h("mystery")},
	}}
	cl := &fakeClassifier{byText: map[string]models.SentimentResult{
		"up":   models.Classified(models.LabelPositive, 0.9),
		"down": models.Classified(models.LabelNegative, 0.7),
	}}
	a := newTestAnalyzer(nw, &fakePrices{series: axis}, cl, testAnalysisConfig())

	report, err := a.Run(context.Background(), Request{Query: "acme", Ticker: "ACME", RangeDays: 2})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(report.Daily) != 2 {
		t.Fatalf("daily length = %d, want 2", len(report.Daily))
	}
	d0 := report.Daily[0]
	if d0.Date != "2026-03-02" || !almostEqual(d0.Value, 0.1) || d0.ArticleCount != 2 {
		t.Errorf("daily[0] = %+v, want {2026-03-02, 0.1, 2}", d0)
	}
	// Day with only a failed classification: value 0, attempt still counted.
	d1 := report.Daily[1]
	if d1.Date != "2026-03-03" || !almostEqual(d1.Value, 0) || d1.ArticleCount != 1 {
		t.Errorf("daily[1] = %+v, want {2026-03-03, 0, 1}", d1)
	}
	if len(report.Prices) != 2 {
		t.Errorf("prices length = %d, want the full axis", len(report.Prices))
	}
}

func TestRun_CallBudgetStarvesLaterDays(t *testing.T) {
	axis := make([]models.PricePoint, 5)
	perDay := map[string][]models.Headline{}
	byText := map[string]models.SentimentResult{}
	for i := range axis {
		date := fmt.Sprintf("2026-03-%02d", 2+i)
		axis[i] = models.PricePoint{Date: date, Close: 100}
		title := "story " + date
		perDay[date] = []models.Headline{h(title), h(title + " b")}
		byText[title] = models.Classified(models.LabelPositive, 0.5)
		byText[title+" b"] = models.Classified(models.LabelPositive, 0.5)
	}

	cfg := testAnalysisConfig()
	cfg.CallBudget = 2
	cfg.MaxHeadlines = 2

	nw := &fakeNews{perDay: perDay}
	a := New(nw, &fakePrices{series: axis}, &fakeClassifier{byText: byText}, cfg, 1)
	a.newID = func() string { return "r" }

	report, err := a.Run(context.Background(), Request{Query: "acme", Ticker: "ACME", RangeDays: 5})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if nw.windowCalls != 2 {
		t.Errorf("window fetches = %d, want 2 (budget of 2 single-page days)", nw.windowCalls)
	}
	for i, d := range report.Daily {
		want := 2
		if i >= 2 {
			want = 0
		}
		if d.ArticleCount != want {
			t.Errorf("daily[%d].ArticleCount = %d, want %d", i, d.ArticleCount, want)
		}
	}
	if len(report.Daily) != 5 || len(report.Rolling) != 5 {
		t.Errorf("series lengths = (%d, %d), want starved days kept on the axis", len(report.Daily), len(report.Rolling))
	}
}

func TestRolling_TrailingMean(t *testing.T) {
	daily := []models.DaySentiment{
		{Date: "2026-03-02", Value: 0.3},
		{Date: "2026-03-03", Value: 0.6},
		{Date: "2026-03-04", Value: 0.9},
		{Date: "2026-03-05", Value: 0.0},
	}
	got := rolling(daily, 3)

	// First point averages itself only; the fourth drops the first day.
	want := []float64{0.3, 0.45, 0.6, 0.5}
	for i := range want {
		if got[i].Date != daily[i].Date {
			t.Errorf("rolling[%d].Date = %s, want %s", i, got[i].Date, daily[i].Date)
		}
		if !almostEqual(got[i].Value, want[i]) {
			t.Errorf("rolling[%d].Value = %v, want %v", i, got[i].Value, want[i])
		}
	}
}

func TestRun_PriceFailureDegradesToRecentMode(t *testing.T) {
	nw := &fakeNews{recent: []models.Headline{h("up")}}
	cl := &fakeClassifier{byText: map[string]models.SentimentResult{
		"up": models.Classified(models.LabelPositive, 0.8),
	}}
	pr := &fakePrices{err: fmt.Errorf("boom: %w", models.ErrUpstreamUnavailable)}
	a := newTestAnalyzer(nw, pr, cl, testAnalysisConfig())

	report, err := a.Run(context.Background(), Request{Query: "acme", Ticker: "ACME"})
	if err != nil {
		t.Fatalf("degraded report expected, got error: %v", err)
	}
	if len(report.Prices) != 0 || len(report.Daily) != 0 || len(report.Rolling) != 0 {
		t.Errorf("degraded report should have no date axis, got %d/%d/%d", len(report.Prices), len(report.Daily), len(report.Rolling))
	}
	if report.Count != 1 {
		t.Errorf("Count = %d, want the recent headlines", report.Count)
	}
}

func TestRun_UnknownTickerFails(t *testing.T) {
	pr := &fakePrices{err: fmt.Errorf("bad symbol: %w", models.ErrInvalidQuery)}
	a := newTestAnalyzer(&fakeNews{}, pr, &fakeClassifier{}, testAnalysisConfig())

	if _, err := a.Run(context.Background(), Request{Query: "acme", Ticker: "NOPE"}); !errors.Is(err, models.ErrInvalidQuery) {
		t.Errorf("err = %v, want ErrInvalidQuery", err)
	}
}

func TestRun_RequestValidation(t *testing.T) {
	a := newTestAnalyzer(&fakeNews{}, &fakePrices{}, &fakeClassifier{}, testAnalysisConfig())

	tests := []struct {
		name string
		req  Request
	}{
		{"empty query", Request{Query: "   "}},
		{"range too large", Request{Query: "acme", RangeDays: 31}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := a.Run(context.Background(), tt.req); !errors.Is(err, models.ErrInvalidQuery) {
				t.Errorf("err = %v, want ErrInvalidQuery", err)
			}
		})
	}
}

func TestRun_AllDaysRateLimitedFails(t *testing.T) {
	axis := []models.PricePoint{{Date: "2026-03-02", Close: 100}}
	nw := &fakeNews{windowErr: fmt.Errorf("budget: %w", models.ErrRateLimited)}
	a := newTestAnalyzer(nw, &fakePrices{series: axis}, &fakeClassifier{}, testAnalysisConfig())

	_, err := a.Run(context.Background(), Request{Query: "acme", Ticker: "ACME"})
	if !errors.Is(err, models.ErrRateLimited) {
		t.Errorf("err = %v, want ErrRateLimited when no headlines at all", err)
	}
}

func TestRun_MidAxisRateLimitDegrades(t *testing.T) {
	axis := []models.PricePoint{
		{Date: "2026-03-02", Close: 100},
		{Date: "2026-03-03", Close: 101},
		{Date: "2026-03-04", Close: 102},
	}
	nw := &fakeNews{
		perDay: map[string][]models.Headline{
			"2026-03-02": {h("up")},
		},
		windowErr:   fmt.Errorf("budget: %w", models.ErrRateLimited),
		errFromCall: 2,
	}
	cl := &fakeClassifier{byText: map[string]models.SentimentResult{
		"up": models.Classified(models.LabelPositive, 0.8),
	}}
	a := newTestAnalyzer(nw, &fakePrices{series: axis}, cl, testAnalysisConfig())

	report, err := a.Run(context.Background(), Request{Query: "acme", Ticker: "ACME"})
	if err != nil {
		t.Fatalf("degraded report expected, got error: %v", err)
	}
	if nw.windowCalls != 2 {
		t.Errorf("window fetches = %d, want 2 (stop after the rate limit hit)", nw.windowCalls)
	}
	if report.Daily[0].ArticleCount != 1 || report.Daily[1].ArticleCount != 0 || report.Daily[2].ArticleCount != 0 {
		t.Errorf("daily counts = %+v, want only the first day populated", report.Daily)
	}
}

func TestTopLists_RankedWithStableTiebreak(t *testing.T) {
	mk := func(title string, label models.Label, score float64) models.Article {
		return models.Article{
			Headline:  h(title),
			Sentiment: &models.Classification{Label: label, Score: score},
		}
	}
	articles := []models.Article{
		mk("p1", models.LabelPositive, 0.6),
		mk("n1", models.LabelNegative, 0.9),
		mk("p2", models.LabelPositive, 0.8),
		mk("p3", models.LabelPositive, 0.6),
		{Headline: h("failed"), Error: "nope"},
		mk("neutral", models.LabelNeutral, 0.99),
	}

	pos, neg := topLists(articles, 2)

	if len(pos) != 2 || pos[0].Title != "p2" || pos[1].Title != "p1" {
		t.Errorf("pos = %v, want [p2 p1] (ties keep input order)", titles(pos))
	}
	if len(neg) != 1 || neg[0].Title != "n1" {
		t.Errorf("neg = %v, want [n1]", titles(neg))
	}
}

func titles(articles []models.Article) []string {
	out := make([]string, len(articles))
	for i, a := range articles {
		out[i] = a.Title
	}
	return out
}
