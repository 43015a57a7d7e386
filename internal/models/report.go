// Package models defines the core domain entities: headlines, sentiment
// results, price points, and the assembled analysis report.
package models

import (
	"errors"
	"time"
)

// Headline is a single news item returned by the search provider.
// Immutable once created; URL is the uniqueness key within one fetch.
type Headline struct {
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Source      string    `json:"source"`
	PublishedAt time.Time `json:"published_at"`
}

// Validate checks headline field constraints.
func (h *Headline) Validate() error {
	if h.Title == "" {
		return errors.New("headline title must not be empty")
	}
	if h.URL == "" {
		return errors.New("headline URL must not be empty")
	}
	return nil
}

// Label is the three-way sentiment taxonomy every provider label is
// normalized into.
type Label string

const (
	LabelPositive Label = "positive"
	LabelNeutral  Label = "neutral"
	LabelNegative Label = "negative"
)

// Classification is a successful sentiment call: a normalized label plus a
// non-negative confidence score. Direction is derived from the label, never
// from the score's sign.
type Classification struct {
	Label Label   `json:"label"`
	Score float64 `json:"score"`
}

// SentimentResult is a tagged variant: either a classification or a per-item
// failure reason. The unexported fields force construction through
// Classified/Failed, so a result can never carry both.
type SentimentResult struct {
	class   *Classification
	failure string
}

// Classified builds a successful result. Score is clamped into [0, 1].
func Classified(label Label, score float64) SentimentResult {
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return SentimentResult{class: &Classification{Label: label, Score: score}}
}

// Failed builds a per-item failure marker.
func Failed(reason string) SentimentResult {
	if reason == "" {
		reason = "unknown error"
	}
	return SentimentResult{failure: reason}
}

// Classification returns the classification and true when the result is a
// success.
func (r SentimentResult) Classification() (Classification, bool) {
	if r.class == nil {
		return Classification{}, false
	}
	return *r.class, true
}

// Failure returns the failure reason, or "" for classified results.
func (r SentimentResult) Failure() string {
	return r.failure
}

// SignedScore makes the confidence directional: +score for positive, -score
// for negative, 0 for neutral or failed. Always within [-1, 1].
func (r SentimentResult) SignedScore() float64 {
	if r.class == nil {
		return 0
	}
	switch r.class.Label {
	case LabelPositive:
		return r.class.Score
	case LabelNegative:
		return -r.class.Score
	default:
		return 0
	}
}

// Article joins a headline with its classification outcome. Exactly one of
// Sentiment and Error is set when classification ran; both are empty only if
// classification never happened.
type Article struct {
	Headline
	Sentiment *Classification `json:"sentiment,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// PricePoint is one day on the canonical date axis. Date format is
// "2006-01-02"; Close is never negative.
type PricePoint struct {
	Date  string  `json:"date"`
	Close float64 `json:"close"`
}

// Validate checks price point field constraints.
func (p *PricePoint) Validate() error {
	if _, err := time.Parse(time.DateOnly, p.Date); err != nil {
		return errors.New("price date must be YYYY-MM-DD")
	}
	if p.Close < 0 {
		return errors.New("price close must not be negative")
	}
	return nil
}

// DaySentiment is the mean signed score of one day's classified headlines.
// Value is 0 when no headline classified; ArticleCount includes failed
// attempts.
type DaySentiment struct {
	Date         string  `json:"date"`
	Value        float64 `json:"value"`
	ArticleCount int     `json:"article_count"`
}

// RollingDaySentiment is the trailing mean over up to the 3 most recent days.
type RollingDaySentiment struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

// Summary aggregates all classified items regardless of day. Percentages are
// over the classified-only total; Score is the weighted mean signed score
// clamped to [-1, 1].
type Summary struct {
	Positive    int     `json:"positive"`
	Neutral     int     `json:"neutral"`
	Negative    int     `json:"negative"`
	PositivePct float64 `json:"pos_pct"`
	NeutralPct  float64 `json:"neu_pct"`
	NegativePct float64 `json:"neg_pct"`
	Score       float64 `json:"score"`
}

// Report is the orchestrator's output contract. Missing upstream data
// degrades to empty lists and a zeroed summary rather than failing the whole
// report.
type Report struct {
	ID          string                `json:"id"`
	Query       string                `json:"q"`
	Count       int                   `json:"count"`
	Articles    []Article             `json:"articles"`
	Summary     Summary               `json:"summary"`
	TopPositive []Article             `json:"top_positive"`
	TopNegative []Article             `json:"top_negative"`
	Prices      []PricePoint          `json:"prices"`
	Daily       []DaySentiment        `json:"daily_sentiment"`
	Rolling     []RollingDaySentiment `json:"rolling_sentiment"`
	GeneratedAt time.Time             `json:"generated_at"`
}
