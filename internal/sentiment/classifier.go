// Package sentiment classifies headline text through a hosted inference
// endpoint. Texts are grouped into batches and classified by a small worker
// pool; one failed batch degrades only its own texts, never the whole run.
package sentiment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/rewired-gh/marketmood/internal/config"
	"github.com/rewired-gh/marketmood/internal/httpx"
	"github.com/rewired-gh/marketmood/internal/logger"
	"github.com/rewired-gh/marketmood/internal/models"
)

// Classifier sends batches of texts to the inference endpoint and maps the
// provider's label vocabulary onto the three-way sentiment labels.
type Classifier struct {
	http      *httpx.Client
	baseURL   string
	apiKey    string
	workers   int
	batchSize int
}

// New creates a classifier from configuration. Workers and batch size fall
// back to safe values when unset.
func New(cfg config.SentimentConfig) *Classifier {
	workers := cfg.Workers
	if workers < 1 {
		workers = 6
	}
	batchSize := cfg.BatchSize
	if batchSize < 1 {
		batchSize = 16
	}
	return &Classifier{
		http:      httpx.NewClient(cfg.Timeout, cfg.MaxRetries, cfg.RetryDelayBase),
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:    cfg.APIKey,
		workers:   workers,
		batchSize: batchSize,
	}
}

type inferenceRequest struct {
	Inputs []string `json:"inputs"`
}

// candidate is one (label, score) pair returned by the provider for a text.
type candidate struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// ClassifyAll classifies every text and returns one result per input, in
// input order. It never returns an error: texts whose batch failed carry a
// failure reason instead of a classification.
func (c *Classifier) ClassifyAll(ctx context.Context, texts []string) []models.SentimentResult {
	results := make([]models.SentimentResult, len(texts))
	if len(texts) == 0 {
		return results
	}

	type batch struct {
		offset int
		texts  []string
	}
	var batches []batch
	for start := 0; start < len(texts); start += c.batchSize {
		end := start + c.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batches = append(batches, batch{offset: start, texts: texts[start:end]})
	}

	workers := c.workers
	if workers > len(batches) {
		workers = len(batches)
	}

	// Workers pull batch indices from a shared cursor and write into their
	// batch's slot range, so output order matches input order without any
	// reassembly step.
	next := make(chan int)
	go func() {
		defer close(next)
		for i := range batches {
			select {
			case next <- i:
			case <-ctx.Done():
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range next {
				b := batches[i]
				c.classifyBatch(ctx, b.texts, results[b.offset:b.offset+len(b.texts)])
			}
		}()
	}
	wg.Wait()

	// Slots never reached because the context died would otherwise be
	// zero-valued and ambiguous.
	for i, r := range results {
		if r == (models.SentimentResult{}) {
			results[i] = models.Failed("classification canceled")
		}
	}
	return results
}

// classifyBatch fills out with one result per text in the batch. A request
// failure marks every slot with the same reason.
func (c *Classifier) classifyBatch(ctx context.Context, texts []string, out []models.SentimentResult) {
	header := http.Header{}
	if c.apiKey != "" {
		header.Set("Authorization", "Bearer "+c.apiKey)
	}

	var raw json.RawMessage
	err := c.http.PostJSON(ctx, c.baseURL, header, inferenceRequest{Inputs: texts}, &raw)
	if err != nil {
		reason := failureReason(err)
		logger.Warn("Sentiment batch of %d failed: %v", len(texts), err)
		for i := range out {
			out[i] = models.Failed(reason)
		}
		return
	}

	rows, err := normalize(raw, len(texts))
	if err != nil {
		logger.Warn("Sentiment response for batch of %d unparseable: %v", len(texts), err)
		for i := range out {
			out[i] = models.Failed("malformed classification response")
		}
		return
	}

	if len(rows) < len(texts) {
		logger.Warn("Sentiment response carried %d rows for %d texts, padding the rest as failed", len(rows), len(texts))
	}
	for i := range out {
		if i >= len(rows) {
			out[i] = models.Failed("missing classification")
			continue
		}
		out[i] = pick(rows[i])
	}
}

// normalize accepts the response shapes hosted inference endpoints actually
// produce and flattens them to one candidate list per input:
//
//	[[{label,score},...], ...]          one candidate list per input
//	[{label,score}, ...]                single input, candidates at top level
//	[{labels:[...], scores:[...]}, ...] parallel arrays per input
func normalize(raw json.RawMessage, n int) ([][]candidate, error) {
	var nested [][]candidate
	if err := json.Unmarshal(raw, &nested); err == nil && validRows(nested) {
		return nested, nil
	}

	var flat []candidate
	if err := json.Unmarshal(raw, &flat); err == nil && len(flat) > 0 && flat[0].Label != "" {
		if n == 1 {
			return [][]candidate{flat}, nil
		}
		// One candidate per input.
		rows := make([][]candidate, len(flat))
		for i, cand := range flat {
			rows[i] = []candidate{cand}
		}
		return rows, nil
	}

	type parallel struct {
		Labels []string  `json:"labels"`
		Scores []float64 `json:"scores"`
	}
	var par []parallel
	if err := json.Unmarshal(raw, &par); err == nil && len(par) > 0 && len(par[0].Labels) > 0 {
		rows := make([][]candidate, len(par))
		for i, p := range par {
			if len(p.Labels) != len(p.Scores) {
				return nil, fmt.Errorf("labels/scores length mismatch at row %d", i)
			}
			for j := range p.Labels {
				rows[i] = append(rows[i], candidate{Label: p.Labels[j], Score: p.Scores[j]})
			}
		}
		return rows, nil
	}

	return nil, errors.New("unrecognized response shape")
}

func validRows(rows [][]candidate) bool {
	if len(rows) == 0 {
		return false
	}
	for _, row := range rows {
		if len(row) == 0 || row[0].Label == "" {
			return false
		}
	}
	return true
}

// pick selects the highest-scoring candidate and maps its label.
func pick(row []candidate) models.SentimentResult {
	if len(row) == 0 {
		return models.Failed("empty candidate list")
	}
	best := row[0]
	for _, cand := range row[1:] {
		if cand.Score > best.Score {
			best = cand
		}
	}
	label, ok := mapLabel(best.Label)
	if !ok {
		return models.Failed(fmt.Sprintf("unrecognized label %q", best.Label))
	}
	return models.Classified(label, best.Score)
}

// mapLabel resolves a provider label to the three-way vocabulary, first by
// substring, then by the ordinal convention of financial sentiment models
// (LABEL_0 positive, LABEL_1 negative, LABEL_2 neutral).
func mapLabel(raw string) (models.Label, bool) {
	lower := strings.ToLower(raw)
	switch {
	case strings.Contains(lower, "pos"):
		return models.LabelPositive, true
	case strings.Contains(lower, "neg"):
		return models.LabelNegative, true
	case strings.Contains(lower, "neu"):
		return models.LabelNeutral, true
	}
	switch lower {
	case "label_0", "0":
		return models.LabelPositive, true
	case "label_1", "1":
		return models.LabelNegative, true
	case "label_2", "2":
		return models.LabelNeutral, true
	}
	return "", false
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, models.ErrUpstreamAuth):
		return "classifier rejected credentials"
	case errors.Is(err, models.ErrRateLimited):
		return "classifier rate limited"
	case errors.Is(err, context.DeadlineExceeded):
		return "classifier timed out"
	default:
		return "classifier unavailable"
	}
}
