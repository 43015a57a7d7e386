package storage

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/rewired-gh/marketmood/internal/models"
)

func newTestStorage(t *testing.T, maxReports int) *Storage {
	t.Helper()
	s, err := New(maxReports, filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleReport(id string, generatedAt time.Time) *models.Report {
	return &models.Report{
		ID:    id,
		Query: "acme earnings",
		Count: 2,
		Articles: []models.Article{
			{
				Headline:  models.Headline{Title: "up", URL: "https://x/1", Source: "wire"},
				Sentiment: &models.Classification{Label: models.LabelPositive, Score: 0.9},
			},
			{
				Headline: models.Headline{Title: "broken", URL: "https://x/2", Source: "wire"},
				Error:    "classifier unavailable",
			},
		},
		Summary:     models.Summary{Positive: 1, PositivePct: 100, Score: 0.9},
		Prices:      []models.PricePoint{{Date: "2026-03-02", Close: 101.5}},
		Daily:       []models.DaySentiment{{Date: "2026-03-02", Value: 0.9, ArticleCount: 2}},
		GeneratedAt: generatedAt,
	}
}

func TestSaveAndGetReport(t *testing.T) {
	s := newTestStorage(t, 10)
	want := sampleReport("r1", time.Date(2026, 3, 2, 21, 0, 0, 0, time.UTC))

	if err := s.SaveReport(want, "ACME"); err != nil {
		t.Fatalf("SaveReport: %v", err)
	}

	got, err := s.GetReport("r1")
	if err != nil {
		t.Fatalf("GetReport: %v", err)
	}
	if got.ID != want.ID || got.Query != want.Query || got.Count != want.Count {
		t.Errorf("got %+v, want %+v", got, want)
	}
	if len(got.Articles) != 2 || got.Articles[0].Sentiment == nil || got.Articles[1].Error == "" {
		t.Errorf("article payload did not survive the round trip: %+v", got.Articles)
	}
	if got.Summary.Score != 0.9 {
		t.Errorf("Summary.Score = %v, want 0.9", got.Summary.Score)
	}
}

func TestGetReport_Missing(t *testing.T) {
	s := newTestStorage(t, 10)
	if _, err := s.GetReport("nope"); err == nil {
		t.Error("expected an error for an unknown report id")
	}
}

func TestListRecent_NewestFirst(t *testing.T) {
	s := newTestStorage(t, 10)
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		r := sampleReport(fmt.Sprintf("r%d", i), base.Add(time.Duration(i)*time.Hour))
		if err := s.SaveReport(r, "ACME"); err != nil {
			t.Fatalf("SaveReport %d: %v", i, err)
		}
	}

	rows, err := s.ListRecent(2)
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if rows[0].ID != "r2" || rows[1].ID != "r1" {
		t.Errorf("order = [%s %s], want newest first [r2 r1]", rows[0].ID, rows[1].ID)
	}
	if rows[0].Ticker != "ACME" {
		t.Errorf("Ticker = %q, want ACME", rows[0].Ticker)
	}
}

func TestSaveReport_RotatesBeyondCap(t *testing.T) {
	s := newTestStorage(t, 2)
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		r := sampleReport(fmt.Sprintf("r%d", i), base.Add(time.Duration(i)*time.Hour))
		if err := s.SaveReport(r, ""); err != nil {
			t.Fatalf("SaveReport %d: %v", i, err)
		}
	}

	rows, err := s.ListRecent(10)
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows after rotation, want 2", len(rows))
	}
	if rows[0].ID != "r3" || rows[1].ID != "r2" {
		t.Errorf("survivors = [%s %s], want the 2 newest [r3 r2]", rows[0].ID, rows[1].ID)
	}
	if _, err := s.GetReport("r0"); err == nil {
		t.Error("rotated-out report should be gone")
	}
}
