// Package storage provides SQLite-backed archival of completed reports.
package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rewired-gh/marketmood/internal/models"
	_ "modernc.org/sqlite"
)

// ReportRow is the summary view of one archived report, without the full
// article payload.
type ReportRow struct {
	ID          string    `json:"id"`
	Query       string    `json:"q"`
	Ticker      string    `json:"ticker,omitempty"`
	Count       int       `json:"count"`
	Score       float64   `json:"score"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Storage wraps a SQLite database holding the report archive.
type Storage struct {
	db         *sql.DB
	maxReports int
}

// New opens or creates the SQLite database at dbPath.
// An empty dbPath defaults to $TMPDIR/marketmood/data.db.
func New(maxReports int, dbPath string) (*Storage, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "marketmood", "data.db")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	s := &Storage{db: db, maxReports: maxReports}
	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS reports (
			id            TEXT PRIMARY KEY,
			query         TEXT NOT NULL,
			ticker        TEXT,
			count         INTEGER NOT NULL,
			score         REAL NOT NULL,
			payload       TEXT NOT NULL,
			generated_at  INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_reports_generated_at ON reports(generated_at DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// SaveReport archives a completed report and rotates out the oldest rows
// beyond the configured cap.
func (s *Storage) SaveReport(report *models.Report, ticker string) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.Exec(`
		INSERT INTO reports (id, query, ticker, count, score, payload, generated_at)
		VALUES (?,?,?,?,?,?,?)`,
		report.ID, report.Query, ticker, report.Count, report.Summary.Score,
		string(payload), report.GeneratedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert report: %w", err)
	}

	if _, err = tx.Exec(`
		DELETE FROM reports WHERE id NOT IN (
			SELECT id FROM reports ORDER BY generated_at DESC LIMIT ?
		)`, s.maxReports); err != nil {
		return fmt.Errorf("failed to enforce report cap: %w", err)
	}

	return tx.Commit()
}

// GetReport returns the full archived report by id.
func (s *Storage) GetReport(id string) (*models.Report, error) {
	row := s.db.QueryRow(`SELECT payload FROM reports WHERE id = ?`, id)

	var payload string
	err := row.Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("report not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get report: %w", err)
	}

	var report models.Report
	if err := json.Unmarshal([]byte(payload), &report); err != nil {
		return nil, fmt.Errorf("failed to unmarshal report: %w", err)
	}
	return &report, nil
}

// ListRecent returns summary rows for the k newest reports.
func (s *Storage) ListRecent(k int) ([]ReportRow, error) {
	rows, err := s.db.Query(`
		SELECT id, query, ticker, count, score, generated_at
		FROM reports ORDER BY generated_at DESC LIMIT ?`, k)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}
	defer rows.Close()

	out := []ReportRow{}
	for rows.Next() {
		var r ReportRow
		var ticker sql.NullString
		var generatedAtNano int64

		if err := rows.Scan(&r.ID, &r.Query, &ticker, &r.Count, &r.Score, &generatedAtNano); err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		r.Ticker = ticker.String
		r.GeneratedAt = time.Unix(0, generatedAtNano).UTC()
		out = append(out, r)
	}

	return out, rows.Err()
}
