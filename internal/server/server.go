// Package server exposes the analysis pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/rewired-gh/marketmood/internal/analyze"
	"github.com/rewired-gh/marketmood/internal/logger"
	"github.com/rewired-gh/marketmood/internal/models"
	"github.com/rewired-gh/marketmood/internal/storage"
)

// Runner produces reports; satisfied by analyze.Analyzer.
type Runner interface {
	Run(ctx context.Context, req analyze.Request) (*models.Report, error)
}

// Archive persists completed reports; satisfied by storage.Storage. May be
// nil when archival is disabled.
type Archive interface {
	SaveReport(report *models.Report, ticker string) error
	GetReport(id string) (*models.Report, error)
	ListRecent(k int) ([]storage.ReportRow, error)
}

// Notifier pushes completed report summaries; satisfied by telegram.Client.
// May be nil when notifications are disabled.
type Notifier interface {
	SendReport(report *models.Report, ticker string) error
}

// Server wires the HTTP routes to the analysis pipeline.
type Server struct {
	runner   Runner
	archive  Archive
	notifier Notifier
}

// New creates a server. archive and notifier are optional.
func New(runner Runner, archive Archive, notifier Notifier) *Server {
	return &Server{runner: runner, archive: archive, notifier: notifier}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	api := r.Group("/api")
	api.GET("/health", s.handleHealth)
	api.GET("/analyze", s.handleAnalyze)
	api.GET("/reports", s.handleListReports)
	api.GET("/reports/:id", s.handleGetReport)
	return r
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleAnalyze(c *gin.Context) {
	req := analyze.Request{
		Query:  c.Query("q"),
		Ticker: c.Query("ticker"),
	}
	if raw := c.Query("range"); raw != "" {
		days, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "range must be an integer day count"})
			return
		}
		req.RangeDays = days
	}

	report, err := s.runner.Run(c.Request.Context(), req)
	if err != nil {
		status, msg := statusFor(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}

	ticker := strings.ToUpper(strings.TrimSpace(req.Ticker))
	if s.archive != nil {
		if err := s.archive.SaveReport(report, ticker); err != nil {
			logger.Warn("Failed to archive report %s: %v", report.ID, err)
		}
	}
	if s.notifier != nil {
		go func() {
			if err := s.notifier.SendReport(report, ticker); err != nil {
				logger.Warn("Failed to send report notification: %v", err)
			}
		}()
	}

	c.JSON(http.StatusOK, report)
}

func (s *Server) handleListReports(c *gin.Context) {
	if s.archive == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "report archive is disabled"})
		return
	}
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}
	rows, err := s.archive.ListRecent(limit)
	if err != nil {
		logger.Error("Failed to list reports: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list reports"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"reports": rows})
}

func (s *Server) handleGetReport(c *gin.Context) {
	if s.archive == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "report archive is disabled"})
		return
	}
	report, err := s.archive.GetReport(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "report not found"})
		return
	}
	c.JSON(http.StatusOK, report)
}

// statusFor maps the failure taxonomy onto HTTP statuses.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, models.ErrInvalidQuery):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, models.ErrRateLimited):
		return http.StatusTooManyRequests, "provider budget exhausted, try again later"
	case errors.Is(err, models.ErrUpstreamAuth), errors.Is(err, models.ErrUpstreamUnavailable):
		return http.StatusBadGateway, "upstream provider unavailable"
	default:
		return http.StatusInternalServerError, "analysis failed"
	}
}
