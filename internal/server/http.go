// Package server exposes attestation workflows over HTTP and the attestation
// journal over gRPC.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/invoice-attestor/internal/common"
	"github.com/joseph-ayodele/invoice-attestor/internal/entity"
	"github.com/joseph-ayodele/invoice-attestor/internal/export"
	"github.com/joseph-ayodele/invoice-attestor/internal/ingest"
	"github.com/joseph-ayodele/invoice-attestor/internal/workflow"
)

const requestIDHeader = "X-Request-ID"

// Journal is the read side of the attestation journal.
type Journal interface {
	GetByRecordID(ctx context.Context, recordID string) (*entity.Attestation, error)
	List(ctx context.Context, fromDate, toDate *time.Time) ([]*entity.Attestation, error)
}

type HTTPDeps struct {
	Sessions *workflow.Registry
	Loader   *ingest.Loader
	Journal  Journal
	Exporter *export.Service
	// Ping reports journal health; nil skips the check.
	Ping   func(ctx context.Context) error
	Logger *slog.Logger
}

type HTTPServer struct {
	r    *gin.Engine
	deps HTTPDeps
}

func NewHTTPServer(deps HTTPDeps) *HTTPServer {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(deps.Logger))

	s := &HTTPServer{r: r, deps: deps}
	s.routes()
	return s
}

func (s *HTTPServer) Handler() http.Handler { return s.r }

func (s *HTTPServer) routes() {
	s.r.GET("/healthz", s.handleHealth)

	v1 := s.r.Group("/v1")
	{
		v1.POST("/sessions", s.handleCreateSession)
		v1.GET("/sessions/:id", s.withSession(s.handleGetSession))
		v1.DELETE("/sessions/:id", s.handleDeleteSession)
		v1.PUT("/sessions/:id/document", s.withSession(s.handleSelectDocument))
		v1.POST("/sessions/:id/extract", s.withSession(s.handleExtract))
		v1.POST("/sessions/:id/confirm", s.withSession(s.handleConfirm))
		v1.POST("/sessions/:id/retry", s.withSession(s.handleRetry))
		v1.POST("/sessions/:id/reset", s.withSession(s.handleReset))

		v1.GET("/attestations", s.handleListAttestations)
		v1.GET("/attestations/export.xlsx", s.handleExport)
		v1.GET("/attestations/:record_id", s.handleGetAttestation)
	}
}

// requestLogger tags each request with an id and logs its outcome.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		reqID := c.GetHeader(requestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Header(requestIDHeader, reqID)
		c.Request = c.Request.WithContext(common.WithRequestID(c.Request.Context(), reqID))

		c.Next()

		logger.Info("http.request",
			"req_id", reqID,
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
	}
}

func (s *HTTPServer) handleHealth(c *gin.Context) {
	if s.deps.Ping != nil {
		if err := s.deps.Ping(c.Request.Context()); err != nil {
			s.deps.Logger.Warn("http.health.db_failed", "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": "unreachable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
