// Package api serves the read-only HTTP surface of the optimization
// service: health, latest recommendations, recent cycle outcomes, service
// status, and Prometheus metrics. The API never mutates engine state.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/optikiln/optikiln/pkg/stores"
	"github.com/optikiln/optikiln/pkg/telemetry"
)

// RecommendationSource reads persisted results.
type RecommendationSource interface {
	LatestRecommendations(ctx context.Context) ([]stores.Recommendation, error)
	LastRun(ctx context.Context) (time.Time, error)
}

// Status is the service status document.
type Status struct {
	// Strategy is the loaded strategy document path.
	Strategy string `json:"strategy"`

	// OptimizableVariables lists the variables the optimizer may move.
	OptimizableVariables []string `json:"optimizable_variables"`

	// LastRun is when the most recent cycle completed.
	LastRun time.Time `json:"last_run"`

	// LastCycle summarizes the most recent cycle, if any ran.
	LastCycle *telemetry.CycleRecord `json:"last_cycle,omitempty"`
}

// StatusFunc supplies the engine-side portion of the status document.
type StatusFunc func() (strategyPath string, optimizable []string)

// Server is the read-only HTTP API server.
type Server struct {
	addr    string
	source  RecommendationSource
	cycles  *telemetry.CycleLog
	metrics http.Handler
	status  StatusFunc
	logger  zerolog.Logger
}

// New creates an API server. metrics may be nil to omit the endpoint.
func New(addr string, source RecommendationSource, cycles *telemetry.CycleLog, metrics http.Handler, status StatusFunc, logger zerolog.Logger) *Server {
	return &Server{
		addr:    addr,
		source:  source,
		cycles:  cycles,
		metrics: metrics,
		status:  status,
		logger:  logger.With().Str("component", "api").Logger(),
	}
}

// Router builds the gin handler tree.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", s.health)
	if s.metrics != nil {
		router.GET("/metrics", gin.WrapH(s.metrics))
	}

	v1 := router.Group("/api/v1")
	v1.GET("/recommendations/latest", s.latestRecommendations)
	v1.GET("/cycles", s.recentCycles)
	v1.GET("/status", s.serviceStatus)
	return router
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.addr).Msg("api listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) latestRecommendations(c *gin.Context) {
	recs, err := s.source.LatestRecommendations(c.Request.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("read recommendations failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read recommendations"})
		return
	}
	if recs == nil {
		recs = []stores.Recommendation{}
	}
	c.JSON(http.StatusOK, gin.H{"recommendations": recs})
}

func (s *Server) recentCycles(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"cycles": s.cycles.Recent()})
}

func (s *Server) serviceStatus(c *gin.Context) {
	lastRun, err := s.source.LastRun(c.Request.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("read last run failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read status"})
		return
	}
	strategyPath, optimizable := s.status()
	status := Status{
		Strategy:             strategyPath,
		OptimizableVariables: optimizable,
		LastRun:              lastRun,
	}
	if last, ok := s.cycles.Last(); ok {
		status.LastCycle = &last
	}
	c.JSON(http.StatusOK, status)
}
