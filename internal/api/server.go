package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/quantora/signalmind/internal/engine"
	"github.com/quantora/signalmind/internal/metrics"
	"github.com/quantora/signalmind/internal/validation"
	"github.com/quantora/signalmind/models"
)

const defaultMonteCarloIterations = 1000

// Server exposes the engine over HTTP: signal history, stats, the current
// regime, on-demand validation runs and Prometheus metrics.
type Server struct {
	engine   *engine.Engine
	recorder *metrics.Recorder
	logger   zerolog.Logger
}

// NewServer wires the HTTP layer to an engine.
func NewServer(eng *engine.Engine, recorder *metrics.Recorder) *Server {
	return &Server{
		engine:   eng,
		recorder: recorder,
		logger:   log.With().Str("component", "api").Logger(),
	}
}

// Router builds the gin handler tree.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	v1 := router.Group("/api/v1")
	v1.GET("/signals", s.handleSignals)
	v1.GET("/stats", s.handleStats)
	v1.GET("/regime", s.handleRegime)
	v1.POST("/validate", s.handleValidate)

	router.GET("/metrics", gin.WrapH(s.recorder.Handler()))
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return router
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("http server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleSignals(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"signals": s.engine.Signals()})
}

func (s *Server) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.Stats())
}

func (s *Server) handleRegime(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.Regime())
}

type validateRequest struct {
	Mode       string `json:"mode" binding:"required,oneof=backtest montecarlo forward"`
	Iterations int    `json:"iterations"`
	TestPeriod int    `json:"test_period"`
}

func (s *Server) handleValidate(c *gin.Context) {
	var req validateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	history := s.engine.Signals()
	signals := make([]models.Signal, 0, len(history))
	for _, sig := range history {
		signals = append(signals, *sig)
	}

	var (
		result any
		err    error
	)
	switch req.Mode {
	case "backtest":
		result, err = validation.Backtest(signals)
	case "montecarlo":
		iterations := req.Iterations
		if iterations <= 0 {
			iterations = defaultMonteCarloIterations
		}
		result, err = validation.MonteCarlo(signals, iterations)
	case "forward":
		result, err = validation.ForwardTest(signals, req.TestPeriod)
	}
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	s.logger.Info().Str("mode", req.Mode).Msg("validation run completed")
	c.JSON(http.StatusOK, result)
}
