// Package httpapi binds service.Service to HTTP with gin.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rustyeddy/optiontrader/backtest"
	"github.com/rustyeddy/optiontrader/broker"
	"github.com/rustyeddy/optiontrader/logger"
	"github.com/rustyeddy/optiontrader/service"
	"github.com/rustyeddy/optiontrader/strategy"
)

const DefaultAddr = ":8000"

type Server struct {
	addr   string
	svc    *service.Service
	router *gin.Engine
	log    *slog.Logger
}

func NewServer(addr string, svc *service.Service, log *slog.Logger) (*Server, error) {
	if svc == nil {
		return nil, errors.New("httpapi: service is required")
	}
	if addr == "" {
		addr = DefaultAddr
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	s := &Server{addr: addr, svc: svc, router: router, log: logger.Or(log, "http")}
	router.Use(gin.Recovery(), s.requestLogger())
	s.registerRoutes()
	return s, nil
}

// Handler exposes the router, mostly for tests.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) Addr() string { return s.addr }

func (s *Server) registerRoutes() {
	s.router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := s.router.Group("/api")
	api.GET("/risk", s.handleRisk)
	api.GET("/risk/validate", s.handleValidate)
	api.GET("/positions", s.handlePositions)
	api.POST("/positions/:id/close", s.handleClose)
	api.POST("/backtest", s.handleBacktest)
	api.GET("/state", s.handleState)
	api.POST("/state/reset", s.handleReset)
	api.GET("/strategies", s.handleStrategies)
	api.POST("/strategies", s.handleDeploy)
	api.DELETE("/strategies/:name", s.handleRemoveStrategy)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"ip", c.ClientIP(),
			"dur", time.Since(start))
	}
}

// Start serves until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.log.Info("http listening", "addr", s.addr)

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleRisk(c *gin.Context) {
	c.JSON(http.StatusOK, s.svc.RiskState())
}

func (s *Server) handleValidate(c *gin.Context) {
	var vals [3]float64
	for i, key := range []string{"entry", "sl", "target"} {
		v, err := strconv.ParseFloat(c.Query(key), 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": key + " must be a number"})
			return
		}
		vals[i] = v
	}
	c.JSON(http.StatusOK, s.svc.ValidateTrade(vals[0], vals[1], vals[2]))
}

func (s *Server) handlePositions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"positions": s.svc.OpenPositions(c.Request.Context())})
}

func (s *Server) handleClose(c *gin.Context) {
	res, err := s.svc.ClosePosition(c.Request.Context(), c.Param("id"))
	switch {
	case errors.Is(err, broker.ErrPositionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	case err != nil:
		s.log.Error("manual close failed", "id", c.Param("id"), "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !res.Closed() {
		c.JSON(http.StatusUnprocessableEntity, res)
		return
	}
	c.JSON(http.StatusOK, res)
}

// handleBacktest streams newline delimited JSON events. The response ends
// after the result or error event.
func (s *Server) handleBacktest(c *gin.Context) {
	var req service.BacktestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.Header("Content-Type", "application/x-ndjson")
	c.Header("Cache-Control", "no-cache")
	c.Status(http.StatusOK)
	enc := json.NewEncoder(c.Writer)
	emit := func(ev backtest.Event) {
		if err := enc.Encode(ev); err != nil {
			s.log.Warn("stream write failed", "err", err)
			return
		}
		c.Writer.Flush()
	}
	if err := s.svc.RunBacktest(c.Request.Context(), req, emit); err != nil {
		s.log.Info("backtest ended with error", "err", err)
	}
}

func (s *Server) handleState(c *gin.Context) {
	c.JSON(http.StatusOK, s.svc.State())
}

func (s *Server) handleReset(c *gin.Context) {
	if err := s.svc.ResetState(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "reset"})
}

func (s *Server) handleStrategies(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"strategies": s.svc.DeployedStrategies(), "available": strategy.Names()})
}

func (s *Server) handleDeploy(c *gin.Context) {
	var req struct {
		Name   string             `json:"name" binding:"required"`
		Symbol string             `json:"symbol"`
		Params map[string]float64 `json:"params"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	d, err := s.svc.DeployStrategy(strategy.Config{Name: req.Name, Params: req.Params}, req.Symbol)
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusCreated, d)
	}
}

func (s *Server) handleRemoveStrategy(c *gin.Context) {
	if err := s.svc.RemoveStrategy(c.Param("name")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}
