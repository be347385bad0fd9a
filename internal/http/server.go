package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/MoeMoeen/smart-personal-planner-sub001/internal/feedback"
	"github.com/MoeMoeen/smart-personal-planner-sub001/internal/intent"
	"github.com/MoeMoeen/smart-personal-planner-sub001/internal/logging"
	"github.com/MoeMoeen/smart-personal-planner-sub001/internal/orchestrator"
	"github.com/MoeMoeen/smart-personal-planner-sub001/internal/store"
)

// Server exposes the planner over HTTP.
type Server struct {
	echo   *echo.Echo
	orch   *orchestrator.Orchestrator
	store  *store.Store
	logger *zap.Logger
	config *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// NewServer creates the HTTP server.
func NewServer(orch *orchestrator.Orchestrator, st *store.Store, logger *zap.Logger, cfg *Config) (*Server, error) {
	if orch == nil {
		return nil, fmt.Errorf("orchestrator cannot be nil")
	}
	if st == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 9080,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(NewHTTPMetrics(logger).MetricsMiddleware())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			fields := []zap.Field{
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			}
			// Handlers stash correlation IDs on the request context.
			fields = append(fields, logging.ContextFields(c.Request().Context())...)
			logger.Info("http request", fields...)

			return err
		}
	})

	s := &Server{
		echo:   e,
		orch:   orch,
		store:  st,
		logger: logger,
		config: cfg,
	}

	s.registerRoutes()

	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)

	v1 := s.echo.Group("/api/v1")
	v1.POST("/turn", s.handleTurn)
	v1.GET("/plans", s.handleListPlans)
	v1.GET("/plans/:id", s.handleGetPlan)
	v1.POST("/plans/:id/feedback", s.handleFeedback)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// handleTurn processes one user message through the orchestrator.
func (s *Server) handleTurn(c echo.Context) error {
	var req TurnRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid turn request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.UserID <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id field is required")
	}

	ctx := logging.WithUserID(c.Request().Context(), req.UserID)
	c.SetRequest(c.Request().WithContext(ctx))

	res, err := s.orch.HandleTurn(ctx, req.UserID, req.Message)
	if errors.Is(err, orchestrator.ErrEmptyMessage) {
		return echo.NewHTTPError(http.StatusBadRequest, "message field is required")
	}
	if errors.Is(err, intent.ErrUnsupported) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err != nil {
		s.logger.Error("turn failed", zap.Int64("user_id", req.UserID), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "turn failed")
	}

	return c.JSON(http.StatusOK, TurnResponse{TurnResult: res})
}

// handleFeedback records plan feedback through the feedback state
// machine. A refinement request also starts a regeneration run and the
// resulting turn rides along in the response.
func (s *Server) handleFeedback(c echo.Context) error {
	planID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || planID <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid plan id")
	}

	var req FeedbackRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid feedback request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.UserID <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id field is required")
	}

	receipt, turn, err := s.orch.SubmitFeedback(c.Request().Context(), feedback.SubmitRequest{
		PlanID:           planID,
		UserID:           req.UserID,
		Action:           req.Action,
		FeedbackText:     req.FeedbackText,
		SuggestedChanges: req.SuggestedChanges,
	})
	switch {
	case errors.Is(err, feedback.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, feedback.ErrConflict):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, feedback.ErrInvalidInput):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case err != nil:
		s.logger.Error("feedback failed", zap.Int64("plan_id", planID), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "feedback failed")
	}

	return c.JSON(http.StatusOK, FeedbackResponse{
		Feedback:   receipt.Feedback,
		Unapproved: receipt.Unapproved,
		Turn:       turn,
	})
}

// handleListPlans lists a user's plans, newest first.
func (s *Server) handleListPlans(c echo.Context) error {
	userID, err := strconv.ParseInt(c.QueryParam("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id query parameter is required")
	}

	plans, err := s.store.ListPlansByUser(c.Request().Context(), userID)
	if err != nil {
		s.logger.Error("list plans failed", zap.Int64("user_id", userID), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "list plans failed")
	}

	return c.JSON(http.StatusOK, PlansResponse{Plans: plans})
}

// handleGetPlan fetches one plan with its tasks.
func (s *Server) handleGetPlan(c echo.Context) error {
	planID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || planID <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid plan id")
	}

	ctx := c.Request().Context()
	p, err := s.store.GetPlan(ctx, planID)
	if errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("plan %d not found", planID))
	}
	if err != nil {
		s.logger.Error("get plan failed", zap.Int64("plan_id", planID), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "get plan failed")
	}

	tasks, err := s.store.ListTasks(ctx, planID)
	if err != nil {
		s.logger.Error("list tasks failed", zap.Int64("plan_id", planID), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "get plan failed")
	}

	return c.JSON(http.StatusOK, PlanResponse{Plan: p, Tasks: tasks})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}

// Handler exposes the underlying handler for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}
