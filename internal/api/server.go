package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/datenorm/internal/inference"
	"github.com/samcharles93/datenorm/internal/logger"
	"github.com/samcharles93/datenorm/internal/metrics"
	"github.com/samcharles93/datenorm/internal/webui"
)

const (
	routeRoot      = "/"
	routeNormalize = "/v1/normalize"
	routeReload    = "/admin/reload"
	routeHealth    = "/healthz"
	routeMetrics   = "/metrics"
	routeUI        = "/ui"
)

type Server struct {
	provider EngineProvider
	metrics  *metrics.Metrics
	log      logger.Logger
	metricsH http.Handler
	uiH      http.Handler
}

// NewServer wires handlers to provider. A nil m or log gets a private
// registry or a discarding logger.
func NewServer(provider EngineProvider, m *metrics.Metrics, log logger.Logger) *Server {
	if m == nil {
		m = metrics.New()
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Server{
		provider: provider,
		metrics:  m,
		log:      log,
		metricsH: m.Handler(),
		uiH:      webui.Handler(routeUI),
	}
}

// Register adds the routes and the request-id and counting middleware. Call
// it before adding other middleware so access logs and recovered panics are
// seen by both.
func (s *Server) Register(e *echo.Echo) {
	e.Use(requestID(s.log), countRequests(s.metrics))

	e.GET(routeRoot, s.handleRoot)
	e.GET(routeNormalize, s.handleNormalize)
	e.POST(routeReload, s.handleReload)
	e.GET(routeHealth, s.handleHealth)
	e.GET(routeMetrics, s.handleMetrics)
	e.GET(routeUI, func(c *echo.Context) error {
		return c.Redirect(http.StatusMovedPermanently, routeUI+"/")
	})
	e.GET(routeUI+"/*", s.handleUI)
}

// handleRoot answers with the bare {"data": "..."} body; /v1/normalize has the details.
func (s *Server) handleRoot(c *echo.Context) error {
	res, _, err := s.normalize(c, false)
	if err != nil {
		return s.fail(c, routeRoot, err)
	}
	return s.respond(c, http.StatusOK, DataResponse{Data: res.Text})
}

func (s *Server) handleNormalize(c *echo.Context) error {
	attention := false
	if raw := c.QueryParam("attention"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return s.fail(c, routeNormalize, newInvalidRequest("attention", "attention must be a boolean"))
		}
		attention = v
	}

	res, info, err := s.normalize(c, attention)
	if err != nil {
		return s.fail(c, routeNormalize, err)
	}
	return s.respond(c, http.StatusOK, NormalizeResponse{
		Data:       res.Text,
		Input:      c.QueryParam("date"),
		Steps:      res.Steps,
		StopReason: string(res.Stop),
		Tokens:     res.Tokens,
		Attention:  res.Attention,
		Model:      info.ID,
		DurationMS: float64(res.Stats.Duration.Microseconds()) / 1000,
	})
}

func (s *Server) normalize(c *echo.Context, attention bool) (*inference.Result, inference.ModelInfo, error) {
	date := c.QueryParam("date")
	if date == "" {
		return nil, inference.ModelInfo{}, newInvalidRequest("date", "query parameter date is required")
	}
	ctx := c.Request().Context()

	var (
		res  *inference.Result
		info inference.ModelInfo
	)
	err := s.provider.WithEngine(ctx, func(engine inference.Engine) error {
		r, err := engine.Predict(ctx, &inference.Request{Text: date, Attention: attention})
		if err != nil {
			return err
		}
		res, info = r, engine.Info()
		return nil
	})
	if err != nil {
		return nil, info, err
	}
	s.metrics.ObserveDecode(string(res.Stop), res.Steps, res.Stats.InputChars, res.Stats.Duration)
	logger.FromContext(ctx).Debug("normalized",
		"input", date,
		"output", res.Text,
		"steps", res.Steps,
		"stop", res.Stop,
		"duration", res.Stats.Duration,
	)
	return res, info, nil
}

func (s *Server) handleReload(c *echo.Context) error {
	ctx := c.Request().Context()
	log := logger.FromContext(ctx)
	start := time.Now()

	info, err := s.provider.Reload(ctx)
	s.metrics.ObserveReload(err, info.LoadedAt)
	if err != nil {
		log.Error("model reload failed, keeping previous model", "error", err)
		return s.respond(c, http.StatusInternalServerError, ErrorResponse{Error: ErrorBody{
			Message: err.Error(),
			Type:    "reload_error",
		}})
	}
	log.Info("model reloaded", "model", info.ID, "dir", info.Dir, "took", time.Since(start))
	return s.respond(c, http.StatusOK, ReloadResponse{Reloaded: true, Model: info})
}

func (s *Server) handleHealth(c *echo.Context) error {
	info, ok := s.provider.Info()
	if !ok {
		return s.respond(c, http.StatusServiceUnavailable, HealthResponse{Status: "unavailable"})
	}
	return s.respond(c, http.StatusOK, HealthResponse{Status: "ok", Model: &info})
}

func (s *Server) handleMetrics(c *echo.Context) error {
	s.metricsH.ServeHTTP(c.Response(), c.Request())
	return nil
}

func (s *Server) handleUI(c *echo.Context) error {
	s.uiH.ServeHTTP(c.Response(), c.Request())
	return nil
}

func (s *Server) respond(c *echo.Context, status int, body any) error {
	return c.JSON(status, body)
}

func (s *Server) fail(c *echo.Context, route string, err error) error {
	status, body := errorStatus(err)
	log := logger.FromContext(c.Request().Context())
	if status >= http.StatusInternalServerError {
		log.Error("request failed", "route", route, "status", status, "error", err)
	} else {
		log.Debug("rejected request", "route", route, "error", err)
	}
	return writeError(c, status, body)
}
