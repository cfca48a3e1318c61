// Package server exposes the pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"golang.org/x/time/rate"

	"github.com/KaramelBytes/exodetect-cli/internal/auth"
	"github.com/KaramelBytes/exodetect-cli/internal/cleaning"
	"github.com/KaramelBytes/exodetect-cli/internal/ingest"
	"github.com/KaramelBytes/exodetect-cli/internal/metrics"
	"github.com/KaramelBytes/exodetect-cli/internal/pipeline"
	"github.com/KaramelBytes/exodetect-cli/internal/store/postgres"
	"github.com/KaramelBytes/exodetect-cli/internal/training"
)

const requestIDHeader = "X-Request-Id"

// PredictionLog receives every served prediction.
type PredictionLog interface {
	Record(ctx context.Context, e *postgres.Entry) error
}

// Options configures BuildServer. Runtime and Issuer are required.
type Options struct {
	Runtime     *pipeline.Runtime
	Trainer     *training.Trainer
	Issuer      *auth.Issuer
	Metrics     *metrics.Metrics
	Predictions PredictionLog
	Logger      *slog.Logger

	LogLevel       string
	MaxUploadMB    int
	RateLimitRPS   float64
	RateLimitBurst int
	CORSOrigins    []string
}

type server struct {
	runtime     *pipeline.Runtime
	trainer     *training.Trainer
	issuer      *auth.Issuer
	metrics     *metrics.Metrics
	predictions PredictionLog
	logger      *slog.Logger
}

// BuildServer wires routes and middleware.
func BuildServer(opt Options) *echo.Echo {
	s := &server{
		runtime:     opt.Runtime,
		trainer:     opt.Trainer,
		issuer:      opt.Issuer,
		metrics:     opt.Metrics,
		predictions: opt.Predictions,
		logger:      opt.Logger,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.metrics == nil {
		s.metrics = metrics.New("exodetect")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	switch strings.ToLower(opt.LogLevel) {
	case "debug":
		e.Logger.SetLevel(log.DEBUG)
	case "info", "":
		e.Logger.SetLevel(log.INFO)
	case "warn":
		e.Logger.SetLevel(log.WARN)
	case "error":
		e.Logger.SetLevel(log.ERROR)
	case "off":
		e.Logger.SetLevel(log.OFF)
	default:
		e.Logger.SetLevel(log.WARN)
		s.logger.Warn("unknown log level, falling back to warn", "level", opt.LogLevel)
	}

	e.HTTPErrorHandler = s.handleError

	e.Use(middleware.Recover())
	e.Use(requestID)
	e.Use(s.observe)
	if len(opt.CORSOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins:     opt.CORSOrigins,
			AllowCredentials: true,
		}))
	}
	if opt.MaxUploadMB > 0 {
		e.Use(middleware.BodyLimit(fmt.Sprintf("%dM", opt.MaxUploadMB)))
	}
	if opt.RateLimitRPS > 0 {
		burst := opt.RateLimitBurst
		if burst <= 0 {
			burst = int(opt.RateLimitRPS) + 1
		}
		e.Use(middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
			Skipper: func(c echo.Context) bool {
				p := c.Path()
				return p == "/health" || p == "/metrics"
			},
			Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
				Rate:      rate.Limit(opt.RateLimitRPS),
				Burst:     burst,
				ExpiresIn: 3 * time.Minute,
			}),
		}))
	}

	e.GET("/health", s.health)
	e.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	e.POST("/predict", s.predict(training.Kepler))
	e.POST("/predict-k2", s.predict(training.K2))
	e.POST("/habitability", s.habitability)
	e.POST("/auth/login", s.login)
	e.GET("/auth/me", s.me)

	admin := e.Group("/admin", s.requireAuth)
	admin.POST("/train/kepler", s.train(training.Kepler))
	admin.POST("/train/k2", s.train(training.K2))

	return e
}

type requestIDKey struct{}

func requestID(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		id := strings.TrimSpace(req.Header.Get(requestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		c.SetRequest(req.WithContext(context.WithValue(req.Context(), requestIDKey{}, id)))
		c.Response().Header().Set(requestIDHeader, id)
		return next(c)
	}
}

func requestIDOf(c echo.Context) string {
	id, _ := c.Request().Context().Value(requestIDKey{}).(string)
	return id
}

func (s *server) requestLogger(c echo.Context) *slog.Logger {
	return s.logger.With("request_id", requestIDOf(c))
}

// observe records request metrics and the access log. Errors are rendered
// here so the final status is known.
func (s *server) observe(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		path := c.Path()
		if path == "" {
			path = "unmatched"
		}
		start := time.Now()
		done := s.metrics.RequestStarted(req.Method, path)

		if err := next(c); err != nil {
			c.Error(err)
		}

		status := c.Response().Status
		done(status)
		attrs := []any{
			"request_id", requestIDOf(c),
			"method", req.Method,
			"path", req.URL.Path,
			"status", status,
			"duration_ms", float64(time.Since(start).Microseconds()) / 1000.0,
			"bytes", c.Response().Size,
			"remote_addr", c.RealIP(),
		}
		switch {
		case status >= 500:
			s.logger.Error("http_request", attrs...)
		case status >= 400:
			s.logger.Warn("http_request", attrs...)
		default:
			s.logger.Info("http_request", attrs...)
		}
		return nil
	}
}

type errorBody struct {
	Detail string `json:"detail"`
}

func (s *server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code, msg := statusOf(err)
	if code >= http.StatusInternalServerError {
		s.requestLogger(c).Error("request failed", "error", err)
	}
	var werr error
	if c.Request().Method == http.MethodHead {
		werr = c.NoContent(code)
	} else {
		werr = c.JSON(code, errorBody{Detail: msg})
	}
	if werr != nil {
		s.requestLogger(c).Error("write error response", "error", werr)
	}
}

// statusOf maps error kinds to HTTP status codes. Anything unrecognized
// is a 500 with a generic message.
func statusOf(err error) (int, string) {
	var he *echo.HTTPError
	var mce *cleaning.MissingColumnsError
	switch {
	case errors.As(err, &he):
		return he.Code, fmt.Sprint(he.Message)
	case errors.Is(err, auth.ErrMissingToken), errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized, err.Error()
	case errors.Is(err, auth.ErrMissingCredentials),
		errors.Is(err, pipeline.ErrEmptyInput),
		errors.Is(err, ingest.ErrMalformedInput),
		errors.Is(err, cleaning.ErrNoRowsLeft),
		errors.As(err, &mce):
		return http.StatusBadRequest, err.Error()
	default:
		return http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError)
	}
}
