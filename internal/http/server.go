package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	echoMid "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/jmehdipour/router-sms-gateway/internal/config"
	"github.com/jmehdipour/router-sms-gateway/internal/http/middleware"
	"github.com/jmehdipour/router-sms-gateway/internal/jobs"
	"github.com/jmehdipour/router-sms-gateway/internal/logger"
	"github.com/jmehdipour/router-sms-gateway/internal/metrics"
	"github.com/jmehdipour/router-sms-gateway/internal/model"
	"github.com/jmehdipour/router-sms-gateway/internal/repository"
	"github.com/jmehdipour/router-sms-gateway/internal/util"
)

// Dispatcher accepts sends for the device. *dispatcher.Coordinator implements it.
type Dispatcher interface {
	Submit(ctx context.Context, phoneNumber, message string) (model.Job, error)
	SubmitAndWait(ctx context.Context, phoneNumber, message string) model.SendResult
}

type Deps struct {
	Dispatcher Dispatcher
	Jobs       jobs.Store
	History    repository.HistoryRepository // optional
}

type Server struct{ e *echo.Echo }

func NewServer(cfg config.Config, deps Deps) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(
		echoMid.RequestIDWithConfig(echoMid.RequestIDConfig{Generator: util.NewULID}),
		echoMid.Recover(),
		echoMid.Logger(),
	)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// health
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	// middlewares
	authMW := middleware.APIKeyMiddleware(cfg.HTTP.APIKey)
	rlMW := middleware.RateLimitMiddleware(middleware.RateLimitConfig{
		RPS:            cfg.RateLimit.RPS,
		Burst:          cfg.RateLimit.Burst,
		RetryAfterHint: true,
	})

	// routes
	e.POST("/send-sms", sendSMSHandler(deps.Dispatcher), authMW, rlMW)
	e.GET("/job/:job_id", getJobHandler(deps.Jobs), authMW, rlMW)
	if deps.History != nil {
		e.GET("/history", historyHandler(deps.History), authMW, rlMW)
	}

	return &Server{e: e}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.e.ServeHTTP(w, r) }

// Start blocks serving addr until Shutdown.
func (s *Server) Start(addr string) error {
	logger.Log.Info("http: listening", zap.String("addr", addr))
	if err := s.e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error { return s.e.Shutdown(ctx) }
