package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/officialmortgage/livbridge/internal/profile"
	"github.com/officialmortgage/livbridge/plugin/ai/agent"
	"github.com/officialmortgage/livbridge/plugin/ai/cache"
	"github.com/officialmortgage/livbridge/plugin/ai/session"
	"github.com/officialmortgage/livbridge/server/internal/observability"
	"github.com/officialmortgage/livbridge/server/middleware"
	"github.com/officialmortgage/livbridge/server/render"
	apiv1 "github.com/officialmortgage/livbridge/server/router/api/v1"
	"github.com/officialmortgage/livbridge/server/router/twilio"
	"github.com/officialmortgage/livbridge/server/service/call"
	"github.com/officialmortgage/livbridge/server/service/lead"
)

const (
	// Per-caller webhook budget. A call posts a few times a minute at most.
	webhookRatePerSecond = 2
	webhookBurst         = 10

	housekeepingInterval = time.Minute
	limiterIdleTTL       = 10 * time.Minute
	shutdownTimeout      = 10 * time.Second
)

// Components are the services the server exposes.
type Components struct {
	Calls       *call.Service
	Renderer    *render.Renderer
	Clips       *cache.ClipCache
	Leads       *lead.Service
	TurnMetrics *agent.TurnMetrics
}

type Server struct {
	Profile *profile.Profile

	echoServer *echo.Echo
	components Components
	metrics    *observability.Metrics
	limiter    *middleware.RateLimiter
	cleanup    *session.CleanupJob
}

func NewServer(profile *profile.Profile, components Components) (*Server, error) {
	if components.Calls == nil || components.Renderer == nil {
		return nil, errors.New("call service and renderer are required")
	}
	if components.Leads == nil {
		return nil, errors.New("lead service is required")
	}

	s := &Server{
		Profile:    profile,
		components: components,
		metrics:    observability.NewMetrics(1000),
		limiter:    middleware.NewRateLimiter(webhookRatePerSecond, webhookBurst),
		cleanup: session.NewCleanupJob(components.Calls, session.CleanupConfig{
			IdleTTL:         profile.SessionIdleTTL,
			CleanupInterval: profile.SessionSweepInterval,
		}),
	}

	echoServer := echo.New()
	echoServer.HideBanner = true
	echoServer.HidePort = true
	echoServer.Use(middleware.RequestLog(slog.Default(), s.metrics))
	echoServer.Use(echomiddleware.Recover())
	s.echoServer = echoServer

	var webhookMiddlewares []echo.MiddlewareFunc
	if profile.TwilioValidateSignature {
		webhookMiddlewares = append(webhookMiddlewares, middleware.TwilioSignature(profile.TwilioAuthToken, profile.InstanceURL))
	} else {
		slog.Warn("twilio signature validation is disabled")
	}
	webhookMiddlewares = append(webhookMiddlewares, middleware.RateLimit(s.limiter, middleware.CallerKey, s.metrics))

	twilio.NewWebhookService(components.Calls, components.Renderer).RegisterRoutes(echoServer, webhookMiddlewares...)
	apiv1.NewAPIV1Service(profile, components.Leads, components.Calls, components.TurnMetrics, s.metrics).RegisterRoutes(echoServer)

	return s, nil
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	return s.echoServer
}

// Start serves HTTP and runs the session sweep until ctx is canceled or the listener fails,
// then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	address := net.JoinHostPort(s.Profile.Addr, fmt.Sprintf("%d", s.Profile.Port))
	g.Go(func() error {
		slog.Info("server listening", slog.String("addr", address), slog.String("mode", s.Profile.Mode))
		if err := s.echoServer.Start(address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "failed to start server")
		}
		return nil
	})

	s.cleanup.Start(gctx)
	g.Go(func() error {
		s.housekeeping(gctx)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.Shutdown(shutdownCtx)
		return nil
	})

	return g.Wait()
}

// housekeeping drops expired audio clips and idle rate-limit entries.
func (s *Server) housekeeping(ctx context.Context) {
	ticker := time.NewTicker(housekeepingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			clips := 0
			if s.components.Clips != nil {
				clips = s.components.Clips.CleanupExpired()
			}
			keys := s.limiter.Prune(limiterIdleTTL)
			if clips > 0 || keys > 0 {
				slog.Debug("housekeeping", slog.Int("expired_clips", clips), slog.Int("idle_limiter_keys", keys))
			}
		}
	}
}

func (s *Server) Shutdown(ctx context.Context) {
	slog.Info("server shutting down")

	if err := s.echoServer.Shutdown(ctx); err != nil {
		slog.Error("failed to shutdown server", slog.String("error", err.Error()))
	}
	s.cleanup.Stop()

	if s.components.TurnMetrics != nil {
		s.components.TurnMetrics.LogSummary()
	}
	slog.Info("server stopped properly", slog.Int("active_sessions", s.components.Calls.ActiveSessions()))
}
