// Package api is the HTTP surface: health probes, the menu analysis endpoint
// used by internal callers, and the LINE webhook.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/allergymenu/allergy-menu-assistant/internal/interfaces"
)

// HealthChecker defines an interface for checking dependency health.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to HealthChecker.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type Dependencies struct {
	Logger      *slog.Logger
	Credentials interfaces.CredentialServiceInterface
	Analyzer    interfaces.AnalyzerInterface
	// AnalyzeToken must be sent as X-Internal-Token on /analyze. Without it
	// /analyze is not mounted: the listener also serves the public webhook.
	AnalyzeToken   string
	MaxUploadBytes int64
	// LineWebhook is mounted at POST /line/webhook when LINE is configured.
	LineWebhook http.Handler
	DB          HealthChecker
	Redis       HealthChecker
}

// NewRouter configures the chi router with all routes and middleware.
func NewRouter(deps Dependencies) *chi.Mux {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger(deps.Logger))
	r.Use(chimiddleware.Recoverer)

	health := &healthHandler{db: deps.DB, redis: deps.Redis}
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)

	if deps.AnalyzeToken != "" {
		analyze := &analyzeHandler{
			creds:    deps.Credentials,
			analyzer: deps.Analyzer,
			maxBytes: deps.MaxUploadBytes,
			logger:   deps.Logger,
		}
		r.With(internalToken(deps.AnalyzeToken)).Post("/analyze", analyze.Analyze)
	}

	if deps.LineWebhook != nil {
		r.Method(http.MethodPost, "/line/webhook", deps.LineWebhook)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "resource not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}
