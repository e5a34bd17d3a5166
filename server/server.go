// Package server exposes the HTTP API: events, stream sessions with sync and
// match lookup, short links, history, settings, health and metrics. It applies
// CORS, an optional admin gate, per-IP rate limiting on endpoints that call
// external services, and injects correlation IDs into request contexts for
// consistent logging and tracing.
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
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/robostem/matchjump/backend/telemetry"
)

// needsRateLimit selects requests that write state or reach external APIs.
func needsRateLimit(r *http.Request) bool {
	if r.Method != http.MethodGet && r.Method != http.MethodHead && r.Method != http.MethodOptions {
		return true
	}
	return strings.HasSuffix(r.URL.Path, "/matches") || strings.HasPrefix(r.URL.Path, "/events/")
}

func newMux(h *Handlers) http.Handler {
	authCfg := loadAuthConfig()
	limiter := newIPRateLimiter(loadRateLimiterConfig())
	corsCfg := loadCORSConfig()

	mux := http.NewServeMux()

	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", h.HandleHealthz)
	mux.HandleFunc("GET /readyz", h.HandleReadyz)
	mux.HandleFunc("GET /config", h.HandleConfig)
	mux.Handle("PUT /config", adminAuth(http.HandlerFunc(h.HandleConfig), authCfg))

	mux.HandleFunc("GET /auth/youtube/start", h.HandleYouTubeOAuthStart)
	mux.HandleFunc("GET /auth/youtube/callback", h.HandleYouTubeOAuthCallback)

	mux.HandleFunc("GET /events/{sku}", h.HandleEvent)

	mux.HandleFunc("POST /sessions", h.HandleCreateSession)
	mux.HandleFunc("GET /sessions/{id}", h.HandleGetSession)
	mux.HandleFunc("DELETE /sessions/{id}", h.HandleDeleteSession)
	mux.HandleFunc("POST /sessions/{id}/detect", h.HandleDetectAll)
	mux.HandleFunc("POST /sessions/{id}/swap", h.HandleSwap)
	mux.HandleFunc("POST /sessions/{id}/streams", h.HandleAddStream)
	mux.HandleFunc("DELETE /sessions/{id}/streams/{slot}", h.HandleRemoveStream)
	mux.HandleFunc("PUT /sessions/{id}/streams/{slot}/url", h.HandleSetURL)
	mux.HandleFunc("POST /sessions/{id}/streams/{slot}/detect", h.HandleDetect)
	mux.HandleFunc("POST /sessions/{id}/streams/{slot}/sync", h.HandleManualSync)
	mux.HandleFunc("POST /sessions/{id}/streams/{slot}/nudge", h.HandleNudge)
	mux.HandleFunc("POST /sessions/{id}/streams/{slot}/repair", h.HandleRepair)
	mux.HandleFunc("GET /sessions/{id}/teams/{number}/matches", h.HandleTeamMatches)

	mux.HandleFunc("GET /r/{code}", h.HandleShortLink)
	mux.HandleFunc("GET /routes", h.HandleListRoutes)

	mux.HandleFunc("GET /history", h.HandleListHistory)
	mux.HandleFunc("GET /history/{eventId}", h.HandleGetHistory)
	mux.HandleFunc("DELETE /history/{eventId}", h.HandleDeleteHistory)
	mux.HandleFunc("POST /history/{eventId}/restore", h.HandleRestoreHistory)

	mux.HandleFunc("GET /settings", h.HandleGetSettings)
	mux.HandleFunc("PUT /settings/youtube-key", h.HandleSetYouTubeKey)

	admin := http.NewServeMux()
	admin.HandleFunc("PUT /admin/routes", h.HandleReplaceRoutes)
	admin.HandleFunc("POST /admin/routes", h.HandleSaveRoute)
	admin.HandleFunc("DELETE /admin/routes/{code}", h.HandleDeleteRoute)
	mux.Handle("/admin/", adminAuth(admin, authCfg))

	selective := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if needsRateLimit(r) {
			rateLimitMiddleware(mux, limiter).ServeHTTP(w, r)
			return
		}
		mux.ServeHTTP(w, r)
	})

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// reuse corr header if provided else generate
		corr := r.Header.Get("X-Correlation-ID")
		if corr == "" {
			corr = uuid.New().String()
		}
		ctx := telemetry.WithCorrelation(r.Context(), corr)
		w.Header().Set("X-Correlation-ID", corr)

		ctx, span := telemetry.StartSpan(ctx, "http-server", r.Method+" "+r.URL.Path,
			attribute.String("http.method", r.Method),
			attribute.String("http.route", r.URL.Path),
		)
		defer span.End()

		telemetry.LoggerWithCorr(ctx).Debug("request start", slog.String("method", r.Method), slog.String("path", r.URL.Path), slog.String("component", "http"))

		rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		selective.ServeHTTP(rec, r.WithContext(ctx))

		span.SetAttributes(attribute.Int("http.status_code", rec.statusCode))
		if rec.statusCode >= 400 {
			span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", rec.statusCode))
		}
	})
	return withCORSConfig(handler, corsCfg)
}

// statusRecorder wraps ResponseWriter to capture status code
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

// Flush implements http.Flusher if the underlying ResponseWriter supports it
func (r *statusRecorder) Flush() {
	if flusher, ok := r.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Start runs the HTTP server and shuts down gracefully on context cancellation.
func Start(ctx context.Context, deps Deps, addr string) error {
	h := NewHandlers(ctx, deps)
	go h.Sessions().RunSweeper(ctx, time.Minute)

	srv := &http.Server{
		Addr:         addr,
		Handler:      newMux(h),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		// WithoutCancel keeps context values but lets shutdown complete
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("http server shutdown error", slog.Any("err", err))
		}
	}()

	slog.Info("http server listening", slog.String("component", "http"), slog.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("http server error", slog.Any("err", err))
		return err
	}
	return nil
}
