package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"

	"trafficwatch/internal/auth"
	"trafficwatch/internal/metrics"
	"trafficwatch/internal/middleware"
	"trafficwatch/internal/ratelimit"
)

const shutdownTimeout = 10 * time.Second

// Dependencies are the components the routes are served with.
type Dependencies struct {
	Interceptor *middleware.Interceptor
	Limiter     *ratelimit.Limiter
	Resolver    middleware.GeoResolver
	Operator    auth.Operator
	// Redis is optional; without it the health probe skips the instance count.
	Redis redis.UniversalClient

	IgnoreForwardedHeader bool
	// TokenTTL of zero uses auth.DefaultTokenTTL.
	TokenTTL time.Duration
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, msg string, status int) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// NewRouter builds the full handler tree. Probes and metrics bypass the
// interceptor so they are never blocked or logged as traffic.
func NewRouter(deps Dependencies) http.Handler {
	limited := func(group string, h http.HandlerFunc) http.Handler {
		return middleware.RateLimit(deps.Limiter, group, deps.IgnoreForwardedHeader)(h)
	}
	operatorOnly := auth.RequireRole(auth.RoleOperator)

	router := http.NewServeMux()
	router.Handle("GET /test-geo/", limited("geo-test", testGeo(deps)))
	router.Handle("POST /test-geo/", limited("geo-test", testGeo(deps)))
	router.Handle("POST /login/", limited("login", login(deps)))
	router.HandleFunc("GET /version", getVersion)

	router.Handle("GET /settings", operatorOnly(http.HandlerFunc(getSettings)))
	router.Handle("POST /settings", operatorOnly(http.HandlerFunc(saveSettings)))
	router.Handle("GET /suspicions", operatorOnly(http.HandlerFunc(listSuspicions)))
	router.Handle("POST /blocks", operatorOnly(http.HandlerFunc(createBlock)))
	router.Handle("DELETE /blocks/{address}", operatorOnly(http.HandlerFunc(deleteBlock)))

	root := http.NewServeMux()
	root.Handle("GET /healthz", healthz(deps))
	root.Handle("GET /metrics", metrics.Handler())
	root.Handle("/", auth.Authenticate(deps.Interceptor.Handler(router)))

	log.Debug("Routes opened")

	return enableCORS(root)
}

// OpenRoutes serves handler on port until ctx is cancelled, then drains
// in-flight requests.
func OpenRoutes(ctx context.Context, port int, handler http.Handler) error {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("Starting trafficwatch on port :%d", port)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	log.Info("Shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api server shutdown: %w", err)
	}
	return nil
}
