// Package middleware holds the HTTP interception chain: block checks, rate
// limiting and traffic logging.
package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/charmbracelet/log"

	"trafficwatch/internal/domain"
	"trafficwatch/internal/metrics"
	"trafficwatch/internal/traffic"
)

const (
	BlockedMessage    = "Access Denied: Your IP address has been blocked."
	defaultLogTimeout = 5 * time.Second
)

type BlockChecker interface {
	IsBlocked(ctx context.Context, address string) (bool, error)
}

type GeoResolver interface {
	Resolve(ctx context.Context, address string) domain.Geolocation
}

type TrafficRecorder interface {
	Record(ctx context.Context, entry traffic.Entry) error
}

type InterceptorOptions struct {
	IgnoreForwardedHeader bool
	// LogTimeout bounds geolocation plus the traffic write after the response.
	LogTimeout time.Duration
}

type Interceptor struct {
	checker  BlockChecker
	resolver GeoResolver
	recorder TrafficRecorder
	opts     InterceptorOptions
}

func NewInterceptor(checker BlockChecker, resolver GeoResolver, recorder TrafficRecorder, opts InterceptorOptions) *Interceptor {
	if opts.LogTimeout <= 0 {
		opts.LogTimeout = defaultLogTimeout
	}
	return &Interceptor{
		checker:  checker,
		resolver: resolver,
		recorder: recorder,
		opts:     opts,
	}
}

// Handler wraps next. Blocked addresses get a 403 without reaching next and
// without a traffic record. Every admitted request is logged once the
// response has been produced.
func (i *Interceptor) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		address := ClientAddress(r, i.opts.IgnoreForwardedHeader)

		blocked, err := i.checker.IsBlocked(r.Context(), address)
		if err != nil {
			metrics.BlockCheckFailures.Inc()
			log.Error("Block list check failed, admitting request", "address", address, "error", err)
		}
		if blocked {
			metrics.Requests.WithLabelValues("blocked").Inc()
			log.Debug("Blocked request", "address", address, "path", r.URL.Path)
			http.Error(w, BlockedMessage, http.StatusForbidden)
			return
		}

		metrics.Requests.WithLabelValues("admitted").Inc()

		entry := traffic.Entry{
			Address:   address,
			Path:      r.URL.Path,
			Method:    r.Method,
			UserAgent: r.UserAgent(),
		}

		recorder := newStatusRecorder(w)
		next.ServeHTTP(recorder, r.WithContext(WithClientAddress(r.Context(), address)))

		log.Debug("Request handled", "address", address, "method", r.Method, "path", r.URL.Path, "status", recorder.StatusCode(), "bytes", recorder.bytes)
		i.logTraffic(r.Context(), entry)
	})
}

// logTraffic runs detached from client cancellation so a disconnect never
// loses the audit record.
func (i *Interceptor) logTraffic(parent context.Context, entry traffic.Entry) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), i.opts.LogTimeout)
	defer cancel()

	if i.resolver != nil {
		entry.Geo = i.resolver.Resolve(ctx, entry.Address)
	}

	// Record logs its own failures.
	_ = i.recorder.Record(ctx, entry)
}
