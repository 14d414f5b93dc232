package middleware

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"

	"github.com/charmbracelet/log"

	"trafficwatch/internal/auth"
	"trafficwatch/internal/ratelimit"
)

// RateLimit enforces group on every request. Authenticated requesters are
// keyed on their token subject, everyone else on the client address.
func RateLimit(limiter *ratelimit.Limiter, group string, ignoreForwarded bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision, err := limiter.Decide(r.Context(), ratelimit.Request{
				Key:    rateLimitKey(r, ignoreForwarded),
				Group:  group,
				Method: r.Method,
			})
			if err != nil {
				log.Error("Rate limit misconfigured", "group", group, "error", err)
				writeJSONError(w, http.StatusInternalServerError, "Internal server error")
				return
			}

			if !decision.Exempt {
				w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(decision.Limit, 10))
				w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(decision.Remaining, 10))
			}

			if !decision.Allowed {
				seconds := int64(math.Ceil(decision.RetryAfter.Seconds()))
				w.Header().Set("Retry-After", strconv.FormatInt(max(seconds, 1), 10))
				writeJSONError(w, http.StatusTooManyRequests, decision.Message)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func rateLimitKey(r *http.Request, ignoreForwarded bool) string {
	if identity := auth.IdentityFromContext(r.Context()); identity.Authenticated() {
		return ratelimit.UserKey(identity.Subject)
	}
	if address, ok := ClientAddressFromContext(r.Context()); ok {
		return ratelimit.AddressKey(address)
	}
	return ratelimit.AddressKey(ClientAddress(r, ignoreForwarded))
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
