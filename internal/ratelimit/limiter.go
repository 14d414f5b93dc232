package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"trafficwatch/internal/metrics"
)

const (
	keyPrefix  = "trafficwatch:rl:"
	userPrefix = "user:"
	ipPrefix   = "ip:"
)

// UserKey identifies an authenticated requester.
func UserKey(subject string) string { return userPrefix + subject }

// AddressKey identifies an anonymous requester.
func AddressKey(address string) string { return ipPrefix + address }

type Request struct {
	// Key is UserKey or AddressKey.
	Key    string
	Group  string
	Method string
}

func (r Request) authenticated() bool {
	return strings.HasPrefix(r.Key, userPrefix)
}

// Decision is the outcome for one request. A denial is a normal value.
type Decision struct {
	Allowed    bool
	Limit      int64
	Remaining  int64
	RetryAfter time.Duration
	Message    string
	// Exempt is set when the group does not count this method.
	Exempt bool
}

type Limiter struct {
	store  Store
	policy Policy
}

func NewLimiter(store Store, policy Policy) *Limiter {
	return &Limiter{store: store, policy: policy}
}

func (l *Limiter) Group(name string) (Group, bool) {
	group, ok := l.policy[name]
	return group, ok
}

// Decide increments the counter for (group, key) and admits the request
// when the post-increment count is within the limit. A failing store
// admits the request.
func (l *Limiter) Decide(ctx context.Context, req Request) (Decision, error) {
	group, ok := l.policy[req.Group]
	if !ok {
		return Decision{}, fmt.Errorf("%w: %q", ErrUnknownGroup, req.Group)
	}

	if !group.applies(req.Method) {
		return Decision{Allowed: true, Exempt: true}, nil
	}

	rate := group.rateFor(req.authenticated())
	key := keyPrefix + group.Name + ":" + req.Key

	count, resetIn, err := l.store.Increment(ctx, key, rate.Period)
	if err != nil {
		metrics.RateLimitStoreErrors.Inc()
		log.Error("Rate limit store failed, allowing request", "group", group.Name, "key", req.Key, "error", err)
		return Decision{Allowed: true, Limit: rate.Limit, Remaining: rate.Limit}, nil
	}

	decision := Decision{
		Allowed:   count <= rate.Limit,
		Limit:     rate.Limit,
		Remaining: max(rate.Limit-count, 0),
	}
	if decision.Allowed {
		metrics.RateLimitDecisions.WithLabelValues(group.Name, "allowed").Inc()
		return decision, nil
	}

	decision.RetryAfter = resetIn
	decision.Message = group.Message
	metrics.RateLimitDecisions.WithLabelValues(group.Name, "denied").Inc()
	log.Debug("Rate limit exceeded", "group", group.Name, "key", req.Key, "count", count, "limit", rate.Limit)
	return decision, nil
}
