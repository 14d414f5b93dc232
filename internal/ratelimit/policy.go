package ratelimit

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"trafficwatch/internal/config"
)

const DefaultMessage = "Rate limit exceeded. Please try again later."

var ErrUnknownGroup = errors.New("ratelimit: unknown group")

type Group struct {
	Name string
	// Methods limits counting to these methods. Empty means every method.
	Methods       map[string]struct{}
	Authenticated Rate
	Anonymous     Rate
	Message       string
}

func (g Group) applies(method string) bool {
	if len(g.Methods) == 0 {
		return true
	}
	_, ok := g.Methods[strings.ToUpper(method)]
	return ok
}

func (g Group) rateFor(authenticated bool) Rate {
	if authenticated {
		return g.Authenticated
	}
	return g.Anonymous
}

type Policy map[string]Group

// PolicyFromConfig validates and converts the configured groups.
func PolicyFromConfig(groups map[string]config.RateGroup) (Policy, error) {
	policy := make(Policy, len(groups))

	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs []error
	for _, name := range names {
		raw := groups[name]

		authenticated, err := ParseRate(raw.Authenticated)
		if err != nil {
			errs = append(errs, fmt.Errorf("group %s authenticated: %w", name, err))
			continue
		}
		anonymous, err := ParseRate(raw.Anonymous)
		if err != nil {
			errs = append(errs, fmt.Errorf("group %s anonymous: %w", name, err))
			continue
		}

		group := Group{
			Name:          name,
			Authenticated: authenticated,
			Anonymous:     anonymous,
			Message:       raw.Message,
		}
		if group.Message == "" {
			group.Message = DefaultMessage
		}
		if len(raw.Methods) > 0 {
			group.Methods = make(map[string]struct{}, len(raw.Methods))
			for _, method := range raw.Methods {
				group.Methods[strings.ToUpper(strings.TrimSpace(method))] = struct{}{}
			}
		}

		policy[name] = group
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return policy, nil
}

// DefaultPolicy is the login and geo-test policy shipped in the default settings.
func DefaultPolicy() Policy {
	minute := func(n int64) Rate { return Rate{Limit: n, Period: time.Minute} }
	return Policy{
		"login": {
			Name:          "login",
			Methods:       map[string]struct{}{http.MethodPost: {}},
			Authenticated: minute(10),
			Anonymous:     minute(5),
			Message:       "Too many login attempts. Please try again later.",
		},
		"geo-test": {
			Name:          "geo-test",
			Authenticated: minute(10),
			Anonymous:     minute(5),
			Message:       DefaultMessage,
		},
	}
}
