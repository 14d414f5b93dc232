// Package ratelimit decides whether a requester may proceed under the
// per-group fixed-window ceilings.
package ratelimit

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Rate is a request ceiling per period, written as "<count>/<unit>" where
// unit is s, m, h or d (e.g. "5/m").
type Rate struct {
	Limit  int64
	Period time.Duration
}

func ParseRate(raw string) (Rate, error) {
	count, unit, ok := strings.Cut(strings.TrimSpace(raw), "/")
	if !ok {
		return Rate{}, fmt.Errorf("ratelimit: rate %q must look like <count>/<unit>", raw)
	}

	limit, err := strconv.ParseInt(strings.TrimSpace(count), 10, 64)
	if err != nil || limit < 0 {
		return Rate{}, fmt.Errorf("ratelimit: invalid count in rate %q", raw)
	}

	var period time.Duration
	switch strings.ToLower(strings.TrimSpace(unit)) {
	case "s", "sec", "second":
		period = time.Second
	case "m", "min", "minute":
		period = time.Minute
	case "h", "hour":
		period = time.Hour
	case "d", "day":
		period = 24 * time.Hour
	default:
		return Rate{}, fmt.Errorf("ratelimit: invalid unit in rate %q", raw)
	}

	return Rate{Limit: limit, Period: period}, nil
}

func (r Rate) String() string {
	switch r.Period {
	case time.Second:
		return fmt.Sprintf("%d/s", r.Limit)
	case time.Minute:
		return fmt.Sprintf("%d/m", r.Limit)
	case time.Hour:
		return fmt.Sprintf("%d/h", r.Limit)
	case 24 * time.Hour:
		return fmt.Sprintf("%d/d", r.Limit)
	}
	return fmt.Sprintf("%d/%s", r.Limit, r.Period)
}
