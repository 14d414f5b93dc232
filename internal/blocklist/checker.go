// Package blocklist answers whether a client address is currently denied and
// applies operator block/unblock actions.
package blocklist

import (
	"context"

	"trafficwatch/internal/database"
)

// LookupFunc reports whether an active block exists for address.
type LookupFunc func(ctx context.Context, address string) (bool, error)

// Checker performs a point lookup per call. No results are cached, so a new
// block takes effect on the next request.
type Checker struct {
	lookup LookupFunc
}

func NewChecker() *Checker {
	return &Checker{lookup: database.IsAddressBlocked}
}

// NewCheckerWithLookup replaces the storage lookup.
func NewCheckerWithLookup(lookup LookupFunc) *Checker {
	return &Checker{lookup: lookup}
}

func (c *Checker) IsBlocked(ctx context.Context, address string) (bool, error) {
	if address == "" {
		return false, nil
	}
	return c.lookup(ctx, address)
}
