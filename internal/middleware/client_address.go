package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	"trafficwatch/internal/domain"
)

type addressKey struct{}

// ClientAddress derives the requester address: the first X-Forwarded-For
// entry when it is a valid IP literal, otherwise the host of RemoteAddr.
// The forwarded header is trusted as-is unless ignoreForwarded is set.
func ClientAddress(r *http.Request, ignoreForwarded bool) string {
	if !ignoreForwarded {
		if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
			first, _, _ := strings.Cut(forwarded, ",")
			if address, ok := domain.NormalizeAddress(first); ok {
				return address
			}
		}
	}

	host := remoteHost(r.RemoteAddr)
	if address, ok := domain.NormalizeAddress(host); ok {
		return address
	}
	return host
}

func remoteHost(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return strings.TrimSpace(remoteAddr)
	}
	return host
}

func WithClientAddress(ctx context.Context, address string) context.Context {
	return context.WithValue(ctx, addressKey{}, address)
}

// ClientAddressFromContext returns the address stored by the interceptor.
func ClientAddressFromContext(ctx context.Context) (string, bool) {
	address, ok := ctx.Value(addressKey{}).(string)
	return address, ok && address != ""
}
