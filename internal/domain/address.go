package domain

import (
	"net/netip"
	"strings"
)

// NormalizeAddress parses raw as an IPv4 or IPv6 literal and returns its
// canonical text form. IPv4-mapped IPv6 addresses are unmapped and zones are
// rejected. The second result reports whether raw was a valid literal.
func NormalizeAddress(raw string) (string, bool) {
	addr, err := netip.ParseAddr(strings.TrimSpace(raw))
	if err != nil || addr.Zone() != "" {
		return "", false
	}
	return addr.Unmap().String(), true
}

// IsPublicAddress reports whether raw is a valid address that could be
// resolved by an external geolocation service.
func IsPublicAddress(raw string) bool {
	addr, err := netip.ParseAddr(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	switch {
	case addr.IsPrivate(),
		addr.IsLoopback(),
		addr.IsLinkLocalUnicast(),
		addr.IsLinkLocalMulticast(),
		addr.IsInterfaceLocalMulticast(),
		addr.IsMulticast(),
		addr.IsUnspecified():
		return false
	}
	return true
}
