package api

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/fmpfmp/mediaforge/pkg/storage"
)

// blockedNetworks contains IP ranges remote inputs must not reach.
var blockedNetworks = []string{
	"127.0.0.0/8",    // Localhost
	"10.0.0.0/8",     // Private network
	"172.16.0.0/12",  // Private network
	"192.168.0.0/16", // Private network
	"169.254.0.0/16", // Link-local (cloud metadata services)
}

var allowedSchemes = map[string]bool{
	"":      true, // plain path
	"file":  true,
	"http":  true,
	"https": true,
	"s3":    true,
}

// validateURI rejects URIs with unknown schemes, and runs SSRF checks on
// http(s) ones before the staging layer ever dials them.
func validateURI(uri string) error {
	scheme := storage.Scheme(uri)
	if !allowedSchemes[scheme] {
		return fmt.Errorf("scheme %q not allowed", scheme)
	}
	if scheme == "http" || scheme == "https" {
		return validateHTTPURI(uri)
	}
	return nil
}

// validateHTTPURI refuses http(s) URIs whose host resolves into a blocked
// network range.
func validateHTTPURI(uri string) error {
	parsed, err := url.Parse(uri)
	if err != nil {
		return fmt.Errorf("invalid URI: %w", err)
	}

	hostname := parsed.Hostname()

	ips, err := net.LookupIP(hostname)
	if err != nil {
		return fmt.Errorf("failed to resolve hostname: %w", err)
	}

	for _, ip := range ips {
		if isBlockedIP(ip.String()) {
			return fmt.Errorf("access denied: %s resolves to %s (%s)", hostname, ip, blockReason(ip.String()))
		}
	}

	return nil
}

// isBlockedIP checks if an IP address is in a blocked network range
func isBlockedIP(ipStr string) bool {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}

	for _, cidr := range blockedNetworks {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			continue
		}
		if network.Contains(ip) {
			return true
		}
	}

	return false
}

func blockReason(ipStr string) string {
	ip := net.ParseIP(ipStr)
	switch {
	case ip == nil:
		return "invalid IP"
	case ip.IsLoopback():
		return "localhost access not allowed"
	case strings.HasPrefix(ipStr, "169.254."):
		return "link-local access not allowed"
	default:
		return "private network access not allowed"
	}
}
