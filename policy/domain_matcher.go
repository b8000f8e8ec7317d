package policy

import (
	"net"
	"strings"
)

// DomainMatcher checks hostnames against an exact+wildcard domain list.
type DomainMatcher struct {
	hosts         map[string]bool
	wildcardHosts []string // suffix patterns: ".github.com"
}

// NewDomainMatcher creates a DomainMatcher for the given domain list.
// Domains may include wildcard prefixes (e.g. "*.github.com") which match any subdomain.
func NewDomainMatcher(domains []string) *DomainMatcher {
	hosts := make(map[string]bool, len(domains))
	var wildcards []string
	for _, d := range domains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d == "" {
			continue
		}
		if strings.HasPrefix(d, "*.") {
			// *.github.com -> suffix ".github.com"
			wildcards = append(wildcards, d[1:])
		} else {
			hosts[d] = true
		}
	}

	return &DomainMatcher{
		hosts:         hosts,
		wildcardHosts: wildcards,
	}
}

// Matches checks if a host is in the list.
// Exact match is checked first, then wildcard suffix.
func (m *DomainMatcher) Matches(host string) bool {
	host = NormalizeHost(host)
	if host == "" {
		return false
	}
	if m.hosts[host] {
		return true
	}
	// Wildcard suffix match: *.github.com matches api.github.com
	for _, suffix := range m.wildcardHosts {
		if strings.HasSuffix(host, suffix) {
			return true
		}
	}
	return false
}

// NormalizeHost lower-cases host and strips a port and trailing dot.
func NormalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.Trim(host, "[]")
	return strings.TrimSuffix(host, ".")
}

// IsLocalhost returns true for loopback addresses.
func IsLocalhost(host string) bool {
	host = NormalizeHost(host)
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
