package proxy

import (
	"net"
	"net/url"
	"strings"
)

// rewriteLocation rewrites a redirect Location header that points back at
// the upstream (forwardAuthority) so it instead points at the public
// scheme+authority the client knows the service by, keeping path/query
// intact. The match is substring containment of the upstream's bare host
// in the location's host — not equality — matching the original's
// `location_host.contains(forward_authority.host())`: a redirect to a
// host that merely contains the upstream's host (e.g. a spoofed
// "evil.localhost" redirect when the upstream is "localhost") still gets
// rewritten. Relative locations and locations whose host does not contain
// the upstream host are passed through unchanged. ok is false only when
// loc fails to parse as a URL reference.
func rewriteLocation(loc, forwardAuthority, appScheme, appAuthority string) (string, bool) {
	u, err := url.Parse(loc)
	if err != nil {
		return "", false
	}
	if u.Host == "" {
		return loc, true
	}
	if !containsHost(u.Host, forwardAuthority) {
		return loc, true
	}
	u.Scheme = strings.ToLower(appScheme)
	u.Host = appAuthority
	return u.String(), true
}

// containsHost reports whether locationHost contains upstreamAuthority's
// bare host (port stripped), the way the original strips the upstream
// authority down to its host before the containment check.
func containsHost(locationHost, upstreamAuthority string) bool {
	uh, _, err := net.SplitHostPort(upstreamAuthority)
	if err != nil {
		uh = upstreamAuthority
	}
	lh, _, err := net.SplitHostPort(locationHost)
	if err != nil {
		lh = locationHost
	}
	return strings.Contains(strings.ToLower(lh), strings.ToLower(uh))
}
