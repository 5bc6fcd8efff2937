package headers

import (
	"net/http"
	"strings"
)

// InjectSecurity sets the fixed security header set on a response, naming
// hostname as the CSP's frame-ancestors source. Unlike a console-facing
// app with a CDN whitelist, a proxied backend only needs framing scoped to
// the gateway itself.
func InjectSecurity(h http.Header, hostname string, secure bool) {
	h.Set("X-XSS-Protection", "1; mode=block")
	h.Set("Referrer-Policy", "no-referrer")
	h.Set("X-Content-Type-Options", "nosniff")
	if secure {
		h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
	}
	mergeCSP(h, hostname)
}

// mergeCSP merges frame-ancestors <hostname> into an existing CSP, or
// emits a default CSP naming hostname as script/style/frame source when
// none is present yet.
func mergeCSP(h http.Header, hostname string) {
	existing := h.Get("Content-Security-Policy")
	if existing == "" {
		h.Set("Content-Security-Policy", defaultCSP(hostname))
		return
	}
	directives := strings.Split(existing, ";")
	found := false
	for i, d := range directives {
		d = strings.TrimSpace(d)
		if strings.HasPrefix(d, "frame-ancestors") {
			directives[i] = "frame-ancestors " + hostname
			found = true
			break
		}
	}
	if !found {
		directives = append(directives, " frame-ancestors "+hostname)
	}
	h.Set("Content-Security-Policy", strings.Join(directives, ";"))
}

func defaultCSP(hostname string) string {
	return "default-src 'self'; " +
		"script-src 'self' " + hostname + "; " +
		"style-src 'self' " + hostname + "; " +
		"frame-ancestors " + hostname
}
