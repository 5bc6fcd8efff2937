// Package headers implements the Header Shaper: hop-by-hop stripping,
// forwarding header injection, security and CORS header injection, and the
// Remote-User anti-spoofing rule.
package headers

import (
	"net/http"
	"strings"
)

// hopByHop lists headers meaningful only for one transport hop and that
// must never be relayed to the other side.
var hopByHop = []string{
	"Connection",
	"Te",
	"Trailer",
	"Keep-Alive",
	"Proxy-Connection",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Transfer-Encoding",
	"Upgrade",
}

// StripHopByHop removes the fixed hop-by-hop set plus any header named in
// a comma-separated Connection header value, on either a request or a
// response's header map.
func StripHopByHop(h http.Header) {
	if conn := h.Get("Connection"); conn != "" {
		for _, name := range strings.Split(conn, ",") {
			name = strings.TrimSpace(name)
			if name != "" {
				h.Del(name)
			}
		}
	}
	for _, name := range hopByHop {
		h.Del(name)
	}
}

// HasToken reports whether value contains token as one of its
// comma-separated, case-insensitively compared entries.
func HasToken(value, token string) bool {
	for _, part := range strings.Split(value, ",") {
		if strings.EqualFold(strings.TrimSpace(part), token) {
			return true
		}
	}
	return false
}
