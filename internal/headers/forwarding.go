package headers

import (
	"net/http"
	"strings"
)

// InjectForwarding sets X-Forwarded-Host/Proto/For on req, the outgoing
// request to an upstream, when that upstream is addressed by an authority
// carrying an explicit port (the internal-service heuristic from §4.3).
// forwardAuthority only gates whether injection happens; the header values
// are the public-facing appAuthority/appScheme, never the upstream leg.
func InjectForwarding(req *http.Request, forwardAuthority, appAuthority, appScheme, clientIP string) {
	if !strings.Contains(forwardAuthority, ":") {
		return
	}
	req.Header.Set("X-Forwarded-Host", appAuthority)
	req.Header.Set("X-Forwarded-Proto", appScheme)
	if existing := req.Header.Get("X-Forwarded-For"); existing != "" {
		req.Header.Set("X-Forwarded-For", existing+", "+clientIP)
	} else {
		req.Header.Set("X-Forwarded-For", clientIP)
	}
}

// PropagateTETrailers sets TE: trailers on the outgoing request when the
// incoming TE header named the trailers token.
func PropagateTETrailers(incoming, outgoing http.Header) {
	if HasToken(incoming.Get("TE"), "trailers") {
		outgoing.Set("TE", "trailers")
	}
}

// PropagateUpgrade re-inserts Connection/Upgrade on the outgoing request
// when the incoming Connection header named "upgrade" and Upgrade names a
// protocol. Header Shaper runs this before StripHopByHop would otherwise
// remove both headers.
func PropagateUpgrade(incoming, outgoing http.Header) {
	if !HasToken(incoming.Get("Connection"), "upgrade") {
		return
	}
	proto := incoming.Get("Upgrade")
	if proto == "" {
		return
	}
	outgoing.Set("Connection", "UPGRADE")
	outgoing.Set("Upgrade", proto)
}

// RemoteUserHeader is the header carrying the authenticated user's e-mail
// to upstreams that opt into forward_user_mail.
const RemoteUserHeader = "Remote-User"

// ShapeRemoteUser unconditionally strips any incoming Remote-User header
// from req (preventing client spoofing) and re-inserts it only when
// forwardUserMail is true and email is non-empty.
func ShapeRemoteUser(req *http.Request, forwardUserMail bool, email string) {
	req.Header.Del(RemoteUserHeader)
	if forwardUserMail && email != "" {
		req.Header.Set(RemoteUserHeader, email)
	}
}

// ScrubAuthCookie removes the named auth cookie from the Cookie header
// before forwarding to an upstream, unless singleProxy mode is active (the
// one configuration where the upstream is meant to see it).
func ScrubAuthCookie(req *http.Request, cookieName string, singleProxy bool) {
	if singleProxy {
		return
	}
	cookies := req.Cookies()
	req.Header.Del("Cookie")
	var kept []string
	for _, c := range cookies {
		if c.Name == cookieName {
			continue
		}
		kept = append(kept, c.Name+"="+c.Value)
	}
	if len(kept) > 0 {
		req.Header.Set("Cookie", strings.Join(kept, "; "))
	}
}
