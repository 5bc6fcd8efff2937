package authgate

import (
	"encoding/base64"
	"net/http"
	"strings"
	"time"

	"github.com/nicolaspernoud/atrium-go/internal/config"
	"github.com/nicolaspernoud/atrium-go/internal/users"
)

// Outcome tags the result of Evaluate.
type Outcome int

const (
	// Allow means the request may proceed to the handler.
	Allow Outcome = iota
	// Unauthorized means no valid token was present; the handler decides
	// how to challenge (redirect for Proxy/Static, WWW-Authenticate for DAV).
	Unauthorized
	// Forbidden means a token was present but its roles or share
	// constraint don't cover this service/path.
	Forbidden
)

// Gate evaluates requests against a ServiceBinding and issues/validates
// the session tokens that back that decision.
type Gate struct {
	Sealer *Sealer
	Users  *users.Table
}

// New builds a Gate from a config snapshot.
func New(snap *config.Snapshot) (*Gate, error) {
	sealer, err := NewSealer(snap.CookieKey)
	if err != nil {
		return nil, err
	}
	return &Gate{Sealer: sealer, Users: users.NewTable(snap.Users)}, nil
}

// Evaluate applies §4.2's policy: unsecured services always allow; secured
// services require a present, unexpired token whose roles intersect the
// service's, and whose share constraint (if any) matches hostname/path.
func (g *Gate) Evaluate(binding *config.ServiceBinding, token *config.SessionToken, hostname, path string) Outcome {
	if !binding.Secured {
		return Allow
	}
	if token == nil {
		return Unauthorized
	}
	if time.Now().Unix() >= token.Expires {
		return Unauthorized
	}
	if !binding.RolesIntersect(token.Roles) {
		return Forbidden
	}
	if token.Share != nil {
		if token.Share.Hostname != hostname || token.Share.Path != path {
			return Forbidden
		}
	}
	return Allow
}

// ExtractToken implements the three-transport lookup from §4.2: encrypted
// cookie + XSRF header, a token= query parameter (tried as ATRIUM_AUTH
// then as a share token), and HTTP Basic (cookie payload as password, or
// real credentials re-authenticated against the user table).
func (g *Gate) ExtractToken(r *http.Request, requireXSRF bool) *config.SessionToken {
	if tok := g.fromCookie(r, requireXSRF); tok != nil {
		return tok
	}
	if v := r.URL.Query().Get("token"); v != "" {
		if tok, err := g.Sealer.Open(v); err == nil {
			return tok
		}
	}
	if tok := g.fromBasic(r); tok != nil {
		return tok
	}
	return nil
}

func (g *Gate) fromCookie(r *http.Request, requireXSRF bool) *config.SessionToken {
	c, err := r.Cookie(AuthCookieName)
	if err != nil {
		return nil
	}
	tok, err := g.Sealer.Open(c.Value)
	if err != nil {
		return nil
	}
	if requireXSRF && tok.XSRFToken != r.Header.Get(XSRFHeaderName) {
		return nil
	}
	return tok
}

func (g *Gate) fromBasic(r *http.Request) *config.SessionToken {
	authz := r.Header.Get("Authorization")
	if !strings.HasPrefix(authz, "Basic ") {
		return nil
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(authz, "Basic "))
	if err != nil {
		return nil
	}
	login, password, ok := strings.Cut(string(raw), ":")
	if !ok {
		return nil
	}
	if tok, err := g.Sealer.Open(password); err == nil {
		return tok
	}
	u, ok := g.Users.Authenticate(login, password)
	if !ok {
		return nil
	}
	xsrf, err := NewXSRFToken()
	if err != nil {
		return nil
	}
	return &config.SessionToken{
		Login:     u.Login,
		Roles:     u.Roles,
		XSRFToken: xsrf,
		Expires:   time.Now().Add(24 * time.Hour).Unix(),
		Info:      u.Info,
	}
}

// HandlerKind selects which response shape Challenge writes.
type HandlerKind int

const (
	HandlerProxy HandlerKind = iota
	HandlerStatic
	HandlerDAV
)

// Challenge emits the outcome-appropriate response per §4.2.
func Challenge(w http.ResponseWriter, kind HandlerKind, outcome Outcome, scheme, hostname string) {
	switch kind {
	case HandlerDAV:
		if outcome == Unauthorized {
			w.Header().Set("WWW-Authenticate", `Basic realm="server"`)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusForbidden)
	default: // Proxy, Static
		if outcome == Unauthorized {
			SetRedirectCookie(w, scheme, hostname)
			w.Header().Set("Location", loginURL(scheme, hostname))
			w.WriteHeader(http.StatusFound)
			return
		}
		w.WriteHeader(http.StatusForbidden)
	}
}

func loginURL(scheme, hostname string) string {
	return scheme + "://" + hostname + "/"
}
