// Package dispatch implements the Dispatcher: virtual-host lookup,
// handler selection, and the Auth Gate / Header Shaper wiring common to
// all three service kinds.
package dispatch

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/nicolaspernoud/atrium-go/internal/authgate"
	"github.com/nicolaspernoud/atrium-go/internal/config"
	"github.com/nicolaspernoud/atrium-go/internal/dav"
	"github.com/nicolaspernoud/atrium-go/internal/headers"
	"github.com/nicolaspernoud/atrium-go/internal/hostresolve"
	"github.com/nicolaspernoud/atrium-go/internal/logging"
	"github.com/nicolaspernoud/atrium-go/internal/proxy"
	"github.com/nicolaspernoud/atrium-go/internal/static"
)

// Dispatcher resolves each request's virtual host against the live config
// snapshot, runs the Auth Gate, and routes to the handler matching the
// service's kind. Unknown hosts fall through to next (the administrative
// front-end, out of scope for this module).
type Dispatcher struct {
	store        *config.Store
	engine       *proxy.Engine
	next         http.Handler
	loginLimiter *authgate.LoginLimiter
}

// New builds a Dispatcher reading config from store and falling back to
// next for hosts with no bound service.
func New(store *config.Store, next http.Handler) *Dispatcher {
	return &Dispatcher{
		store:        store,
		engine:       proxy.NewEngine(),
		next:         next,
		loginLimiter: authgate.NewLoginLimiter(authgate.DefaultLoginRate, authgate.DefaultLoginBurst),
	}
}

func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	snap := d.store.Get()

	authority, err := hostresolve.Resolve(r)
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	hostname := hostresolve.Hostname(authority)

	binding, ok := snap.Services[hostname]
	if !ok {
		d.next.ServeHTTP(w, r)
		return
	}

	kind := handlerKindFor(binding.Kind)

	if carriesCredentials(r) && !d.loginLimiter.Allow(authgate.ClientIP(r)) {
		http.Error(w, "too many attempts", http.StatusTooManyRequests)
		return
	}

	gate, err := authgate.New(snap)
	if err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	requireXSRF := kind != authgate.HandlerDAV
	token := gate.ExtractToken(r, requireXSRF)
	outcome := gate.Evaluate(binding, token, hostname, r.URL.Path)
	if outcome != authgate.Allow {
		scheme := schemeFor(snap)
		authgate.Challenge(w, kind, outcome, scheme, hostname)
		logging.AuthFailure(loginOf(token), r.RemoteAddr, outcomeReason(outcome))
		return
	}

	rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

	if binding.InjectSecurityHeaders {
		headers.InjectSecurity(rw.Header(), hostname, schemeFor(snap) == "https")
	}
	if snap.DebugMode {
		headers.InjectCORS(rw.Header(), r.Header.Get("Origin"), hostname)
	}

	var email string
	if token != nil && token.Info != nil {
		email = token.Info.Email
	}

	switch binding.Kind {
	case config.KindReverseApp:
		headers.ShapeRemoteUser(r, binding.App.ForwardUserMail, email)
		d.engine.ServeHTTP(rw, r, binding, authgate.ClientIP(r), snap.SingleProxy, false)
	case config.KindStaticApp:
		static.NewHandler(binding.App.Directory).ServeHTTP(rw, r)
	case config.KindDav:
		dav.NewHandler(binding.Dav.Directory, binding.Dav.Key, binding.Dav.AllowSymlinks, binding.Dav.Writable).ServeHTTP(rw, r)
	default:
		http.NotFound(rw, r)
	}

	logging.Request(r, rw.status, start)
}

func handlerKindFor(k config.ServiceKind) authgate.HandlerKind {
	switch k {
	case config.KindDav:
		return authgate.HandlerDAV
	case config.KindStaticApp:
		return authgate.HandlerStatic
	default:
		return authgate.HandlerProxy
	}
}

func schemeFor(snap *config.Snapshot) string {
	if snap.TLSMode == config.TLSNo {
		return "http"
	}
	return "https"
}

// carriesCredentials reports whether r is itself an authentication
// attempt (Basic auth, or a token query parameter), as opposed to a
// plain cookie-bearing request, so the login limiter only throttles
// genuine credential submissions.
func carriesCredentials(r *http.Request) bool {
	if r.Header.Get("Authorization") != "" {
		return true
	}
	return r.URL.Query().Get("token") != ""
}

func loginOf(tok *config.SessionToken) string {
	if tok == nil {
		return ""
	}
	return tok.Login
}

func outcomeReason(o authgate.Outcome) string {
	if o == authgate.Forbidden {
		return "forbidden"
	}
	return "unauthorized"
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Hijack delegates to the underlying ResponseWriter so the upgrade bridge
// (internal/proxy) can still take over the connection through a
// statusRecorder wrapper.
func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("dispatch: underlying ResponseWriter does not support hijacking")
	}
	return hj.Hijack()
}
