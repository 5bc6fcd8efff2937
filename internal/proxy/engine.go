// Package proxy implements the Proxy Engine: an HTTP/1.1 reverse proxy
// with protocol-upgrade bridging and response redirect-location rewriting.
package proxy

import (
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/nicolaspernoud/atrium-go/internal/config"
	"github.com/nicolaspernoud/atrium-go/internal/headers"
)

// Engine dispatches proxied requests through one of two client pools: one
// verifying upstream TLS with the system trust store, one that skips
// verification. Keeping both fixed per-process (rather than building a
// transport per request) lets them own persistent connection pools.
type Engine struct {
	Verifying *http.Client
	Insecure  *http.Client
}

// NewEngine builds both client pools with HTTP/1.1 forced on the upstream
// leg, per the fixed-compatibility non-goal.
func NewEngine() *Engine {
	base := func(tlsConfig *tls.Config) *http.Client {
		return &http.Client{
			Transport: &http.Transport{
				TLSClientConfig:     tlsConfig,
				ForceAttemptHTTP2:   false,
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
			// The proxy itself decides how to handle redirects (location
			// rewriting); the client must not silently follow them.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}
	}
	return &Engine{
		Verifying: base(nil),
		Insecure:  base(&tls.Config{InsecureSkipVerify: true}),
	}
}

// clientFor returns the insecure pool when insecure is true and the
// verifying pool otherwise. No config field sets insecure: the dispatcher
// always passes false, so every upstream goes through the verifying pool.
func (e *Engine) clientFor(insecure bool) *http.Client {
	if insecure {
		return e.Insecure
	}
	return e.Verifying
}

// ServeHTTP proxies r to the upstream named by binding, shaping headers
// per §4.3 and handling upgrade/redirect post-processing per §4.4.
func (e *Engine) ServeHTTP(w http.ResponseWriter, r *http.Request, binding *config.ServiceBinding, clientIP string, singleProxy, insecureUpstream bool) {
	app := binding.App
	outbound := r.Clone(r.Context())
	outbound.Header = r.Header.Clone()

	headers.StripHopByHop(outbound.Header)
	headers.PropagateTETrailers(r.Header, outbound.Header)
	headers.PropagateUpgrade(r.Header, outbound.Header)
	headers.InjectForwarding(outbound, binding.ForwardAuthority, binding.AppAuthority, binding.AppScheme, clientIP)
	headers.ScrubAuthCookie(outbound, "ATRIUM_AUTH", singleProxy)

	if app.Login != "" && app.Password != "" {
		outbound.SetBasicAuth(app.Login, app.Password)
	}

	outbound.URL.Scheme = binding.ForwardScheme
	outbound.URL.Host = binding.ForwardAuthority
	outbound.Host = binding.ForwardAuthority
	outbound.RequestURI = ""
	outbound.Proto = "HTTP/1.1"
	outbound.ProtoMajor = 1
	outbound.ProtoMinor = 1

	if isUpgrade(r) {
		e.bridgeUpgrade(w, r, outbound, binding.ForwardAuthority, insecureUpstream)
		return
	}

	resp, err := e.clientFor(insecureUpstream).Do(outbound)
	if err != nil {
		if isTLSError(err) {
			http.Error(w, "bad gateway: upstream TLS error", http.StatusBadGateway)
			return
		}
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	defer resp.Body.Close()

	headers.StripHopByHop(resp.Header)
	if loc := resp.Header.Get("Location"); loc != "" {
		rewritten, ok := rewriteLocation(loc, binding.ForwardAuthority, binding.AppScheme, binding.AppAuthority)
		if !ok {
			http.Error(w, "bad gateway: malformed redirect location", http.StatusBadGateway)
			return
		}
		resp.Header.Set("Location", rewritten)
	}

	for k, vv := range resp.Header {
		for _, v := range vv {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	io.Copy(w, resp.Body)
}

func isUpgrade(r *http.Request) bool {
	return headers.HasToken(r.Header.Get("Connection"), "upgrade") && r.Header.Get("Upgrade") != ""
}

func isTLSError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "tls:") || strings.Contains(msg, "certificate") || strings.Contains(msg, "x509:")
}

// dialUpstream opens a raw connection to authority, establishing TLS when
// scheme is https.
func dialUpstream(scheme, authority string, insecure bool) (net.Conn, error) {
	if scheme != "https" {
		return net.DialTimeout("tcp", authority, 10*time.Second)
	}
	return tls.DialWithDialer(&net.Dialer{Timeout: 10 * time.Second}, "tcp", authority, &tls.Config{InsecureSkipVerify: insecure})
}
