package proxy

import (
	"bufio"
	"io"
	"net/http"
	"strings"
)

// bridgeUpgrade handles a Connection: Upgrade request by dialing the
// upstream directly, writing the shaped request over the raw connection,
// and — if the upstream answers 101 with a matching Upgrade token —
// hijacking the client connection and splicing the two byte streams
// bidirectionally until either side closes. The HTTP layer never looks
// inside the upgraded stream: frames (WebSocket or otherwise) are not
// parsed or validated, only relayed.
func (e *Engine) bridgeUpgrade(w http.ResponseWriter, r *http.Request, outbound *http.Request, forwardAuthority string, insecure bool) {
	hijacker, ok := w.(http.Hijacker)
	if !ok {
		http.Error(w, "upgrade unsupported by this connection", http.StatusInternalServerError)
		return
	}

	backendConn, err := dialUpstream(outbound.URL.Scheme, forwardAuthority, insecure)
	if err != nil {
		http.Error(w, "bad gateway: cannot reach upstream", http.StatusBadGateway)
		return
	}
	defer backendConn.Close()

	if err := outbound.Write(backendConn); err != nil {
		http.Error(w, "bad gateway: upstream write failed", http.StatusBadGateway)
		return
	}

	br := bufio.NewReader(backendConn)
	resp, err := http.ReadResponse(br, outbound)
	if err != nil {
		http.Error(w, "bad gateway: upstream did not respond", http.StatusBadGateway)
		return
	}

	reqUpgrade := r.Header.Get("Upgrade")
	respUpgrade := resp.Header.Get("Upgrade")
	if resp.StatusCode != http.StatusSwitchingProtocols || reqUpgrade == "" || !strings.EqualFold(reqUpgrade, respUpgrade) {
		// Upstream declined the upgrade: relay its response verbatim as a
		// normal (non-upgraded) response.
		for k, vv := range resp.Header {
			for _, v := range vv {
				w.Header().Add(k, v)
			}
		}
		w.WriteHeader(resp.StatusCode)
		io.Copy(w, resp.Body)
		resp.Body.Close()
		return
	}

	clientConn, clientBuf, err := hijacker.Hijack()
	if err != nil {
		return
	}
	defer clientConn.Close()

	clientConn.Write([]byte("HTTP/1.1 101 Switching Protocols\r\n"))
	resp.Header.Write(clientConn)
	clientConn.Write([]byte("\r\n"))

	// Any bytes the client already sent past its own request headers live
	// in clientBuf's reader; any bytes the backend already sent past its
	// response headers live in br. Splice from those buffered readers,
	// not the raw conns, so nothing already read is lost.
	done := make(chan struct{}, 2)
	go func() {
		io.Copy(backendConn, clientBuf)
		done <- struct{}{}
	}()
	go func() {
		io.Copy(clientConn, br)
		done <- struct{}{}
	}()
	<-done
}
