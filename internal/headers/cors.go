package headers

import "net/http"

// davMethods is the verb set the DAV server speaks; CORS must always
// advertise it regardless of which handler kind serves a given vhost, so
// cross-origin DAV clients (browser-based file managers) don't need a
// second preflight to discover it.
const davMethods = "GET, HEAD, PUT, DELETE, OPTIONS, PROPFIND, PROPPATCH, MKCOL, COPY, MOVE, LOCK, UNLOCK"

const davRequestHeaders = "Depth, Destination, Overwrite, X-OC-Mtime, Content-Type, Authorization, XSRF-TOKEN"

// InjectCORS reflects Origin (or hostname when Origin is absent) and
// advertises the DAV verb/header sets. OPTIONS requests should be
// short-circuited to 200 by the caller after calling this.
func InjectCORS(h http.Header, origin, hostname string) {
	if origin == "" {
		origin = hostname
	}
	h.Set("Access-Control-Allow-Origin", origin)
	h.Set("Access-Control-Allow-Methods", davMethods)
	h.Set("Access-Control-Allow-Headers", davRequestHeaders)
	h.Set("Access-Control-Allow-Credentials", "true")
}

// IsPreflight reports whether r is a CORS preflight request.
func IsPreflight(r *http.Request) bool {
	return r.Method == http.MethodOptions
}
