// Package static implements the Static Server component: serving files
// from a single directory bound to a virtual host.
package static

import (
	"net/http"
	"strings"
)

// Handler serves Root as a read-only file tree, the same way the teacher
// serves its web console assets, but scoped to one configured directory
// per virtual host instead of a single embedded filesystem.
type Handler struct {
	root       http.Dir
	fileServer http.Handler
}

// NewHandler roots a Handler at dir.
func NewHandler(dir string) *Handler {
	return &Handler{root: http.Dir(dir), fileServer: http.FileServer(http.Dir(dir))}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet, http.MethodHead:
		// http.FileServer answers ".../index.html" with a redirect to the
		// directory; an existing index.html is served directly instead.
		if strings.HasSuffix(r.URL.Path, "/index.html") {
			if f, err := h.root.Open(r.URL.Path); err == nil {
				defer f.Close()
				if st, err := f.Stat(); err == nil && !st.IsDir() {
					http.ServeContent(w, r, st.Name(), st.ModTime(), f)
					return
				}
			}
		}
		h.fileServer.ServeHTTP(w, r)
	default:
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}
