package dav

import (
	"net/http"

	"golang.org/x/net/webdav"

	"github.com/nicolaspernoud/atrium-go/internal/headers"
)

// Handler serves the full DAV verb set over a single directory tree.
// GET/HEAD and the write verbs are implemented directly against the
// filesystem for precise status-code control; PROPFIND, PROPPATCH, LOCK,
// and UNLOCK are delegated to an embedded golang.org/x/net/webdav.Handler.
type Handler struct {
	Root          string
	Key           []byte
	AllowSymlinks bool
	Writable      bool

	fs *FS
	wd *webdav.Handler
}

// NewHandler builds a Handler rooted at dir. A nil key serves the
// directory unencrypted.
func NewHandler(dir string, key []byte, allowSymlinks, writable bool) *Handler {
	fs := &FS{Root: dir, Key: key, AllowSymlinks: allowSymlinks}
	return &Handler{
		Root:          dir,
		Key:           key,
		AllowSymlinks: allowSymlinks,
		Writable:      writable,
		fs:            fs,
		wd: &webdav.Handler{
			FileSystem: fs,
			LockSystem: newLockSystem(),
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet, http.MethodHead:
		h.handleGet(w, r)
	case http.MethodPut:
		h.handlePut(w, r)
	case http.MethodDelete:
		h.handleDelete(w, r)
	case "MKCOL":
		h.handleMkcol(w, r)
	case "COPY":
		h.handleCopy(w, r)
	case "MOVE":
		h.handleMove(w, r)
	case http.MethodOptions:
		h.handleOptions(w, r)
	default:
		// PROPFIND, PROPPATCH, LOCK, UNLOCK.
		h.wd.ServeHTTP(w, r)
	}
}

func (h *Handler) handleOptions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("DAV", "1,2")
	w.Header().Set("Allow", "GET,HEAD,PUT,OPTIONS,DELETE,PROPFIND,COPY,MOVE")
	headers.InjectCORS(w.Header(), r.Header.Get("Origin"), r.Host)
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) resolve(name string) (string, error) {
	return resolve(h.Root, name, h.AllowSymlinks)
}
