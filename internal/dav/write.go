package dav

import (
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/nicolaspernoud/atrium-go/internal/cryptfile"
)

func (h *Handler) handlePut(w http.ResponseWriter, r *http.Request) {
	if !h.Writable {
		http.Error(w, "read-only", http.StatusForbidden)
		return
	}
	full, err := h.resolve(r.URL.Path)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	existed := false
	if _, err := os.Stat(full); err == nil {
		existed = true
	}
	cf, err := cryptfile.Create(full, h.Key)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	defer cf.Close()
	if _, err := cf.CopyFrom(r.Body); err != nil {
		http.Error(w, "write failed", http.StatusInternalServerError)
		return
	}
	if v := r.Header.Get("X-OC-Mtime"); v != "" {
		if sec, err := strconv.ParseInt(v, 10, 64); err == nil {
			_ = cf.SetModTime(time.Unix(sec, 0))
		}
	}
	if existed {
		w.WriteHeader(http.StatusNoContent)
	} else {
		w.WriteHeader(http.StatusCreated)
	}
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	if !h.Writable {
		http.Error(w, "read-only", http.StatusForbidden)
		return
	}
	full, err := h.resolve(r.URL.Path)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	if err := os.RemoveAll(full); err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMkcol(w http.ResponseWriter, r *http.Request) {
	if !h.Writable {
		http.Error(w, "read-only", http.StatusForbidden)
		return
	}
	if r.ContentLength != 0 {
		// ContentLength == -1 means a chunked (unknown-length) body; only
		// 0 means "definitely no body".
		http.Error(w, "body not allowed", http.StatusUnsupportedMediaType)
		return
	}
	full, err := h.resolve(r.URL.Path)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	if _, err := os.Stat(filepath.Dir(full)); err != nil {
		http.Error(w, "parent missing", http.StatusConflict)
		return
	}
	if _, err := os.Stat(full); err == nil {
		http.Error(w, "already exists", http.StatusMethodNotAllowed)
		return
	}
	if err := os.Mkdir(full, 0o755); err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// destinationPath resolves the Destination header the same way request
// paths are resolved.
func (h *Handler) destinationPath(r *http.Request) (string, error) {
	dest := r.Header.Get("Destination")
	if dest == "" {
		return "", os.ErrInvalid
	}
	u, err := url.Parse(dest)
	if err != nil {
		return "", err
	}
	return h.resolve(u.Path)
}

func (h *Handler) handleCopy(w http.ResponseWriter, r *http.Request) {
	h.copyOrMove(w, r, false)
}

func (h *Handler) handleMove(w http.ResponseWriter, r *http.Request) {
	h.copyOrMove(w, r, true)
}

func (h *Handler) copyOrMove(w http.ResponseWriter, r *http.Request, move bool) {
	if !h.Writable {
		http.Error(w, "read-only", http.StatusForbidden)
		return
	}
	src, err := h.resolve(r.URL.Path)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	dst, err := h.destinationPath(r)
	if err != nil {
		http.Error(w, "bad destination", http.StatusBadRequest)
		return
	}
	if src == dst {
		http.Error(w, "source equals destination", http.StatusForbidden)
		return
	}
	if src == h.Root {
		http.Error(w, "cannot operate on root", http.StatusForbidden)
		return
	}
	depth := r.Header.Get("Depth")
	if move && depth != "" && depth != "infinity" {
		http.Error(w, "move requires infinity depth", http.StatusBadRequest)
		return
	}
	if !move && depth != "" && depth != "0" && depth != "infinity" {
		http.Error(w, "bad depth", http.StatusBadRequest)
		return
	}

	srcInfo, err := os.Stat(src)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	finalDst := dst
	dstInfo, dstErr := os.Stat(dst)
	dstExists := dstErr == nil
	if dstExists && dstInfo.IsDir() {
		finalDst = filepath.Join(dst, filepath.Base(src))
		dstInfo, dstErr = os.Stat(finalDst)
		dstExists = dstErr == nil
	} else if !dstExists {
		if _, err := os.Stat(filepath.Dir(dst)); err != nil {
			http.Error(w, "destination parent missing", http.StatusConflict)
			return
		}
	}

	if dstExists && r.Header.Get("Overwrite") == "F" {
		http.Error(w, "destination exists", http.StatusPreconditionFailed)
		return
	}
	if dstExists {
		os.RemoveAll(finalDst)
	}

	if move {
		if err := os.Rename(src, finalDst); err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
	} else if srcInfo.IsDir() {
		if depth == "0" {
			if err := os.Mkdir(finalDst, 0o755); err != nil {
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}
		} else if err := h.copyTree(src, finalDst); err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
	} else if err := h.copyFile(src, finalDst); err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if dstExists {
		w.WriteHeader(http.StatusNoContent)
	} else {
		w.WriteHeader(http.StatusCreated)
	}
}

func (h *Handler) copyFile(src, dst string) error {
	in, err := cryptfile.Open(src, h.Key)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := cryptfile.Create(dst, h.Key)
	if err != nil {
		return err
	}
	defer out.Close()
	r, err := in.NewReader()
	if err != nil {
		return err
	}
	_, err = out.CopyFrom(r)
	return err
}

func (h *Handler) copyTree(src, dst string) error {
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return err
	}
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	for _, e := range entries {
		srcPath := filepath.Join(src, e.Name())
		dstPath := filepath.Join(dst, e.Name())
		if e.IsDir() {
			if err := h.copyTree(srcPath, dstPath); err != nil {
				return err
			}
			continue
		}
		if err := h.copyFile(srcPath, dstPath); err != nil {
			return err
		}
	}
	return nil
}
