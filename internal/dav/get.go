package dav

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"io/fs"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/nicolaspernoud/atrium-go/internal/cryptfile"
)

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	full, err := h.resolve(r.URL.Path)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	info, err := os.Stat(full)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	if info.IsDir() {
		switch {
		case r.URL.Query().Has("diskusage"):
			h.serveDiskUsage(w, full)
		case r.URL.Query().Get("q") != "":
			h.serveSearch(w, full, r.URL.Query().Get("q"))
		default:
			h.serveZip(w, full, info.Name())
		}
		return
	}
	h.serveFile(w, r, full, info.Name())
}

func (h *Handler) serveFile(w http.ResponseWriter, r *http.Request, full, name string) {
	cf, err := cryptfile.Open(full, h.Key)
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	defer cf.Close()

	reader, err := cf.NewReader()
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	etag, lastMod := cf.CacheHeaders()
	ctype := mime.TypeByExtension(filepath.Ext(name))
	if ctype == "" {
		ctype = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ctype)
	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Disposition", `attachment; filename="`+url.PathEscape(name)+`"`)
	http.ServeContent(w, r, name, lastMod, reader)
}

// serveZip streams dir as a deflated ZIP. Files that fail to stat, or
// that are not regular files, are skipped rather than aborting the whole
// archive; a symlink is followed when allow_symlinks is set or, otherwise,
// when it resolves inside the root (the same containment check resolve
// applies), and skipped when it does not.
func (h *Handler) serveZip(w http.ResponseWriter, dir, name string) {
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="`+url.PathEscape(name)+`.zip"`)
	zw := zip.NewWriter(w)
	defer zw.Close()

	filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err == nil && info.Mode()&os.ModeSymlink != 0 && (h.AllowSymlinks || checkContained(path, h.Root) == nil) {
			info, err = os.Stat(path)
		}
		if err != nil || !info.Mode().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return nil
		}
		hdr, err := zip.FileInfoHeader(info)
		if err != nil {
			return nil
		}
		hdr.Name = filepath.ToSlash(rel)
		hdr.Method = zip.Deflate
		entry, err := zw.CreateHeader(hdr)
		if err != nil {
			return nil
		}
		cf, err := cryptfile.Open(path, h.Key)
		if err != nil {
			return nil
		}
		cf.CopyTo(entry)
		cf.Close()
		return nil
	})
}

type searchHit struct {
	PathType string `json:"path_type"`
	Name     string `json:"name"`
	Mtime    int64  `json:"mtime"`
	Size     *int64 `json:"size,omitempty"`
}

func (h *Handler) serveSearch(w http.ResponseWriter, dir, needle string) {
	needle = strings.ToLower(needle)
	var hits []searchHit
	filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || path == dir {
			return nil
		}
		if !strings.Contains(strings.ToLower(d.Name()), needle) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		hit := searchHit{Name: d.Name(), Mtime: info.ModTime().Unix()}
		if d.IsDir() {
			hit.PathType = "Directory"
		} else {
			hit.PathType = "File"
			size := info.Size()
			if h.Key != nil {
				size = cryptfile.DecryptedSize(size)
			}
			hit.Size = &size
		}
		hits = append(hits, hit)
		return nil
	})
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(hits)
}

type diskUsage struct {
	TotalBytes uint64 `json:"total_bytes"`
	FreeBytes  uint64 `json:"free_bytes"`
}

func (h *Handler) serveDiskUsage(w http.ResponseWriter, dir string) {
	var st syscall.Statfs_t
	w.Header().Set("Content-Type", "application/json")
	if err := syscall.Statfs(dir, &st); err != nil {
		http.Error(w, fmt.Sprintf("diskusage: %v", err), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(diskUsage{
		TotalBytes: st.Blocks * uint64(st.Bsize),
		FreeBytes:  st.Bfree * uint64(st.Bsize),
	})
}
