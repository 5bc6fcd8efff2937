package dav

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestHandlerPutThenGetRoundTripUnencrypted(t *testing.T) {
	dir := t.TempDir()
	h := NewHandler(dir, nil, false, true)

	body := []byte("hello, atrium")
	req := httptest.NewRequest(http.MethodPut, "http://dav.example.com/file.txt", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("PUT status = %d", rec.Code)
	}

	getReq := httptest.NewRequest(http.MethodGet, "http://dav.example.com/file.txt", nil)
	getRec := httptest.NewRecorder()
	h.ServeHTTP(getRec, getReq)
	if getRec.Code != http.StatusOK {
		t.Fatalf("GET status = %d", getRec.Code)
	}
	if getRec.Body.String() != string(body) {
		t.Fatalf("GET body = %q, want %q", getRec.Body.String(), string(body))
	}
}

func TestHandlerPutThenGetRoundTripEncrypted(t *testing.T) {
	dir := t.TempDir()
	key := bytes.Repeat([]byte{0x11}, 32)
	h := NewHandler(dir, key, false, true)

	body := []byte("encrypted contents")
	req := httptest.NewRequest(http.MethodPut, "http://dav.example.com/secret.txt", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("PUT status = %d", rec.Code)
	}

	raw, err := os.ReadFile(filepath.Join(dir, "secret.txt"))
	if err != nil {
		t.Fatalf("read raw file: %v", err)
	}
	if bytes.Contains(raw, body) {
		t.Fatalf("on-disk file must not contain the plaintext")
	}

	getReq := httptest.NewRequest(http.MethodGet, "http://dav.example.com/secret.txt", nil)
	getRec := httptest.NewRecorder()
	h.ServeHTTP(getRec, getReq)
	if getRec.Body.String() != string(body) {
		t.Fatalf("decrypted GET body = %q, want %q", getRec.Body.String(), string(body))
	}
}

func TestHandlerPutRejectedWhenReadOnly(t *testing.T) {
	dir := t.TempDir()
	h := NewHandler(dir, nil, false, false)

	req := httptest.NewRequest(http.MethodPut, "http://dav.example.com/file.txt", bytes.NewReader([]byte("x")))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestHandlerPutOverwriteReturnsNoContent(t *testing.T) {
	dir := t.TempDir()
	h := NewHandler(dir, nil, false, true)

	for i, body := range []string{"first", "second version"} {
		req := httptest.NewRequest(http.MethodPut, "http://dav.example.com/file.txt", bytes.NewReader([]byte(body)))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		wantStatus := http.StatusCreated
		if i == 1 {
			wantStatus = http.StatusNoContent
		}
		if rec.Code != wantStatus {
			t.Fatalf("iteration %d: status = %d, want %d", i, rec.Code, wantStatus)
		}
	}
}

func TestHandlerMkcolCreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	h := NewHandler(dir, nil, false, true)

	req := httptest.NewRequest("MKCOL", "http://dav.example.com/newdir", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("MKCOL status = %d", rec.Code)
	}
	info, err := os.Stat(filepath.Join(dir, "newdir"))
	if err != nil || !info.IsDir() {
		t.Fatalf("expected newdir to exist as a directory")
	}
}

func TestHandlerMkcolConflictsWhenParentMissing(t *testing.T) {
	dir := t.TempDir()
	h := NewHandler(dir, nil, false, true)

	req := httptest.NewRequest("MKCOL", "http://dav.example.com/missing/newdir", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestHandlerMoveOverwriteFRejectsExistingDestination(t *testing.T) {
	dir := t.TempDir()
	h := NewHandler(dir, nil, false, true)
	mustPut(t, h, "/a.txt", "a")
	mustPut(t, h, "/b.txt", "b")

	req := httptest.NewRequest("MOVE", "http://dav.example.com/a.txt", nil)
	req.Header.Set("Destination", "http://dav.example.com/b.txt")
	req.Header.Set("Overwrite", "F")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusPreconditionFailed {
		t.Fatalf("status = %d, want 412", rec.Code)
	}
}

func TestHandlerMoveOverwriteTReplacesDestination(t *testing.T) {
	dir := t.TempDir()
	h := NewHandler(dir, nil, false, true)
	mustPut(t, h, "/a.txt", "a-contents")
	mustPut(t, h, "/b.txt", "b-contents")

	req := httptest.NewRequest("MOVE", "http://dav.example.com/a.txt", nil)
	req.Header.Set("Destination", "http://dav.example.com/b.txt")
	req.Header.Set("Overwrite", "T")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if _, err := os.Stat(filepath.Join(dir, "a.txt")); !os.IsNotExist(err) {
		t.Fatalf("source should no longer exist after MOVE")
	}
	got, err := os.ReadFile(filepath.Join(dir, "b.txt"))
	if err != nil {
		t.Fatalf("read destination: %v", err)
	}
	if string(got) != "a-contents" {
		t.Fatalf("destination contents = %q, want a-contents", got)
	}
}

func TestHandlerCopyDuplicatesFile(t *testing.T) {
	dir := t.TempDir()
	h := NewHandler(dir, nil, false, true)
	mustPut(t, h, "/a.txt", "copy-me")

	req := httptest.NewRequest("COPY", "http://dav.example.com/a.txt", nil)
	req.Header.Set("Destination", "http://dav.example.com/a-copy.txt")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}
	if _, err := os.Stat(filepath.Join(dir, "a.txt")); err != nil {
		t.Fatalf("source should still exist after COPY")
	}
	got, err := os.ReadFile(filepath.Join(dir, "a-copy.txt"))
	if err != nil || string(got) != "copy-me" {
		t.Fatalf("copy contents = %q, err = %v", got, err)
	}
}

func TestHandlerDeleteRemovesFile(t *testing.T) {
	dir := t.TempDir()
	h := NewHandler(dir, nil, false, true)
	mustPut(t, h, "/a.txt", "x")

	req := httptest.NewRequest(http.MethodDelete, "http://dav.example.com/a.txt", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if _, err := os.Stat(filepath.Join(dir, "a.txt")); !os.IsNotExist(err) {
		t.Fatalf("expected file to be gone")
	}
}

func TestHandlerOptionsAdvertisesDAVAndCORS(t *testing.T) {
	dir := t.TempDir()
	h := NewHandler(dir, nil, false, true)

	req := httptest.NewRequest(http.MethodOptions, "http://dav.example.com/", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Header().Get("DAV") == "" {
		t.Fatalf("expected a DAV header")
	}
}

func TestResolveRejectsSymlinkEscapeWhenDisallowed(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	if err := os.WriteFile(filepath.Join(outside, "secret.txt"), []byte("nope"), 0o644); err != nil {
		t.Fatalf("write outside file: %v", err)
	}
	link := filepath.Join(root, "escape")
	if err := os.Symlink(outside, link); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	if _, err := resolve(root, "/escape/secret.txt", false); err != ErrOutsideRoot {
		t.Fatalf("got err = %v, want ErrOutsideRoot", err)
	}
	if _, err := resolve(root, "/escape/secret.txt", true); err != nil {
		t.Fatalf("allowSymlinks=true should not reject: %v", err)
	}
}

func TestResolveNeutralizesDotDotTraversal(t *testing.T) {
	root := t.TempDir()
	full, err := resolve(root, "/../../etc/passwd", false)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !underRoot(full, root) {
		t.Fatalf("resolved path %q escaped root %q", full, root)
	}
}

func mustPut(t *testing.T, h *Handler, path, body string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPut, "http://dav.example.com"+path, bytes.NewReader([]byte(body)))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated && rec.Code != http.StatusNoContent {
		t.Fatalf("PUT %s status = %d", path, rec.Code)
	}
}
