package authgate

import (
	"bytes"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nicolaspernoud/atrium-go/internal/config"
)

func testCookieKey() []byte {
	return bytes.Repeat([]byte{0x07}, 64)
}

func TestSealerRoundTrip(t *testing.T) {
	s, err := NewSealer(testCookieKey())
	if err != nil {
		t.Fatalf("NewSealer: %v", err)
	}
	tok := &config.SessionToken{Login: "alice", Roles: []string{"USERS"}, XSRFToken: "xsrf", Expires: time.Now().Add(time.Hour).Unix()}

	sealed, err := s.Seal(tok)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	got, err := s.Open(sealed)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if got.Login != "alice" || got.XSRFToken != "xsrf" {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestSealerOpenRejectsTamperedValue(t *testing.T) {
	s, err := NewSealer(testCookieKey())
	if err != nil {
		t.Fatalf("NewSealer: %v", err)
	}
	sealed, err := s.Seal(&config.SessionToken{Login: "alice"})
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	tampered := sealed[:len(sealed)-2] + "zz"
	if _, err := s.Open(tampered); err == nil {
		t.Fatalf("expected Open to reject a tampered cookie")
	}
}

func TestSealerOpenRejectsGarbage(t *testing.T) {
	s, err := NewSealer(testCookieKey())
	if err != nil {
		t.Fatalf("NewSealer: %v", err)
	}
	if _, err := s.Open("not-valid-base64!!"); err == nil {
		t.Fatalf("expected error for non-base64 input")
	}
	if _, err := s.Open("AA=="); err == nil {
		t.Fatalf("expected error for too-short input")
	}
}

func TestNewSealerRejectsShortKey(t *testing.T) {
	if _, err := NewSealer([]byte("short")); err == nil {
		t.Fatalf("expected error for a key shorter than 32 bytes")
	}
}

func TestNewXSRFTokenIsNonEmptyAndVaries(t *testing.T) {
	a, err := NewXSRFToken()
	if err != nil {
		t.Fatalf("NewXSRFToken: %v", err)
	}
	b, err := NewXSRFToken()
	if err != nil {
		t.Fatalf("NewXSRFToken: %v", err)
	}
	if a == "" || b == "" {
		t.Fatalf("expected non-empty tokens")
	}
	if a == b {
		t.Fatalf("expected distinct tokens across calls")
	}
}

func TestSetAndClearAuthCookie(t *testing.T) {
	s, err := NewSealer(testCookieKey())
	if err != nil {
		t.Fatalf("NewSealer: %v", err)
	}
	snap := &config.Snapshot{Hostname: "atrium.example.com", SessionDurationDays: 7}
	rec := httptest.NewRecorder()
	tok := &config.SessionToken{Login: "alice"}
	if err := s.SetAuthCookie(rec, snap, tok, true); err != nil {
		t.Fatalf("SetAuthCookie: %v", err)
	}
	resp := rec.Result()
	cookies := resp.Cookies()
	if len(cookies) != 1 || cookies[0].Name != AuthCookieName {
		t.Fatalf("expected one ATRIUM_AUTH cookie, got %+v", cookies)
	}
	if !cookies[0].Secure {
		t.Fatalf("expected Secure cookie when requested")
	}

	rec2 := httptest.NewRecorder()
	ClearAuthCookie(rec2, "atrium.example.com")
	cleared := rec2.Result().Cookies()
	if len(cleared) != 1 || cleared[0].MaxAge >= 0 {
		t.Fatalf("expected a cookie deletion (negative MaxAge), got %+v", cleared)
	}
}

func TestSetRedirectCookie(t *testing.T) {
	rec := httptest.NewRecorder()
	SetRedirectCookie(rec, "https", "app.example.com")
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != RedirectCookieName {
		t.Fatalf("expected one ATRIUM_REDIRECT cookie")
	}
	if cookies[0].Value != "https://app.example.com" {
		t.Fatalf("cookie value = %q", cookies[0].Value)
	}
}
