package proxy

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/nicolaspernoud/atrium-go/internal/config"
)

func bindingFor(t *testing.T, upstream *httptest.Server) *config.ServiceBinding {
	t.Helper()
	u, err := url.Parse(upstream.URL)
	if err != nil {
		t.Fatalf("parse upstream url: %v", err)
	}
	return &config.ServiceBinding{
		Kind:             config.KindReverseApp,
		Host:             "app.example.com",
		App:              &config.App{Host: "app.example.com", IsProxy: true, Target: upstream.URL},
		ForwardScheme:    u.Scheme,
		ForwardAuthority: u.Host,
		AppScheme:        "http",
		AppAuthority:     "app.example.com",
	}
}

func TestEngineProxiesRequestAndStripsHopByHop(t *testing.T) {
	var gotForwardedHost, gotConnection string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotForwardedHost = r.Header.Get("X-Forwarded-Host")
		gotConnection = r.Header.Get("Connection")
		w.Header().Set("Connection", "close")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("hello"))
	}))
	defer upstream.Close()

	e := NewEngine()
	binding := bindingFor(t, upstream)

	req := httptest.NewRequest(http.MethodGet, "http://app.example.com/path", nil)
	req.Header.Set("Connection", "keep-alive")
	req.Host = "app.example.com"
	rec := httptest.NewRecorder()

	e.ServeHTTP(rec, req, binding, "203.0.113.9", false, false)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	if string(body) != "hello" {
		t.Fatalf("body = %q", body)
	}
	if gotForwardedHost != binding.AppAuthority {
		t.Fatalf("X-Forwarded-Host = %q, want the public authority %q, not the upstream leg", gotForwardedHost, binding.AppAuthority)
	}
	if gotConnection != "" {
		t.Fatalf("expected Connection header stripped from upstream request, got %q", gotConnection)
	}
	if rec.Header().Get("Connection") != "" {
		t.Fatalf("expected Connection header stripped from client response")
	}
}

func TestEngineRewritesRedirectLocation(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", "http://"+r.Host+"/elsewhere")
		w.WriteHeader(http.StatusFound)
	}))
	defer upstream.Close()

	e := NewEngine()
	binding := bindingFor(t, upstream)

	req := httptest.NewRequest(http.MethodGet, "http://app.example.com/path", nil)
	req.Host = "app.example.com"
	rec := httptest.NewRecorder()

	e.ServeHTTP(rec, req, binding, "203.0.113.9", false, false)

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d", rec.Code)
	}
	want := "http://app.example.com/elsewhere"
	if got := rec.Header().Get("Location"); got != want {
		t.Fatalf("Location = %q, want %q", got, want)
	}
}
