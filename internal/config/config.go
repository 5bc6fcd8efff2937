// Package config loads atrium.yaml and exposes it as an immutable snapshot
// safe for lock-free reads from request-handling goroutines.
package config

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"gopkg.in/yaml.v3"
)

// TLSMode selects how the gateway terminates TLS.
type TLSMode string

const (
	TLSNo          TLSMode = "No"
	TLSBehindProxy TLSMode = "BehindProxy"
	TLSAuto        TLSMode = "Auto"
	TLSSelfSigned  TLSMode = "SelfSigned"
)

// File is the on-disk YAML shape of atrium.yaml.
type File struct {
	Hostname            string  `yaml:"hostname"`
	Domain              string  `yaml:"domain,omitempty"`
	DebugMode           bool    `yaml:"debug_mode,omitempty"`
	HTTPPort            int     `yaml:"http_port"`
	TLSMode             TLSMode `yaml:"tls_mode"`
	LetsEncryptEmail    string  `yaml:"letsencrypt_email,omitempty"`
	CookieKey           string  `yaml:"cookie_key,omitempty"`
	LogToFile           bool    `yaml:"log_to_file,omitempty"`
	SessionDurationDays int     `yaml:"session_duration_days"`
	SingleProxy         bool    `yaml:"single_proxy,omitempty"`

	Apps  []App  `yaml:"apps,omitempty"`
	Davs  []Dav  `yaml:"davs,omitempty"`
	Users []User `yaml:"users,omitempty"`
}

// trim runs the load-time string normalization on every user-editable
// string field. Empty-vector fields are simply omitted by the yaml tags
// above when the file is re-marshalled, so no explicit elision is needed.
func (f *File) trim() {
	f.Hostname = strings.TrimSpace(f.Hostname)
	f.Domain = strings.TrimSpace(f.Domain)
	f.LetsEncryptEmail = strings.TrimSpace(f.LetsEncryptEmail)
	for i := range f.Apps {
		f.Apps[i].Host = strings.TrimSpace(f.Apps[i].Host)
		f.Apps[i].Target = strings.TrimSpace(f.Apps[i].Target)
	}
	for i := range f.Davs {
		f.Davs[i].Host = strings.TrimSpace(f.Davs[i].Host)
		f.Davs[i].Directory = strings.TrimSpace(f.Davs[i].Directory)
	}
	for i := range f.Users {
		f.Users[i].Login = strings.TrimSpace(f.Users[i].Login)
	}
}

// Snapshot is the immutable, load-time-derived view handlers read from.
// It is never mutated after Build; reload produces a brand new Snapshot
// and swaps the shared pointer.
type Snapshot struct {
	Hostname            string
	Domain              string
	DebugMode           bool
	HTTPPort            int
	TLSMode             TLSMode
	LetsEncryptEmail    string
	CookieKey           []byte
	SessionDurationDays int
	SingleProxy         bool

	Services map[string]*ServiceBinding
	Users    []User

	raw File
}

// ServiceKind tags which of the three handler families a binding routes to.
type ServiceKind int

const (
	KindReverseApp ServiceKind = iota
	KindStaticApp
	KindDav
)

// ServiceBinding is a Service resolved to precomputed derived values, so
// the hot path never re-parses URLs or re-derives keys per request.
type ServiceBinding struct {
	Kind ServiceKind
	Host string

	Secured               bool
	Roles                 map[string]struct{}
	InjectSecurityHeaders bool

	App *App
	Dav *Dav

	// ForwardScheme/ForwardAuthority are precomputed from App.Target: the
	// upstream leg Atrium dials and the containment-check operand for
	// Location rewriting.
	ForwardScheme    string
	ForwardAuthority string

	// AppScheme/AppAuthority are the public-facing values a client uses to
	// reach this binding through Atrium at this particular vhost key: the
	// X-Forwarded-Host/X-Forwarded-Proto values and the Location-rewrite
	// replacement operand. A ReverseApp with subdomains gets one
	// ServiceBinding per FQDN so each carries its own exact incoming
	// hostname here, per the wire contract in §6.
	AppScheme    string
	AppAuthority string
}

// HasRole reports whether role is among the service's allowed roles.
func (b *ServiceBinding) HasRole(role string) bool {
	_, ok := b.Roles[role]
	return ok
}

// RolesIntersect reports whether any of roles is allowed by the binding.
func (b *ServiceBinding) RolesIntersect(roles []string) bool {
	for _, r := range roles {
		if b.HasRole(r) {
			return true
		}
	}
	return false
}

// Load reads path, normalizes it, applies the HOSTNAME env override, and
// builds a Snapshot. If cookie_key is absent it is generated and persisted
// back to path.
func Load(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	f.trim()
	if h := os.Getenv("HOSTNAME"); h != "" {
		f.Hostname = h
	}
	if f.SessionDurationDays == 0 {
		f.SessionDurationDays = 7
	}
	generated := false
	if f.CookieKey == "" {
		key := make([]byte, 64)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("config: generate cookie key: %w", err)
		}
		f.CookieKey = base64.StdEncoding.EncodeToString(key)
		generated = true
	}
	if generated {
		if err := save(path, &f); err != nil {
			return nil, fmt.Errorf("config: persist generated cookie key: %w", err)
		}
	}
	return Build(&f)
}

func save(path string, f *File) error {
	out, err := yaml.Marshal(f)
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0o600)
}

// Build derives a Snapshot from a File without touching disk; used by
// Load and directly by tests.
func Build(f *File) (*Snapshot, error) {
	cookieKey, err := base64.StdEncoding.DecodeString(f.CookieKey)
	if err != nil {
		return nil, fmt.Errorf("config: cookie_key is not valid base64: %w", err)
	}
	s := &Snapshot{
		Hostname:            f.Hostname,
		Domain:              f.Domain,
		DebugMode:           f.DebugMode,
		HTTPPort:            f.HTTPPort,
		TLSMode:             f.TLSMode,
		LetsEncryptEmail:    f.LetsEncryptEmail,
		CookieKey:           cookieKey,
		SessionDurationDays: f.SessionDurationDays,
		SingleProxy:         f.SingleProxy,
		Users:               f.Users,
		Services:            map[string]*ServiceBinding{},
		raw:                 *f,
	}

	appScheme := publicScheme(f.TLSMode)

	for i := range f.Apps {
		app := &f.Apps[i]
		kind := KindStaticApp
		if app.IsProxy {
			kind = KindReverseApp
		}
		newBinding := func(fqdn string) *ServiceBinding {
			b := &ServiceBinding{
				Kind:                  kind,
				Host:                  app.Host,
				Secured:               app.Secured,
				Roles:                 rolesSet(app.Roles),
				InjectSecurityHeaders: app.InjectSecurityHeaders,
				App:                   app,
			}
			if app.IsProxy {
				b.ForwardScheme, b.ForwardAuthority = splitTarget(app.Target)
				b.AppScheme = appScheme
				b.AppAuthority = publicAuthority(fqdn, f.TLSMode, f.HTTPPort)
			}
			return b
		}

		fqdn := fqdnFor(app.Host, f.Hostname)
		s.Services[fqdn] = newBinding(fqdn)
		for _, sub := range app.Subdomains {
			sub = strings.TrimSpace(sub)
			if sub == "" {
				continue
			}
			subFQDN := fqdnFor(sub+"."+app.Host, f.Hostname)
			s.Services[subFQDN] = newBinding(subFQDN)
		}
	}

	for i := range f.Davs {
		dav := &f.Davs[i]
		dav.ComputeKey()
		binding := &ServiceBinding{
			Kind:                  KindDav,
			Host:                  dav.Host,
			Secured:               dav.Secured,
			Roles:                 rolesSet(dav.Roles),
			InjectSecurityHeaders: dav.InjectSecurityHeaders,
			Dav:                   dav,
		}
		s.Services[fqdnFor(dav.Host, f.Hostname)] = binding
	}

	return s, nil
}

// publicScheme is the scheme a client uses to reach Atrium itself: plain
// http only when TLS is off, https for every TLS mode (including
// BehindProxy, where TLS is terminated upstream of Atrium).
func publicScheme(mode TLSMode) string {
	if mode == TLSNo {
		return "http"
	}
	return "https"
}

// publicAuthority is the public-facing authority for fqdn: the plain-HTTP
// port is appended when Atrium itself terminates no TLS (mirroring the
// original's "port.is_some()" rule), otherwise fqdn is used bare.
func publicAuthority(fqdn string, mode TLSMode, httpPort int) string {
	if mode == TLSNo && httpPort != 0 {
		return fmt.Sprintf("%s:%d", fqdn, httpPort)
	}
	return fqdn
}

func rolesSet(roles []string) map[string]struct{} {
	m := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		m[r] = struct{}{}
	}
	return m
}

// fqdnFor mirrors the "already-qualified host" guard from the data model:
// if host already contains hostname, it is used verbatim.
func fqdnFor(host, hostname string) string {
	if strings.Contains(host, hostname) {
		return host
	}
	return host + "." + hostname
}

func splitTarget(target string) (scheme, authority string) {
	scheme = "http"
	authority = target
	if idx := strings.Index(target, "://"); idx >= 0 {
		scheme = target[:idx]
		authority = target[idx+3:]
	}
	return scheme, authority
}

// DeriveDavKey returns SHA-256(passphrase), or nil when passphrase is empty
// (meaning the dav is served unencrypted).
func DeriveDavKey(passphrase string) []byte {
	if passphrase == "" {
		return nil
	}
	sum := sha256.Sum256([]byte(passphrase))
	return sum[:]
}

// Store holds the live, atomically-swappable Snapshot for a running process.
type Store struct {
	path string
	ptr  atomic.Pointer[Snapshot]
}

// NewStore loads path and wraps the result in a Store.
func NewStore(path string) (*Store, error) {
	snap, err := Load(path)
	if err != nil {
		return nil, err
	}
	st := &Store{path: path}
	st.ptr.Store(snap)
	return st, nil
}

// NewStoreForTest wraps an already-built Snapshot in a Store whose Reload
// is a no-op (there is no backing file). Used by package tests that build
// a Snapshot directly with Build rather than round-tripping YAML.
func NewStoreForTest(snap *Snapshot) *Store {
	st := &Store{}
	st.ptr.Store(snap)
	return st
}

// Get returns the current Snapshot. Safe for concurrent use.
func (s *Store) Get() *Snapshot {
	return s.ptr.Load()
}

// Reload re-reads the config file and atomically swaps the snapshot.
// In-flight handlers keep the Snapshot they already observed.
func (s *Store) Reload() error {
	snap, err := Load(s.path)
	if err != nil {
		return err
	}
	s.ptr.Store(snap)
	return nil
}
