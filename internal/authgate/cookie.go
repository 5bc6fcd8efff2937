// Package authgate decides whether a request may reach the service it
// addresses, and seals/opens the encrypted session cookies that carry
// identity across requests.
package authgate

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/crypto/nacl/secretbox"

	"github.com/nicolaspernoud/atrium-go/internal/config"
)

const (
	// AuthCookieName carries the sealed SessionToken.
	AuthCookieName = "ATRIUM_AUTH"
	// RedirectCookieName lets the login flow bounce the user back to the
	// hostname that triggered the challenge.
	RedirectCookieName = "ATRIUM_REDIRECT"
	// XSRFHeaderName must match a token-carried XSRF token for
	// state-changing, cookie-authenticated requests.
	XSRFHeaderName = "XSRF-TOKEN"

	keySize   = 32
	nonceSize = 24
)

var errBadCookie = errors.New("authgate: invalid or tampered cookie")

// Sealer encrypts and authenticates SessionToken payloads with
// nacl/secretbox, keyed by the process-wide cookie_key from the config
// snapshot.
type Sealer struct {
	key [keySize]byte
}

// NewSealer derives a Sealer from the raw cookie_key bytes loaded from
// config. Only the first 32 bytes are used as the secretbox key; the
// remainder of the 64-byte secret is reserved for future key separation.
func NewSealer(cookieKey []byte) (*Sealer, error) {
	if len(cookieKey) < keySize {
		return nil, fmt.Errorf("authgate: cookie key must be at least %d bytes", keySize)
	}
	s := &Sealer{}
	copy(s.key[:], cookieKey[:keySize])
	return s, nil
}

// Seal encodes token as JSON, seals it, and returns a base64 cookie value.
func (s *Sealer) Seal(token *config.SessionToken) (string, error) {
	plain, err := json.Marshal(token)
	if err != nil {
		return "", err
	}
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", err
	}
	sealed := secretbox.Seal(nonce[:], plain, &nonce, &s.key)
	return base64.URLEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal, rejecting anything tampered with or too short.
func (s *Sealer) Open(value string) (*config.SessionToken, error) {
	raw, err := base64.URLEncoding.DecodeString(value)
	if err != nil {
		return nil, errBadCookie
	}
	if len(raw) < nonceSize {
		return nil, errBadCookie
	}
	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])
	plain, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &s.key)
	if !ok {
		return nil, errBadCookie
	}
	var token config.SessionToken
	if err := json.Unmarshal(plain, &token); err != nil {
		return nil, errBadCookie
	}
	return &token, nil
}

// NewXSRFToken returns 16 random bytes, base64-encoded, per the data
// model's xsrf_token: random[16].
func NewXSRFToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// SetAuthCookie seals token and attaches it as ATRIUM_AUTH, scoped to the
// gateway hostname, expiring after the configured session duration.
func (s *Sealer) SetAuthCookie(w http.ResponseWriter, snap *config.Snapshot, token *config.SessionToken, secure bool) error {
	value, err := s.Seal(token)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     AuthCookieName,
		Value:    value,
		Domain:   snap.Hostname,
		Path:     "/",
		MaxAge:   snap.SessionDurationDays * 24 * 3600,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// ClearAuthCookie removes the ATRIUM_AUTH cookie.
func ClearAuthCookie(w http.ResponseWriter, hostname string) {
	http.SetCookie(w, &http.Cookie{
		Name:     AuthCookieName,
		Value:    "",
		Domain:   hostname,
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// SetRedirectCookie records where the login flow should bounce the user
// back to after a successful challenge.
func SetRedirectCookie(w http.ResponseWriter, scheme, hostname string) {
	http.SetCookie(w, &http.Cookie{
		Name:     RedirectCookieName,
		Value:    scheme + "://" + hostname,
		Path:     "/",
		MaxAge:   60,
		SameSite: http.SameSiteLaxMode,
		HttpOnly: false,
	})
}

