// Package users hashes and verifies account passwords. Hashes are stored
// as self-describing Argon2id strings so parameters can evolve without a
// migration.
package users

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"

	"github.com/nicolaspernoud/atrium-go/internal/config"
)

// Argon2id parameters. Tuned for an interactive login path, not a batch job.
const (
	argonTime    = 1
	argonMemory  = 64 * 1024 // KiB
	argonThreads = 4
	argonKeyLen  = 32
	saltLen      = 16
)

var errMalformedHash = errors.New("users: malformed password hash")

// HashPassword returns a self-describing Argon2id hash for password.
func HashPassword(password string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	hash := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argonMemory, argonTime, argonThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// VerifyPassword reports whether password matches encoded, a hash produced
// by HashPassword. Comparison is constant-time.
func VerifyPassword(encoded, password string) (bool, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false, errMalformedHash
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return false, errMalformedHash
	}
	var mem uint32
	var t uint32
	var p uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &mem, &t, &p); err != nil {
		return false, errMalformedHash
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, errMalformedHash
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, errMalformedHash
	}
	got := argon2.IDKey([]byte(password), salt, t, mem, p, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

// Table looks accounts up by login, keeping the hot path (auth gate, proxy
// re-auth) free of linear scans for anything beyond small user lists.
type Table struct {
	byLogin map[string]*config.User
}

// NewTable indexes users by login.
func NewTable(users []config.User) *Table {
	t := &Table{byLogin: make(map[string]*config.User, len(users))}
	for i := range users {
		t.byLogin[users[i].Login] = &users[i]
	}
	return t
}

// Lookup returns the user with the given login, or nil.
func (t *Table) Lookup(login string) *config.User {
	return t.byLogin[login]
}

// Authenticate verifies login/password against the table and returns the
// matching user on success. A missing login still runs a dummy verify so
// invalid-username and wrong-password paths take comparable time.
func (t *Table) Authenticate(login, password string) (*config.User, bool) {
	u, ok := t.byLogin[login]
	if !ok {
		_, _ = VerifyPassword(dummyHash, password)
		return nil, false
	}
	ok2, err := VerifyPassword(u.PasswordHash, password)
	if err != nil || !ok2 {
		return nil, false
	}
	return u, true
}

// dummyHash gives Authenticate a valid-looking hash to compare against
// when the login doesn't exist, so failures don't leak timing information.
const dummyHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
