package config

// App is a service bound to a virtual host, reached either as a reverse
// proxy upstream or as a statically served directory depending on IsProxy.
// The two shapes share one YAML struct, matching the way the reference
// implementation collapses ReverseApp/StaticApp into a single tagged row
// rather than two separate list types.
type App struct {
	Host                  string   `yaml:"host"`
	IsProxy               bool     `yaml:"is_proxy"`
	Target                string   `yaml:"target"`
	Directory             string   `yaml:"directory,omitempty"`
	Login                 string   `yaml:"login,omitempty"`
	Password              string   `yaml:"password,omitempty"`
	Secured               bool     `yaml:"secured,omitempty"`
	Roles                 []string `yaml:"roles,omitempty"`
	InjectSecurityHeaders bool     `yaml:"inject_security_headers,omitempty"`
	Subdomains            []string `yaml:"subdomains,omitempty"`
	ForwardUserMail       bool     `yaml:"forward_user_mail,omitempty"`
}

// Dav is an encrypted or plaintext WebDAV share bound to a virtual host.
type Dav struct {
	Host                  string   `yaml:"host"`
	Directory             string   `yaml:"directory"`
	Writable              bool     `yaml:"writable,omitempty"`
	AllowSymlinks         bool     `yaml:"allow_symlinks,omitempty"`
	Secured               bool     `yaml:"secured,omitempty"`
	Roles                 []string `yaml:"roles,omitempty"`
	InjectSecurityHeaders bool     `yaml:"inject_security_headers,omitempty"`
	Passphrase            string   `yaml:"passphrase,omitempty"`

	// Key is derived from Passphrase at load time; it is never persisted.
	Key []byte `yaml:"-"`
}

// ComputeKey derives Key from Passphrase. It is a no-op when Passphrase is
// empty, leaving the dav unencrypted.
func (d *Dav) ComputeKey() {
	d.Key = DeriveDavKey(d.Passphrase)
}

// UserInfo holds the optional profile fields surfaced in session tokens.
type UserInfo struct {
	Firstname string `yaml:"firstname,omitempty" json:"firstname,omitempty"`
	Lastname  string `yaml:"lastname,omitempty" json:"lastname,omitempty"`
	Email     string `yaml:"email,omitempty" json:"email,omitempty"`
}

// User is a local account. Password is only ever stored as an Argon2id
// hash; an empty value submitted on update means "keep existing".
type User struct {
	Login        string    `yaml:"login"`
	PasswordHash string    `yaml:"password_hash,omitempty"`
	Roles        []string  `yaml:"roles,omitempty"`
	Info         *UserInfo `yaml:"info,omitempty"`
}

// AdminsRole is the role name that gates administrative operations.
const AdminsRole = "ADMINS"

// HasRole reports whether the user carries the given role.
func (u *User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}
