package entity

import (
	"net/http"
	"time"
)

// System identifies which external system a credential is for.
type System string

const (
	SystemSigning           System = "signing"
	SystemRepositorySession System = "repository_session"
	SystemRepositoryREST    System = "repository_rest"
)

// Secret is the material used to authenticate a principal: a password or a PEM private key.
type Secret struct {
	Password   string
	PrivateKey []byte
	// ExpiresIn bounds the lifetime of tokens minted from a private key.
	ExpiresIn time.Duration
}

// Credential is the result of authenticating against one system.
type Credential struct {
	System      System
	Principal   string
	AccessToken string
	TokenType   string
	ExpiresAt   time.Time
	Session     *SessionToken
	Digest      *FormDigest
}

// Expired reports whether the credential's own expiry horizon has passed.
func (c *Credential) Expired(now time.Time) bool {
	if c.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(c.ExpiresAt)
}

// SessionToken is the cookie set that backs a repository session.
type SessionToken struct {
	Cookies   []*http.Cookie
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Expired reports whether the session validity window has passed.
func (s *SessionToken) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// FormDigest is the anti-forgery token required by mutating REST calls.
type FormDigest struct {
	Value          string
	TimeoutSeconds int
	IssuedAt       time.Time
}

// Timeout is the validity window declared by the server.
func (d *FormDigest) Timeout() time.Duration {
	return time.Duration(d.TimeoutSeconds) * time.Second
}

// Expired is true once the elapsed time since issue reaches the declared timeout.
func (d *FormDigest) Expired(now time.Time) bool {
	return now.Sub(d.IssuedAt) >= d.Timeout()
}

// ExpiresWithin is true if the digest would expire before now+margin.
func (d *FormDigest) ExpiresWithin(now time.Time, margin time.Duration) bool {
	return d.Expired(now.Add(margin))
}
