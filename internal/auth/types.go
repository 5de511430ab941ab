package auth

import (
	"errors"
	"time"
)

// Credential is the vendor token set for one account.
//
// It is plain data: storage and an expiry check only. The Session owns the
// live credential and never hands it out beyond per-request headers and
// signed URLs.
type Credential struct {
	AccessToken  string
	IDToken      string
	RefreshToken string
	Expiry       time.Time
}

// ExpiresWithin reports whether the credential expires within margin of
// now. A credential with no tokens is treated as expired.
func (c Credential) ExpiresWithin(margin time.Duration, now time.Time) bool {
	if c.IDToken == "" || c.Expiry.IsZero() {
		return true
	}
	return !now.Add(margin).Before(c.Expiry)
}

// Valid reports whether the credential carries the tokens a session needs.
func (c Credential) Valid() bool {
	return c.IDToken != "" && c.AccessToken != ""
}

// Errors.
var (
	// ErrAuthentication is returned when neither renewal nor re-login
	// produced a usable credential, or when the cloud rejected it twice.
	ErrAuthentication = errors.New("auth: authentication failed")

	// ErrNoCredential is returned by a CredentialCache holding nothing.
	ErrNoCredential = errors.New("auth: no cached credential")

	// ErrTokenInvalid is returned when an id token cannot be parsed.
	ErrTokenInvalid = errors.New("auth: invalid token")
)
