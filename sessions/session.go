package sessions

import (
	"maps"
	"time"
)

// AuthProvider identifies how the user signed in
type AuthProvider string

const (
	AuthProviderPassword AuthProvider = "password"
	AuthProviderGoogle   AuthProvider = "google"
)

// AccessFlag names a one-time grant to enter a sensitive route
type AccessFlag string

const (
	// FlagChangePasswordCode allows entering the change-password code page
	FlagChangePasswordCode AccessFlag = "change-password-code"
	// FlagChangePasswordNew allows entering the set-new-password page
	FlagChangePasswordNew AccessFlag = "change-password-new"
)

// Session is the authenticated identity and token expiry for one execution context.
// It is never persisted; the durable credential is the backend's cookie.
type Session struct {
	UserID          string
	Username        string
	IsAuthenticated bool
	IsEmailVerified bool
	AuthProvider    AuthProvider

	// AccessTokenExpiresAt is zero when the expiry is unknown
	AccessTokenExpiresAt time.Time

	Flags map[AccessFlag]bool
}

// HasAccessTokenExpiry reports whether an expiry is cached
func (s Session) HasAccessTokenExpiry() bool {
	return !s.AccessTokenExpiresAt.IsZero()
}

// NeedsRefresh reports whether the access token must be refreshed before a guarded
// navigation: the expiry is unknown or lies within margin of now.
func (s Session) NeedsRefresh(now time.Time, margin time.Duration) bool {
	if !s.HasAccessTokenExpiry() {
		return true
	}
	return s.AccessTokenExpiresAt.Sub(now) <= margin
}

// IsVerified is true for an authenticated session with a verified email address
func (s Session) IsVerified() bool {
	return s.IsAuthenticated && s.IsEmailVerified
}

func (s Session) clone() Session {
	s.Flags = maps.Clone(s.Flags)
	if s.Flags == nil {
		s.Flags = map[AccessFlag]bool{}
	}
	return s
}

// Patch holds the fields to merge into a Session. Nil fields are left unchanged.
type Patch struct {
	UserID               *string
	Username             *string
	IsAuthenticated      *bool
	IsEmailVerified      *bool
	AuthProvider         *AuthProvider
	AccessTokenExpiresAt *time.Time
}

func (p Patch) apply(s *Session) {
	if p.UserID != nil {
		s.UserID = *p.UserID
	}
	if p.Username != nil {
		s.Username = *p.Username
	}
	if p.IsAuthenticated != nil {
		s.IsAuthenticated = *p.IsAuthenticated
	}
	if p.IsEmailVerified != nil {
		s.IsEmailVerified = *p.IsEmailVerified
	}
	if p.AuthProvider != nil {
		s.AuthProvider = *p.AuthProvider
	}
	if p.AccessTokenExpiresAt != nil {
		s.AccessTokenExpiresAt = *p.AccessTokenExpiresAt
	}
}
