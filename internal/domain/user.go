package domain

import "time"

// User is the identity returned by the auth service.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Session is the authenticated identity context returned by the auth service.
// The application mirrors it locally but never validates it itself.
type Session struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time // zero when the provider did not report an expiry
	User         User
}

// Expired reports whether the session's access token is no longer valid at now.
// Sessions without an expiry never expire locally.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}
