// Package backend defines the contract of the hosted database/auth service the
// trip tracker delegates all persistence and authentication to.
// Adapters live in sub-packages: supabase (hosted REST service), postgres
// (self-hosted database) and memory (in-process, for development and tests).
package backend

import (
	"context"

	"github.com/pkordes/trip-tracker/internal/domain"
)

// AuthEvent names a session change reported to AuthListeners.
type AuthEvent string

// Session change events.
const (
	EventInitialSession AuthEvent = "INITIAL_SESSION"
	EventSignedIn       AuthEvent = "SIGNED_IN"
	EventSignedOut      AuthEvent = "SIGNED_OUT"
	EventTokenRefreshed AuthEvent = "TOKEN_REFRESHED"
)

// AuthListener receives session changes. session is nil when signed out.
// Listeners run synchronously on the goroutine that caused the change.
type AuthListener func(ctx context.Context, event AuthEvent, session *domain.Session)

// Auth is the authentication half of the backend.
type Auth interface {
	// SignInWithPassword authenticates with e-mail and password.
	SignInWithPassword(ctx context.Context, email, password string) (*domain.Session, error)

	// SignUp registers a new account. The returned session is nil when the
	// provider requires e-mail confirmation before the first sign-in.
	SignUp(ctx context.Context, email, password string) (*domain.Session, error)

	// SignOut ends the current session.
	SignOut(ctx context.Context) error

	// Session returns the current session, or nil when signed out.
	Session(ctx context.Context) (*domain.Session, error)

	// OnAuthStateChange registers l for session changes and returns a
	// function that removes it. The returned function is safe to call twice.
	OnAuthStateChange(l AuthListener) (unsubscribe func())
}

// Trips is the data half of the backend: the "trips" table scoped to the
// signed-in user. Ownership is enforced by the backend, not the caller.
type Trips interface {
	// SelectAll returns every trip visible to the current session, in no
	// particular order.
	SelectAll(ctx context.Context) ([]domain.Trip, error)

	// Insert stores a new trip. The backend assigns its ID.
	Insert(ctx context.Context, trip domain.Trip) error

	// Update applies patch to the trip with the given ID.
	Update(ctx context.Context, id string, patch domain.TripPatch) error

	// Delete removes the trip with the given ID.
	Delete(ctx context.Context, id string) error
}

// Client bundles the auth and data halves of one backend connection.
// A Client carries one user's session, so each browser gets its own.
type Client interface {
	Auth() Auth
	Trips() Trips
}

// Factory creates a new, signed-out Client.
type Factory func() (Client, error)
