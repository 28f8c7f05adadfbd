package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pkordes/trip-tracker/internal/auth"
	"github.com/pkordes/trip-tracker/internal/backend"
	"github.com/pkordes/trip-tracker/internal/domain"
)

// Backend owns the repositories and token service shared by every Client.
type Backend struct {
	trips  TripRepo
	users  UserRepo
	tokens *auth.TokenService
	log    *slog.Logger
}

// New constructs a Backend on the given connection (usually *pgxpool.Pool).
func New(conn db, tokens *auth.TokenService, log *slog.Logger) *Backend {
	return &Backend{
		trips:  NewTripRepo(conn),
		users:  NewUserRepo(conn),
		tokens: tokens,
		log:    log,
	}
}

// Factory returns a backend.Factory creating Clients bound to b.
func (b *Backend) Factory() backend.Factory {
	return func() (backend.Client, error) {
		return b.NewClient(), nil
	}
}

// NewClient returns a signed-out Client.
func (b *Backend) NewClient() *Client {
	return &Client{b: b}
}

// Client is one browser's connection to the database.
type Client struct {
	b        *Backend
	notifier backend.Notifier

	mu      sync.Mutex
	session *domain.Session
}

var (
	_ backend.Client = (*Client)(nil)
	_ backend.Auth   = clientAuth{}
	_ backend.Trips  = clientTrips{}
)

type clientAuth struct{ c *Client }

type clientTrips struct{ c *Client }

// Auth returns the auth half of the client.
func (c *Client) Auth() backend.Auth { return clientAuth{c} }

// Trips returns the data half of the client.
func (c *Client) Trips() backend.Trips { return clientTrips{c} }

var (
	errInvalidCredentials = &backend.Error{Status: http.StatusBadRequest, Code: "invalid_credentials", Message: "Invalid login credentials"}
	errNotAuthenticated   = &backend.Error{Status: http.StatusUnauthorized, Message: "not authenticated", Err: domain.ErrUnauthenticated}
)

func (c *Client) setSession(ctx context.Context, event backend.AuthEvent, s *domain.Session) {
	c.mu.Lock()
	c.session = s
	c.mu.Unlock()
	c.b.log.DebugContext(ctx, "postgres: auth state change", "event", event)
	c.notifier.Emit(ctx, event, s)
}

// refreshSession swaps in fresh only if old is still the current session,
// so a concurrent sign-out is not undone.
func (c *Client) refreshSession(ctx context.Context, old, fresh *domain.Session) {
	c.mu.Lock()
	if c.session != old {
		c.mu.Unlock()
		return
	}
	c.session = fresh
	c.mu.Unlock()
	c.b.log.DebugContext(ctx, "postgres: auth state change", "event", backend.EventTokenRefreshed)
	c.notifier.Emit(ctx, backend.EventTokenRefreshed, fresh)
}

// currentUserID verifies the stored access token and returns its subject.
// An expired token ends the session; a token past half its lifetime is
// renewed.
func (c *Client) currentUserID(ctx context.Context) (uuid.UUID, error) {
	c.mu.Lock()
	s := c.session
	c.mu.Unlock()
	if s == nil {
		return uuid.Nil, errNotAuthenticated
	}

	u, exp, err := c.b.tokens.Verify(s.AccessToken)
	if err != nil {
		c.b.log.InfoContext(ctx, "postgres: session token rejected", "err", err)
		c.setSession(ctx, backend.EventSignedOut, nil)
		return uuid.Nil, errNotAuthenticated
	}
	fresh, renewed, err := c.b.tokens.Renew(u, exp)
	if err != nil {
		c.b.log.WarnContext(ctx, "postgres: session token renewal failed", "err", err)
	} else if renewed {
		c.refreshSession(ctx, s, &fresh)
	}
	id, err := uuid.Parse(u.ID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("postgres.Client: subject: %w", err)
	}
	return id, nil
}

func (a clientAuth) SignInWithPassword(ctx context.Context, email, password string) (*domain.Session, error) {
	acc, err := a.c.b.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, errInvalidCredentials
		}
		return nil, providerError(err)
	}
	if !auth.VerifyPassword(acc.PasswordHash, password) {
		return nil, errInvalidCredentials
	}
	return a.open(ctx, acc.User)
}

func (a clientAuth) SignUp(ctx context.Context, email, password string) (*domain.Session, error) {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, &backend.Error{Status: http.StatusUnprocessableEntity, Code: "weak_password", Message: err.Error()}
	}
	u, err := a.c.b.users.Create(ctx, strings.TrimSpace(email), hash)
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, &backend.Error{Status: http.StatusUnprocessableEntity, Code: "user_already_exists", Message: "User already registered", Err: domain.ErrConflict}
		}
		return nil, providerError(err)
	}
	a.c.b.log.InfoContext(ctx, "postgres: user registered", "user_id", u.ID)
	return a.open(ctx, u)
}

func (a clientAuth) open(ctx context.Context, u domain.User) (*domain.Session, error) {
	s, err := a.c.b.tokens.Issue(u)
	if err != nil {
		return nil, fmt.Errorf("postgres.Client: issue session: %w", err)
	}
	a.c.setSession(ctx, backend.EventSignedIn, &s)
	cp := s
	return &cp, nil
}

func (a clientAuth) SignOut(ctx context.Context) error {
	a.c.setSession(ctx, backend.EventSignedOut, nil)
	return nil
}

func (a clientAuth) Session(ctx context.Context) (*domain.Session, error) {
	if _, err := a.c.currentUserID(ctx); err != nil {
		return nil, nil
	}
	a.c.mu.Lock()
	defer a.c.mu.Unlock()
	if a.c.session == nil {
		return nil, nil
	}
	cp := *a.c.session
	return &cp, nil
}

func (a clientAuth) OnAuthStateChange(l backend.AuthListener) func() {
	return a.c.notifier.Subscribe(l)
}

func (t clientTrips) SelectAll(ctx context.Context) ([]domain.Trip, error) {
	userID, err := t.c.currentUserID(ctx)
	if err != nil {
		return nil, err
	}
	trips, err := t.c.b.trips.List(ctx, userID)
	if err != nil {
		return nil, providerError(err)
	}
	return trips, nil
}

func (t clientTrips) Insert(ctx context.Context, trip domain.Trip) error {
	userID, err := t.c.currentUserID(ctx)
	if err != nil {
		return err
	}
	if trip.UserID != userID.String() {
		return &backend.Error{Status: http.StatusForbidden, Code: "42501", Message: `new row violates row-level security policy for table "trips"`}
	}
	if _, err := t.c.b.trips.Create(ctx, trip); err != nil {
		return providerError(err)
	}
	return nil
}

func (t clientTrips) Update(ctx context.Context, id string, patch domain.TripPatch) error {
	userID, err := t.c.currentUserID(ctx)
	if err != nil {
		return err
	}
	tripID, err := uuid.Parse(id)
	if err != nil {
		return backend.Errorf(domain.ErrNotFound, "trip %s not found", id)
	}
	if _, err := t.c.b.trips.Update(ctx, userID, tripID, patch); err != nil {
		return providerError(err)
	}
	return nil
}

func (t clientTrips) Delete(ctx context.Context, id string) error {
	userID, err := t.c.currentUserID(ctx)
	if err != nil {
		return err
	}
	tripID, err := uuid.Parse(id)
	if err != nil {
		return backend.Errorf(domain.ErrNotFound, "trip %s not found", id)
	}
	if err := t.c.b.trips.Delete(ctx, userID, tripID); err != nil {
		return providerError(err)
	}
	return nil
}

// providerError turns repository errors into backend errors carrying the
// database's own message, the way a hosted provider reports them.
func providerError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &backend.Error{Status: http.StatusBadRequest, Code: pgErr.Code, Message: pgErr.Message, Err: err}
	}
	if errors.Is(err, domain.ErrNotFound) {
		return &backend.Error{Status: http.StatusNotFound, Message: "trip not found", Err: err}
	}
	return err
}
