// Package memory is an in-process implementation of the backend contract.
// It backs BACKEND=memory for local development and the handler tests.
// Data is lost when the process exits.
package memory

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"github.com/pkordes/trip-tracker/internal/backend"
	"github.com/pkordes/trip-tracker/internal/domain"
)

// Operation names accepted by Store.FailNext.
const (
	OpSignIn    = "sign_in"
	OpSignUp    = "sign_up"
	OpSignOut   = "sign_out"
	OpSelectAll = "select"
	OpInsert    = "insert"
	OpUpdate    = "update"
	OpDelete    = "delete"
)

type account struct {
	user     domain.User
	password string
}

// Store holds the users and trips shared by every Client it creates.
type Store struct {
	mu       sync.Mutex
	accounts map[string]account // keyed by e-mail
	trips    map[string]domain.Trip
	nextID   int
	failures map[string]error

	// RequireConfirmation makes SignUp return no session, like a hosted
	// provider with e-mail confirmation switched on.
	RequireConfirmation bool
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{
		accounts: make(map[string]account),
		trips:    make(map[string]domain.Trip),
		failures: make(map[string]error),
	}
}

// Factory returns a backend.Factory creating Clients bound to s.
func (s *Store) Factory() backend.Factory {
	return func() (backend.Client, error) {
		return s.NewClient(), nil
	}
}

// NewClient returns a signed-out Client bound to s.
func (s *Store) NewClient() *Client {
	return &Client{store: s}
}

// FailNext makes the next call of op fail with err. If err is not a
// *backend.Error it is returned as is, which looks like a transport failure.
func (s *Store) FailNext(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = err
}

// Trips returns every stored trip sorted by ID, for assertions in tests.
func (s *Store) Trips() []domain.Trip {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Trip, 0, len(s.trips))
	for _, t := range s.trips {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		a, _ := strconv.Atoi(out[i].ID)
		b, _ := strconv.Atoi(out[j].ID)
		return a < b
	})
	return out
}

// takeFailure must be called with s.mu held.
func (s *Store) takeFailure(op string) error {
	err, ok := s.failures[op]
	if !ok {
		return nil
	}
	delete(s.failures, op)
	return err
}

// Client is one browser's connection to a Store.
type Client struct {
	store    *Store
	notifier backend.Notifier

	mu      sync.Mutex
	session *domain.Session
}

var (
	_ backend.Client = (*Client)(nil)
	_ backend.Auth   = (*clientAuth)(nil)
	_ backend.Trips  = (*clientTrips)(nil)
)

type clientAuth struct{ c *Client }

type clientTrips struct{ c *Client }

// Auth returns the auth half of the client.
func (c *Client) Auth() backend.Auth { return clientAuth{c} }

// Trips returns the data half of the client.
func (c *Client) Trips() backend.Trips { return clientTrips{c} }

func (c *Client) currentUser() (domain.User, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return domain.User{}, &backend.Error{Status: http.StatusUnauthorized, Message: "not authenticated", Err: domain.ErrUnauthenticated}
	}
	return c.session.User, nil
}

func (c *Client) setSession(ctx context.Context, event backend.AuthEvent, s *domain.Session) {
	c.mu.Lock()
	c.session = s
	c.mu.Unlock()
	c.notifier.Emit(ctx, event, s)
}

func newSession(u domain.User) *domain.Session {
	return &domain.Session{AccessToken: uuid.NewString(), User: u}
}

func (a clientAuth) SignInWithPassword(ctx context.Context, email, password string) (*domain.Session, error) {
	st := a.c.store
	st.mu.Lock()
	if err := st.takeFailure(OpSignIn); err != nil {
		st.mu.Unlock()
		return nil, err
	}
	acc, ok := st.accounts[email]
	st.mu.Unlock()

	// Plain comparison is fine here: passwords never leave this process.
	if !ok || acc.password != password {
		return nil, &backend.Error{Status: http.StatusBadRequest, Code: "invalid_credentials", Message: "Invalid login credentials"}
	}

	s := newSession(acc.user)
	a.c.setSession(ctx, backend.EventSignedIn, s)
	cp := *s
	return &cp, nil
}

func (a clientAuth) SignUp(ctx context.Context, email, password string) (*domain.Session, error) {
	st := a.c.store
	st.mu.Lock()
	if err := st.takeFailure(OpSignUp); err != nil {
		st.mu.Unlock()
		return nil, err
	}
	if _, exists := st.accounts[email]; exists {
		st.mu.Unlock()
		return nil, &backend.Error{Status: http.StatusUnprocessableEntity, Code: "user_already_exists", Message: "User already registered", Err: domain.ErrConflict}
	}
	acc := account{user: domain.User{ID: uuid.NewString(), Email: email}, password: password}
	st.accounts[email] = acc
	confirm := st.RequireConfirmation
	st.mu.Unlock()

	if confirm {
		return nil, nil
	}
	s := newSession(acc.user)
	a.c.setSession(ctx, backend.EventSignedIn, s)
	cp := *s
	return &cp, nil
}

func (a clientAuth) SignOut(ctx context.Context) error {
	st := a.c.store
	st.mu.Lock()
	err := st.takeFailure(OpSignOut)
	st.mu.Unlock()
	if err != nil {
		return err
	}
	a.c.setSession(ctx, backend.EventSignedOut, nil)
	return nil
}

func (a clientAuth) Session(context.Context) (*domain.Session, error) {
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

func (t clientTrips) SelectAll(context.Context) ([]domain.Trip, error) {
	u, err := t.c.currentUser()
	if err != nil {
		return nil, err
	}
	st := t.c.store
	st.mu.Lock()
	defer st.mu.Unlock()
	if err := st.takeFailure(OpSelectAll); err != nil {
		return nil, err
	}
	// Map iteration order is random, which is a fair model of an unordered select.
	out := []domain.Trip{}
	for _, trip := range st.trips {
		if trip.UserID == u.ID {
			out = append(out, trip)
		}
	}
	return out, nil
}

func (t clientTrips) Insert(_ context.Context, trip domain.Trip) error {
	u, err := t.c.currentUser()
	if err != nil {
		return err
	}
	st := t.c.store
	st.mu.Lock()
	defer st.mu.Unlock()
	if err := st.takeFailure(OpInsert); err != nil {
		return err
	}
	if trip.UserID != u.ID {
		return &backend.Error{Status: http.StatusForbidden, Code: "42501", Message: `new row violates row-level security policy for table "trips"`}
	}
	st.nextID++
	trip.ID = strconv.Itoa(st.nextID)
	st.trips[trip.ID] = trip
	return nil
}

func (t clientTrips) Update(_ context.Context, id string, patch domain.TripPatch) error {
	u, err := t.c.currentUser()
	if err != nil {
		return err
	}
	st := t.c.store
	st.mu.Lock()
	defer st.mu.Unlock()
	if err := st.takeFailure(OpUpdate); err != nil {
		return err
	}
	trip, ok := st.trips[id]
	if !ok || trip.UserID != u.ID {
		return backend.Errorf(domain.ErrNotFound, "trip %s not found", id)
	}
	st.trips[id] = applyPatch(trip, patch)
	return nil
}

func (t clientTrips) Delete(_ context.Context, id string) error {
	u, err := t.c.currentUser()
	if err != nil {
		return err
	}
	st := t.c.store
	st.mu.Lock()
	defer st.mu.Unlock()
	if err := st.takeFailure(OpDelete); err != nil {
		return err
	}
	trip, ok := st.trips[id]
	if !ok || trip.UserID != u.ID {
		return backend.Errorf(domain.ErrNotFound, "trip %s not found", id)
	}
	delete(st.trips, id)
	return nil
}

func applyPatch(t domain.Trip, p domain.TripPatch) domain.Trip {
	if p.Start != nil {
		t.Start = *p.Start
	}
	if p.Destination != nil {
		t.Destination = *p.Destination
	}
	if p.Date != nil {
		t.Date = *p.Date
	}
	if p.Note != nil {
		t.Note = *p.Note
	}
	if p.Transport != nil {
		t.Transport = *p.Transport
	}
	if p.Done != nil {
		t.Done = *p.Done
	}
	return t
}

// String describes the store for logs.
func (s *Store) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Sprintf("memory.Store{users: %d, trips: %d}", len(s.accounts), len(s.trips))
}
