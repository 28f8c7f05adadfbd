// Package shell is the application controller of one browser session. It owns
// the authenticated flag, the current user, the trip collection and the record
// being edited, and exposes them to views only through snapshots and commands.
//
// Every mutation follows the same pattern: one backend call, an alert and no
// state change on failure, a full re-fetch-and-replace of the collection on
// success. The mutex is never held across a backend call, so concurrent
// commands interleave and the last re-fetch to finish wins.
package shell

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/pkordes/trip-tracker/internal/backend"
	"github.com/pkordes/trip-tracker/internal/domain"
)

// Paths of the three views.
const (
	PathHome   = "/"
	PathSignIn = "/sign-in"
	PathTrips  = "/trips"
)

// Alert prefixes, followed by the backend's message.
const (
	AlertSave   = "Error while saving: "
	AlertToggle = "Error while changing state: "
	AlertDelete = "Error while deleting: "
	AlertLoad   = "Error while loading: "
)

// State is a read-only snapshot of the shell.
type State struct {
	Authenticated bool
	User          *domain.User
	Trips         []domain.Trip
	Editing       *domain.Trip
	// EditingSeq changes every time the editing reference is replaced, so the
	// form can tell a new edit request from a re-render.
	EditingSeq uint64
	Location   string
}

// Shell is the controller for one browser. Create it with New, call Mount
// once, and Close when the browser session ends.
type Shell struct {
	client backend.Client
	log    *slog.Logger

	mu            sync.Mutex
	authenticated bool
	user          *domain.User
	trips         []domain.Trip
	editing       *domain.Trip
	editingSeq    uint64
	location      string
	pendingNav    bool
	alerts        []string

	mountOnce   sync.Once
	closeOnce   sync.Once
	unsubscribe func()
}

// New returns an unmounted shell for client.
func New(client backend.Client, log *slog.Logger) *Shell {
	if log == nil {
		log = slog.Default()
	}
	return &Shell{client: client, log: log, location: PathHome, trips: []domain.Trip{}}
}

// Auth exposes the client's auth half for the auth view.
func (s *Shell) Auth() backend.Auth {
	return s.client.Auth()
}

// Mount subscribes to session changes and then checks for an existing
// session. Only the first call has any effect.
func (s *Shell) Mount(ctx context.Context) {
	s.mountOnce.Do(func() {
		unsubscribe := s.client.Auth().OnAuthStateChange(s.onAuthStateChange)
		s.mu.Lock()
		s.unsubscribe = unsubscribe
		s.mu.Unlock()

		session, err := s.client.Auth().Session(ctx)
		if err != nil {
			s.log.WarnContext(ctx, "shell: initial session check failed", "err", err)
			return
		}
		s.onAuthStateChange(ctx, backend.EventInitialSession, session)
	})
}

// Close removes the session-change subscription. It is safe to call more
// than once and before Mount.
func (s *Shell) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		unsubscribe := s.unsubscribe
		s.mu.Unlock()
		if unsubscribe != nil {
			unsubscribe()
		}
	})
}

func (s *Shell) onAuthStateChange(ctx context.Context, event backend.AuthEvent, session *domain.Session) {
	s.log.DebugContext(ctx, "shell: session change", "event", event, "signed_in", session != nil)
	s.setAuthenticated(ctx, session)
}

// setAuthenticated updates flag and user, then runs the derived effects in
// order when the flag changed: trips first, navigation second.
func (s *Shell) setAuthenticated(ctx context.Context, session *domain.Session) {
	var user *domain.User
	if session != nil && session.User.ID != "" {
		u := session.User
		user = &u
	}
	authed := user != nil

	s.mu.Lock()
	changed := authed != s.authenticated
	s.authenticated = authed
	s.user = user
	s.mu.Unlock()

	if !changed {
		return
	}
	s.tripsEffect(ctx, authed)
	s.navigationEffect(authed)
}

func (s *Shell) tripsEffect(ctx context.Context, authed bool) {
	if authed {
		_ = s.reload(ctx)
		return
	}
	s.mu.Lock()
	s.trips = []domain.Trip{}
	if s.editing != nil {
		s.editing = nil
		s.editingSeq++
	}
	s.mu.Unlock()
}

func (s *Shell) navigationEffect(authed bool) {
	if !authed {
		return
	}
	s.mu.Lock()
	s.location = PathHome
	s.pendingNav = true
	s.mu.Unlock()
}

// reload fetches the whole collection and replaces local state. On failure
// the collection is left as it was.
func (s *Shell) reload(ctx context.Context) error {
	trips, err := s.client.Trips().SelectAll(ctx)
	if err != nil {
		s.alert(ctx, AlertLoad, err)
		return fmt.Errorf("shell.Shell.reload: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.authenticated {
		// Signed out while the request was in flight.
		return nil
	}
	if trips == nil {
		trips = []domain.Trip{}
	}
	s.trips = trips
	return nil
}

func (s *Shell) alert(ctx context.Context, prefix string, err error) {
	msg := prefix + backend.Message(err)
	s.log.InfoContext(ctx, "shell: alert", "alert", msg, "err", err)
	s.mu.Lock()
	s.alerts = append(s.alerts, msg)
	s.mu.Unlock()
}

// Save updates the record being edited, or inserts a new one stamped with
// the current user and done=false. A backend failure is alerted and
// returned; state is left unchanged.
func (s *Shell) Save(ctx context.Context, draft domain.Draft) error {
	s.mu.Lock()
	editing := s.editing
	user := s.user
	s.mu.Unlock()

	if editing != nil {
		if err := s.client.Trips().Update(ctx, editing.ID, domain.PatchFromDraft(draft)); err != nil {
			s.alert(ctx, AlertSave, err)
			return fmt.Errorf("shell.Shell.Save: update: %w", err)
		}
		s.mu.Lock()
		s.editing = nil
		s.editingSeq++
		s.mu.Unlock()
	} else {
		if user == nil {
			err := &backend.Error{Message: "not authenticated", Err: domain.ErrUnauthenticated}
			s.alert(ctx, AlertSave, err)
			return fmt.Errorf("shell.Shell.Save: %w", err)
		}
		if err := s.client.Trips().Insert(ctx, domain.NewTrip(user.ID, draft)); err != nil {
			s.alert(ctx, AlertSave, err)
			return fmt.Errorf("shell.Shell.Save: insert: %w", err)
		}
	}

	// The save itself succeeded; a failed re-fetch is alerted on its own.
	_ = s.reload(ctx)
	return nil
}

// ToggleDone sets the completion flag of the trip with the given ID.
func (s *Shell) ToggleDone(ctx context.Context, id string, done bool) error {
	if err := s.client.Trips().Update(ctx, id, domain.DonePatch(done)); err != nil {
		s.alert(ctx, AlertToggle, err)
		return fmt.Errorf("shell.Shell.ToggleDone: %w", err)
	}
	_ = s.reload(ctx)
	return nil
}

// Delete removes the trip with the given ID. Confirmation is the list
// view's job and has already happened.
func (s *Shell) Delete(ctx context.Context, id string) error {
	if err := s.client.Trips().Delete(ctx, id); err != nil {
		s.alert(ctx, AlertDelete, err)
		return fmt.Errorf("shell.Shell.Delete: %w", err)
	}
	_ = s.reload(ctx)
	return nil
}

// Edit makes trip the record being edited.
func (s *Shell) Edit(trip domain.Trip) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.editing = &trip
	s.editingSeq++
}

// SignOut signs out on the backend and clears the local session at once,
// without waiting for the notification that also follows. A backend failure
// is logged; the local session is cleared regardless.
func (s *Shell) SignOut(ctx context.Context) {
	if err := s.client.Auth().SignOut(ctx); err != nil {
		s.log.WarnContext(ctx, "shell: sign-out failed", "err", err)
	}
	s.setAuthenticated(ctx, nil)
}

// Find returns the trip with the given ID from the local collection.
func (s *Shell) Find(id string) (domain.Trip, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.trips {
		if t.ID == id {
			return t, true
		}
	}
	return domain.Trip{}, false
}

// State returns a snapshot. Slices and pointers are copies.
func (s *Shell) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := State{
		Authenticated: s.authenticated,
		Trips:         slices.Clone(s.trips),
		EditingSeq:    s.editingSeq,
		Location:      s.location,
	}
	if s.user != nil {
		u := *s.user
		st.User = &u
	}
	if s.editing != nil {
		e := *s.editing
		st.Editing = &e
	}
	return st
}

// TakeAlerts returns the queued alerts and clears the queue.
func (s *Shell) TakeAlerts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.alerts
	s.alerts = nil
	return out
}

// TakeNavigation returns the location set by the last navigation effect,
// once.
func (s *Shell) TakeNavigation() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.pendingNav {
		return "", false
	}
	s.pendingNav = false
	return s.location, true
}
