package shell_test

import (
	"context"

	"github.com/pkordes/trip-tracker/internal/backend"
	"github.com/pkordes/trip-tracker/internal/domain"
)

// mockClient is a hand-written test double for backend.Client.
// Set only the function fields a test needs; unset ones panic.
type mockClient struct {
	auth  *mockAuth
	trips *mockTrips
}

var (
	_ backend.Client = (*mockClient)(nil)
	_ backend.Auth   = (*mockAuth)(nil)
	_ backend.Trips  = (*mockTrips)(nil)
)

func newMockClient() *mockClient {
	return &mockClient{auth: &mockAuth{}, trips: &mockTrips{}}
}

func (m *mockClient) Auth() backend.Auth   { return m.auth }
func (m *mockClient) Trips() backend.Trips { return m.trips }

type mockAuth struct {
	notifier backend.Notifier

	signOutFn func(ctx context.Context) error
	sessionFn func(ctx context.Context) (*domain.Session, error)
}

func (m *mockAuth) SignInWithPassword(context.Context, string, string) (*domain.Session, error) {
	panic("not expected")
}

func (m *mockAuth) SignUp(context.Context, string, string) (*domain.Session, error) {
	panic("not expected")
}

func (m *mockAuth) SignOut(ctx context.Context) error { return m.signOutFn(ctx) }

func (m *mockAuth) Session(ctx context.Context) (*domain.Session, error) {
	if m.sessionFn == nil {
		return nil, nil
	}
	return m.sessionFn(ctx)
}

func (m *mockAuth) OnAuthStateChange(l backend.AuthListener) func() {
	return m.notifier.Subscribe(l)
}

// emit delivers a session change to subscribers, like the provider would.
func (m *mockAuth) emit(event backend.AuthEvent, s *domain.Session) {
	m.notifier.Emit(context.Background(), event, s)
}

type mockTrips struct {
	selectAllFn func(ctx context.Context) ([]domain.Trip, error)
	insertFn    func(ctx context.Context, trip domain.Trip) error
	updateFn    func(ctx context.Context, id string, patch domain.TripPatch) error
	deleteFn    func(ctx context.Context, id string) error
}

func (m *mockTrips) SelectAll(ctx context.Context) ([]domain.Trip, error) { return m.selectAllFn(ctx) }

func (m *mockTrips) Insert(ctx context.Context, trip domain.Trip) error { return m.insertFn(ctx, trip) }

func (m *mockTrips) Update(ctx context.Context, id string, patch domain.TripPatch) error {
	return m.updateFn(ctx, id, patch)
}

func (m *mockTrips) Delete(ctx context.Context, id string) error { return m.deleteFn(ctx, id) }
