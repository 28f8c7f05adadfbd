package view

import (
	"context"
	"sync"

	"github.com/pkordes/trip-tracker/internal/backend"
	"github.com/pkordes/trip-tracker/internal/domain"
	"github.com/pkordes/trip-tracker/internal/validation"
)

// AuthMode selects between signing in and registering.
type AuthMode string

// Auth view modes.
const (
	ModeLogin  AuthMode = "login"
	ModeSignup AuthMode = "signup"
)

// MessageKind classifies the auth view's message for styling.
type MessageKind string

// Message kinds.
const (
	KindNone    MessageKind = ""
	KindSuccess MessageKind = "success"
	KindError   MessageKind = "error"
)

// Auth view messages.
const (
	MsgSignedIn       = "Signed in successfully!"
	MsgSignedUp       = "Registration successful. Check your e-mail."
	msgUnexpected     = "Unexpected error: "
	msgUnknownFailure = "Unknown error"
)

// AuthView is the sign-in / sign-up form. It never navigates; the shell
// reacts to the resulting session change instead.
type AuthView struct {
	auth backend.Auth

	mu         sync.Mutex
	mode       AuthMode
	email      string
	message    string
	kind       MessageKind
	submitting bool
}

// AuthViewState is a read-only snapshot for rendering. The password is never
// kept.
type AuthViewState struct {
	Mode        AuthMode
	Email       string
	Message     string
	Kind        MessageKind
	Submitting  bool
	Title       string
	ButtonLabel string
	ToggleLabel string
}

// NewAuthView returns an AuthView in login mode.
func NewAuthView(auth backend.Auth) *AuthView {
	return &AuthView{auth: auth, mode: ModeLogin}
}

// ToggleMode switches between login and signup and clears the message.
func (v *AuthView) ToggleMode() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.mode == ModeLogin {
		v.mode = ModeSignup
	} else {
		v.mode = ModeLogin
	}
	v.message, v.kind = "", KindNone
}

// Submit validates the credentials and signs in or up depending on the mode.
// The outcome is reported through the view's message; the returned error is
// non-nil only for a submit rejected because another one is running.
func (v *AuthView) Submit(ctx context.Context, email, password string) error {
	v.mu.Lock()
	if v.submitting {
		v.mu.Unlock()
		return domain.ErrSubmitInProgress
	}
	v.email = email
	if msg := validation.Credentials(email, password); msg != "" {
		v.message, v.kind = msg, KindError
		v.mu.Unlock()
		return nil
	}
	v.submitting = true
	mode := v.mode
	v.mu.Unlock()

	msg, kind := v.call(ctx, mode, email, password)

	v.mu.Lock()
	defer v.mu.Unlock()
	v.submitting = false
	v.message, v.kind = msg, kind
	return nil
}

// call runs the backend request. A panic in the client is reported like any
// other unexpected failure.
func (v *AuthView) call(ctx context.Context, mode AuthMode, email, password string) (msg string, kind MessageKind) {
	defer func() {
		if r := recover(); r != nil {
			msg, kind = msgUnexpected+msgUnknownFailure, KindError
		}
	}()

	var err error
	if mode == ModeLogin {
		_, err = v.auth.SignInWithPassword(ctx, email, password)
	} else {
		_, err = v.auth.SignUp(ctx, email, password)
	}

	switch {
	case err == nil && mode == ModeLogin:
		return MsgSignedIn, KindSuccess
	case err == nil:
		return MsgSignedUp, KindSuccess
	case backend.IsProviderError(err):
		return backend.Message(err), KindError
	default:
		detail := err.Error()
		if detail == "" {
			detail = msgUnknownFailure
		}
		return msgUnexpected + detail, KindError
	}
}

// Snapshot returns the current state for rendering.
func (v *AuthView) Snapshot() AuthViewState {
	v.mu.Lock()
	defer v.mu.Unlock()

	s := AuthViewState{
		Mode:       v.mode,
		Email:      v.email,
		Message:    v.message,
		Kind:       v.kind,
		Submitting: v.submitting,
	}
	if v.mode == ModeLogin {
		s.Title, s.ButtonLabel, s.ToggleLabel = "Sign in", "Sign in", "Don't have an account? Register"
	} else {
		s.Title, s.ButtonLabel, s.ToggleLabel = "Register", "Register", "Already have an account? Sign in"
	}
	if v.submitting {
		s.ButtonLabel = "Working..."
	}
	return s
}
