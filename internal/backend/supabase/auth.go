package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/pkordes/trip-tracker/internal/backend"
	"github.com/pkordes/trip-tracker/internal/domain"
)

// tokenResponse is returned by the token and signup endpoints. When signup
// requires e-mail confirmation the body is a bare user and AccessToken is empty.
type tokenResponse struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	ExpiresIn    int64    `json:"expires_in"`
	ExpiresAt    int64    `json:"expires_at"`
	User         *apiUser `json:"user"`

	// Bare-user fields, present when no session was issued.
	ID    string `json:"id"`
	Email string `json:"email"`
}

type apiUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// session converts a token response; nil when the response carries no token.
func (t tokenResponse) session(now time.Time) *domain.Session {
	if t.AccessToken == "" {
		return nil
	}
	s := &domain.Session{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
	}
	switch {
	case t.ExpiresAt > 0:
		s.ExpiresAt = time.Unix(t.ExpiresAt, 0)
	case t.ExpiresIn > 0:
		s.ExpiresAt = now.Add(time.Duration(t.ExpiresIn) * time.Second)
	}
	if t.User != nil {
		s.User = domain.User{ID: t.User.ID, Email: t.User.Email}
	}
	return s
}

var errNotAuthenticated = &backend.Error{Status: http.StatusUnauthorized, Message: "not authenticated", Err: domain.ErrUnauthenticated}

func (c *Client) current() *domain.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

func (c *Client) setSession(ctx context.Context, event backend.AuthEvent, s *domain.Session) {
	c.mu.Lock()
	c.session = s
	c.mu.Unlock()
	c.svc.logger.DebugContext(ctx, "supabase: auth state change", "event", event)
	c.notifier.Emit(ctx, event, s)
}

func (c *Client) grant(ctx context.Context, grantType string, body any) (*domain.Session, error) {
	raw, err := c.svc.doRequest(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/token",
		query:  url.Values{"grant_type": {grantType}},
		body:   body,
	})
	if err != nil {
		return nil, err
	}
	var tr tokenResponse
	if err := json.Unmarshal(raw, &tr); err != nil {
		return nil, fmt.Errorf("supabase: failed to parse token response: %w", err)
	}
	s := tr.session(c.svc.now())
	if s == nil {
		return nil, fmt.Errorf("supabase: token response carried no access token")
	}
	return s, nil
}

func (a clientAuth) SignInWithPassword(ctx context.Context, email, password string) (*domain.Session, error) {
	s, err := a.c.grant(ctx, "password", credentials{Email: email, Password: password})
	if err != nil {
		return nil, err
	}
	a.c.svc.logger.InfoContext(ctx, "supabase: signed in", "user_id", s.User.ID)
	a.c.setSession(ctx, backend.EventSignedIn, s)
	cp := *s
	return &cp, nil
}

func (a clientAuth) SignUp(ctx context.Context, email, password string) (*domain.Session, error) {
	raw, err := a.c.svc.doRequest(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/signup",
		body:   credentials{Email: email, Password: password},
	})
	if err != nil {
		return nil, err
	}
	var tr tokenResponse
	if err := json.Unmarshal(raw, &tr); err != nil {
		return nil, fmt.Errorf("supabase: failed to parse signup response: %w", err)
	}

	s := tr.session(a.c.svc.now())
	if s == nil {
		a.c.svc.logger.InfoContext(ctx, "supabase: signed up, confirmation pending", "user_id", tr.ID)
		return nil, nil
	}
	a.c.setSession(ctx, backend.EventSignedIn, s)
	cp := *s
	return &cp, nil
}

// SignOut revokes the session on the service and forgets it locally. A
// session the service no longer knows is still dropped locally.
func (a clientAuth) SignOut(ctx context.Context) error {
	s := a.c.current()
	if s != nil {
		_, err := a.c.svc.doRequest(ctx, request{
			method: http.MethodPost,
			path:   "/auth/v1/logout",
			token:  s.AccessToken,
		})
		var be *backend.Error
		if err != nil && !(errors.As(err, &be) && isGoneStatus(be.Status)) {
			return err
		}
	}
	a.c.setSession(ctx, backend.EventSignedOut, nil)
	return nil
}

func isGoneStatus(status int) bool {
	return status == http.StatusUnauthorized || status == http.StatusForbidden || status == http.StatusNotFound
}

// Session returns the current session, refreshing it first when the access
// token has expired. A failed refresh ends the session.
func (a clientAuth) Session(ctx context.Context) (*domain.Session, error) {
	s, err := a.c.validSession(ctx)
	if err != nil || s == nil {
		return nil, err
	}
	cp := *s
	return &cp, nil
}

func (c *Client) validSession(ctx context.Context) (*domain.Session, error) {
	s := c.current()
	if s == nil || !s.Expired(c.svc.now()) {
		return s, nil
	}

	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	// Another caller may have refreshed while we waited.
	s = c.current()
	if s == nil || !s.Expired(c.svc.now()) {
		return s, nil
	}

	if s.RefreshToken == "" {
		c.setSession(ctx, backend.EventSignedOut, nil)
		return nil, nil
	}

	fresh, err := c.grant(ctx, "refresh_token", map[string]string{"refresh_token": s.RefreshToken})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.svc.logger.InfoContext(ctx, "supabase: session refresh failed", "err", err)
		c.setSession(ctx, backend.EventSignedOut, nil)
		return nil, nil
	}
	c.setSession(ctx, backend.EventTokenRefreshed, fresh)
	return fresh, nil
}

func (a clientAuth) OnAuthStateChange(l backend.AuthListener) func() {
	return a.c.notifier.Subscribe(l)
}

// accessToken returns the bearer token for data calls.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	s, err := c.validSession(ctx)
	if err != nil {
		return "", err
	}
	if s == nil {
		return "", errNotAuthenticated
	}
	return s.AccessToken, nil
}
