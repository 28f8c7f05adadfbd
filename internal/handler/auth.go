package handler

import (
	"errors"
	"net/http"

	"github.com/pkordes/trip-tracker/internal/domain"
	"github.com/pkordes/trip-tracker/internal/shell"
)

// PostSignIn handles POST /sign-in. A successful sign-in is picked up by the
// shell through the session-change notification; the queued navigation then
// decides where the browser goes.
func (s *Server) PostSignIn(w http.ResponseWriter, r *http.Request) {
	e := entryFrom(r)
	email := r.PostFormValue("email")
	password := r.PostFormValue("password")

	if err := e.Auth.Submit(r.Context(), email, password); err != nil {
		if !errors.Is(err, domain.ErrSubmitInProgress) {
			s.log.WarnContext(r.Context(), "handler: sign-in", "err", err)
		}
	}

	if to, ok := e.Shell.TakeNavigation(); ok {
		seeOther(w, r, to)
		return
	}
	seeOther(w, r, shell.PathSignIn)
}

// PostSignInMode handles POST /sign-in/mode: login and signup switch places.
func (s *Server) PostSignInMode(w http.ResponseWriter, r *http.Request) {
	entryFrom(r).Auth.ToggleMode()
	seeOther(w, r, shell.PathSignIn)
}

// PostSignOut handles POST /sign-out.
func (s *Server) PostSignOut(w http.ResponseWriter, r *http.Request) {
	e := entryFrom(r)
	e.Shell.SignOut(r.Context())
	seeOther(w, r, shell.PathSignIn)
}
