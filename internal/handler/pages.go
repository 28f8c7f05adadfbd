package handler

import (
	"net/http"

	"github.com/pkordes/trip-tracker/internal/shell"
)

// routeTo resolves path for the browser session and answers with a redirect
// or a not-found page when the view cannot be rendered. It reports whether the
// caller should go on rendering.
//
// A navigation queued by the shell (after sign-in) wins over the requested
// path once.
func (s *Server) routeTo(w http.ResponseWriter, r *http.Request, e *Entry, path string) bool {
	if to, ok := e.Shell.TakeNavigation(); ok && to != path {
		http.Redirect(w, r, to, http.StatusFound)
		return false
	}
	rt := e.Shell.Route(path)
	switch {
	case rt.Redirect != "":
		http.Redirect(w, r, rt.Redirect, http.StatusFound)
		return false
	case rt.NotFound:
		s.renderNotFound(w, r, e)
		return false
	}
	return true
}

// GetHome handles GET /: the trip form and the list.
func (s *Server) GetHome(w http.ResponseWriter, r *http.Request) {
	e := entryFrom(r)
	if !s.routeTo(w, r, e, shell.PathHome) {
		return
	}

	st := e.Shell.State()
	e.Form.Claim(userID(st))
	e.Form.Sync(st.Editing, st.EditingSeq)
	form := e.Form.Snapshot()
	list := e.List.Render(st.Trips)

	data := baseData(e, "My trips")
	data.Form = &form
	data.Transports = transportOptions()
	data.List = &list
	data.Return = shell.PathHome
	s.render(w, r, http.StatusOK, pageHome, data)
}

// GetTrips handles GET /trips: the list on its own.
func (s *Server) GetTrips(w http.ResponseWriter, r *http.Request) {
	e := entryFrom(r)
	if !s.routeTo(w, r, e, shell.PathTrips) {
		return
	}

	list := e.List.Render(e.Shell.State().Trips)
	data := baseData(e, "Trips")
	data.List = &list
	data.Return = shell.PathTrips
	s.render(w, r, http.StatusOK, pageTrips, data)
}

// GetSignIn handles GET /sign-in.
func (s *Server) GetSignIn(w http.ResponseWriter, r *http.Request) {
	e := entryFrom(r)
	if !s.routeTo(w, r, e, shell.PathSignIn) {
		return
	}

	auth := e.Auth.Snapshot()
	data := baseData(e, auth.Title)
	data.Auth = &auth
	s.render(w, r, http.StatusOK, pageSignIn, data)
}

// NotFound renders the not-found page for unknown paths.
func (s *Server) NotFound(w http.ResponseWriter, r *http.Request) {
	s.renderNotFound(w, r, entryFrom(r))
}

func (s *Server) renderNotFound(w http.ResponseWriter, r *http.Request, e *Entry) {
	s.render(w, r, http.StatusNotFound, pageNotFound, baseData(e, "Not found"))
}

// userID returns the signed-in user's id, or "" when signed out.
func userID(st shell.State) string {
	if st.User == nil {
		return ""
	}
	return st.User.ID
}

// returnPath accepts only the list views as a redirect target.
func returnPath(r *http.Request) string {
	switch p := r.FormValue("return"); p {
	case shell.PathHome, shell.PathTrips:
		return p
	default:
		return shell.PathHome
	}
}
