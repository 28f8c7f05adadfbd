package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pkordes/trip-tracker/internal/domain"
	"github.com/pkordes/trip-tracker/internal/shell"
	"github.com/pkordes/trip-tracker/internal/view"
)

// PostTrip handles POST /trips: the trip form's submit. The outcome lives in
// the form and the shell's alerts, so every case redirects back home.
func (s *Server) PostTrip(w http.ResponseWriter, r *http.Request) {
	e := entryFrom(r)
	if rt := e.Shell.Route(shell.PathHome); rt.Redirect != "" {
		seeOther(w, r, rt.Redirect)
		return
	}

	st := e.Shell.State()
	e.Form.Claim(userID(st))
	e.Form.Sync(st.Editing, st.EditingSeq)
	e.Form.Fill(domain.Draft{
		Start:       r.PostFormValue(view.FieldStart),
		Destination: r.PostFormValue(view.FieldDestination),
		Date:        r.PostFormValue(view.FieldDate),
		Note:        r.PostFormValue(view.FieldNote),
		Transport:   r.PostFormValue(view.FieldTransport),
	})

	err := e.Form.Submit(r.Context(), e.Shell.Save)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrValidation):
		s.log.DebugContext(r.Context(), "handler: trip form rejected", "err", err)
	case errors.Is(err, domain.ErrSubmitInProgress):
		s.log.InfoContext(r.Context(), "handler: duplicate trip submit ignored")
	default:
		s.log.WarnContext(r.Context(), "handler: save trip", "err", err)
	}
	seeOther(w, r, shell.PathHome)
}

// findTrip looks the {id} path parameter up in the shell's collection and
// renders the not-found page when it is missing.
func (s *Server) findTrip(w http.ResponseWriter, r *http.Request, e *Entry) (domain.Trip, bool) {
	trip, ok := e.Shell.Find(chi.URLParam(r, "id"))
	if !ok {
		s.renderNotFound(w, r, e)
	}
	return trip, ok
}

// PostEditTrip handles POST /trips/{id}/edit.
func (s *Server) PostEditTrip(w http.ResponseWriter, r *http.Request) {
	e := entryFrom(r)
	trip, ok := s.findTrip(w, r, e)
	if !ok {
		return
	}
	e.List.Edit(trip)
	seeOther(w, r, shell.PathHome)
}

// PostToggleTrip handles POST /trips/{id}/toggle.
func (s *Server) PostToggleTrip(w http.ResponseWriter, r *http.Request) {
	e := entryFrom(r)
	trip, ok := s.findTrip(w, r, e)
	if !ok {
		return
	}
	if err := e.List.Toggle(r.Context(), trip); err != nil {
		s.log.WarnContext(r.Context(), "handler: toggle trip", "id", trip.ID, "err", err)
	}
	seeOther(w, r, returnPath(r))
}

// GetDeleteTrip handles GET /trips/{id}/delete: the confirmation question.
func (s *Server) GetDeleteTrip(w http.ResponseWriter, r *http.Request) {
	e := entryFrom(r)
	trip, ok := s.findTrip(w, r, e)
	if !ok {
		return
	}
	data := baseData(e, "Delete trip")
	data.Trip = &trip
	data.Summary = view.Summary(trip)
	data.Prompt = view.MsgConfirmDelete
	data.Return = returnPath(r)
	s.render(w, r, http.StatusOK, pageConfirm, data)
}

// PostDeleteTrip handles POST /trips/{id}/delete. Only confirm=yes deletes.
func (s *Server) PostDeleteTrip(w http.ResponseWriter, r *http.Request) {
	e := entryFrom(r)
	id := chi.URLParam(r, "id")
	confirmed := r.PostFormValue("confirm") == "yes"

	err := e.List.Delete(r.Context(), id, view.ConfirmFunc(func(string) bool { return confirmed }))
	switch {
	case err == nil, errors.Is(err, view.ErrNotConfirmed):
	default:
		s.log.WarnContext(r.Context(), "handler: delete trip", "id", id, "err", err)
	}
	seeOther(w, r, returnPath(r))
}
