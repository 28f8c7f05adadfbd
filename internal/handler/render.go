package handler

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"

	"github.com/pkordes/trip-tracker/internal/domain"
	"github.com/pkordes/trip-tracker/internal/view"
)

//go:embed templates/*.html
var templates embed.FS

// Page template names. Each is parsed together with layout.html.
const (
	pageHome     = "home.html"
	pageTrips    = "trips.html"
	pageSignIn   = "signin.html"
	pageConfirm  = "confirm.html"
	pageNotFound = "notfound.html"
)

// transportOption is one entry of the transport select.
type transportOption struct {
	Value string
	Label string
}

// pageData is what every page template receives. Fields not used by a page
// are left zero.
type pageData struct {
	Title         string
	Authenticated bool
	Email         string
	Alerts        []string

	Form       *view.TripFormState
	Transports []transportOption
	List       *view.ListModel
	Return     string

	Auth *view.AuthViewState

	Trip    *domain.Trip
	Summary string
	Prompt  string
}

// renderer holds one parsed template set per page.
type renderer struct {
	pages map[string]*template.Template
}

func mustRenderer() *renderer {
	r, err := newRenderer(templates)
	if err != nil {
		panic(err)
	}
	return r
}

func newRenderer(fsys fs.FS) (*renderer, error) {
	base, err := template.ParseFS(fsys, "templates/layout.html", "templates/list.html")
	if err != nil {
		return nil, fmt.Errorf("handler.newRenderer: layout: %w", err)
	}

	r := &renderer{pages: make(map[string]*template.Template)}
	for _, name := range []string{pageHome, pageTrips, pageSignIn, pageConfirm, pageNotFound} {
		t, err := template.Must(base.Clone()).ParseFS(fsys, "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("handler.newRenderer: %s: %w", name, err)
		}
		r.pages[name] = t
	}
	return r, nil
}

// render executes page into a buffer first so a template error never leaves a
// half-written response.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, page string, data pageData) {
	t, ok := s.pages.pages[page]
	if !ok {
		s.log.ErrorContext(r.Context(), "handler: unknown page", "page", page)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout.html", data); err != nil {
		s.log.ErrorContext(r.Context(), "handler: render page", "page", page, "err", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// baseData fills the header fields and takes the shell's pending alerts.
func baseData(e *Entry, title string) pageData {
	st := e.Shell.State()
	d := pageData{
		Title:         title,
		Authenticated: st.Authenticated,
		Alerts:        e.Shell.TakeAlerts(),
	}
	if st.User != nil {
		d.Email = st.User.Email
	}
	return d
}

func transportOptions() []transportOption {
	ts := domain.Transports()
	out := make([]transportOption, len(ts))
	for i, t := range ts {
		out[i] = transportOption{Value: string(t), Label: t.Label()}
	}
	return out
}
