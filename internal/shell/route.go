package shell

// View names a page the handler can render.
type View string

// Views.
const (
	ViewHome   View = "home"
	ViewSignIn View = "sign-in"
	ViewTrips  View = "trips"
)

// Route is the outcome of resolving a path.
type Route struct {
	View     View
	Redirect string
	NotFound bool
}

// Route resolves path against the current session. The home view needs a
// session; the sign-in view sends an authenticated user on to the current
// location; the trips view always renders.
func (s *Shell) Route(path string) Route {
	s.mu.Lock()
	authed := s.authenticated
	location := s.location
	s.mu.Unlock()

	switch path {
	case PathHome:
		if !authed {
			return Route{Redirect: PathSignIn}
		}
		return Route{View: ViewHome}
	case PathSignIn:
		if authed {
			if location == "" || location == PathSignIn {
				location = PathHome
			}
			return Route{Redirect: location}
		}
		return Route{View: ViewSignIn}
	case PathTrips:
		return Route{View: ViewTrips}
	default:
		return Route{NotFound: true}
	}
}
