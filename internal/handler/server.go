// Package handler implements the HTTP surface of the trip tracker: the three
// views (/, /trips, /sign-in), the form posts that drive them, and the
// operational endpoints. Handlers are methods on Server and are split into
// files by concern (pages.go, trip.go, auth.go, export.go, health.go).
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/pkordes/trip-tracker/internal/backend"
	"github.com/pkordes/trip-tracker/internal/middleware"
)

// cookieName names the browser session cookie.
const cookieName = "tripweb_session"

// Options tunes the server.
type Options struct {
	SessionTTL   time.Duration
	CookieSecure bool
	CORSOrigins  []string
	MaxBodyBytes int64
	SignInRate   float64
	SignInBurst  int

	// TrustedProxies are the peers allowed to set the client address through
	// forwarding headers.
	TrustedProxies []netip.Prefix

	// MaxSessions caps live browser sessions; the least recently used one is
	// closed to make room.
	MaxSessions int

	// NewSessionRate and NewSessionBurst limit how fast one client address
	// may open browser sessions.
	NewSessionRate  float64
	NewSessionBurst int
}

func (o Options) withDefaults() Options {
	if o.SessionTTL <= 0 {
		o.SessionTTL = 30 * time.Minute
	}
	if o.MaxBodyBytes <= 0 {
		o.MaxBodyBytes = 1 << 20
	}
	if o.SignInRate <= 0 {
		o.SignInRate = 1
	}
	if o.SignInBurst <= 0 {
		o.SignInBurst = 5
	}
	if o.MaxSessions <= 0 {
		o.MaxSessions = 10000
	}
	if o.NewSessionRate <= 0 {
		o.NewSessionRate = 2
	}
	if o.NewSessionBurst <= 0 {
		o.NewSessionBurst = 30
	}
	return o
}

// Server holds the dependencies shared by all handlers.
type Server struct {
	registry *Registry
	limiter  *middleware.RateLimiter
	creation *middleware.RateLimiter
	metrics  *middleware.Metrics
	pages    *renderer
	opts     Options
	log      *slog.Logger
}

// NewServer constructs the Server. factory creates one backend client per
// browser session.
func NewServer(factory backend.Factory, opts Options, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	opts = opts.withDefaults()
	return &Server{
		registry: NewRegistry(factory, opts.SessionTTL, opts.MaxSessions, log),
		limiter:  middleware.NewRateLimiter(opts.SignInRate, opts.SignInBurst),
		creation: middleware.NewRateLimiter(opts.NewSessionRate, opts.NewSessionBurst),
		metrics:  middleware.NewMetrics(),
		pages:    mustRenderer(),
		opts:     opts,
		log:      log,
	}
}

// Registry exposes the browser session registry.
func (s *Server) Registry() *Registry {
	return s.registry
}

// Router returns the fully wired chi router.
//
// Middleware is applied in order: RequestID → RealIP → Logger → Recoverer →
// metrics → CORS → body limit. RealIP must precede the rate limiters, which
// key on the client address. It only honours forwarding headers from
// Options.TrustedProxies.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.NewRealIPHandler(s.opts.TrustedProxies))
	r.Use(middleware.NewSlogLogger(s.log))
	r.Use(chimiddleware.Recoverer)
	r.Use(s.metrics.Middleware)
	r.Use(middleware.NewCORSHandler(s.opts.CORSOrigins))
	r.Use(middleware.NewMaxBodySizeHandler(s.opts.MaxBodyBytes))

	r.Get("/healthz", s.GetHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	// Rejected sign-ins never reach the session middleware.
	r.With(middleware.NewRateLimitHandler(s.limiter, middleware.ClientIP), s.session).
		Post("/sign-in", s.PostSignIn)

	r.Group(func(r chi.Router) {
		r.Use(s.session)

		r.Get("/", s.GetHome)
		r.Get("/trips", s.GetTrips)
		r.Get("/trips/export.csv", s.GetExport)
		r.Get("/sign-in", s.GetSignIn)

		r.Post("/sign-in/mode", s.PostSignInMode)
		r.Post("/sign-out", s.PostSignOut)

		r.Post("/trips", s.PostTrip)
		r.Post("/trips/{id}/edit", s.PostEditTrip)
		r.Post("/trips/{id}/toggle", s.PostToggleTrip)
		r.Get("/trips/{id}/delete", s.GetDeleteTrip)
		r.Post("/trips/{id}/delete", s.PostDeleteTrip)

		r.NotFound(s.NotFound)
	})

	return r
}

// Sweep runs the periodic cleanup of idle browser sessions and rate-limit
// buckets until ctx is done.
func (s *Server) Sweep(ctx context.Context, interval time.Duration) {
	go s.registry.Run(ctx, interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.limiter.Sweep(s.opts.SessionTTL)
			s.creation.Sweep(s.opts.SessionTTL)
		}
	}
}

// Close closes every browser session.
func (s *Server) Close() {
	s.registry.Close()
}

type entryKey struct{}

// session resolves the browser session from the cookie, creating one (and
// setting the cookie) when it is missing or has expired. Creation is rate
// limited per client address.
func (s *Server) session(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var e *Entry
		if c, err := r.Cookie(cookieName); err == nil {
			e, _ = s.registry.Get(c.Value)
		}
		if e == nil {
			if !s.creation.Allow(middleware.ClientIP(r)) {
				w.Header().Set("Retry-After", "1")
				http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
				return
			}
			var err error
			e, err = s.registry.Create(r.Context())
			if err != nil {
				s.log.ErrorContext(r.Context(), "handler: create browser session", "err", err)
				http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
				return
			}
			http.SetCookie(w, &http.Cookie{
				Name:     cookieName,
				Value:    e.ID,
				Path:     "/",
				HttpOnly: true,
				Secure:   s.opts.CookieSecure,
				SameSite: http.SameSiteLaxMode,
			})
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), entryKey{}, e)))
	})
}

// entryFrom returns the browser session resolved by the session middleware.
func entryFrom(r *http.Request) *Entry {
	return r.Context().Value(entryKey{}).(*Entry)
}

// seeOther redirects a form post (Post/Redirect/Get).
func seeOther(w http.ResponseWriter, r *http.Request, path string) {
	http.Redirect(w, r, path, http.StatusSeeOther)
}
