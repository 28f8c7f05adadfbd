package handler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/pkordes/trip-tracker/internal/backend"
	"github.com/pkordes/trip-tracker/internal/shell"
	"github.com/pkordes/trip-tracker/internal/view"
)

// sessionIDLength is the nanoid length of a browser session id.
const sessionIDLength = 32

// Entry is everything kept for one browser: its shell and the components
// that render it.
type Entry struct {
	ID    string
	Shell *shell.Shell
	Form  *view.TripForm
	Auth  *view.AuthView
	List  view.TripList

	lastSeen time.Time
}

// Registry maps browser session ids to entries. Entries idle for longer than
// the TTL are closed by Sweep. At most max entries are live; Create closes
// the least recently used one when the registry is full.
type Registry struct {
	factory backend.Factory
	ttl     time.Duration
	max     int
	log     *slog.Logger
	now     func() time.Time

	mu      sync.Mutex
	entries map[string]*Entry
}

// NewRegistry returns an empty registry creating backend clients with factory.
// max <= 0 means no cap.
func NewRegistry(factory backend.Factory, ttl time.Duration, max int, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		factory: factory,
		ttl:     ttl,
		max:     max,
		log:     log,
		now:     time.Now,
		entries: make(map[string]*Entry),
	}
}

// Get returns the live entry for id and marks it as used.
func (g *Registry) Get(id string) (*Entry, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.entries[id]
	if !ok {
		return nil, false
	}
	e.lastSeen = g.now()
	return e, true
}

// Create builds and mounts a new entry with a fresh id.
func (g *Registry) Create(ctx context.Context) (*Entry, error) {
	id, err := gonanoid.New(sessionIDLength)
	if err != nil {
		return nil, fmt.Errorf("handler.Registry.Create: session id: %w", err)
	}
	client, err := g.factory()
	if err != nil {
		return nil, fmt.Errorf("handler.Registry.Create: backend client: %w", err)
	}

	sh := shell.New(client, g.log.With("session", id[:8]))
	e := &Entry{
		ID:    id,
		Shell: sh,
		Form:  view.NewTripForm(),
		Auth:  view.NewAuthView(sh.Auth()),
		List: view.TripList{
			OnEdit:       sh.Edit,
			OnDelete:     sh.Delete,
			OnToggleDone: sh.ToggleDone,
		},
	}

	// Mount talks to the backend; keep it outside the registry lock.
	sh.Mount(ctx)

	g.mu.Lock()
	var evicted []*Entry
	for g.max > 0 && len(g.entries) >= g.max {
		evicted = append(evicted, g.removeOldestLocked())
	}
	e.lastSeen = g.now()
	g.entries[id] = e
	g.mu.Unlock()

	for _, old := range evicted {
		old.Shell.Close()
		g.log.InfoContext(ctx, "handler: browser session evicted", "session", old.ID[:8])
	}
	g.log.DebugContext(ctx, "handler: browser session created", "session", id[:8])
	return e, nil
}

// removeOldestLocked forgets the least recently used entry. g.mu must be held
// and the registry must not be empty.
func (g *Registry) removeOldestLocked() *Entry {
	var oldest *Entry
	for _, e := range g.entries {
		if oldest == nil || e.lastSeen.Before(oldest.lastSeen) {
			oldest = e
		}
	}
	delete(g.entries, oldest.ID)
	return oldest
}

// Sweep closes and forgets entries idle for longer than the TTL. It returns
// the number of entries removed.
func (g *Registry) Sweep() int {
	cutoff := g.now().Add(-g.ttl)

	g.mu.Lock()
	var stale []*Entry
	for id, e := range g.entries {
		if e.lastSeen.Before(cutoff) {
			stale = append(stale, e)
			delete(g.entries, id)
		}
	}
	g.mu.Unlock()

	for _, e := range stale {
		e.Shell.Close()
	}
	return len(stale)
}

// Run sweeps every interval until ctx is done.
func (g *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := g.Sweep(); n > 0 {
				g.log.InfoContext(ctx, "handler: idle browser sessions closed", "count", n)
			}
		}
	}
}

// Close closes every entry.
func (g *Registry) Close() {
	g.mu.Lock()
	entries := g.entries
	g.entries = make(map[string]*Entry)
	g.mu.Unlock()

	for _, e := range entries {
		e.Shell.Close()
	}
}

// Len returns the number of live entries.
func (g *Registry) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.entries)
}
