package backend

import (
	"context"
	"sync"

	"github.com/pkordes/trip-tracker/internal/domain"
)

// Notifier is the listener registry behind Auth.OnAuthStateChange.
// Listeners are called in subscription order. The lock is released before
// dispatch, so a listener may subscribe, unsubscribe or call back into the
// auth client without deadlocking.
type Notifier struct {
	mu        sync.Mutex
	nextID    uint64
	listeners []subscription
}

type subscription struct {
	id uint64
	fn AuthListener
}

// Subscribe registers l and returns its unsubscribe function.
func (n *Notifier) Subscribe(l AuthListener) func() {
	n.mu.Lock()
	n.nextID++
	id := n.nextID
	n.listeners = append(n.listeners, subscription{id: id, fn: l})
	n.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { n.remove(id) })
	}
}

// Emit calls every current listener with the event, in subscription order.
func (n *Notifier) Emit(ctx context.Context, event AuthEvent, session *domain.Session) {
	n.mu.Lock()
	snapshot := make([]subscription, len(n.listeners))
	copy(snapshot, n.listeners)
	n.mu.Unlock()

	for _, s := range snapshot {
		var sess *domain.Session
		if session != nil {
			// Each listener gets its own copy so none can mutate another's view.
			cp := *session
			sess = &cp
		}
		s.fn(ctx, event, sess)
	}
}

// Len returns the number of registered listeners.
func (n *Notifier) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.listeners)
}

func (n *Notifier) remove(id uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i, s := range n.listeners {
		if s.id == id {
			n.listeners = append(n.listeners[:i], n.listeners[i+1:]...)
			return
		}
	}
}
