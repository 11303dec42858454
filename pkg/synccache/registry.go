package synccache

import (
	"fmt"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/appointment-engine/internal/model"
)

// RemoteFactory builds a Remote authenticated as actor.
type RemoteFactory func(actor model.Actor) Remote

// Registry keeps one Cache per (user, role) session and forgets sessions
// idle for longer than the configured expiry.
type Registry struct {
	mu       sync.Mutex
	sessions *cache.Cache
	factory  RemoteFactory
	loc      *time.Location
}

func NewRegistry(factory RemoteFactory, idle time.Duration, loc *time.Location) *Registry {
	if idle <= 0 {
		idle = 30 * time.Minute
	}
	return &Registry{
		sessions: cache.New(idle, idle/2),
		factory:  factory,
		loc:      loc,
	}
}

func sessionKey(actor model.Actor) string {
	return fmt.Sprintf("%d:%s", actor.UserID, actor.Role)
}

// For returns the session cache of actor, creating an unloaded one if
// needed. Every lookup extends the session.
func (r *Registry) For(actor model.Actor) *Cache {
	key := sessionKey(actor)

	r.mu.Lock()
	defer r.mu.Unlock()

	if v, ok := r.sessions.Get(key); ok {
		c := v.(*Cache)
		r.sessions.SetDefault(key, c)
		return c
	}
	c := New(actor, r.factory(actor), r.loc)
	r.sessions.SetDefault(key, c)
	return c
}

// Forget drops the session of actor, for example on logout.
func (r *Registry) Forget(actor model.Actor) {
	r.sessions.Delete(sessionKey(actor))
}

func (r *Registry) Len() int {
	return r.sessions.ItemCount()
}
