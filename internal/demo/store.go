package demo

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flowio-app/backend-demo/internal/quote"
)

// Store holds live demo sessions in memory. Each browser tab owns its own
// session; the only shared state across sessions lives in the attribution
// store. Idle sessions are swept after a TTL, and every timer a session armed
// is stopped on eviction so late callbacks cannot touch released state.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
	Now      func() time.Time
}

// NewStore constructs an empty session store.
func NewStore() *Store {
	return &Store{sessions: make(map[string]*Session)}
}

func (st *Store) now() time.Time {
	if st != nil && st.Now != nil {
		return st.Now()
	}
	return time.Now()
}

// Create registers a new session starting at the given stage.
func (st *Store) Create(stage Stage) Session {
	now := st.now()
	s := &Session{
		ID:        uuid.NewString(),
		Stage:     stage,
		CreatedAt: now,
		UpdatedAt: now,
	}
	st.mu.Lock()
	st.sessions[s.ID] = s
	st.mu.Unlock()
	return *s
}

// Get returns a copy of the session.
func (st *Store) Get(id string) (Session, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[id]
	if !ok {
		return Session{}, ErrNotFound
	}
	return snapshot(s), nil
}

// Update applies fn to the session under the store lock and returns the
// resulting copy. fn returning an error leaves the session untouched only if
// fn itself made no changes; transitions are written to validate before they
// mutate.
func (st *Store) Update(id string, fn func(*Session) error) (Session, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[id]
	if !ok {
		return Session{}, ErrNotFound
	}
	if err := fn(s); err != nil {
		return snapshot(s), err
	}
	s.UpdatedAt = st.now()
	return snapshot(s), nil
}

// Schedule arms a timer owned by the session. The callback is dropped when the
// session has been deleted or swept before it fires.
func (st *Store) Schedule(id string, d time.Duration, fn func(*Session)) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[id]
	if !ok {
		return
	}
	timer := time.AfterFunc(d, func() {
		st.mu.Lock()
		defer st.mu.Unlock()
		live, ok := st.sessions[id]
		if !ok {
			return
		}
		fn(live)
		live.UpdatedAt = st.now()
	})
	s.timers = append(s.timers, timer)
}

// Delete tears the session down, cancelling any pending timers.
func (st *Store) Delete(id string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.evictLocked(id)
}

// Sweep evicts sessions idle for longer than ttl and reports how many went.
func (st *Store) Sweep(ttl time.Duration) int {
	cutoff := st.now().Add(-ttl)
	st.mu.Lock()
	defer st.mu.Unlock()
	evicted := 0
	for id, s := range st.sessions {
		if s.UpdatedAt.Before(cutoff) {
			st.evictLocked(id)
			evicted++
		}
	}
	return evicted
}

// StartJanitor sweeps idle sessions until ctx is cancelled.
func (st *Store) StartJanitor(ctx context.Context, interval, ttl time.Duration) {
	if interval <= 0 || ttl <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				st.Sweep(ttl)
			}
		}
	}()
}

// Len reports the number of live sessions.
func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

func (st *Store) evictLocked(id string) {
	s, ok := st.sessions[id]
	if !ok {
		return
	}
	for _, timer := range s.timers {
		timer.Stop()
	}
	s.timers = nil
	delete(st.sessions, id)
}

func snapshot(s *Session) Session {
	out := *s
	out.timers = nil
	out.Items = append([]quote.LineItem(nil), s.Items...)
	return out
}
