// Package session holds the controller's in-memory conversation state: active
// sessions, the echo guard for outbound message IDs, and the last-offered
// quick-reply options per identity.
//
// All state here is process-lifetime by design. It is lost on restart and
// recovered lazily from the persisted lead record.
package session

import (
	"sync"
	"time"

	"github.com/zapleads/zapleads/internal/identity"
)

// State is the ephemeral conversation state for one identity.
type State struct {
	LeadID string
	// Raw is the transport identifier the last inbound message arrived from,
	// kept so scheduler-initiated sends address the exact same JID.
	Raw             string
	LastInteraction time.Time
	// Reminded is reset on every inbound message and set after the first
	// inactivity reminder fires, so the short-delay nudge only fires once
	// per quiet period.
	Reminded bool
}

// Store is a mutex-guarded map from normalized identity to conversation state.
type Store struct {
	mu       sync.RWMutex
	sessions map[identity.Key]*State
	// notified tracks identities that already received the one-time
	// reconnected notice in this process.
	notified map[identity.Key]bool
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{
		sessions: make(map[identity.Key]*State),
		notified: make(map[identity.Key]bool),
	}
}

// Get returns a copy of the state for key, if present.
func (s *Store) Get(key identity.Key) (State, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.sessions[key]
	if !ok {
		return State{}, false
	}
	return *st, true
}

// Put registers or replaces the session for key.
func (s *Store) Put(key identity.Key, st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := st
	s.sessions[key] = &copied
}

// Touch updates the last-interaction time and clears the reminded flag,
// creating the session if it does not exist yet.
func (s *Store) Touch(key identity.Key, leadID, raw string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.sessions[key]
	if !ok {
		st = &State{LeadID: leadID}
		s.sessions[key] = st
	}
	if leadID != "" {
		st.LeadID = leadID
	}
	if raw != "" {
		st.Raw = raw
	}
	st.LastInteraction = at
	st.Reminded = false
}

// MarkReminded sets the reminded flag without touching the interaction time.
func (s *Store) MarkReminded(key identity.Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.sessions[key]; ok {
		st.Reminded = true
	}
}

// Delete removes the session for key.
func (s *Store) Delete(key identity.Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, key)
}

// Snapshot returns a copy of every active session, for the inactivity sweep.
func (s *Store) Snapshot() map[identity.Key]State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[identity.Key]State, len(s.sessions))
	for k, st := range s.sessions {
		out[k] = *st
	}
	return out
}

// Len returns the number of active sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// MarkNotified records that the reconnected notice was sent to key. Returns
// false if the notice had already been sent in this process.
func (s *Store) MarkNotified(key identity.Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.notified[key] {
		return false
	}
	s.notified[key] = true
	return true
}

// ClearNotified forgets the one-time notice marker, letting a future
// sessionless message trigger it again after an explicit restart.
func (s *Store) ClearNotified(key identity.Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.notified, key)
}

// EchoGuard is a fixed-capacity FIFO set of outbound message IDs generated by
// the controller's own sends. Membership is the sole signal distinguishing the
// bot's own echoed message from a human operator typing on the shared account.
// Oldest IDs are evicted first so memory stays bounded.
type EchoGuard struct {
	mu    sync.Mutex
	set   map[string]struct{}
	order []string
	cap   int
}

// DefaultEchoCapacity bounds the echo guard when no capacity is configured.
const DefaultEchoCapacity = 512

// NewEchoGuard creates an echo guard holding at most capacity IDs.
func NewEchoGuard(capacity int) *EchoGuard {
	if capacity <= 0 {
		capacity = DefaultEchoCapacity
	}
	return &EchoGuard{
		set: make(map[string]struct{}, capacity),
		cap: capacity,
	}
}

// Add records an outbound message ID, evicting the oldest entry when full.
func (g *EchoGuard) Add(id string) {
	if id == "" {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.set[id]; ok {
		return
	}
	if len(g.order) >= g.cap {
		oldest := g.order[0]
		g.order = g.order[1:]
		delete(g.set, oldest)
	}
	g.set[id] = struct{}{}
	g.order = append(g.order, id)
}

// Consume reports whether id was recorded and removes it, since each outbound
// message echoes back at most once.
func (g *EchoGuard) Consume(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.set[id]; !ok {
		return false
	}
	delete(g.set, id)
	for i, v := range g.order {
		if v == id {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
	return true
}

// Len returns the number of IDs currently guarded.
func (g *EchoGuard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.set)
}

// ButtonsCache maps a normalized identity to the ordered labels of the most
// recently offered quick-reply options. It is mirrored into the lead's
// lastButtons field so numbered replies stay interpretable across restarts.
type ButtonsCache struct {
	mu      sync.RWMutex
	buttons map[identity.Key][]string
}

// NewButtonsCache creates an empty buttons cache.
func NewButtonsCache() *ButtonsCache {
	return &ButtonsCache{buttons: make(map[identity.Key][]string)}
}

// Put stores the option labels for key. An empty list clears the entry.
func (c *ButtonsCache) Put(key identity.Key, labels []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(labels) == 0 {
		delete(c.buttons, key)
		return
	}
	copied := make([]string, len(labels))
	copy(copied, labels)
	c.buttons[key] = copied
}

// Get returns the cached labels for key.
func (c *ButtonsCache) Get(key identity.Key) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	labels := c.buttons[key]
	if len(labels) == 0 {
		return nil
	}
	copied := make([]string, len(labels))
	copy(copied, labels)
	return copied
}

// Delete removes the cached labels for key.
func (c *ButtonsCache) Delete(key identity.Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.buttons, key)
}
