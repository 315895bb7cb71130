// Package session keeps per-subject agent state in memory for the lifetime
// of a monitoring session.
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kivara1314/kivara/internal/agent"
)

var ErrNotFound = errors.New("session not found")

// Store maps session ids to agent state. Each session has its own lock so
// updates to one subject are serialised while different subjects proceed in
// parallel.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*entry
	ttl      time.Duration
	nowFn    func() time.Time
}

type entry struct {
	mu       sync.Mutex
	state    agent.State
	lastSeen time.Time
	ended    bool
}

// NewStore creates a store whose idle sessions expire after ttl (0 disables
// expiry).
func NewStore(ttl time.Duration) *Store {
	return &Store{
		sessions: make(map[string]*entry),
		ttl:      ttl,
		nowFn:    time.Now,
	}
}

// Start opens a session with fresh baselines, or returns the existing
// session's state unchanged.
func (s *Store) Start(id string, gender agent.Gender, cycleDay int) (agent.State, bool, error) {
	e, created, err := s.getOrCreate(id, gender, cycleDay)
	if err != nil {
		return agent.State{}, false, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state, created, nil
}

// Update applies fn to the session's state under the session lock, creating
// the session on first use. The state fn returns replaces the stored one
// only when fn succeeds.
func (s *Store) Update(id string, gender agent.Gender, cycleDay int, fn func(agent.State) (agent.State, error)) (agent.State, error) {
	for {
		e, _, err := s.getOrCreate(id, gender, cycleDay)
		if err != nil {
			return agent.State{}, err
		}

		e.mu.Lock()
		if e.ended {
			// lost a race with End or Sweep; open a fresh session
			e.mu.Unlock()
			continue
		}
		next, err := fn(e.state)
		if err == nil {
			e.state = next
		}
		e.lastSeen = s.nowFn()
		state := e.state
		e.mu.Unlock()
		return state, err
	}
}

// Get returns a snapshot of the session's state.
func (s *Store) Get(id string) (agent.State, error) {
	s.mu.RLock()
	e, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return agent.State{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state, nil
}

// End discards the session and returns its final state.
func (s *Store) End(id string) (agent.State, error) {
	s.mu.Lock()
	e, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if !ok {
		return agent.State{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ended = true
	return e.state, nil
}

// Sweep ends every session idle for longer than the ttl and returns their
// ids.
func (s *Store) Sweep() []string {
	if s.ttl <= 0 {
		return nil
	}
	cutoff := s.nowFn().Add(-s.ttl)

	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []string
	for id, e := range s.sessions {
		e.mu.Lock()
		if e.lastSeen.Before(cutoff) {
			e.ended = true
			delete(s.sessions, id)
			expired = append(expired, id)
		}
		e.mu.Unlock()
	}
	return expired
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *Store) getOrCreate(id string, gender agent.Gender, cycleDay int) (*entry, bool, error) {
	s.mu.RLock()
	e, ok := s.sessions[id]
	s.mu.RUnlock()
	if ok {
		return e, false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok = s.sessions[id]; ok {
		return e, false, nil
	}

	state, err := agent.NewState(gender, cycleDay)
	if err != nil {
		return nil, false, err
	}
	e = &entry{state: state, lastSeen: s.nowFn()}
	s.sessions[id] = e
	return e, true, nil
}
