package execution

import (
	"sort"
	"sync"

	"github.com/aevon-lab/rules-engine/internal/core/actor"
)

// Store holds the latest published clone of every actor. Workers publish,
// the inspection API and the flush scheduler read.
type Store struct {
	mu      sync.RWMutex
	actors  map[string]*actor.State
	flushed map[string]int64
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		actors:  make(map[string]*actor.State),
		flushed: make(map[string]int64),
	}
}

// Put publishes st. The caller must not modify st afterwards.
func (s *Store) Put(st *actor.State) {
	s.mu.Lock()
	s.actors[st.ID] = st
	s.mu.Unlock()
}

// Get returns the actor with id.
func (s *Store) Get(id string) (*actor.State, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.actors[id]
	return st, ok
}

// List returns every actor ordered by id.
func (s *Store) List() []*actor.State {
	s.mu.RLock()
	out := make([]*actor.State, 0, len(s.actors))
	for _, st := range s.actors {
		out = append(out, st)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of actors.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.actors)
}

// Pending returns up to limit actors whose version moved since their last
// flush, ordered by id. A limit of 0 returns all of them.
func (s *Store) Pending(limit int) []*actor.State {
	s.mu.RLock()
	var out []*actor.State
	for id, st := range s.actors {
		if v, ok := s.flushed[id]; !ok || st.Version != v {
			out = append(out, st)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// MarkFlushed records the versions written by the sink.
func (s *Store) MarkFlushed(states []*actor.State) {
	s.mu.Lock()
	for _, st := range states {
		s.flushed[st.ID] = st.Version
	}
	s.mu.Unlock()
}

// Restore loads persisted actors, treating them as already flushed.
func (s *Store) Restore(states []*actor.State) {
	s.mu.Lock()
	for _, st := range states {
		s.actors[st.ID] = st
		s.flushed[st.ID] = st.Version
	}
	s.mu.Unlock()
}
