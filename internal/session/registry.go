package session

import (
	"errors"
	"sort"
	"sync"
)

var ErrStreamerExists = errors.New("session already registered")

// Registry maps streamer ids to their single Session.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

func (r *Registry) Get(streamer string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[streamer]
	return s, ok
}

// Create registers a new disconnected session for streamer.
func (r *Registry) Create(streamer string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[streamer]; ok {
		return nil, ErrStreamerExists
	}
	s := New(streamer)
	r.sessions[streamer] = s
	return s, nil
}

// Remove drops the entry for streamer if it still points at s.
func (r *Registry) Remove(streamer string, s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.sessions[streamer]; ok && current == s {
		delete(r.sessions, streamer)
		return true
	}
	return false
}

// List returns the registered sessions ordered by streamer id.
func (r *Registry) List() []*Session {
	r.mu.RLock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Streamer < out[j].Streamer })
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
