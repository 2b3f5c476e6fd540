package session

import "sync"

// Registry is the process-wide map from lecture id to live session. It is
// the sole owner of session lifetime; only the gateway decides deletions.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// GetOrCreate returns the session for a lecture, creating it on first join.
// The second return value reports whether the session was created by this
// call.
func (r *Registry) GetOrCreate(lectureID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sess, ok := r.sessions[lectureID]; ok {
		return sess, false
	}

	sess := New(lectureID)
	r.sessions[lectureID] = sess
	return sess, true
}

// Get returns the session for a lecture, or nil.
func (r *Registry) Get(lectureID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[lectureID]
}

func (r *Registry) Remove(lectureID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, lectureID)
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
