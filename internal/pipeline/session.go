package pipeline

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/hyperjump/medibot/internal/models"
)

// session serializes the queries of one conversation. The slot channel is its lock so waiting honors ctx.
type session struct {
	id       string
	slot     chan struct{}
	history  []models.Turn
	active   int
	lastUsed time.Time
	elem     *list.Element
}

func (s *session) lock(ctx context.Context) error {
	select {
	case s.slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *session) unlock() { <-s.slot }

// SessionLimits bounds how many sessions a store keeps and for how long.
type SessionLimits struct {
	// MaxSessions caps the stored sessions; the least recently used idle one goes first. Zero means no cap.
	MaxSessions int
	// IdleTTL forgets sessions unused for this long. Zero keeps them until evicted by MaxSessions.
	IdleTTL time.Duration
}

// SessionStore keeps per-session history, capped at the most recent limit turns.
// Sessions without any recorded turn are dropped once their last query returns.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*session
	order    *list.List // front is most recently used
	limit    int
	limits   SessionLimits
	now      func() time.Time
}

// NewSessionStore returns an empty store keeping at most limit turns per session.
func NewSessionStore(limit int, limits SessionLimits) *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*session),
		order:    list.New(),
		limit:    limit,
		limits:   limits,
		now:      time.Now,
	}
}

// acquire returns the session for id, creating it if needed, and marks a query in flight.
// Every acquire is paired with a release.
func (s *SessionStore) acquire(id string) *session {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.expire(now)
	sess, ok := s.sessions[id]
	if ok {
		s.order.MoveToFront(sess.elem)
	} else {
		sess = &session{id: id, slot: make(chan struct{}, 1)}
		sess.elem = s.order.PushFront(sess)
		s.sessions[id] = sess
	}
	sess.active++
	sess.lastUsed = now
	return sess
}

// release ends a query. A session left idle with nothing recorded is forgotten.
func (s *SessionStore) release(sess *session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess.active--
	sess.lastUsed = s.now()
	if s.sessions[sess.id] != sess {
		return
	}
	if sess.active == 0 && len(sess.history) == 0 {
		s.remove(sess)
		return
	}
	s.order.MoveToFront(sess.elem)
	s.evict(sess)
}

// expire drops idle sessions unused for longer than IdleTTL. Callers hold mu.
func (s *SessionStore) expire(now time.Time) {
	if s.limits.IdleTTL <= 0 {
		return
	}
	for e := s.order.Back(); e != nil; {
		sess := e.Value.(*session)
		if now.Sub(sess.lastUsed) <= s.limits.IdleTTL {
			return
		}
		prev := e.Prev()
		if sess.active == 0 {
			s.remove(sess)
		}
		e = prev
	}
}

// evict drops least recently used idle sessions other than keep while over MaxSessions. Callers hold mu.
// Sessions with queries in flight are never evicted, so the cap may be exceeded briefly.
func (s *SessionStore) evict(keep *session) {
	if s.limits.MaxSessions <= 0 {
		return
	}
	for e := s.order.Back(); e != nil && len(s.sessions) > s.limits.MaxSessions; {
		prev := e.Prev()
		if sess := e.Value.(*session); sess != keep && sess.active == 0 {
			s.remove(sess)
		}
		e = prev
	}
}

// remove forgets sess if it is still the stored session for its id. Callers hold mu.
func (s *SessionStore) remove(sess *session) {
	if s.sessions[sess.id] != sess {
		return
	}
	delete(s.sessions, sess.id)
	s.order.Remove(sess.elem)
}

// History returns a copy of the session's turns, oldest first.
func (s *SessionStore) History(id string) []models.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil
	}
	out := make([]models.Turn, len(sess.history))
	copy(out, sess.history)
	return out
}

func (s *SessionStore) snapshot(sess *session) []models.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Turn(nil), sess.history...)
}

// append records a completed turn. The caller holds the session lock.
func (s *SessionStore) append(sess *session, turn models.Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.limit <= 0 {
		sess.history = nil
		return
	}
	sess.history = append(sess.history, turn)
	if over := len(sess.history) - s.limit; over > 0 {
		sess.history = append([]models.Turn(nil), sess.history[over:]...)
	}
}

// Reset forgets a session and reports whether it existed. A query still running in it completes
// without recording its turn.
func (s *SessionStore) Reset(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return false
	}
	sess.history = nil
	s.remove(sess)
	return true
}

// Len returns the number of stored sessions.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
