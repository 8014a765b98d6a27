package session

import (
	"log/slog"
	"sync"

	"github.com/m3rciful/xlbot/core/logger"
)

// Stats summarizes the store for /stats and the sessions gauge.
type Stats struct {
	Total         int
	Authenticated int
	MidLogin      int
}

// Store maps user ids to sessions. Reads and writes are single-record and
// atomic; Lock serializes whole turns of one user.
type Store struct {
	mu       sync.RWMutex
	sessions map[int64]Session

	locksMu sync.Mutex
	// locks grows with every user seen and is never pruned, like sessions.
	// Reset keeps the entry: a turn may still hold it.
	locks map[int64]*sync.Mutex
}

func NewStore() *Store {
	return &Store{
		sessions: make(map[int64]Session),
		locks:    make(map[int64]*sync.Mutex),
	}
}

// Get returns a copy of the user's session.
func (s *Store) Get(userID int64) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[userID]
	return sess, ok
}

// GetOrCreate returns the user's session, storing a fresh idle one if absent.
func (s *Store) GetOrCreate(userID int64) Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[userID]
	if !ok {
		sess = New()
		s.sessions[userID] = sess
		logger.Debug(logger.Background(), "session", "session.created", slog.Int64("user_id", userID))
	}
	return sess
}

func (s *Store) Set(userID int64, sess Session) {
	s.mu.Lock()
	s.sessions[userID] = sess
	s.mu.Unlock()
}

// Reset replaces the user's session with a fresh idle record.
func (s *Store) Reset(userID int64) {
	s.Set(userID, New())
	logger.Debug(logger.Background(), "session", "session.reset", slog.Int64("user_id", userID))
}

// Lock acquires the user's turn lock and returns its release func.
// Locks of different users never contend.
func (s *Store) Lock(userID int64) func() {
	s.locksMu.Lock()
	m, ok := s.locks[userID]
	if !ok {
		m = &sync.Mutex{}
		s.locks[userID] = m
	}
	s.locksMu.Unlock()

	m.Lock()
	return m.Unlock
}

func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Stats{Total: len(s.sessions)}
	for _, sess := range s.sessions {
		switch {
		case sess.Authenticated():
			st.Authenticated++
		case sess.WaitingFor() != WaitingNone:
			st.MidLogin++
		}
	}
	return st
}
