// Package storage keeps sessions in memory only. Document text is sealed
// under a per-session key and every buffer is zeroed when the session ends
// or expires.
package storage

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/psyprofile/psyprofile-backend/pkg/config"
	"github.com/psyprofile/psyprofile-backend/pkg/errors"
	"github.com/psyprofile/psyprofile-backend/pkg/logger"
)

// Reasons passed to the end hook
const (
	EndReasonEnded    = "ended"
	EndReasonExpired  = "expired"
	EndReasonShutdown = "shutdown"
)

// Store provides in-memory storage for sessions.
// Sessions are cleaned up after they have been idle for the TTL.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	ttl          time.Duration
	maxDocuments int
	maxSessions  int
	log          *logger.Logger
	now          func() time.Time
	onEnd        func(reason string)

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// Option configures a Store
type Option func(*Store)

// WithEndHook is called once for every session that is wiped
func WithEndHook(fn func(reason string)) Option {
	return func(s *Store) { s.onEnd = fn }
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates a session store and starts its cleanup loop
func NewStore(cfg config.SessionConfig, log *logger.Logger, opts ...Option) *Store {
	if log == nil {
		log = logger.Nop()
	}
	s := &Store{
		sessions:     make(map[string]*Session),
		ttl:          cfg.TTL,
		maxDocuments: cfg.MaxDocuments,
		maxSessions:  cfg.MaxSessions,
		log:          log.WithComponent("session-store"),
		now:          time.Now,
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
	if s.ttl <= 0 {
		s.ttl = 30 * time.Minute
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.cleanupLoop()
	return s
}

// TTL returns the idle lifetime of a session
func (s *Store) TTL() time.Duration {
	return s.ttl
}

// GenerateSessionID creates a cryptographically random 128-bit hex id
func GenerateSessionID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Create opens a new empty session with a fresh sealing key. When the store
// is full, expired sessions are swept first.
func (s *Store) Create() (*Session, error) {
	if s.full() {
		s.cleanup()
		if s.full() {
			return nil, errSessionLimit()
		}
	}

	id, err := GenerateSessionID()
	if err != nil {
		return nil, err
	}
	now := s.now()
	sess, err := newSession(id, now, s.maxDocuments)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.maxSessions > 0 && len(s.sessions) >= s.maxSessions {
		s.mu.Unlock()
		sess.wipe()
		return nil, errSessionLimit()
	}
	s.sessions[id] = sess
	s.mu.Unlock()

	s.log.Info().Str("session_id", id).Msg("session started")
	return sess, nil
}

func (s *Store) full() bool {
	return s.maxSessions > 0 && s.Len() >= s.maxSessions
}

func errSessionLimit() error {
	return errors.New("SESSION_LIMIT_REACHED", "too many active sessions, try again later",
		http.StatusServiceUnavailable)
}

// Get returns a live session. Expired sessions are wiped on access.
func (s *Store) Get(id string) (*Session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, errors.NotFound("session")
	}
	if s.expired(sess) {
		s.remove(id, EndReasonExpired)
		return nil, errors.NotFound("session")
	}
	return sess, nil
}

// With runs fn while holding the session's lock and refreshes its activity time
func (s *Store) With(id string, fn func(*Session) error) error {
	sess, err := s.Get(id)
	if err != nil {
		return err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	// The session may have been ended while we waited for its lock.
	if sess.ended {
		return errors.NotFound("session")
	}
	sess.touch(s.now())
	defer func() { sess.touch(s.now()) }()
	return fn(sess)
}

// View runs fn under the session lock without refreshing its activity time
func (s *Store) View(id string, fn func(*Session) error) error {
	sess, err := s.Get(id)
	if err != nil {
		return err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.ended {
		return errors.NotFound("session")
	}
	return fn(sess)
}

// End removes the session and zeroes everything it holds
func (s *Store) End(id string) error {
	if !s.remove(id, EndReasonEnded) {
		return errors.NotFound("session")
	}
	return nil
}

// Len returns the number of live sessions
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Close stops the cleanup loop and wipes every remaining session
func (s *Store) Close() {
	s.closeOnce.Do(func() {
		close(s.stop)
		<-s.done

		s.mu.Lock()
		ids := make([]string, 0, len(s.sessions))
		for id := range s.sessions {
			ids = append(ids, id)
		}
		s.mu.Unlock()

		for _, id := range ids {
			s.remove(id, EndReasonShutdown)
		}
		s.log.Info().Int("sessions", len(ids)).Msg("session store closed")
	})
}

func (s *Store) expired(sess *Session) bool {
	return s.now().Sub(sess.LastActivity()) > s.ttl
}

// remove unlinks the session first so no new caller can reach it, then wipes
// it under its own lock.
func (s *Store) remove(id, reason string) bool {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
	}
	s.mu.Unlock()
	if !ok {
		return false
	}

	sess.mu.Lock()
	sess.wipe()
	sess.mu.Unlock()

	if s.onEnd != nil {
		s.onEnd(reason)
	}
	s.log.Info().Str("session_id", id).Str("reason", reason).Msg("session wiped")
	return true
}

// ZeroBytes overwrites a byte slice with zeros
func ZeroBytes(b []byte) {
	clear(b)
}

// cleanupLoop periodically wipes expired sessions
func (s *Store) cleanupLoop() {
	defer close(s.done)

	ticker := time.NewTicker(max(s.ttl/2, time.Second))
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

func (s *Store) cleanup() {
	var expired []string
	s.mu.RLock()
	for id, sess := range s.sessions {
		if s.expired(sess) {
			expired = append(expired, id)
		}
	}
	s.mu.RUnlock()

	for _, id := range expired {
		s.remove(id, EndReasonExpired)
	}
}
