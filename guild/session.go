// Package guild defines the per-guild voice session tracked while the target
// user is present in a voice channel.
package guild

import (
	"sync"
	"time"

	"github.com/EasterCompany/dex-scribe-service/voice"
	"github.com/google/uuid"
)

// Session holds the state for a single guild's logical voice connection.
type Session struct {
	ID      string
	GuildID string
	RoomID  string

	mu         sync.Mutex
	state      voice.State
	startedAt  time.Time
	conn       voice.Connection
	unobserve  func()
	maxTimer   *time.Timer
	teardownBy string
}

// NewSession creates a session in Connecting for guildID and roomID.
func NewSession(guildID, roomID string) *Session {
	return &Session{
		ID:      uuid.NewString(),
		GuildID: guildID,
		RoomID:  roomID,
		state:   voice.StateConnecting,
	}
}

// State returns the session's connection state.
func (s *Session) State() voice.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Live reports whether the session is neither idle nor destroyed.
func (s *Session) Live() bool {
	st := s.State()
	return st != voice.StateIdle && st != voice.StateDestroyed
}

// SetState records a connection transition. It has no effect once destroyed.
func (s *Session) SetState(st voice.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == voice.StateDestroyed {
		return
	}
	s.state = st
}

// MarkReady moves the session to Ready and records StartedAt the first time.
func (s *Session) MarkReady(conn voice.Connection, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == voice.StateDestroyed {
		return
	}
	s.state = voice.StateReady
	s.conn = conn
	if s.startedAt.IsZero() {
		s.startedAt = now
	}
}

// StartedAt returns when the session first became ready.
func (s *Session) StartedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startedAt
}

// Connection returns the voice connection once the session is ready.
func (s *Session) Connection() voice.Connection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

// Attach stores the observer removal func and an optional max-duration
// timer, both released by BeginTeardown.
func (s *Session) Attach(unobserve func(), maxTimer *time.Timer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unobserve = unobserve
	s.maxTimer = maxTimer
}

// BeginTeardown atomically moves the session to Destroyed. Only the first
// caller gets true and must perform the teardown work.
func (s *Session) BeginTeardown(reason string) bool {
	s.mu.Lock()
	if s.state == voice.StateDestroyed {
		s.mu.Unlock()
		return false
	}
	s.state = voice.StateDestroyed
	s.teardownBy = reason
	unobserve, timer := s.unobserve, s.maxTimer
	s.unobserve, s.maxTimer = nil, nil
	s.mu.Unlock()

	if unobserve != nil {
		unobserve()
	}
	if timer != nil {
		timer.Stop()
	}
	return true
}

// TeardownReason returns the reason passed to the winning BeginTeardown.
func (s *Session) TeardownReason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.teardownBy
}

// Snapshot is the persisted form of a Session.
type Snapshot struct {
	ID        string    `json:"id"`
	GuildID   string    `json:"guild_id"`
	RoomID    string    `json:"room_id"`
	State     string    `json:"state"`
	StartedAt time.Time `json:"started_at"`
	WorkDir   string    `json:"work_dir,omitempty"`
}

// Snapshot returns the persisted form of s.
func (s *Session) Snapshot(workDir string) *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &Snapshot{
		ID:        s.ID,
		GuildID:   s.GuildID,
		RoomID:    s.RoomID,
		State:     s.state.String(),
		StartedAt: s.startedAt,
		WorkDir:   workDir,
	}
}
