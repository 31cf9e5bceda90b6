package events

import (
	"sync"

	"github.com/EasterCompany/dex-scribe-service/guild"
)

// StateManager manages the sessions of all guilds.
type StateManager struct {
	sessions sync.Map
}

// NewStateManager creates a new state manager.
func NewStateManager() *StateManager {
	return &StateManager{}
}

// GetSession returns the session for a given guild.
func (sm *StateManager) GetSession(guildID string) (*guild.Session, bool) {
	value, ok := sm.sessions.Load(guildID)
	if !ok {
		return nil, false
	}
	return value.(*guild.Session), true
}

// StoreSession registers s as its guild's session, replacing any previous one.
func (sm *StateManager) StoreSession(s *guild.Session) {
	sm.sessions.Store(s.GuildID, s)
}

// DeleteSession removes s if it is still its guild's session.
func (sm *StateManager) DeleteSession(s *guild.Session) {
	sm.sessions.CompareAndDelete(s.GuildID, s)
}

// Sessions returns every registered session.
func (sm *StateManager) Sessions() []*guild.Session {
	var out []*guild.Session
	sm.sessions.Range(func(_, value any) bool {
		out = append(out, value.(*guild.Session))
		return true
	})
	return out
}
