package session

import (
	"github.com/bwmarrin/discordgo"
)

// NewSession creates a new Discord session with the intents the service needs
// to follow voice presence. Events are dispatched synchronously so presence
// changes reach the controller in gateway order.
func NewSession(token string) (*discordgo.Session, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}

	session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates
	session.SyncEvents = true
	session.StateEnabled = true
	session.State.TrackVoice = true

	return session, nil
}
