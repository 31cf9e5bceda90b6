package events

import (
	logger "github.com/EasterCompany/dex-scribe-service/log"
	"github.com/bwmarrin/discordgo"
)

// Change is the kind of presence change a voice state update represents.
type Change int

const (
	ChangeNone Change = iota
	ChangeJoined
	ChangeLeft
	ChangeMoved
)

// Presence receives the target user's room changes.
type Presence interface {
	OnTargetJoined(groupID, roomID string)
	OnTargetLeft(groupID string)
	OnTargetMoved(groupID, oldRoomID, newRoomID string)
}

// Handler routes Discord voice state updates for the target user.
type Handler struct {
	TargetUserID string
	Presence     Presence
	Logger       logger.Logger
}

// NewHandler creates a Handler following targetUserID.
func NewHandler(targetUserID string, presence Presence, logger logger.Logger) *Handler {
	return &Handler{TargetUserID: targetUserID, Presence: presence, Logger: logger}
}

// Classify maps a before/after room pair to a Change. Same-room updates
// (mute, deafen, stream toggles) are ChangeNone.
func Classify(before, after string) Change {
	switch {
	case before == after:
		return ChangeNone
	case before == "":
		return ChangeJoined
	case after == "":
		return ChangeLeft
	default:
		return ChangeMoved
	}
}

// VoiceStateUpdate is registered with the discordgo session.
func (h *Handler) VoiceStateUpdate(_ *discordgo.Session, e *discordgo.VoiceStateUpdate) {
	if e == nil || e.VoiceState == nil || e.UserID != h.TargetUserID {
		return
	}
	before := ""
	if e.BeforeUpdate != nil {
		before = e.BeforeUpdate.ChannelID
	}
	h.Route(e.GuildID, before, e.ChannelID)
}

// Route dispatches one presence change for guildID.
func (h *Handler) Route(guildID, before, after string) {
	switch Classify(before, after) {
	case ChangeJoined:
		h.Logger.Info("target joined voice", "guild_id", guildID, "room_id", after)
		h.Presence.OnTargetJoined(guildID, after)
	case ChangeLeft:
		h.Logger.Info("target left voice", "guild_id", guildID, "room_id", before)
		h.Presence.OnTargetLeft(guildID)
	case ChangeMoved:
		h.Presence.OnTargetMoved(guildID, before, after)
	}
}
