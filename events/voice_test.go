package events

import (
	"testing"

	logger "github.com/EasterCompany/dex-scribe-service/log"
	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
)

type presenceCall struct {
	kind          string
	guild, before string
	after         string
}

type fakePresence struct{ calls []presenceCall }

func (f *fakePresence) OnTargetJoined(g, r string) {
	f.calls = append(f.calls, presenceCall{kind: "joined", guild: g, after: r})
}

func (f *fakePresence) OnTargetLeft(g string) {
	f.calls = append(f.calls, presenceCall{kind: "left", guild: g})
}

func (f *fakePresence) OnTargetMoved(g, old, new string) {
	f.calls = append(f.calls, presenceCall{kind: "moved", guild: g, before: old, after: new})
}

func TestClassify(t *testing.T) {
	tests := []struct {
		before, after string
		want          Change
	}{
		{"", "a", ChangeJoined},
		{"a", "", ChangeLeft},
		{"a", "b", ChangeMoved},
		{"a", "a", ChangeNone},
		{"", "", ChangeNone},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.before, tt.after), "%q -> %q", tt.before, tt.after)
	}
}

func update(userID, guildID, before, after string) *discordgo.VoiceStateUpdate {
	e := &discordgo.VoiceStateUpdate{VoiceState: &discordgo.VoiceState{UserID: userID, GuildID: guildID, ChannelID: after}}
	if before != "" {
		e.BeforeUpdate = &discordgo.VoiceState{UserID: userID, GuildID: guildID, ChannelID: before}
	}
	return e
}

func TestVoiceStateUpdate_Routing(t *testing.T) {
	p := &fakePresence{}
	h := NewHandler("target", p, logger.NewNop())

	h.VoiceStateUpdate(nil, update("someone-else", "g1", "", "a"))
	h.VoiceStateUpdate(nil, update("target", "g1", "", "a"))
	h.VoiceStateUpdate(nil, update("target", "g1", "a", "a"))
	h.VoiceStateUpdate(nil, update("target", "g1", "a", "b"))
	h.VoiceStateUpdate(nil, update("target", "g1", "b", ""))

	assert.Equal(t, []presenceCall{
		{kind: "joined", guild: "g1", after: "a"},
		{kind: "moved", guild: "g1", before: "a", after: "b"},
		{kind: "left", guild: "g1"},
	}, p.calls)
}
