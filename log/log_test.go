package log

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakePoster struct {
	sent []string
}

func (f *fakePoster) ChannelMessageSend(_ string, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.sent = append(f.sent, content)
	return &discordgo.Message{ID: "m1"}, nil
}

func (f *fakePoster) ChannelMessageEdit(_, _, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	return &discordgo.Message{ID: "m1"}, nil
}

func TestPost_TruncatesOnRuneBoundary(t *testing.T) {
	p := &fakePoster{}
	l := &logger{sugar: zap.NewNop().Sugar(), poster: p, channelID: "logs"}

	l.Post(strings.Repeat("会議", discordMessageLimit))

	require.Len(t, p.sent, 1)
	assert.True(t, utf8.ValidString(p.sent[0]))
	assert.Equal(t, discordMessageLimit, utf8.RuneCountInString(p.sent[0]))
	assert.True(t, strings.HasSuffix(p.sent[0], "..."))
}

func TestPost_NoChannel(t *testing.T) {
	p := &fakePoster{}
	l := &logger{sugar: zap.NewNop().Sugar(), poster: p}
	l.Post("hello")
	assert.Empty(t, p.sent)
}
