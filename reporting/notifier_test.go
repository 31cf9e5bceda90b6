package reporting

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/EasterCompany/dex-scribe-service/interfaces"
	logger "github.com/EasterCompany/dex-scribe-service/log"
	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	channelID string
	embeds    []*discordgo.MessageEmbed
	err       error
}

func (f *fakeSender) ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.channelID = channelID
	f.embeds = append(f.embeds, embed)
	return &discordgo.Message{ID: "m1"}, nil
}

func TestPostSummary_WithLink(t *testing.T) {
	sender := &fakeSender{}
	n := NewNotifier(sender, "notes", logger.NewNop())

	err := n.PostSummary(context.Background(), interfaces.Summary{
		Text:        "## Meeting Agenda",
		ChannelName: "standup",
		Speakers:    2,
		Duration:    185 * time.Second,
		Recording:   &interfaces.UploadResult{ID: "f1", ViewURL: "https://drive.google.com/file/d/f1/view"},
	})
	require.NoError(t, err)
	require.Len(t, sender.embeds, 1)

	e := sender.embeds[0]
	assert.Equal(t, "notes", sender.channelID)
	assert.Equal(t, "Meeting Summary", e.Title)
	assert.Equal(t, summaryColor, e.Color)
	assert.Equal(t, "Duration: 185s", e.Footer.Text)
	require.Len(t, e.Fields, 3)
	assert.Equal(t, "Recording", e.Fields[2].Name)
	assert.Contains(t, e.Fields[2].Value, "https://drive.google.com/file/d/f1/view")
}

func TestPostSummary_WithoutLink(t *testing.T) {
	sender := &fakeSender{}
	n := NewNotifier(sender, "notes", logger.NewNop())

	require.NoError(t, n.PostSummary(context.Background(), interfaces.Summary{Text: "x", Duration: time.Minute}))
	for _, f := range sender.embeds[0].Fields {
		assert.NotEqual(t, "Recording", f.Name)
	}
}

func TestPostSummary_Truncates(t *testing.T) {
	e := SummaryEmbed(interfaces.Summary{Text: strings.Repeat("é", 5000)}, time.Now())
	assert.Equal(t, embedDescriptionLimit, len([]rune(e.Description)))
	assert.True(t, strings.HasSuffix(e.Description, "..."))
}

func TestPostError(t *testing.T) {
	sender := &fakeSender{}
	n := NewNotifier(sender, "notes", logger.NewNop())

	require.NoError(t, n.PostError(context.Background(), "No audio was captured."))
	assert.Equal(t, "Error Processing Meeting", sender.embeds[0].Title)
	assert.Equal(t, errorColor, sender.embeds[0].Color)
}

func TestNotifier_Fallbacks(t *testing.T) {
	n := NewNotifier(&fakeSender{}, "", logger.NewNop())
	assert.ErrorContains(t, n.PostSummary(context.Background(), interfaces.Summary{Text: "x"}), "no meeting notes channel")

	n = NewNotifier(&fakeSender{err: errors.New("50013 missing permissions")}, "notes", logger.NewNop())
	assert.ErrorContains(t, n.PostError(context.Background(), "x"), "missing permissions")
}
