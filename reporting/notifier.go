package reporting

import (
	"context"
	"fmt"
	"time"

	"github.com/EasterCompany/dex-scribe-service/interfaces"
	logger "github.com/EasterCompany/dex-scribe-service/log"
	"github.com/EasterCompany/dex-scribe-service/utils"
	"github.com/bwmarrin/discordgo"
)

const (
	summaryColor = 0x0099ff
	errorColor   = 0xff0000
	// embedDescriptionLimit is Discord's maximum embed description length.
	embedDescriptionLimit = 4096
)

// EmbedSender is the subset of *discordgo.Session the notifier uses.
type EmbedSender interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Notifier posts meeting results to the notes channel, falling back to the
// log when the channel is unset or the post fails.
type Notifier struct {
	sender    EmbedSender
	channelID string
	logger    logger.Logger
	now       func() time.Time
}

// NewNotifier creates a Notifier posting to channelID.
func NewNotifier(sender EmbedSender, channelID string, logger logger.Logger) *Notifier {
	return &Notifier{sender: sender, channelID: channelID, logger: logger, now: time.Now}
}

// SummaryEmbed builds the embed for a meeting summary.
func SummaryEmbed(s interfaces.Summary, at time.Time) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       "Meeting Summary",
		Description: utils.Truncate(s.Text, embedDescriptionLimit),
		Color:       summaryColor,
		Timestamp:   at.Format(time.RFC3339),
		Footer: &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("Duration: %ds", int(s.Duration.Round(time.Second).Seconds())),
		},
	}
	if s.ChannelName != "" {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: "Channel", Value: s.ChannelName, Inline: true})
	}
	if s.Speakers > 0 {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: "Speakers", Value: fmt.Sprintf("%d", s.Speakers), Inline: true})
	}
	if s.Recording != nil && s.Recording.ViewURL != "" {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: "Recording", Value: fmt.Sprintf("[Listen](%s)", s.Recording.ViewURL)})
	}
	return embed
}

// ErrorEmbed builds the embed for a failed meeting.
func ErrorEmbed(message string, at time.Time) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "Error Processing Meeting",
		Description: utils.Truncate(message, embedDescriptionLimit),
		Color:       errorColor,
		Timestamp:   at.Format(time.RFC3339),
	}
}

// PostSummary posts s. Failures are logged with the summary text and returned.
func (n *Notifier) PostSummary(_ context.Context, s interfaces.Summary) error {
	if err := n.send(SummaryEmbed(s, n.now())); err != nil {
		n.logger.Error("DeliveryFailure", err, "summary", s.Text)
		return err
	}
	n.logger.Info("summary posted", "channel_id", n.channelID)
	return nil
}

// PostError posts an error notice. Failures are logged and returned.
func (n *Notifier) PostError(_ context.Context, message string) error {
	if err := n.send(ErrorEmbed(message, n.now())); err != nil {
		n.logger.Error("DeliveryFailure", err, "notice", message)
		return err
	}
	return nil
}

func (n *Notifier) send(embed *discordgo.MessageEmbed) error {
	if n.sender == nil || n.channelID == "" {
		return fmt.Errorf("no meeting notes channel configured")
	}
	if _, err := n.sender.ChannelMessageSendEmbed(n.channelID, embed); err != nil {
		return fmt.Errorf("failed to send to channel %s: %w", n.channelID, err)
	}
	return nil
}
