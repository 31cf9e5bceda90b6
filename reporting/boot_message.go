// Package reporting posts meeting results and service status to Discord.
package reporting

import (
	"strings"

	"github.com/EasterCompany/dex-scribe-service/constants"
	logger "github.com/EasterCompany/dex-scribe-service/log"
)

// BootMessage is the startup message in the log channel. Each completed boot
// step is appended as a check line and the message is edited in place.
type BootMessage struct {
	Logger    logger.Logger
	MessageID string
	steps     []string
}

// NewBootMessage creates a new BootMessage.
func NewBootMessage(logger logger.Logger) *BootMessage {
	return &BootMessage{Logger: logger}
}

// PostInitialMessage posts the initial startup message.
func (b *BootMessage) PostInitialMessage() {
	bootMessage, err := b.Logger.PostInitialMessage(constants.BootMessageStarting)
	if err != nil {
		b.Logger.Error("Failed to post initial boot message", err)
		return
	}
	if bootMessage != nil {
		b.MessageID = bootMessage.ID
	}
}

// Done records a completed step.
func (b *BootMessage) Done(step string) {
	b.add(constants.BootStepOK + " " + step)
}

// Skipped records a step that was disabled or failed without stopping boot.
func (b *BootMessage) Skipped(step, reason string) {
	b.add(constants.BootStepSkipped + " " + step + " (" + reason + ")")
}

func (b *BootMessage) add(line string) {
	b.steps = append(b.steps, line)
	if b.MessageID != "" {
		b.Logger.UpdateInitialMessage(b.MessageID, b.Content())
	}
}

// Content renders the message as it currently stands.
func (b *BootMessage) Content() string {
	return strings.Join(append([]string{constants.BootMessageStarting}, b.steps...), "\n")
}
