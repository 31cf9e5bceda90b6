// Package constants provides constants for the application.
package constants

const (
	BootMessageStarting = "Scribe is starting up..."
	BootStepOK          = "✅"
	BootStepSkipped     = "⚠️"

	BootStepDiscord    = "Discord connection established"
	BootStepCache      = "Session cache initialized"
	BootStepSummarizer = "Summarizer initialized"
	BootStepSpeech     = "Speech client initialized"
	BootStepDrive      = "Drive uploader initialized"
	BootStepCleanup    = "Orphaned recordings cleaned up"
)

// Notices posted to the meeting notes channel.
const (
	NoticeNoAudio         = "No valid audio was captured for this meeting."
	NoticeTooLong         = "This meeting was too long to process."
	NoticeSummaryFailed   = "Failed to summarize the meeting after several attempts."
	SummaryNoConversation = "No meaningful conversation was detected in this meeting."
)
