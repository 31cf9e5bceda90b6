// Package interfaces defines the external collaborators of the session pipeline.
package interfaces

import (
	"context"
	"errors"
	"time"
)

// ErrInputTooLarge is wrapped by collaborators that reject a payload for its
// size. Retrying the same payload cannot succeed.
var ErrInputTooLarge = errors.New("input exceeds inline size limit")

// Audio is an encoded audio payload.
type Audio struct {
	Data       []byte
	MimeType   string
	SampleRate int
	Channels   int
}

// SummaryInput is either audio or a transcript, never both.
type SummaryInput struct {
	Audio      *Audio
	Transcript string
	Meeting    MeetingInfo
}

// MeetingInfo is context rendered into the summary prompt.
type MeetingInfo struct {
	ChannelName string
	Speakers    int
	Duration    time.Duration
	StartedAt   time.Time
}

// Summarizer produces a Markdown summary. It makes one attempt per call.
type Summarizer interface {
	Summarize(ctx context.Context, in SummaryInput) (string, error)
}

// Transcriber converts audio to text. It makes one attempt per call.
type Transcriber interface {
	Transcribe(ctx context.Context, audio Audio) (string, error)
}

// UploadResult identifies an uploaded recording.
type UploadResult struct {
	ID      string
	ViewURL string
}

// Uploader stores a finished recording and returns a shareable link.
type Uploader interface {
	Upload(ctx context.Context, path, displayName string) (*UploadResult, error)
}

// Summary is the content of a posted meeting summary.
type Summary struct {
	Text        string
	ChannelName string
	Speakers    int
	Duration    time.Duration
	Recording   *UploadResult
}

// Notifier delivers results to the notes channel. Both calls are best-effort.
type Notifier interface {
	PostSummary(ctx context.Context, s Summary) error
	PostError(ctx context.Context, message string) error
}
