package worker

import (
	"context"
	"errors"
	"time"

	"github.com/EasterCompany/dex-scribe-service/audio"
	"github.com/EasterCompany/dex-scribe-service/cleanup"
	"github.com/EasterCompany/dex-scribe-service/constants"
	"github.com/EasterCompany/dex-scribe-service/interfaces"
	logger "github.com/EasterCompany/dex-scribe-service/log"
	"github.com/EasterCompany/dex-scribe-service/pipeline"
	"github.com/EasterCompany/dex-scribe-service/summary"
	"github.com/EasterCompany/dex-scribe-service/upload"
	"github.com/EasterCompany/dex-scribe-service/utils"
)

// PostProcessor turns a stopped recording into summarizer input.
type PostProcessor interface {
	Run(ctx context.Context, res *audio.Result) (*pipeline.Output, error)
}

// SummaryOrchestrator gates and produces summaries.
type SummaryOrchestrator interface {
	ShouldSummarize(d time.Duration) bool
	Summarize(ctx context.Context, out *pipeline.Output, meeting interfaces.MeetingInfo) summary.Result
}

// Chain runs every stage for a stopped recording: pipeline, summary, upload,
// delivery and cleanup.
type Chain struct {
	Pipeline PostProcessor
	Summary  SummaryOrchestrator
	// Uploader is optional.
	Uploader      interfaces.Uploader
	Notifier      interfaces.Notifier
	KeepArtifacts bool
	// PipelineTimeout bounds the ffmpeg stages.
	PipelineTimeout time.Duration
	Logger          logger.Logger
}

// Process implements JobHandler.
func (c *Chain) Process(ctx context.Context, job Job) {
	res := job.Result
	if err := ctx.Err(); err != nil {
		c.Logger.Warn("skipping session at shutdown, artifacts kept", "session_id", res.SessionID, "dir", res.Dir)
		return
	}

	defer func() {
		utils.IncrementSessionsCompleted()
		if c.KeepArtifacts {
			return
		}
		removed := cleanup.RemoveArtifacts(res.Dir)
		c.Logger.Info("removed session artifacts", "session_id", res.SessionID, "files", removed.Count, "bytes", removed.BytesFreed)
	}()

	if !c.Summary.ShouldSummarize(res.Duration) {
		c.Logger.Info("session too short to summarize", "session_id", res.SessionID, "duration", res.Duration)
		return
	}

	pctx := ctx
	if c.PipelineTimeout > 0 {
		var cancel context.CancelFunc
		pctx, cancel = context.WithTimeout(ctx, c.PipelineTimeout)
		defer cancel()
	}
	out, err := c.Pipeline.Run(pctx, res)
	if err != nil {
		if errors.Is(err, pipeline.ErrNoValidAudio) {
			c.Logger.Warn("no valid audio captured", "session_id", res.SessionID, "artifacts", len(res.Artifacts))
			_ = c.Notifier.PostError(ctx, constants.NoticeNoAudio)
			return
		}
		c.Logger.Error("PipelineFailure", err, "session_id", res.SessionID)
		_ = c.Notifier.PostError(ctx, constants.NoticeSummaryFailed)
		return
	}

	if out.TooLarge {
		c.Logger.Warn("summary input too large", "session_id", res.SessionID, "bytes", out.InputBytes)
		_ = c.Notifier.PostError(ctx, constants.NoticeTooLong)
		return
	}

	meeting := interfaces.MeetingInfo{
		ChannelName: job.ChannelName,
		Speakers:    speakerCount(out.Valid),
		Duration:    res.Duration,
		StartedAt:   res.StartedAt,
	}
	result := c.Summary.Summarize(ctx, out, meeting)
	if !result.OK {
		_ = c.Notifier.PostError(ctx, constants.NoticeSummaryFailed)
		return
	}

	if err := c.Notifier.PostSummary(ctx, interfaces.Summary{
		Text:        result.Text,
		ChannelName: job.ChannelName,
		Speakers:    meeting.Speakers,
		Duration:    result.Duration,
		Recording:   c.upload(ctx, res, out),
	}); err == nil {
		utils.IncrementSummariesPosted()
	}
}

// upload stores the transcoded recording. Failure only drops the link.
func (c *Chain) upload(ctx context.Context, res *audio.Result, out *pipeline.Output) *interfaces.UploadResult {
	if c.Uploader == nil || out.Transcoded == "" {
		return nil
	}
	uploaded, err := c.Uploader.Upload(ctx, out.Transcoded, upload.MeetingFileName(res.StartedAt))
	if err != nil {
		c.Logger.Error("UploadFailure", err, "session_id", res.SessionID)
		return nil
	}
	c.Logger.Info("recording uploaded", "session_id", res.SessionID, "file_id", uploaded.ID)
	return uploaded
}

func speakerCount(artifacts []audio.Artifact) int {
	seen := make(map[string]struct{}, len(artifacts))
	for _, a := range artifacts {
		seen[a.SpeakerID] = struct{}{}
	}
	return len(seen)
}
