// Package summary decides whether a recording is summarized and drives the
// external summarization calls under a bounded retry policy.
package summary

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/EasterCompany/dex-scribe-service/config"
	"github.com/EasterCompany/dex-scribe-service/constants"
	"github.com/EasterCompany/dex-scribe-service/interfaces"
	logger "github.com/EasterCompany/dex-scribe-service/log"
	"github.com/EasterCompany/dex-scribe-service/pipeline"
	"github.com/EasterCompany/dex-scribe-service/utils"
)

// Result is the outcome of one summarization. OK is false when every
// attempt failed. Duration is the length of the recorded meeting.
type Result struct {
	Text     string
	OK       bool
	Duration time.Duration
}

// Options configures an Orchestrator.
type Options struct {
	Mode        string
	MinDuration time.Duration
	SampleRate  int
	Channels    int
	Retry       utils.RetryPolicy
}

// Orchestrator runs the summarizer, and the transcriber in transcript mode.
type Orchestrator struct {
	summarizer  interfaces.Summarizer
	transcriber interfaces.Transcriber
	opts        Options
	logger      logger.Logger
	readFile    func(string) ([]byte, error)
}

// NewOrchestrator creates an Orchestrator. transcriber may be nil in audio mode.
func NewOrchestrator(summarizer interfaces.Summarizer, transcriber interfaces.Transcriber, opts Options, logger logger.Logger) *Orchestrator {
	if opts.Mode == "" {
		opts.Mode = config.ModeAudio
	}
	if opts.Retry.Attempts == 0 {
		opts.Retry = utils.DefaultRetryPolicy()
	}
	if opts.Retry.Permanent == nil {
		opts.Retry.Permanent = func(err error) bool {
			return errors.Is(err, interfaces.ErrInputTooLarge)
		}
	}
	if opts.Retry.OnRetry == nil {
		opts.Retry.OnRetry = func(attempt int, delay time.Duration, err error) {
			logger.Warn("summarization attempt failed, retrying", "attempt", attempt, "delay", delay, "error", err)
		}
	}
	return &Orchestrator{
		summarizer:  summarizer,
		transcriber: transcriber,
		opts:        opts,
		logger:      logger,
		readFile:    os.ReadFile,
	}
}

// ShouldSummarize reports whether a recording of duration d is long enough.
func (o *Orchestrator) ShouldSummarize(d time.Duration) bool {
	return d >= o.opts.MinDuration
}

// Summarize produces the summary for out. It never returns an error; a
// failure is reported as OK false.
func (o *Orchestrator) Summarize(ctx context.Context, out *pipeline.Output, meeting interfaces.MeetingInfo) Result {
	start := time.Now()
	if out.NearEmpty {
		return Result{Text: constants.SummaryNoConversation, OK: true, Duration: meeting.Duration}
	}

	in, err := o.prepare(ctx, out, meeting)
	if err != nil {
		o.logger.Error("SummaryFailure", err, "mode", o.opts.Mode)
		return Result{Duration: meeting.Duration}
	}

	var text string
	err = o.opts.Retry.Do(ctx, func(ctx context.Context) error {
		var callErr error
		text, callErr = o.summarizer.Summarize(ctx, in)
		return callErr
	})
	elapsed := time.Since(start)
	if err != nil {
		utils.IncrementSummaryFailures()
		o.logger.Error("SummaryFailure", err, "mode", o.opts.Mode, "elapsed", elapsed)
		return Result{Duration: meeting.Duration}
	}
	o.logger.Info("summary generated", "mode", o.opts.Mode, "chars", len(text), "elapsed", elapsed)
	return Result{Text: text, OK: true, Duration: meeting.Duration}
}

func (o *Orchestrator) prepare(ctx context.Context, out *pipeline.Output, meeting interfaces.MeetingInfo) (interfaces.SummaryInput, error) {
	in := interfaces.SummaryInput{Meeting: meeting}
	if o.opts.Mode != config.ModeTranscript {
		data, err := o.readFile(out.SummaryInput)
		if err != nil {
			return in, fmt.Errorf("could not read summary input: %w", err)
		}
		in.Audio = &interfaces.Audio{
			Data:       data,
			MimeType:   out.MimeType(),
			SampleRate: o.opts.SampleRate,
			Channels:   o.opts.Channels,
		}
		return in, nil
	}

	if o.transcriber == nil {
		return in, fmt.Errorf("transcript mode requires a transcriber")
	}
	audio, err := o.transcriptAudio(out)
	if err != nil {
		return in, err
	}

	var transcript string
	err = o.opts.Retry.Do(ctx, func(ctx context.Context) error {
		var callErr error
		transcript, callErr = o.transcriber.Transcribe(ctx, audio)
		return callErr
	})
	if err != nil {
		return in, fmt.Errorf("transcription: %w", err)
	}
	in.Transcript = transcript
	return in, nil
}

// transcriptAudio prefers the downsampled rendition and falls back to the
// merged track.
func (o *Orchestrator) transcriptAudio(out *pipeline.Output) (interfaces.Audio, error) {
	if out.Transcript != "" {
		data, err := o.readFile(out.Transcript)
		if err != nil {
			return interfaces.Audio{}, fmt.Errorf("could not read transcript audio: %w", err)
		}
		return interfaces.Audio{Data: data, MimeType: pipeline.MimeTypeFor(out.Transcript), SampleRate: out.TranscriptRate, Channels: 1}, nil
	}

	data, err := o.readFile(out.Merged)
	if err != nil {
		return interfaces.Audio{}, fmt.Errorf("could not read merged audio: %w", err)
	}
	audio := interfaces.Audio{Data: data, MimeType: pipeline.MimeTypeFor(out.Merged), SampleRate: o.opts.SampleRate, Channels: o.opts.Channels}
	if audio.MimeType == "audio/wav" {
		// merged tracks are downmixed to mono
		audio.Channels = 1
	}
	return audio, nil
}
