// Package pipeline turns a stopped recording's per-speaker artifacts into one
// merged track, a distributable mp3 and the input handed to the summarizer.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/EasterCompany/dex-scribe-service/audio"
	logger "github.com/EasterCompany/dex-scribe-service/log"
)

// ErrNoValidAudio is returned when no artifact survives the size filter.
var ErrNoValidAudio = errors.New("no valid audio captured")

// Options tunes a Processor.
type Options struct {
	FFmpegPath       string
	MinArtifactBytes int64
	NearEmptyBytes   int64
	MaxSummaryBytes  int64
	Quality          int
	// TranscriptSampleRate, when set, adds a mono Opus rendition at this
	// rate for the speech-to-text service.
	TranscriptSampleRate int
}

// Output is the result of one pipeline run. Files lists everything the run
// created, for cleanup.
type Output struct {
	Valid      []audio.Artifact
	Merged     string
	Transcoded string
	// Transcript is the downsampled speech-to-text input, if one was made.
	Transcript     string
	TranscriptRate int
	// SummaryInput is the file handed to the summarizer.
	SummaryInput string
	InputBytes   int64
	TooLarge     bool
	NearEmpty    bool
	Files        []string
}

// MimeType returns the MIME type of the summarizer input.
func (o *Output) MimeType() string {
	return MimeTypeFor(o.SummaryInput)
}

// MimeTypeFor maps an artifact's extension to its MIME type.
func MimeTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	case ".ogg":
		return "audio/ogg"
	}
	return "application/octet-stream"
}

// Processor runs the merge, transcode and guard stages.
type Processor struct {
	exec   Executor
	opts   Options
	logger logger.Logger
}

// NewProcessor creates a Processor running ffmpeg through exec.
func NewProcessor(exec Executor, opts Options, logger logger.Logger) *Processor {
	if opts.FFmpegPath == "" {
		opts.FFmpegPath = "ffmpeg"
	}
	if opts.Quality == 0 {
		opts.Quality = 2
	}
	return &Processor{exec: exec, opts: opts, logger: logger}
}

// Filter drops artifacts that are missing or below the minimum size.
func (p *Processor) Filter(artifacts []audio.Artifact) []audio.Artifact {
	valid := make([]audio.Artifact, 0, len(artifacts))
	for _, a := range artifacts {
		info, err := os.Stat(a.Path)
		if err != nil {
			p.logger.Warn("skipping missing artifact", "path", a.Path, "error", err)
			continue
		}
		if info.Size() < p.opts.MinArtifactBytes {
			p.logger.Info("skipping near-silent artifact", "path", a.Path, "bytes", info.Size())
			continue
		}
		valid = append(valid, a)
	}
	return valid
}

// Merge mixes valid artifacts into one track in dir. A single artifact is
// returned unchanged. If ffmpeg fails the first artifact is returned and
// merged is false.
func (p *Processor) Merge(ctx context.Context, dir, sessionID string, valid []audio.Artifact) (path string, merged bool, err error) {
	switch len(valid) {
	case 0:
		return "", false, ErrNoValidAudio
	case 1:
		return valid[0].Path, false, nil
	}

	output := filepath.Join(dir, fmt.Sprintf("merged-%s.wav", sessionID))
	if _, err := p.exec.Execute(ctx, p.opts.FFmpegPath, mergeArgs(valid, output)...); err != nil {
		p.logger.Error("MergeFailure", err, "inputs", len(valid))
		_ = os.Remove(output)
		return valid[0].Path, false, nil
	}
	return output, true, nil
}

// Transcode converts input to an mp3 in dir.
func (p *Processor) Transcode(ctx context.Context, dir, sessionID, input string) (string, error) {
	output := filepath.Join(dir, fmt.Sprintf("meeting-%s.mp3", sessionID))
	if _, err := p.exec.Execute(ctx, p.opts.FFmpegPath, transcodeArgs(input, output, p.opts.Quality)...); err != nil {
		_ = os.Remove(output)
		return "", fmt.Errorf("transcoding %s: %w", filepath.Base(input), err)
	}
	return output, nil
}

// Downsample renders input as mono Opus at rate in dir.
func (p *Processor) Downsample(ctx context.Context, dir, sessionID, input string, rate int) (string, error) {
	output := filepath.Join(dir, fmt.Sprintf("transcript-%s.ogg", sessionID))
	if _, err := p.exec.Execute(ctx, p.opts.FFmpegPath, downsampleArgs(input, output, rate)...); err != nil {
		_ = os.Remove(output)
		return "", fmt.Errorf("downsampling %s: %w", filepath.Base(input), err)
	}
	return output, nil
}

// Run executes every stage for a stopped recording.
func (p *Processor) Run(ctx context.Context, res *audio.Result) (*Output, error) {
	out := &Output{}
	out.Valid = p.Filter(res.Artifacts)

	merged, created, err := p.Merge(ctx, res.Dir, res.SessionID, out.Valid)
	if err != nil {
		return out, err
	}
	out.Merged = merged
	if created {
		out.Files = append(out.Files, merged)
	}

	transcoded, err := p.Transcode(ctx, res.Dir, res.SessionID, merged)
	if err != nil {
		p.logger.Error("TranscodeFailure", err, "session_id", res.SessionID)
	} else {
		out.Transcoded = transcoded
		out.Files = append(out.Files, transcoded)
	}

	if rate := p.opts.TranscriptSampleRate; rate > 0 {
		transcript, err := p.Downsample(ctx, res.Dir, res.SessionID, merged, rate)
		if err != nil {
			p.logger.Error("DownsampleFailure", err, "session_id", res.SessionID)
		} else {
			out.Transcript = transcript
			out.TranscriptRate = rate
			out.Files = append(out.Files, transcript)
		}
	}

	out.SummaryInput = out.Merged
	if out.Transcoded != "" {
		out.SummaryInput = out.Transcoded
	}
	info, err := os.Stat(out.SummaryInput)
	if err != nil {
		return out, fmt.Errorf("stat summary input: %w", err)
	}
	out.InputBytes = info.Size()

	switch {
	case p.opts.MaxSummaryBytes > 0 && out.InputBytes > p.opts.MaxSummaryBytes:
		out.TooLarge = true
	case out.InputBytes < p.opts.NearEmptyBytes:
		out.NearEmpty = true
	}

	p.logger.Info("post-processing complete",
		"session_id", res.SessionID,
		"valid", len(out.Valid),
		"merged", out.Merged,
		"transcoded", out.Transcoded,
		"bytes", out.InputBytes,
		"too_large", out.TooLarge,
		"near_empty", out.NearEmpty,
	)
	return out, nil
}
