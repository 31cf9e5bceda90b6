package summary

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/EasterCompany/dex-scribe-service/config"
	"github.com/EasterCompany/dex-scribe-service/constants"
	"github.com/EasterCompany/dex-scribe-service/interfaces"
	"github.com/EasterCompany/dex-scribe-service/llm"
	logger "github.com/EasterCompany/dex-scribe-service/log"
	"github.com/EasterCompany/dex-scribe-service/pipeline"
	"github.com/EasterCompany/dex-scribe-service/stt"
	"github.com/EasterCompany/dex-scribe-service/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSummarizer struct {
	failures int
	calls    int
	inputs   []interfaces.SummaryInput
}

func (f *fakeSummarizer) Summarize(_ context.Context, in interfaces.SummaryInput) (string, error) {
	f.calls++
	f.inputs = append(f.inputs, in)
	if f.calls <= f.failures {
		return "", errors.New("503 unavailable")
	}
	return "## Meeting Agenda\n- standup", nil
}

type fakeTranscriber struct {
	audio []interfaces.Audio
	err   error
}

func (f *fakeTranscriber) Transcribe(_ context.Context, a interfaces.Audio) (string, error) {
	f.audio = append(f.audio, a)
	return "we agreed to ship friday", f.err
}

type recordedSleeps struct{ delays []time.Duration }

func (r *recordedSleeps) sleep(_ context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return nil
}

func newOrchestrator(s interfaces.Summarizer, tr interfaces.Transcriber, mode string, sleeps *recordedSleeps) *Orchestrator {
	return NewOrchestrator(s, tr, Options{
		Mode:        mode,
		MinDuration: 2 * time.Minute,
		SampleRate:  48000,
		Channels:    2,
		Retry:       utils.RetryPolicy{Attempts: 3, BaseDelay: 2 * time.Second, Sleep: sleeps.sleep},
	}, logger.NewNop())
}

func writeInput(t *testing.T, name string) string {
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, make([]byte, 8192), 0644))
	return path
}

func TestShouldSummarize(t *testing.T) {
	o := newOrchestrator(&fakeSummarizer{}, nil, config.ModeAudio, &recordedSleeps{})
	assert.False(t, o.ShouldSummarize(119*time.Second))
	assert.True(t, o.ShouldSummarize(2*time.Minute))
	assert.True(t, o.ShouldSummarize(185*time.Second))
}

func TestSummarize_SucceedsOnThirdAttempt(t *testing.T) {
	s := &fakeSummarizer{failures: 2}
	sleeps := &recordedSleeps{}
	o := newOrchestrator(s, nil, config.ModeAudio, sleeps)

	mp3 := writeInput(t, "meeting-s1.mp3")
	res := o.Summarize(context.Background(), &pipeline.Output{SummaryInput: mp3, Transcoded: mp3}, interfaces.MeetingInfo{Speakers: 2})

	assert.True(t, res.OK)
	assert.Contains(t, res.Text, "Meeting Agenda")
	assert.Equal(t, 3, s.calls)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, sleeps.delays)

	require.NotNil(t, s.inputs[0].Audio)
	assert.Equal(t, "audio/mpeg", s.inputs[0].Audio.MimeType)
	assert.Len(t, s.inputs[0].Audio.Data, 8192)
	assert.Equal(t, 2, s.inputs[0].Meeting.Speakers)
}

func TestSummarize_AllAttemptsFail(t *testing.T) {
	s := &fakeSummarizer{failures: 10}
	sleeps := &recordedSleeps{}
	o := newOrchestrator(s, nil, config.ModeAudio, sleeps)

	res := o.Summarize(context.Background(), &pipeline.Output{SummaryInput: writeInput(t, "merged.wav")}, interfaces.MeetingInfo{})

	assert.False(t, res.OK)
	assert.Empty(t, res.Text)
	assert.Equal(t, 3, s.calls)
	assert.Len(t, sleeps.delays, 2)
}

func TestSummarize_NearEmptySkipsService(t *testing.T) {
	s := &fakeSummarizer{}
	o := newOrchestrator(s, nil, config.ModeAudio, &recordedSleeps{})

	res := o.Summarize(context.Background(), &pipeline.Output{NearEmpty: true}, interfaces.MeetingInfo{})
	assert.True(t, res.OK)
	assert.Equal(t, constants.SummaryNoConversation, res.Text)
	assert.Zero(t, s.calls)
}

func TestSummarize_MissingInput(t *testing.T) {
	s := &fakeSummarizer{}
	o := newOrchestrator(s, nil, config.ModeAudio, &recordedSleeps{})

	res := o.Summarize(context.Background(), &pipeline.Output{SummaryInput: "/does/not/exist.mp3"}, interfaces.MeetingInfo{})
	assert.False(t, res.OK)
	assert.Zero(t, s.calls)
}

func TestSummarize_TranscriptMode(t *testing.T) {
	s := &fakeSummarizer{}
	tr := &fakeTranscriber{}
	o := newOrchestrator(s, tr, config.ModeTranscript, &recordedSleeps{})

	wav := writeInput(t, "merged-s1.wav")
	res := o.Summarize(context.Background(), &pipeline.Output{Merged: wav, SummaryInput: writeInput(t, "meeting-s1.mp3")}, interfaces.MeetingInfo{})

	require.True(t, res.OK)
	require.Len(t, tr.audio, 1)
	assert.Equal(t, "audio/wav", tr.audio[0].MimeType)
	assert.Equal(t, 1, tr.audio[0].Channels)
	assert.Nil(t, s.inputs[0].Audio)
	assert.Equal(t, "we agreed to ship friday", s.inputs[0].Transcript)
}

func TestSummarize_TranscriptionFails(t *testing.T) {
	s := &fakeSummarizer{}
	tr := &fakeTranscriber{err: errors.New("quota")}
	sleeps := &recordedSleeps{}
	o := newOrchestrator(s, tr, config.ModeTranscript, sleeps)

	res := o.Summarize(context.Background(), &pipeline.Output{Merged: writeInput(t, "speaker-1-1.ogg")}, interfaces.MeetingInfo{})
	assert.False(t, res.OK)
	assert.Len(t, tr.audio, 3)
	assert.Equal(t, "audio/ogg", tr.audio[0].MimeType)
	assert.Equal(t, 2, tr.audio[0].Channels)
	assert.Zero(t, s.calls)
}

func TestSummarize_DurationIsMeetingLength(t *testing.T) {
	o := newOrchestrator(&fakeSummarizer{}, nil, config.ModeAudio, &recordedSleeps{})
	meeting := interfaces.MeetingInfo{Duration: 47 * time.Minute}

	res := o.Summarize(context.Background(), &pipeline.Output{SummaryInput: writeInput(t, "meeting-s1.mp3")}, meeting)
	require.True(t, res.OK)
	assert.Equal(t, 47*time.Minute, res.Duration)

	res = o.Summarize(context.Background(), &pipeline.Output{NearEmpty: true}, meeting)
	assert.Equal(t, 47*time.Minute, res.Duration)

	res = o.Summarize(context.Background(), &pipeline.Output{SummaryInput: "/does/not/exist.mp3"}, meeting)
	assert.False(t, res.OK)
	assert.Equal(t, 47*time.Minute, res.Duration)
}

type tooLargeSummarizer struct{ calls int }

func (f *tooLargeSummarizer) Summarize(context.Context, interfaces.SummaryInput) (string, error) {
	f.calls++
	return "", fmt.Errorf("%w: %d bytes", llm.ErrInputTooLarge, 21<<20)
}

func TestSummarize_OversizedInputNotRetried(t *testing.T) {
	s := &tooLargeSummarizer{}
	sleeps := &recordedSleeps{}
	o := newOrchestrator(s, nil, config.ModeAudio, sleeps)

	res := o.Summarize(context.Background(), &pipeline.Output{SummaryInput: writeInput(t, "meeting-s1.mp3")}, interfaces.MeetingInfo{})
	assert.False(t, res.OK)
	assert.Equal(t, 1, s.calls)
	assert.Empty(t, sleeps.delays)
}

func TestSummarize_OversizedTranscriptionNotRetried(t *testing.T) {
	s := &fakeSummarizer{}
	tr := &fakeTranscriber{err: fmt.Errorf("%w: %d bytes", stt.ErrInputTooLarge, 11<<20)}
	sleeps := &recordedSleeps{}
	o := newOrchestrator(s, tr, config.ModeTranscript, sleeps)

	res := o.Summarize(context.Background(), &pipeline.Output{Merged: writeInput(t, "merged-s1.wav")}, interfaces.MeetingInfo{})
	assert.False(t, res.OK)
	assert.Len(t, tr.audio, 1)
	assert.Empty(t, sleeps.delays)
	assert.Zero(t, s.calls)
}

func TestSummarize_TranscriptModePrefersDownsampledAudio(t *testing.T) {
	s := &fakeSummarizer{}
	tr := &fakeTranscriber{}
	o := newOrchestrator(s, tr, config.ModeTranscript, &recordedSleeps{})

	out := &pipeline.Output{
		Merged:         writeInput(t, "merged-s1.wav"),
		Transcript:     writeInput(t, "transcript-s1.ogg"),
		TranscriptRate: 16000,
	}
	res := o.Summarize(context.Background(), out, interfaces.MeetingInfo{})

	require.True(t, res.OK)
	require.Len(t, tr.audio, 1)
	assert.Equal(t, "audio/ogg", tr.audio[0].MimeType)
	assert.Equal(t, 16000, tr.audio[0].SampleRate)
	assert.Equal(t, 1, tr.audio[0].Channels)
}
