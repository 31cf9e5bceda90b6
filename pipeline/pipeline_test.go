package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/EasterCompany/dex-scribe-service/audio"
	logger "github.com/EasterCompany/dex-scribe-service/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeExecutor writes outputBytes to the last argument, which is the output
// path in every ffmpeg invocation the pipeline makes.
type fakeExecutor struct {
	mu          sync.Mutex
	calls       [][]string
	outputBytes int
	failOn      string
}

func (f *fakeExecutor) Execute(_ context.Context, name string, args ...string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string{name}, args...))
	f.mu.Unlock()

	joined := strings.Join(args, " ")
	if f.failOn != "" && strings.Contains(joined, f.failOn) {
		return "", errors.New("ffmpeg exited with status 1")
	}
	out := args[len(args)-1]
	return "", os.WriteFile(out, make([]byte, f.outputBytes), 0644)
}

func (f *fakeExecutor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func writeArtifact(t *testing.T, dir, name string, size int, offset time.Duration) audio.Artifact {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0644))
	return audio.Artifact{Path: path, SpeakerID: strings.TrimSuffix(name, ".ogg"), Offset: offset}
}

func newProcessor(exec Executor) *Processor {
	return NewProcessor(exec, Options{
		MinArtifactBytes: 1000,
		NearEmptyBytes:   100,
		MaxSummaryBytes:  1 << 20,
		Quality:          2,
	}, logger.NewNop())
}

func TestFilter_DropsSmallAndMissing(t *testing.T) {
	dir := t.TempDir()
	big := writeArtifact(t, dir, "alice.ogg", 5000, 0)
	small := writeArtifact(t, dir, "bob.ogg", 50, 0)
	missing := audio.Artifact{Path: filepath.Join(dir, "ghost.ogg")}

	valid := newProcessor(&fakeExecutor{}).Filter([]audio.Artifact{big, small, missing})
	assert.Equal(t, []audio.Artifact{big}, valid)
}

func TestMerge_Zero(t *testing.T) {
	exec := &fakeExecutor{}
	_, _, err := newProcessor(exec).Merge(context.Background(), t.TempDir(), "s1", nil)
	assert.ErrorIs(t, err, ErrNoValidAudio)
	assert.Zero(t, exec.callCount())
}

func TestMerge_SingleReturnedUnchanged(t *testing.T) {
	dir := t.TempDir()
	a := writeArtifact(t, dir, "alice.ogg", 5000, 0)
	exec := &fakeExecutor{}

	path, merged, err := newProcessor(exec).Merge(context.Background(), dir, "s1", []audio.Artifact{a})
	require.NoError(t, err)
	assert.Equal(t, a.Path, path)
	assert.False(t, merged)
	assert.Zero(t, exec.callCount())
}

func TestMerge_ManyProducesOneOutput(t *testing.T) {
	dir := t.TempDir()
	a := writeArtifact(t, dir, "alice.ogg", 5000, 0)
	b := writeArtifact(t, dir, "bob.ogg", 5000, 1500*time.Millisecond)
	exec := &fakeExecutor{outputBytes: 8000}

	path, merged, err := newProcessor(exec).Merge(context.Background(), dir, "s1", []audio.Artifact{a, b})
	require.NoError(t, err)
	assert.True(t, merged)
	assert.Equal(t, filepath.Join(dir, "merged-s1.wav"), path)
	assert.FileExists(t, path)

	require.Equal(t, 1, exec.callCount())
	joined := strings.Join(exec.calls[0], " ")
	assert.Contains(t, joined, "amix=inputs=2:duration=longest:dropout_transition=0")
	assert.Contains(t, joined, "[1:a]adelay=1500:all=1[a1]")
	assert.Contains(t, joined, "pcm_s16le")
}

func TestMerge_FailureFallsBackToFirst(t *testing.T) {
	dir := t.TempDir()
	a := writeArtifact(t, dir, "alice.ogg", 5000, 0)
	b := writeArtifact(t, dir, "bob.ogg", 5000, 0)
	exec := &fakeExecutor{failOn: "amix"}

	path, merged, err := newProcessor(exec).Merge(context.Background(), dir, "s1", []audio.Artifact{a, b})
	require.NoError(t, err)
	assert.False(t, merged)
	assert.Equal(t, a.Path, path)
}

func TestRun_Success(t *testing.T) {
	dir := t.TempDir()
	res := &audio.Result{
		SessionID: "s1",
		Dir:       dir,
		Artifacts: []audio.Artifact{
			writeArtifact(t, dir, "alice.ogg", 5000, 0),
			writeArtifact(t, dir, "bob.ogg", 5000, time.Second),
		},
	}
	exec := &fakeExecutor{outputBytes: 4000}

	out, err := newProcessor(exec).Run(context.Background(), res)
	require.NoError(t, err)
	assert.Len(t, out.Valid, 2)
	assert.Equal(t, filepath.Join(dir, "merged-s1.wav"), out.Merged)
	assert.Equal(t, filepath.Join(dir, "meeting-s1.mp3"), out.Transcoded)
	assert.Equal(t, out.Transcoded, out.SummaryInput)
	assert.Equal(t, "audio/mpeg", out.MimeType())
	assert.ElementsMatch(t, []string{out.Merged, out.Transcoded}, out.Files)
	assert.False(t, out.TooLarge)
	assert.False(t, out.NearEmpty)
	assert.Equal(t, 2, exec.callCount())
}

func TestRun_TranscodeFailureUsesMerged(t *testing.T) {
	dir := t.TempDir()
	res := &audio.Result{SessionID: "s1", Dir: dir, Artifacts: []audio.Artifact{writeArtifact(t, dir, "alice.ogg", 5000, 0)}}
	exec := &fakeExecutor{failOn: "libmp3lame"}

	out, err := newProcessor(exec).Run(context.Background(), res)
	require.NoError(t, err)
	assert.Empty(t, out.Transcoded)
	assert.Equal(t, res.Artifacts[0].Path, out.SummaryInput)
	assert.Equal(t, "audio/ogg", out.MimeType())
	assert.Empty(t, out.Files, "the original artifact is not pipeline-owned")
	assert.NoFileExists(t, filepath.Join(dir, "meeting-s1.mp3"))
}

func TestRun_ZeroValid(t *testing.T) {
	dir := t.TempDir()
	res := &audio.Result{SessionID: "s1", Dir: dir, Artifacts: []audio.Artifact{writeArtifact(t, dir, "alice.ogg", 10, 0)}}

	_, err := newProcessor(&fakeExecutor{}).Run(context.Background(), res)
	assert.ErrorIs(t, err, ErrNoValidAudio)
}

func TestRun_Guards(t *testing.T) {
	dir := t.TempDir()
	res := &audio.Result{SessionID: "s1", Dir: dir, Artifacts: []audio.Artifact{writeArtifact(t, dir, "alice.ogg", 5000, 0)}}

	out, err := newProcessor(&fakeExecutor{outputBytes: 2 << 20}).Run(context.Background(), res)
	require.NoError(t, err)
	assert.True(t, out.TooLarge)
	assert.False(t, out.NearEmpty)

	out, err = newProcessor(&fakeExecutor{outputBytes: 10}).Run(context.Background(), res)
	require.NoError(t, err)
	assert.False(t, out.TooLarge)
	assert.True(t, out.NearEmpty)
}

func TestRun_TranscriptRendition(t *testing.T) {
	dir := t.TempDir()
	res := &audio.Result{
		SessionID: "s1",
		Dir:       dir,
		Artifacts: []audio.Artifact{
			writeArtifact(t, dir, "alice.ogg", 5000, 0),
			writeArtifact(t, dir, "bob.ogg", 5000, time.Second),
		},
	}
	exec := &fakeExecutor{outputBytes: 4000}
	p := NewProcessor(exec, Options{MinArtifactBytes: 1000, TranscriptSampleRate: 16000}, logger.NewNop())

	out, err := p.Run(context.Background(), res)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "transcript-s1.ogg"), out.Transcript)
	assert.Equal(t, 16000, out.TranscriptRate)
	assert.Contains(t, out.Files, out.Transcript)
	require.Equal(t, 3, exec.callCount())

	args := strings.Join(exec.calls[2], " ")
	assert.Contains(t, args, "-i "+out.Merged)
	assert.Contains(t, args, "-ac 1 -ar 16000")
	assert.Contains(t, args, "libopus")
}

func TestRun_TranscriptRenditionFailureKeepsMerged(t *testing.T) {
	dir := t.TempDir()
	res := &audio.Result{SessionID: "s1", Dir: dir, Artifacts: []audio.Artifact{writeArtifact(t, dir, "alice.ogg", 5000, 0)}}
	exec := &fakeExecutor{outputBytes: 4000, failOn: "libopus"}
	p := NewProcessor(exec, Options{MinArtifactBytes: 1000, TranscriptSampleRate: 16000}, logger.NewNop())

	out, err := p.Run(context.Background(), res)
	require.NoError(t, err)
	assert.Empty(t, out.Transcript)
	assert.Zero(t, out.TranscriptRate)
	assert.Equal(t, res.Artifacts[0].Path, out.Merged)
	assert.NoFileExists(t, filepath.Join(dir, "transcript-s1.ogg"))
}
