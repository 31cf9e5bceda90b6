// Package audio records per-speaker audio for a guild's voice session.
package audio

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	logger "github.com/EasterCompany/dex-scribe-service/log"
	"github.com/EasterCompany/dex-scribe-service/voice"
)

// ErrNoSession is returned by Stop when the guild has no active recording.
var ErrNoSession = errors.New("no active recording session")

// Artifact is one speaker's finished audio file.
type Artifact struct {
	Path      string
	SpeakerID string
	Offset    time.Duration
}

// Result describes a stopped recording session.
type Result struct {
	SessionID string
	GuildID   string
	ChannelID string
	Dir       string
	StartedAt time.Time
	Duration  time.Duration
	// Artifacts is in first-subscribed order. Empty means nothing was captured.
	Artifacts []Artifact
}

// RecordingSession tracks the captures of one guild's voice session.
type RecordingSession struct {
	ID        string
	GuildID   string
	ChannelID string
	Dir       string
	StartedAt time.Time

	mu         sync.Mutex
	stopped    bool
	captures   map[string]*SpeakerCapture
	artifacts  []Artifact
	unregister func()
}

// Recorder manages voice recordings for all guilds.
type Recorder struct {
	workDir    string
	flushGrace time.Duration
	newSink    SinkFactory
	logger     logger.Logger

	// Now and FreeBytes are replaceable in tests.
	Now          func() time.Time
	FreeBytes    func(path string) (uint64, error)
	MinFreeBytes uint64

	mu       sync.Mutex
	sessions map[string]*RecordingSession
}

// NewRecorder creates a new recorder writing under workDir.
func NewRecorder(workDir string, flushGrace time.Duration, newSink SinkFactory, logger logger.Logger) *Recorder {
	return &Recorder{
		workDir:    workDir,
		flushGrace: flushGrace,
		newSink:    newSink,
		logger:     logger,
		Now:        time.Now,
		sessions:   make(map[string]*RecordingSession),
	}
}

// Start begins recording guildID's channel on conn. An existing session for
// the guild is stopped and its artifacts discarded first.
func (r *Recorder) Start(sessionID, guildID, channelID string, conn voice.Connection) error {
	if stale, err := r.Stop(guildID); err == nil {
		r.logger.Warn("discarding stale recording session", "guild_id", guildID, "session_id", stale.SessionID, "artifacts", len(stale.Artifacts))
		if err := os.RemoveAll(stale.Dir); err != nil {
			r.logger.Error("removing stale session directory", err, "dir", stale.Dir)
		}
	}

	dir := SessionDir(r.workDir, guildID, sessionID)
	if err := EnsureDir(dir); err != nil {
		return err
	}
	r.checkFreeSpace(dir)

	rs := &RecordingSession{
		ID:        sessionID,
		GuildID:   guildID,
		ChannelID: channelID,
		Dir:       dir,
		StartedAt: r.Now(),
		captures:  make(map[string]*SpeakerCapture),
	}

	r.mu.Lock()
	r.sessions[guildID] = rs
	r.mu.Unlock()

	// Registered after the session is visible so an immediate signal finds it.
	unregister := conn.OnSpeakingStart(func(speakerID string) {
		r.onSpeakingStart(rs, conn, speakerID)
	})
	rs.mu.Lock()
	if rs.stopped {
		rs.mu.Unlock()
		unregister()
		return nil
	}
	rs.unregister = unregister
	rs.mu.Unlock()

	r.logger.Info("started recording", "guild_id", guildID, "channel_id", channelID, "session_id", sessionID)
	return nil
}

func (r *Recorder) checkFreeSpace(dir string) {
	if r.FreeBytes == nil || r.MinFreeBytes == 0 {
		return
	}
	free, err := r.FreeBytes(dir)
	if err != nil {
		r.logger.Warn("could not check free space", "dir", dir, "error", err)
		return
	}
	if free < r.MinFreeBytes {
		r.logger.Warn("low free space in working directory", "dir", dir, "free_bytes", free, "min_free_bytes", r.MinFreeBytes)
	}
}

func (r *Recorder) onSpeakingStart(rs *RecordingSession, conn voice.Connection, speakerID string) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.stopped {
		return
	}
	if _, exists := rs.captures[speakerID]; exists {
		return
	}

	stream, err := conn.Subscribe(speakerID)
	if err != nil {
		r.logger.Error("CaptureSubscriptionError", fmt.Errorf("subscribing to speaker %s: %w", speakerID, err), "guild_id", rs.GuildID)
		return
	}

	now := r.Now()
	path := SpeakerFilePath(rs.Dir, speakerID, now)
	sink, err := r.newSink(path)
	if err != nil {
		_ = stream.Close()
		r.logger.Error("CaptureSubscriptionError", fmt.Errorf("creating sink for speaker %s: %w", speakerID, err), "guild_id", rs.GuildID)
		return
	}

	offset := now.Sub(rs.StartedAt)
	if offset < 0 {
		offset = 0
	}
	capture := newSpeakerCapture(speakerID, path, offset, stream, sink)
	rs.captures[speakerID] = capture
	rs.artifacts = append(rs.artifacts, Artifact{Path: path, SpeakerID: speakerID, Offset: offset})
	go capture.run(r.logger)

	r.logger.Info("capturing speaker", "guild_id", rs.GuildID, "speaker_id", speakerID, "path", path)
}

// Stop ends guildID's recording and returns its artifacts. It returns
// ErrNoSession if no session is active, including when Stop already ran.
func (r *Recorder) Stop(guildID string) (*Result, error) {
	r.mu.Lock()
	rs, ok := r.sessions[guildID]
	if ok {
		delete(r.sessions, guildID)
	}
	r.mu.Unlock()
	if !ok {
		return nil, ErrNoSession
	}

	rs.mu.Lock()
	rs.stopped = true
	unregister := rs.unregister
	rs.unregister = nil
	captures := make([]*SpeakerCapture, 0, len(rs.captures))
	for _, c := range rs.captures {
		captures = append(captures, c)
	}
	artifacts := append([]Artifact(nil), rs.artifacts...)
	rs.captures = make(map[string]*SpeakerCapture)
	rs.artifacts = nil
	rs.mu.Unlock()

	if unregister != nil {
		unregister()
	}
	for _, c := range captures {
		c.stop(r.logger)
	}
	r.awaitCaptures(captures)
	for _, c := range captures {
		c.finalize(r.logger)
	}

	duration := r.Now().Sub(rs.StartedAt)
	r.logger.Info("stopped recording", "guild_id", guildID, "session_id", rs.ID, "artifacts", len(artifacts), "duration", duration.Round(time.Second))

	return &Result{
		SessionID: rs.ID,
		GuildID:   rs.GuildID,
		ChannelID: rs.ChannelID,
		Dir:       rs.Dir,
		StartedAt: rs.StartedAt,
		Duration:  duration,
		Artifacts: artifacts,
	}, nil
}

// awaitCaptures waits up to the flush grace period for copy loops to drain.
func (r *Recorder) awaitCaptures(captures []*SpeakerCapture) {
	if len(captures) == 0 {
		return
	}
	deadline := time.NewTimer(r.flushGrace)
	defer deadline.Stop()
	for _, c := range captures {
		select {
		case <-c.done:
		case <-deadline.C:
			r.logger.Warn("flush grace period elapsed before captures drained", "pending_speaker", c.SpeakerID)
			return
		}
	}
}

// Active reports whether guildID is being recorded.
func (r *Recorder) Active(guildID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[guildID]
	return ok
}
