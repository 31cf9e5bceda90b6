// Package events follows the target user between voice rooms and drives the
// recording lifecycle of each guild.
package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/EasterCompany/dex-scribe-service/audio"
	"github.com/EasterCompany/dex-scribe-service/guild"
	logger "github.com/EasterCompany/dex-scribe-service/log"
	"github.com/EasterCompany/dex-scribe-service/utils"
	"github.com/EasterCompany/dex-scribe-service/voice"
	"github.com/EasterCompany/dex-scribe-service/worker"
)

// Teardown reasons.
const (
	ReasonLeft        = "TargetLeft"
	ReasonMoved       = "TargetMoved"
	ReasonPermanent   = "PermanentDisconnect"
	ReasonDestroyed   = "ConnectionDestroyed"
	ReasonMaxDuration = "MaxDuration"
	ReasonShutdown    = "Shutdown"
	ReasonStartFailed = "RecordingStartFailure"
)

// Recorder captures audio for a ready connection.
type Recorder interface {
	Start(sessionID, guildID, channelID string, conn voice.Connection) error
	Stop(guildID string) (*audio.Result, error)
}

// JobSubmitter accepts stopped recordings for processing.
type JobSubmitter interface {
	Submit(job worker.Job) bool
}

// SnapshotStore persists live sessions so a crashed process can be cleaned up.
type SnapshotStore interface {
	SaveSession(ctx context.Context, snap *guild.Snapshot) error
	DeleteSession(ctx context.Context, guildID string) error
}

// Options tunes a Controller.
type Options struct {
	ReadyTimeout   time.Duration
	RecoveryWindow time.Duration
	// MaxDuration ends a recording that runs this long. Zero disables it.
	MaxDuration time.Duration
	WorkDir     string
}

type pendingJoin struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// Controller owns every guild's session. All work for a guild runs on that
// guild's dispatcher queue.
type Controller struct {
	gateway  voice.Gateway
	recorder Recorder
	jobs     JobSubmitter
	logger   logger.Logger
	opts     Options

	// Store is optional.
	Store SnapshotStore
	// ChannelName resolves a room ID for display. Defaults to the ID.
	ChannelName func(roomID string) string
	Now         func() time.Time

	state      *StateManager
	dispatcher *Dispatcher

	mu      sync.Mutex
	pending map[string][]*pendingJoin
	closed  bool
}

// NewController creates a Controller.
func NewController(gateway voice.Gateway, recorder Recorder, jobs JobSubmitter, opts Options, logger logger.Logger) *Controller {
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = 30 * time.Second
	}
	if opts.RecoveryWindow <= 0 {
		opts.RecoveryWindow = 5 * time.Second
	}
	return &Controller{
		gateway:     gateway,
		recorder:    recorder,
		jobs:        jobs,
		logger:      logger,
		opts:        opts,
		ChannelName: func(roomID string) string { return roomID },
		Now:         time.Now,
		state:       NewStateManager(),
		dispatcher:  NewDispatcher(logger),
		pending:     make(map[string][]*pendingJoin),
	}
}

// State exposes the session registry.
func (c *Controller) State() *StateManager {
	return c.state
}

// HoldsSession reports whether sessionID is a session this controller has
// registered and not yet torn down.
func (c *Controller) HoldsSession(sessionID string) bool {
	for _, s := range c.state.Sessions() {
		if s.ID == sessionID && s.Live() {
			return true
		}
	}
	return false
}

// OnTargetJoined starts following the target into roomID.
func (c *Controller) OnTargetJoined(groupID, roomID string) {
	p := c.beginJoin(groupID)
	if p == nil {
		return
	}
	if !c.dispatcher.Submit(groupID, func() {
		defer c.endJoin(groupID, p)
		c.join(p.ctx, groupID, roomID)
	}) {
		c.endJoin(groupID, p)
	}
}

// OnTargetLeft ends the guild's session, cancelling a join still waiting
// for its connection.
func (c *Controller) OnTargetLeft(groupID string) {
	if c.isClosed() {
		return
	}
	c.cancelJoins(groupID)
	c.dispatcher.Submit(groupID, func() {
		c.leave(groupID, ReasonLeft)
	})
}

// OnTargetMoved ends the session in oldRoom and starts one in newRoom as a
// single ordered task.
func (c *Controller) OnTargetMoved(groupID, oldRoomID, newRoomID string) {
	if c.isClosed() {
		return
	}
	c.cancelJoins(groupID)
	p := c.beginJoin(groupID)
	if p == nil {
		return
	}
	if !c.dispatcher.Submit(groupID, func() {
		defer c.endJoin(groupID, p)
		c.logger.Info("target moved", "guild_id", groupID, "from", oldRoomID, "to", newRoomID)
		c.leave(groupID, ReasonMoved)
		c.join(p.ctx, groupID, newRoomID)
	}) {
		c.endJoin(groupID, p)
	}
}

// Shutdown tears down every live session one at a time and rejects further
// presence events.
func (c *Controller) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	for _, joins := range c.pending {
		for _, p := range joins {
			p.cancel()
		}
	}
	c.mu.Unlock()

	var errs []error
	for _, s := range c.state.Sessions() {
		c.logger.Info("tearing down session for shutdown", "guild_id", s.GuildID, "session_id", s.ID)
		if err := c.dispatcher.SubmitWait(ctx, s.GuildID, func() { c.teardown(s, ReasonShutdown) }); err != nil {
			errs = append(errs, err)
			if ctx.Err() != nil {
				break
			}
		}
	}
	c.dispatcher.Close()
	return errors.Join(errs...)
}

// Wait blocks until every queued task has run.
func (c *Controller) Wait() {
	c.dispatcher.Wait()
}

func (c *Controller) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Controller) beginJoin(groupID string) *pendingJoin {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &pendingJoin{ctx: ctx, cancel: cancel}
	c.pending[groupID] = append(c.pending[groupID], p)
	return p
}

func (c *Controller) endJoin(groupID string, p *pendingJoin) {
	p.cancel()
	c.mu.Lock()
	defer c.mu.Unlock()
	joins := c.pending[groupID]
	for i, q := range joins {
		if q == p {
			joins = append(joins[:i], joins[i+1:]...)
			break
		}
	}
	if len(joins) == 0 {
		delete(c.pending, groupID)
		return
	}
	c.pending[groupID] = joins
}

func (c *Controller) cancelJoins(groupID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.pending[groupID] {
		p.cancel()
	}
}

func (c *Controller) join(ctx context.Context, groupID, roomID string) {
	if ctx.Err() != nil {
		c.logger.Info("join cancelled before it started", "guild_id", groupID, "room_id", roomID)
		return
	}
	if s, ok := c.state.GetSession(groupID); ok && s.Live() {
		c.logger.Info("session already active, ignoring join", "guild_id", groupID, "room_id", s.RoomID)
		return
	}

	s := guild.NewSession(groupID, roomID)
	c.state.StoreSession(s)

	conn, err := c.gateway.Join(groupID, roomID)
	if err != nil {
		c.logger.Error("ConnectionTimeout", err, "guild_id", groupID, "room_id", roomID)
		s.BeginTeardown("JoinFailed")
		c.state.DeleteSession(s)
		return
	}

	wctx, cancel := context.WithTimeout(ctx, c.opts.ReadyTimeout)
	err = conn.WaitFor(wctx, voice.StateReady)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			c.logger.Info("join cancelled by leave", "guild_id", groupID, "room_id", roomID)
		} else {
			c.logger.Error("ConnectionTimeout", err, "guild_id", groupID, "room_id", roomID, "timeout", c.opts.ReadyTimeout)
		}
		s.BeginTeardown("ConnectionTimeout")
		_ = conn.Destroy()
		c.state.DeleteSession(s)
		return
	}

	s.MarkReady(conn, c.Now())
	unobserve := conn.OnStateChange(func(old, new voice.State) {
		c.dispatcher.Submit(groupID, func() { c.handleTransition(s, old, new) })
	})
	var maxTimer *time.Timer
	if c.opts.MaxDuration > 0 {
		maxTimer = time.AfterFunc(c.opts.MaxDuration, func() {
			c.dispatcher.Submit(groupID, func() { c.teardown(s, ReasonMaxDuration) })
		})
	}
	s.Attach(unobserve, maxTimer)

	if err := c.recorder.Start(s.ID, groupID, roomID, conn); err != nil {
		c.logger.Error(ReasonStartFailed, err, "guild_id", groupID, "session_id", s.ID)
		c.teardown(s, ReasonStartFailed)
		return
	}
	utils.IncrementSessionsStarted()
	c.saveSnapshot(s)
	c.logger.Info("recording started", "guild_id", groupID, "room_id", roomID, "session_id", s.ID)
}

func (c *Controller) handleTransition(s *guild.Session, old, new voice.State) {
	if cur, ok := c.state.GetSession(s.GuildID); !ok || cur != s || !s.Live() {
		return
	}
	c.logger.Info("voice connection state changed", "guild_id", s.GuildID, "from", old.String(), "to", new.String())

	switch new {
	case voice.StateReady:
		s.MarkReady(s.Connection(), c.Now())
	case voice.StateDisconnected:
		s.SetState(new)
		conn := s.Connection()
		ctx, cancel := context.WithTimeout(context.Background(), c.opts.RecoveryWindow)
		// Ready means the connection recovered while this task was queued.
		err := conn.WaitFor(ctx, voice.StateSignalling, voice.StateConnecting, voice.StateReady)
		cancel()
		if err == nil {
			utils.IncrementReconnects()
			c.logger.Warn("TransientDisconnect", "guild_id", s.GuildID, "session_id", s.ID, "state", conn.State().String())
			s.SetState(conn.State())
			return
		}
		c.logger.Warn(ReasonPermanent, "guild_id", s.GuildID, "session_id", s.ID, "error", err)
		c.teardown(s, ReasonPermanent)
	case voice.StateDestroyed:
		c.teardown(s, ReasonDestroyed)
	default:
		s.SetState(new)
	}
}

// leave tears down the guild's session. With no session the recorder is
// still stopped in case it holds a stale recording.
func (c *Controller) leave(groupID, reason string) {
	s, ok := c.state.GetSession(groupID)
	if ok && s.Live() {
		c.teardown(s, reason)
		return
	}
	res, err := c.recorder.Stop(groupID)
	if err != nil {
		if !errors.Is(err, audio.ErrNoSession) {
			c.logger.Error("RecordingStopFailure", err, "guild_id", groupID)
		}
		return
	}
	c.submit(res)
}

// teardown stops recording, destroys the connection and hands the result to
// processing. Only the first call for a session does any work.
func (c *Controller) teardown(s *guild.Session, reason string) {
	if !s.BeginTeardown(reason) {
		return
	}
	c.logger.Info("tearing down session", "guild_id", s.GuildID, "session_id", s.ID, "reason", reason)

	res, stopErr := c.recorder.Stop(s.GuildID)
	if conn := s.Connection(); conn != nil {
		if err := conn.Destroy(); err != nil {
			c.logger.Warn("destroying voice connection failed", "guild_id", s.GuildID, "error", err)
		}
	}
	c.state.DeleteSession(s)
	c.deleteSnapshot(s.GuildID)

	if stopErr != nil {
		if errors.Is(stopErr, audio.ErrNoSession) {
			c.logger.Info("no recording to stop", "guild_id", s.GuildID, "session_id", s.ID)
		} else {
			c.logger.Error("RecordingStopFailure", stopErr, "guild_id", s.GuildID)
		}
		return
	}
	c.submit(res)
}

func (c *Controller) submit(res *audio.Result) {
	if res == nil || c.jobs == nil {
		return
	}
	job := worker.Job{Result: res, ChannelName: c.ChannelName(res.ChannelID)}
	if !c.jobs.Submit(job) {
		c.logger.Warn("session not processed, artifacts kept", "session_id", res.SessionID, "dir", res.Dir)
	}
}

func (c *Controller) saveSnapshot(s *guild.Session) {
	if c.Store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	snap := s.Snapshot(audio.SessionDir(c.opts.WorkDir, s.GuildID, s.ID))
	if err := c.Store.SaveSession(ctx, snap); err != nil {
		c.logger.Warn("could not save session snapshot", "guild_id", s.GuildID, "error", err)
	}
}

func (c *Controller) deleteSnapshot(guildID string) {
	if c.Store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.Store.DeleteSession(ctx, guildID); err != nil {
		c.logger.Warn("could not delete session snapshot", "guild_id", guildID, "error", err)
	}
}
