package voice

import (
	"errors"
	"fmt"
	"sync"
	"time"

	logger "github.com/EasterCompany/dex-scribe-service/log"
	"github.com/bwmarrin/discordgo"
)

const (
	defaultPollInterval = 250 * time.Millisecond
	defaultMaxRejoins   = 3
	defaultReadyTimeout = 10 * time.Second
	streamBuffer        = 256
)

// ErrAlreadySubscribed is returned when a speaker already has an open stream.
var ErrAlreadySubscribed = errors.New("speaker already subscribed")

// link is one discordgo voice connection as a discordConnection uses it.
type link interface {
	Ready() bool
	Opus() <-chan *discordgo.Packet
	OnSpeaking(fn func(*discordgo.VoiceSpeakingUpdate))
	// Leave leaves the channel if the link is still the session's registered
	// connection for its guild, and otherwise only closes it.
	Leave() error
}

type joinFunc func(groupID, roomID string, mute, deaf bool) (link, error)

// DiscordGateway joins voice channels through a discordgo session.
type DiscordGateway struct {
	Session  *discordgo.Session
	Logger   logger.Logger
	SelfMute bool
	SelfDeaf bool
	// PollInterval is how often a connection's readiness is checked.
	PollInterval time.Duration
	MaxRejoins   int
	// ReadyTimeout bounds how long a rejoined connection may stay in
	// Connecting before it is treated as Disconnected.
	ReadyTimeout time.Duration

	join joinFunc
	now  func() time.Time

	mu     sync.Mutex
	owners map[string]*discordConnection
	locks  map[string]*sync.Mutex
}

// NewDiscordGateway creates a gateway on s.
func NewDiscordGateway(s *discordgo.Session, logger logger.Logger, selfMute, selfDeaf bool) *DiscordGateway {
	g := &DiscordGateway{
		Session:      s,
		Logger:       logger,
		SelfMute:     selfMute,
		SelfDeaf:     selfDeaf,
		PollInterval: defaultPollInterval,
		MaxRejoins:   defaultMaxRejoins,
		ReadyTimeout: defaultReadyTimeout,
	}
	g.join = g.sessionJoin
	return g
}

func (g *DiscordGateway) sessionJoin(groupID, roomID string, mute, deaf bool) (link, error) {
	vc, err := g.Session.ChannelVoiceJoin(groupID, roomID, mute, deaf)
	if vc == nil {
		return nil, err
	}
	return discordLink{s: g.Session, vc: vc, guildID: groupID}, err
}

func (g *DiscordGateway) timeNow() time.Time {
	if g.now != nil {
		return g.now()
	}
	return time.Now()
}

// Join starts connecting to roomID in groupID. The returned connection starts
// in Connecting; callers wait for Ready with WaitFor.
func (g *DiscordGateway) Join(groupID, roomID string) (Connection, error) {
	if g.join == nil {
		if g.Session == nil {
			return nil, fmt.Errorf("discord session not initialized")
		}
		g.join = g.sessionJoin
	}
	c := newDiscordConnection(g, groupID, roomID)

	g.mu.Lock()
	if g.owners == nil {
		g.owners = make(map[string]*discordConnection)
	}
	g.owners[groupID] = c
	g.mu.Unlock()

	go c.connect()
	return c, nil
}

// lockGroup serializes voice joins within a guild. discordgo keeps one
// VoiceConnection per guild, so concurrent joins would share it.
func (g *DiscordGateway) lockGroup(groupID string) func() {
	g.mu.Lock()
	if g.locks == nil {
		g.locks = make(map[string]*sync.Mutex)
	}
	l, ok := g.locks[groupID]
	if !ok {
		l = &sync.Mutex{}
		g.locks[groupID] = l
	}
	g.mu.Unlock()
	l.Lock()
	return l.Unlock
}

func (g *DiscordGateway) owner(groupID string) *discordConnection {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.owners[groupID]
}

func (g *DiscordGateway) disown(c *discordConnection) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.owners[c.groupID] == c {
		delete(g.owners, c.groupID)
	}
}

// heldByOther reports whether l is the current link of a newer connection
// for the same guild.
func (g *DiscordGateway) heldByOther(c *discordConnection, l link) bool {
	o := g.owner(c.groupID)
	return o != nil && o != c && o.currentLink() == l
}

type discordConnection struct {
	*StateMachine
	gw      *DiscordGateway
	groupID string
	roomID  string

	mu           sync.Mutex
	link         link
	linkDone     chan struct{}
	ssrcUsers    map[uint32]string
	streams      map[string]*discordStream
	speaking     Listeners[func(speakerID string)]
	rejoining    bool
	rejoins      int
	pendingSince time.Time

	stop        chan struct{}
	destroyOnce sync.Once
}

func newDiscordConnection(g *DiscordGateway, groupID, roomID string) *discordConnection {
	return &discordConnection{
		StateMachine: NewStateMachine(StateConnecting),
		gw:           g,
		groupID:      groupID,
		roomID:       roomID,
		ssrcUsers:    make(map[uint32]string),
		streams:      make(map[string]*discordStream),
		stop:         make(chan struct{}),
	}
}

func (c *discordConnection) GroupID() string { return c.groupID }
func (c *discordConnection) RoomID() string  { return c.roomID }

func (c *discordConnection) closed() bool {
	select {
	case <-c.stop:
		return true
	default:
		return false
	}
}

func (c *discordConnection) currentLink() link {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.link
}

func (c *discordConnection) connect() {
	unlock := c.gw.lockGroup(c.groupID)
	defer unlock()

	l, err := c.gw.join(c.groupID, c.roomID, c.gw.SelfMute, c.gw.SelfDeaf)
	if err != nil {
		c.gw.Logger.Error("ConnectionTimeout", fmt.Errorf("joining voice channel %s: %w", c.roomID, err), "guild_id", c.groupID)
		if l != nil {
			c.release(l)
		}
		_ = c.Destroy()
		return
	}
	if !c.adopt(l) {
		c.release(l)
		return
	}
	go c.watch()
	c.Set(StateReady)
}

// adopt makes l the connection's link and starts reading from it. It returns
// false once the connection is destroyed.
func (c *discordConnection) adopt(l link) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed() {
		return false
	}
	if c.link == l {
		return true
	}
	if c.linkDone != nil {
		close(c.linkDone)
	}
	done := make(chan struct{})
	c.link, c.linkDone = l, done
	l.OnSpeaking(func(vs *discordgo.VoiceSpeakingUpdate) {
		c.onSpeakingUpdate(l, vs)
	})
	go c.receive(l, done)
	return true
}

// release leaves l unless a newer connection for the guild now holds it.
func (c *discordConnection) release(l link) error {
	if c.gw.heldByOther(c, l) {
		return nil
	}
	return l.Leave()
}

func (c *discordConnection) onSpeakingUpdate(l link, vs *discordgo.VoiceSpeakingUpdate) {
	if c.closed() || vs.UserID == "" {
		return
	}
	c.mu.Lock()
	if c.link != l {
		c.mu.Unlock()
		return
	}
	c.ssrcUsers[uint32(vs.SSRC)] = vs.UserID
	c.mu.Unlock()

	if !vs.Speaking {
		return
	}
	for _, fn := range c.speaking.Snapshot() {
		fn(vs.UserID)
	}
}

// receive demultiplexes one link's Opus channel into per-speaker streams
// until the link is replaced or the connection is destroyed.
func (c *discordConnection) receive(l link, done <-chan struct{}) {
	opus := l.Opus()
	for {
		select {
		case <-c.stop:
			return
		case <-done:
			return
		case p, ok := <-opus:
			if !ok {
				return
			}
			if p == nil {
				continue
			}
			c.mu.Lock()
			userID, mapped := c.ssrcUsers[p.SSRC]
			stream := c.streams[userID]
			c.mu.Unlock()
			if !mapped || stream == nil {
				continue
			}
			stream.deliver(&Packet{SSRC: p.SSRC, Sequence: p.Sequence, Timestamp: p.Timestamp, Opus: p.Opus})
		}
	}
}

// watch polls the current link's readiness and turns it into state
// transitions. A lost connection is re-joined up to MaxRejoins times before
// it is left Disconnected.
func (c *discordConnection) watch() {
	ticker := time.NewTicker(c.gw.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
		}

		l := c.currentLink()
		if l == nil {
			continue
		}
		ready := l.Ready()

		switch current := c.State(); {
		case current == StateReady && !ready:
			c.gw.Logger.Warn("voice connection lost", "guild_id", c.groupID, "channel_id", c.roomID)
			c.Set(StateDisconnected)
			c.tryRejoin()
		case current == StateDisconnected && !ready:
			c.tryRejoin()
		case current == StateConnecting && !ready:
			if c.stalled() {
				c.gw.Logger.Warn("rejoined voice connection never became ready", "guild_id", c.groupID, "timeout", c.gw.ReadyTimeout)
				c.Set(StateDisconnected)
			}
		case current != StateReady && current != StateDestroyed && ready:
			c.mu.Lock()
			c.rejoins = 0
			c.pendingSince = time.Time{}
			c.mu.Unlock()
			c.Set(StateReady)
		}
	}
}

func (c *discordConnection) stalled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rejoining || c.pendingSince.IsZero() {
		return false
	}
	return c.gw.timeNow().Sub(c.pendingSince) >= c.gw.ReadyTimeout
}

func (c *discordConnection) tryRejoin() {
	c.mu.Lock()
	if c.rejoining || c.rejoins >= c.gw.MaxRejoins {
		c.mu.Unlock()
		return
	}
	c.rejoining = true
	c.rejoins++
	attempt := c.rejoins
	c.mu.Unlock()

	go func() {
		defer func() {
			c.mu.Lock()
			c.rejoining = false
			c.mu.Unlock()
		}()
		if c.closed() {
			return
		}
		c.Set(StateSignalling)

		unlock := c.gw.lockGroup(c.groupID)
		defer unlock()
		l, err := c.gw.join(c.groupID, c.roomID, c.gw.SelfMute, c.gw.SelfDeaf)
		if err != nil {
			c.gw.Logger.Error("TransientDisconnect", fmt.Errorf("rejoin attempt %d: %w", attempt, err), "guild_id", c.groupID)
			c.Set(StateDisconnected)
			return
		}
		if !c.adopt(l) {
			c.release(l)
			return
		}
		c.mu.Lock()
		c.pendingSince = c.gw.timeNow()
		c.mu.Unlock()
		c.Set(StateConnecting)
	}()
}

func (c *discordConnection) OnSpeakingStart(fn func(speakerID string)) (remove func()) {
	return c.speaking.Add(fn)
}

func (c *discordConnection) Subscribe(speakerID string) (Stream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed() {
		return nil, ErrDestroyed
	}
	if _, ok := c.streams[speakerID]; ok {
		return nil, ErrAlreadySubscribed
	}
	s := &discordStream{conn: c, speakerID: speakerID, packets: make(chan *Packet, streamBuffer)}
	c.streams[speakerID] = s
	return s, nil
}

// Destroy leaves the voice channel and ends every stream.
func (c *discordConnection) Destroy() error {
	var err error
	c.destroyOnce.Do(func() {
		close(c.stop)
		c.Set(StateDestroyed)

		c.mu.Lock()
		streams := make([]*discordStream, 0, len(c.streams))
		for _, s := range c.streams {
			streams = append(streams, s)
		}
		l := c.link
		c.mu.Unlock()

		for _, s := range streams {
			_ = s.Close()
		}
		c.gw.disown(c)
		if l != nil {
			err = c.release(l)
		}
	})
	return err
}

// discordLink adapts *discordgo.VoiceConnection. It is a comparable value so
// two joins that return the same VoiceConnection yield equal links.
type discordLink struct {
	s       *discordgo.Session
	vc      *discordgo.VoiceConnection
	guildID string
}

func (l discordLink) Ready() bool {
	l.vc.RLock()
	defer l.vc.RUnlock()
	return l.vc.Ready
}

func (l discordLink) Opus() <-chan *discordgo.Packet {
	l.vc.RLock()
	defer l.vc.RUnlock()
	return l.vc.OpusRecv
}

func (l discordLink) OnSpeaking(fn func(*discordgo.VoiceSpeakingUpdate)) {
	l.vc.AddHandler(func(_ *discordgo.VoiceConnection, vs *discordgo.VoiceSpeakingUpdate) {
		fn(vs)
	})
}

func (l discordLink) Leave() error {
	l.s.RLock()
	registered := l.s.VoiceConnections[l.guildID] == l.vc
	l.s.RUnlock()
	if !registered {
		// Disconnect would drop the guild's newer VoiceConnection from the session.
		l.vc.Close()
		return nil
	}
	return l.vc.Disconnect()
}

type discordStream struct {
	conn      *discordConnection
	speakerID string
	packets   chan *Packet

	mu      sync.Mutex
	closed  bool
	dropped int
}

func (s *discordStream) SpeakerID() string       { return s.speakerID }
func (s *discordStream) Packets() <-chan *Packet { return s.packets }

func (s *discordStream) deliver(p *Packet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.packets <- p:
	default:
		s.dropped++
	}
}

func (s *discordStream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.packets)
	dropped := s.dropped
	s.mu.Unlock()

	s.conn.mu.Lock()
	if s.conn.streams[s.speakerID] == s {
		delete(s.conn.streams, s.speakerID)
	}
	s.conn.mu.Unlock()

	if dropped > 0 {
		s.conn.gw.Logger.Warn("dropped packets on slow stream", "speaker_id", s.speakerID, "dropped", dropped)
	}
	return nil
}
