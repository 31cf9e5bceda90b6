// Package voicetest provides in-memory voice transports for tests.
package voicetest

import (
	"fmt"
	"sync"

	"github.com/EasterCompany/dex-scribe-service/voice"
)

// Gateway records every Join and hands out Connections.
type Gateway struct {
	mu sync.Mutex
	// AutoReady moves new connections to Ready immediately.
	AutoReady bool
	// JoinErr is returned from Join when set.
	JoinErr error
	Conns   []*Connection
	// OnJoin runs after a connection is created, before Join returns.
	OnJoin func(*Connection)
}

// NewGateway returns a gateway whose connections become ready on join.
func NewGateway() *Gateway {
	return &Gateway{AutoReady: true}
}

func (g *Gateway) Join(groupID, roomID string) (voice.Connection, error) {
	g.mu.Lock()
	if g.JoinErr != nil {
		err := g.JoinErr
		g.mu.Unlock()
		return nil, err
	}
	c := NewConnection(groupID, roomID)
	g.Conns = append(g.Conns, c)
	autoReady, onJoin := g.AutoReady, g.OnJoin
	g.mu.Unlock()

	if onJoin != nil {
		onJoin(c)
	}
	if autoReady {
		c.Set(voice.StateReady)
	}
	return c, nil
}

// Connections returns a copy of every connection joined so far.
func (g *Gateway) Connections() []*Connection {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]*Connection(nil), g.Conns...)
}

// Last returns the most recent connection, or nil.
func (g *Gateway) Last() *Connection {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.Conns) == 0 {
		return nil
	}
	return g.Conns[len(g.Conns)-1]
}

// Connection is a controllable voice.Connection.
type Connection struct {
	*voice.StateMachine
	groupID string
	roomID  string

	mu           sync.Mutex
	speaking     voice.Listeners[func(string)]
	streams      map[string]*Stream
	subscribed   []string
	destroyCalls int
	SubscribeErr error
}

// NewConnection returns a connection in Connecting.
func NewConnection(groupID, roomID string) *Connection {
	return &Connection{
		StateMachine: voice.NewStateMachine(voice.StateConnecting),
		groupID:      groupID,
		roomID:       roomID,
		streams:      make(map[string]*Stream),
	}
}

func (c *Connection) GroupID() string { return c.groupID }
func (c *Connection) RoomID() string  { return c.roomID }

func (c *Connection) OnSpeakingStart(fn func(string)) func() {
	return c.speaking.Add(fn)
}

// Speak emits a speaking-started signal for speakerID.
func (c *Connection) Speak(speakerID string) {
	for _, fn := range c.speaking.Snapshot() {
		fn(speakerID)
	}
}

func (c *Connection) Subscribe(speakerID string) (voice.Stream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.StateMachine.State() == voice.StateDestroyed {
		return nil, voice.ErrDestroyed
	}
	if c.SubscribeErr != nil {
		return nil, c.SubscribeErr
	}
	if _, ok := c.streams[speakerID]; ok {
		return nil, fmt.Errorf("speaker %s already subscribed", speakerID)
	}
	s := &Stream{speakerID: speakerID, packets: make(chan *voice.Packet, 64)}
	c.streams[speakerID] = s
	c.subscribed = append(c.subscribed, speakerID)
	return s, nil
}

// Stream returns the open stream for speakerID, if any.
func (c *Connection) Stream(speakerID string) *Stream {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.streams[speakerID]
}

// Subscribed lists every speaker that was subscribed, in order.
func (c *Connection) Subscribed() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.subscribed...)
}

func (c *Connection) Destroy() error {
	c.mu.Lock()
	c.destroyCalls++
	streams := make([]*Stream, 0, len(c.streams))
	for _, s := range c.streams {
		streams = append(streams, s)
	}
	c.mu.Unlock()

	c.Set(voice.StateDestroyed)
	for _, s := range streams {
		_ = s.Close()
	}
	return nil
}

// DestroyCalls reports how many times Destroy was called.
func (c *Connection) DestroyCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.destroyCalls
}

// Stream is an in-memory voice.Stream.
type Stream struct {
	speakerID string
	packets   chan *voice.Packet
	once      sync.Once
	mu        sync.Mutex
	closed    bool
}

func (s *Stream) SpeakerID() string             { return s.speakerID }
func (s *Stream) Packets() <-chan *voice.Packet { return s.packets }

// Push delivers a packet unless the stream is closed.
func (s *Stream) Push(p *voice.Packet) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.packets <- p
	return true
}

func (s *Stream) Close() error {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.packets)
		s.mu.Unlock()
	})
	return nil
}

// Closed reports whether Close was called.
func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
