// Package voice abstracts the real-time voice transport: joining a room,
// observing connection state and receiving per-speaker Opus packets.
package voice

import (
	"context"
	"errors"
)

// ErrDestroyed is returned by operations on a connection that has been destroyed.
var ErrDestroyed = errors.New("voice connection destroyed")

// State is the lifecycle state of a voice connection.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateSignalling
	StateReady
	StateDisconnected
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateSignalling:
		return "signalling"
	case StateReady:
		return "ready"
	case StateDisconnected:
		return "disconnected"
	case StateDestroyed:
		return "destroyed"
	}
	return "unknown"
}

// Packet is one inbound Opus frame.
type Packet struct {
	SSRC      uint32
	Sequence  uint16
	Timestamp uint32
	Opus      []byte
}

// Stream is a per-speaker inbound audio stream. It never ends on its own
// because of silence; it ends when closed or when the connection goes away.
type Stream interface {
	SpeakerID() string
	// Packets is closed when the stream ends.
	Packets() <-chan *Packet
	Close() error
}

// Connection is a joined voice room.
type Connection interface {
	GroupID() string
	RoomID() string
	State() State
	// WaitFor blocks until the connection is in, or transitions into, one of
	// states. It returns ErrDestroyed if the connection is destroyed first.
	WaitFor(ctx context.Context, states ...State) error
	OnStateChange(fn func(old, new State)) (remove func())
	OnSpeakingStart(fn func(speakerID string)) (remove func())
	Subscribe(speakerID string) (Stream, error)
	// Destroy is safe to call any number of times.
	Destroy() error
}

// Gateway opens voice connections.
type Gateway interface {
	Join(groupID, roomID string) (Connection, error)
}
