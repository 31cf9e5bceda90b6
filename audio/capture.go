package audio

import (
	"fmt"
	"sync"
	"time"

	logger "github.com/EasterCompany/dex-scribe-service/log"
	"github.com/EasterCompany/dex-scribe-service/voice"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3/pkg/media/oggwriter"
)

// Sink is the write destination of one speaker's audio.
type Sink interface {
	WritePacket(p *voice.Packet) error
	Close() error
}

// SinkFactory creates the sink for a speaker's artifact at path.
type SinkFactory func(path string) (Sink, error)

var rtpPacketPool = sync.Pool{
	New: func() any {
		return &rtp.Packet{
			Header: rtp.Header{
				Version:     2,
				PayloadType: 0x78,
			},
		}
	},
}

// oggSink stores Opus frames unchanged in an Ogg container.
type oggSink struct {
	w *oggwriter.OggWriter
}

// OggSinkFactory returns a SinkFactory writing Ogg/Opus files.
func OggSinkFactory(sampleRate uint32, channels uint16) SinkFactory {
	return func(path string) (Sink, error) {
		w, err := oggwriter.New(path, sampleRate, channels)
		if err != nil {
			return nil, fmt.Errorf("failed to create ogg writer: %w", err)
		}
		return &oggSink{w: w}, nil
	}
}

func (s *oggSink) WritePacket(p *voice.Packet) error {
	pkt := rtpPacketPool.Get().(*rtp.Packet)
	defer rtpPacketPool.Put(pkt)

	pkt.SequenceNumber = p.Sequence
	pkt.Timestamp = p.Timestamp
	pkt.SSRC = p.SSRC
	pkt.Payload = p.Opus
	return s.w.WriteRTP(pkt)
}

func (s *oggSink) Close() error {
	return s.w.Close()
}

// SpeakerCapture copies one speaker's stream into its sink.
type SpeakerCapture struct {
	SpeakerID string
	Path      string
	// Offset is when the capture began, relative to the session start.
	Offset time.Duration

	stream voice.Stream
	sink   Sink

	mu        sync.Mutex
	active    bool
	finalized bool
	packets   int
	done      chan struct{}
}

func newSpeakerCapture(speakerID, path string, offset time.Duration, stream voice.Stream, sink Sink) *SpeakerCapture {
	return &SpeakerCapture{
		SpeakerID: speakerID,
		Path:      path,
		Offset:    offset,
		stream:    stream,
		sink:      sink,
		active:    true,
		done:      make(chan struct{}),
	}
}

// Active reports whether the capture's subscription is still open.
func (c *SpeakerCapture) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// run copies packets until the stream ends, then finalizes the sink.
func (c *SpeakerCapture) run(logger logger.Logger) {
	defer close(c.done)
	for p := range c.stream.Packets() {
		c.mu.Lock()
		if c.finalized {
			c.mu.Unlock()
			continue
		}
		if err := c.sink.WritePacket(p); err != nil {
			logger.Error("CaptureSubscriptionError", fmt.Errorf("writing packet for speaker %s: %w", c.SpeakerID, err))
		} else {
			c.packets++
		}
		c.mu.Unlock()
	}
	c.finalize(logger)
}

// stop ends the inbound subscription.
func (c *SpeakerCapture) stop(logger logger.Logger) {
	if err := c.stream.Close(); err != nil {
		logger.Error("CaptureSubscriptionError", fmt.Errorf("closing stream for speaker %s: %w", c.SpeakerID, err))
	}
}

// finalize flushes and closes the sink exactly once.
func (c *SpeakerCapture) finalize(logger logger.Logger) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.finalized {
		return
	}
	c.finalized = true
	c.active = false
	if err := c.sink.Close(); err != nil {
		logger.Error("CaptureSubscriptionError", fmt.Errorf("closing sink for speaker %s: %w", c.SpeakerID, err))
	}
}
