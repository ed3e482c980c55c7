package voice

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/glizzus/harmony/internal/audio"
)

// ServerInfo is what the gateway hands out for a voice connection.
type ServerInfo struct {
	GuildID   string
	ChannelID string
	UserID    string
	SessionID string
	Token     string
	Endpoint  string
}

// Sink receives the frames of one voice connection.
type Sink interface {
	audio.Transmitter
	Close() error
}

// Transport turns voice server info into a frame sink. The voice-gateway
// handshake and encrypted UDP framing live behind this interface.
type Transport interface {
	Open(ctx context.Context, info ServerInfo) (Sink, error)
}

var ErrSinkClosed = errors.New("voice sink closed")

// DiscardTransport opens sinks that count and drop frames.
type DiscardTransport struct {
	frames atomic.Int64
}

// Frames returns the number of frames received by every sink so far.
func (t *DiscardTransport) Frames() int64 {
	return t.frames.Load()
}

func (t *DiscardTransport) Open(ctx context.Context, info ServerInfo) (Sink, error) {
	return &discardSink{transport: t}, nil
}

type discardSink struct {
	transport *DiscardTransport
	closed    atomic.Bool
}

func (s *discardSink) TransmitFrame(ctx context.Context, frame []byte) error {
	if s.closed.Load() {
		return ErrSinkClosed
	}
	s.transport.frames.Add(1)
	return nil
}

func (s *discardSink) Close() error {
	s.closed.Store(true)
	return nil
}

// WriterTransport writes raw PCM frames to W. Sinks from the same transport
// share W, so frames from concurrent guilds interleave at frame boundaries.
type WriterTransport struct {
	W io.Writer

	mu sync.Mutex
}

func (t *WriterTransport) Open(ctx context.Context, info ServerInfo) (Sink, error) {
	return &writerSink{transport: t}, nil
}

type writerSink struct {
	transport *WriterTransport
	closed    atomic.Bool
}

func (s *writerSink) TransmitFrame(ctx context.Context, frame []byte) error {
	if s.closed.Load() {
		return ErrSinkClosed
	}
	s.transport.mu.Lock()
	defer s.transport.mu.Unlock()
	_, err := s.transport.W.Write(frame)
	return err
}

func (s *writerSink) Close() error {
	s.closed.Store(true)
	return nil
}

var (
	_ Transport = (*DiscardTransport)(nil)
	_ Transport = (*WriterTransport)(nil)
)
