package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/glizzus/harmony/internal/events"
)

// State is the playback state of a Player.
type State int32

const (
	StateIdle State = iota
	StatePlaying
	StatePaused
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateEnded:
		return "ended"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

var (
	// ErrStopped is reported to EndedFunc when playback was stopped or replaced.
	ErrStopped = errors.New("playback stopped")
	// ErrSourceInUse is reported to EndedFunc when Play is given the source
	// that is already playing.
	ErrSourceInUse = errors.New("audio source is already playing")
)

// Transmitter sends a frame to the listener side.
type Transmitter interface {
	TransmitFrame(ctx context.Context, frame []byte) error
}

// TransmitterFunc adapts a function to a Transmitter.
type TransmitterFunc func(ctx context.Context, frame []byte) error

func (f TransmitterFunc) TransmitFrame(ctx context.Context, frame []byte) error {
	return f(ctx, frame)
}

// EndedFunc is called exactly once per Play, after the source is cleaned up.
// err is nil when the source was exhausted, ErrStopped when playback was
// stopped or replaced, and the failure otherwise.
type EndedFunc func(src Source, err error)

// Observer is notified about playback activity.
type Observer interface {
	FrameTransmitted()
	PlaybackEnded(err error)
}

type PlayerOption func(*Player)

// WithFrameInterval overrides the pacing interval.
func WithFrameInterval(d time.Duration) PlayerOption {
	return func(p *Player) {
		p.interval = d
	}
}

func WithLogger(logger *slog.Logger) PlayerOption {
	return func(p *Player) {
		p.logger = logger
	}
}

func WithObserver(o Observer) PlayerOption {
	return func(p *Player) {
		p.observer = o
	}
}

// Player drives one source at a time at real-time cadence.
type Player struct {
	tx       Transmitter
	interval time.Duration
	logger   *slog.Logger
	observer Observer

	mu      sync.Mutex
	state   State
	current *playback
}

type playback struct {
	src     Source
	onEnded EndedFunc
	cancel  context.CancelFunc
	paused  atomic.Bool
	done    chan struct{}
}

func NewPlayer(tx Transmitter, opts ...PlayerOption) *Player {
	p := &Player{
		tx:       tx,
		interval: FrameDuration,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// Play starts src, cancelling whatever was playing before without waiting
// for it. The returned channel is closed once onEnded has returned.
//
// Sources are single-use: the player cleans src up when it ends. Playing the
// source that is already playing leaves that playback alone and ends the new
// one with ErrSourceInUse.
func (p *Player) Play(src Source, onEnded EndedFunc) <-chan struct{} {
	ctx, cancel := context.WithCancel(context.Background())
	pb := &playback{
		src:     src,
		onEnded: onEnded,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	p.mu.Lock()
	if p.current != nil && p.current.src == src {
		p.mu.Unlock()
		cancel()
		go func() {
			p.ended(pb, ErrSourceInUse)
			close(pb.done)
		}()
		return pb.done
	}
	prev := p.current
	p.current = pb
	p.state = StatePlaying
	p.mu.Unlock()

	if prev != nil {
		prev.cancel()
	}

	go p.run(ctx, pb)
	return pb.done
}

// Pause keeps the cadence running but stops pulling frames.
func (p *Player) Pause() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil || p.state != StatePlaying {
		return false
	}
	p.current.paused.Store(true)
	p.state = StatePaused
	return true
}

func (p *Player) Resume() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil || p.state != StatePaused {
		return false
	}
	p.current.paused.Store(false)
	p.state = StatePlaying
	return true
}

// Stop cancels playback. The state is Ended when Stop returns; the playback
// goroutine exits at its next suspension point.
func (p *Player) Stop() bool {
	p.mu.Lock()
	pb := p.current
	p.current = nil
	if pb != nil {
		p.state = StateEnded
	}
	p.mu.Unlock()

	if pb == nil {
		return false
	}
	pb.cancel()
	return true
}

func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Player) IsPlaying() bool {
	return p.State() == StatePlaying
}

func (p *Player) IsPaused() bool {
	return p.State() == StatePaused
}

// Source returns the source currently being played, if any.
func (p *Player) Source() (Source, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return nil, false
	}
	return p.current.src, true
}

func (p *Player) run(ctx context.Context, pb *playback) {
	err := p.loop(ctx, pb)
	p.finish(pb, err)
}

func (p *Player) loop(ctx context.Context, pb *playback) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if !pb.paused.Load() {
			frame, err := pb.src.ReadFrame(ctx)
			if ctx.Err() != nil {
				return ErrStopped
			}
			if err != nil {
				if errors.Is(err, io.EOF) {
					return nil
				}
				return fmt.Errorf("failed to read frame: %w", err)
			}
			if len(frame) == 0 {
				return nil
			}

			if err := p.tx.TransmitFrame(ctx, frame); err != nil {
				if ctx.Err() != nil {
					return ErrStopped
				}
				return fmt.Errorf("failed to transmit frame: %w", err)
			}
			if p.observer != nil {
				p.observer.FrameTransmitted()
			}
		}

		select {
		case <-ctx.Done():
			return ErrStopped
		case <-ticker.C:
		}
	}
}

func (p *Player) finish(pb *playback, err error) {
	pb.cancel()

	p.mu.Lock()
	if p.current == pb {
		p.current = nil
		p.state = StateEnded
	}
	p.mu.Unlock()

	if cerr := pb.src.Cleanup(); cerr != nil {
		p.logger.Warn("failed to clean up audio source", slog.Any("error", cerr))
	}
	if err != nil && !errors.Is(err, ErrStopped) {
		p.logger.Error("playback failed", slog.Any("error", err))
	}
	if p.observer != nil {
		p.observer.PlaybackEnded(err)
	}

	p.ended(pb, err)
	close(pb.done)
}

func (p *Player) ended(pb *playback, err error) {
	if pb.onEnded == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("playback ended callback panicked", slog.Any("error", &events.PanicError{Value: r}))
		}
	}()
	pb.onEnded(pb.src, err)
}
