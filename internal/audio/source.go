package audio

import (
	"context"
	"errors"
	"io"
	"sync"
)

// Source produces PCM frames on demand.
//
// ReadFrame returns an empty frame once the stream is exhausted. Any other
// error is a failure. Cleanup releases the source and is safe to call more
// than once.
type Source interface {
	ReadFrame(ctx context.Context) ([]byte, error)
	Cleanup() error
}

var ErrSourceClosed = errors.New("audio source closed")

// PCMSource reads frames from an already decoded PCM stream.
type PCMSource struct {
	r      io.ReadCloser
	volume Volume

	mu     sync.Mutex
	closed bool

	closeOnce sync.Once
	closeErr  error
}

func NewPCMSource(r io.ReadCloser) *PCMSource {
	return &PCMSource{r: r}
}

func (s *PCMSource) ReadFrame(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSourceClosed
	}

	stop := context.AfterFunc(ctx, func() { s.closeReader() })
	defer stop()

	frame, err := readFrame(s.r)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
	ApplyVolume(frame, s.volume.Load())
	return frame, nil
}

func (s *PCMSource) SetVolume(volume float64) {
	s.volume.Store(volume)
}

func (s *PCMSource) Volume() float64 {
	return s.volume.Load()
}

func (s *PCMSource) closeReader() error {
	s.closeOnce.Do(func() { s.closeErr = s.r.Close() })
	return s.closeErr
}

// Cleanup closes the underlying stream. A blocked ReadFrame returns.
func (s *PCMSource) Cleanup() error {
	err := s.closeReader()
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return err
}

var (
	_ Source     = (*PCMSource)(nil)
	_ Adjustable = (*PCMSource)(nil)
)
