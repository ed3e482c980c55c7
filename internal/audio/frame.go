// Package audio produces and paces fixed-size PCM frames for voice playback.
//
// Every frame is 20ms of interleaved signed 16-bit little-endian PCM at
// 48kHz with two channels.
package audio

import (
	"encoding/binary"
	"errors"
	"io"
	"math"
	"sync/atomic"
	"time"
)

const (
	SampleRate    = 48000
	Channels      = 2
	FrameDuration = 20 * time.Millisecond
	FrameSamples  = SampleRate / int(time.Second/FrameDuration)
	FrameSize     = FrameSamples * Channels * 2
)

// ApplyVolume scales every sample of frame by volume in place. Results are
// clamped to the int16 range. A negative volume is treated as silence.
func ApplyVolume(frame []byte, volume float64) {
	if volume == 1 {
		return
	}
	volume = max(volume, 0)

	for i := 0; i+1 < len(frame); i += 2 {
		sample := float64(int16(binary.LittleEndian.Uint16(frame[i:])))
		scaled := math.Round(sample * volume)
		scaled = min(max(scaled, math.MinInt16), math.MaxInt16)
		binary.LittleEndian.PutUint16(frame[i:], uint16(int16(scaled)))
	}
}

// readFrame reads exactly one frame from r. A trailing partial frame is
// zero-padded. A clean end of stream returns an empty frame.
func readFrame(r io.Reader) ([]byte, error) {
	frame := make([]byte, FrameSize)
	n, err := io.ReadFull(r, frame)
	switch {
	case err == nil:
		return frame, nil
	case errors.Is(err, io.ErrUnexpectedEOF):
		clear(frame[n:])
		return frame, nil
	case errors.Is(err, io.EOF):
		return nil, nil
	default:
		return nil, err
	}
}

// Volume is a linear gain that can be changed while a source is playing.
// The zero value is unity gain.
type Volume struct {
	bits atomic.Uint64
	set  atomic.Bool
}

func (v *Volume) Load() float64 {
	if !v.set.Load() {
		return 1
	}
	return math.Float64frombits(v.bits.Load())
}

func (v *Volume) Store(volume float64) {
	v.bits.Store(math.Float64bits(volume))
	v.set.Store(true)
}

// Adjustable is implemented by sources whose volume can be changed.
type Adjustable interface {
	SetVolume(volume float64)
	Volume() float64
}
