package opus

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/glizzus/harmony/internal/audio"
	"github.com/jonas747/ogg"
)

// Every Ogg Opus stream starts with an identification and a comment header.
const headerPackets = 2

var ErrNotOpus = errors.New("stream is not ogg opus")

// Duration counts the audio packets of an Ogg Opus stream produced by Encode.
func Duration(r io.Reader) (time.Duration, error) {
	decoder := ogg.NewPacketDecoder(ogg.NewDecoder(r))

	var packets int
	for {
		_, _, err := decoder.Decode()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return 0, fmt.Errorf("%w: %w", ErrNotOpus, err)
		}
		packets++
	}

	if packets < headerPackets {
		return 0, ErrNotOpus
	}
	return time.Duration(packets-headerPackets) * audio.FrameDuration, nil
}
