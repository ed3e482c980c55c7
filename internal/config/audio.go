package config

import (
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

const (
	TransportDiscard = "discard"
	TransportFile    = "file"
)

type AudioConfig struct {
	FFmpegPath    string        `env:"AUDIO_FFMPEG_PATH, default=ffmpeg"`
	Volume        float64       `env:"AUDIO_VOLUME, default=1"`
	MaxClipLength time.Duration `env:"AUDIO_MAX_CLIP_LENGTH, default=30s"`

	// Transport selects where voice frames go: "discard" or "file".
	Transport  string `env:"AUDIO_TRANSPORT, default=discard"`
	OutputPath string `env:"AUDIO_OUTPUT_PATH"`
}

func NewAudioConfig(l envconfig.Lookuper) (*AudioConfig, error) {
	var cfg AudioConfig
	if err := process(l, &cfg); err != nil {
		return nil, err
	}
	if cfg.Volume < 0 || cfg.Volume > 2 {
		return nil, fmt.Errorf("AUDIO_VOLUME must be between 0 and 2, got %v", cfg.Volume)
	}
	switch cfg.Transport {
	case TransportDiscard:
	case TransportFile:
		if cfg.OutputPath == "" {
			return nil, fmt.Errorf("AUDIO_OUTPUT_PATH is required for the file transport")
		}
	default:
		return nil, fmt.Errorf("unknown AUDIO_TRANSPORT %q", cfg.Transport)
	}
	return &cfg, nil
}

func NewAudioConfigFromEnv() (*AudioConfig, error) {
	return NewAudioConfig(nil)
}
