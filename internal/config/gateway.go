package config

import (
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

type GatewayConfig struct {
	URL string `env:"GATEWAY_URL, default=wss://gateway.discord.gg/?v=10&encoding=json"`

	// The default asks for guilds, guild voice states, guild messages and
	// message content.
	Intents int `env:"GATEWAY_INTENTS, default=33409"`

	ConnectTimeout time.Duration `env:"GATEWAY_CONNECT_TIMEOUT, default=30s"`
	ReconnectDelay time.Duration `env:"GATEWAY_RECONNECT_DELAY, default=1s"`
	MaxBackoff     time.Duration `env:"GATEWAY_MAX_BACKOFF, default=1m"`
}

func NewGatewayConfig(l envconfig.Lookuper) (*GatewayConfig, error) {
	var cfg GatewayConfig
	if err := process(l, &cfg); err != nil {
		return nil, err
	}
	if cfg.ReconnectDelay > cfg.MaxBackoff {
		return nil, fmt.Errorf("GATEWAY_RECONNECT_DELAY (%s) exceeds GATEWAY_MAX_BACKOFF (%s)", cfg.ReconnectDelay, cfg.MaxBackoff)
	}
	return &cfg, nil
}

func NewGatewayConfigFromEnv() (*GatewayConfig, error) {
	return NewGatewayConfig(nil)
}
