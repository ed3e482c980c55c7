package config

import (
	"time"

	"github.com/sethvargo/go-envconfig"
)

type LogConfig struct {
	Level  string `env:"LOG_LEVEL, default=info"`
	Format string `env:"LOG_FORMAT, default=json"`
}

func NewLogConfig(l envconfig.Lookuper) (*LogConfig, error) {
	var cfg LogConfig
	if err := process(l, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type HTTPConfig struct {
	Addr            string        `env:"HTTP_ADDR, default=:8080"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT, default=10s"`
}

func NewHTTPConfig(l envconfig.Lookuper) (*HTTPConfig, error) {
	var cfg HTTPConfig
	if err := process(l, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
