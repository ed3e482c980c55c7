package config

import (
	"github.com/sethvargo/go-envconfig"
)

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR, required"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB, default=0"`
}

func NewRedisConfig(l envconfig.Lookuper) (*RedisConfig, error) {
	var cfg RedisConfig
	if err := process(l, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func NewRedisConfigFromEnv() (*RedisConfig, error) {
	return NewRedisConfig(nil)
}
