package config

import (
	"github.com/sethvargo/go-envconfig"
)

type MinioConfig struct {
	Endpoint string `env:"MINIO_ENDPOINT, required"`
	Username string `env:"MINIO_USERNAME, required"`
	Password string `env:"MINIO_PASSWORD, required"`
	Bucket   string `env:"MINIO_BUCKET, default=harmony"`
	UseSSL   bool   `env:"MINIO_USE_SSL"`
}

func NewMinioConfig(l envconfig.Lookuper) (*MinioConfig, error) {
	var cfg MinioConfig
	if err := process(l, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func NewMinioConfigFromEnv() (*MinioConfig, error) {
	return NewMinioConfig(nil)
}
