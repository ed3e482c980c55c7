// Package config loads each concern's settings from the environment.
package config

import (
	"context"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

// LoadEnv copies the variables of a .env file in the working directory into
// the process environment. Variables that are already set win. The returned
// error satisfies os.IsNotExist when there is no .env file.
func LoadEnv(filenames ...string) error {
	return godotenv.Load(filenames...)
}

func process(l envconfig.Lookuper, target any) error {
	if l == nil {
		l = envconfig.OsLookuper()
	}
	return envconfig.ProcessWith(context.Background(), &envconfig.Config{
		Target:   target,
		Lookuper: l,
	})
}
