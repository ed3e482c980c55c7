package config

import (
	"fmt"

	"github.com/sethvargo/go-envconfig"
)

type DiscordConfig struct {
	Token          string `env:"DISCORD_TOKEN, required"`
	GuildID        string `env:"DISCORD_GUILD_ID"`
	RunBotGlobally bool   `env:"DISCORD_RUN_BOT_GLOBALLY"`
	CommandPrefix  string `env:"DISCORD_COMMAND_PREFIX, default=!"`
}

func NewDiscordConfig(l envconfig.Lookuper) (*DiscordConfig, error) {
	var cfg DiscordConfig
	if err := process(l, &cfg); err != nil {
		return nil, err
	}
	if cfg.GuildID == "" && !cfg.RunBotGlobally {
		return nil, fmt.Errorf("refusing to run the bot without a guild ID unless DISCORD_RUN_BOT_GLOBALLY is set to true")
	}
	if cfg.CommandPrefix == "" {
		return nil, fmt.Errorf("DISCORD_COMMAND_PREFIX must not be empty")
	}

	return &cfg, nil
}

func NewDiscordConfigFromEnv() (*DiscordConfig, error) {
	return NewDiscordConfig(nil)
}

// CommandGuildID is the guild slash commands are synced to. Empty means
// global commands.
func (c *DiscordConfig) CommandGuildID() string {
	if c.RunBotGlobally {
		return ""
	}
	return c.GuildID
}
