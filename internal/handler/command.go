package handler

import (
	"slices"

	"github.com/bwmarrin/discordgo"
	"github.com/glizzus/harmony/internal/interactions"
	"github.com/glizzus/harmony/internal/permissions"
)

var baseAddCommandOptions = []interactions.Option{
	{
		Name:        "cron",
		Type:        discordgo.ApplicationCommandOptionString,
		Description: "The cron expression for the soundcron.",
		Required:    true,
	},
	{
		Name:        "name",
		Type:        discordgo.ApplicationCommandOptionString,
		Description: "The name of the soundcron. Defaults to the file name if not provided.",
		Required:    false,
	},
}

var fileAddOptions = append([]interactions.Option{
	{
		Name:        "audio",
		Type:        discordgo.ApplicationCommandOptionAttachment,
		Description: "The file to play when the soundcron runs.",
		Required:    true,
	},
}, baseAddCommandOptions...)

var manageGuild = permissions.ManageGuild

var PingCommand = interactions.SlashCommand{
	Name:        "ping",
	Description: "Check that the bot is alive",
}

var SoundCronCommand = interactions.SlashCommand{
	Name:                     "soundcron",
	Description:              "Manage and work with soundcrons",
	DefaultMemberPermissions: &manageGuild,
	Options: []interactions.Option{
		{
			Name:        "list",
			Type:        discordgo.ApplicationCommandOptionSubCommand,
			Description: "List all soundcrons",
		},
		{
			Name:        "add",
			Type:        discordgo.ApplicationCommandOptionSubCommandGroup,
			Description: "Add a soundcron to this server",
			Options: []interactions.Option{
				{
					Name:        "file",
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Description: "Add a soundcron using a file attachment.",
					Options:     fileAddOptions,
				},
			},
		},
	},
}

// Commands is a list of all the slash commands the bot can handle.
var Commands = []interactions.SlashCommand{
	PingCommand,
	SoundCronCommand,
}

// isCommand matches an application command by its subcommand path.
func isCommand(path ...string) func(*discordgo.Interaction) bool {
	return func(i *discordgo.Interaction) bool {
		if i.Type != discordgo.InteractionApplicationCommand {
			return false
		}
		got, _ := interactions.CommandPath(i.ApplicationCommandData())
		return slices.Equal(got, path)
	}
}

// isComponent matches a component whose custom ID has the given prefix.
func isComponent(prefix string) func(*discordgo.Interaction) bool {
	return func(i *discordgo.Interaction) bool {
		if i.Type != discordgo.InteractionMessageComponent {
			return false
		}
		return interactions.CustomIDPrefix(i.MessageComponentData().CustomID) == prefix
	}
}
