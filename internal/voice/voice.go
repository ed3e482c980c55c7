// Package voice manages the per-guild voice sessions of the bot.
package voice

import (
	"github.com/bwmarrin/discordgo"
)

// MaxAttendedChannel returns the voice channel with the most users in it,
// according to states. This returns nil if there are no voice channels.
func MaxAttendedChannel(channels []*discordgo.Channel, states []*discordgo.VoiceState) *discordgo.Channel {
	attendance := make(map[string]int, len(channels))
	for _, state := range states {
		if state.ChannelID != "" {
			attendance[state.ChannelID]++
		}
	}

	var maxAttendedChannel *discordgo.Channel
	maxAttended := -1

	for _, channel := range channels {
		if channel.Type != discordgo.ChannelTypeGuildVoice {
			continue
		}

		if attendance[channel.ID] > maxAttended {
			maxAttendedChannel = channel
			maxAttended = attendance[channel.ID]
		}
	}

	return maxAttendedChannel
}
