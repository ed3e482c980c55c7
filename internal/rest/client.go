// Package rest is the bot's HTTP client for the platform API.
//
// It wraps a *discordgo.Session that is used purely for REST calls; the
// session's own websocket is never opened.
package rest

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/bwmarrin/discordgo"
)

var ErrInvalidToken = errors.New("invalid bot token")

type Client struct {
	*discordgo.Session
}

// New builds a client for a bot token.
func New(token string) (*Client, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create rest session: %w", err)
	}
	return &Client{Session: s}, nil
}

// Login validates the token by fetching the bot user.
func (c *Client) Login(ctx context.Context) (*discordgo.User, error) {
	user, err := c.User("@me", discordgo.WithContext(ctx))
	if err != nil {
		if StatusCode(err) == http.StatusUnauthorized || errors.Is(err, discordgo.ErrUnauthorized) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("failed to fetch current user: %w", err)
	}
	return user, nil
}

// StatusCode returns the HTTP status of a failed request, or 0 when err did
// not come from an HTTP response.
func StatusCode(err error) int {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil {
		return restErr.Response.StatusCode
	}
	return 0
}

type voiceStatePatch struct {
	ChannelID string `json:"channel_id"`
	Suppress  bool   `json:"suppress"`
}

// PatchVoiceState updates the bot's own voice state in a stage channel.
func (c *Client) PatchVoiceState(ctx context.Context, guildID, channelID string, suppress bool) error {
	endpoint := discordgo.EndpointGuild(guildID) + "/voice-states/@me"
	body := voiceStatePatch{ChannelID: channelID, Suppress: suppress}
	if _, err := c.RequestWithBucketID(http.MethodPatch, endpoint, body, endpoint, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to patch voice state: %w", err)
	}
	return nil
}

// Reply sends content to the channel of msg as a reply to it.
func (c *Client) Reply(ctx context.Context, msg *discordgo.Message, content string) (*discordgo.Message, error) {
	return c.ChannelMessageSendComplex(msg.ChannelID, &discordgo.MessageSend{
		Content:   content,
		Reference: msg.Reference(),
		AllowedMentions: &discordgo.MessageAllowedMentions{
			RepliedUser: false,
		},
	}, discordgo.WithContext(ctx))
}

// SyncCommands overwrites the application's commands in a guild, or
// globally when guildID is empty.
func (c *Client) SyncCommands(ctx context.Context, appID, guildID string, commands []*discordgo.ApplicationCommand) ([]*discordgo.ApplicationCommand, error) {
	registered, err := c.ApplicationCommandBulkOverwrite(appID, guildID, commands, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to establish commands: %w", err)
	}
	return registered, nil
}
