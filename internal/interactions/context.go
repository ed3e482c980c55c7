// Package interactions routes slash commands, component clicks and modal
// submissions to their handlers.
package interactions

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/glizzus/harmony/internal/ui"
)

// Responder is the part of the REST client used to answer interactions.
type Responder interface {
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	InteractionResponseEdit(interaction *discordgo.Interaction, newresp *discordgo.WebhookEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
	FollowupMessageCreate(interaction *discordgo.Interaction, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

var _ Responder = (*discordgo.Session)(nil)

// Context is handed to every interaction handler.
type Context struct {
	context.Context
	Responder   Responder
	Interaction *discordgo.Interaction
}

// UserID returns the invoking user, whether the interaction came from a
// guild or a DM.
func (c *Context) UserID() string {
	if c.Interaction.Member != nil && c.Interaction.Member.User != nil {
		return c.Interaction.Member.User.ID
	}
	if c.Interaction.User != nil {
		return c.Interaction.User.ID
	}
	return ""
}

func (c *Context) Respond(resp *discordgo.InteractionResponse) error {
	if err := c.Responder.InteractionRespond(c.Interaction, resp, discordgo.WithContext(c)); err != nil {
		return fmt.Errorf("failed to respond to interaction: %w", err)
	}
	return nil
}

// Reply answers with a plain message. Ephemeral replies are only visible to
// the invoking user.
func (c *Context) Reply(content string, ephemeral bool) error {
	data := &discordgo.InteractionResponseData{Content: content}
	if ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	return c.Respond(&discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	})
}

// Update replaces the message a component is attached to.
func (c *Context) Update(data *discordgo.InteractionResponseData) error {
	return c.Respond(&discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: data,
	})
}

// Defer acknowledges the interaction so the answer can be sent later with
// Edit.
func (c *Context) Defer(ephemeral bool) error {
	resp := &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	}
	if ephemeral {
		resp.Data = &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral}
	}
	return c.Respond(resp)
}

// Edit replaces the content of the original response.
func (c *Context) Edit(content string) error {
	_, err := c.Responder.InteractionResponseEdit(c.Interaction, &discordgo.WebhookEdit{
		Content: &content,
	}, discordgo.WithContext(c))
	if err != nil {
		return fmt.Errorf("failed to edit interaction response: %w", err)
	}
	return nil
}

// Followup sends an additional message after the interaction was answered.
func (c *Context) Followup(content string, ephemeral bool) error {
	params := &discordgo.WebhookParams{Content: content}
	if ephemeral {
		params.Flags = discordgo.MessageFlagsEphemeral
	}
	if _, err := c.Responder.FollowupMessageCreate(c.Interaction, true, params, discordgo.WithContext(c)); err != nil {
		return fmt.Errorf("failed to send followup: %w", err)
	}
	return nil
}

func (c *Context) ShowModal(m ui.Modal) error {
	return c.Respond(m.Response())
}
