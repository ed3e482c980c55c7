package ui

import (
	"errors"

	"github.com/bwmarrin/discordgo"
)

var ErrEmptyModal = errors.New("modal has no inputs")

// Modal is a popup form of text inputs.
type Modal struct {
	CustomID string
	Title    string
	Inputs   []discordgo.TextInput
}

// NewModal puts each input on its own row.
func NewModal(customID, title string, inputs ...discordgo.TextInput) (Modal, error) {
	if len(inputs) == 0 {
		return Modal{}, ErrEmptyModal
	}
	if len(inputs) > MaxMessageRows {
		return Modal{}, ErrTooManyRows
	}
	return Modal{CustomID: customID, Title: title, Inputs: inputs}, nil
}

// Response is the interaction response that opens the modal.
func (m Modal) Response() *discordgo.InteractionResponse {
	rows := make([]discordgo.MessageComponent, len(m.Inputs))
	for i, input := range m.Inputs {
		rows[i] = discordgo.ActionsRow{Components: []discordgo.MessageComponent{input}}
	}
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID:   m.CustomID,
			Title:      m.Title,
			Components: rows,
		},
	}
}

// ModalValues extracts the submitted text input values keyed by custom ID.
func ModalValues(data discordgo.ModalSubmitInteractionData) map[string]string {
	values := make(map[string]string)
	for _, c := range data.Components {
		collectInputs(c, values)
	}
	return values
}

func collectInputs(c discordgo.MessageComponent, values map[string]string) {
	switch v := c.(type) {
	case *discordgo.ActionsRow:
		for _, inner := range v.Components {
			collectInputs(inner, values)
		}
	case discordgo.ActionsRow:
		for _, inner := range v.Components {
			collectInputs(inner, values)
		}
	case *discordgo.TextInput:
		values[v.CustomID] = v.Value
	case discordgo.TextInput:
		values[v.CustomID] = v.Value
	}
}
