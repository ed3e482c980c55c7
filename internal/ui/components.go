// Package ui builds message components, modals and embeds.
//
// Layout limits are checked when a row, modal or embed is built, so a value
// that was built successfully is always accepted by the API.
package ui

import (
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"
)

const (
	MaxRowComponents = 5
	MaxMessageRows   = 5
	MaxSelectOptions = 25
)

var (
	ErrEmptyRow          = errors.New("action row has no components")
	ErrTooManyComponents = fmt.Errorf("action row holds at most %d components", MaxRowComponents)
	ErrNotAlone          = errors.New("select menus and text inputs must be alone in their action row")
	ErrTooManyOptions    = fmt.Errorf("select menu holds at most %d options", MaxSelectOptions)
	ErrTooManyRows       = fmt.Errorf("at most %d action rows are allowed", MaxMessageRows)
)

func Button(style discordgo.ButtonStyle, label, customID string) discordgo.Button {
	return discordgo.Button{Label: label, Style: style, CustomID: customID}
}

func PrimaryButton(label, customID string) discordgo.Button {
	return Button(discordgo.PrimaryButton, label, customID)
}

func SecondaryButton(label, customID string) discordgo.Button {
	return Button(discordgo.SecondaryButton, label, customID)
}

func SuccessButton(label, customID string) discordgo.Button {
	return Button(discordgo.SuccessButton, label, customID)
}

func DangerButton(label, customID string) discordgo.Button {
	return Button(discordgo.DangerButton, label, customID)
}

// LinkButton opens url instead of sending an interaction.
func LinkButton(label, url string) discordgo.Button {
	return discordgo.Button{Label: label, Style: discordgo.LinkButton, URL: url}
}

func SelectOption(label, value string) discordgo.SelectMenuOption {
	return discordgo.SelectMenuOption{Label: label, Value: value}
}

// StringSelect lets the user pick exactly one of options.
func StringSelect(customID, placeholder string, options ...discordgo.SelectMenuOption) (discordgo.SelectMenu, error) {
	if len(options) > MaxSelectOptions {
		return discordgo.SelectMenu{}, ErrTooManyOptions
	}
	minValues := 1
	return discordgo.SelectMenu{
		MenuType:    discordgo.StringSelectMenu,
		CustomID:    customID,
		Placeholder: placeholder,
		MinValues:   &minValues,
		MaxValues:   1,
		Options:     options,
	}, nil
}

func UserSelect(customID, placeholder string) discordgo.SelectMenu {
	return discordgo.SelectMenu{MenuType: discordgo.UserSelectMenu, CustomID: customID, Placeholder: placeholder}
}

func RoleSelect(customID, placeholder string) discordgo.SelectMenu {
	return discordgo.SelectMenu{MenuType: discordgo.RoleSelectMenu, CustomID: customID, Placeholder: placeholder}
}

// ChannelSelect offers channels of the given types, or all when none given.
func ChannelSelect(customID, placeholder string, types ...discordgo.ChannelType) discordgo.SelectMenu {
	return discordgo.SelectMenu{
		MenuType:     discordgo.ChannelSelectMenu,
		CustomID:     customID,
		Placeholder:  placeholder,
		ChannelTypes: types,
	}
}

// ShortInput is a single-line text input.
func ShortInput(customID, label string, required bool) discordgo.TextInput {
	return discordgo.TextInput{CustomID: customID, Label: label, Style: discordgo.TextInputShort, Required: required}
}

// ParagraphInput is a multi-line text input.
func ParagraphInput(customID, label string, required bool) discordgo.TextInput {
	return discordgo.TextInput{CustomID: customID, Label: label, Style: discordgo.TextInputParagraph, Required: required}
}

func standsAlone(c discordgo.MessageComponent) bool {
	switch c.(type) {
	case discordgo.SelectMenu, *discordgo.SelectMenu, discordgo.TextInput, *discordgo.TextInput:
		return true
	default:
		return false
	}
}

// NewActionRow lays out components side by side.
func NewActionRow(components ...discordgo.MessageComponent) (discordgo.ActionsRow, error) {
	if len(components) == 0 {
		return discordgo.ActionsRow{}, ErrEmptyRow
	}
	if len(components) > MaxRowComponents {
		return discordgo.ActionsRow{}, ErrTooManyComponents
	}
	if len(components) > 1 {
		for _, c := range components {
			if standsAlone(c) {
				return discordgo.ActionsRow{}, ErrNotAlone
			}
		}
	}
	return discordgo.ActionsRow{Components: components}, nil
}

// Rows converts rows into the component list of a message, checking the
// per-message row limit.
func Rows(rows ...discordgo.ActionsRow) ([]discordgo.MessageComponent, error) {
	if len(rows) > MaxMessageRows {
		return nil, ErrTooManyRows
	}
	out := make([]discordgo.MessageComponent, len(rows))
	for i, row := range rows {
		out[i] = row
	}
	return out, nil
}
