// Package presenters turns domain values into platform messages.
package presenters

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/glizzus/harmony/internal/repository"
	"github.com/glizzus/harmony/internal/ui"
)

const (
	ComponentIDSoundCronSelect = "soundcron_select_menu"
	ComponentIDSoundCronEdit   = "soundcron_edit"
	ComponentIDSoundCronDelete = "soundcron_delete"

	// InputIDCron is the text input of the edit modal.
	InputIDCron = "cron"
)

var noSoundCronFoundResponse = &discordgo.InteractionResponse{
	Type: discordgo.InteractionResponseChannelMessageWithSource,
	Data: &discordgo.InteractionResponseData{
		Content: "No soundcrons found",
	},
}

func soundCronToSelectMenuOption(sc repository.SoundCron) discordgo.SelectMenuOption {
	return ui.SelectOption(sc.Name, sc.ID)
}

func messageResponse(content string, rows ...discordgo.ActionsRow) (*discordgo.InteractionResponse, error) {
	components, err := ui.Rows(rows...)
	if err != nil {
		return nil, err
	}
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content:    content,
			Components: components,
		},
	}, nil
}

// BuildListSoundCronsResponse lists the soundcrons of a guild in a select
// menu owned by the given flow instance. Only the first ui.MaxSelectOptions
// soundcrons fit in the menu.
func BuildListSoundCronsResponse(soundCrons []repository.SoundCron, instanceID string) (*discordgo.InteractionResponse, error) {
	if len(soundCrons) == 0 {
		return noSoundCronFoundResponse, nil
	}
	if len(soundCrons) > ui.MaxSelectOptions {
		soundCrons = soundCrons[:ui.MaxSelectOptions]
	}

	options := make([]discordgo.SelectMenuOption, 0, len(soundCrons))
	for _, sc := range soundCrons {
		options = append(options, soundCronToSelectMenuOption(sc))
	}

	menu, err := ui.StringSelect(ComponentIDSoundCronSelect+":"+instanceID, "Select a soundcron", options...)
	if err != nil {
		return nil, fmt.Errorf("failed to build soundcron menu: %w", err)
	}
	row, err := ui.NewActionRow(menu)
	if err != nil {
		return nil, err
	}
	return messageResponse("**Current Soundcrons** _(select for more details)_", row)
}

// SoundCronListActionsMenu offers the actions available on one soundcron.
func SoundCronListActionsMenu(id, name string) (*discordgo.InteractionResponse, error) {
	row, err := ui.NewActionRow(
		ui.SecondaryButton("Edit", ComponentIDSoundCronEdit+":"+id),
		ui.DangerButton("Delete", ComponentIDSoundCronDelete+":"+id),
	)
	if err != nil {
		return nil, err
	}
	return messageResponse(name, row)
}

// SoundCronDetails describes a soundcron and its upcoming runs.
func SoundCronDetails(sc repository.SoundCron, upcoming []time.Time) (*discordgo.MessageEmbed, error) {
	b := ui.NewEmbed().
		Title(sc.Name).
		Field("Schedule", "`"+sc.Cron+"`", true).
		Field("Size", formatSize(sc.FileSize), true)

	if len(upcoming) > 0 {
		runs := make([]string, len(upcoming))
		for i, t := range upcoming {
			runs[i] = fmt.Sprintf("<t:%d:R>", t.Unix())
		}
		b.Field("Next runs", strings.Join(runs, "\n"), false)
	}
	return b.Build()
}

func formatSize(n int64) string {
	const kb = 1024
	switch {
	case n >= kb*kb:
		return fmt.Sprintf("%.1f MB", float64(n)/(kb*kb))
	case n >= kb:
		return fmt.Sprintf("%.1f KB", float64(n)/kb)
	default:
		return fmt.Sprintf("%d B", n)
	}
}

// SoundCronEditModal asks for a new cron expression, prefilled with the
// current one.
func SoundCronEditModal(id, cron string) (ui.Modal, error) {
	input := ui.ShortInput(InputIDCron, "Cron expression", true)
	input.Value = cron
	input.Placeholder = "*/5 * * * *"
	return ui.NewModal(ComponentIDSoundCronEdit+":"+id, "Edit soundcron", input)
}
