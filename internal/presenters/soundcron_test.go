package presenters_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/glizzus/harmony/internal/presenters"
	"github.com/glizzus/harmony/internal/repository"
	"github.com/google/go-cmp/cmp"
)

func TestBuildListSoundCronsResponse(t *testing.T) {
	tests := []struct {
		name  string
		input []repository.SoundCron
		want  *discordgo.InteractionResponse
	}{
		{
			name:  "no soundcrons",
			input: []repository.SoundCron{},
			want: &discordgo.InteractionResponse{
				Type: discordgo.InteractionResponseChannelMessageWithSource,
				Data: &discordgo.InteractionResponseData{
					Content: "No soundcrons found",
				},
			},
		},
		{
			name: "any soundcrons",
			input: []repository.SoundCron{
				{
					ID:   "test-sc-1",
					Name: "Test SoundCron 1",
				},
				{
					ID:   "test-sc-2",
					Name: "Test SoundCron 2",
				},
			},
			want: &discordgo.InteractionResponse{
				Type: discordgo.InteractionResponseChannelMessageWithSource,
				Data: &discordgo.InteractionResponseData{
					Content: "**Current Soundcrons** _(select for more details)_",
					Components: []discordgo.MessageComponent{
						discordgo.ActionsRow{
							Components: []discordgo.MessageComponent{
								discordgo.SelectMenu{
									MenuType:    discordgo.StringSelectMenu,
									CustomID:    "soundcron_select_menu:test-sc-1",
									Placeholder: "Select a soundcron",
									MinValues:   &[]int{1}[0],
									MaxValues:   1,
									Options: []discordgo.SelectMenuOption{
										{
											Label: "Test SoundCron 1",
											Value: "test-sc-1",
										},
										{
											Label: "Test SoundCron 2",
											Value: "test-sc-2",
										},
									},
								},
							},
						},
					},
				},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := presenters.BuildListSoundCronsResponse(tt.input, "test-sc-1")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			diff := cmp.Diff(tt.want, got)
			if diff != "" {
				t.Errorf("BuildListSoundCronsResponse() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSoundCronListActionsMenu(t *testing.T) {
	tests := []struct {
		name  string
		input repository.SoundCron
		want  *discordgo.InteractionResponse
	}{
		{
			name: "any soundcron",
			input: repository.SoundCron{
				ID:   "test-sc-1",
				Name: "Test SoundCron 1",
			},
			want: &discordgo.InteractionResponse{
				Type: discordgo.InteractionResponseChannelMessageWithSource,
				Data: &discordgo.InteractionResponseData{
					Content: "Test SoundCron 1",
					Components: []discordgo.MessageComponent{
						discordgo.ActionsRow{
							Components: []discordgo.MessageComponent{
								discordgo.Button{
									Label:    "Edit",
									Style:    discordgo.SecondaryButton,
									CustomID: "soundcron_edit:test-sc-1",
								},
								discordgo.Button{
									Label:    "Delete",
									Style:    discordgo.DangerButton,
									CustomID: "soundcron_delete:test-sc-1",
								},
							},
						},
					},
				},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := presenters.SoundCronListActionsMenu(tt.input.ID, tt.input.Name)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			diff := cmp.Diff(tt.want, got)
			if diff != "" {
				t.Errorf("SoundCronListActionsMenu() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestBuildListSoundCronsResponseTruncates(t *testing.T) {
	var soundCrons []repository.SoundCron
	for i := range 30 {
		soundCrons = append(soundCrons, repository.SoundCron{
			ID:   fmt.Sprintf("sc-%d", i),
			Name: fmt.Sprintf("SoundCron %d", i),
		})
	}

	got, err := presenters.BuildListSoundCronsResponse(soundCrons, "instance")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	row := got.Data.Components[0].(discordgo.ActionsRow)
	menu := row.Components[0].(discordgo.SelectMenu)
	if len(menu.Options) != 25 {
		t.Errorf("expected 25 options, got %d", len(menu.Options))
	}
}

func TestSoundCronEditModal(t *testing.T) {
	modal, err := presenters.SoundCronEditModal("sc-1", "*/5 * * * *")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp := modal.Response()

	if resp.Type != discordgo.InteractionResponseModal {
		t.Errorf("expected a modal response, got %v", resp.Type)
	}
	if resp.Data.CustomID != "soundcron_edit:sc-1" {
		t.Errorf("unexpected custom ID %q", resp.Data.CustomID)
	}
	input := resp.Data.Components[0].(discordgo.ActionsRow).Components[0].(discordgo.TextInput)
	if input.CustomID != presenters.InputIDCron || input.Value != "*/5 * * * *" {
		t.Errorf("unexpected cron input %+v", input)
	}
}

func TestSoundCronDetails(t *testing.T) {
	sc := repository.SoundCron{Name: "Airhorn", Cron: "0 * * * *", FileSize: 2048}
	upcoming := []time.Time{time.Unix(1700000000, 0), time.Unix(1700003600, 0)}

	got, err := presenters.SoundCronDetails(sc, upcoming)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []*discordgo.MessageEmbedField{
		{Name: "Schedule", Value: "`0 * * * *`", Inline: true},
		{Name: "Size", Value: "2.0 KB", Inline: true},
		{Name: "Next runs", Value: "<t:1700000000:R>\n<t:1700003600:R>"},
	}
	if diff := cmp.Diff(want, got.Fields); diff != "" {
		t.Errorf("fields mismatch (-want +got):\n%s", diff)
	}
}
