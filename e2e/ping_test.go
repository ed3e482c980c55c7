package e2e_test

import (
	"context"
	"sync"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/google/go-cmp/cmp"

	"github.com/glizzus/harmony/internal/generator"
	"github.com/glizzus/harmony/internal/handler"
	"github.com/glizzus/harmony/internal/interactions"
)

type mockSession struct {
	mu    sync.Mutex
	Resps []*discordgo.InteractionResponse
	Edits []string
}

func (m *mockSession) InteractionRespond(i *discordgo.Interaction, resp *discordgo.InteractionResponse, opts ...discordgo.RequestOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Resps = append(m.Resps, resp)
	return nil
}

func (m *mockSession) InteractionResponseEdit(i *discordgo.Interaction, wh *discordgo.WebhookEdit, opts ...discordgo.RequestOption) (*discordgo.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if wh.Content != nil {
		m.Edits = append(m.Edits, *wh.Content)
	}
	return &discordgo.Message{}, nil
}

func (m *mockSession) FollowupMessageCreate(i *discordgo.Interaction, wait bool, data *discordgo.WebhookParams, opts ...discordgo.RequestOption) (*discordgo.Message, error) {
	return &discordgo.Message{}, nil
}

func (m *mockSession) Last(t *testing.T) *discordgo.InteractionResponse {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Resps) == 0 {
		t.Fatal("expected a response, got none")
	}
	return m.Resps[len(m.Resps)-1]
}

var _ interactions.Responder = (*mockSession)(nil)

// newRouter wires the slash command handlers the way the bot does, with
// whatever backends the test provides.
func newRouter(t *testing.T, session *mockSession, idGen generator.Generator[string], opts handler.SoundCronHandlerOptions) *interactions.Router {
	t.Helper()
	router := interactions.NewRouter(session, interactions.NewFlowManager(idGen), nil)
	if err := handler.NewSoundCronHandler(opts).Register(router); err != nil {
		t.Fatalf("failed to register handlers: %v", err)
	}
	return router
}

func TestInteractionCreatePing(t *testing.T) {
	session := &mockSession{}
	router := newRouter(t, session, &generator.UUIDV4Generator{}, handler.SoundCronHandlerOptions{})

	interaction := &discordgo.Interaction{
		Type: discordgo.InteractionApplicationCommand,
		Data: discordgo.ApplicationCommandInteractionData{
			Name: "ping",
		},
	}
	if !router.Handle(context.Background(), interaction) {
		t.Fatal("expected ping to be handled")
	}

	expected := []*discordgo.InteractionResponse{
		{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Content: "Pong!",
			},
		},
	}

	diff := cmp.Diff(expected, session.Resps)
	if diff != "" {
		t.Errorf("session mismatch (-want +got):\n%s", diff)
	}
}
