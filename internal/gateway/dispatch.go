package gateway

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
)

// Canonical event names handed to the dispatcher.
const (
	EventReady                = "ready"
	EventMessage              = "message"
	EventGuildJoin            = "guild_join"
	EventInteractionCreate    = "interaction_create"
	EventApplicationCommand   = "application_command"
	EventComponentInteraction = "component_interaction"
	EventModalSubmit          = "modal_submit"
	EventVoiceStateUpdate     = "voice_state_update"
	EventVoiceServerUpdate    = "voice_server_update"
)

// Event is a decoded dispatch ready for fan-out.
type Event struct {
	Name    string
	Payload any
}

// DecodeDispatch converts a dispatch payload into the events it produces.
//
// Known event types decode into typed records. INTERACTION_CREATE also yields
// a second event named after the interaction type. Unknown types are passed
// through under their lower-cased name with the raw JSON payload.
func DecodeDispatch(eventType string, data json.RawMessage) ([]Event, error) {
	switch eventType {
	case "READY":
		var r Ready
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("failed to decode READY: %w", err)
		}
		return []Event{{Name: EventReady, Payload: &r}}, nil

	case "MESSAGE_CREATE":
		var m discordgo.Message
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("failed to decode MESSAGE_CREATE: %w", err)
		}
		return []Event{{Name: EventMessage, Payload: &m}}, nil

	case "GUILD_CREATE":
		var g discordgo.Guild
		if err := json.Unmarshal(data, &g); err != nil {
			return nil, fmt.Errorf("failed to decode GUILD_CREATE: %w", err)
		}
		return []Event{{Name: EventGuildJoin, Payload: &g}}, nil

	case "INTERACTION_CREATE":
		var i discordgo.Interaction
		if err := json.Unmarshal(data, &i); err != nil {
			return nil, fmt.Errorf("failed to decode INTERACTION_CREATE: %w", err)
		}
		out := []Event{{Name: EventInteractionCreate, Payload: &i}}
		switch i.Type {
		case discordgo.InteractionApplicationCommand:
			out = append(out, Event{Name: EventApplicationCommand, Payload: &i})
		case discordgo.InteractionMessageComponent:
			out = append(out, Event{Name: EventComponentInteraction, Payload: &i})
		case discordgo.InteractionModalSubmit:
			out = append(out, Event{Name: EventModalSubmit, Payload: &i})
		}
		return out, nil

	case "VOICE_STATE_UPDATE":
		var v discordgo.VoiceState
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("failed to decode VOICE_STATE_UPDATE: %w", err)
		}
		return []Event{{Name: EventVoiceStateUpdate, Payload: &v}}, nil

	case "VOICE_SERVER_UPDATE":
		var v discordgo.VoiceServerUpdate
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("failed to decode VOICE_SERVER_UPDATE: %w", err)
		}
		return []Event{{Name: EventVoiceServerUpdate, Payload: &v}}, nil

	default:
		return []Event{{Name: strings.ToLower(eventType), Payload: data}}, nil
	}
}
