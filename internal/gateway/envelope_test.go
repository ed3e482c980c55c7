package gateway

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/google/go-cmp/cmp"
)

func TestDecodeEnvelope(t *testing.T) {
	seq := int64(42)

	tests := []struct {
		name    string
		input   string
		want    *Envelope
		wantErr bool
	}{
		{
			name:  "hello",
			input: `{"op":10,"d":{"heartbeat_interval":41250},"s":null,"t":null}`,
			want:  &Envelope{Op: OpHello, Data: json.RawMessage(`{"heartbeat_interval":41250}`)},
		},
		{
			name:  "dispatch",
			input: `{"op":0,"d":{},"s":42,"t":"MESSAGE_CREATE"}`,
			want:  &Envelope{Op: OpDispatch, Data: json.RawMessage(`{}`), Seq: &seq, Type: "MESSAGE_CREATE"},
		},
		{
			name:    "dispatch without event name",
			input:   `{"op":0,"d":{},"s":1}`,
			wantErr: true,
		},
		{
			name:    "non-dispatch with event name",
			input:   `{"op":11,"t":"READY"}`,
			wantErr: true,
		},
		{
			name:    "missing opcode",
			input:   `{"d":{}}`,
			wantErr: true,
		},
		{
			name:    "not json",
			input:   `{{`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeEnvelope([]byte(tt.input))
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedEnvelope) {
					t.Fatalf("expected ErrMalformedEnvelope, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("envelope mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEncodeFrame(t *testing.T) {
	channel := "c1"

	tests := []struct {
		name string
		op   Opcode
		data any
		want string
	}{
		{
			name: "heartbeat without sequence",
			op:   OpHeartbeat,
			data: (*int64)(nil),
			want: `{"op":1,"d":null}`,
		},
		{
			name: "identify",
			op:   OpIdentify,
			data: identifyPayload{
				Token:      "abc",
				Intents:    discordgo.IntentsGuildMessages,
				Properties: IdentifyProperties{OS: "linux", Browser: "b", Device: "d"},
			},
			want: `{"op":2,"d":{"token":"abc","intents":512,"properties":{"os":"linux","browser":"b","device":"d"}}}`,
		},
		{
			name: "leave voice",
			op:   OpVoiceStateUpdate,
			data: voiceStateUpdatePayload{GuildID: "g1"},
			want: `{"op":4,"d":{"guild_id":"g1","channel_id":null,"self_mute":false,"self_deaf":false}}`,
		},
		{
			name: "join voice",
			op:   OpVoiceStateUpdate,
			data: voiceStateUpdatePayload{GuildID: "g1", ChannelID: &channel, SelfDeaf: true},
			want: `{"op":4,"d":{"guild_id":"g1","channel_id":"c1","self_mute":false,"self_deaf":true}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EncodeFrame(tt.op, tt.data)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestDecodeDispatch(t *testing.T) {
	tests := []struct {
		name      string
		eventType string
		data      string
		want      []string
	}{
		{"ready", "READY", `{"v":10,"session_id":"s"}`, []string{EventReady}},
		{"message", "MESSAGE_CREATE", `{"id":"1","content":"!ping"}`, []string{EventMessage}},
		{"guild", "GUILD_CREATE", `{"id":"g"}`, []string{EventGuildJoin}},
		{"slash command", "INTERACTION_CREATE", `{"id":"i","type":2,"data":{"id":"c","name":"ping"}}`, []string{EventInteractionCreate, EventApplicationCommand}},
		{"component", "INTERACTION_CREATE", `{"id":"i","type":3,"data":{"custom_id":"x","component_type":2}}`, []string{EventInteractionCreate, EventComponentInteraction}},
		{"modal", "INTERACTION_CREATE", `{"id":"i","type":5,"data":{"custom_id":"x"}}`, []string{EventInteractionCreate, EventModalSubmit}},
		{"ping interaction", "INTERACTION_CREATE", `{"id":"i","type":1}`, []string{EventInteractionCreate}},
		{"voice state", "VOICE_STATE_UPDATE", `{"guild_id":"g","user_id":"u"}`, []string{EventVoiceStateUpdate}},
		{"voice server", "VOICE_SERVER_UPDATE", `{"guild_id":"g","token":"t","endpoint":"e"}`, []string{EventVoiceServerUpdate}},
		{"unknown", "TYPING_START", `{}`, []string{"typing_start"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			evs, err := DecodeDispatch(tt.eventType, json.RawMessage(tt.data))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			var got []string
			for _, ev := range evs {
				got = append(got, ev.Name)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("event names mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecodeDispatchInvalidPayload(t *testing.T) {
	if _, err := DecodeDispatch("MESSAGE_CREATE", json.RawMessage(`[]`)); err == nil {
		t.Fatal("expected an error for a non-object message")
	}
}
