package gateway

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// Opcode identifies the kind of a gateway envelope.
type Opcode int

const (
	OpDispatch         Opcode = 0
	OpHeartbeat        Opcode = 1
	OpIdentify         Opcode = 2
	OpVoiceStateUpdate Opcode = 4
	OpReconnect        Opcode = 7
	OpInvalidSession   Opcode = 9
	OpHello            Opcode = 10
	OpHeartbeatAck     Opcode = 11
)

// Envelope is a decoded gateway frame.
type Envelope struct {
	Op   Opcode          `json:"op"`
	Data json.RawMessage `json:"d"`
	Seq  *int64          `json:"s"`
	Type string          `json:"t"`
}

var ErrMalformedEnvelope = errors.New("malformed gateway envelope")

// DecodeEnvelope parses a frame and checks that the event name is present
// exactly when the opcode is a dispatch.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	var env struct {
		Op   *Opcode         `json:"op"`
		Data json.RawMessage `json:"d"`
		Seq  *int64          `json:"s"`
		Type *string         `json:"t"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedEnvelope, err)
	}
	if env.Op == nil {
		return nil, fmt.Errorf("%w: missing opcode", ErrMalformedEnvelope)
	}

	hasType := env.Type != nil && *env.Type != ""
	if *env.Op == OpDispatch && !hasType {
		return nil, fmt.Errorf("%w: dispatch without event name", ErrMalformedEnvelope)
	}
	if *env.Op != OpDispatch && hasType {
		return nil, fmt.Errorf("%w: opcode %d carries event name %q", ErrMalformedEnvelope, *env.Op, *env.Type)
	}

	out := &Envelope{Op: *env.Op, Data: env.Data, Seq: env.Seq}
	if hasType {
		out.Type = *env.Type
	}
	return out, nil
}

// outbound is the client-to-server envelope. The sequence and event name are
// never sent.
type outbound struct {
	Op   Opcode `json:"op"`
	Data any    `json:"d"`
}

// EncodeFrame encodes a client-to-server envelope.
func EncodeFrame(op Opcode, data any) ([]byte, error) {
	return json.Marshal(outbound{Op: op, Data: data})
}

type helloPayload struct {
	HeartbeatInterval int64 `json:"heartbeat_interval"`
}

// IdentifyProperties describe the connecting client.
type IdentifyProperties struct {
	OS      string `json:"os"`
	Browser string `json:"browser"`
	Device  string `json:"device"`
}

type identifyPayload struct {
	Token      string             `json:"token"`
	Intents    discordgo.Intent   `json:"intents"`
	Properties IdentifyProperties `json:"properties"`
}

type voiceStateUpdatePayload struct {
	GuildID   string  `json:"guild_id"`
	ChannelID *string `json:"channel_id"`
	SelfMute  bool    `json:"self_mute"`
	SelfDeaf  bool    `json:"self_deaf"`
}

// ReadyApplication is the partial application object carried by READY.
type ReadyApplication struct {
	ID    string `json:"id"`
	Flags int    `json:"flags"`
}

// Ready is the payload of the READY dispatch.
type Ready struct {
	Version          int                `json:"v"`
	User             *discordgo.User    `json:"user"`
	SessionID        string             `json:"session_id"`
	ResumeGatewayURL string             `json:"resume_gateway_url"`
	Guilds           []*discordgo.Guild `json:"guilds"`
	Application      *ReadyApplication  `json:"application"`
}
