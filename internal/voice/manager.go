package voice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/glizzus/harmony/internal/audio"
	"github.com/glizzus/harmony/internal/events"
	"github.com/glizzus/harmony/internal/gateway"
)

const DefaultHandshakeTimeout = 10 * time.Second

var (
	ErrNotInVoice       = errors.New("not connected to voice in this guild")
	ErrJoinInProgress   = errors.New("a voice join is already in progress for this guild")
	ErrHandshakeTimeout = errors.New("timed out waiting for voice server information")
)

// Gateway is the part of the gateway session used to negotiate voice.
type Gateway interface {
	UpdateVoiceState(ctx context.Context, guildID, channelID string, mute, deaf bool) error
	User() *discordgo.User
}

var _ Gateway = (*gateway.Session)(nil)

// StageSpeaker lifts the bot's suppression in a stage channel, where it
// joins as a listener.
type StageSpeaker interface {
	PatchVoiceState(ctx context.Context, guildID, channelID string, suppress bool) error
}

type ManagerOption func(*Manager)

func WithHandshakeTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		m.timeout = d
	}
}

// WithPlayerOptions configures the player of every new session.
func WithPlayerOptions(opts ...audio.PlayerOption) ManagerOption {
	return func(m *Manager) {
		m.playerOpts = append(m.playerOpts, opts...)
	}
}

// WithStageSpeaker makes the bot ask to speak after joining a stage channel.
func WithStageSpeaker(s StageSpeaker) ManagerOption {
	return func(m *Manager) {
		m.stage = s
	}
}

func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// Manager keeps at most one voice session per guild.
type Manager struct {
	gateway    Gateway
	transport  Transport
	dispatcher *events.Dispatcher
	timeout    time.Duration
	playerOpts []audio.PlayerOption
	stage      StageSpeaker
	logger     *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	pending  map[string]*handshake
	handles  []events.Handle
}

type handshake struct {
	channelID string
	state     chan *discordgo.VoiceState
	server    chan *discordgo.VoiceServerUpdate
}

// NewManager registers the voice listeners on d. Call Close to remove them.
func NewManager(gw Gateway, d *events.Dispatcher, transport Transport, opts ...ManagerOption) *Manager {
	m := &Manager{
		gateway:    gw,
		transport:  transport,
		dispatcher: d,
		timeout:    DefaultHandshakeTimeout,
		sessions:   make(map[string]*Session),
		pending:    make(map[string]*handshake),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}

	m.handles = []events.Handle{
		d.AddListener(gateway.EventVoiceStateUpdate, events.Typed(m.onVoiceState)),
		d.AddListener(gateway.EventVoiceServerUpdate, events.Typed(m.onVoiceServer)),
	}
	return m
}

// Count returns the number of guilds with an open session.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Join connects to channelID in the guild. If the bot is already in that
// channel the existing session is returned; if it is in another channel of
// the guild that session is closed first.
func (m *Manager) Join(ctx context.Context, guildID, channelID string) (*Session, error) {
	m.mu.Lock()
	if s, ok := m.sessions[guildID]; ok && s.ChannelID() == channelID {
		m.mu.Unlock()
		return s, nil
	}
	if _, busy := m.pending[guildID]; busy {
		m.mu.Unlock()
		return nil, ErrJoinInProgress
	}
	hs := &handshake{
		channelID: channelID,
		state:     make(chan *discordgo.VoiceState, 1),
		server:    make(chan *discordgo.VoiceServerUpdate, 1),
	}
	m.pending[guildID] = hs
	previous := m.sessions[guildID]
	delete(m.sessions, guildID)
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.pending, guildID)
		m.mu.Unlock()
	}()

	if previous != nil {
		if err := previous.close(); err != nil {
			m.logger.Warn("failed to close previous voice session", slog.String("guildID", guildID), slog.Any("error", err))
		}
	}

	if err := m.gateway.UpdateVoiceState(ctx, guildID, channelID, false, true); err != nil {
		return nil, fmt.Errorf("failed to request voice state: %w", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	var state *discordgo.VoiceState
	var server *discordgo.VoiceServerUpdate
	for state == nil || server == nil {
		select {
		case state = <-hs.state:
		case server = <-hs.server:
		case <-waitCtx.Done():
			m.abandon(guildID)
			return nil, fmt.Errorf("%w: %w", ErrHandshakeTimeout, waitCtx.Err())
		}
	}

	info := ServerInfo{
		GuildID:   guildID,
		ChannelID: channelID,
		UserID:    state.UserID,
		SessionID: state.SessionID,
		Token:     server.Token,
		Endpoint:  server.Endpoint,
	}
	sink, err := m.transport.Open(ctx, info)
	if err != nil {
		m.abandon(guildID)
		return nil, fmt.Errorf("failed to open voice transport: %w", err)
	}

	if state.Suppress && m.stage != nil {
		if err := m.stage.PatchVoiceState(ctx, guildID, channelID, false); err != nil {
			m.logger.Warn("failed to unsuppress in stage channel", slog.String("guildID", guildID), slog.Any("error", err))
		}
	}

	s := newSession(info, sink, m.playerOpts...)
	m.mu.Lock()
	m.sessions[guildID] = s
	m.mu.Unlock()

	m.logger.Info("joined voice channel", slog.String("guildID", guildID), slog.String("channelID", channelID))
	return s, nil
}

// abandon leaves voice after a failed join.
func (m *Manager) abandon(guildID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.gateway.UpdateVoiceState(ctx, guildID, "", false, false); err != nil {
		m.logger.Warn("failed to leave voice after failed join", slog.String("guildID", guildID), slog.Any("error", err))
	}
}

func (m *Manager) Get(guildID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[guildID]
	return s, ok
}

// Leave stops playback, closes the session and leaves voice in the guild.
func (m *Manager) Leave(ctx context.Context, guildID string) error {
	m.mu.Lock()
	s, ok := m.sessions[guildID]
	delete(m.sessions, guildID)
	m.mu.Unlock()

	if !ok {
		return ErrNotInVoice
	}

	closeErr := s.close()
	if err := m.gateway.UpdateVoiceState(ctx, guildID, "", false, false); err != nil {
		return errors.Join(closeErr, fmt.Errorf("failed to leave voice: %w", err))
	}
	m.logger.Info("left voice channel", slog.String("guildID", guildID))
	return closeErr
}

// WithVoiceChannel runs fn with a session in channelID. A session the
// manager did not already have for that channel is left afterwards.
func (m *Manager) WithVoiceChannel(ctx context.Context, guildID, channelID string, fn func(*Session) error) error {
	if s, ok := m.Get(guildID); ok && s.ChannelID() == channelID {
		return fn(s)
	}

	s, err := m.Join(ctx, guildID, channelID)
	if err != nil {
		return fmt.Errorf("unable to join the voice channel: %w", err)
	}
	defer func() {
		if err := m.Leave(context.WithoutCancel(ctx), guildID); err != nil && !errors.Is(err, ErrNotInVoice) {
			m.logger.Error("failed to leave voice channel", slog.String("guildID", guildID), slog.Any("error", err))
		}
	}()

	if err := fn(s); err != nil {
		return fmt.Errorf("error executing callback: %w", err)
	}
	return nil
}

// Close leaves every guild and removes the manager's listeners.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	guilds := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		guilds = append(guilds, id)
	}
	handles := m.handles
	m.handles = nil
	m.mu.Unlock()

	var errs []error
	for _, id := range guilds {
		if err := m.Leave(ctx, id); err != nil && !errors.Is(err, ErrNotInVoice) {
			errs = append(errs, err)
		}
	}
	for _, h := range handles {
		m.dispatcher.RemoveListener(h)
	}
	return errors.Join(errs...)
}

func (m *Manager) isSelf(userID string) bool {
	user := m.gateway.User()
	return user != nil && user.ID == userID
}

func (m *Manager) onVoiceState(ctx context.Context, vs *discordgo.VoiceState) error {
	if !m.isSelf(vs.UserID) {
		return nil
	}

	m.mu.Lock()
	hs := m.pending[vs.GuildID]
	s := m.sessions[vs.GuildID]
	if hs == nil && s != nil && vs.ChannelID == "" {
		delete(m.sessions, vs.GuildID)
	} else {
		s = nil
	}
	m.mu.Unlock()

	if hs != nil {
		if vs.ChannelID == hs.channelID {
			select {
			case hs.state <- vs:
			default:
			}
		}
		return nil
	}

	// Disconnected from outside, e.g. kicked or the channel was deleted.
	if s != nil {
		m.logger.Info("removed from voice channel", slog.String("guildID", vs.GuildID))
		return s.close()
	}
	return nil
}

func (m *Manager) onVoiceServer(ctx context.Context, vsu *discordgo.VoiceServerUpdate) error {
	m.mu.Lock()
	hs := m.pending[vsu.GuildID]
	m.mu.Unlock()

	if hs != nil {
		select {
		case hs.server <- vsu:
		default:
		}
	}
	return nil
}
