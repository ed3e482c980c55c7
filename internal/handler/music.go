package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/glizzus/harmony/internal/audio"
	"github.com/glizzus/harmony/internal/command"
	"github.com/glizzus/harmony/internal/gateway"
	"github.com/glizzus/harmony/internal/permissions"
	"github.com/glizzus/harmony/internal/presenters"
	"github.com/glizzus/harmony/internal/queue"
	"github.com/glizzus/harmony/internal/util"
	"github.com/glizzus/harmony/internal/voice"
)

// queuePreview is how many tracks the queue command shows.
const queuePreview = 10

// GuildState is the cached guild state of the gateway session.
type GuildState interface {
	Guild(id string) (*discordgo.Guild, bool)
	VoiceState(guildID, userID string) (*discordgo.VoiceState, bool)
	VoiceStates(guildID string) []*discordgo.VoiceState
	User() *discordgo.User
}

var _ GuildState = (*gateway.Session)(nil)

// Replier answers a message in its channel.
type Replier interface {
	Reply(ctx context.Context, msg *discordgo.Message, content string) (*discordgo.Message, error)
}

// SourceFactory opens a media input for playback.
type SourceFactory func(input string) (audio.Source, error)

// FFmpegSources opens every input through ffmpeg with opts.
func FFmpegSources(opts audio.FFmpegOptions) SourceFactory {
	return func(input string) (audio.Source, error) {
		return audio.NewFFmpegSource(input, opts)
	}
}

// Music implements the prefix commands of the music queue.
type Music struct {
	state     GuildState
	voice     *voice.Manager
	queue     queue.Queue
	replier   Replier
	newSource SourceFactory
	logger    *slog.Logger

	defaultVolume float64

	mu      sync.Mutex
	volume  map[string]float64
	playing map[string]*nowPlaying
}

// nowPlaying identifies the queue playback of a guild so that only its own
// end advances the queue.
type nowPlaying struct {
	track queue.Track
}

type MusicOptions struct {
	State     GuildState
	Voice     *voice.Manager
	Queue     queue.Queue
	Replier   Replier
	NewSource SourceFactory
	Logger    *slog.Logger

	// DefaultVolume applies to guilds that never set one. Zero means 1.
	DefaultVolume float64
}

func NewMusic(opts MusicOptions) *Music {
	m := &Music{
		state:     opts.State,
		voice:     opts.Voice,
		queue:     opts.Queue,
		replier:   opts.Replier,
		newSource: opts.NewSource,
		logger:    opts.Logger,
		volume:    make(map[string]float64),
		playing:   make(map[string]*nowPlaying),

		defaultVolume: opts.DefaultVolume,
	}
	if m.defaultVolume == 0 {
		m.defaultVolume = 1
	}
	if m.queue == nil {
		m.queue = queue.NewMemoryQueue()
	}
	if m.newSource == nil {
		m.newSource = FFmpegSources(audio.FFmpegOptions{})
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	return m
}

// Register adds the music commands to r.
func (m *Music) Register(r *command.Router) error {
	help := func(ctx context.Context, msg *discordgo.Message, _ []string) error {
		return m.reply(ctx, msg, presenters.HelpMessage(r.Prefix(), r.Commands()))
	}

	commands := []struct {
		name        string
		handler     command.Handler
		description string
	}{
		{"ping", m.ping, "Check that the bot is alive"},
		{"help", help, "List the commands"},
		{"join", m.join, "Join your voice channel, or the given one"},
		{"play", m.play, "Queue a url to play"},
		{"pause", m.pause, "Pause playback"},
		{"resume", m.resume, "Resume playback"},
		{"skip", m.skip, "Skip the current track"},
		{"queue", m.showQueue, "Show the upcoming tracks"},
		{"volume", m.setVolume, "Set the volume from 0 to 200"},
		{"leave", m.leave, "Stop playing and leave voice"},
	}
	for _, c := range commands {
		if err := r.Register(c.name, c.handler, c.description); err != nil {
			return err
		}
	}
	return nil
}

func (m *Music) reply(ctx context.Context, msg *discordgo.Message, content string) error {
	if _, err := m.replier.Reply(ctx, msg, content); err != nil {
		return fmt.Errorf("failed to reply in channel %s: %w", msg.ChannelID, err)
	}
	return nil
}

func (m *Music) ping(ctx context.Context, msg *discordgo.Message, _ []string) error {
	return m.reply(ctx, msg, "Pong!")
}

// NoVoiceChannelError explains why no voice channel could be picked.
type NoVoiceChannelError struct {
	Reason string
}

func (e *NoVoiceChannelError) Error() string {
	return e.Reason
}

var _ error = (*NoVoiceChannelError)(nil)

// resolveChannel picks the voice channel to join: the requested one, the
// author's current one, or the most attended one of the guild.
func (m *Music) resolveChannel(msg *discordgo.Message, requested string) (*discordgo.Guild, *discordgo.Channel, error) {
	guild, ok := m.state.Guild(msg.GuildID)
	if !ok {
		return nil, nil, &NoVoiceChannelError{Reason: "I can only join voice channels in a server."}
	}

	channelID := requested
	if channelID == "" && msg.Author != nil {
		if vs, ok := m.state.VoiceState(msg.GuildID, msg.Author.ID); ok {
			channelID = vs.ChannelID
		}
	}
	if channelID == "" {
		channel := voice.MaxAttendedChannel(guild.Channels, m.state.VoiceStates(msg.GuildID))
		if channel == nil {
			return nil, nil, &NoVoiceChannelError{Reason: "There is no voice channel to join."}
		}
		return guild, channel, nil
	}

	channel, ok := util.FindFirst(guild.Channels, func(c *discordgo.Channel) bool {
		return c.ID == channelID
	})
	if !ok || (channel.Type != discordgo.ChannelTypeGuildVoice && channel.Type != discordgo.ChannelTypeGuildStageVoice) {
		return nil, nil, &NoVoiceChannelError{Reason: "That is not a voice channel."}
	}
	return guild, channel, nil
}

// canSpeak reports whether the bot may connect and speak in channel. When the
// bot's member is not cached the check is left to the platform.
func (m *Music) canSpeak(guild *discordgo.Guild, channel *discordgo.Channel) bool {
	self := m.state.User()
	if self == nil {
		return true
	}
	member, ok := util.FindFirst(guild.Members, func(mem *discordgo.Member) bool {
		return mem.User != nil && mem.User.ID == self.ID
	})
	if !ok {
		return true
	}
	return permissions.Compute(guild, member, channel).Allows(permissions.Connect | permissions.Speak)
}

// ensureVoice returns the guild's session, joining a channel if needed.
func (m *Music) ensureVoice(ctx context.Context, msg *discordgo.Message, requested string) (*voice.Session, error) {
	if requested == "" {
		if s, ok := m.voice.Get(msg.GuildID); ok {
			return s, nil
		}
	}

	guild, channel, err := m.resolveChannel(msg, requested)
	if err != nil {
		return nil, err
	}
	if !m.canSpeak(guild, channel) {
		return nil, &NoVoiceChannelError{Reason: fmt.Sprintf("I need permission to connect and speak in <#%s>.", channel.ID)}
	}
	return m.voice.Join(ctx, msg.GuildID, channel.ID)
}

func (m *Music) join(ctx context.Context, msg *discordgo.Message, args []string) error {
	requested := ""
	if len(args) > 0 {
		requested = strings.Trim(args[0], "<#>")
	}
	s, err := m.ensureVoice(ctx, msg, requested)
	var noChannel *NoVoiceChannelError
	if errors.As(err, &noChannel) {
		return m.reply(ctx, msg, noChannel.Reason)
	}
	if err != nil {
		return err
	}
	return m.reply(ctx, msg, fmt.Sprintf("Joined <#%s>.", s.ChannelID()))
}

func (m *Music) play(ctx context.Context, msg *discordgo.Message, args []string) error {
	if len(args) == 0 {
		return m.reply(ctx, msg, "Tell me what to play.")
	}
	track := queue.Track{
		URL:   strings.Trim(args[0], "<>"),
		Title: strings.Join(args[1:], " "),
	}
	if msg.Author != nil {
		track.RequestedBy = msg.Author.ID
	}

	s, err := m.ensureVoice(ctx, msg, "")
	var noChannel *NoVoiceChannelError
	if errors.As(err, &noChannel) {
		return m.reply(ctx, msg, noChannel.Reason)
	}
	if err != nil {
		return err
	}

	position, err := m.queue.Push(ctx, msg.GuildID, track)
	if err != nil {
		return err
	}
	if s.IsPlaying() || s.IsPaused() {
		return m.reply(ctx, msg, fmt.Sprintf("Queued **%s** at position %d.", presenters.TrackTitle(track), position))
	}

	started, err := m.advance(ctx, msg.GuildID)
	if err != nil {
		return err
	}
	if started == nil {
		return m.reply(ctx, msg, "Nothing could be played.")
	}
	return m.reply(ctx, msg, fmt.Sprintf("Now playing **%s**.", presenters.TrackTitle(*started)))
}

// advance starts the next playable track of the guild queue. Tracks whose
// source cannot be opened are dropped. It returns nil when the queue ran dry.
func (m *Music) advance(ctx context.Context, guildID string) (*queue.Track, error) {
	s, ok := m.voice.Get(guildID)
	if !ok {
		m.stopTracking(guildID)
		return nil, nil
	}

	for {
		track, ok, err := m.queue.Pop(ctx, guildID)
		if err != nil {
			return nil, err
		}
		if !ok {
			m.stopTracking(guildID)
			return nil, nil
		}

		src, err := m.newSource(track.URL)
		if err != nil {
			m.logger.WarnContext(ctx, "Skipping unplayable track", "guildID", guildID, "url", track.URL, "error", err)
			continue
		}
		if adj, ok := src.(audio.Adjustable); ok {
			adj.SetVolume(m.guildVolume(guildID))
		}

		np := &nowPlaying{track: track}
		m.mu.Lock()
		m.playing[guildID] = np
		m.mu.Unlock()

		s.Play(src, func(_ audio.Source, err error) {
			m.ended(guildID, np, err)
		})
		m.logger.InfoContext(ctx, "Playing track", "guildID", guildID, "url", track.URL)
		return &track, nil
	}
}

func (m *Music) ended(guildID string, np *nowPlaying, err error) {
	m.mu.Lock()
	current := m.playing[guildID] == np
	m.mu.Unlock()
	if !current {
		return
	}
	if err != nil && !errors.Is(err, audio.ErrStopped) {
		m.logger.Warn("Track failed", "guildID", guildID, "url", np.track.URL, "error", err)
	}
	if _, err := m.advance(context.Background(), guildID); err != nil {
		m.logger.Error("Failed to advance queue", "guildID", guildID, "error", err)
	}
}

func (m *Music) stopTracking(guildID string) {
	m.mu.Lock()
	delete(m.playing, guildID)
	m.mu.Unlock()
}

// NowPlaying returns the track the queue is playing in the guild.
func (m *Music) NowPlaying(guildID string) (queue.Track, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	np, ok := m.playing[guildID]
	if !ok {
		return queue.Track{}, false
	}
	return np.track, true
}

func (m *Music) session(ctx context.Context, msg *discordgo.Message) (*voice.Session, error) {
	s, ok := m.voice.Get(msg.GuildID)
	if !ok {
		return nil, m.reply(ctx, msg, "I am not in a voice channel.")
	}
	return s, nil
}

func (m *Music) pause(ctx context.Context, msg *discordgo.Message, _ []string) error {
	s, err := m.session(ctx, msg)
	if s == nil {
		return err
	}
	if !s.Pause() {
		return m.reply(ctx, msg, "Nothing is playing.")
	}
	return m.reply(ctx, msg, "Paused.")
}

func (m *Music) resume(ctx context.Context, msg *discordgo.Message, _ []string) error {
	s, err := m.session(ctx, msg)
	if s == nil {
		return err
	}
	if !s.Resume() {
		return m.reply(ctx, msg, "Nothing is paused.")
	}
	return m.reply(ctx, msg, "Resumed.")
}

func (m *Music) skip(ctx context.Context, msg *discordgo.Message, _ []string) error {
	s, err := m.session(ctx, msg)
	if s == nil {
		return err
	}
	if !s.Stop() {
		return m.reply(ctx, msg, "Nothing is playing.")
	}
	return m.reply(ctx, msg, "Skipped.")
}

func (m *Music) showQueue(ctx context.Context, msg *discordgo.Message, _ []string) error {
	tracks, err := m.queue.List(ctx, msg.GuildID, queuePreview)
	if err != nil {
		return err
	}
	total, err := m.queue.Len(ctx, msg.GuildID)
	if err != nil {
		return err
	}
	content := presenters.QueueMessage(tracks, total)
	if np, ok := m.NowPlaying(msg.GuildID); ok {
		content = fmt.Sprintf("Now playing **%s**\n%s", presenters.TrackTitle(np), content)
	}
	return m.reply(ctx, msg, content)
}

func (m *Music) guildVolume(guildID string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.volume[guildID]; ok {
		return v
	}
	return m.defaultVolume
}

func (m *Music) setVolume(ctx context.Context, msg *discordgo.Message, args []string) error {
	if len(args) == 0 {
		return m.reply(ctx, msg, fmt.Sprintf("The volume is %d.", int(m.guildVolume(msg.GuildID)*100)))
	}
	percent, err := strconv.Atoi(strings.TrimSuffix(args[0], "%"))
	if err != nil || percent < 0 || percent > 200 {
		return m.reply(ctx, msg, "The volume must be a number from 0 to 200.")
	}
	volume := float64(percent) / 100

	m.mu.Lock()
	m.volume[msg.GuildID] = volume
	m.mu.Unlock()

	if s, ok := m.voice.Get(msg.GuildID); ok {
		if src, ok := s.Player().Source(); ok {
			if adj, ok := src.(audio.Adjustable); ok {
				adj.SetVolume(volume)
			}
		}
	}
	return m.reply(ctx, msg, fmt.Sprintf("Volume set to %d.", percent))
}

func (m *Music) leave(ctx context.Context, msg *discordgo.Message, _ []string) error {
	m.stopTracking(msg.GuildID)
	if err := m.queue.Clear(ctx, msg.GuildID); err != nil {
		m.logger.WarnContext(ctx, "Failed to clear queue", "guildID", msg.GuildID, "error", err)
	}
	err := m.voice.Leave(ctx, msg.GuildID)
	if errors.Is(err, voice.ErrNotInVoice) {
		return m.reply(ctx, msg, "I am not in a voice channel.")
	}
	if err != nil {
		return err
	}
	return m.reply(ctx, msg, "Bye!")
}
