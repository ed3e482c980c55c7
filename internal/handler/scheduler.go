package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/glizzus/harmony/internal/audio"
	"github.com/glizzus/harmony/internal/queue"
	"github.com/glizzus/harmony/internal/repository"
	"github.com/glizzus/harmony/internal/schedule"
	"github.com/glizzus/harmony/internal/voice"
)

// PresignExpiry bounds how long a clip URL handed to the player stays valid.
const PresignExpiry = 10 * time.Minute

var (
	ErrGuildBusy     = errors.New("already playing in this guild")
	ErrUnknownGuild  = errors.New("guild is not cached")
	ErrNoVoiceMember = errors.New("nobody is in a voice channel")
)

// ClipPlayer plays a media input somewhere in a guild.
type ClipPlayer interface {
	PlayClip(ctx context.Context, guildID, input string) error
}

// VoiceClipPlayer plays clips in the most attended voice channel of a guild,
// joining it for the duration of the clip.
type VoiceClipPlayer struct {
	state     GuildState
	voice     *voice.Manager
	newSource SourceFactory
}

func NewVoiceClipPlayer(state GuildState, manager *voice.Manager, newSource SourceFactory) *VoiceClipPlayer {
	if newSource == nil {
		newSource = FFmpegSources(audio.FFmpegOptions{})
	}
	return &VoiceClipPlayer{state: state, voice: manager, newSource: newSource}
}

var _ ClipPlayer = (*VoiceClipPlayer)(nil)

func (p *VoiceClipPlayer) PlayClip(ctx context.Context, guildID, input string) error {
	if s, ok := p.voice.Get(guildID); ok && (s.IsPlaying() || s.IsPaused()) {
		return ErrGuildBusy
	}
	guild, ok := p.state.Guild(guildID)
	if !ok {
		return ErrUnknownGuild
	}
	states := p.state.VoiceStates(guildID)
	if len(states) == 0 {
		return ErrNoVoiceMember
	}
	channel := voice.MaxAttendedChannel(guild.Channels, states)
	if channel == nil {
		return ErrNoVoiceMember
	}

	return p.voice.WithVoiceChannel(ctx, guildID, channel.ID, func(s *voice.Session) error {
		src, err := p.newSource(input)
		if err != nil {
			return fmt.Errorf("failed to open clip: %w", err)
		}
		return s.PlayAndWait(ctx, src)
	})
}

// JobPuller claims due soundcron runs.
type JobPuller interface {
	Pull(ctx context.Context, before time.Time) ([]repository.SoundCronJob, error)
}

// Presigner hands out temporary URLs for stored clips.
type Presigner interface {
	PresignedURL(ctx context.Context, key string, expiry time.Duration) (*url.URL, error)
}

// SoundCronScheduler pulls due soundcron runs and plays each at its run time.
type SoundCronScheduler struct {
	jobs      JobPuller
	clips     Presigner
	blacklist queue.Blacklist
	player    ClipPlayer
	interval  time.Duration
	lookahead time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

type SchedulerOptions struct {
	Jobs      JobPuller
	Clips     Presigner
	Blacklist queue.Blacklist
	Player    ClipPlayer
	Interval  time.Duration
	Lookahead time.Duration
	Logger    *slog.Logger
}

func NewSoundCronScheduler(opts SchedulerOptions) *SoundCronScheduler {
	s := &SoundCronScheduler{
		jobs:      opts.Jobs,
		clips:     opts.Clips,
		blacklist: opts.Blacklist,
		player:    opts.Player,
		interval:  opts.Interval,
		lookahead: opts.Lookahead,
		now:       time.Now,
		logger:    opts.Logger,
	}
	if s.blacklist == nil {
		s.blacklist = queue.NewMemoryBlacklist()
	}
	if s.interval <= 0 {
		s.interval = time.Minute
	}
	if s.lookahead < s.interval {
		s.lookahead = 2 * s.interval
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Run polls until ctx ends.
func (s *SoundCronScheduler) Run(ctx context.Context) {
	s.logger.InfoContext(ctx, "Soundcron scheduler started", "interval", s.interval, "lookahead", s.lookahead)
	schedule.Poll(ctx, s.interval, s.Tick)
}

// Tick claims the runs due within the lookahead and schedules them.
func (s *SoundCronScheduler) Tick(ctx context.Context) {
	jobs, err := s.jobs.Pull(ctx, s.now().Add(s.lookahead))
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to pull soundcron jobs", "error", err)
		return
	}
	for _, job := range jobs {
		schedule.RunAt(ctx, job.RunTime, func(ctx context.Context) {
			if err := s.Execute(ctx, job); err != nil {
				s.logger.WarnContext(ctx, "Soundcron run failed", "guildID", job.GuildID, "soundCronID", job.SoundCronID, "error", err)
			}
		})
	}
	if len(jobs) > 0 {
		s.logger.DebugContext(ctx, "Scheduled soundcron runs", "count", len(jobs))
	}
}

// Execute plays one run unless its soundcron was deleted after it was
// claimed.
func (s *SoundCronScheduler) Execute(ctx context.Context, job repository.SoundCronJob) error {
	blacklisted, err := s.blacklist.IsBlacklisted(ctx, job.SoundCronID)
	if err != nil {
		return fmt.Errorf("failed to check blacklist: %w", err)
	}
	if blacklisted {
		s.logger.InfoContext(ctx, "Skipping deleted soundcron", "soundCronID", job.SoundCronID)
		return nil
	}

	clipURL, err := s.clips.PresignedURL(ctx, ClipKey(job.SoundCronID), PresignExpiry)
	if err != nil {
		return fmt.Errorf("failed to presign clip: %w", err)
	}
	if err := s.player.PlayClip(ctx, job.GuildID, clipURL.String()); err != nil {
		if errors.Is(err, ErrGuildBusy) || errors.Is(err, ErrNoVoiceMember) {
			s.logger.InfoContext(ctx, "Skipping soundcron run", "soundCronID", job.SoundCronID, "reason", err)
			return nil
		}
		return err
	}
	s.logger.InfoContext(ctx, "Played soundcron", "guildID", job.GuildID, "name", job.Name)
	return nil
}
