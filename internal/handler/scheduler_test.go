package handler_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/glizzus/harmony/internal/audio"
	"github.com/glizzus/harmony/internal/handler"
	"github.com/glizzus/harmony/internal/queue"
	"github.com/glizzus/harmony/internal/repository"
	"github.com/google/go-cmp/cmp"
)

type fakePuller struct {
	jobs   []repository.SoundCronJob
	before time.Time
}

func (p *fakePuller) Pull(ctx context.Context, before time.Time) ([]repository.SoundCronJob, error) {
	p.before = before
	jobs := p.jobs
	p.jobs = nil
	return jobs, nil
}

type playedClip struct {
	GuildID string
	Input   string
}

type fakeClipPlayer struct {
	mu     sync.Mutex
	played []playedClip
	err    error
}

func (p *fakeClipPlayer) PlayClip(ctx context.Context, guildID, input string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.played = append(p.played, playedClip{GuildID: guildID, Input: input})
	return p.err
}

func (p *fakeClipPlayer) recorded() []playedClip {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]playedClip(nil), p.played...)
}

func TestSchedulerExecute(t *testing.T) {
	job := repository.SoundCronJob{SoundCronID: "sc-1", Name: "horn", GuildID: "g1", RunTime: time.Now()}

	tc := []struct {
		name        string
		blacklisted bool
		playErr     error
		wantErr     bool
		wantPlayed  []playedClip
	}{
		{
			name:       "plays the presigned clip",
			wantPlayed: []playedClip{{GuildID: "g1", Input: "https://clips.example/clips/sc-1.ogg"}},
		},
		{
			name:        "skips deleted soundcrons",
			blacklisted: true,
		},
		{
			name:       "a busy guild is not an error",
			playErr:    handler.ErrGuildBusy,
			wantPlayed: []playedClip{{GuildID: "g1", Input: "https://clips.example/clips/sc-1.ogg"}},
		},
		{
			name:       "player failures are returned",
			playErr:    errors.New("boom"),
			wantErr:    true,
			wantPlayed: []playedClip{{GuildID: "g1", Input: "https://clips.example/clips/sc-1.ogg"}},
		},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			blacklist := queue.NewMemoryBlacklist()
			if tt.blacklisted {
				_ = blacklist.AddToBlacklist(context.Background(), "sc-1")
			}
			player := &fakeClipPlayer{err: tt.playErr}
			s := handler.NewSoundCronScheduler(handler.SchedulerOptions{
				Jobs:      &fakePuller{},
				Clips:     newMemoryClips(),
				Blacklist: blacklist,
				Player:    player,
				Logger:    discardLogger(),
			})

			err := s.Execute(context.Background(), job)
			if (err != nil) != tt.wantErr {
				t.Errorf("Execute() error = %v, wantErr %v", err, tt.wantErr)
			}
			if diff := cmp.Diff(tt.wantPlayed, player.recorded()); diff != "" {
				t.Errorf("played mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSchedulerTick(t *testing.T) {
	puller := &fakePuller{jobs: []repository.SoundCronJob{
		{SoundCronID: "due", GuildID: "g1", RunTime: time.Now().Add(-time.Second)},
		{SoundCronID: "soon", GuildID: "g2", RunTime: time.Now().Add(50 * time.Millisecond)},
		{SoundCronID: "later", GuildID: "g3", RunTime: time.Now().Add(time.Hour)},
	}}
	player := &fakeClipPlayer{}
	s := handler.NewSoundCronScheduler(handler.SchedulerOptions{
		Jobs:      puller,
		Clips:     newMemoryClips(),
		Player:    player,
		Interval:  time.Minute,
		Lookahead: 2 * time.Minute,
		Logger:    discardLogger(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	start := time.Now()
	s.Tick(ctx)

	if horizon := puller.before.Sub(start); horizon < 2*time.Minute || horizon > 2*time.Minute+time.Second {
		t.Errorf("expected to pull two minutes ahead, pulled %s ahead", horizon)
	}
	waitFor(t, "due runs to play", func() bool {
		return len(player.recorded()) == 2
	})
	cancel()

	time.Sleep(20 * time.Millisecond)
	if n := len(player.recorded()); n != 2 {
		t.Errorf("expected the later run to be dropped with the context, %d played", n)
	}
}

func TestVoiceClipPlayer(t *testing.T) {
	manager, gw := newVoiceManager(t)
	gw.guilds["g1"] = &discordgo.Guild{
		ID: "g1",
		Channels: []*discordgo.Channel{
			{ID: "quiet", Type: discordgo.ChannelTypeGuildVoice},
			{ID: "busy", Type: discordgo.ChannelTypeGuildVoice},
		},
	}

	var opened []string
	player := handler.NewVoiceClipPlayer(gw, manager, func(input string) (audio.Source, error) {
		opened = append(opened, input)
		return newTestSource(3), nil
	})

	if err := player.PlayClip(context.Background(), "g1", "clip.ogg"); !errors.Is(err, handler.ErrNoVoiceMember) {
		t.Errorf("expected ErrNoVoiceMember in an empty guild, got %v", err)
	}
	if err := player.PlayClip(context.Background(), "unknown", "clip.ogg"); !errors.Is(err, handler.ErrUnknownGuild) {
		t.Errorf("expected ErrUnknownGuild, got %v", err)
	}

	gw.states["g1"] = []*discordgo.VoiceState{
		{UserID: "a", ChannelID: "busy"},
		{UserID: "b", ChannelID: "busy"},
	}
	if err := player.PlayClip(context.Background(), "g1", "clip.ogg"); err != nil {
		t.Fatalf("play failed: %v", err)
	}

	if diff := cmp.Diff([]string{"clip.ogg"}, opened); diff != "" {
		t.Errorf("opened mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"g1:busy", "g1:"}, gw.recorded()); diff != "" {
		t.Errorf("voice state calls mismatch (-want +got):\n%s", diff)
	}
	if manager.Count() != 0 {
		t.Errorf("expected the clip player to leave voice, %d sessions open", manager.Count())
	}
}
