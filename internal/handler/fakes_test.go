package handler_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/glizzus/harmony/internal/audio"
	"github.com/glizzus/harmony/internal/datalayer"
	"github.com/glizzus/harmony/internal/events"
	"github.com/glizzus/harmony/internal/gateway"
	"github.com/glizzus/harmony/internal/repository"
	"github.com/glizzus/harmony/internal/voice"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memoryStore is an in-memory handler.SoundCronStore.
type memoryStore struct {
	mu         sync.Mutex
	soundCrons map[string]repository.SoundCron
	jobs       map[string][]time.Time
}

func newMemoryStore(soundCrons ...repository.SoundCron) *memoryStore {
	s := &memoryStore{
		soundCrons: make(map[string]repository.SoundCron),
		jobs:       make(map[string][]time.Time),
	}
	for _, sc := range soundCrons {
		s.soundCrons[sc.ID] = sc
	}
	return s
}

func (s *memoryStore) Save(ctx context.Context, sc repository.SoundCron) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, other := range s.soundCrons {
		if other.ID != sc.ID && other.GuildID == sc.GuildID && other.Name == sc.Name {
			return &repository.SoundCronAlreadyExistsError{GuildID: sc.GuildID, Name: sc.Name}
		}
	}
	s.soundCrons[sc.ID] = sc
	return nil
}

func (s *memoryStore) List(ctx context.Context, guildID string) ([]repository.SoundCron, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []repository.SoundCron
	for _, sc := range s.soundCrons {
		if sc.GuildID == guildID {
			out = append(out, sc)
		}
	}
	slices.SortFunc(out, func(a, b repository.SoundCron) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out, nil
}

func (s *memoryStore) Get(ctx context.Context, guildID, id string) (repository.SoundCron, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.soundCrons[id]
	if !ok || sc.GuildID != guildID {
		return repository.SoundCron{}, repository.ErrSoundCronNotFound
	}
	return sc, nil
}

func (s *memoryStore) Delete(ctx context.Context, guildID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.soundCrons[id]
	if !ok || sc.GuildID != guildID {
		return repository.ErrSoundCronNotFound
	}
	delete(s.soundCrons, id)
	return nil
}

func (s *memoryStore) Pull(ctx context.Context, before time.Time) ([]repository.SoundCronJob, error) {
	return nil, nil
}

func (s *memoryStore) UpcomingJobs(ctx context.Context, soundCronID string) ([]repository.SoundCronJobRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []repository.SoundCronJobRow
	for i, t := range s.jobs[soundCronID] {
		out = append(out, repository.SoundCronJobRow{ID: int64(i + 1), SoundCronID: soundCronID, RunTime: t})
	}
	return out, nil
}

// memoryClips is an in-memory handler.ClipStore.
type memoryClips struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func newMemoryClips() *memoryClips {
	return &memoryClips{blobs: make(map[string][]byte)}
}

func (c *memoryClips) Put(ctx context.Context, key string, data io.Reader, opts datalayer.PutOptions) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blobs[key] = b
	return nil
}

func (c *memoryClips) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.blobs[key]
	if !ok {
		return nil, datalayer.ErrBlobNotFound
	}
	return io.NopCloser(strings.NewReader(string(b))), nil
}

func (c *memoryClips) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.blobs, key)
	return nil
}

func (c *memoryClips) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.blobs[key]
	return ok
}

func (c *memoryClips) PresignedURL(ctx context.Context, key string, expiry time.Duration) (*url.URL, error) {
	return &url.URL{Scheme: "https", Host: "clips.example", Path: "/" + key}, nil
}

// recordingResponder records interaction responses.
type recordingResponder struct {
	mu        sync.Mutex
	responses []*discordgo.InteractionResponse
	edits     []string
}

func (r *recordingResponder) InteractionRespond(i *discordgo.Interaction, resp *discordgo.InteractionResponse, _ ...discordgo.RequestOption) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responses = append(r.responses, resp)
	return nil
}

func (r *recordingResponder) InteractionResponseEdit(i *discordgo.Interaction, edit *discordgo.WebhookEdit, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.edits = append(r.edits, *edit.Content)
	return &discordgo.Message{}, nil
}

func (r *recordingResponder) FollowupMessageCreate(i *discordgo.Interaction, wait bool, data *discordgo.WebhookParams, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	return &discordgo.Message{}, nil
}

func (r *recordingResponder) last(t *testing.T) *discordgo.InteractionResponse {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.responses) == 0 {
		t.Fatal("expected a response, got none")
	}
	return r.responses[len(r.responses)-1]
}

type fixedGenerator struct {
	id string
}

func (g *fixedGenerator) Next() (string, error) {
	return g.id, nil
}

// fakeGateway answers voice state updates with the events the real gateway
// would dispatch, and serves a fixed guild cache.
type fakeGateway struct {
	dispatcher *events.Dispatcher

	mu     sync.Mutex
	guilds map[string]*discordgo.Guild
	states map[string][]*discordgo.VoiceState
	calls  []string
}

func newFakeGateway(d *events.Dispatcher) *fakeGateway {
	return &fakeGateway{
		dispatcher: d,
		guilds:     make(map[string]*discordgo.Guild),
		states:     make(map[string][]*discordgo.VoiceState),
	}
}

func (g *fakeGateway) User() *discordgo.User {
	return &discordgo.User{ID: "bot"}
}

func (g *fakeGateway) UpdateVoiceState(ctx context.Context, guildID, channelID string, mute, deaf bool) error {
	g.mu.Lock()
	g.calls = append(g.calls, fmt.Sprintf("%s:%s", guildID, channelID))
	g.mu.Unlock()

	if channelID == "" {
		return nil
	}
	go func() {
		_ = g.dispatcher.Dispatch(context.Background(), gateway.EventVoiceServerUpdate, &discordgo.VoiceServerUpdate{
			GuildID:  guildID,
			Token:    "voice-token",
			Endpoint: "voice.example:443",
		})
		_ = g.dispatcher.Dispatch(context.Background(), gateway.EventVoiceStateUpdate, &discordgo.VoiceState{
			GuildID:   guildID,
			ChannelID: channelID,
			UserID:    "bot",
			SessionID: "voice-session",
		})
	}()
	return nil
}

func (g *fakeGateway) recorded() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.calls...)
}

func (g *fakeGateway) Guild(id string) (*discordgo.Guild, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	guild, ok := g.guilds[id]
	return guild, ok
}

func (g *fakeGateway) VoiceState(guildID, userID string) (*discordgo.VoiceState, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, vs := range g.states[guildID] {
		if vs.UserID == userID {
			return vs, true
		}
	}
	return nil, false
}

func (g *fakeGateway) VoiceStates(guildID string) []*discordgo.VoiceState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]*discordgo.VoiceState(nil), g.states[guildID]...)
}

func newVoiceManager(t *testing.T) (*voice.Manager, *fakeGateway) {
	t.Helper()
	logger := discardLogger()
	d := events.NewDispatcher(logger)
	gw := newFakeGateway(d)
	m := voice.NewManager(gw, d, &voice.DiscardTransport{},
		voice.WithHandshakeTimeout(time.Second),
		voice.WithLogger(logger),
		voice.WithPlayerOptions(audio.WithFrameInterval(time.Millisecond), audio.WithLogger(logger)),
	)
	t.Cleanup(func() { _ = m.Close(context.Background()) })
	return m, gw
}

// testSource produces silent frames until released, or a fixed number of
// frames when frames is positive.
type testSource struct {
	mu       sync.Mutex
	frames   int
	released chan struct{}
	volume   float64
}

func newTestSource(frames int) *testSource {
	return &testSource{frames: frames, released: make(chan struct{}), volume: 1}
}

func (s *testSource) ReadFrame(ctx context.Context) ([]byte, error) {
	select {
	case <-s.released:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frames > 0 {
		s.frames--
		if s.frames == 0 {
			close(s.released)
		}
	}
	return make([]byte, audio.FrameSize), nil
}

func (s *testSource) release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.released:
	default:
		close(s.released)
	}
}

func (s *testSource) Cleanup() error {
	return nil
}

func (s *testSource) SetVolume(volume float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.volume = volume
}

func (s *testSource) Volume() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volume
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
