package voice

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/glizzus/harmony/internal/audio"
	"github.com/glizzus/harmony/internal/events"
	"github.com/glizzus/harmony/internal/gateway"
	"github.com/google/go-cmp/cmp"
)

type voiceStateCall struct {
	GuildID   string
	ChannelID string
}

// fakeGateway answers voice state updates the way the real gateway does,
// by dispatching VOICE_STATE_UPDATE and VOICE_SERVER_UPDATE.
type fakeGateway struct {
	dispatcher *events.Dispatcher
	silent     bool
	// suppressed joins the bot as a stage listener.
	suppressed bool

	mu    sync.Mutex
	calls []voiceStateCall
}

func (g *fakeGateway) User() *discordgo.User {
	return &discordgo.User{ID: "bot"}
}

func (g *fakeGateway) UpdateVoiceState(ctx context.Context, guildID, channelID string, mute, deaf bool) error {
	g.mu.Lock()
	g.calls = append(g.calls, voiceStateCall{GuildID: guildID, ChannelID: channelID})
	g.mu.Unlock()

	if g.silent || channelID == "" {
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
			Suppress:  g.suppressed,
		})
	}()
	return nil
}

func (g *fakeGateway) recorded() []voiceStateCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]voiceStateCall(nil), g.calls...)
}

func newTestManager(t *testing.T, transport Transport, silent bool) (*Manager, *fakeGateway, *events.Dispatcher) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	d := events.NewDispatcher(logger)
	gw := &fakeGateway{dispatcher: d, silent: silent}
	m := NewManager(gw, d, transport,
		WithHandshakeTimeout(200*time.Millisecond),
		WithLogger(logger),
		WithPlayerOptions(audio.WithFrameInterval(time.Millisecond), audio.WithLogger(logger)),
	)
	return m, gw, d
}

func TestMaxAttendedChannel(t *testing.T) {
	channels := []*discordgo.Channel{
		{ID: "text", Type: discordgo.ChannelTypeGuildText},
		{ID: "quiet", Type: discordgo.ChannelTypeGuildVoice},
		{ID: "busy", Type: discordgo.ChannelTypeGuildVoice},
	}

	tests := []struct {
		name     string
		channels []*discordgo.Channel
		states   []*discordgo.VoiceState
		want     string
	}{
		{
			name:     "most users wins",
			channels: channels,
			states: []*discordgo.VoiceState{
				{UserID: "a", ChannelID: "busy"},
				{UserID: "b", ChannelID: "busy"},
				{UserID: "c", ChannelID: "quiet"},
				{UserID: "d", ChannelID: "text"},
				{UserID: "e", ChannelID: "text"},
				{UserID: "f", ChannelID: "text"},
			},
			want: "busy",
		},
		{
			name:     "empty channels fall back to the first voice channel",
			channels: channels,
			want:     "quiet",
		},
		{
			name:     "no voice channels",
			channels: channels[:1],
			want:     "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MaxAttendedChannel(tt.channels, tt.states)
			var id string
			if got != nil {
				id = got.ID
			}
			if id != tt.want {
				t.Errorf("expected %q, got %q", tt.want, id)
			}
		})
	}
}

func TestManagerJoinPlayLeave(t *testing.T) {
	transport := &DiscardTransport{}
	m, gw, _ := newTestManager(t, transport, false)

	s, err := m.Join(context.Background(), "g1", "c1")
	if err != nil {
		t.Fatalf("join failed: %v", err)
	}

	want := ServerInfo{
		GuildID:   "g1",
		ChannelID: "c1",
		UserID:    "bot",
		SessionID: "voice-session",
		Token:     "voice-token",
		Endpoint:  "voice.example:443",
	}
	if diff := cmp.Diff(want, s.Info()); diff != "" {
		t.Errorf("server info mismatch (-want +got):\n%s", diff)
	}

	again, err := m.Join(context.Background(), "g1", "c1")
	if err != nil || again != s {
		t.Errorf("expected joining the same channel to reuse the session, got %v", err)
	}
	if m.Count() != 1 {
		t.Errorf("expected one open session, got %d", m.Count())
	}

	pcm := bytes.Repeat([]byte{0}, audio.FrameSize*4)
	if err := s.PlayAndWait(context.Background(), audio.NewPCMSource(io.NopCloser(bytes.NewReader(pcm)))); err != nil {
		t.Fatalf("play failed: %v", err)
	}
	if transport.Frames() != 4 {
		t.Errorf("expected 4 frames, got %d", transport.Frames())
	}

	if err := m.Leave(context.Background(), "g1"); err != nil {
		t.Fatalf("leave failed: %v", err)
	}
	if _, ok := m.Get("g1"); ok {
		t.Error("expected session to be removed")
	}
	if err := m.Leave(context.Background(), "g1"); !errors.Is(err, ErrNotInVoice) {
		t.Errorf("expected ErrNotInVoice, got %v", err)
	}

	wantCalls := []voiceStateCall{{"g1", "c1"}, {"g1", ""}}
	if diff := cmp.Diff(wantCalls, gw.recorded()); diff != "" {
		t.Errorf("voice state calls mismatch (-want +got):\n%s", diff)
	}
}

func TestManagerJoinTimeout(t *testing.T) {
	m, gw, _ := newTestManager(t, &DiscardTransport{}, true)

	_, err := m.Join(context.Background(), "g1", "c1")
	if !errors.Is(err, ErrHandshakeTimeout) {
		t.Fatalf("expected ErrHandshakeTimeout, got %v", err)
	}
	if _, ok := m.Get("g1"); ok {
		t.Error("expected no session after a failed join")
	}

	wantCalls := []voiceStateCall{{"g1", "c1"}, {"g1", ""}}
	if diff := cmp.Diff(wantCalls, gw.recorded()); diff != "" {
		t.Errorf("voice state calls mismatch (-want +got):\n%s", diff)
	}
}

func TestManagerExternalDisconnect(t *testing.T) {
	m, _, d := newTestManager(t, &DiscardTransport{}, false)

	s, err := m.Join(context.Background(), "g1", "c1")
	if err != nil {
		t.Fatalf("join failed: %v", err)
	}
	done := s.Play(audio.NewPCMSource(io.NopCloser(infiniteReader{})), nil)

	err = d.Dispatch(context.Background(), gateway.EventVoiceStateUpdate, &discordgo.VoiceState{
		GuildID: "g1",
		UserID:  "bot",
	})
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected playback to stop after being removed from voice")
	}
	if _, ok := m.Get("g1"); ok {
		t.Error("expected session to be dropped")
	}
}

func TestManagerIgnoresOtherUsers(t *testing.T) {
	m, _, d := newTestManager(t, &DiscardTransport{}, false)

	if _, err := m.Join(context.Background(), "g1", "c1"); err != nil {
		t.Fatalf("join failed: %v", err)
	}
	err := d.Dispatch(context.Background(), gateway.EventVoiceStateUpdate, &discordgo.VoiceState{
		GuildID: "g1",
		UserID:  "someone-else",
	})
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if _, ok := m.Get("g1"); !ok {
		t.Error("expected session to survive another user leaving")
	}
}

func TestManagerWithVoiceChannel(t *testing.T) {
	m, gw, _ := newTestManager(t, &DiscardTransport{}, false)

	var inside bool
	err := m.WithVoiceChannel(context.Background(), "g1", "c1", func(s *Session) error {
		_, inside = m.Get("g1")
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !inside {
		t.Error("expected a session while the callback runs")
	}
	if _, ok := m.Get("g1"); ok {
		t.Error("expected the session to be left afterwards")
	}

	wantCalls := []voiceStateCall{{"g1", "c1"}, {"g1", ""}}
	if diff := cmp.Diff(wantCalls, gw.recorded()); diff != "" {
		t.Errorf("voice state calls mismatch (-want +got):\n%s", diff)
	}
}

func TestManagerClose(t *testing.T) {
	m, _, d := newTestManager(t, &DiscardTransport{}, false)

	for _, guild := range []string{"g1", "g2"} {
		if _, err := m.Join(context.Background(), guild, "c1"); err != nil {
			t.Fatalf("join %s failed: %v", guild, err)
		}
	}
	if err := m.Close(context.Background()); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	for _, guild := range []string{"g1", "g2"} {
		if _, ok := m.Get(guild); ok {
			t.Errorf("expected %s to be left", guild)
		}
	}
	if n := d.Count(gateway.EventVoiceStateUpdate); n != 0 {
		t.Errorf("expected listeners to be removed, %d remain", n)
	}
}

func TestWriterTransport(t *testing.T) {
	var buf bytes.Buffer
	transport := &WriterTransport{W: &buf}

	sink, err := transport.Open(context.Background(), ServerInfo{})
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if err := sink.TransmitFrame(context.Background(), []byte{1, 2}); err != nil {
		t.Fatalf("transmit failed: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := sink.TransmitFrame(context.Background(), []byte{3}); !errors.Is(err, ErrSinkClosed) {
		t.Errorf("expected ErrSinkClosed, got %v", err)
	}
	if !bytes.Equal(buf.Bytes(), []byte{1, 2}) {
		t.Errorf("unexpected output %v", buf.Bytes())
	}
}

type infiniteReader struct{}

func (infiniteReader) Read(p []byte) (int, error) {
	clear(p)
	return len(p), nil
}

type stageCall struct {
	GuildID   string
	ChannelID string
	Suppress  bool
}

type fakeStage struct {
	mu    sync.Mutex
	calls []stageCall
	err   error
}

func (f *fakeStage) PatchVoiceState(ctx context.Context, guildID, channelID string, suppress bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, stageCall{GuildID: guildID, ChannelID: channelID, Suppress: suppress})
	return f.err
}

func TestManagerJoinUnsuppressesInStage(t *testing.T) {
	tests := []struct {
		name       string
		suppressed bool
		stageErr   error
		want       []stageCall
	}{
		{
			name:       "stage channel",
			suppressed: true,
			want:       []stageCall{{GuildID: "g1", ChannelID: "stage", Suppress: false}},
		},
		{
			name:       "failed unsuppress still joins",
			suppressed: true,
			stageErr:   errors.New("missing permissions"),
			want:       []stageCall{{GuildID: "g1", ChannelID: "stage", Suppress: false}},
		},
		{
			name: "voice channel",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := slog.New(slog.NewTextHandler(io.Discard, nil))
			d := events.NewDispatcher(logger)
			gw := &fakeGateway{dispatcher: d, suppressed: tt.suppressed}
			stage := &fakeStage{err: tt.stageErr}
			m := NewManager(gw, d, &DiscardTransport{},
				WithHandshakeTimeout(200*time.Millisecond),
				WithLogger(logger),
				WithStageSpeaker(stage),
			)
			defer m.Close(context.Background())

			if _, err := m.Join(context.Background(), "g1", "stage"); err != nil {
				t.Fatalf("join failed: %v", err)
			}

			stage.mu.Lock()
			defer stage.mu.Unlock()
			if diff := cmp.Diff(tt.want, stage.calls); diff != "" {
				t.Errorf("stage calls mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
