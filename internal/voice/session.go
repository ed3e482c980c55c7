package voice

import (
	"context"
	"sync"

	"github.com/glizzus/harmony/internal/audio"
)

// Session is the bot's voice connection in one guild. It owns the player
// feeding the connection's sink.
type Session struct {
	info   ServerInfo
	sink   Sink
	player *audio.Player

	closeOnce sync.Once
	closeErr  error
}

func newSession(info ServerInfo, sink Sink, opts ...audio.PlayerOption) *Session {
	return &Session{
		info:   info,
		sink:   sink,
		player: audio.NewPlayer(sink, opts...),
	}
}

func (s *Session) GuildID() string {
	return s.info.GuildID
}

func (s *Session) ChannelID() string {
	return s.info.ChannelID
}

func (s *Session) Info() ServerInfo {
	return s.info
}

func (s *Session) Player() *audio.Player {
	return s.player
}

// Play replaces whatever is playing with src. See audio.Player.Play.
func (s *Session) Play(src audio.Source, onEnded audio.EndedFunc) <-chan struct{} {
	return s.player.Play(src, onEnded)
}

// PlayAndWait plays src to the end. If ctx is done first, playback is
// stopped and the context error is returned.
func (s *Session) PlayAndWait(ctx context.Context, src audio.Source) error {
	var result error
	done := s.player.Play(src, func(_ audio.Source, err error) {
		result = err
	})

	select {
	case <-done:
		return result
	case <-ctx.Done():
		s.player.Stop()
		<-done
		return ctx.Err()
	}
}

func (s *Session) Pause() bool {
	return s.player.Pause()
}

func (s *Session) Resume() bool {
	return s.player.Resume()
}

func (s *Session) Stop() bool {
	return s.player.Stop()
}

func (s *Session) IsPlaying() bool {
	return s.player.IsPlaying()
}

func (s *Session) IsPaused() bool {
	return s.player.IsPaused()
}

func (s *Session) close() error {
	s.closeOnce.Do(func() {
		s.player.Stop()
		s.closeErr = s.sink.Close()
	})
	return s.closeErr
}
