package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/glizzus/harmony/internal/events"
	"github.com/gorilla/websocket"
)

const (
	DefaultURL            = "wss://gateway.discord.gg/?v=10&encoding=json"
	DefaultConnectTimeout = 30 * time.Second
	DefaultReconnectDelay = time.Second
	DefaultMaxBackoff     = time.Minute

	eventQueueSize = 256
)

// Observer is notified about gateway activity.
type Observer interface {
	DispatchReceived(event string)
	Reconnecting(reason error)
	HeartbeatAcked(latency time.Duration)
}

// Options configure a Session. Zero values fall back to the defaults above.
type Options struct {
	URL            string
	Intents        discordgo.Intent
	Properties     IdentifyProperties
	ConnectTimeout time.Duration
	ReconnectDelay time.Duration
	MaxBackoff     time.Duration

	Dialer     Dialer
	Dispatcher *events.Dispatcher

	// Inline listeners run on the receive loop before an event is queued
	// for Dispatcher. They must not block.
	Inline *events.Dispatcher

	Observer Observer
	Logger   *slog.Logger
}

// Session owns the control connection.
type Session struct {
	url            string
	intents        discordgo.Intent
	properties     IdentifyProperties
	connectTimeout time.Duration
	reconnectDelay time.Duration
	maxBackoff     time.Duration

	dialer     Dialer
	dispatcher *events.Dispatcher
	inline     *events.Dispatcher
	observer   Observer
	logger     *slog.Logger

	mu                sync.RWMutex
	token             string
	started           bool
	status            Status
	conn              Conn
	sequence          *int64
	heartbeatInterval time.Duration
	ackPending        bool
	lastHeartbeat     time.Time
	user              *discordgo.User
	sessionID         string
	applicationID     string
	guilds            map[string]*discordgo.Guild
	voiceStates       map[string]map[string]*discordgo.VoiceState
	fatal             error
	cancel            context.CancelFunc
	closed            bool

	writeMu sync.Mutex

	queue     chan Event
	ready     chan struct{}
	readyOnce sync.Once
	done      chan struct{}
	doneOnce  sync.Once
}

func New(opts Options) *Session {
	s := &Session{
		url:            opts.URL,
		intents:        opts.Intents,
		properties:     opts.Properties,
		connectTimeout: opts.ConnectTimeout,
		reconnectDelay: opts.ReconnectDelay,
		maxBackoff:     opts.MaxBackoff,
		dialer:         opts.Dialer,
		dispatcher:     opts.Dispatcher,
		inline:         opts.Inline,
		observer:       opts.Observer,
		logger:         opts.Logger,
		status:         StatusConnecting,
		guilds:         make(map[string]*discordgo.Guild),
		voiceStates:    make(map[string]map[string]*discordgo.VoiceState),
		queue:          make(chan Event, eventQueueSize),
		ready:          make(chan struct{}),
		done:           make(chan struct{}),
	}
	if s.url == "" {
		s.url = DefaultURL
	}
	if s.properties == (IdentifyProperties{}) {
		s.properties = IdentifyProperties{OS: "linux", Browser: "harmony", Device: "harmony"}
	}
	if s.connectTimeout <= 0 {
		s.connectTimeout = DefaultConnectTimeout
	}
	if s.reconnectDelay <= 0 {
		s.reconnectDelay = DefaultReconnectDelay
	}
	if s.maxBackoff <= 0 {
		s.maxBackoff = DefaultMaxBackoff
	}
	if s.dialer == nil {
		s.dialer = &WebsocketDialer{}
	}
	if s.dispatcher == nil {
		s.dispatcher = events.NewDispatcher(opts.Logger)
	}
	if s.inline == nil {
		s.inline = events.NewDispatcher(opts.Logger)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Dispatcher returns the dispatcher events are fanned out to.
func (s *Session) Dispatcher() *events.Dispatcher {
	return s.dispatcher
}

// Inline returns the dispatcher run on the receive loop.
func (s *Session) Inline() *events.Dispatcher {
	return s.inline
}

// Connect dials the gateway, completes the Hello/Identify handshake and starts
// the session loops. The token can only be set once.
//
// Errors during the initial handshake are returned and never retried.
// Connect does not wait for READY; use AwaitReady for that.
func (s *Session) Connect(ctx context.Context, token string) error {
	if token == "" {
		return ErrEmptyToken
	}

	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyConnected
	}
	s.started = true
	s.token = token
	s.mu.Unlock()

	conn, err := s.open(ctx)
	if err != nil {
		s.fail(err)
		s.setStatus(StatusClosed)
		s.closeDone()
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	if s.closed {
		s.status = StatusClosed
		s.conn = nil
		s.mu.Unlock()
		cancel()
		conn.Close()
		return ErrClosed
	}
	s.cancel = cancel
	s.mu.Unlock()

	go s.dispatchLoop(runCtx)
	go s.run(runCtx, cancel, conn)
	return nil
}

// AwaitReady blocks until the first READY dispatch arrives, the session fails
// for good, or ctx is done.
func (s *Session) AwaitReady(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	default:
	}

	select {
	case <-s.ready:
		return nil
	case <-s.done:
		s.mu.RLock()
		defer s.mu.RUnlock()
		if s.fatal != nil {
			return s.fatal
		}
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Disconnect closes the session for good. It is safe to call more than once.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.closed = true
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-s.done
	}
	s.setStatus(StatusClosed)
	s.closeDone()
	return nil
}

// Done is closed once the session has stopped for good.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err returns the error that ended the session, if any.
func (s *Session) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fatal
}

func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Sequence returns the last sequence number seen on this connection.
func (s *Session) Sequence() (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.sequence == nil {
		return 0, false
	}
	return *s.sequence, true
}

// HeartbeatInterval returns the interval announced by the last Hello.
func (s *Session) HeartbeatInterval() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.heartbeatInterval
}

// User returns the identity from the last READY, or nil before that.
func (s *Session) User() *discordgo.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

func (s *Session) SessionID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessionID
}

func (s *Session) ApplicationID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.applicationID
}

// Guild returns the cached guild with the given id.
func (s *Session) Guild(id string) (*discordgo.Guild, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.guilds[id]
	return g, ok
}

// Guilds returns every cached guild.
func (s *Session) Guilds() []*discordgo.Guild {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*discordgo.Guild, 0, len(s.guilds))
	for _, g := range s.guilds {
		out = append(out, g)
	}
	return out
}

// VoiceState returns the cached voice state of a user in a guild.
func (s *Session) VoiceState(guildID, userID string) (*discordgo.VoiceState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	vs, ok := s.voiceStates[guildID][userID]
	return vs, ok
}

// VoiceStates returns the cached voice states of every user connected to
// voice in a guild.
func (s *Session) VoiceStates(guildID string) []*discordgo.VoiceState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	states := s.voiceStates[guildID]
	out := make([]*discordgo.VoiceState, 0, len(states))
	for _, vs := range states {
		out = append(out, vs)
	}
	return out
}

// UpdateVoiceState asks the gateway to move the bot into channelID, or out of
// voice in the guild when channelID is empty.
func (s *Session) UpdateVoiceState(ctx context.Context, guildID, channelID string, mute, deaf bool) error {
	s.mu.RLock()
	conn := s.conn
	status := s.status
	s.mu.RUnlock()

	if conn == nil || (status != StatusConnected && status != StatusAwaitingHeartbeatAck) {
		return ErrNotConnected
	}

	payload := voiceStateUpdatePayload{
		GuildID:  guildID,
		SelfMute: mute,
		SelfDeaf: deaf,
	}
	if channelID != "" {
		payload.ChannelID = &channelID
	}
	if err := s.send(conn, OpVoiceStateUpdate, payload); err != nil {
		return fmt.Errorf("failed to send voice state update: %w", err)
	}
	return nil
}

func (s *Session) setStatus(status Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

func (s *Session) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fatal == nil {
		s.fatal = err
	}
}

func (s *Session) closeDone() {
	s.doneOnce.Do(func() { close(s.done) })
}

// open dials a fresh connection and completes Hello/Identify.
func (s *Session) open(ctx context.Context) (Conn, error) {
	s.setStatus(StatusConnecting)

	ctx, cancel := context.WithTimeout(ctx, s.connectTimeout)
	defer cancel()

	conn, err := s.dialer.Dial(ctx, s.url)
	if err != nil {
		return nil, fmt.Errorf("failed to dial gateway: %w", err)
	}

	interval, err := awaitHello(ctx, conn)
	if err != nil {
		conn.Close()
		return nil, err
	}

	s.mu.Lock()
	s.conn = conn
	s.heartbeatInterval = interval
	s.sequence = nil
	s.ackPending = false
	s.status = StatusIdentifying
	token := s.token
	s.mu.Unlock()

	identify := identifyPayload{
		Token:      token,
		Intents:    s.intents,
		Properties: s.properties,
	}
	if err := s.send(conn, OpIdentify, identify); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to send identify: %w", err)
	}

	s.logger.Debug("identified with gateway", slog.Duration("heartbeatInterval", interval))
	return conn, nil
}

func awaitHello(ctx context.Context, conn Conn) (time.Duration, error) {
	type result struct {
		env *Envelope
		err error
	}
	ch := make(chan result, 1)
	go func() {
		_, data, err := conn.ReadMessage()
		if err != nil {
			ch <- result{err: classify(err)}
			return
		}
		env, err := DecodeEnvelope(data)
		ch <- result{env: env, err: err}
	}()

	var r result
	select {
	case <-ctx.Done():
		conn.Close()
		return 0, fmt.Errorf("timed out waiting for hello: %w", ctx.Err())
	case r = <-ch:
	}
	if r.err != nil {
		return 0, fmt.Errorf("failed to read hello: %w", r.err)
	}
	if r.env.Op != OpHello {
		return 0, fmt.Errorf("%w: expected hello, got opcode %d", ErrUnexpectedHandshake, r.env.Op)
	}

	var hello helloPayload
	if err := json.Unmarshal(r.env.Data, &hello); err != nil {
		return 0, fmt.Errorf("failed to decode hello: %w", err)
	}
	if hello.HeartbeatInterval <= 0 {
		return 0, fmt.Errorf("%w: heartbeat interval %d", ErrUnexpectedHandshake, hello.HeartbeatInterval)
	}
	return time.Duration(hello.HeartbeatInterval) * time.Millisecond, nil
}

func (s *Session) send(conn Conn, op Opcode, data any) error {
	frame, err := EncodeFrame(op, data)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, frame)
}

// run serves connections until the session is closed or fails for good.
func (s *Session) run(ctx context.Context, stop context.CancelFunc, conn Conn) {
	defer func() {
		stop()
		s.setStatus(StatusClosed)
		s.closeDone()
	}()

	for {
		err := s.serve(ctx, conn)
		if ctx.Err() != nil {
			return
		}

		var fatal *FatalError
		if errors.As(err, &fatal) {
			s.logger.Error("gateway session rejected", slog.Any("error", err))
			s.fail(err)
			return
		}

		s.logger.Warn("gateway connection lost, reconnecting", slog.Any("error", err))
		if s.observer != nil {
			s.observer.Reconnecting(err)
		}

		conn, err = s.reconnect(ctx)
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Error("gateway reconnect failed", slog.Any("error", err))
				s.fail(err)
			}
			return
		}
	}
}

// reconnect redials with capped exponential backoff. Only fatal handshake
// errors and cancellation stop it.
func (s *Session) reconnect(ctx context.Context) (Conn, error) {
	s.mu.Lock()
	s.status = StatusReconnecting
	s.conn = nil
	s.mu.Unlock()

	delay := s.reconnectDelay
	for {
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}

		conn, err := s.open(ctx)
		if err == nil {
			return conn, nil
		}

		var fatal *FatalError
		if errors.As(err, &fatal) || ctx.Err() != nil {
			return nil, err
		}
		s.setStatus(StatusReconnecting)
		s.logger.Warn("gateway reconnect attempt failed", slog.Any("error", err), slog.Duration("retryIn", delay))
		delay = min(delay*2, s.maxBackoff)
	}
}

// serve runs the receive and heartbeat loops for one connection and returns
// why the connection ended.
func (s *Session) serve(ctx context.Context, conn Conn) error {
	// connDone is closed with the connection so a receive loop blocked on a
	// full queue still notices a dead connection.
	connDone := make(chan struct{})
	var closeOnce sync.Once
	closeConn := func() {
		closeOnce.Do(func() { close(connDone) })
		conn.Close()
	}
	defer closeConn()

	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()

	hbErr := make(chan error, 1)
	go func() {
		err := s.heartbeatLoop(hbCtx, conn)
		hbErr <- err
		if err != nil {
			closeConn()
		}
	}()

	stopClose := context.AfterFunc(ctx, func() {
		s.writeMu.Lock()
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.writeMu.Unlock()
		closeConn()
	})
	defer stopClose()

	heartbeatErr := func() error {
		select {
		case herr := <-hbErr:
			return herr
		default:
			return nil
		}
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if herr := heartbeatErr(); herr != nil {
				return herr
			}
			return classify(err)
		}
		if err := s.handleFrame(ctx, connDone, conn, data); err != nil {
			if errors.Is(err, errConnectionDone) {
				if herr := heartbeatErr(); herr != nil {
					return herr
				}
			}
			return err
		}
	}
}

func (s *Session) handleFrame(ctx context.Context, connDone <-chan struct{}, conn Conn, data []byte) error {
	env, err := DecodeEnvelope(data)
	if err != nil {
		s.logger.Warn("discarding malformed gateway frame", slog.Any("error", err))
		return nil
	}

	switch env.Op {
	case OpDispatch:
		return s.handleDispatch(ctx, connDone, env)
	case OpHeartbeat:
		if err := s.heartbeat(conn); err != nil {
			return fmt.Errorf("failed to answer heartbeat request: %w", err)
		}
	case OpHeartbeatAck:
		s.acknowledge()
	case OpReconnect:
		return ErrReconnectRequested
	case OpInvalidSession:
		return ErrInvalidSession
	default:
		s.logger.Debug("ignoring gateway frame", slog.Int("op", int(env.Op)))
	}
	return nil
}

// handleDispatch tracks state, runs inline listeners and queues the events
// that have listeners. It gives up when the connection or session ends while
// the queue is full.
func (s *Session) handleDispatch(ctx context.Context, connDone <-chan struct{}, env *Envelope) error {
	if env.Seq != nil {
		s.mu.Lock()
		if s.sequence == nil || *env.Seq > *s.sequence {
			seq := *env.Seq
			s.sequence = &seq
		}
		s.mu.Unlock()
	}

	evs, err := DecodeDispatch(env.Type, env.Data)
	if err != nil {
		s.logger.Warn("discarding undecodable dispatch", slog.String("type", env.Type), slog.Any("error", err))
		return nil
	}

	for _, ev := range evs {
		s.track(ev)
		if s.observer != nil {
			s.observer.DispatchReceived(ev.Name)
		}
		_ = s.inline.Dispatch(ctx, ev.Name, ev.Payload)
		if s.dispatcher.Count(ev.Name) == 0 {
			continue
		}
		select {
		case s.queue <- ev:
		case <-connDone:
			return errConnectionDone
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// track updates local state before listeners see the event.
func (s *Session) track(ev Event) {
	switch p := ev.Payload.(type) {
	case *Ready:
		s.mu.Lock()
		s.user = p.User
		s.sessionID = p.SessionID
		if p.Application != nil {
			s.applicationID = p.Application.ID
		}
		s.guilds = make(map[string]*discordgo.Guild, len(p.Guilds))
		for _, g := range p.Guilds {
			s.guilds[g.ID] = g
		}
		s.voiceStates = make(map[string]map[string]*discordgo.VoiceState)
		if s.ackPending {
			s.status = StatusAwaitingHeartbeatAck
		} else {
			s.status = StatusConnected
		}
		s.mu.Unlock()

		s.readyOnce.Do(func() { close(s.ready) })
		s.logger.Info("gateway session ready", slog.String("sessionID", p.SessionID))

	case *discordgo.Guild:
		if ev.Name != EventGuildJoin {
			return
		}
		s.mu.Lock()
		s.guilds[p.ID] = p
		states := make(map[string]*discordgo.VoiceState, len(p.VoiceStates))
		for _, vs := range p.VoiceStates {
			vs.GuildID = p.ID
			states[vs.UserID] = vs
		}
		s.voiceStates[p.ID] = states
		s.mu.Unlock()

	case *discordgo.VoiceState:
		s.mu.Lock()
		states, ok := s.voiceStates[p.GuildID]
		if !ok {
			states = make(map[string]*discordgo.VoiceState)
			s.voiceStates[p.GuildID] = states
		}
		if p.ChannelID == "" {
			delete(states, p.UserID)
		} else {
			states[p.UserID] = p
		}
		s.mu.Unlock()
	}
}

func (s *Session) dispatchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-s.queue:
			_ = s.dispatcher.Dispatch(ctx, ev.Name, ev.Payload)
		}
	}
}

// heartbeatLoop sends a heartbeat every interval. If the previous heartbeat
// is still unacknowledged when the next one is due, the connection is
// considered dead.
func (s *Session) heartbeatLoop(ctx context.Context, conn Conn) error {
	ticker := time.NewTicker(s.HeartbeatInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		s.mu.RLock()
		pending := s.ackPending
		s.mu.RUnlock()
		if pending {
			return ErrHeartbeatAckMissed
		}

		if err := s.heartbeat(conn); err != nil {
			return fmt.Errorf("failed to send heartbeat: %w", err)
		}
	}
}

// heartbeat sends op 1 carrying the latest sequence number.
func (s *Session) heartbeat(conn Conn) error {
	s.mu.RLock()
	var seq *int64
	if s.sequence != nil {
		v := *s.sequence
		seq = &v
	}
	s.mu.RUnlock()

	if err := s.send(conn, OpHeartbeat, seq); err != nil {
		return err
	}

	s.mu.Lock()
	s.ackPending = true
	s.lastHeartbeat = time.Now()
	if s.status == StatusConnected {
		s.status = StatusAwaitingHeartbeatAck
	}
	s.mu.Unlock()
	return nil
}

func (s *Session) acknowledge() {
	s.mu.Lock()
	s.ackPending = false
	latency := time.Since(s.lastHeartbeat)
	if s.status == StatusAwaitingHeartbeatAck {
		s.status = StatusConnected
	}
	s.mu.Unlock()

	if s.observer != nil {
		s.observer.HeartbeatAcked(latency)
	}
}
