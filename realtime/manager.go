package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ciesa/portal-client/model"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	defaultHandshakeTimeout = 3 * time.Second

	defaultReconnectAttempts = 5
	defaultReconnectDelay    = time.Second

	defaultMaxMessageSize     = 65536
	defaultWriteDeadline      = 5 * time.Second
	defaultCloseWriteDeadline = 2 * time.Second

	// defaultPongWait - defaultPingInterval == is how long we give server to respond
	defaultPingInterval = 5 * time.Second
	defaultPongWait     = 7 * time.Second

	txBufferSize = 64
)

var (
	ErrConnect      = errors.New("unable to establish realtime connection")
	ErrNotConnected = errors.New("realtime connection is not established")
	ErrTransport    = errors.New("realtime transport failure")
)

// Handler receives decoded inbound events. Handlers registered on a Manager
// are invoked one at a time from the receive loop, never concurrently.
type Handler func(model.Event)

type Config struct {
	Logger *zerolog.Logger

	// URL is the websocket endpoint, ws:// or wss://.
	URL string

	// Jar supplies session cookies for the handshake. Sharing the REST
	// client's jar carries the same credentials on both boundaries.
	Jar http.CookieJar

	HandshakeTimeout  time.Duration
	ReconnectAttempts int
	ReconnectDelay    time.Duration
	PingInterval      time.Duration
	PongWait          time.Duration
}

// Manager owns the single realtime session: connect/reconnect/disconnect
// lifecycle, the set of joined rooms replayed after every reconnect, and
// dispatch of inbound events to subscribed handlers.
type Manager struct {
	logger zerolog.Logger
	dialer *websocket.Dialer
	url    string

	reconnectAttempts int
	reconnectDelay    time.Duration
	pingInterval      time.Duration
	pongWait          time.Duration

	mu       sync.Mutex
	sess     *session
	inflight *connectAttempt
	gen      int
	rooms    map[int64]struct{}
	handlers map[model.EventKind][]subscription
	nextSub  int
}

type subscription struct {
	id int
	fn Handler
}

// connectAttempt is the shared result of one in-flight handshake. Concurrent
// Connect callers wait on done instead of dialing again.
type connectAttempt struct {
	done chan struct{}
	err  error
}

type session struct {
	id   string
	conn *websocket.Conn
	tx   chan model.Envelope
	done chan struct{}

	closeOnce sync.Once

	mx              sync.Mutex
	clientInitiated bool
}

func New(cfg Config) *Manager {
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	if cfg.ReconnectAttempts == 0 {
		cfg.ReconnectAttempts = defaultReconnectAttempts
	}
	if cfg.ReconnectDelay == 0 {
		cfg.ReconnectDelay = defaultReconnectDelay
	}
	if cfg.PingInterval == 0 {
		cfg.PingInterval = defaultPingInterval
	}
	if cfg.PongWait == 0 {
		cfg.PongWait = defaultPongWait
	}
	return &Manager{
		logger: cfg.Logger.With().Str("component", "realtime").Logger(),
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.HandshakeTimeout,
			Jar:              cfg.Jar,
		},
		url:               cfg.URL,
		reconnectAttempts: cfg.ReconnectAttempts,
		reconnectDelay:    cfg.ReconnectDelay,
		pingInterval:      cfg.PingInterval,
		pongWait:          cfg.PongWait,
		rooms:             make(map[int64]struct{}),
		handlers:          make(map[model.EventKind][]subscription),
	}
}

// Connect idempotently ensures a live session. If a handshake is already in
// flight the caller shares its result instead of starting a second one.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.sess != nil {
		m.mu.Unlock()
		return nil
	}
	if a := m.inflight; a != nil {
		m.mu.Unlock()
		select {
		case <-a.done:
			return a.err
		case <-ctx.Done():
			return errors.Join(ErrConnect, ctx.Err())
		}
	}
	a := &connectAttempt{done: make(chan struct{})}
	m.inflight = a
	m.mu.Unlock()

	conn, resp, err := m.dialer.DialContext(ctx, m.url, nil)
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("%w: handshake rejected with %s", err, resp.Status)
			_ = resp.Body.Close()
		}
		err = errors.Join(ErrConnect, err)
	}

	m.mu.Lock()
	if m.inflight == a {
		m.inflight = nil
	} else if err == nil {
		// Disconnect happened while the handshake was in flight.
		err = errors.Join(ErrConnect, errors.New("disconnected during connect"))
	}
	if err != nil {
		m.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		a.err = err
		close(a.done)
		return err
	}

	s := &session{
		id:   uuid.NewString(),
		conn: conn,
		tx:   make(chan model.Envelope, txBufferSize),
		done: make(chan struct{}),
	}
	m.sess = s
	rooms := make([]int64, 0, len(m.rooms))
	for roomID := range m.rooms {
		rooms = append(rooms, roomID)
	}
	m.mu.Unlock()

	logger := m.logger.With().Str("sessionID", s.id).Logger()
	logger.Info().Msg("connected")

	go m.sendLoop(s, &logger)
	go m.recvLoop(s, &logger)

	// Re-announce membership so a reconnect is invisible to the UI layer.
	for _, roomID := range rooms {
		m.enqueue(s, model.EventNameJoinRoom, model.JoinRoom{RoomID: roomID}, &logger)
	}

	close(a.done)
	return nil
}

// Disconnect tears the session down unconditionally, clears the in-flight
// marker and forgets room membership. Safe to call when already disconnected.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	s := m.sess
	m.sess = nil
	m.inflight = nil
	m.gen++
	m.rooms = make(map[int64]struct{})
	m.mu.Unlock()

	if s == nil {
		return
	}
	s.markClientInitiated()
	s.shutdown()
	m.logger.Debug().Str("sessionID", s.id).Msg("disconnected")
}

// JoinRoom ensures a connection, records membership and announces the join.
// Joining the same room twice is harmless.
func (m *Manager) JoinRoom(ctx context.Context, roomID int64) error {
	if err := m.Connect(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	m.rooms[roomID] = struct{}{}
	m.mu.Unlock()
	return m.emit(ctx, model.EventNameJoinRoom, model.JoinRoom{RoomID: roomID})
}

// LeaveRoom forgets membership and announces the leave when connected. It is
// a no-op without an active session.
func (m *Manager) LeaveRoom(roomID int64) error {
	m.mu.Lock()
	delete(m.rooms, roomID)
	s := m.sess
	m.mu.Unlock()
	if s == nil {
		return nil
	}
	m.enqueue(s, model.EventNameLeaveRoom, model.LeaveRoom{RoomID: roomID}, &m.logger)
	return nil
}

// SendMessage emits a send_message event. Like all emits this is
// fire-and-forget: the outcome is observed only through inbound events.
func (m *Manager) SendMessage(ctx context.Context, msg model.SendMessage) error {
	return m.ensureAndEmit(ctx, model.EventNameSendMessage, msg)
}

func (m *Manager) EditMessage(ctx context.Context, messageID int64, text string) error {
	return m.ensureAndEmit(ctx, model.EventNameEditMessage, model.EditMessage{MessageID: messageID, Text: text})
}

func (m *Manager) DeleteMessage(ctx context.Context, messageID int64) error {
	return m.ensureAndEmit(ctx, model.EventNameDeleteMessage, model.DeleteMessage{MessageID: messageID})
}

func (m *Manager) ReactToMessage(ctx context.Context, messageID int64, emoji string) error {
	return m.ensureAndEmit(ctx, model.EventNameReactToMessage, model.ReactToMessage{MessageID: messageID, Emoji: emoji})
}

func (m *Manager) Typing(ctx context.Context, roomID int64) error {
	return m.ensureAndEmit(ctx, model.EventNameTyping, model.Typing{RoomID: roomID})
}

// On subscribes a handler to an inbound event kind and returns its
// subscription id for Off.
func (m *Manager) On(kind model.EventKind, h Handler) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextSub++
	m.handlers[kind] = append(m.handlers[kind], subscription{id: m.nextSub, fn: h})
	return m.nextSub
}

// Off removes one handler by subscription id.
func (m *Manager) Off(kind model.EventKind, id int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	subs := m.handlers[kind]
	for i, sub := range subs {
		if sub.id == id {
			m.handlers[kind] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

// OffAll removes every handler for the event kind.
func (m *Manager) OffAll(kind model.EventKind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.handlers, kind)
}

func (m *Manager) ensureAndEmit(ctx context.Context, event string, payload any) error {
	if err := m.Connect(ctx); err != nil {
		return err
	}
	return m.emit(ctx, event, payload)
}

func (m *Manager) emit(_ context.Context, event string, payload any) error {
	m.mu.Lock()
	s := m.sess
	m.mu.Unlock()
	if s == nil {
		return ErrNotConnected
	}
	m.enqueue(s, event, payload, &m.logger)
	return nil
}

func (m *Manager) enqueue(s *session, event string, payload any, logger *zerolog.Logger) {
	b, err := json.Marshal(payload)
	if err != nil {
		logger.Error().Err(err).Str("event", event).Msg("failed to marshall outgoing payload")
		return
	}
	env := model.Envelope{Event: event, Payload: b}
	select {
	case s.tx <- env:
		logger.Trace().Str("event", event).Msg("event queued")
	case <-s.done:
		logger.Debug().Str("event", event).Msg("event dropped, session is down")
	}
}

func (m *Manager) sendLoop(s *session, logger *zerolog.Logger) {
	pingTicker := time.NewTicker(m.pingInterval)
	defer pingTicker.Stop()
SendLoop:
	for {
		select {
		case <-s.done:
			break SendLoop
		case <-pingTicker.C:
			if wsErr := s.conn.SetWriteDeadline(time.Now().Add(defaultWriteDeadline)); wsErr != nil {
				logger.Error().Err(wsErr).Msg("failed to set websocket write deadline")
				break SendLoop
			}
			if wsErr := s.conn.WriteMessage(websocket.PingMessage, []byte{}); wsErr != nil {
				logger.Error().Err(wsErr).Msg("failed to send ping")
				break SendLoop
			}
			logger.Trace().Msg("ping sent")

		case env := <-s.tx:
			b, wsErr := json.Marshal(&env)
			if wsErr != nil {
				logger.Error().Err(wsErr).Msg("failed to marshall outgoing event")
				continue
			}
			if wsErr = s.conn.SetWriteDeadline(time.Now().Add(defaultWriteDeadline)); wsErr != nil {
				logger.Error().Err(wsErr).Msg("failed to set websocket write deadline")
				break SendLoop
			}
			if wsErr = s.conn.WriteMessage(websocket.TextMessage, b); wsErr != nil {
				logger.Error().Err(wsErr).Msg("failed to write outgoing event")
				break SendLoop
			}
		}
	}
	// Severing the connection unblocks the receive loop, which owns
	// teardown and the reconnect decision.
	_ = s.conn.Close()
}

func (m *Manager) recvLoop(s *session, logger *zerolog.Logger) {
	s.conn.SetReadLimit(defaultMaxMessageSize)
	readDeadlineFunc := func(deadline time.Duration) error {
		return s.conn.SetReadDeadline(time.Now().Add(deadline))
	}
	s.conn.SetPongHandler(func(string) error {
		logger.Trace().Msg("got pong")
		return readDeadlineFunc(m.pongWait)
	})
	if err := readDeadlineFunc(m.pongWait); err != nil {
		logger.Error().Err(err).Msg("failed to set websocket read deadline")
	}

RecvLoop:
	for {
		_, raw, wsErr := s.conn.ReadMessage()
		if wsErr != nil {
			if websocket.IsCloseError(wsErr,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway) {
				logger.Warn().Err(wsErr).Msg("connection closed")
			} else if !s.isClientInitiated() {
				logger.Error().Err(wsErr).Msg("unexpected error during receive")
				m.dispatch(model.Event{Kind: model.EventError, Err: errors.Join(ErrTransport, wsErr)})
			}
			break RecvLoop
		}

		var env model.Envelope
		if wsErr = json.Unmarshal(raw, &env); wsErr != nil {
			logger.Error().Err(wsErr).Msg("failed to unmarshall incoming event")
			continue
		}
		ev, decErr := model.DecodeEvent(env)
		if decErr != nil {
			logger.Debug().Err(decErr).Msg("incoming event dropped")
			continue
		}
		m.dispatch(ev)
	}

	s.shutdown()

	m.mu.Lock()
	current := m.sess == s
	if current {
		m.sess = nil
	}
	m.mu.Unlock()

	if current && !s.isClientInitiated() {
		logger.Warn().Msg("session lost, reconnecting")
		m.mu.Lock()
		gen := m.gen
		m.mu.Unlock()
		go m.reconnectLoop(gen)
	}
}

// reconnectLoop restores a server-severed session. Attempt count and delay
// are fixed at construction; exhaustion surfaces as an error event.
func (m *Manager) reconnectLoop(gen int) {
	for attempt := 1; attempt <= m.reconnectAttempts; attempt++ {
		time.Sleep(m.reconnectDelay)

		m.mu.Lock()
		stale := m.sess != nil || m.gen != gen
		m.mu.Unlock()
		if stale {
			// Someone reconnected or disconnected while we slept.
			return
		}

		err := m.Connect(context.Background())
		if err == nil {
			m.logger.Info().Int("attempt", attempt).Msg("reconnected")
			return
		}
		m.logger.Error().Err(err).Int("attempt", attempt).Msg("reconnect attempt failed")
	}
	m.dispatch(model.Event{Kind: model.EventError, Err: ErrConnect})
}

// dispatch invokes handlers for one event. Calls originate from a single
// receive loop, so handlers never run concurrently with each other.
func (m *Manager) dispatch(ev model.Event) {
	m.mu.Lock()
	subs := make([]subscription, len(m.handlers[ev.Kind]))
	copy(subs, m.handlers[ev.Kind])
	m.mu.Unlock()
	for _, sub := range subs {
		sub.fn(ev)
	}
}

func (s *session) markClientInitiated() {
	s.mx.Lock()
	s.clientInitiated = true
	s.mx.Unlock()
}

func (s *session) isClientInitiated() bool {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.clientInitiated
}

func (s *session) shutdown() {
	s.closeOnce.Do(func() {
		close(s.done)
		wsErr := s.conn.SetWriteDeadline(time.Now().Add(defaultCloseWriteDeadline))
		if wsErr == nil {
			_ = s.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		}
		_ = s.conn.Close()
	})
}
