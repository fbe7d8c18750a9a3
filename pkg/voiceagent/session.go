package voiceagent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// SessionOptions wires a Session to its collaborators. Config, Tokens and
// Settings are required; the rest default to production implementations.
type SessionOptions struct {
	// ID defaults to a random UUID.
	ID        string
	Config    *Config
	Tokens    TokenProvider
	Dialer    Dialer
	Scheduler Scheduler
	Settings  *Settings
	Logger    *Logger
	Metrics   *Metrics
}

// Session owns the agent socket, the reconnect policy and the keep-alive task.
//
// All state lives on the goroutine running Run. Socket readers, timers, the
// token fetch and capture callbacks only post events to its queue, so handlers
// never run concurrently with each other.
type Session struct {
	id       string
	cfg      *Config
	tokens   TokenProvider
	dialer   Dialer
	sched    Scheduler
	settings *Settings
	logger   *Logger
	metrics  *Metrics
	delay    *backoff.ConstantBackOff

	events   chan event
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	runOnce  sync.Once
	running  atomic.Bool
	runCtx   context.Context

	// owned by the loop
	state         State
	conn          Conn
	gen           uint64
	attempts      int
	degraded      bool
	ready         bool
	lastErr       *SessionError
	keepAlive     Task
	reconnect     Task
	attemptCancel context.CancelFunc

	snapMu sync.RWMutex
	snap   Snapshot

	notify        chan notification
	handlersMu    sync.RWMutex
	stateHandlers []StateHandler
	frameHandlers []FrameHandler
	errorHandlers []ErrorHandler
}

type notification struct {
	snap Snapshot
	err  *SessionError
}

type event interface{}

type (
	evConnect struct {
		auto bool
		gen  uint64
	}
	evDisconnect struct{ done chan struct{} }
	evReset      struct{ done chan struct{} }
	evBarrier    struct{ done chan struct{} }
	evTokenFail  struct {
		gen uint64
		err error
	}
	evDialResult struct {
		gen  uint64
		conn Conn
		err  error
	}
	evSocketError struct {
		gen uint64
		err error
	}
	evSocketClosed struct {
		gen uint64
		err error
	}
	evKeepAlive   struct{ gen uint64 }
	evSendControl struct {
		msg    ControlMessage
		result chan error
	}
	evSendAudio struct{ frame []byte }
)

// NewSession builds an idle session. Call Run to start processing events.
func NewSession(opts SessionOptions) (*Session, error) {
	if opts.Config == nil {
		return nil, errors.New("session: config is required")
	}
	if opts.Tokens == nil {
		return nil, errors.New("session: token provider is required")
	}
	if opts.Settings == nil {
		return nil, fmt.Errorf("session: %w", ErrSettingsMissing)
	}
	if issues := opts.Config.Validate(); len(issues) > 0 {
		return nil, fmt.Errorf("session: %w: %s", ErrInvalidConfig, strings.Join(issues, "; "))
	}
	if opts.Dialer == nil {
		opts.Dialer = NewWebsocketDialer(opts.Config)
	}
	if opts.Scheduler == nil {
		opts.Scheduler = SystemScheduler{}
	}
	if opts.Logger == nil {
		opts.Logger = GetGlobalLogger()
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics(nil)
	}
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	s := &Session{
		id:       id,
		cfg:      opts.Config,
		tokens:   opts.Tokens,
		dialer:   opts.Dialer,
		sched:    opts.Scheduler,
		settings: opts.Settings,
		logger:   opts.Logger.WithComponent("Session").WithField("session_id", id),
		metrics:  opts.Metrics,
		delay:    backoff.NewConstantBackOff(opts.Config.ReconnectDelay),
		events:   make(chan event, opts.Config.QueueSize),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		runCtx:   context.Background(),
		state:    StateIdle,
		notify:   make(chan notification, 64),
	}
	s.snap = s.buildSnapshot()
	s.metrics.setState(StateIdle)
	return s, nil
}

// ID identifies the session in logs.
func (s *Session) ID() string { return s.id }

// Run processes events until ctx is cancelled or Close is called.
func (s *Session) Run(ctx context.Context) error {
	started := false
	s.runOnce.Do(func() { started = true })
	if !started {
		return errors.New("session: already running")
	}

	s.runCtx = ctx
	s.running.Store(true)
	notifierDone := make(chan struct{})
	go s.notifier(notifierDone)
	defer func() {
		s.shutdown()
		close(s.done)
		close(s.notify)
		<-notifierDone
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stop:
			return nil
		case ev := <-s.events:
			s.handle(ev)
			s.publish(nil)
		}
	}
}

// Close stops the event loop. The socket, if any, is closed.
func (s *Session) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// Done is closed once Run has returned.
func (s *Session) Done() <-chan struct{} { return s.done }

// Connect requests a connection. It never blocks on the network. A call while
// connecting or connected is a no-op; a call after the reconnect ceiling was
// hit only sets the degraded flag until Reset is called.
func (s *Session) Connect() {
	if !s.running.Load() {
		s.offer(evConnect{})
		return
	}
	_ = s.post(evConnect{})
}

// Disconnect closes the socket, cancels timers, resets the attempt count and
// returns the session to idle. A connection still being established is
// closed as soon as it arrives. Before Run it only queues the request.
func (s *Session) Disconnect() {
	s.request(func(done chan struct{}) event { return evDisconnect{done: done} })
}

// Reset clears the degraded flag and the attempt count so Connect may try again.
func (s *Session) Reset() {
	s.request(func(done chan struct{}) event { return evReset{done: done} })
}

// request posts ev and waits for the loop to apply it. Until Run has started
// nothing can apply it, so the event is queued without waiting.
func (s *Session) request(ev func(done chan struct{}) event) {
	done := make(chan struct{})
	if !s.running.Load() {
		s.offer(ev(done))
		return
	}
	if s.post(ev(done)) != nil {
		return
	}
	s.wait(done)
}

// SendControl writes a control message as a text frame. The initial Settings
// message is sent by the session itself; sending another one is rejected.
func (s *Session) SendControl(msg ControlMessage) error {
	if msg == nil {
		return ErrUnknownMessage
	}
	if msg.MessageType() == TypeSettings {
		return errors.New("settings are sent automatically when the socket opens")
	}
	if !s.running.Load() {
		return ErrNotConnected
	}
	result := make(chan error, 1)
	if err := s.post(evSendControl{msg: msg, result: result}); err != nil {
		return err
	}
	select {
	case err := <-result:
		return err
	case <-s.done:
		return ErrSessionStopped
	}
}

// SendAudio queues one linear16 frame. Frames are dropped when the session is
// not connected or the queue is full, and the returned error says which.
func (s *Session) SendAudio(frame []byte) error {
	if len(frame) == 0 {
		return nil
	}
	select {
	case <-s.done:
		return ErrSessionStopped
	default:
	}
	if s.Snapshot().State != StateConnected {
		s.metrics.AudioFramesDrop.Inc()
		return ErrNotConnected
	}
	select {
	case s.events <- evSendAudio{frame: frame}:
		return nil
	default:
		s.metrics.AudioFramesDrop.Inc()
		return ErrQueueFull
	}
}

// Snapshot returns the latest published view of the session.
func (s *Session) Snapshot() Snapshot {
	s.snapMu.RLock()
	defer s.snapMu.RUnlock()
	return s.snap
}

func (s *Session) State() State { return s.Snapshot().State }

func (s *Session) Degraded() bool { return s.Snapshot().Degraded }

// AddStateHandler registers a callback for every published snapshot change.
// Handlers run in order on a single notifier goroutine.
func (s *Session) AddStateHandler(h StateHandler) {
	s.handlersMu.Lock()
	s.stateHandlers = append(s.stateHandlers, h)
	s.handlersMu.Unlock()
}

// AddFrameHandler registers a callback for inbound frames. Handlers run on the
// socket reader goroutine in arrival order and must not block for long.
func (s *Session) AddFrameHandler(h FrameHandler) {
	s.handlersMu.Lock()
	s.frameHandlers = append(s.frameHandlers, h)
	s.handlersMu.Unlock()
}

// AddErrorHandler registers a callback for surfaced session errors.
func (s *Session) AddErrorHandler(h ErrorHandler) {
	s.handlersMu.Lock()
	s.errorHandlers = append(s.errorHandlers, h)
	s.handlersMu.Unlock()
}

func (s *Session) post(ev event) error {
	select {
	case <-s.done:
		return ErrSessionStopped
	default:
	}
	select {
	case s.events <- ev:
		return nil
	case <-s.done:
		return ErrSessionStopped
	}
}

// offer enqueues ev unless the queue is full.
func (s *Session) offer(ev event) {
	select {
	case s.events <- ev:
	default:
		s.logger.Warn("Event queue full, request dropped")
	}
}

func (s *Session) wait(done chan struct{}) {
	select {
	case <-done:
	case <-s.done:
	}
}

func (s *Session) handle(ev event) {
	switch e := ev.(type) {
	case evConnect:
		s.handleConnect(e)
	case evDisconnect:
		s.handleDisconnect()
		close(e.done)
	case evReset:
		s.handleReset()
		close(e.done)
	case evBarrier:
		close(e.done)
	case evTokenFail:
		s.handleTokenFail(e)
	case evDialResult:
		s.handleDialResult(e)
	case evSocketError:
		s.handleSocketError(e.gen, e.err)
	case evSocketClosed:
		s.handleSocketClosed(e.gen, e.err)
	case evKeepAlive:
		s.handleKeepAlive(e.gen)
	case evSendControl:
		e.result <- s.handleSendControl(e.msg)
	case evSendAudio:
		s.handleSendAudio(e.frame)
	}
}

func (s *Session) handleConnect(e evConnect) {
	if e.auto {
		if e.gen != s.gen {
			return
		}
		s.reconnect = nil
	}
	if s.state == StateConnecting || s.state == StateConnected {
		s.logger.Debug("Connect ignored, already connecting or connected")
		return
	}
	if s.conn != nil {
		// The previous socket has not reported its close yet.
		s.logger.Debug("Connect deferred, previous socket still open")
		return
	}
	if s.degraded || s.attempts >= s.cfg.MaxReconnectAttempts {
		s.markDegraded()
		return
	}

	if s.reconnect != nil {
		s.reconnect.Stop()
		s.reconnect = nil
	}
	s.gen++
	gen := s.gen
	ctx, cancel := context.WithCancel(s.runCtx)
	s.attemptCancel = cancel

	s.setState(StateConnecting)
	s.metrics.ConnectAttempts.Inc()
	s.logger.LogConnectionEvent("connect", StateConnecting, map[string]interface{}{
		"attempt":   s.attempts + 1,
		"automatic": e.auto,
	})

	go s.establish(ctx, gen)
}

// establish performs the two suspending steps of a connect attempt off-loop.
func (s *Session) establish(ctx context.Context, gen uint64) {
	token, err := s.tokens.FetchToken(ctx)
	if err == nil && token.AccessToken == "" {
		err = &TokenError{Reason: TokenMissing, Message: "empty access token"}
	}
	if err != nil {
		_ = s.post(evTokenFail{gen: gen, err: err})
		return
	}

	conn, err := s.dialer.Dial(ctx, token.AccessToken)
	if perr := s.post(evDialResult{gen: gen, conn: conn, err: err}); perr != nil && conn != nil {
		conn.Close()
	}
}

func (s *Session) handleTokenFail(e evTokenFail) {
	if e.gen != s.gen {
		return
	}
	s.attemptCancel = nil
	reason := TokenReason(e.err)
	if reason == "" {
		reason = TokenTransportFailure
	}
	s.metrics.TokenFailures.WithLabelValues(string(reason)).Inc()

	s.setError(ErrAuthFailure, "failed to get authentication token", e.err)
	s.setState(StateError)
}

func (s *Session) handleDialResult(e evDialResult) {
	if e.gen != s.gen {
		// Disconnected or replaced while the handshake was in flight.
		if e.conn != nil {
			s.logger.Debug("Closing socket that arrived after cancellation")
			e.conn.Close()
		}
		return
	}
	s.attemptCancel = nil

	if e.err != nil {
		// A failed handshake surfaces as error then close, like a browser socket.
		s.handleSocketError(e.gen, e.err)
		s.handleSocketClosed(e.gen, e.err)
		return
	}

	s.conn = e.conn
	go s.readLoop(e.gen, e.conn)
	s.handleOpen(e.gen)
}

func (s *Session) handleOpen(gen uint64) {
	s.attempts = 0
	s.delay.Reset()
	s.metrics.ConnectionsOpen.Inc()
	s.setState(StateConnected)
	s.logger.LogConnectionEvent("open", StateConnected, nil)

	// Settings must be the first frame on every new socket.
	if err := s.writeControl(s.settings); err != nil {
		s.logger.WithError(err).Error("Failed to send settings")
		return
	}
	s.keepAlive = s.sched.Every(s.cfg.KeepAliveInterval, func() {
		_ = s.post(evKeepAlive{gen: gen})
	})
	s.ready = true
}

func (s *Session) handleSocketError(gen uint64, err error) {
	if gen != s.gen {
		return
	}
	if s.state != StateConnecting && s.state != StateConnected {
		return
	}
	s.setError(ErrTransport, "websocket error", err)
	s.setState(StateError)
}

func (s *Session) handleSocketClosed(gen uint64, err error) {
	if gen != s.gen {
		return
	}
	if s.state == StateClosed || s.state == StateIdle {
		return
	}

	s.stopKeepAlive()
	s.ready = false
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.setState(StateClosed)
	s.metrics.ConnectionsClose.Inc()

	s.attempts++
	s.setError(ErrConnectionClosed, "websocket closed", err)

	if s.attempts >= s.cfg.MaxReconnectAttempts {
		s.markDegraded()
		return
	}

	delay := s.delay.NextBackOff()
	s.logger.LogConnectionEvent("reconnect_scheduled", StateClosed, map[string]interface{}{
		"attempts": s.attempts,
		"delay_ms": delay.Milliseconds(),
	})
	s.reconnect = s.sched.AfterFunc(delay, func() {
		_ = s.post(evConnect{auto: true, gen: gen})
	})
}

func (s *Session) markDegraded() {
	if s.degraded {
		return
	}
	s.degraded = true
	s.metrics.setDegraded(true)
	s.setError(ErrRateLimitedSuspected,
		fmt.Sprintf("max reconnect attempts (%d) reached, likely rate limited (heuristic, not confirmed)", s.cfg.MaxReconnectAttempts),
		nil)
}

func (s *Session) handleDisconnect() {
	s.gen++
	if s.attemptCancel != nil {
		s.attemptCancel()
		s.attemptCancel = nil
	}
	if s.reconnect != nil {
		s.reconnect.Stop()
		s.reconnect = nil
	}
	s.stopKeepAlive()
	s.ready = false
	if s.conn != nil {
		s.closeConn(s.conn)
		s.conn = nil
	}
	s.attempts = 0
	s.delay.Reset()
	s.setState(StateIdle)
	s.logger.LogConnectionEvent("disconnect", StateIdle, nil)
}

func (s *Session) handleReset() {
	s.degraded = false
	s.attempts = 0
	s.delay.Reset()
	s.metrics.setDegraded(false)
	if s.lastErr != nil && s.lastErr.Kind == ErrRateLimitedSuspected {
		s.lastErr = nil
	}
}

func (s *Session) handleKeepAlive(gen uint64) {
	if gen != s.gen || s.state != StateConnected || !s.ready {
		return
	}
	if err := s.writeControl(KeepAlive{}); err != nil {
		s.logger.WithError(err).Warn("Failed to send keep-alive")
		return
	}
	s.metrics.KeepAlivesSent.Inc()
}

func (s *Session) handleSendControl(msg ControlMessage) error {
	if s.state != StateConnected || !s.ready {
		return ErrNotConnected
	}
	return s.writeControl(msg)
}

func (s *Session) handleSendAudio(frame []byte) {
	if s.state != StateConnected || !s.ready {
		s.metrics.AudioFramesDrop.Inc()
		return
	}
	if err := s.write(websocket.BinaryMessage, frame); err != nil {
		s.logger.WithError(err).Debug("Failed to send audio frame")
		return
	}
	s.metrics.AudioFramesSent.Inc()
}

func (s *Session) writeControl(msg ControlMessage) error {
	data, err := EncodeControlMessage(msg)
	if err != nil {
		return err
	}
	if err := s.write(websocket.TextMessage, data); err != nil {
		return err
	}
	if s.cfg.DebugWebsocket {
		s.logger.LogMessageEvent("out", msg.MessageType(), len(data))
	}
	return nil
}

// write sends one frame. A failed write closes the socket so the reader
// reports the close and the normal reconnect path runs.
func (s *Session) write(messageType int, data []byte) error {
	if s.conn == nil {
		return ErrNotConnected
	}
	if s.cfg.WriteTimeout > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	}
	if err := s.conn.WriteMessage(messageType, data); err != nil {
		s.conn.Close()
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

func (s *Session) closeConn(conn Conn) {
	if s.cfg.WriteTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	}
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()
}

func (s *Session) stopKeepAlive() {
	if s.keepAlive != nil {
		s.keepAlive.Stop()
		s.keepAlive = nil
	}
}

func (s *Session) readLoop(gen uint64, conn Conn) {
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				_ = s.post(evSocketError{gen: gen, err: err})
			}
			_ = s.post(evSocketClosed{gen: gen, err: err})
			return
		}

		kind, ok := frameKindFromWS(messageType)
		if !ok {
			continue
		}
		if s.cfg.DebugWebsocket {
			msgType := "audio"
			if kind == FrameText {
				msgType, _ = PeekEventType(data)
			}
			s.logger.LogMessageEvent("in", msgType, len(data))
		}

		s.handlersMu.RLock()
		handlers := s.frameHandlers
		s.handlersMu.RUnlock()
		for _, h := range handlers {
			h(InboundFrame{Kind: kind, Data: data})
		}
	}
}

func (s *Session) setState(state State) {
	if s.state == state {
		return
	}
	s.logger.Debugf("State %s -> %s", s.state, state)
	s.state = state
	s.metrics.setState(state)
	s.publish(nil)
}

func (s *Session) setError(kind ErrorKind, message string, err error) {
	se := newSessionError(kind, message, err)
	se.Attempts = s.attempts
	s.lastErr = se
	s.logger.LogSessionError(se)
	s.publish(se)
}

func (s *Session) buildSnapshot() Snapshot {
	return Snapshot{
		SessionID: s.id,
		State:     s.state,
		HasSocket: s.conn != nil,
		Degraded:  s.degraded,
		Attempts:  s.attempts,
		LastError: s.lastErr,
	}
}

// publish stores the current snapshot and queues handler notifications when
// something observable changed.
func (s *Session) publish(err *SessionError) {
	snap := s.buildSnapshot()
	s.snapMu.Lock()
	changed := snap != s.snap
	s.snap = snap
	s.snapMu.Unlock()

	if !changed && err == nil {
		return
	}
	select {
	case s.notify <- notification{snap: snap, err: err}:
	default:
		s.logger.Warn("State notification dropped, handlers are too slow")
	}
}

func (s *Session) notifier(done chan struct{}) {
	defer close(done)
	for n := range s.notify {
		s.handlersMu.RLock()
		stateHandlers := s.stateHandlers
		errorHandlers := s.errorHandlers
		s.handlersMu.RUnlock()

		for _, h := range stateHandlers {
			h(n.snap)
		}
		if n.err != nil {
			for _, h := range errorHandlers {
				h(n.err)
			}
		}
	}
}

func (s *Session) shutdown() {
	s.gen++
	if s.attemptCancel != nil {
		s.attemptCancel()
		s.attemptCancel = nil
	}
	if s.reconnect != nil {
		s.reconnect.Stop()
		s.reconnect = nil
	}
	s.stopKeepAlive()
	s.ready = false
	if s.conn != nil {
		s.closeConn(s.conn)
		s.conn = nil
	}
	s.setState(StateIdle)
}

// barrier returns once every event queued before it has been handled.
func (s *Session) barrier() {
	done := make(chan struct{})
	if s.post(evBarrier{done: done}) != nil {
		return
	}
	s.wait(done)
}
