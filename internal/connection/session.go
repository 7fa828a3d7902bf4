package connection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rickgao/salesfeed/internal/model"
)

// ErrEmptyTopic is returned when subscribing to an empty topic.
var ErrEmptyTopic = errors.New("empty topic")

// EventSink receives decoded sales tagged with the topic they were subscribed under.
// Dispatch must not block on downstream work.
type EventSink interface {
	Dispatch(topic string, sale model.Sale) int
}

type sessionState int

const (
	stateDisconnected sessionState = iota
	stateHandshaking                // transport open, waiting for connection_ack
	stateOpen                       // acknowledged, subscriptions flow
)

// Session keeps one logical subscription connection alive across transport
// failures and replays every registered topic on each new connection.
type Session struct {
	cfg      SessionConfig
	sink     EventSink
	registry *Registry
	logger   *slog.Logger

	// newClient builds the transport for each connection attempt.
	newClient func(ClientConfig, *slog.Logger) Client

	// Lifecycle
	ctx     context.Context
	cancel  context.CancelFunc
	runDone chan struct{} // closed when the current loop has exited
	wg      sync.WaitGroup

	// Connection handle and its keep-alive; replaced together.
	mu            sync.RWMutex
	client        Client
	state         sessionState
	stopKeepAlive context.CancelFunc
	closed        bool

	// subMu orders subscribe decisions against the replay snapshot.
	subMu sync.Mutex

	lastFrame atomic.Int64 // Unix nanos of the last inbound frame

	// Stats
	reconnects     atomic.Int64
	framesReceived atomic.Int64
	eventsRouted   atomic.Int64
	parseErrors    atomic.Int64
	unresolved     atomic.Int64
	sendsDropped   atomic.Int64
}

// NewSession creates a Session. Zero durations in cfg fall back to DefaultSessionConfig.
func NewSession(cfg SessionConfig, sink EventSink, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}

	def := DefaultSessionConfig()
	if cfg.KeepAliveInterval <= 0 {
		cfg.KeepAliveInterval = def.KeepAliveInterval
	}
	if cfg.ReconnectBaseWait <= 0 {
		cfg.ReconnectBaseWait = def.ReconnectBaseWait
	}
	if cfg.ReconnectMaxWait < cfg.ReconnectBaseWait {
		cfg.ReconnectMaxWait = cfg.ReconnectBaseWait
	}
	if cfg.BufferSize < 1 {
		cfg.BufferSize = def.BufferSize
	}

	return &Session{
		cfg:       cfg,
		sink:      sink,
		registry:  NewRegistry(),
		logger:    logger.With("component", "session"),
		newClient: NewClient,
	}
}

// Registry returns the session's subscription registry.
func (s *Session) Registry() *Registry {
	return s.registry
}

// Connect opens the connection and blocks until the server acknowledges the
// protocol handshake. The error of this first attempt is returned; once it
// succeeds, every later disconnect is retried in the background until ctx is
// cancelled or Close is called. Calling Connect on a running session is a
// no-op; a session whose loop was stopped by its context can be connected again.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	for s.cancel != nil {
		if s.ctx.Err() == nil {
			s.mu.Unlock()
			return nil
		}
		// The previous loop is exiting; wait until it has released the session.
		done := s.runDone
		s.mu.Unlock()
		<-done
		s.mu.Lock()
	}
	if s.closed {
		s.mu.Unlock()
		return ErrAlreadyClosed
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	runCtx := s.ctx
	done := make(chan struct{})
	s.runDone = done
	s.mu.Unlock()

	client, err := s.establish(runCtx)
	if err != nil {
		s.release(runCtx)
		close(done)
		return err
	}

	s.wg.Add(1)
	go s.run(runCtx, client, done)

	s.logger.Info("session connected",
		"url", s.cfg.URL,
		"topics", s.registry.Len(),
	)

	return nil
}

// release clears the loop context if it still belongs to ctx.
func (s *Session) release(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx == ctx {
		s.cancel()
		s.ctx, s.cancel = nil, nil
	}
}

// Close stops the reconnect loop and drops the current connection.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	s.teardown()

	s.logger.Info("session closed")
	return nil
}

// IsConnected reports whether the handshake of the current connection has been acknowledged.
func (s *Session) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state == stateOpen
}

// Stats returns current session statistics.
func (s *Session) Stats() SessionStats {
	return SessionStats{
		Connected:      s.IsConnected(),
		Subscriptions:  s.registry.Len(),
		Reconnects:     s.reconnects.Load(),
		FramesReceived: s.framesReceived.Load(),
		EventsRouted:   s.eventsRouted.Load(),
		ParseErrors:    s.parseErrors.Load(),
		Unresolved:     s.unresolved.Load(),
		SendsDropped:   s.sendsDropped.Load(),
	}
}

// Send transmits frame if the session is open. Otherwise the frame is
// dropped, a warning is logged and ErrNotConnected is returned.
func (s *Session) Send(frame Frame) error {
	s.mu.RLock()
	client, state := s.client, s.state
	s.mu.RUnlock()

	if client == nil || state != stateOpen {
		s.sendsDropped.Add(1)
		s.logger.Warn("send while disconnected, dropping frame",
			"type", frame.Type,
			"request_id", frame.ID,
		)
		return ErrNotConnected
	}

	if err := s.write(client, frame); err != nil {
		s.sendsDropped.Add(1)
		s.logger.Warn("send failed",
			"type", frame.Type,
			"request_id", frame.ID,
			"error", err,
		)
		return err
	}

	return nil
}

// Subscribe registers each topic and sends its subscribe frame. Topics that
// already have a live subscription are skipped. Topics registered while the
// session is disconnected are sent once the next connection is acknowledged.
func (s *Session) Subscribe(topics ...string) error {
	var errs []error
	for _, topic := range topics {
		if topic == "" {
			errs = append(errs, ErrEmptyTopic)
			continue
		}
		if err := s.subscribe(topic, false); err != nil && !errors.Is(err, ErrNotConnected) {
			errs = append(errs, fmt.Errorf("subscribe %s: %w", topic, err))
		}
	}
	return errors.Join(errs...)
}

// subscribe assigns topic a fresh request ID and sends its subscribe frame.
// Without force it does nothing when topic already has an ID.
func (s *Session) subscribe(topic string, force bool) error {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	if !force {
		if _, ok := s.registry.Lookup(topic); ok {
			return nil
		}
	}

	payload, err := json.Marshal(SubscribePayload{
		Query:     SubscriptionQuery,
		Variables: map[string]any{"slug": topic},
	})
	if err != nil {
		return fmt.Errorf("marshal subscribe payload: %w", err)
	}

	id := s.registry.Assign(topic)

	s.logger.Debug("subscribing",
		"topic", topic,
		"request_id", id,
		"force", force,
	)

	return s.Send(Frame{ID: id, Type: FrameSubscribe, Payload: payload})
}

// establish replaces the current connection with a new one, completes the
// handshake and replays all registered topics.
func (s *Session) establish(ctx context.Context) (Client, error) {
	s.teardown()

	client := s.newClient(s.clientConfig(), s.logger)
	if err := client.Connect(ctx); err != nil {
		return nil, fmt.Errorf("dial %s: %w", s.cfg.URL, err)
	}

	kaCtx, stop := context.WithCancel(ctx)
	s.mu.Lock()
	s.client = client
	s.state = stateHandshaking
	s.stopKeepAlive = stop
	s.mu.Unlock()
	s.touch(time.Now())

	s.wg.Add(1)
	go s.keepAlive(kaCtx, client)

	if err := s.write(client, Frame{Type: FrameConnectionInit}); err != nil {
		s.teardown()
		return nil, fmt.Errorf("send connection_init: %w", err)
	}

	if err := s.awaitAck(ctx, client); err != nil {
		s.teardown()
		return nil, err
	}

	// Topics subscribed after this snapshot are sent directly by subscribe.
	s.subMu.Lock()
	s.mu.Lock()
	s.state = stateOpen
	s.mu.Unlock()
	topics := s.registry.Topics()
	s.subMu.Unlock()

	for _, topic := range topics {
		if err := s.subscribe(topic, true); err != nil {
			s.logger.Warn("resubscribe failed", "topic", topic, "error", err)
		}
	}
	if len(topics) > 0 {
		s.logger.Info("replayed subscriptions", "count", len(topics))
	}

	return client, nil
}

// awaitAck waits for connection_ack, bounded by AckTimeout.
func (s *Session) awaitAck(ctx context.Context, client Client) error {
	var timeout <-chan time.Time
	if s.cfg.AckTimeout > 0 {
		timer := time.NewTimer(s.cfg.AckTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timeout:
			return ErrAckTimeout
		case err := <-client.Errors():
			return fmt.Errorf("await connection_ack: %w", err)
		case msg := <-client.Messages():
			s.framesReceived.Add(1)
			s.touch(msg.ReceivedAt)

			frame, err := parseFrame(msg.Data)
			if err != nil {
				s.parseErrors.Add(1)
				s.logger.Warn("discarding malformed frame", "error", err)
				continue
			}

			switch frame.Type {
			case FrameConnectionAck:
				return nil
			case FramePing:
				if err := s.write(client, Frame{Type: FramePong}); err != nil {
					s.logger.Debug("failed to send pong", "error", err)
				}
			}
		}
	}
}

// run serves the current connection and reconnects whenever it fails.
func (s *Session) run(ctx context.Context, client Client, done chan struct{}) {
	defer s.wg.Done()
	defer close(done)
	defer s.release(ctx)

	for {
		err := s.serve(ctx, client)
		s.teardown()

		if ctx.Err() != nil {
			return
		}

		s.logger.Warn("connection lost", "error", err)

		client = s.reconnect(ctx)
		if client == nil {
			return
		}
	}
}

// serve processes inbound frames until the connection fails or ctx is done.
func (s *Session) serve(ctx context.Context, client Client) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-client.Errors():
			return err
		case msg := <-client.Messages():
			s.handleFrame(client, msg)
		}
	}
}

// reconnect retries establish with exponential backoff. The first attempt is
// immediate. Returns nil once ctx is cancelled.
func (s *Session) reconnect(ctx context.Context) Client {
	var wait time.Duration

	for attempt := 1; ; attempt++ {
		if wait > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(wait):
			}
		}
		if ctx.Err() != nil {
			return nil
		}

		s.logger.Info("attempting reconnection", "attempt", attempt)

		client, err := s.establish(ctx)
		if err == nil {
			s.reconnects.Add(1)
			s.logger.Info("reconnected",
				"attempt", attempt,
				"topics", s.registry.Len(),
			)
			return client
		}

		s.logger.Warn("reconnection failed",
			"attempt", attempt,
			"error", err,
		)

		// Exponential backoff
		if wait == 0 {
			wait = s.cfg.ReconnectBaseWait
		} else {
			wait *= 2
		}
		if wait > s.cfg.ReconnectMaxWait {
			wait = s.cfg.ReconnectMaxWait
		}
	}
}

// teardown stops the keep-alive and closes the current connection, if any.
func (s *Session) teardown() {
	s.mu.Lock()
	client := s.client
	stop := s.stopKeepAlive
	s.client = nil
	s.stopKeepAlive = nil
	s.state = stateDisconnected
	s.mu.Unlock()

	if stop != nil {
		stop()
	}
	if client != nil {
		client.Close()
	}
}

// keepAlive pings on every interval and drops the connection when nothing
// has been received for longer than PongTimeout.
func (s *Session) keepAlive(ctx context.Context, client Client) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.KeepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.write(client, Frame{Type: FramePing}); err != nil {
				s.logger.Debug("failed to send ping", "error", err)
			}

			if s.cfg.PongTimeout <= 0 {
				continue
			}

			last := time.Unix(0, s.lastFrame.Load())
			if time.Since(last) > s.cfg.PongTimeout {
				s.logger.Warn("no inbound frames, connection stale",
					"last_frame", last,
					"timeout", s.cfg.PongTimeout,
				)
				client.ForceDisconnect(ErrStaleConnection)
				return
			}
		}
	}
}

// handleFrame processes one inbound frame of an open connection.
func (s *Session) handleFrame(client Client, msg TimestampedMessage) {
	s.framesReceived.Add(1)
	s.touch(msg.ReceivedAt)

	frame, err := parseFrame(msg.Data)
	if err != nil {
		s.parseErrors.Add(1)
		s.logger.Warn("discarding malformed frame",
			"error", err,
			"bytes", len(msg.Data),
		)
		return
	}

	switch frame.Type {
	case FramePong, FrameConnectionAck:
		// Liveness is already recorded by touch.
	case FramePing:
		if err := s.write(client, Frame{Type: FramePong}); err != nil {
			s.logger.Debug("failed to send pong", "error", err)
		}
	case FrameNext:
		s.handleNext(frame)
	case FrameError:
		topic, _ := s.registry.Resolve(frame.ID)
		s.logger.Warn("subscription error",
			"request_id", frame.ID,
			"topic", topic,
			"payload", string(frame.Payload),
		)
	case FrameComplete:
		topic, _ := s.registry.Resolve(frame.ID)
		s.logger.Info("subscription completed by server",
			"request_id", frame.ID,
			"topic", topic,
		)
	}
}

// handleNext decodes an event frame and forwards it under its resolved topic.
func (s *Session) handleNext(frame Frame) {
	var payload nextPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		s.parseErrors.Add(1)
		s.logger.Warn("discarding malformed next payload", "request_id", frame.ID, "error", err)
		return
	}

	raw, ok := payload.Data[EventField]
	if !ok || len(raw) == 0 || string(raw) == "null" {
		if len(payload.Errors) > 0 {
			s.logger.Warn("next frame carried errors",
				"request_id", frame.ID,
				"error", payload.Errors[0].Message,
			)
		}
		return
	}

	topic, ok := s.registry.Resolve(frame.ID)
	if !ok {
		s.unresolved.Add(1)
		s.logger.Debug("dropping event for unknown request id", "request_id", frame.ID)
		return
	}

	sale, err := model.DecodeSale(raw)
	if err != nil {
		s.parseErrors.Add(1)
		s.logger.Warn("discarding undecodable event",
			"topic", topic,
			"request_id", frame.ID,
			"error", err,
		)
		return
	}

	s.eventsRouted.Add(1)
	if s.sink != nil {
		s.sink.Dispatch(topic, sale)
	}
}

// write marshals frame and sends it on client regardless of session state.
func (s *Session) write(client Client, frame Frame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	return client.Send(data)
}

func (s *Session) touch(t time.Time) {
	s.lastFrame.Store(t.UnixNano())
}

func (s *Session) clientConfig() ClientConfig {
	return ClientConfig{
		URL:          s.cfg.URL,
		APIKey:       s.cfg.APIKey,
		APIKeyHeader: s.cfg.APIKeyHeader,
		Subprotocol:  s.cfg.Subprotocol,
		WriteTimeout: s.cfg.WriteTimeout,
		BufferSize:   s.cfg.BufferSize,
	}
}

// parseFrame decodes the envelope of a frame. Only the presence of "type" is checked.
func parseFrame(data []byte) (Frame, error) {
	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		return Frame{}, fmt.Errorf("unmarshal frame: %w", err)
	}
	if frame.Type == "" {
		return Frame{}, errors.New("frame has no type")
	}
	return frame, nil
}
