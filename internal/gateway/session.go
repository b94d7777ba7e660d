package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/qqgate/qqgate/internal/account"
	"github.com/qqgate/qqgate/internal/api"
	"github.com/qqgate/qqgate/internal/status"
	"github.com/qqgate/qqgate/internal/token"
	"github.com/qqgate/qqgate/pkg/pluginsdk"
)

const (
	defaultInitialBackoff = 1 * time.Second
	defaultMaxBackoff     = 60 * time.Second
	// A connection that survived this long resets the backoff ladder.
	defaultStableAfter = 5 * time.Minute

	writeWait = 10 * time.Second
)

// errReconnect asks the run loop to reconnect and resume rather than
// re-identify.
var errReconnect = errors.New("server requested reconnect")

// ErrAlreadyRunning reports a second Run on the same session.
var ErrAlreadyRunning = errors.New("session already running")

// resumeState is what survives across process restarts so a session can be
// resumed instead of re-identified.
type resumeState struct {
	SessionID string `json:"session_id"`
	Seq       int64  `json:"seq"`
}

// Session owns one account's gateway connection. It is the sole writer of
// the account's status entry. Create with NewSession, drive with Run.
type Session struct {
	acct    account.Config
	client  api.Client
	tokens  *token.Cache
	store   *status.Store
	handler pluginsdk.MessageHandler
	logger  *slog.Logger

	dialer         *websocket.Dialer
	stateDir       string
	initialBackoff time.Duration
	maxBackoff     time.Duration
	stableAfter    time.Duration

	mu      sync.Mutex
	running bool
	resume  resumeState

	writeMu sync.Mutex // serializes frames from the read loop and heartbeat
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithDialer overrides the websocket dialer.
func WithDialer(d *websocket.Dialer) SessionOption {
	return func(s *Session) { s.dialer = d }
}

// WithBackoff overrides the reconnect backoff bounds.
func WithBackoff(initial, max time.Duration) SessionOption {
	return func(s *Session) { s.initialBackoff, s.maxBackoff = initial, max }
}

// WithStableAfter overrides how long a connection must hold before the
// backoff ladder resets.
func WithStableAfter(d time.Duration) SessionOption {
	return func(s *Session) { s.stableAfter = d }
}

// WithStateDir sets where resume state is persisted. Empty disables
// persistence.
func WithStateDir(dir string) SessionOption {
	return func(s *Session) { s.stateDir = dir }
}

// NewSession creates a session for one account. The handler may be nil, in
// which case inbound events are logged and dropped.
func NewSession(acct account.Config, client api.Client, tokens *token.Cache, store *status.Store, handler pluginsdk.MessageHandler, logger *slog.Logger, opts ...SessionOption) *Session {
	s := &Session{
		acct:           acct,
		client:         client,
		tokens:         tokens,
		store:          store,
		handler:        handler,
		logger:         logger.With("component", "gateway", "account", acct.AccountID),
		dialer:         websocket.DefaultDialer,
		initialBackoff: defaultInitialBackoff,
		maxBackoff:     defaultMaxBackoff,
		stableAfter:    defaultStableAfter,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run connects and keeps the session alive until ctx is cancelled,
// reconnecting on failures with bounded exponential backoff. It returns nil
// on cancellation; any other return is a non-retryable setup failure.
func (s *Session) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		s.store.SetClosed(s.acct.AccountID)
	}()

	if !s.acct.Configured() {
		return fmt.Errorf("account %s: no credentials configured", s.acct.AccountID)
	}

	s.store.SetRunning(s.acct.AccountID)
	s.loadResumeState()

	backoff := s.initialBackoff
	for {
		started := time.Now()
		err := s.connectOnce(ctx)
		if ctx.Err() != nil {
			s.logger.Info("session stopped")
			return nil
		}

		if time.Since(started) >= s.stableAfter {
			backoff = s.initialBackoff
		}

		if err != nil && !errors.Is(err, errReconnect) {
			s.store.SetError(s.acct.AccountID, err.Error())
			s.logger.Warn("connection lost", "error", err, "retryIn", backoff)
		} else {
			s.logger.Info("reconnecting", "retryIn", backoff)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > s.maxBackoff {
			backoff = s.maxBackoff
		}
	}
}

// connectOnce performs one full connection lifecycle: authenticate, dial,
// handshake, then pump frames until the connection drops or ctx cancels.
func (s *Session) connectOnce(ctx context.Context) error {
	tok, err := s.tokens.Get(ctx, s.acct.AppID, s.acct.ClientSecret)
	if err != nil {
		return fmt.Errorf("access token: %w", err)
	}

	wsURL, err := s.client.GetGatewayURL(ctx, tok.Value)
	if err != nil {
		if api.IsAuthError(err) {
			s.tokens.Invalidate(s.acct.AppID, s.acct.ClientSecret)
		}
		return fmt.Errorf("gateway url: %w", err)
	}

	conn, _, err := s.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial gateway: %w", err)
	}
	defer conn.Close()

	// Close the socket when ctx cancels so the blocking read returns.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	hello, err := s.readHello(conn)
	if err != nil {
		return err
	}
	interval := time.Duration(hello.HeartbeatInterval) * time.Millisecond
	if interval <= 0 {
		interval = 30 * time.Second
	}

	if err := s.handshake(conn, tok.Value); err != nil {
		return err
	}

	heartbeatDone := make(chan struct{})
	defer close(heartbeatDone)
	go s.heartbeatLoop(conn, interval, heartbeatDone)

	return s.readLoop(conn, interval)
}

func (s *Session) readHello(conn *websocket.Conn) (helloData, error) {
	conn.SetReadDeadline(time.Now().Add(writeWait))
	var frame payload
	if err := conn.ReadJSON(&frame); err != nil {
		return helloData{}, fmt.Errorf("read hello: %w", err)
	}
	if frame.Op != OpHello {
		return helloData{}, fmt.Errorf("expected hello, got op %d", frame.Op)
	}
	var hello helloData
	if err := json.Unmarshal(frame.Data, &hello); err != nil {
		return helloData{}, fmt.Errorf("decode hello: %w", err)
	}
	return hello, nil
}

// handshake sends Resume when persisted state exists, Identify otherwise.
func (s *Session) handshake(conn *websocket.Conn, tok string) error {
	s.mu.Lock()
	resume := s.resume
	s.mu.Unlock()

	botToken := "QQBot " + tok
	if resume.SessionID != "" {
		s.logger.Debug("resuming session", "sessionId", resume.SessionID, "seq", resume.Seq)
		return s.writeFrame(conn, OpResume, resumeData{
			Token:     botToken,
			SessionID: resume.SessionID,
			Seq:       resume.Seq,
		})
	}

	intents := s.acct.Intents
	if intents == 0 {
		intents = DefaultIntents
	}
	return s.writeFrame(conn, OpIdentify, identifyData{
		Token:   botToken,
		Intents: intents,
		Shard:   [2]int{0, 1},
		Properties: map[string]string{
			"$os": "linux",
		},
	})
}

func (s *Session) heartbeatLoop(conn *websocket.Conn, interval time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			s.mu.Lock()
			seq := s.resume.Seq
			s.mu.Unlock()
			if err := s.writeFrame(conn, OpHeartbeat, seq); err != nil {
				// The read loop will observe the broken connection.
				return
			}
		}
	}
}

// readLoop pumps server frames until the connection drops. The read
// deadline doubles as a liveness check: heartbeat ACKs and dispatches both
// push it forward.
func (s *Session) readLoop(conn *websocket.Conn, interval time.Duration) error {
	deadline := interval * 2
	for {
		conn.SetReadDeadline(time.Now().Add(deadline))
		var frame payload
		if err := conn.ReadJSON(&frame); err != nil {
			return fmt.Errorf("read frame: %w", err)
		}

		switch frame.Op {
		case OpDispatch:
			s.mu.Lock()
			if frame.Seq > s.resume.Seq {
				s.resume.Seq = frame.Seq
			}
			s.mu.Unlock()
			s.handleDispatch(frame)

		case OpHeartbeatACK:
			// Deadline already advanced above.

		case OpHeartbeat:
			// Server may request an immediate heartbeat.
			s.mu.Lock()
			seq := s.resume.Seq
			s.mu.Unlock()
			if err := s.writeFrame(conn, OpHeartbeat, seq); err != nil {
				return err
			}

		case OpReconnect:
			s.saveResumeState()
			return errReconnect

		case OpInvalidSession:
			// Resume rejected; drop state and identify fresh next time.
			s.mu.Lock()
			s.resume = resumeState{}
			s.mu.Unlock()
			s.clearResumeState()
			return errors.New("session invalidated by server")

		default:
			s.logger.Debug("ignoring frame", "op", frame.Op)
		}
	}
}

func (s *Session) handleDispatch(frame payload) {
	switch frame.Type {
	case eventReady:
		var ready readyData
		if err := json.Unmarshal(frame.Data, &ready); err != nil {
			s.logger.Warn("malformed ready payload", "error", err)
			return
		}
		s.mu.Lock()
		s.resume.SessionID = ready.SessionID
		s.mu.Unlock()
		s.saveResumeState()
		s.store.SetConnected(s.acct.AccountID, time.Now())
		s.logger.Info("gateway connected", "sessionId", ready.SessionID, "bot", ready.User.Username)

	case eventResumed:
		s.store.SetConnected(s.acct.AccountID, time.Now())
		s.logger.Info("gateway session resumed")

	case eventC2CMessage, eventGroupAtMessage, eventAtMessage, eventDirectMessage:
		s.handleMessage(frame.Type, frame.Data)

	default:
		s.logger.Debug("unhandled event", "type", frame.Type)
	}
}

// handleMessage normalizes a platform message event and hands it to the
// host. Delivery runs async so a slow handler never stalls the read loop.
func (s *Session) handleMessage(eventType string, data json.RawMessage) {
	var ev messageEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		s.logger.Warn("malformed message event", "type", eventType, "error", err)
		return
	}

	msg := pluginsdk.IncomingMessage{
		ChannelName: "qq",
		AccountID:   s.acct.AccountID,
		MessageID:   ev.ID,
		Text:        ev.Content,
		Timestamp:   eventTimestamp(ev.Timestamp),
	}

	switch eventType {
	case eventC2CMessage:
		msg.Surface = "direct"
		msg.SenderID = ev.Author.UserOpenID
		msg.ConversationID = "c2c:" + ev.Author.UserOpenID
	case eventGroupAtMessage:
		msg.Surface = "group"
		msg.SenderID = ev.Author.MemberOpenID
		msg.ConversationID = "group:" + ev.GroupOpenID
	case eventAtMessage, eventDirectMessage:
		msg.Surface = "channel"
		msg.SenderID = ev.Author.ID
		msg.ConversationID = "channel:" + ev.ChannelID
	}

	if s.handler == nil {
		s.logger.Debug("no message handler registered, dropping event",
			"type", eventType, "messageId", ev.ID)
		return
	}
	go s.handler(msg)
}

func (s *Session) writeFrame(conn *websocket.Conn, op OpCode, data any) error {
	frame, err := newPayload(op, data)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(frame)
}

func (s *Session) statePath() string {
	if s.stateDir == "" {
		return ""
	}
	return filepath.Join(s.stateDir, "qq-"+s.acct.AccountID+".json")
}

func (s *Session) loadResumeState() {
	path := s.statePath()
	if path == "" {
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	var st resumeState
	if err := json.Unmarshal(data, &st); err != nil {
		return
	}
	s.mu.Lock()
	s.resume = st
	s.mu.Unlock()
}

func (s *Session) saveResumeState() {
	path := s.statePath()
	if path == "" {
		return
	}
	s.mu.Lock()
	st := s.resume
	s.mu.Unlock()
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		s.logger.Warn("failed to persist resume state", "error", err)
	}
}

func (s *Session) clearResumeState() {
	if path := s.statePath(); path != "" {
		os.Remove(path)
	}
}
