// Package channel implements the QQ channel plugin: the glue between the
// host-facing contract and the account, token, dispatch, gateway, and
// status machinery.
package channel

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/qqgate/qqgate/internal/account"
	"github.com/qqgate/qqgate/internal/api"
	"github.com/qqgate/qqgate/internal/config"
	"github.com/qqgate/qqgate/internal/dispatch"
	"github.com/qqgate/qqgate/internal/gateway"
	"github.com/qqgate/qqgate/internal/status"
	"github.com/qqgate/qqgate/internal/token"
	"github.com/qqgate/qqgate/pkg/pluginsdk"
)

// Name is the channel identifier.
const Name = "qq"

// QQ implements pluginsdk.Channel for the QQ bot platform.
type QQ struct {
	cfgCache   *config.Cache
	env        config.EnvSource
	client     api.Client
	tokens     *token.Cache
	dispatcher *dispatch.Dispatcher
	store      *status.Store
	logger     *slog.Logger
	stateDir   string

	mu       sync.Mutex
	handler  pluginsdk.MessageHandler
	sessions map[string]context.CancelFunc
	done     map[string]chan struct{}
}

// Option configures a QQ channel.
type Option func(*QQ)

// WithAPIClient overrides the platform API client.
func WithAPIClient(client api.Client) Option {
	return func(q *QQ) { q.client = client }
}

// WithEnv overrides the environment source.
func WithEnv(env config.EnvSource) Option {
	return func(q *QQ) { q.env = env }
}

// WithStateDir overrides where gateway resume state is persisted.
func WithStateDir(dir string) Option {
	return func(q *QQ) { q.stateDir = dir }
}

// New creates the QQ channel over a shared config cache.
func New(cfgCache *config.Cache, logger *slog.Logger, opts ...Option) *QQ {
	q := &QQ{
		cfgCache: cfgCache,
		env:      config.OSEnv{},
		client:   api.NewHTTPClient(),
		store:    status.NewStore(),
		logger:   logger.With("component", "channel", "channel", Name),
		stateDir: config.StateDir(),
		sessions: make(map[string]context.CancelFunc),
		done:     make(map[string]chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	q.tokens = token.NewCache(q.client)
	q.dispatcher = dispatch.NewDispatcher(q.client, q.tokens, logger)
	return q
}

// Name implements pluginsdk.Channel.
func (q *QQ) Name() string { return Name }

// Info implements pluginsdk.Channel.
func (q *QQ) Info() pluginsdk.ChannelInfo {
	return pluginsdk.ChannelInfo{
		ID:          Name,
		Name:        "QQ",
		AuthType:    "token",
		ConfigKeys:  []string{"appId", "clientSecret", "appIdFile", "clientSecretFile", "name", "enabled"},
		MultiAgent:  true,
		Description: "QQ official bot API (c2c, group, and guild channel messages)",
	}
}

func (q *QQ) qqConfig() *config.QQConfig {
	return &q.cfgCache.Get().Channels.QQ
}

// Accounts implements pluginsdk.Channel.
func (q *QQ) Accounts() []string {
	return account.ListAccountIDs(q.qqConfig())
}

// ResolveAccount implements pluginsdk.Channel. Secrets never leave the
// adapter; the snapshot reports presence and provenance only.
func (q *QQ) ResolveAccount(accountID string) (pluginsdk.AccountSnapshot, error) {
	acct, err := account.Resolve(q.qqConfig(), q.env, accountID)
	if err != nil {
		return pluginsdk.AccountSnapshot{}, err
	}
	return pluginsdk.AccountSnapshot{
		AccountID:    acct.AccountID,
		Enabled:      acct.Enabled,
		Configured:   acct.Configured(),
		Name:         acct.Name,
		SecretSource: string(acct.SecretSource),
	}, nil
}

// ApplyAccountConfig implements pluginsdk.Channel. The patch is merged into
// the on-disk config and the cache updated in step.
func (q *QQ) ApplyAccountConfig(accountID string, patch pluginsdk.AccountPatch) error {
	cfg := q.cfgCache.Get()
	err := account.Apply(&cfg.Channels.QQ, accountID, account.Patch{
		AppID:        patch.AppID,
		ClientSecret: patch.ClientSecret,
		Name:         patch.Name,
		Enabled:      patch.Enabled,
	})
	if err != nil {
		return err
	}
	if err := config.Save(cfg); err != nil {
		return err
	}
	q.cfgCache.Set(cfg)
	return nil
}

// StartAccount implements pluginsdk.Channel. At most one session runs per
// account; the session lives until ctx cancels or StopAccount is called.
func (q *QQ) StartAccount(ctx context.Context, accountID string) error {
	acct, err := account.Resolve(q.qqConfig(), q.env, accountID)
	if err != nil {
		return err
	}
	if !acct.Enabled {
		return fmt.Errorf("account %s is disabled", accountID)
	}
	if !acct.Configured() {
		return fmt.Errorf("account %s has no credentials configured", accountID)
	}

	q.mu.Lock()
	if _, running := q.sessions[accountID]; running {
		// One live session per account; a second start is a no-op.
		q.mu.Unlock()
		return nil
	}
	sessCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	q.sessions[accountID] = cancel
	q.done[accountID] = done
	handler := q.handler
	q.mu.Unlock()

	sess := gateway.NewSession(acct, q.client, q.tokens, q.store, q.wrapHandler(handler), q.logger,
		gateway.WithStateDir(q.stateDir))

	go func() {
		defer close(done)
		defer func() {
			q.mu.Lock()
			delete(q.sessions, accountID)
			delete(q.done, accountID)
			q.mu.Unlock()
		}()
		if err := sess.Run(sessCtx); err != nil {
			q.logger.Error("gateway session ended", "account", accountID, "error", err)
			q.store.SetError(accountID, err.Error())
			q.store.SetClosed(accountID)
		}
	}()
	return nil
}

// wrapHandler defers handler lookup to delivery time so a handler registered
// after StartAccount still receives messages.
func (q *QQ) wrapHandler(initial pluginsdk.MessageHandler) pluginsdk.MessageHandler {
	return func(msg pluginsdk.IncomingMessage) {
		q.mu.Lock()
		h := q.handler
		q.mu.Unlock()
		if h == nil {
			h = initial
		}
		if h != nil {
			h(msg)
		}
	}
}

// StopAccount implements pluginsdk.Channel. Blocks until the session has
// fully shut down.
func (q *QQ) StopAccount(accountID string) error {
	q.mu.Lock()
	cancel, ok := q.sessions[accountID]
	done := q.done[accountID]
	q.mu.Unlock()
	if !ok {
		return fmt.Errorf("account %s is not running", accountID)
	}
	cancel()
	<-done
	return nil
}

// StopAll tears down every running session.
func (q *QQ) StopAll() {
	q.mu.Lock()
	ids := make([]string, 0, len(q.sessions))
	for id := range q.sessions {
		ids = append(ids, id)
	}
	q.mu.Unlock()
	for _, id := range ids {
		q.StopAccount(id)
	}
}

// Status implements pluginsdk.Channel.
func (q *QQ) Status(accountID string) (pluginsdk.SessionStatus, bool) {
	sess, ok := q.store.Get(accountID)
	if !ok {
		return pluginsdk.SessionStatus{}, false
	}
	return pluginsdk.SessionStatus{
		AccountID:       sess.AccountID,
		Running:         sess.Running,
		Connected:       sess.Connected,
		LastConnectedAt: sess.LastConnectedAt,
		LastError:       sess.LastError,
	}, true
}

// StatusStore exposes the live status store for the local status API.
func (q *QQ) StatusStore() *status.Store { return q.store }

// Send implements pluginsdk.Channel. Every failure, from resolution to
// transport, is carried in the result.
func (q *QQ) Send(ctx context.Context, accountID string, msg pluginsdk.OutgoingMessage) pluginsdk.SendResult {
	acct, err := account.Resolve(q.qqConfig(), q.env, accountID)
	if err != nil {
		return pluginsdk.SendResult{Error: err.Error()}
	}
	out := q.dispatcher.Send(ctx, acct, msg.To, msg.Text, msg.ReplyToID)
	return pluginsdk.SendResult{
		MessageID: out.MessageID,
		Timestamp: out.Timestamp,
		Error:     out.Error,
	}
}

// SetMessageHandler implements pluginsdk.Channel.
func (q *QQ) SetMessageHandler(h pluginsdk.MessageHandler) {
	q.mu.Lock()
	q.handler = h
	q.mu.Unlock()
}

var _ pluginsdk.Channel = (*QQ)(nil)
