// Package dispatch routes outbound messages to the correct QQ send
// operation and normalizes every result into a uniform outcome.
package dispatch

import (
	"context"
	"log/slog"

	"github.com/qqgate/qqgate/internal/account"
	"github.com/qqgate/qqgate/internal/api"
	"github.com/qqgate/qqgate/internal/target"
	"github.com/qqgate/qqgate/internal/token"
)

// ErrNotConfigured is the outcome error for accounts without credentials.
const ErrNotConfigured = "not configured"

// Outcome is the uniform result of a dispatch. Exactly one of MessageID or
// Error is set.
type Outcome struct {
	MessageID string `json:"messageId,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Error     string `json:"error,omitempty"`
}

// OK reports whether the dispatch succeeded.
func (o Outcome) OK() bool { return o.Error == "" }

// Dispatcher selects and invokes the correct send operation per target
// surface and reply context. It holds no state of its own beyond its
// collaborators and is safe for concurrent use.
type Dispatcher struct {
	client api.Client
	tokens *token.Cache
	logger *slog.Logger
}

// NewDispatcher creates a dispatcher over the given API client and token
// cache.
func NewDispatcher(client api.Client, tokens *token.Cache, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		client: client,
		tokens: tokens,
		logger: logger.With("component", "dispatch"),
	}
}

// Send delivers text to the destination address. With replyToID set it uses
// the passive reply operation for the target's surface; without it, the
// quota-limited proactive operation (the channel surface has no proactive
// analogue and falls back to a plain send). Expected failures — missing
// credentials, malformed targets, auth, transport, and quota errors — are
// all carried in the outcome; this method never returns an error to the
// caller.
func (d *Dispatcher) Send(ctx context.Context, acct account.Config, to, text, replyToID string) Outcome {
	if !acct.Configured() {
		return Outcome{Error: ErrNotConfigured}
	}

	tok, err := d.tokens.Get(ctx, acct.AppID, acct.ClientSecret)
	if err != nil {
		d.logger.Warn("token issuance failed",
			"account", acct.AccountID,
			"error", err,
		)
		return Outcome{Error: err.Error()}
	}

	tgt, err := target.Parse(to)
	if err != nil {
		return Outcome{Error: err.Error()}
	}

	var result *api.MessageResult
	if replyToID != "" {
		result, err = d.sendReply(ctx, tok.Value, tgt, text, replyToID)
	} else {
		result, err = d.sendProactive(ctx, tok.Value, tgt, text)
	}
	if err != nil {
		if api.IsAuthError(err) {
			// Let the next call reissue instead of replaying a dead token.
			d.tokens.Invalidate(acct.AppID, acct.ClientSecret)
		}
		d.logger.Warn("send failed",
			"account", acct.AccountID,
			"surface", tgt.Surface,
			"quota", api.IsQuotaError(err),
			"error", err,
		)
		return Outcome{Error: err.Error()}
	}

	d.logger.Debug("message sent",
		"account", acct.AccountID,
		"surface", tgt.Surface,
		"messageId", result.ID,
	)
	return Outcome{MessageID: result.ID, Timestamp: result.Timestamp.String()}
}

func (d *Dispatcher) sendReply(ctx context.Context, tok string, tgt target.Target, text, replyToID string) (*api.MessageResult, error) {
	switch tgt.Surface {
	case target.SurfaceGroup:
		return d.client.SendGroupMessage(ctx, tok, tgt.ID, text, replyToID)
	case target.SurfaceChannel:
		return d.client.SendChannelMessage(ctx, tok, tgt.ID, text, replyToID)
	default:
		return d.client.SendC2CMessage(ctx, tok, tgt.ID, text, replyToID)
	}
}

func (d *Dispatcher) sendProactive(ctx context.Context, tok string, tgt target.Target, text string) (*api.MessageResult, error) {
	switch tgt.Surface {
	case target.SurfaceGroup:
		return d.client.SendProactiveGroupMessage(ctx, tok, tgt.ID, text)
	case target.SurfaceChannel:
		// No proactive channel operation exists; a plain send without a
		// reply id is the equivalent.
		return d.client.SendChannelMessage(ctx, tok, tgt.ID, text, "")
	default:
		return d.client.SendProactiveC2CMessage(ctx, tok, tgt.ID, text)
	}
}
