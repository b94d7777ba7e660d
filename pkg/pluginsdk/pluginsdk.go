// Package pluginsdk defines the public contract between the host runtime
// and messaging channel plugins. Channel adapters implement this interface;
// the host owns lifecycle timing and persisted configuration storage.
package pluginsdk

import (
	"context"
	"time"
)

// Channel is the interface a channel plugin exposes to the host runtime.
type Channel interface {
	// Name returns the channel identifier (e.g., "qq").
	Name() string

	// Info returns static registration metadata for the plugin.
	Info() ChannelInfo

	// Accounts returns the configured account ids, "default" first.
	Accounts() []string

	// ResolveAccount returns the effective configuration for an account.
	ResolveAccount(accountID string) (AccountSnapshot, error)

	// ApplyAccountConfig merges a credential/settings patch into the
	// targeted account block without touching sibling fields.
	ApplyAccountConfig(accountID string, patch AccountPatch) error

	// StartAccount starts the inbound gateway session for an account.
	// The session runs until ctx is cancelled.
	StartAccount(ctx context.Context, accountID string) error

	// StopAccount tears down the account's gateway session.
	StopAccount(accountID string) error

	// Status returns the current session status snapshot for an account.
	Status(accountID string) (SessionStatus, bool)

	// Send routes an outbound message and reports a uniform outcome.
	// Transport failures are carried in the result, never returned as errors.
	Send(ctx context.Context, accountID string, msg OutgoingMessage) SendResult

	// SetMessageHandler registers the host callback for inbound messages.
	SetMessageHandler(h MessageHandler)
}

// ChannelInfo contains registration metadata about a channel plugin.
// Pure data, consumed by the host's plugin registry and menus.
type ChannelInfo struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	AuthType    string   `json:"authType"` // "token", "oauth", "qr", "none"
	ConfigKeys  []string `json:"configKeys"`
	MultiAgent  bool     `json:"multiAgent"`
	Description string   `json:"description"`
}

// AccountSnapshot is the host-visible view of a resolved account.
// Secrets are reported only as presence, never as values.
type AccountSnapshot struct {
	AccountID    string `json:"accountId"`
	Enabled      bool   `json:"enabled"`
	Configured   bool   `json:"configured"`
	Name         string `json:"name,omitempty"`
	SecretSource string `json:"secretSource"`
}

// AccountPatch carries the fields of an account write. Nil pointers mean
// "leave unchanged"; the write must be idempotent.
type AccountPatch struct {
	AppID        *string `json:"appId,omitempty"`
	ClientSecret *string `json:"clientSecret,omitempty"`
	Name         *string `json:"name,omitempty"`
	Enabled      *bool   `json:"enabled,omitempty"`
}

// SessionStatus is the live state of one account's gateway session.
type SessionStatus struct {
	AccountID       string     `json:"accountId"`
	Running         bool       `json:"running"`
	Connected       bool       `json:"connected"`
	LastConnectedAt *time.Time `json:"lastConnectedAt,omitempty"`
	LastError       string     `json:"lastError,omitempty"`
}

// OutgoingMessage is a message the host wants delivered.
type OutgoingMessage struct {
	// To is the destination address: "c2c:<id>", "group:<id>",
	// "channel:<id>", or a bare user openid.
	To        string `json:"to"`
	Text      string `json:"text"`
	ReplyToID string `json:"replyToId,omitempty"`
}

// SendResult is the uniform outcome of an outbound send. Exactly one of
// MessageID or Error is set.
type SendResult struct {
	MessageID string `json:"messageId,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Error     string `json:"error,omitempty"`
}

// IncomingMessage is a normalized inbound event handed to the host.
type IncomingMessage struct {
	ChannelName    string `json:"channelName"`
	AccountID      string `json:"accountId"`
	Surface        string `json:"surface"` // "direct", "group", "channel"
	ConversationID string `json:"conversationId"`
	SenderID       string `json:"senderId"`
	MessageID      string `json:"messageId"`
	Text           string `json:"text"`
	Timestamp      int64  `json:"timestamp"`
}

// MessageHandler is the host callback for inbound messages.
type MessageHandler func(msg IncomingMessage)
