// Package api wraps the QQ bot open API. The rest of the adapter consumes
// the Client interface; the HTTP implementation lives in http.go and tests
// substitute fakes.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Client is the platform API surface the adapter depends on. Every call is
// a fallible remote call; no retry policy is implied here.
type Client interface {
	// GetAccessToken issues an app access token for a credential pair.
	GetAccessToken(ctx context.Context, appID, clientSecret string) (token string, expiresIn time.Duration, err error)

	// GetGatewayURL returns the websocket gateway endpoint for this bot.
	GetGatewayURL(ctx context.Context, token string) (string, error)

	// Passive replies, bound to an inbound message id. Not quota-limited.
	SendC2CMessage(ctx context.Context, token, openID, text, replyToID string) (*MessageResult, error)
	SendGroupMessage(ctx context.Context, token, groupOpenID, text, replyToID string) (*MessageResult, error)
	SendChannelMessage(ctx context.Context, token, channelID, text, replyToID string) (*MessageResult, error)

	// Proactive sends, subject to the platform's per-recipient monthly
	// quota. There is no proactive channel send; channel messages without
	// a reply id go through SendChannelMessage with an empty replyToID.
	SendProactiveC2CMessage(ctx context.Context, token, openID, text string) (*MessageResult, error)
	SendProactiveGroupMessage(ctx context.Context, token, groupOpenID, text string) (*MessageResult, error)
}

// MessageResult is the platform's acknowledgement of a sent message.
type MessageResult struct {
	ID        string   `json:"id"`
	Timestamp FlexTime `json:"timestamp"`
}

// FlexTime absorbs the API's habit of returning timestamps as either a
// string or a number depending on the endpoint.
type FlexTime string

// UnmarshalJSON accepts both string and numeric timestamps.
func (t *FlexTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*t = FlexTime(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*t = FlexTime(n.String())
	return nil
}

func (t FlexTime) String() string { return string(t) }

// Error is the platform's error envelope.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	TraceID string `json:"-"`
}

func (e *Error) Error() string {
	if e.TraceID != "" {
		return fmt.Sprintf("qq api error %d: %s (trace %s)", e.Code, e.Message, e.TraceID)
	}
	return fmt.Sprintf("qq api error %d: %s", e.Code, e.Message)
}

// Platform error codes the adapter cares about.
const (
	// CodeTokenExpired and friends mean the access token must be reissued.
	CodeTokenExpired   = 11244
	CodeTokenInvalid   = 11243
	CodeAuthFailed     = 100007
	codeQuotaMonthly   = 304023
	codeQuotaFreq      = 304024
	codeQuotaProactive = 40054001
)

// IsAuthError reports whether err is a token rejection that warrants
// invalidating the cached token.
func IsAuthError(err error) bool {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.Code {
	case CodeTokenExpired, CodeTokenInvalid, CodeAuthFailed:
		return true
	}
	return false
}

// IsQuotaError reports whether err is the platform's proactive
// send-frequency limit. Not locally predictable; only reported after the
// fact.
func IsQuotaError(err error) bool {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.Code {
	case codeQuotaMonthly, codeQuotaFreq, codeQuotaProactive:
		return true
	}
	return false
}

// expiresInSeconds tolerates "expires_in" arriving as string or number.
func expiresInSeconds(raw json.RawMessage) (time.Duration, error) {
	var n int64
	if err := json.Unmarshal(raw, &n); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("unexpected expires_in: %s", string(raw))
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("unexpected expires_in %q: %w", s, err)
	}
	return time.Duration(n) * time.Second, nil
}
