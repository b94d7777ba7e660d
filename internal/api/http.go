package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const (
	defaultTokenURL = "https://bots.qq.com/app/getAppAccessToken"
	defaultAPIBase  = "https://api.sgroup.qq.com"
)

// HTTPClient is the real Client implementation over net/http.
type HTTPClient struct {
	httpClient *http.Client
	tokenURL   string
	apiBase    string
}

// Option configures an HTTPClient.
type Option func(*HTTPClient)

// WithBaseURLs overrides the token and API endpoints, used against sandbox
// environments and in tests.
func WithBaseURLs(tokenURL, apiBase string) Option {
	return func(c *HTTPClient) {
		c.tokenURL = tokenURL
		c.apiBase = apiBase
	}
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *HTTPClient) { c.httpClient = hc }
}

// NewHTTPClient creates a Client against the production QQ endpoints.
func NewHTTPClient(opts ...Option) *HTTPClient {
	c := &HTTPClient{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		tokenURL:   defaultTokenURL,
		apiBase:    defaultAPIBase,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetAccessToken implements Client.
func (c *HTTPClient) GetAccessToken(ctx context.Context, appID, clientSecret string) (string, time.Duration, error) {
	reqBody, _ := json.Marshal(map[string]string{
		"appId":        appID,
		"clientSecret": clientSecret,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, bytes.NewReader(reqBody))
	if err != nil {
		return "", 0, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", 0, fmt.Errorf("read token response: %w", err)
	}

	var payload struct {
		AccessToken string          `json:"access_token"`
		ExpiresIn   json.RawMessage `json:"expires_in"`
		Code        int             `json:"code"`
		Message     string          `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", 0, fmt.Errorf("parse token response: %w", err)
	}
	if payload.AccessToken == "" {
		code := payload.Code
		if code == 0 {
			code = CodeAuthFailed
		}
		msg := payload.Message
		if msg == "" {
			msg = fmt.Sprintf("token issuance failed (http %d)", resp.StatusCode)
		}
		return "", 0, &Error{Code: code, Message: msg}
	}

	expiresIn, err := expiresInSeconds(payload.ExpiresIn)
	if err != nil {
		return "", 0, err
	}
	return payload.AccessToken, expiresIn, nil
}

// GetGatewayURL implements Client.
func (c *HTTPClient) GetGatewayURL(ctx context.Context, token string) (string, error) {
	var payload struct {
		URL string `json:"url"`
	}
	if err := c.call(ctx, token, http.MethodGet, "/gateway", nil, &payload); err != nil {
		return "", err
	}
	if payload.URL == "" {
		return "", &Error{Code: CodeAuthFailed, Message: "gateway endpoint returned no url"}
	}
	return payload.URL, nil
}

// messageBody is the shared outbound message payload. MsgID, when set,
// marks the message as a passive reply to that inbound message.
type messageBody struct {
	Content string `json:"content"`
	MsgType int    `json:"msg_type"`
	MsgID   string `json:"msg_id,omitempty"`
}

// SendC2CMessage implements Client.
func (c *HTTPClient) SendC2CMessage(ctx context.Context, token, openID, text, replyToID string) (*MessageResult, error) {
	path := fmt.Sprintf("/v2/users/%s/messages", url.PathEscape(openID))
	return c.sendMessage(ctx, token, path, messageBody{Content: text, MsgID: replyToID})
}

// SendGroupMessage implements Client.
func (c *HTTPClient) SendGroupMessage(ctx context.Context, token, groupOpenID, text, replyToID string) (*MessageResult, error) {
	path := fmt.Sprintf("/v2/groups/%s/messages", url.PathEscape(groupOpenID))
	return c.sendMessage(ctx, token, path, messageBody{Content: text, MsgID: replyToID})
}

// SendChannelMessage implements Client. An empty replyToID makes this a
// plain (non-reply) channel message; the channel surface has no separate
// proactive endpoint.
func (c *HTTPClient) SendChannelMessage(ctx context.Context, token, channelID, text, replyToID string) (*MessageResult, error) {
	path := fmt.Sprintf("/channels/%s/messages", url.PathEscape(channelID))
	return c.sendMessage(ctx, token, path, messageBody{Content: text, MsgID: replyToID})
}

// SendProactiveC2CMessage implements Client.
func (c *HTTPClient) SendProactiveC2CMessage(ctx context.Context, token, openID, text string) (*MessageResult, error) {
	return c.SendC2CMessage(ctx, token, openID, text, "")
}

// SendProactiveGroupMessage implements Client.
func (c *HTTPClient) SendProactiveGroupMessage(ctx context.Context, token, groupOpenID, text string) (*MessageResult, error) {
	return c.SendGroupMessage(ctx, token, groupOpenID, text, "")
}

func (c *HTTPClient) sendMessage(ctx context.Context, token, path string, body messageBody) (*MessageResult, error) {
	var result MessageResult
	if err := c.call(ctx, token, http.MethodPost, path, body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// call performs an authenticated API request and decodes either the result
// or the platform error envelope.
func (c *HTTPClient) call(ctx context.Context, token, method, path string, reqBody, out any) error {
	var bodyReader io.Reader
	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.apiBase+path, bodyReader)
	if err != nil {
		return fmt.Errorf("build request %s: %w", path, err)
	}
	req.Header.Set("Authorization", "QQBot "+token)
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response %s: %w", path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &Error{TraceID: resp.Header.Get("X-Tps-Trace-Id")}
		if json.Unmarshal(data, apiErr) != nil || apiErr.Message == "" {
			apiErr.Code = resp.StatusCode
			apiErr.Message = fmt.Sprintf("http %d", resp.StatusCode)
		}
		return apiErr
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("parse response %s: %w", path, err)
		}
	}
	return nil
}
