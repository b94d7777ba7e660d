// Package gateway maintains the long-lived per-account websocket connection
// to the QQ bot gateway: authenticate, identify, heartbeat, dispatch inbound
// events, and reconnect with bounded backoff.
package gateway

import (
	"encoding/json"
	"strconv"
	"time"
)

// OpCode is the gateway frame operation code.
type OpCode int

const (
	OpDispatch       OpCode = 0  // server: event dispatch
	OpHeartbeat      OpCode = 1  // client: heartbeat with last seq
	OpIdentify       OpCode = 2  // client: initial handshake
	OpResume         OpCode = 6  // client: resume a previous session
	OpReconnect      OpCode = 7  // server: reconnect and resume
	OpInvalidSession OpCode = 9  // server: identify/resume rejected
	OpHello          OpCode = 10 // server: first frame, heartbeat interval
	OpHeartbeatACK   OpCode = 11 // server: heartbeat acknowledged
)

// payload is the gateway wire frame.
type payload struct {
	Op   OpCode          `json:"op"`
	Seq  int64           `json:"s,omitempty"`
	Type string          `json:"t,omitempty"`
	Data json.RawMessage `json:"d,omitempty"`
}

func newPayload(op OpCode, data any) (payload, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return payload{}, err
	}
	return payload{Op: op, Data: raw}, nil
}

// helloData arrives in the server's first frame.
type helloData struct {
	HeartbeatInterval int `json:"heartbeat_interval"` // milliseconds
}

// identifyData is the op 2 handshake body. Token carries the "QQBot "
// prefix.
type identifyData struct {
	Token      string            `json:"token"`
	Intents    int               `json:"intents"`
	Shard      [2]int            `json:"shard"`
	Properties map[string]string `json:"properties"`
}

// resumeData is the op 6 body for resuming a dropped session.
type resumeData struct {
	Token     string `json:"token"`
	SessionID string `json:"session_id"`
	Seq       int64  `json:"seq"`
}

// readyData is the READY dispatch body.
type readyData struct {
	Version   int    `json:"version"`
	SessionID string `json:"session_id"`
	User      struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	} `json:"user"`
}

// Event intents. The default subscribes to every surface the adapter
// dispatches.
const (
	IntentGuildMessages  = 1 << 30 // AT_MESSAGE_CREATE
	IntentDirectMessages = 1 << 12 // DIRECT_MESSAGE_CREATE
	IntentGroupAndC2C    = 1 << 25 // C2C_MESSAGE_CREATE, GROUP_AT_MESSAGE_CREATE
)

// DefaultIntents covers direct, group, and channel messages.
const DefaultIntents = IntentGuildMessages | IntentDirectMessages | IntentGroupAndC2C

// Dispatch event types the adapter forwards to the host.
const (
	eventReady          = "READY"
	eventResumed        = "RESUMED"
	eventC2CMessage     = "C2C_MESSAGE_CREATE"
	eventGroupAtMessage = "GROUP_AT_MESSAGE_CREATE"
	eventAtMessage      = "AT_MESSAGE_CREATE"
	eventDirectMessage  = "DIRECT_MESSAGE_CREATE"
)

// messageEvent is the superset of fields across the message dispatch
// payloads; each event type fills its own subset.
type messageEvent struct {
	ID        string `json:"id"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
	Author    struct {
		ID           string `json:"id"`
		UserOpenID   string `json:"user_openid"`
		MemberOpenID string `json:"member_openid"`
		Username     string `json:"username"`
	} `json:"author"`
	GroupOpenID string `json:"group_openid"`
	ChannelID   string `json:"channel_id"`
	GuildID     string `json:"guild_id"`
}

// eventTimestamp parses the platform timestamp, which is RFC3339 on guild
// events and a unix-seconds string elsewhere. Falls back to now.
func eventTimestamp(s string) int64 {
	if s == "" {
		return time.Now().Unix()
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.Unix()
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	return time.Now().Unix()
}
