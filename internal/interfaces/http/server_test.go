package http

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/qqgate/qqgate/internal/config"
	"github.com/qqgate/qqgate/internal/status"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.Gateway.Mode = "production"
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewServer(cfg, logger, "test")
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.RemoteAddr = "127.0.0.1:50000"
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("GET /health = %d; want 200", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status = %v; want ok", body["status"])
	}
}

func TestChannelStatusEndpoint(t *testing.T) {
	s := newTestServer(t)
	now := time.Now()
	s.SetSessionStatus(func() map[string]status.Session {
		return map[string]status.Session{
			"default": {AccountID: "default", Running: true, Connected: true, LastConnectedAt: &now},
		}
	})

	req := httptest.NewRequest(http.MethodGet, "/api/internal/channel-status", nil)
	req.RemoteAddr = "127.0.0.1:50000"
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/internal/channel-status = %d; want 200", rec.Code)
	}
	var body struct {
		Channel  string                    `json:"channel"`
		Sessions map[string]status.Session `json:"sessions"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Channel != "qq" {
		t.Errorf("channel = %q; want qq", body.Channel)
	}
	sess, ok := body.Sessions["default"]
	if !ok || !sess.Connected {
		t.Errorf("sessions = %+v", body.Sessions)
	}
}

func TestInternalRoutesAreLocalhostOnly(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/internal/channel-status", nil)
	req.RemoteAddr = "203.0.113.9:4411"
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("remote request = %d; want 403", rec.Code)
	}
}
