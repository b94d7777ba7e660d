package status

import (
	"testing"
	"time"
)

func TestLifecycleTransitions(t *testing.T) {
	store := NewStore()

	store.SetRunning("default")
	sess, ok := store.Get("default")
	if !ok || !sess.Running || sess.Connected {
		t.Fatalf("after SetRunning: %+v", sess)
	}

	now := time.Now()
	store.SetConnected("default", now)
	sess, _ = store.Get("default")
	if !sess.Connected || !sess.Running {
		t.Errorf("after SetConnected: %+v", sess)
	}
	if sess.LastConnectedAt == nil || !sess.LastConnectedAt.Equal(now) {
		t.Errorf("LastConnectedAt = %v; want %v", sess.LastConnectedAt, now)
	}
	if sess.LastError != "" {
		t.Errorf("SetConnected kept a stale error: %q", sess.LastError)
	}

	store.SetError("default", "heartbeat timeout")
	sess, _ = store.Get("default")
	if sess.Connected {
		t.Error("SetError left session connected")
	}
	if !sess.Running {
		t.Error("SetError stopped the session; reconnecting sessions stay running")
	}
	if sess.LastError != "heartbeat timeout" {
		t.Errorf("LastError = %q", sess.LastError)
	}

	store.SetClosed("default")
	sess, _ = store.Get("default")
	if sess.Running || sess.Connected {
		t.Errorf("after SetClosed: %+v", sess)
	}
	if sess.LastConnectedAt == nil {
		t.Error("SetClosed erased LastConnectedAt history")
	}
}

func TestConnectedImpliesRunning(t *testing.T) {
	store := NewStore()
	// Even without SetRunning first, a connect may never yield
	// connected-but-not-running.
	store.SetConnected("acct", time.Now())
	sess, _ := store.Get("acct")
	if sess.Connected && !sess.Running {
		t.Errorf("invariant violated: %+v", sess)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	store := NewStore()
	store.SetRunning("a")

	snap := store.Snapshot()
	snap["a"] = Session{AccountID: "a", Running: false}

	sess, _ := store.Get("a")
	if !sess.Running {
		t.Error("mutating a snapshot leaked into the store")
	}
}
