package token

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeIssuer counts issuance calls and can be made slow or failing.
type fakeIssuer struct {
	calls   atomic.Int64
	delay   time.Duration
	err     error
	expires time.Duration
}

func (f *fakeIssuer) GetAccessToken(ctx context.Context, appID, clientSecret string) (string, time.Duration, error) {
	n := f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", 0, ctx.Err()
		}
	}
	if f.err != nil {
		return "", 0, f.err
	}
	expires := f.expires
	if expires == 0 {
		expires = 2 * time.Hour
	}
	return "tok-" + appID + "-" + strconv.FormatInt(n, 10), expires, nil
}

func TestGetCachesUntilMargin(t *testing.T) {
	issuer := &fakeIssuer{expires: time.Hour}
	current := time.Unix(1_700_000_000, 0)
	cache := NewCache(issuer,
		WithSafetyMargin(time.Minute),
		WithClock(func() time.Time { return current }),
	)

	first, err := cache.Get(context.Background(), "app", "secret")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	second, err := cache.Get(context.Background(), "app", "secret")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if first.Value != second.Value {
		t.Errorf("cached token not reused: %q vs %q", first.Value, second.Value)
	}
	if got := issuer.calls.Load(); got != 1 {
		t.Errorf("issuance calls = %d; want 1", got)
	}

	// Inside the safety margin the token counts as expired.
	current = current.Add(time.Hour - 30*time.Second)
	third, err := cache.Get(context.Background(), "app", "secret")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if third.Value == first.Value {
		t.Error("token within safety margin was not refreshed")
	}
	if got := issuer.calls.Load(); got != 2 {
		t.Errorf("issuance calls = %d; want 2", got)
	}
}

func TestConcurrentGetsCoalesce(t *testing.T) {
	issuer := &fakeIssuer{delay: 50 * time.Millisecond}
	cache := NewCache(issuer)

	const workers = 8
	var wg sync.WaitGroup
	results := make([]string, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tok, err := cache.Get(context.Background(), "app", "secret")
			results[i], errs[i] = tok.Value, err
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Fatalf("worker %d: Get() error = %v", i, errs[i])
		}
		if results[i] != results[0] {
			t.Errorf("worker %d got %q; want shared token %q", i, results[i], results[0])
		}
	}
	if got := issuer.calls.Load(); got != 1 {
		t.Errorf("issuance calls = %d; want exactly 1 (coalesced)", got)
	}
}

func TestFailureLeavesCacheUntouchedAndRetries(t *testing.T) {
	issuer := &fakeIssuer{err: errors.New("boom")}
	cache := NewCache(issuer)

	if _, err := cache.Get(context.Background(), "app", "secret"); err == nil {
		t.Fatal("Get() succeeded despite issuer failure")
	}

	// Next call retries immediately: no negative caching, no backoff.
	issuer.err = nil
	tok, err := cache.Get(context.Background(), "app", "secret")
	if err != nil {
		t.Fatalf("Get() after recovery error = %v", err)
	}
	if tok.Value == "" {
		t.Error("Get() after recovery returned an empty token")
	}
	if got := issuer.calls.Load(); got != 2 {
		t.Errorf("issuance calls = %d; want 2", got)
	}
}

func TestKeysAreIndependent(t *testing.T) {
	issuer := &fakeIssuer{}
	cache := NewCache(issuer)

	a, err := cache.Get(context.Background(), "app-a", "secret-a")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	b, err := cache.Get(context.Background(), "app-b", "secret-b")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if a.Value == b.Value {
		t.Errorf("distinct credential pairs shared a token: %q", a.Value)
	}
	if got := issuer.calls.Load(); got != 2 {
		t.Errorf("issuance calls = %d; want 2", got)
	}
}

func TestInvalidateForcesReissue(t *testing.T) {
	issuer := &fakeIssuer{}
	cache := NewCache(issuer)

	first, _ := cache.Get(context.Background(), "app", "secret")
	cache.Invalidate("app", "secret")
	second, err := cache.Get(context.Background(), "app", "secret")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if first.Value == second.Value {
		t.Error("Invalidate() did not force a reissue")
	}
}
