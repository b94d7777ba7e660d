package channel

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/qqgate/qqgate/internal/api"
	"github.com/qqgate/qqgate/internal/config"
	"github.com/qqgate/qqgate/pkg/pluginsdk"
)

type fakeClient struct {
	lastOp     string
	lastID     string
	gatewayErr error
}

func (f *fakeClient) GetAccessToken(ctx context.Context, appID, clientSecret string) (string, time.Duration, error) {
	return "tok", time.Hour, nil
}

func (f *fakeClient) GetGatewayURL(ctx context.Context, tok string) (string, error) {
	if f.gatewayErr != nil {
		return "", f.gatewayErr
	}
	return "wss://example.invalid/ws", nil
}

func (f *fakeClient) record(op, id string) (*api.MessageResult, error) {
	f.lastOp, f.lastID = op, id
	return &api.MessageResult{ID: "m-1", Timestamp: "1700000000"}, nil
}

func (f *fakeClient) SendC2CMessage(ctx context.Context, tok, openID, text, replyToID string) (*api.MessageResult, error) {
	return f.record("c2c-reply", openID)
}
func (f *fakeClient) SendGroupMessage(ctx context.Context, tok, groupOpenID, text, replyToID string) (*api.MessageResult, error) {
	return f.record("group-reply", groupOpenID)
}
func (f *fakeClient) SendChannelMessage(ctx context.Context, tok, channelID, text, replyToID string) (*api.MessageResult, error) {
	return f.record("channel", channelID)
}
func (f *fakeClient) SendProactiveC2CMessage(ctx context.Context, tok, openID, text string) (*api.MessageResult, error) {
	return f.record("c2c-proactive", openID)
}
func (f *fakeClient) SendProactiveGroupMessage(ctx context.Context, tok, groupOpenID, text string) (*api.MessageResult, error) {
	return f.record("group-proactive", groupOpenID)
}

func testChannel(t *testing.T, cfg *config.Config, client api.Client) *QQ {
	t.Helper()
	cache := config.NewCache(cfg, time.Hour)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(cache, logger,
		WithAPIClient(client),
		WithEnv(config.MapEnv{}),
		WithStateDir(t.TempDir()),
	)
}

func configuredConfig() *config.Config {
	cfg := config.Default()
	cfg.Channels.QQ.AppID = "102099"
	cfg.Channels.QQ.ClientSecret = "s3cret"
	return cfg
}

func TestAccountsListsDefaultFirst(t *testing.T) {
	cfg := configuredConfig()
	cfg.Channels.QQ.SetAccount("beta", config.AccountBlock{AppID: "2", ClientSecret: "b"})
	cfg.Channels.QQ.SetAccount("alpha", config.AccountBlock{AppID: "1", ClientSecret: "a"})

	q := testChannel(t, cfg, &fakeClient{})
	got := q.Accounts()
	want := []string{"default", "beta", "alpha"}
	if len(got) != len(want) {
		t.Fatalf("Accounts() = %v; want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Accounts()[%d] = %q; want %q", i, got[i], want[i])
		}
	}
}

func TestResolveAccountNeverExposesSecrets(t *testing.T) {
	q := testChannel(t, configuredConfig(), &fakeClient{})

	snap, err := q.ResolveAccount("default")
	if err != nil {
		t.Fatalf("ResolveAccount() error = %v", err)
	}
	if !snap.Configured {
		t.Error("Configured = false for an account with inline credentials")
	}
	if snap.SecretSource != "inline" {
		t.Errorf("SecretSource = %q; want inline", snap.SecretSource)
	}
	// The snapshot type has no secret fields at all, but make sure nothing
	// smuggles the secret through the name.
	if strings.Contains(snap.Name, "s3cret") {
		t.Error("secret value leaked into snapshot")
	}
}

func TestSendRoutesThroughDispatcher(t *testing.T) {
	client := &fakeClient{}
	q := testChannel(t, configuredConfig(), client)

	res := q.Send(context.Background(), "default", pluginsdk.OutgoingMessage{
		To:   "group:G1",
		Text: "hi",
	})
	if res.Error != "" {
		t.Fatalf("Send() error = %q", res.Error)
	}
	if res.MessageID != "m-1" {
		t.Errorf("MessageID = %q; want m-1", res.MessageID)
	}
	if client.lastOp != "group-proactive" {
		t.Errorf("operation = %q; want group-proactive", client.lastOp)
	}
}

func TestSendUnknownAccountCarriedInResult(t *testing.T) {
	q := testChannel(t, configuredConfig(), &fakeClient{})

	res := q.Send(context.Background(), "../bad", pluginsdk.OutgoingMessage{To: "group:G1", Text: "hi"})
	if res.Error == "" {
		t.Fatal("Send() accepted an invalid account id")
	}
	if res.MessageID != "" {
		t.Errorf("result has both MessageID %q and Error %q", res.MessageID, res.Error)
	}
}

func TestStartAccountRejectsUnconfigured(t *testing.T) {
	q := testChannel(t, config.Default(), &fakeClient{})
	if err := q.StartAccount(context.Background(), "default"); err == nil {
		t.Fatal("StartAccount() accepted an account with no credentials")
	}
}

func TestStartAccountEnforcesSingleSession(t *testing.T) {
	client := &fakeClient{gatewayErr: errors.New("unreachable")}
	q := testChannel(t, configuredConfig(), client)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := q.StartAccount(ctx, "default"); err != nil {
		t.Fatalf("StartAccount() error = %v", err)
	}
	// A second start must not open a second session.
	if err := q.StartAccount(ctx, "default"); err != nil {
		t.Errorf("second StartAccount() = %v; want no-op", err)
	}

	if err := q.StopAccount("default"); err != nil {
		t.Errorf("StopAccount() error = %v", err)
	}
	if err := q.StopAccount("default"); err == nil {
		t.Error("StopAccount() on a stopped account succeeded")
	}

	// After a stop the account may start again.
	if err := q.StartAccount(ctx, "default"); err != nil {
		t.Errorf("restart after stop failed: %v", err)
	}
	q.StopAll()
}

func TestApplyAccountConfigPersists(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("HOME", tmp)
	t.Setenv("QQGATE_CONFIG", "")

	q := testChannel(t, configuredConfig(), &fakeClient{})

	name := "Ops Bot"
	if err := q.ApplyAccountConfig("default", pluginsdk.AccountPatch{Name: &name}); err != nil {
		t.Fatalf("ApplyAccountConfig() error = %v", err)
	}

	snap, err := q.ResolveAccount("default")
	if err != nil {
		t.Fatalf("ResolveAccount() error = %v", err)
	}
	if snap.Name != "Ops Bot" {
		t.Errorf("Name = %q; want Ops Bot", snap.Name)
	}
	// Sibling credentials survived the patch.
	if !snap.Configured {
		t.Error("patch wiped sibling credentials")
	}
}
