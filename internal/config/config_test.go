package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestPreprocessJSONLike(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{
			name: "line comments",
			input: `{
  // the default account
  "channels": {"qq": {"appId": "1"}}
}`,
		},
		{
			name:  "block comments",
			input: `{/* header */ "channels": {"qq": {"appId": "1"}}}`,
		},
		{
			name: "trailing commas",
			input: `{
  "channels": {"qq": {"appId": "1",},},
}`,
		},
		{
			name:  "slashes inside strings survive",
			input: `{"channels": {"qq": {"appId": "1", "imageServerBaseUrl": "https://img.example.com/qq"}}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clean := preprocessJSONLike(tt.input)
			var cfg Config
			if err := json.Unmarshal([]byte(clean), &cfg); err != nil {
				t.Fatalf("cleaned config does not parse: %v\n%s", err, clean)
			}
			if cfg.Channels.QQ.AppID != "1" {
				t.Errorf("appId = %q; want 1", cfg.Channels.QQ.AppID)
			}
		})
	}
}

func TestLoadFromEnvPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "qqgate.json")
	content := `{
  // local test config
  "gateway": {"port": 19999},
  "channels": {
    "qq": {
      "appId": "102099",
      "clientSecret": "s3cret",
      "accounts": {
        "zeta": {"appId": "2"},
        "alpha": {"appId": "3"},
      },
    },
  },
}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("QQGATE_CONFIG", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Gateway.Port != 19999 {
		t.Errorf("port = %d; want 19999", cfg.Gateway.Port)
	}
	if cfg.Channels.QQ.AppID != "102099" {
		t.Errorf("appId = %q", cfg.Channels.QQ.AppID)
	}

	order := cfg.Channels.QQ.AccountOrder()
	want := []string{"zeta", "alpha"}
	if len(order) != len(want) {
		t.Fatalf("AccountOrder() = %v; want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("AccountOrder()[%d] = %q; want %q", i, order[i], want[i])
		}
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("QQGATE_CONFIG", filepath.Join(t.TempDir(), "does-not-exist.json"))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Gateway.Port != 18791 {
		t.Errorf("default port = %d; want 18791", cfg.Gateway.Port)
	}
}

func TestSetAccountKeepsOrder(t *testing.T) {
	var qq QQConfig
	qq.SetAccount("b", AccountBlock{AppID: "1"})
	qq.SetAccount("a", AccountBlock{AppID: "2"})
	qq.SetAccount("b", AccountBlock{AppID: "3"}) // overwrite, not reorder

	order := qq.AccountOrder()
	if len(order) != 2 || order[0] != "b" || order[1] != "a" {
		t.Errorf("AccountOrder() = %v; want [b a]", order)
	}
	if qq.Accounts["b"].AppID != "3" {
		t.Errorf("overwrite lost: %+v", qq.Accounts["b"])
	}
}

func TestCacheServesAndRefreshes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "qqgate.json")
	if err := os.WriteFile(path, []byte(`{"gateway": {"port": 10001}}`), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("QQGATE_CONFIG", path)

	initial, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	cache := NewCache(initial, 0) // minimum TTL

	if got := cache.Get().Gateway.Port; got != 10001 {
		t.Fatalf("port = %d; want 10001", got)
	}
	firstHash := cache.Hash()
	if firstHash == "" {
		t.Error("empty config hash")
	}

	if err := os.WriteFile(path, []byte(`{"gateway": {"port": 10002}}`), 0o600); err != nil {
		t.Fatal(err)
	}
	cache.Invalidate()

	if got := cache.Get().Gateway.Port; got != 10002 {
		t.Errorf("port after reload = %d; want 10002", got)
	}
	if cache.Hash() == firstHash {
		t.Error("hash unchanged after a config edit")
	}
}

func TestCacheSetReplacesDirectly(t *testing.T) {
	cache := NewCache(Default(), 0)
	oldHash := cache.Hash()

	cfg := Default()
	cfg.Gateway.Port = 12345
	cache.Set(cfg)

	if cache.Get().Gateway.Port != 12345 {
		t.Error("Set did not replace the cached config")
	}
	if cache.Hash() == oldHash {
		t.Error("hash unchanged after Set")
	}
}
