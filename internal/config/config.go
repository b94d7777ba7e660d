// Package config handles loading and validating the qqgate configuration.
// Config is stored at ~/.qqgate/qqgate.json (JSON with comments and trailing
// commas allowed), overridable via the QQGATE_CONFIG environment variable.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Config is the top-level qqgate configuration.
type Config struct {
	Gateway  GatewayConfig  `json:"gateway"`
	Channels ChannelsConfig `json:"channels"`
}

// GatewayConfig configures the local status/control server.
type GatewayConfig struct {
	Port int    `json:"port"`
	Bind string `json:"bind"` // "loopback" or "all"
	Mode string `json:"mode"` // "local" or "production"
}

// ChannelsConfig configures messaging channels.
type ChannelsConfig struct {
	QQ QQConfig `json:"qq"`
}

// AccountBlock is one raw account configuration block. The channel root
// doubles as the block for the "default" account.
type AccountBlock struct {
	Enabled            *bool  `json:"enabled,omitempty"`
	AppID              string `json:"appId,omitempty"`
	ClientSecret       string `json:"clientSecret,omitempty"`
	AppIDFile          string `json:"appIdFile,omitempty"`
	ClientSecretFile   string `json:"clientSecretFile,omitempty"`
	Name               string `json:"name,omitempty"`
	ImageServerBaseURL string `json:"imageServerBaseUrl,omitempty"`
	Intents            int    `json:"intents,omitempty"`
}

// QQConfig is the raw QQ channel section: a root (default-account) block
// plus an optional multi-account map. The order in which account keys appear
// in the file is preserved for stable listing.
type QQConfig struct {
	AccountBlock
	Accounts map[string]AccountBlock `json:"accounts,omitempty"`

	accountOrder []string
}

// AccountOrder returns the account-map keys in file order.
func (q *QQConfig) AccountOrder() []string {
	if len(q.accountOrder) == len(q.Accounts) {
		return q.accountOrder
	}
	// Fallback when the config was built programmatically.
	keys := make([]string, 0, len(q.Accounts))
	for _, k := range q.accountOrder {
		if _, ok := q.Accounts[k]; ok {
			keys = append(keys, k)
		}
	}
	for k := range q.Accounts {
		if !containsString(keys, k) {
			keys = append(keys, k)
		}
	}
	return keys
}

// SetAccount writes an account block and keeps the key order stable.
func (q *QQConfig) SetAccount(id string, block AccountBlock) {
	if q.Accounts == nil {
		q.Accounts = make(map[string]AccountBlock)
	}
	if _, ok := q.Accounts[id]; !ok {
		q.accountOrder = append(q.accountOrder, id)
	}
	q.Accounts[id] = block
}

// UnmarshalJSON captures the insertion order of the accounts map alongside
// the regular decode.
func (q *QQConfig) UnmarshalJSON(data []byte) error {
	type alias QQConfig
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*q = QQConfig(a)
	q.accountOrder = accountKeyOrder(data)
	return nil
}

// accountKeyOrder scans the raw JSON for the "accounts" object and returns
// its top-level keys in document order.
func accountKeyOrder(data []byte) []string {
	var outer map[string]json.RawMessage
	if err := json.Unmarshal(data, &outer); err != nil {
		return nil
	}
	raw, ok := outer["accounts"]
	if !ok {
		return nil
	}
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	tok, err := dec.Token()
	if err != nil || tok != json.Delim('{') {
		return nil
	}
	var keys []string
	depth := 0
	for dec.More() || depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case json.Delim:
			switch t {
			case '{', '[':
				depth++
			case '}', ']':
				depth--
			}
		case string:
			if depth == 0 {
				keys = append(keys, t)
				// Skip the value.
				var skip json.RawMessage
				if err := dec.Decode(&skip); err != nil {
					return keys
				}
			}
		}
	}
	return keys
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Port: 18791,
			Bind: "loopback",
			Mode: "local",
		},
	}
}

// ConfigDir returns the qqgate config directory (~/.qqgate).
func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".qqgate"
	}
	return filepath.Join(home, ".qqgate")
}

// ConfigPath returns the path to the main config file.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "qqgate.json")
}

// StateDir returns the directory for runtime state files.
func StateDir() string {
	return filepath.Join(ConfigDir(), "state")
}

// Load reads and parses the config from disk.
// If the config file doesn't exist, it returns defaults.
func Load() (*Config, error) {
	cfg := Default()

	configPath := ConfigPath()
	if envPath := os.Getenv("QQGATE_CONFIG"); envPath != "" {
		configPath = envPath
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}

	clean := preprocessJSONLike(string(data))
	if err := json.Unmarshal([]byte(clean), cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", configPath, err)
	}

	return cfg, nil
}

// Save writes the config to disk.
func Save(cfg *Config) error {
	path := ConfigPath()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}

// preprocessJSONLike strips /* */ and // comments plus trailing commas so
// hand-edited config files parse with encoding/json.
func preprocessJSONLike(input string) string {
	s := input
	for {
		start := strings.Index(s, "/*")
		if start < 0 {
			break
		}
		end := strings.Index(s[start+2:], "*/")
		if end < 0 {
			s = s[:start]
			break
		}
		end += start + 2
		s = s[:start] + s[end+2:]
	}

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		inString := false
		escape := false
		for j := 0; j < len(line)-1; j++ {
			ch := line[j]
			if ch == '\\' && inString {
				escape = !escape
				continue
			}
			if ch == '"' && !escape {
				inString = !inString
			}
			escape = false
			if !inString && ch == '/' && line[j+1] == '/' {
				line = line[:j]
				break
			}
		}
		lines[i] = strings.TrimRight(line, " \t")
	}
	s = strings.Join(lines, "\n")
	return stripTrailingCommas(s)
}

// stripTrailingCommas removes commas that directly precede a closing brace
// or bracket, whitespace and newlines included, without touching string
// contents.
func stripTrailingCommas(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inString := false
	escape := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if inString {
			b.WriteByte(ch)
			if escape {
				escape = false
			} else if ch == '\\' {
				escape = true
			} else if ch == '"' {
				inString = false
			}
			continue
		}
		if ch == '"' {
			inString = true
			b.WriteByte(ch)
			continue
		}
		if ch == ',' {
			j := i + 1
			for j < len(s) && (s[j] == ' ' || s[j] == '\t' || s[j] == '\n' || s[j] == '\r') {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue
			}
		}
		b.WriteByte(ch)
	}
	return b.String()
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
