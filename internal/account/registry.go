// Package account resolves effective QQ account configurations from layered
// sources: channel defaults, per-account overrides, environment variables,
// and secret-file references.
package account

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/qqgate/qqgate/internal/config"
)

// DefaultAccountID is the sentinel id for the channel-root account.
const DefaultAccountID = "default"

// ErrInvalidAccountID reports a path-unsafe or empty account id.
var ErrInvalidAccountID = errors.New("invalid account id")

// SecretSource identifies which tier produced the secret in effect.
type SecretSource string

const (
	SourceInline SecretSource = "inline"
	SourceFile   SecretSource = "file"
	SourceEnv    SecretSource = "env"
	SourceNone   SecretSource = "none"
)

// Config is the effective, resolved configuration of one account.
// AppID and ClientSecret are both set or both empty; Configured is the
// derived check, never stored.
type Config struct {
	AccountID          string
	Enabled            bool
	AppID              string
	ClientSecret       string
	SecretSource       SecretSource
	Name               string
	ImageServerBaseURL string
	Intents            int
}

// Configured reports whether the account carries a usable credential pair.
func (c Config) Configured() bool {
	return c.AppID != "" && c.ClientSecret != ""
}

// Patch carries an account write. Nil pointers leave fields unchanged.
type Patch struct {
	AppID        *string
	ClientSecret *string
	Name         *string
	Enabled      *bool
}

// ValidateAccountID rejects ids that would be unsafe as map keys or file
// path components.
func ValidateAccountID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty", ErrInvalidAccountID)
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-' || r == '_':
		default:
			return fmt.Errorf("%w: %q", ErrInvalidAccountID, id)
		}
	}
	return nil
}

// ListAccountIDs returns the configured account ids in stable order:
// "default" first, then the accounts-map keys in file order.
func ListAccountIDs(qq *config.QQConfig) []string {
	ids := []string{DefaultAccountID}
	for _, id := range qq.AccountOrder() {
		if id == DefaultAccountID {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// Resolve computes the effective configuration for accountID. Resolution is
// a pure function of the raw config, the env source, and the referenced
// secret files; it never mutates its inputs.
//
// Credential precedence, highest first: the account's inline block, the
// environment pair (default account only, both values non-empty), the
// secret-file references, absence.
func Resolve(qq *config.QQConfig, env config.EnvSource, accountID string) (Config, error) {
	if err := ValidateAccountID(accountID); err != nil {
		return Config{}, err
	}

	isDefault := accountID == DefaultAccountID
	var block config.AccountBlock
	if isDefault {
		block = qq.AccountBlock
	} else {
		block = qq.Accounts[accountID]
	}

	envAppID := ""
	envSecret := ""
	if isDefault {
		a := strings.TrimSpace(env.Getenv(config.EnvQQAppID))
		s := strings.TrimSpace(env.Getenv(config.EnvQQClientSecret))
		// The env tier only applies when it supplies a complete pair.
		if a != "" && s != "" {
			envAppID, envSecret = a, s
		}
	}

	appID := strings.TrimSpace(block.AppID)
	if appID == "" && envAppID != "" {
		appID = envAppID
	}
	if appID == "" {
		appID = readSecretFile(block.AppIDFile)
	}

	secret := strings.TrimSpace(block.ClientSecret)
	source := SourceInline
	if secret == "" {
		secret = envSecret
		source = SourceEnv
	}
	if secret == "" {
		secret = readSecretFile(block.ClientSecretFile)
		source = SourceFile
	}
	if secret == "" {
		source = SourceNone
	}

	// A half-resolved pair is unusable; report it as absent.
	if appID == "" || secret == "" {
		appID, secret = "", ""
		source = SourceNone
	}

	enabled := true
	if block.Enabled != nil {
		enabled = *block.Enabled
	}

	imageServer := strings.TrimSpace(block.ImageServerBaseURL)
	if imageServer == "" && isDefault {
		imageServer = strings.TrimSpace(env.Getenv(config.EnvQQImageServerURL))
	}

	intents := block.Intents
	if intents == 0 && !isDefault {
		intents = qq.Intents
	}

	return Config{
		AccountID:          accountID,
		Enabled:            enabled,
		AppID:              appID,
		ClientSecret:       secret,
		SecretSource:       source,
		Name:               strings.TrimSpace(block.Name),
		ImageServerBaseURL: imageServer,
		Intents:            intents,
	}, nil
}

// Apply merges a patch into the targeted account block. Only the supplied
// fields are written; sibling fields survive. Applying the same patch twice
// yields the same configuration.
func Apply(qq *config.QQConfig, accountID string, patch Patch) error {
	if err := ValidateAccountID(accountID); err != nil {
		return err
	}

	if accountID == DefaultAccountID {
		applyToBlock(&qq.AccountBlock, patch)
		return nil
	}

	block := qq.Accounts[accountID]
	applyToBlock(&block, patch)
	qq.SetAccount(accountID, block)
	return nil
}

func applyToBlock(block *config.AccountBlock, patch Patch) {
	if patch.AppID != nil {
		block.AppID = strings.TrimSpace(*patch.AppID)
	}
	if patch.ClientSecret != nil {
		block.ClientSecret = strings.TrimSpace(*patch.ClientSecret)
	}
	if patch.Name != nil {
		block.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Enabled != nil {
		v := *patch.Enabled
		block.Enabled = &v
	}
}

// readSecretFile returns the trimmed contents of path, or "" when the path
// is empty or unreadable. A missing secret file is "absent", not fatal.
func readSecretFile(path string) string {
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
