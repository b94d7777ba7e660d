package config

import "os"

// Environment variables consulted for the default QQ account.
const (
	EnvQQAppID          = "QQ_APP_ID"
	EnvQQClientSecret   = "QQ_CLIENT_SECRET"
	EnvQQImageServerURL = "QQ_IMAGE_SERVER_URL"
)

// EnvSource abstracts process environment reads so resolution stays a pure
// function of its inputs and tests never mutate the real environment.
type EnvSource interface {
	Getenv(key string) string
}

// OSEnv reads from the real process environment.
type OSEnv struct{}

// Getenv returns the value of the named environment variable.
func (OSEnv) Getenv(key string) string { return os.Getenv(key) }

// MapEnv is a fixed in-memory environment, used in tests.
type MapEnv map[string]string

// Getenv returns the mapped value, or "" when absent.
func (m MapEnv) Getenv(key string) string { return m[key] }
