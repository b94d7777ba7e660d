// Package target parses destination address strings into typed targets.
//
// Accepted shapes, after stripping an optional "qq:" prefix:
//
//	c2c:<openid>       direct message to a user
//	group:<openid>     group chat
//	channel:<id>       guild channel
//	<32 hex digits>    bare user openid, treated as a direct message
//
// Any other bare string falls back to a direct-message target with the raw
// string as id. That mirrors how hosts pass raw openids around; strictness
// is traded for compatibility here.
package target

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedTarget reports an address string outside the accepted grammar.
var ErrMalformedTarget = errors.New("malformed target")

// Surface is one of the three addressable conversation kinds.
type Surface string

const (
	SurfaceDirect  Surface = "direct"
	SurfaceGroup   Surface = "group"
	SurfaceChannel Surface = "channel"
)

// Target is a parsed destination address. Immutable once parsed.
type Target struct {
	Surface Surface
	ID      string
}

const channelPrefix = "qq:"

var surfacePrefixes = []struct {
	prefix  string
	surface Surface
}{
	{"c2c:", SurfaceDirect},
	{"group:", SurfaceGroup},
	{"channel:", SurfaceChannel},
}

// Parse validates and normalizes a raw address string.
func Parse(raw string) (Target, error) {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(strings.ToLower(s), channelPrefix) {
		s = s[len(channelPrefix):]
	}
	if s == "" {
		return Target{}, fmt.Errorf("%w: empty address", ErrMalformedTarget)
	}

	for _, sp := range surfacePrefixes {
		prefix, surface := sp.prefix, sp.surface
		if strings.HasPrefix(strings.ToLower(s), prefix) {
			id := s[len(prefix):]
			if id == "" {
				return Target{}, fmt.Errorf("%w: %q has an empty id", ErrMalformedTarget, raw)
			}
			return Target{Surface: surface, ID: id}, nil
		}
	}

	// Bare 32-hex openid, or the permissive direct-message fallback.
	return Target{Surface: SurfaceDirect, ID: s}, nil
}

// LooksLikeID is the non-throwing predicate form of Parse, used by hosts for
// ambiguity checks. It accepts exactly what Parse accepts.
func LooksLikeID(raw string) bool {
	_, err := Parse(raw)
	return err == nil
}

// IsOpenID reports whether s is shaped like a QQ openid (32 hex digits).
func IsOpenID(s string) bool {
	if len(s) != 32 {
		return false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}
