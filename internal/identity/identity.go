// Package identity produces the credential a proxy user is known by: a
// random UUID plus a contact handle derived from the username.
package identity

import (
	"fmt"
	"strconv"

	"github.com/dmitrijs2005/vlesskeeper/internal/common"
	"github.com/google/uuid"
)

// DefaultDomain qualifies contact handles when no domain is configured.
const DefaultDomain = "vpn.local"

// MaxUsernameLen bounds usernames; they end up in emails and URI fragments.
const MaxUsernameLen = 64

// Identity is the pair stored alongside a user in both stores.
type Identity struct {
	ID            uuid.UUID
	ContactHandle string
}

// newUUID is a seam for tests.
var newUUID = uuid.New

// New generates a fresh identity for username. The handle is
// "<username>@<domain>".
func New(username, domain string) Identity {
	return Identity{
		ID:            newUUID(),
		ContactHandle: ContactHandle(username, domain),
	}
}

// ContactHandle derives the domain-qualified label for username.
func ContactHandle(username, domain string) string {
	if domain == "" {
		domain = DefaultDomain
	}
	return username + "@" + domain
}

// FallbackUsername is used for messaging users that have no public handle.
func FallbackUsername(externalID int64) string {
	return "user_" + strconv.FormatInt(externalID, 10)
}

// ValidateUsername accepts 1..MaxUsernameLen characters from [A-Za-z0-9._-].
func ValidateUsername(username string) error {
	if username == "" {
		return fmt.Errorf("%w: empty", common.ErrorInvalidUsername)
	}
	if len(username) > MaxUsernameLen {
		return fmt.Errorf("%w: longer than %d characters", common.ErrorInvalidUsername, MaxUsernameLen)
	}
	for _, r := range username {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '.', r == '_', r == '-':
		default:
			return fmt.Errorf("%w: character %q not allowed", common.ErrorInvalidUsername, r)
		}
	}
	return nil
}
