package identity

import (
	"strings"
	"testing"

	"github.com/dmitrijs2005/vlesskeeper/internal/common"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_CanonicalUUIDAndHandle(t *testing.T) {
	id := New("alice", "")

	s := id.ID.String()
	assert.Len(t, s, 36)
	assert.Equal(t, strings.ToLower(s), s)
	assert.Equal(t, uuid.Version(4), id.ID.Version())
	assert.Equal(t, "alice@vpn.local", id.ContactHandle)
}

func TestNew_Unique(t *testing.T) {
	seen := make(map[uuid.UUID]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		id := New("u", "example.org")
		_, dup := seen[id.ID]
		require.False(t, dup, "duplicate identity generated")
		seen[id.ID] = struct{}{}
	}
}

func TestNew_UsesSeam(t *testing.T) {
	fixed := uuid.MustParse("3f1c2a9e-8d4b-4c1e-9a57-0b6d2e4f8a13")
	orig := newUUID
	t.Cleanup(func() { newUUID = orig })
	newUUID = func() uuid.UUID { return fixed }

	id := New("bob", "corp.example")
	assert.Equal(t, fixed, id.ID)
	assert.Equal(t, "bob@corp.example", id.ContactHandle)
}

func TestFallbackUsername(t *testing.T) {
	assert.Equal(t, "user_123456789", FallbackUsername(123456789))
	assert.Equal(t, "user_-5", FallbackUsername(-5))
}

func TestValidateUsername(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		wantErr bool
	}{
		{name: "simple", in: "alice"},
		{name: "telegram style", in: "John_Doe.99"},
		{name: "dash", in: "a-b"},
		{name: "fallback", in: FallbackUsername(111)},
		{name: "empty", in: "", wantErr: true},
		{name: "space", in: "a b", wantErr: true},
		{name: "fragment breaker", in: "a#b", wantErr: true},
		{name: "at sign", in: "a@b", wantErr: true},
		{name: "cyrillic", in: "иван", wantErr: true},
		{name: "too long", in: strings.Repeat("x", MaxUsernameLen+1), wantErr: true},
		{name: "max length", in: strings.Repeat("x", MaxUsernameLen)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUsername(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, common.ErrorInvalidUsername)
				return
			}
			require.NoError(t, err)
		})
	}
}
