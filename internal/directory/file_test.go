package directory

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_InitCreatesEmptyOnce(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "users.json")
	s := NewFileStore(path)

	require.NoError(t, s.Init(ctx))
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"users\": []\n}\n", string(b))

	st, err := s.Load(ctx)
	require.NoError(t, err)
	st.Append(User{Username: "alice", Identity: "id-1"})
	require.NoError(t, s.Save(ctx, st))

	require.NoError(t, s.Init(ctx))
	st, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, st.Users, 1, "Init must not clobber an existing directory")
}

func TestFileStore_LoadMissingIsError(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "users.json"))
	_, err := s.Load(context.Background())
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestFileStore_LoadMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	require.NoError(t, os.WriteFile(path, []byte("{ nope"), 0o600))
	_, err := NewFileStore(path).Load(context.Background())
	require.Error(t, err)
}

func TestFileStore_SaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewFileStore(filepath.Join(t.TempDir(), "users.json"))
	require.NoError(t, s.Init(ctx))

	created := time.Date(2025, 3, 1, 10, 30, 0, 123000000, time.UTC)
	want := &State{Users: []User{
		{
			Username:      "alice",
			Identity:      "3f1c2a9e-8d4b-4c1e-9a57-0b6d2e4f8a13",
			ContactHandle: "alice@vpn.local",
			ExternalID:    ptr(111),
			Descriptor:    "vless://x@y:443?a=b#alice",
			CreatedAt:     created,
			Active:        true,
		},
		{
			Username:      "bob",
			Identity:      "0e9f2a3b-1111-4c1e-9a57-0b6d2e4f8a13",
			ContactHandle: "bob@vpn.local",
			CreatedAt:     created,
			Active:        true,
		},
	}}
	require.NoError(t, s.Save(ctx, want))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(want, got))
}

func TestFileStore_ReadsLegacyDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	legacy := `{
  "users": [
    {
      "username": "test_user",
      "uuid": "5b8a1c1e-2f6d-4f0a-9d55-1c2b3a4d5e6f",
      "email": "test_user@vpn.local",
      "telegram_id": 123456789,
      "vless_link": "vless://5b8a1c1e-2f6d-4f0a-9d55-1c2b3a4d5e6f@1.2.3.4:443?encryption=none#test_user",
      "created_at": "2024-11-02T08:15:30.512345Z",
      "active": true,
      "traffic_used": 0
    },
    {
      "username": "cli_user",
      "uuid": "6c9b2d2f-3a7e-4a1b-8e66-2d3c4b5e6f70",
      "email": "cli_user@vpn.local",
      "telegram_id": null,
      "vless_link": "vless://x",
      "created_at": "2024-11-03T09:00:00.000Z",
      "active": true,
      "traffic_used": 0
    }
  ]
}`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0o600))

	st, err := NewFileStore(path).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, st.Users, 2)

	u := st.Users[0]
	assert.Equal(t, "test_user", u.Username)
	assert.Equal(t, "test_user@vpn.local", u.ContactHandle)
	require.NotNil(t, u.ExternalID)
	assert.Equal(t, int64(123456789), *u.ExternalID)
	assert.True(t, u.Active)
	assert.Equal(t, 2024, u.CreatedAt.Year())

	assert.Nil(t, st.Users[1].ExternalID)
}
