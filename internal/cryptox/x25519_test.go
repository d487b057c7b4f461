package cryptox

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/curve25519"
)

func TestPublicKeyFromPrivate_MatchesCurve(t *testing.T) {
	priv := make([]byte, 32)
	_, err := rand.Read(priv)
	require.NoError(t, err)

	want, err := curve25519.X25519(priv, curve25519.Basepoint)
	require.NoError(t, err)

	got, err := PublicKeyFromPrivate(EncodeKey(priv))
	require.NoError(t, err)
	assert.Equal(t, EncodeKey(want), got)
}

func TestPublicKeyFromPrivate_Deterministic(t *testing.T) {
	priv := EncodeKey(make([]byte, 32))
	a, err := PublicKeyFromPrivate(priv)
	require.NoError(t, err)
	b, err := PublicKeyFromPrivate(priv)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 43)
}

func TestDecodeKey(t *testing.T) {
	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = byte(250 - i)
	}

	tests := []struct {
		name    string
		in      string
		wantErr bool
	}{
		{name: "raw url", in: EncodeKey(raw)},
		{name: "padded url", in: EncodeKey(raw) + "="},
		{name: "surrounding space", in: "  " + EncodeKey(raw) + "\n"},
		{name: "empty", in: "", wantErr: true},
		{name: "too short", in: "AAAA", wantErr: true},
		{name: "garbage", in: "not a key!!", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeKey(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidKey)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, raw, got)
		})
	}
}
