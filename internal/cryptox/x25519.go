// Package cryptox contains key helpers for the Reality transport.
package cryptox

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/curve25519"
)

// ErrInvalidKey is returned when a key does not decode to 32 bytes.
var ErrInvalidKey = errors.New("invalid x25519 key")

// DecodeKey decodes a Reality key as printed by `xray x25519`: unpadded
// URL-safe base64. Padded and standard alphabets are accepted as well.
func DecodeKey(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrInvalidKey
	}

	encodings := []*base64.Encoding{
		base64.RawURLEncoding,
		base64.URLEncoding,
		base64.RawStdEncoding,
		base64.StdEncoding,
	}
	for _, enc := range encodings {
		b, err := enc.DecodeString(s)
		if err == nil && len(b) == curve25519.ScalarSize {
			return b, nil
		}
	}
	return nil, ErrInvalidKey
}

// EncodeKey renders a 32-byte key the way xray prints it.
func EncodeKey(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

// PublicKeyFromPrivate derives the X25519 public key for a Reality private
// key and returns it in xray's textual form.
func PublicKeyFromPrivate(private string) (string, error) {
	priv, err := DecodeKey(private)
	if err != nil {
		return "", err
	}
	pub, err := curve25519.X25519(priv, curve25519.Basepoint)
	if err != nil {
		return "", fmt.Errorf("derive public key: %w", err)
	}
	return EncodeKey(pub), nil
}
