package auth

import (
	"context"
	"crypto/subtle"
)

// StaticKey implements domain.APIKeyRepository with a single shared secret.
type StaticKey struct {
	secret []byte
}

// NewStaticKey returns a validator accepting only secret. An empty secret
// accepts nothing.
func NewStaticKey(secret string) *StaticKey {
	return &StaticKey{secret: []byte(secret)}
}

// IsValid compares in constant time.
func (s *StaticKey) IsValid(_ context.Context, key string) (bool, error) {
	if len(s.secret) == 0 {
		return false, nil
	}
	return subtle.ConstantTimeCompare(s.secret, []byte(key)) == 1, nil
}
