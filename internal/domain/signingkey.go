package domain

import (
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// SigningKeyLength is the byte length of a witness block signing key, an
// ed25519 public point.
const SigningKeyLength = 32

// ParseSigningKey decodes a base58 witness block signing key and validates
// that it is a well-formed ed25519 curve point. Witness registration
// operations carry keys in this format.
func ParseSigningKey(s string) ([]byte, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("decode signing key: %w", err)
	}
	if len(raw) != SigningKeyLength {
		return nil, fmt.Errorf("signing key must be %d bytes, got %d", SigningKeyLength, len(raw))
	}
	if !IsOnCurve(raw) {
		return nil, fmt.Errorf("signing key is not a valid ed25519 point")
	}
	return raw, nil
}

// IsOnCurve reports whether point is a canonical ed25519 curve point.
func IsOnCurve(point []byte) bool {
	if len(point) != SigningKeyLength {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}
