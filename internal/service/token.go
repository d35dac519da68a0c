package service

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/kursadbilgin/quotation-engine/internal/domain"
)

const tokenByteLength = 32

// TokenIssuer produces the secrets the portal depends on: link tokens,
// numeric passcodes, and hashing salts. Implementations must draw from a
// cryptographic source, never a seeded generator.
type TokenIssuer interface {
	NewToken() (string, error)
	NumericCode(digits int) (string, error)
	NewSalt() (string, error)
}

// RandomTokenIssuer is the crypto/rand backed TokenIssuer.
type RandomTokenIssuer struct{}

func NewRandomTokenIssuer() *RandomTokenIssuer {
	return &RandomTokenIssuer{}
}

// NewToken returns a URL-safe secret of 32 random bytes.
func (RandomTokenIssuer) NewToken() (string, error) {
	buf := make([]byte, tokenByteLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// NumericCode returns a uniformly random zero-padded numeric string of the
// given length.
func (RandomTokenIssuer) NumericCode(digits int) (string, error) {
	if digits <= 0 {
		return "", fmt.Errorf("%w: code length must be positive", domain.ErrValidation)
	}

	limit := big.NewInt(1)
	for i := 0; i < digits; i++ {
		limit.Mul(limit, big.NewInt(10))
	}

	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", fmt.Errorf("failed to generate numeric code: %w", err)
	}
	return fmt.Sprintf("%0*d", digits, n), nil
}

// NewSalt returns a 32-character hex salt for passcode hashing.
func (RandomTokenIssuer) NewSalt() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
