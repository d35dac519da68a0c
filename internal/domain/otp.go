package domain

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"time"
)

// OTPDigits is the length of the numeric passcode.
const OTPDigits = 6

// OneTimePasscode is a short-lived second factor layered on an access
// link. Only a salted hash of the code is stored. A passcode is single
// use: Used flips permanently true on any verification outcome.
type OneTimePasscode struct {
	ID           string     `gorm:"type:uuid;primaryKey"`
	AccessLinkID string     `gorm:"type:uuid;not null"`
	Email        string     `gorm:"type:varchar(255);not null"`
	CodeHash     string     `gorm:"type:varchar(64);not null"`
	Salt         string     `gorm:"type:varchar(32);not null"`
	ExpiresAt    time.Time  `gorm:"not null"`
	Used         bool       `gorm:"not null;default:false"`
	VerifiedAt   *time.Time `gorm:"type:timestamptz"`
	Attempts     int        `gorm:"not null;default:0"`
	IssuedIP     string     `gorm:"type:varchar(45)"`
	CreatedAt    time.Time
}

// HashOTPCode produces the stored salted digest for a plaintext code.
func HashOTPCode(salt, code string) string {
	sum := sha256.Sum256([]byte(salt + ":" + code))
	return hex.EncodeToString(sum[:])
}

// Matches compares a supplied code against the stored hash in constant
// time. It does not consult expiry or the attempt counter.
func (p *OneTimePasscode) Matches(code string) bool {
	supplied := HashOTPCode(p.Salt, code)
	return subtle.ConstantTimeCompare([]byte(supplied), []byte(p.CodeHash)) == 1
}

// IsExpired reports whether the passcode window has closed.
func (p *OneTimePasscode) IsExpired(now time.Time) bool {
	return !now.Before(p.ExpiresAt)
}
