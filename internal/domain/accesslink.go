package domain

import (
	"time"
)

// AccessLink grants one email address time-boxed viewing rights to one
// quotation. At most one active link exists per quotation; issuing a new
// one deactivates all prior links atomically. Links are deactivated, never
// deleted.
type AccessLink struct {
	ID            string     `gorm:"type:uuid;primaryKey"`
	QuotationID   string     `gorm:"type:uuid;not null"`
	Email         string     `gorm:"type:varchar(255);not null"`
	Token         string     `gorm:"type:varchar(64);not null;uniqueIndex"`
	Active        bool       `gorm:"not null;default:true"`
	ExpiresAt     time.Time  `gorm:"not null"`
	SentAt        *time.Time `gorm:"type:timestamptz"`
	FirstViewedAt *time.Time `gorm:"type:timestamptz"`
	LastViewedAt  *time.Time `gorm:"type:timestamptz"`
	ViewCount     int        `gorm:"not null;default:0"`
	LastSeenIP    string     `gorm:"type:varchar(45)"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// IsUsable reports whether the link still grants access.
func (l *AccessLink) IsUsable(now time.Time) bool {
	return l.Active && now.Before(l.ExpiresAt)
}

// TokenPrefix returns the loggable 8-character prefix of the secret token.
// The full token is never written to logs.
func (l *AccessLink) TokenPrefix() string {
	if len(l.Token) <= 8 {
		return l.Token
	}
	return l.Token[:8]
}

// PageView records a single portal viewing session for analytics.
// Duration is derived from the start/end pair, not stored.
type PageView struct {
	ID           string     `gorm:"type:uuid;primaryKey"`
	AccessLinkID string     `gorm:"type:uuid;not null"`
	IP           string     `gorm:"type:varchar(45)"`
	UserAgent    string     `gorm:"type:varchar(512)"`
	StartedAt    time.Time  `gorm:"not null"`
	EndedAt      *time.Time `gorm:"type:timestamptz"`
	CreatedAt    time.Time
}

// Duration returns the session length, or zero while the view is open.
func (v *PageView) Duration() time.Duration {
	if v.EndedAt == nil {
		return 0
	}
	return v.EndedAt.Sub(v.StartedAt)
}
