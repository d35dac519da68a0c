package domain

import (
	"fmt"
	"strings"
	"time"
)

// DispatchStatus represents the delivery state of one outbound
// notification attempt.
type DispatchStatus string

const (
	DispatchStatusPending           DispatchStatus = "PENDING"
	DispatchStatusDelivered         DispatchStatus = "DELIVERED"
	DispatchStatusFailed            DispatchStatus = "FAILED"
	DispatchStatusPermanentlyFailed DispatchStatus = "PERMANENTLY_FAILED"
	DispatchStatusCancelled         DispatchStatus = "CANCELLED"
)

func (s DispatchStatus) String() string { return string(s) }

func (s DispatchStatus) IsValid() bool {
	switch s {
	case DispatchStatusPending, DispatchStatusDelivered, DispatchStatusFailed,
		DispatchStatusPermanentlyFailed, DispatchStatusCancelled:
		return true
	}
	return false
}

// DispatchChannel is the delivery channel of an outbound notification.
type DispatchChannel string

const (
	DispatchChannelEmail DispatchChannel = "EMAIL"
)

// DispatchKind names the quotation event that produced a notification.
type DispatchKind string

const (
	DispatchKindSend             DispatchKind = "SEND"
	DispatchKindOTP              DispatchKind = "OTP"
	DispatchKindResponse         DispatchKind = "RESPONSE"
	DispatchKindUnviewedReminder DispatchKind = "UNVIEWED_REMINDER"
	DispatchKindFollowUp         DispatchKind = "FOLLOW_UP"
)

func ParseDispatchKindFromString(s string) (DispatchKind, error) {
	k := DispatchKind(strings.ToUpper(strings.TrimSpace(s)))
	switch k {
	case DispatchKindSend, DispatchKindOTP, DispatchKindResponse,
		DispatchKindUnviewedReminder, DispatchKindFollowUp:
		return k, nil
	}
	return "", fmt.Errorf("%w: invalid dispatch kind %q", ErrValidation, s)
}

// DispatchAttempt records one delivery attempt for an outbound
// notification tied to a quotation event. Rows are appended per attempt
// and updated in place as the attempt progresses; prior rows are never
// deleted.
type DispatchAttempt struct {
	ID            string          `gorm:"type:uuid;primaryKey"`
	QuotationID   string          `gorm:"type:uuid;not null"`
	Kind          DispatchKind    `gorm:"type:varchar(20);not null"`
	Channel       DispatchChannel `gorm:"type:varchar(10);not null"`
	Status        DispatchStatus  `gorm:"type:varchar(20);not null"`
	AttemptNumber int             `gorm:"not null;default:1"`
	Recipient     string          `gorm:"type:varchar(255);not null"`
	Subject       string          `gorm:"type:varchar(255)"`
	Body          string          `gorm:"type:text"`
	NextRetryAt   *time.Time      `gorm:"type:timestamptz"`
	Error         *string         `gorm:"type:text"`
	ProviderRef   *string         `gorm:"type:varchar(255)"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
