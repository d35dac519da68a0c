package domain

import "time"

// StatusHistoryEntry is the immutable audit record for one quotation
// status mutation. Written exactly once per transition, in the same
// transaction as the mutation. Never updated or deleted.
type StatusHistoryEntry struct {
	ID          string  `gorm:"type:uuid;primaryKey"`
	QuotationID string  `gorm:"type:uuid;not null"`
	FromStatus  Status  `gorm:"type:varchar(20);not null"`
	ToStatus    Status  `gorm:"type:varchar(20);not null"`
	Actor       string  `gorm:"type:varchar(255);not null"`
	Reason      *string `gorm:"type:text"`
	IP          *string `gorm:"type:varchar(45)"`
	CreatedAt   time.Time
}
