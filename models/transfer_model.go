package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	TransferStatusPending         = "pending"
	TransferStatusProcessing      = "processing"
	TransferStatusCompleted       = "completed"
	TransferStatusFailedPermanent = "failed_permanent"
)

// PendingTransfer is the settlement bookkeeping row for a deferred
// payment: the tutor's share is held on the platform account until the
// reconciler moves it out. Mutated only by the reconciler once created.
type PendingTransfer struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	SessionID uuid.UUID `gorm:"not null;index" json:"session_id"`
	TutorID   uuid.UUID `gorm:"not null;index" json:"tutor_id"`
	StudentID uuid.UUID `gorm:"not null" json:"student_id"`

	// Amount is the tutor's net share; PlatformFee is what the platform
	// kept. Both in minor currency units.
	Amount      int64 `gorm:"not null" json:"amount"`
	PlatformFee int64 `gorm:"not null" json:"platform_fee"`

	Status      string     `gorm:"size:20;not null;default:'pending'" json:"status"`
	RetryCount  int        `gorm:"not null;default:0" json:"retry_count"`
	LastRetryAt *time.Time `json:"last_retry_at"`

	ExternalTransferID *string `gorm:"size:255" json:"external_transfer_id"`

	Session Session `gorm:"foreignkey:SessionID" json:"-"`
	Tutor   User    `gorm:"foreignkey:TutorID" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (t *PendingTransfer) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
