package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	TxnStatusPending   = "pending"
	TxnStatusSucceeded = "succeeded"
	TxnStatusFailed    = "failed"
	TxnStatusCanceled  = "canceled"
)

const (
	PaymentTypeDirect   = "direct"
	PaymentTypeDeferred = "deferred"
)

// PaymentTransaction records one attempt to charge a session. At most one
// non-terminal row may exist per session; SetupPayment enforces this by
// lookup before creating a new one.
type PaymentTransaction struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	SessionID uuid.UUID `gorm:"not null;index" json:"session_id"`

	// Amount is in minor currency units.
	Amount int64 `gorm:"not null" json:"amount"`

	Status      string `gorm:"size:20;not null;default:'pending'" json:"status"`
	PaymentType string `gorm:"size:20;not null" json:"payment_type"`

	ExternalIntentID *string `gorm:"size:255;unique" json:"external_intent_id"`

	Session Session `gorm:"foreignkey:SessionID" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (p *PaymentTransaction) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// Terminal reports whether the transaction reached a final state.
func (p *PaymentTransaction) Terminal() bool {
	return p.Status == TxnStatusSucceeded || p.Status == TxnStatusFailed || p.Status == TxnStatusCanceled
}
