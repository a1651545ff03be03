package models

import (
	"time"

	"github.com/google/uuid"
)

type Tutor struct {
	UserID   uuid.UUID `gorm:"primary_key" json:"user_id"`
	Headline *string   `gorm:"size:255" json:"headline"`
	Bio      *string   `gorm:"type:text" json:"bio"`
	Status   string    `gorm:"size:20;not null;default:'pending'" json:"status"`

	// PayoutsEnabled is the explicit onboarding flag for the direct
	// payment path. It is set from the processor's account state and is
	// never inferred from the presence of PayoutAccountID alone.
	PayoutAccountID *string `gorm:"size:255" json:"-"`
	PayoutsEnabled  bool    `gorm:"default:false" json:"payouts_enabled"`

	WeeklySessionCap *int `json:"weekly_session_cap"`

	User User `gorm:"foreignkey:UserID" json:"user"`

	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

// PayoutReady reports whether the tutor can receive funds directly.
func (t *Tutor) PayoutReady() bool {
	return t.PayoutsEnabled && t.PayoutAccountID != nil && *t.PayoutAccountID != ""
}
