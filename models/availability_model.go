package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AvailabilityWindow is one recurring weekly opening in a tutor's
// template. Times are stored as "HH:MM" strings at minute granularity;
// they are validated before persisting, the slot generator trusts them.
type AvailabilityWindow struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	TutorID   uuid.UUID `gorm:"not null;index" json:"-"`
	Weekday   int       `gorm:"not null" json:"weekday"` // 0 = Sunday .. 6 = Saturday
	StartTime string    `gorm:"size:5;not null" json:"start_time"`
	EndTime   string    `gorm:"size:5;not null" json:"end_time"`

	Tutor User `gorm:"foreignkey:TutorID" json:"-"`
}

func (w *AvailabilityWindow) BeforeCreate(tx *gorm.DB) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	return nil
}
