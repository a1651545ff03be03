package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	SessionStatusPending    = "pending"
	SessionStatusScheduled  = "scheduled"
	SessionStatusInProgress = "in_progress"
	SessionStatusCompleted  = "completed"
	SessionStatusCancelled  = "cancelled"
)

const (
	PaymentStatusUnpaid   = "unpaid"
	PaymentStatusPaid     = "paid"
	PaymentStatusRefunded = "refunded"
)

type Session struct {
	ID        uuid.UUID  `gorm:"type:uuid;primary_key" json:"id"`
	StudentID uuid.UUID  `gorm:"not null;index" json:"student_id"`
	TutorID   uuid.UUID  `gorm:"not null;index" json:"tutor_id"`
	CourseID  *uuid.UUID `json:"course_id"`

	// Reference is the human-readable booking code used in emails and
	// support conversations.
	Reference string `gorm:"size:12;unique" json:"reference"`

	StartTime time.Time `gorm:"not null" json:"start_time"`
	EndTime   time.Time `gorm:"not null" json:"end_time"`

	Status        string `gorm:"size:20;not null;default:'pending'" json:"status"`
	PaymentStatus string `gorm:"size:20;not null;default:'unpaid'" json:"payment_status"`

	StudentConfirmed bool       `gorm:"not null;default:false" json:"student_confirmed"`
	TutorConfirmed   bool       `gorm:"not null;default:false" json:"tutor_confirmed"`
	CompletionDate   *time.Time `json:"completion_date"`

	Student User   `gorm:"foreignkey:StudentID" json:"student,omitempty"`
	Tutor   User   `gorm:"foreignkey:TutorID" json:"tutor,omitempty"`
	Course  Course `gorm:"foreignkey:CourseID" json:"course,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s *Session) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// Terminal reports whether the session can no longer change status.
func (s *Session) Terminal() bool {
	return s.Status == SessionStatusCompleted || s.Status == SessionStatusCancelled
}
