package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Course struct {
	ID   uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	Name string    `gorm:"size:100;not null;unique" json:"name"`

	// PricePerSession is in minor currency units (cents).
	PricePerSession int64  `gorm:"not null;default:0" json:"price_per_session"`
	Currency        string `gorm:"size:3;not null;default:'USD'" json:"currency"`
}

func (c *Course) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
