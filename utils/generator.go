package utils

import (
	"math/rand"
	"time"

	"tutorlink/models"

	"gorm.io/gorm"
)

const bookingRefLength = 8
const letterBytes = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GenerateUniqueBookingRef produces a short booking code that is not yet
// used by any session. Runs inside the caller's transaction so the code
// is reserved together with the session row.
func GenerateUniqueBookingRef(tx *gorm.DB) (string, error) {
	seededRand := rand.New(rand.NewSource(time.Now().UnixNano()))

	for {
		b := make([]byte, bookingRefLength)
		for i := range b {
			b[i] = letterBytes[seededRand.Intn(len(letterBytes))]
		}
		code := "TL-" + string(b)

		var session models.Session
		err := tx.Where("reference = ?", code).First(&session).Error
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return code, nil
			}
			return "", err
		}
	}
}
