package jobs

import (
	"log"
	"time"

	"tutorlink/database"
	"tutorlink/models"
)

// MarkSessionsInProgress flips scheduled sessions whose start time has
// passed into in_progress. Runs every few minutes from the scheduler.
func MarkSessionsInProgress() {
	now := time.Now()

	result := database.DB.Model(&models.Session{}).
		Where("status = ? AND start_time <= ? AND end_time > ?", models.SessionStatusScheduled, now, now).
		Update("status", models.SessionStatusInProgress)

	if result.Error != nil {
		log.Printf("Error marking sessions in progress: %v", result.Error)
		return
	}
	if result.RowsAffected > 0 {
		log.Printf("Marked %d session(s) as in progress.", result.RowsAffected)
	}
}
