package handlers

import (
	"time"

	config "tutorlink/configs"
	"tutorlink/database"
	"tutorlink/models"
	"tutorlink/services"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type AvailabilityWindowInput struct {
	Weekday   int    `json:"weekday" validate:"min=0,max=6"`
	StartTime string `json:"start_time" validate:"required"`
	EndTime   string `json:"end_time" validate:"required"`
}

type SetAvailabilityRequest struct {
	Windows []AvailabilityWindowInput `json:"windows" validate:"required,dive"`
}

// SetMyAvailability replaces the tutor's weekly template. All window
// validation happens here; the slot generator trusts stored rows.
func SetMyAvailability(c *fiber.Ctx) error {
	token := c.Locals("user").(*jwt.Token)
	claims := token.Claims.(jwt.MapClaims)
	tutorID, _ := uuid.Parse(claims["user_id"].(string))

	var req SetAvailabilityRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse JSON"})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	windows := make([]models.AvailabilityWindow, 0, len(req.Windows))
	for _, w := range req.Windows {
		windows = append(windows, models.AvailabilityWindow{
			TutorID:   tutorID,
			Weekday:   w.Weekday,
			StartTime: w.StartTime,
			EndTime:   w.EndTime,
		})
	}

	if err := services.ValidateWindows(windows); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	err := database.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("tutor_id = ?", tutorID).Delete(&models.AvailabilityWindow{}).Error; err != nil {
			return err
		}
		if len(windows) == 0 {
			return nil
		}
		return tx.Create(&windows).Error
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to save availability"})
	}

	return c.Status(fiber.StatusCreated).JSON(windows)
}

func GetMyAvailability(c *fiber.Ctx) error {
	token := c.Locals("user").(*jwt.Token)
	claims := token.Claims.(jwt.MapClaims)
	tutorID := claims["user_id"].(string)

	var windows []models.AvailabilityWindow
	database.DB.Where("tutor_id = ?", tutorID).Order("weekday asc, start_time asc").Find(&windows)

	return c.JSON(windows)
}

// GetTutorSlots runs the availability engine for one tutor over a date
// range and returns both open and busy slots.
func GetTutorSlots(c *fiber.Ctx) error {
	tutorID, err := uuid.Parse(c.Params("tutorId"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid tutor ID"})
	}

	start := time.Now()
	if raw := c.Query("start"); raw != "" {
		parsed, err := time.ParseInLocation("2006-01-02", raw, time.Local)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid start date, expected YYYY-MM-DD"})
		}
		start = parsed
	}
	days := c.QueryInt("days", 7)
	if days < 1 || days > 30 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "days must be between 1 and 30"})
	}

	var tutor models.Tutor
	if err := database.DB.First(&tutor, "user_id = ?", tutorID).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Tutor not found"})
	}

	var windows []models.AvailabilityWindow
	database.DB.Where("tutor_id = ?", tutorID).Find(&windows)

	rangeStart := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())
	rangeEnd := rangeStart.AddDate(0, 0, days)

	// The weekly cap counts every session in an ISO week, so booked
	// sessions are loaded for the whole weeks the range touches, not
	// just the requested days.
	weekStart := rangeStart.AddDate(0, 0, -((int(rangeStart.Weekday()) + 6) % 7))
	weekEnd := rangeEnd.AddDate(0, 0, (8-int(rangeEnd.Weekday()))%7)

	var booked []models.Session
	database.DB.
		Where("tutor_id = ? AND status <> ? AND start_time < ? AND end_time > ?",
			tutorID, models.SessionStatusCancelled, weekEnd, weekStart).
		Find(&booked)

	slots := services.GenerateSlots(
		tutorID,
		windows,
		booked,
		rangeStart,
		days,
		tutor.WeeklySessionCap,
		time.Now(),
		config.ConfigInt("BOOKING_BUFFER_MINUTES", services.DefaultBufferMinutes),
	)

	return c.JSON(slots)
}
