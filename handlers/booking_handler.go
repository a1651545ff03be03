package handlers

import (
	"time"

	"tutorlink/database"
	"tutorlink/models"
	"tutorlink/notifications"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

type CreateSessionRequest struct {
	TutorID   string `json:"tutor_id" validate:"required,uuid"`
	CourseID  string `json:"course_id,omitempty" validate:"omitempty,uuid"`
	StartTime string `json:"start_time" validate:"required,datetime=2006-01-02T15:04:05Z07:00"`
	EndTime   string `json:"end_time" validate:"required,datetime=2006-01-02T15:04:05Z07:00"`
}

func CreateSession(c *fiber.Ctx) error {
	token := c.Locals("user").(*jwt.Token)
	claims := token.Claims.(jwt.MapClaims)
	studentID, _ := uuid.Parse(claims["user_id"].(string))

	var req CreateSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse JSON"})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	tutorID, _ := uuid.Parse(req.TutorID)
	var courseID *uuid.UUID
	if req.CourseID != "" {
		id, _ := uuid.Parse(req.CourseID)
		var course models.Course
		if err := database.DB.First(&course, "id = ?", id).Error; err != nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Course not found"})
		}
		courseID = &id
	}

	var tutor models.Tutor
	if err := database.DB.Preload("User").First(&tutor, "user_id = ?", tutorID).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Tutor not found"})
	}

	startTime, _ := time.Parse(time.RFC3339, req.StartTime)
	endTime, _ := time.Parse(time.RFC3339, req.EndTime)

	session, err := bookingService.SelectSlot(studentID, tutorID, courseID, startTime, endTime)
	if err != nil {
		return respondServiceError(c, err)
	}

	go func() {
		var student models.User
		if err := database.DB.First(&student, "id = ?", studentID).Error; err == nil {
			notifications.NotifyBookingCreated(
				student.FullName, student.Email,
				tutor.User.FullName, tutor.User.Email,
				session.Reference, session.StartTime,
			)
		}
	}()

	return c.Status(fiber.StatusCreated).JSON(session)
}

type SetupPaymentRequest struct {
	Amount        int64 `json:"amount,omitempty"`
	ForceTwoStage bool  `json:"force_two_stage,omitempty"`
}

// SetupSessionPayment creates (or replays) the payment intent for a
// session. The amount comes from the course price when the session has
// one; otherwise the request must carry it.
func SetupSessionPayment(c *fiber.Ctx) error {
	token := c.Locals("user").(*jwt.Token)
	claims := token.Claims.(jwt.MapClaims)
	studentID, _ := uuid.Parse(claims["user_id"].(string))

	sessionID, err := uuid.Parse(c.Params("sessionId"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid session ID"})
	}

	var req SetupPaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse JSON"})
	}

	var session models.Session
	if err := database.DB.First(&session, "id = ?", sessionID).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Session not found"})
	}
	if session.StudentID != studentID {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "This is not your session"})
	}

	amount := req.Amount
	if session.CourseID != nil {
		var course models.Course
		if err := database.DB.First(&course, "id = ?", session.CourseID).Error; err == nil {
			amount = course.PricePerSession
		}
	}
	if amount <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "A positive amount is required"})
	}

	result, err := bookingService.SetupPayment(sessionID, amount, req.ForceTwoStage)
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(result)
}

// ConfirmSessionCompletion records the caller's side of the dual
// confirmation. The role comes from the JWT, not the request body.
func ConfirmSessionCompletion(c *fiber.Ctx) error {
	token := c.Locals("user").(*jwt.Token)
	claims := token.Claims.(jwt.MapClaims)
	callerID, _ := uuid.Parse(claims["user_id"].(string))
	role := claims["role"].(string)

	sessionID, err := uuid.Parse(c.Params("sessionId"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid session ID"})
	}

	if role != "student" && role != "tutor" {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Only the student or tutor can confirm a session"})
	}

	both, err := bookingService.ConfirmCompletion(sessionID, callerID, role)
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(fiber.Map{"both_confirmed": both})
}

func CancelSession(c *fiber.Ctx) error {
	token := c.Locals("user").(*jwt.Token)
	claims := token.Claims.(jwt.MapClaims)
	callerID, _ := uuid.Parse(claims["user_id"].(string))

	sessionID, err := uuid.Parse(c.Params("sessionId"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid session ID"})
	}

	session, err := bookingService.CancelSession(sessionID, callerID)
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(session)
}

func GetMySessions(c *fiber.Ctx) error {
	token := c.Locals("user").(*jwt.Token)
	claims := token.Claims.(jwt.MapClaims)
	studentID, _ := uuid.Parse(claims["user_id"].(string))

	var sessions []models.Session
	database.DB.
		Preload("Tutor").
		Preload("Course").
		Where("student_id = ?", studentID).
		Order("start_time desc").
		Find(&sessions)

	return c.JSON(sessions)
}

func GetMyTutorSessions(c *fiber.Ctx) error {
	token := c.Locals("user").(*jwt.Token)
	claims := token.Claims.(jwt.MapClaims)
	tutorID, _ := uuid.Parse(claims["user_id"].(string))

	var sessions []models.Session
	database.DB.
		Preload("Student").
		Preload("Course").
		Where("tutor_id = ?", tutorID).
		Order("start_time desc").
		Find(&sessions)

	return c.JSON(sessions)
}
