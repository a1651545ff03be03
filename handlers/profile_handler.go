package handlers

import (
	"tutorlink/database"
	"tutorlink/models"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
)

type UpdateProfileRequest struct {
	FullName *string `json:"full_name"`
	TimeZone *string `json:"time_zone"`
}

type UpdateTutorProfileRequest struct {
	Headline         *string `json:"headline"`
	Bio              *string `json:"bio"`
	WeeklySessionCap *int    `json:"weekly_session_cap" validate:"omitempty,min=1,max=100"`
}

type UpdatePayoutAccountRequest struct {
	PayoutAccountID string `json:"payout_account_id" validate:"required"`
	PayoutsEnabled  bool   `json:"payouts_enabled"`
}

func GetProfile(c *fiber.Ctx) error {
	token := c.Locals("user").(*jwt.Token)
	claims := token.Claims.(jwt.MapClaims)
	userID := claims["user_id"].(string)

	var user models.User
	if err := database.DB.Where("id = ?", userID).First(&user).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "User not found"})
	}

	return c.JSON(user)
}

func UpdateProfile(c *fiber.Ctx) error {
	token := c.Locals("user").(*jwt.Token)
	claims := token.Claims.(jwt.MapClaims)
	userID := claims["user_id"].(string)

	var user models.User
	if err := database.DB.Where("id = ?", userID).First(&user).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "User not found"})
	}

	var req UpdateProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse JSON"})
	}

	if req.FullName != nil {
		user.FullName = *req.FullName
	}
	if req.TimeZone != nil {
		user.TimeZone = req.TimeZone
	}

	database.DB.Save(&user)

	return c.JSON(user)
}

func UpdateTutorProfile(c *fiber.Ctx) error {
	token := c.Locals("user").(*jwt.Token)
	claims := token.Claims.(jwt.MapClaims)
	userID := claims["user_id"].(string)

	var tutor models.Tutor
	if err := database.DB.Where("user_id = ?", userID).First(&tutor).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Tutor profile not found"})
	}

	var req UpdateTutorProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse JSON"})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	if req.Headline != nil {
		tutor.Headline = req.Headline
	}
	if req.Bio != nil {
		tutor.Bio = req.Bio
	}
	if req.WeeklySessionCap != nil {
		tutor.WeeklySessionCap = req.WeeklySessionCap
	}

	database.DB.Save(&tutor)

	return c.JSON(tutor)
}

// UpdatePayoutAccount records the processor's connected-account state for
// the tutor. PayoutsEnabled comes from the processor's onboarding webhook
// or dashboard, not from the tutor's say-so; this endpoint is admin-only.
func UpdatePayoutAccount(c *fiber.Ctx) error {
	tutorID := c.Params("tutorId")

	var tutor models.Tutor
	if err := database.DB.Where("user_id = ?", tutorID).First(&tutor).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Tutor profile not found"})
	}

	var req UpdatePayoutAccountRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse JSON"})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	tutor.PayoutAccountID = &req.PayoutAccountID
	tutor.PayoutsEnabled = req.PayoutsEnabled
	if tutor.Status == "pending" && req.PayoutsEnabled {
		tutor.Status = "active"
	}

	database.DB.Save(&tutor)

	return c.JSON(tutor)
}
