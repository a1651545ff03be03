package handlers

import (
	"tutorlink/database"
	"tutorlink/models"

	"github.com/gofiber/fiber/v2"
)

// ListPendingTransfers gives operators visibility into settlement state.
func ListPendingTransfers(c *fiber.Ctx) error {
	query := database.DB.Preload("Tutor").Order("created_at asc")

	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var transfers []models.PendingTransfer
	if err := query.Find(&transfers).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to retrieve transfers"})
	}

	return c.JSON(transfers)
}

// TriggerTransferReconciliation runs the reconciler outside its schedule,
// for operators who need a settlement pass right now.
func TriggerTransferReconciliation(c *fiber.Ctx) error {
	summary := Reconciler.Run()
	return c.JSON(summary)
}
