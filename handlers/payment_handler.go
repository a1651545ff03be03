package handlers

import (
	"log"

	"tutorlink/database"
	"tutorlink/models"
	"tutorlink/notifications"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type stripeWebhookEvent struct {
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"object"`
	} `json:"data"`
}

// HandleStripeWebhook finalizes payment intents. Processing is
// idempotent: a transaction already in a terminal state is acknowledged
// without changes, so processor redeliveries are harmless.
func HandleStripeWebhook(c *fiber.Ctx) error {
	var event stripeWebhookEvent
	if err := c.BodyParser(&event); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse webhook payload"})
	}

	intentID := event.Data.Object.ID
	if intentID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Missing intent id"})
	}

	var txn models.PaymentTransaction
	if err := database.DB.Where("external_intent_id = ?", intentID).First(&txn).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Payment record not found"})
	}

	if txn.Terminal() {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"message": "Webhook already processed"})
	}

	switch event.Type {
	case "payment_intent.succeeded":
		err := database.DB.Transaction(func(tx *gorm.DB) error {
			txn.Status = models.TxnStatusSucceeded
			if err := tx.Save(&txn).Error; err != nil {
				return err
			}

			var session models.Session
			if err := tx.Preload("Student").Preload("Tutor").First(&session, "id = ?", txn.SessionID).Error; err != nil {
				return err
			}
			session.Status = models.SessionStatusScheduled
			session.PaymentStatus = models.PaymentStatusPaid
			if err := tx.Save(&session).Error; err != nil {
				return err
			}

			go func() {
				notifications.SendEmail(session.Student.FullName, session.Student.Email,
					"Your Session is Confirmed!",
					"<h1>Session Confirmed</h1><p>Your payment was successful and your session is scheduled.</p>")
				notifications.SendEmail(session.Tutor.FullName, session.Tutor.Email,
					"Session Payment Received!",
					"<h1>Session Scheduled</h1><p>Payment for session "+session.Reference+" completed. Please prepare for the class.</p>")
			}()
			return nil
		})
		if err != nil {
			log.Printf("🔥 CRITICAL: Error processing successful webhook for intent %s: %v", intentID, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to process webhook"})
		}

	case "payment_intent.payment_failed":
		txn.Status = models.TxnStatusFailed
		if err := database.DB.Save(&txn).Error; err != nil {
			log.Printf("🔥 Failed to record failed intent %s: %v", intentID, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to process webhook"})
		}

	case "payment_intent.canceled":
		txn.Status = models.TxnStatusCanceled
		if err := database.DB.Save(&txn).Error; err != nil {
			log.Printf("🔥 Failed to record canceled intent %s: %v", intentID, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to process webhook"})
		}

	default:
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"message": "Event ignored"})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"message": "Webhook processed successfully"})
}
