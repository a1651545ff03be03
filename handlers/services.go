package handlers

import (
	"strconv"
	"time"

	"tutorlink/apperrors"
	config "tutorlink/configs"
	"tutorlink/database"
	"tutorlink/jobs"
	"tutorlink/notifications"
	"tutorlink/payments"
	"tutorlink/ratelim"
	"tutorlink/services"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

var validate = validator.New()

var (
	bookingService *services.BookingService

	// Reconciler is shared with the cron scheduler in main.
	Reconciler *jobs.TransferReconciler
)

// InitServices wires the service layer. Call after database.ConnectDB.
func InitServices() {
	gateway := payments.NewStripeService()

	limiter := ratelim.NewPaymentLimiter(
		config.ConfigInt("PAYMENT_RATE_MAX_REQUESTS", ratelim.DefaultMaxRequests),
		time.Duration(config.ConfigInt("PAYMENT_RATE_WINDOW_SECONDS", 60))*time.Second,
		time.Duration(config.ConfigInt("PAYMENT_RATE_MIN_INTERVAL_SECONDS", 5))*time.Second,
		time.Duration(config.ConfigInt("PAYMENT_RATE_COOLDOWN_SECONDS", 600))*time.Second,
	)

	bookingService = services.NewBookingService(
		database.DB,
		gateway,
		limiter,
		config.ConfigFloat("PLATFORM_FEE_PERCENT", services.DefaultPlatformFeePercent),
		config.ConfigInt("BOOKING_BUFFER_MINUTES", services.DefaultBufferMinutes),
	)

	Reconciler = jobs.NewTransferReconciler(database.DB, gateway, notifications.NotifyAdminTransferFailures)
}

// respondServiceError maps the service error taxonomy onto HTTP statuses.
func respondServiceError(c *fiber.Ctx, err error) error {
	if apperrors.IsValidation(err) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if apperrors.IsConflict(err) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	}
	if re, ok := apperrors.IsRateLimited(err); ok {
		c.Set("Retry-After", strconv.Itoa(int(re.RetryAfter.Seconds())+1))
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": err.Error()})
	}
	if pe, ok := apperrors.IsPaymentSetup(err); ok {
		switch pe.Kind {
		case apperrors.PaymentKindDeclined:
			return c.Status(fiber.StatusPaymentRequired).JSON(fiber.Map{"error": err.Error()})
		case apperrors.PaymentKindAccountNotReady:
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
		default:
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "Payment could not be initiated, please try again."})
		}
	}
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal server error"})
}
