package routes

import (
	"tutorlink/handlers"
	"tutorlink/middleware"

	"github.com/gofiber/fiber/v2"
)

func BookingRoutes(app *fiber.App) {
	api := app.Group("/api/v1")

	session := api.Group("/sessions", middleware.Protected())
	session.Get("/me", handlers.GetMySessions)
	session.Post("", handlers.CreateSession)
	session.Post("/:sessionId/payment", handlers.SetupSessionPayment)
	session.Post("/:sessionId/confirm", handlers.ConfirmSessionCompletion)
	session.Post("/:sessionId/cancel", handlers.CancelSession)

	tutorSession := api.Group("/tutor/sessions", middleware.Protected(), middleware.TutorRequired())
	tutorSession.Get("/me", handlers.GetMyTutorSessions)
}
