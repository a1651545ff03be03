package routes

import (
	"tutorlink/handlers"
	"tutorlink/middleware"

	"github.com/gofiber/fiber/v2"
)

func AvailabilityRoutes(app *fiber.App) {
	api := app.Group("/api/v1")

	api.Get("/tutors/:tutorId/slots", handlers.GetTutorSlots)

	tutorAvailability := api.Group("/tutors/me/availability", middleware.Protected(), middleware.TutorRequired())
	tutorAvailability.Get("", handlers.GetMyAvailability)
	tutorAvailability.Post("", handlers.SetMyAvailability)
}
