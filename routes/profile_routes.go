package routes

import (
	"tutorlink/handlers"
	"tutorlink/middleware"

	"github.com/gofiber/fiber/v2"
)

func ProfileRoutes(app *fiber.App) {
	api := app.Group("/api/v1")

	profile := api.Group("/profile", middleware.Protected())
	profile.Get("/me", handlers.GetProfile)
	profile.Patch("/me", handlers.UpdateProfile)

	tutorProfile := api.Group("/tutors/me/profile", middleware.Protected(), middleware.TutorRequired())
	tutorProfile.Patch("", handlers.UpdateTutorProfile)

	admin := api.Group("/admin", middleware.Protected(), middleware.AdminRequired())
	admin.Patch("/tutors/:tutorId/payout-account", handlers.UpdatePayoutAccount)
}
