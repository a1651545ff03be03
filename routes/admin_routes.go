package routes

import (
	"tutorlink/handlers"
	"tutorlink/middleware"

	"github.com/gofiber/fiber/v2"
)

func AdminRoutes(app *fiber.App) {
	api := app.Group("/api/v1")

	admin := api.Group("/admin", middleware.Protected(), middleware.AdminRequired())
	admin.Get("/transfers", handlers.ListPendingTransfers)
	admin.Post("/transfers/reconcile", handlers.TriggerTransferReconciliation)
}
