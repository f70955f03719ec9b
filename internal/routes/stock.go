package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/aquadrop/aquadrop/internal/stock"
)

// RegisterStockRoutes wires stock endpoints. Movements go through the
// idempotency middleware when one is configured.
func RegisterStockRoutes(r fiber.Router, h *stock.Handler, idempotency fiber.Handler) {
	group := r.Group("/stock")
	if idempotency != nil {
		group.Use(idempotency)
	}
	group.Get("", h.Levels)
	group.Post("/production", h.Production)
	group.Post("/transfer", h.Transfer)
	group.Post("/sale", h.Sale)
}
