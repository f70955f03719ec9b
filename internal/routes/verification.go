package routes

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/aquadrop/aquadrop/internal/identity"
	"github.com/aquadrop/aquadrop/internal/notification"
	"github.com/aquadrop/aquadrop/internal/verification"
)

// RegisterVerificationRoutes wires phone registration endpoints.
func RegisterVerificationRoutes(r fiber.Router, h *verification.Handler, rateLimiter fiber.Handler) {
	group := r.Group("/verification")
	group.Post("/request", rateLimiter, h.Request)
	group.Post("/confirm", h.Confirm)
}

// RegisterDebugRoutes exposes the last dispatched code per phone. Only wired
// in development with DEBUG_VERIFICATION_CODES enabled.
func RegisterDebugRoutes(r fiber.Router, slot notification.DebugSlot) {
	r.Get("/debug/verification/:phone", func(c *fiber.Ctx) error {
		phone := identity.NormalizePhone(c.Params("phone"))
		code, err := slot.Read(c.UserContext(), phone)
		if errors.Is(err, notification.ErrNoDebugCode) {
			return fiber.NewError(http.StatusNotFound, err.Error())
		}
		if err != nil {
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(fiber.Map{"phone": phone, "code": code})
	})
}
