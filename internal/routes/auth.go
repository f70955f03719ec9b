package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/aquadrop/aquadrop/internal/auth"
)

// RegisterAuthRoutes wires PIN setup, login and logout. setupAuth guards the
// initial PIN endpoint with a pin_setup token; sessionAuth guards logout.
func RegisterAuthRoutes(r fiber.Router, h *auth.Handler, rateLimiter, setupAuth, sessionAuth fiber.Handler) {
	group := r.Group("/auth")
	if rateLimiter != nil {
		group.Post("/login", rateLimiter, h.Login)
	} else {
		group.Post("/login", h.Login)
	}
	group.Post("/pin", setupAuth, h.SetPIN)
	group.Post("/pin/reset", h.ResetPIN)
	group.Post("/logout", sessionAuth, h.Logout)
}
