package routes

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/aquadrop/aquadrop/internal/identity"
	"github.com/aquadrop/aquadrop/internal/verification"
)

// RegisterProfileRoute exposes the authenticated account.
func RegisterProfileRoute(r fiber.Router, ids *identity.Service) {
	r.Get("/me", func(c *fiber.Ctx) error {
		uid := accountIDFrom(c)
		if uid == "" {
			return c.SendStatus(http.StatusUnauthorized)
		}
		account, err := ids.Get(c.UserContext(), uid)
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, "account not found")
		}
		return c.JSON(fiber.Map{
			"account":       verification.NewAccountView(account),
			"token_version": account.TokenVersion,
			"last_login":    account.LastLogin,
		})
	})
}
