package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/aquadrop/aquadrop/internal/auth"
	"github.com/aquadrop/aquadrop/internal/identity"
)

// LocalPhone is the fiber.Ctx local holding the authenticated phone number.
const LocalPhone = "phone"

// Authenticator resolves a bearer token with a given scope to an account.
type Authenticator interface {
	Authenticate(ctx context.Context, token, scope string) (identity.Account, error)
}

// JWTAuth returns a middleware that validates bearer tokens of the given
// scope and checks the token version against the account.
func JWTAuth(authn Authenticator, scope string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		tokenStr := strings.TrimSpace(authz[len("Bearer "):])

		account, err := authn.Authenticate(c.UserContext(), tokenStr, scope)
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, "invalid token")
		}

		c.Locals(auth.LocalAccountID, account.ID)
		c.Locals(LocalPhone, account.Phone)
		return c.Next()
	}
}
