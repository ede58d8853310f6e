package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/brokerline/brokerline/internal/auth"
)

// JWTAuth validates bearer access tokens and exposes the caller in Locals
// ("user_id", "token_version").
func JWTAuth(tokens *auth.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		tokenStr := strings.TrimSpace(authz[len("Bearer "):])
		user, err := tokens.VerifyAccess(c.UserContext(), tokenStr)
		if err != nil {
			if errors.Is(err, auth.ErrTokenRevoked) {
				return fiber.NewError(http.StatusUnauthorized, "token invalidated")
			}
			return fiber.NewError(http.StatusUnauthorized, "invalid token")
		}

		c.Locals("user_id", user.ID)
		c.Locals("token_version", user.TokenVersion)
		return c.Next()
	}
}
