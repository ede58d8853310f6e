package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/brokerline/brokerline/internal/auth"
)

// AuthMiddleware groups the handlers mounted in front of auth endpoints.
type AuthMiddleware struct {
	JWT         fiber.Handler
	RateLimit   fiber.Handler
	Idempotency fiber.Handler
}

// RegisterAuthRoutes wires PIN, token and biometric endpoints.
func RegisterAuthRoutes(r fiber.Router, h *auth.Handler, mw AuthMiddleware) {
	group := r.Group("/auth")
	group.Post("/pin/login", mw.RateLimit, h.PINLogin)
	group.Post("/refresh", h.Refresh)
	group.Post("/logout", mw.JWT, h.Logout)
	group.Put("/pin", mw.JWT, mw.Idempotency, h.InstallPIN)

	bio := group.Group("/biometric")
	bio.Post("/options", h.BiometricOptions)
	bio.Post("/login", h.BiometricLogin)
	bio.Post("/keys", mw.JWT, h.RegisterBiometricKey)
	bio.Delete("/keys/:keyId", mw.JWT, h.RevokeBiometricKey)
}
