package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/brokerline/brokerline/internal/account"
	"github.com/brokerline/brokerline/internal/funding"
)

// RegisterAccountRoutes wires the cash account and funding endpoints.
func RegisterAccountRoutes(r fiber.Router, jwt, idempotency fiber.Handler, accounts *account.Handler, h *funding.Handler) {
	group := r.Group("/account", jwt)
	group.Get("", accounts.Me)
	group.Post("/top-up", idempotency, h.TopUp)
	group.Post("/withdrawals", idempotency, h.Withdraw)
}
