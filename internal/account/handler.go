package account

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes account HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds an account HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type accountResponse struct {
	ID          string    `json:"id"`
	AccountCode string    `json:"account_code"`
	Currency    string    `json:"currency"`
	Status      string    `json:"status"`
	Balance     string    `json:"balance"`
	AsOf        time.Time `json:"as_of"`
}

// Me returns the authenticated user's account and balance.
func (h *Handler) Me(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	if uid == "" {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	a, err := h.service.ForOwner(c.UserContext(), uid)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fiber.NewError(http.StatusNotFound, err.Error())
		}
		return err
	}
	bal, err := h.service.Balance(c.UserContext(), a)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(accountResponse{
		ID:          a.ID,
		AccountCode: a.AccountCode,
		Currency:    a.Currency,
		Status:      a.Status,
		Balance:     FormatAmount(bal.Amount),
		AsOf:        bal.AsOf,
	})
}
