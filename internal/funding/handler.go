package funding

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/brokerline/brokerline/internal/account"
	"github.com/brokerline/brokerline/internal/ledger"
)

// Handler exposes HTTP endpoints for account funding.
type Handler struct {
	service *Service
}

// NewHandler constructs a funding handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// TopUp credits the caller's account from a card.
func (h *Handler) TopUp(c *fiber.Ctx) error {
	var req TopUpRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	uid, _ := c.Locals("user_id").(string)

	result, err := h.service.TopUp(c.UserContext(), TopUpInput{
		OwnerID:    uid,
		Amount:     req.Amount,
		ClientTxID: req.ClientTxID,
		CardNumber: req.CardNumber,
		Expiry:     req.Expiry,
		CVV:        req.CVV,
	})
	return respond(c, result, err)
}

// Withdraw files a withdrawal request from the caller's account.
func (h *Handler) Withdraw(c *fiber.Ctx) error {
	var req WithdrawalRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	uid, _ := c.Locals("user_id").(string)

	result, err := h.service.RequestWithdrawal(c.UserContext(), WithdrawalInput{
		OwnerID:    uid,
		Amount:     req.Amount,
		ClientTxID: req.ClientTxID,
		CardNumber: req.CardNumber,
	})
	return respond(c, result, err)
}

func respond(c *fiber.Ctx, result Result, err error) error {
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrDuplicateTransaction):
			return c.Status(http.StatusOK).JSON(toResponse(result))
		case errors.Is(err, ledger.ErrInsufficientFunds):
			return fiber.NewError(http.StatusUnprocessableEntity, err.Error())
		case errors.Is(err, account.ErrNotFound):
			return fiber.NewError(http.StatusNotFound, err.Error())
		case errors.Is(err, ErrDeclined):
			return fiber.NewError(http.StatusPaymentRequired, err.Error())
		case errors.Is(err, account.ErrInvalidAmount), errors.Is(err, ErrInvalidCard):
			return fiber.NewError(http.StatusBadRequest, err.Error())
		default:
			return err
		}
	}
	return c.Status(http.StatusCreated).JSON(toResponse(result))
}

func toResponse(result Result) Response {
	return Response{
		TransactionID:     result.TransactionID,
		Status:            result.Status,
		Balance:           account.FormatAmount(result.Balance),
		Currency:          result.Currency,
		AcquirerReference: result.AcquirerReference,
		CompletedAt:       result.CompletedAt,
	}
}
