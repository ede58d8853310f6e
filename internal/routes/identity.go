package routes

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/brokerline/brokerline/internal/account"
	"github.com/brokerline/brokerline/internal/auth"
	"github.com/brokerline/brokerline/internal/identity"
)

type profileResponse struct {
	UserID       string     `json:"user_id"`
	Phone        string     `json:"phone"`
	HasPin       bool       `json:"has_pin"`
	DeviceID     string     `json:"device_id"`
	TokenVersion int        `json:"token_version"`
	CreatedAt    time.Time  `json:"created_at"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
}

func toProfile(u identity.User) profileResponse {
	return profileResponse{
		UserID:       u.ID,
		Phone:        u.Phone,
		HasPin:       u.HasPIN(),
		DeviceID:     u.DeviceID,
		TokenVersion: u.TokenVersion,
		CreatedAt:    u.CreatedAt,
		LastLogin:    u.LastLogin,
	}
}

// RegisterIdentityRoutes wires registration. A new user gets a cash account and
// an initial session so the client can install a PIN right away.
func RegisterIdentityRoutes(r fiber.Router, ids *identity.Service, tokens *auth.Service, accounts *account.Service, logger *slog.Logger) {
	r.Post("/identity/register", func(c *fiber.Ctx) error {
		var req struct {
			Phone    string `json:"phone"`
			PIN      string `json:"pin"`
			DeviceID string `json:"device_id"`
		}
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		user, err := ids.Register(c.UserContext(), identity.Registration{Phone: req.Phone, PIN: req.PIN, DeviceID: req.DeviceID})
		if err != nil {
			if errors.Is(err, identity.ErrUserExists) {
				return fiber.NewError(http.StatusConflict, err.Error())
			}
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		acct, err := accounts.Provision(c.UserContext(), user.ID)
		if err != nil {
			logger.Error("provision account", slog.String("user_id", user.ID), slog.Any("error", err))
			return fiber.NewError(http.StatusInternalServerError, "account provisioning failed")
		}
		pair, err := tokens.Issue(user)
		if err != nil {
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
		logger.Info("identity.register completed",
			slog.String("user_id", user.ID),
			slog.String("phone", user.Phone),
			slog.String("account_id", acct.ID),
		)
		return c.Status(http.StatusCreated).JSON(fiber.Map{
			"user":          toProfile(user),
			"account_id":    acct.ID,
			"access_token":  pair.AccessToken,
			"refresh_token": pair.RefreshToken,
			"expires_in":    pair.ExpiresIn,
		})
	})
}

// RegisterProfileRoute exposes GET /me for the authenticated caller.
func RegisterProfileRoute(r fiber.Router, jwt fiber.Handler, ids *identity.Service) {
	r.Get("/me", jwt, func(c *fiber.Ctx) error {
		uid, _ := c.Locals("user_id").(string)
		user, err := ids.FindByID(c.UserContext(), uid)
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, "user not found")
		}
		return c.JSON(toProfile(user))
	})
}

// RegisterLookupRoute lets a signed-out device find out whether it can log in
// by PIN. It shares the login rate limit.
func RegisterLookupRoute(r fiber.Router, rateLimit fiber.Handler, ids *identity.Service) {
	r.Post("/identity/lookup", rateLimit, func(c *fiber.Ctx) error {
		var req struct {
			Phone    string `json:"phone"`
			DeviceID string `json:"device_id"`
		}
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		if req.Phone == "" {
			return fiber.NewError(http.StatusBadRequest, "phone is required")
		}
		status, err := ids.LookupPIN(c.UserContext(), req.Phone, req.DeviceID)
		if err != nil {
			return fiber.NewError(http.StatusInternalServerError, "lookup failed")
		}
		return c.JSON(fiber.Map{
			"registered": status.Registered,
			"has_pin":    status.HasPIN,
		})
	})
}
