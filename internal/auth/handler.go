package auth

import (
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/brokerline/brokerline/internal/identity"
	"github.com/brokerline/brokerline/internal/metrics"
	"github.com/brokerline/brokerline/internal/notification"
)

// Handler exposes PIN, token and biometric endpoints.
type Handler struct {
	users  *identity.Service
	tokens *Service
	bio    *BiometricService
	push   *notification.Dispatcher
	logger *slog.Logger
}

// NewHandler builds the auth HTTP handler.
func NewHandler(users *identity.Service, tokens *Service, bio *BiometricService, push *notification.Dispatcher, logger *slog.Logger) *Handler {
	return &Handler{users: users, tokens: tokens, bio: bio, push: push, logger: logger}
}

type pinLoginRequest struct {
	Phone     string `json:"phone"`
	PIN       string `json:"pin"`
	DeviceID  string `json:"device_id"`
	PushToken string `json:"push_token"`
}

type loginResponse struct {
	UserID       string `json:"user_id"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenVersion int    `json:"token_version"`
}

// PINLogin verifies phone + PIN and returns a token pair.
func (h *Handler) PINLogin(c *fiber.Ctx) error {
	var req pinLoginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	user, err := h.users.Authenticate(c.UserContext(), identity.Credentials{Phone: req.Phone, PIN: req.PIN, DeviceID: req.DeviceID})
	if err != nil {
		metrics.AuthAttempts.WithLabelValues(metrics.MethodPIN, outcomeFor(err)).Inc()
		h.logger.Info("pin login rejected", slog.String("phone", req.Phone), slog.Any("error", err))
		return identityError(err)
	}
	if err := h.push.RegisterToken(c.UserContext(), user.ID, req.PushToken); err != nil {
		h.logger.Warn("register push token", slog.String("user_id", user.ID), slog.Any("error", err))
	}
	return h.issue(c, user, metrics.MethodPIN)
}

func (h *Handler) issue(c *fiber.Ctx, user identity.User, method string) error {
	pair, err := h.tokens.Issue(user)
	if err != nil {
		metrics.AuthAttempts.WithLabelValues(method, metrics.OutcomeError).Inc()
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	metrics.AuthAttempts.WithLabelValues(method, metrics.OutcomeSuccess).Inc()
	h.push.LoginAlert(c.UserContext(), user.ID, method)
	return c.Status(http.StatusOK).JSON(loginResponse{
		UserID:       user.ID,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    pair.ExpiresIn,
		TokenVersion: user.TokenVersion,
	})
}

type installPINRequest struct {
	PIN string `json:"pin"`
}

// InstallPIN sets or replaces the authenticated user's PIN.
func (h *Handler) InstallPIN(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	var req installPINRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := h.users.SetPIN(c.UserContext(), uid, req.PIN); err != nil {
		metrics.PINInstalls.WithLabelValues(metrics.OutcomeRejected).Inc()
		return identityError(err)
	}
	metrics.PINInstalls.WithLabelValues(metrics.OutcomeSuccess).Inc()
	h.push.PINChanged(c.UserContext(), uid)
	return c.Status(http.StatusOK).JSON(fiber.Map{"status": "pin_installed"})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Refresh issues a new access token using a valid refresh token.
func (h *Handler) Refresh(c *fiber.Ctx) error {
	var req refreshRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	pair, err := h.tokens.Refresh(c.UserContext(), req.RefreshToken)
	if err != nil {
		metrics.AuthAttempts.WithLabelValues(metrics.MethodRefresh, metrics.OutcomeRejected).Inc()
		return fiber.NewError(http.StatusUnauthorized, err.Error())
	}
	metrics.AuthAttempts.WithLabelValues(metrics.MethodRefresh, metrics.OutcomeSuccess).Inc()
	return c.Status(http.StatusOK).JSON(pair)
}

// Logout invalidates existing tokens by bumping the token version.
func (h *Handler) Logout(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	if err := h.tokens.Logout(c.UserContext(), uid); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"status": "logged_out"})
}

type registerKeyRequest struct {
	PublicKey  string `json:"public_key"`
	DeviceName string `json:"device_name"`
}

// RegisterBiometricKey enrolls a device public key (base64 raw ed25519).
func (h *Handler) RegisterBiometricKey(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	var req registerKeyRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	pub, err := base64.StdEncoding.DecodeString(req.PublicKey)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "public_key must be base64")
	}
	key, err := h.bio.RegisterKey(c.UserContext(), uid, pub, req.DeviceName)
	if err != nil {
		if errors.Is(err, ErrInvalidPublicKey) {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"key_id":      key.ID,
		"device_name": key.DeviceName,
		"created_at":  key.CreatedAt,
	})
}

// RevokeBiometricKey removes one of the caller's device keys.
func (h *Handler) RevokeBiometricKey(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	if err := h.bio.RevokeKey(c.UserContext(), uid, c.Params("keyId")); err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return fiber.NewError(http.StatusNotFound, err.Error())
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.SendStatus(http.StatusNoContent)
}

type optionsRequest struct {
	UserID string `json:"user_id"`
	KeyID  string `json:"key_id"`
}

type optionsResponse struct {
	Mode        string    `json:"mode"`
	ChallengeID string    `json:"challenge_id"`
	Challenge   string    `json:"challenge"`
	KeyID       string    `json:"key_id"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// BiometricOptions issues a login challenge for a registered device key.
func (h *Handler) BiometricOptions(c *fiber.Ctx) error {
	var req optionsRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	ch, err := h.bio.Options(c.UserContext(), req.UserID, req.KeyID)
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return fiber.NewError(http.StatusNotFound, err.Error())
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	metrics.ChallengesIssued.Inc()
	return c.Status(http.StatusOK).JSON(optionsResponse{
		Mode:        BiometricModeServer,
		ChallengeID: ch.ID,
		Challenge:   base64.StdEncoding.EncodeToString(ch.Nonce),
		KeyID:       ch.KeyID,
		ExpiresAt:   ch.ExpiresAt,
	})
}

type biometricLoginRequest struct {
	ChallengeID string `json:"challenge_id"`
	KeyID       string `json:"key_id"`
	Signature   string `json:"signature"`
}

// BiometricLogin exchanges a signed challenge for a token pair.
func (h *Handler) BiometricLogin(c *fiber.Ctx) error {
	var req biometricLoginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	sig, err := base64.StdEncoding.DecodeString(req.Signature)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "signature must be base64")
	}
	user, err := h.bio.Login(c.UserContext(), req.ChallengeID, req.KeyID, sig)
	if err != nil {
		switch {
		case errors.Is(err, ErrChallengeNotFound), errors.Is(err, ErrBadSignature), errors.Is(err, ErrKeyNotFound):
			metrics.AuthAttempts.WithLabelValues(metrics.MethodBiometric, metrics.OutcomeRejected).Inc()
			return fiber.NewError(http.StatusUnauthorized, err.Error())
		default:
			metrics.AuthAttempts.WithLabelValues(metrics.MethodBiometric, metrics.OutcomeError).Inc()
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
	}
	return h.issue(c, user, metrics.MethodBiometric)
}

func outcomeFor(err error) string {
	switch {
	case errors.Is(err, identity.ErrLocked):
		return metrics.OutcomeLocked
	case errors.Is(err, identity.ErrInvalidCredentials), errors.Is(err, identity.ErrDeviceMismatch),
		errors.Is(err, identity.ErrDeviceRequired), errors.Is(err, identity.ErrPINNotSet):
		return metrics.OutcomeRejected
	default:
		return metrics.OutcomeError
	}
}

func identityError(err error) error {
	switch {
	case errors.Is(err, identity.ErrInvalidCredentials):
		return fiber.NewError(http.StatusUnauthorized, err.Error())
	case errors.Is(err, identity.ErrLocked):
		return fiber.NewError(http.StatusLocked, err.Error())
	case errors.Is(err, identity.ErrDeviceMismatch), errors.Is(err, identity.ErrDeviceRequired):
		return fiber.NewError(http.StatusForbidden, err.Error())
	case errors.Is(err, identity.ErrPINNotSet):
		return fiber.NewError(http.StatusConflict, err.Error())
	case errors.Is(err, identity.ErrInvalidPIN):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, identity.ErrNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}
