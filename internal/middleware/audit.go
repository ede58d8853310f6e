package middleware

import (
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Audit emits one structured record per request. The caller is included once
// JWTAuth has run, so it is most useful when mounted before route groups.
func Audit(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			status = fiber.StatusInternalServerError
			var fe *fiber.Error
			if errors.As(err, &fe) {
				status = fe.Code
			}
		}

		attrs := []any{
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.Int("status", status),
			slog.Duration("duration", time.Since(start)),
		}
		if requestID, _ := c.Locals(requestIDHeader).(string); requestID != "" {
			attrs = append(attrs, slog.String("request_id", requestID))
		}
		if uid, _ := c.Locals("user_id").(string); uid != "" {
			attrs = append(attrs, slog.String("user_id", uid))
		}

		switch {
		case status >= 500:
			logger.Error("request completed", append(attrs, slog.Any("error", err))...)
		case err != nil:
			logger.Info("request rejected", append(attrs, slog.String("reason", err.Error()))...)
		default:
			logger.Info("request completed", attrs...)
		}
		return err
	}
}
