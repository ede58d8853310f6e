package middleware

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
)

func TestLoginRateLimitPerPhone(t *testing.T) {
	cache := newTestCache(t)
	app := fiber.New()
	app.Post("/login", LoginRateLimit(cache, 2), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	post := func(phone string) int {
		req := httptest.NewRequest(fiber.MethodPost, "/login", strings.NewReader(`{"phone":"`+phone+`"}`))
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}

	for i := 0; i < 2; i++ {
		if code := post("+70000000000"); code != fiber.StatusOK {
			t.Fatalf("attempt %d: expected 200, got %d", i, code)
		}
	}
	if code := post("+70000000000"); code != fiber.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", code)
	}
	if code := post("+71111111111"); code != fiber.StatusOK {
		t.Fatalf("other phone must not be limited, got %d", code)
	}
}

func TestLoginRateLimitWithoutRedis(t *testing.T) {
	app := fiber.New()
	app.Post("/login", LoginRateLimit(nil, 1), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	for i := 0; i < 3; i++ {
		resp, err := app.Test(httptest.NewRequest(fiber.MethodPost, "/login", nil))
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		if resp.StatusCode != fiber.StatusOK {
			t.Fatalf("expected pass-through, got %d", resp.StatusCode)
		}
	}
}
