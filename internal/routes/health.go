package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/brokerline/brokerline/internal/metrics"
)

// RegisterHealthRoutes adds a readiness endpoint that pings configured backends.
func RegisterHealthRoutes(app *fiber.App, d Deps) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		dbStatus := "disabled"
		redisStatus := "disabled"

		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if d.DB != nil {
			dbStatus = "ok"
			if err := d.DB.Ping(ctx); err != nil {
				dbStatus = err.Error()
			}
		}
		if d.Cache != nil {
			redisStatus = "ok"
			if err := d.Cache.Ping(ctx).Err(); err != nil {
				redisStatus = err.Error()
			}
		}
		status := http.StatusOK
		if !healthy(dbStatus) || !healthy(redisStatus) {
			status = http.StatusServiceUnavailable
		}
		return c.Status(status).JSON(fiber.Map{
			"status":    fiber.Map{"postgres": dbStatus, "redis": redisStatus},
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		})
	})
}

func healthy(status string) bool {
	return status == "ok" || status == "disabled"
}

// RegisterMetricsRoute serves the prometheus registry on /metrics.
func RegisterMetricsRoute(app *fiber.App, registry *prometheus.Registry) {
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler(registry)))
}
