package observability

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// UnmatchedRoute labels requests that no registered route handled, so
// arbitrary paths cannot grow the label set.
const UnmatchedRoute = "unmatched"

// Middleware records request count and latency per route template.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		own := c.Route()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}

		route := UnmatchedRoute
		if r := c.Route(); r != nil && r != own && r.Path != "" {
			route = r.Path
		}
		code := strconv.Itoa(status)
		HTTPRequestsTotal.WithLabelValues(c.Method(), route, code).Inc()
		HTTPRequestDuration.WithLabelValues(c.Method(), route, code).Observe(time.Since(start).Seconds())
		return err
	}
}

// Handler exposes the default prometheus registry.
func Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
