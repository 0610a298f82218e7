package http

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/melih/simfleet/internal/log"
	"github.com/melih/simfleet/internal/metrics"
)

// requestLogger logs each request with zerolog and records API metrics.
func requestLogger() fiber.Handler {
	logger := log.WithComponent("http")
	return func(c *fiber.Ctx) error {
		timer := metrics.NewTimer()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}
		route := c.Route().Path
		// Method points into the reused request buffer; label values outlive it.
		method := utils.CopyString(c.Method())

		metrics.APIRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
		timer.ObserveDurationVec(metrics.APIRequestDuration, method, route)

		event := logger.Info()
		if status >= fiber.StatusInternalServerError {
			event = logger.Warn()
		}
		event.
			Str("request_id", c.GetRespHeader(fiber.HeaderXRequestID)).
			Str("method", method).
			Str("path", c.Path()).
			Int("status", status).
			Dur("duration", timer.Duration()).
			Msg("HTTP request")
		return err
	}
}
