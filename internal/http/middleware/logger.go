package middleware

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"

	"retailapi/internal/logging"
)

// Logger is a middleware that logs each HTTP request as one JSON line on stdout, in UTC.
func Logger() fiber.Handler {
	return LoggerWithWriter(os.Stdout, time.UTC)
}

// LoggerWithWriter logs each request to w with timestamps in loc.
// Fields:
// - request_id (taken from context locals set by RequestID middleware)
// - method
// - path
// - status
// - latency (in milliseconds, as float)
// - ts
func LoggerWithWriter(w io.Writer, loc *time.Location) fiber.Handler {
	return RequestLogger(logging.New(w, loc, "info"))
}

// RequestLogger logs each request through logger.
func RequestLogger(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		// Process request
		err := c.Next()

		rid, _ := c.Locals(RequestIDLocalKey).(string)
		status := statusOf(c, err)
		latency := float64(time.Since(start).Microseconds()) / 1000

		level := slog.LevelInfo
		if status >= fiber.StatusInternalServerError {
			level = slog.LevelError
		}
		logger.LogAttrs(c.UserContext(), level, "http_request",
			slog.String("request_id", rid),
			slog.String("method", c.Method()),
			// Use only the path segment (no query string)
			slog.String("path", c.Path()),
			slog.Int("status", status),
			slog.Float64("latency", latency),
		)

		return err
	}
}

// statusOf returns the status the error handler will send for err, or the response status.
func statusOf(c *fiber.Ctx, err error) int {
	if err == nil {
		return c.Response().StatusCode()
	}
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return fiber.StatusInternalServerError
}
