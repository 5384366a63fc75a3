package handler

import (
	"context"
	"encoding/json"

	"github.com/gofiber/fiber/v2"

	"retailapi/internal/model"
)

// Publisher sends a raw message for kind to its queue.
type Publisher interface {
	Publish(ctx context.Context, kind model.Kind, payload []byte) error
}

// EnqueueEntity publishes the request body as a creation message for kind.
// The consumer validates the fields; only JSON well-formedness is checked here.
//
// @Summary  Queue an entity for creation
// @Tags     queue
// @Accept   json
// @Param    kind  path  string  true  "order, product or customer"
// @Success  202
// @Failure  400 {object} errorPayload
// @Failure  413 {object} errorPayload
// @Failure  503 {object} errorPayload
// @Router   /{kind}/queue [post]
func EnqueueEntity(pub Publisher, kind model.Kind) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if pub == nil {
			return writeError(c, fiber.StatusServiceUnavailable, "QUEUE_DISABLED", "queue is not configured")
		}
		body, err := jsonBody(c)
		if err != nil {
			return writeBodyError(c, err)
		}
		if !json.Valid(body) {
			return writeError(c, fiber.StatusBadRequest, "INVALID_JSON", "body must be valid JSON")
		}
		if err := pub.Publish(c.UserContext(), kind, body); err != nil {
			return writeError(c, fiber.StatusBadGateway, "QUEUE_UNAVAILABLE", "failed to publish message")
		}
		return c.SendStatus(fiber.StatusAccepted)
	}
}
