package handler

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"retailapi/internal/model"
	"retailapi/internal/service"
)

func entityID(c *fiber.Ctx) (string, bool) {
	id := c.Params("id")
	if _, err := uuid.Parse(id); err != nil {
		return "", false
	}
	return id, true
}

// CreateWithImage ingests a multipart form carrying the kind's fields and one image part.
//
// @Summary  Create an entity with an image
// @Tags     entities
// @Accept   multipart/form-data
// @Produce  plain
// @Param    kind  path  string  true  "order, product or customer"
// @Success  201 {string} string
// @Failure  400 {object} errorPayload
// @Failure  413 {object} errorPayload
// @Failure  500 {object} errorPayload
// @Router   /{kind}-with-image [post]
func CreateWithImage(svc service.IngestionService, kind model.Kind) fiber.Handler {
	return func(c *fiber.Ctx) error {
		body, ok := requestBody(c, 0)
		if !ok {
			return writeTooLarge(c)
		}
		_, err := svc.CreateWithAttachment(c.UserContext(), kind, c.Get(fiber.HeaderContentType), body)
		if err != nil {
			if body.Exceeded() {
				return writeTooLarge(c)
			}
			return writeServiceError(c, err)
		}
		return c.Status(fiber.StatusCreated).SendString(string(kind) + " created successfully.")
	}
}

// ListEntities returns the stored entities of kind as they are.
func ListEntities(svc service.EntityService, kind model.Kind) fiber.Handler {
	return func(c *fiber.Ctx) error {
		res, err := svc.List(c.UserContext(), kind)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(res)
	}
}

// ListEntitiesWithImage returns the entities of kind with attachment_ref replaced
// by a time-limited read URL, or null when the image is gone.
//
// @Summary  List entities with image URLs
// @Tags     entities
// @Produce  json
// @Param    kinds  path  string  true  "orders, products or customers"
// @Success  200 {array} model.Entity
// @Failure  500 {object} errorPayload
// @Router   /{kinds}-with-image [get]
func ListEntitiesWithImage(svc service.EntityService, kind model.Kind) fiber.Handler {
	return func(c *fiber.Ctx) error {
		res, err := svc.ListEnriched(c.UserContext(), kind)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(res)
	}
}

// GetEntity returns one entity; its version is sent as the ETag.
func GetEntity(svc service.EntityService, kind model.Kind) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := entityID(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		e, err := svc.Get(c.UserContext(), kind, id)
		if err != nil {
			return writeServiceError(c, err)
		}
		c.Set(fiber.HeaderETag, strconv.Quote(e.Version))
		return c.JSON(e)
	}
}

// UpdateEntity replaces the entity's fields with a JSON object.
// When If-Match is present the write only succeeds against that version.
//
// @Summary  Replace entity fields
// @Tags     entities
// @Accept   json
// @Produce  json
// @Param    kind      path    string  true   "order, product or customer"
// @Param    id        path    string  true   "entity id"
// @Param    If-Match  header  string  false  "expected version"
// @Success  200 {object} model.Entity
// @Failure  400 {object} errorPayload
// @Failure  404 {object} errorPayload
// @Failure  409 {object} errorPayload
// @Failure  413 {object} errorPayload
// @Router   /{kind}/{id} [put]
func UpdateEntity(svc service.EntityService, kind model.Kind) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := entityID(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		body, err := jsonBody(c)
		if err != nil {
			return writeBodyError(c, err)
		}
		e, err := svc.Update(c.UserContext(), kind, id, body, ifMatch(c))
		if err != nil {
			return writeServiceError(c, err)
		}
		c.Set(fiber.HeaderETag, strconv.Quote(e.Version))
		return c.JSON(e)
	}
}

// ifMatch returns the If-Match value without a weak prefix or quotes.
func ifMatch(c *fiber.Ctx) string {
	v := strings.TrimSpace(c.Get(fiber.HeaderIfMatch))
	v = strings.TrimPrefix(v, "W/")
	return strings.Trim(v, `"`)
}

// DeleteEntity removes the entity and, best effort, its image.
func DeleteEntity(svc service.EntityService, kind model.Kind) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := entityID(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		if err := svc.Delete(c.UserContext(), kind, id); err != nil {
			return writeServiceError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}
