package handler

import (
	"net/url"

	"github.com/gofiber/fiber/v2"

	"retailapi/internal/fileshare"
	"retailapi/internal/model"
)

// ListFiles returns the names in the kind's file area.
func ListFiles(share fileshare.Share, kind model.Kind) fiber.Handler {
	return func(c *fiber.Ctx) error {
		names, err := share.List(c.UserContext(), kind)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(names)
	}
}

// fileName returns the decoded :fileName so encoded separators reach the name check.
func fileName(c *fiber.Ctx) (string, bool) {
	name, err := url.PathUnescape(c.Params("fileName"))
	if err != nil {
		return "", false
	}
	return name, true
}

// UploadFile stores the raw request body under :fileName.
//
// @Summary  Upload a file
// @Tags     files
// @Accept   octet-stream
// @Produce  plain
// @Param    kind      path  string  true  "order, product or customer"
// @Param    fileName  path  string  true  "file name"
// @Success  200 {string} string
// @Failure  400 {object} errorPayload
// @Router   /{kind}/upload/{fileName} [post]
func UploadFile(share fileshare.Share, kind model.Kind) fiber.Handler {
	return func(c *fiber.Ctx) error {
		name, ok := fileName(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_FILE_NAME", "invalid file name")
		}
		size := int64(c.Request().Header.ContentLength())
		ct := c.Get(fiber.HeaderContentType)
		if ct == "" {
			ct = fiber.MIMEOctetStream
		}
		body, ok := requestBody(c, 0)
		if !ok {
			return writeTooLarge(c)
		}
		if err := share.Upload(c.UserContext(), kind, name, body, size, ct); err != nil {
			if body.Exceeded() {
				return writeTooLarge(c)
			}
			return writeServiceError(c, err)
		}
		return c.SendString("File " + name + " uploaded successfully.")
	}
}

// DownloadFile streams :fileName back as an attachment.
func DownloadFile(share fileshare.Share, kind model.Kind) fiber.Handler {
	return func(c *fiber.Ctx) error {
		name, ok := fileName(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_FILE_NAME", "invalid file name")
		}
		rc, info, err := share.Download(c.UserContext(), kind, name)
		if err != nil {
			return writeServiceError(c, err)
		}
		c.Attachment(name)
		if info.ContentType != "" {
			c.Set(fiber.HeaderContentType, info.ContentType)
		}
		size := -1
		if info.Size > 0 {
			size = int(info.Size)
		}
		// fasthttp closes rc once the body is written.
		return c.SendStream(rc, size)
	}
}
