package handler

import (
	"bytes"
	"errors"
	"io"

	"github.com/gofiber/fiber/v2"
)

// MaxJSONBody caps the JSON bodies of update and queue requests.
const MaxJSONBody = 1 << 20

// ErrBodyTooLarge is returned by request body reads past the allowed size.
var ErrBodyTooLarge = errors.New("request body too large")

// ServerConfig is the fiber configuration the API serves with.
// Bodies are streamed and multipart forms are left unparsed, so ingestion
// reads the raw parts. fasthttp does not apply bodyLimit to streamed bodies;
// requestBody enforces it instead.
func ServerConfig(bodyLimit int) fiber.Config {
	return fiber.Config{
		ErrorHandler:                 ErrorHandler(),
		StreamRequestBody:            true,
		DisablePreParseMultipartForm: true,
		BodyLimit:                    bodyLimit,
	}
}

// limitedBody fails with ErrBodyTooLarge once more than limit bytes are read.
type limitedBody struct {
	r        io.Reader
	limit    int64
	read     int64
	exceeded bool
}

func (b *limitedBody) Read(p []byte) (int, error) {
	if b.exceeded {
		return 0, ErrBodyTooLarge
	}
	n, err := b.r.Read(p)
	b.read += int64(n)
	if b.read > b.limit {
		b.exceeded = true
		return n - int(b.read-b.limit), ErrBodyTooLarge
	}
	return n, err
}

// Exceeded reports whether a read ran past the limit. Callers check it
// because storage clients do not always wrap the reader's error.
func (b *limitedBody) Exceeded() bool { return b.exceeded }

// requestBody returns the request body capped at limit bytes, or at the app's
// BodyLimit when limit is zero. It reports false when the declared length
// already exceeds the cap.
func requestBody(c *fiber.Ctx, limit int) (*limitedBody, bool) {
	if limit <= 0 {
		limit = c.App().Config().BodyLimit
	}
	if c.Request().Header.ContentLength() > limit {
		return nil, false
	}
	var src io.Reader
	if s := c.Context().RequestBodyStream(); s != nil {
		src = s
	} else {
		src = bytes.NewReader(c.Body())
	}
	return &limitedBody{r: io.LimitReader(src, int64(limit)+1), limit: int64(limit)}, true
}

// jsonBody reads the whole request body, up to MaxJSONBody bytes.
func jsonBody(c *fiber.Ctx) ([]byte, error) {
	body, ok := requestBody(c, MaxJSONBody)
	if !ok {
		return nil, ErrBodyTooLarge
	}
	return io.ReadAll(body)
}

func writeTooLarge(c *fiber.Ctx) error {
	return writeError(c, fiber.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "request body too large")
}

func writeBodyError(c *fiber.Ctx, err error) error {
	if errors.Is(err, ErrBodyTooLarge) {
		return writeTooLarge(c)
	}
	return writeError(c, fiber.StatusBadRequest, "BAD_REQUEST", "failed to read request body")
}
