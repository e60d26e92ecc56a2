package rest

import (
	"errors"

	"github.com/dmitrijs2005/homecloud/internal/common"
	"github.com/gofiber/fiber/v2"
)

type errorBody struct {
	Error   string `json:"error"`
	MaxSize int64  `json:"maxSize,omitempty"`
}

// retryAfterSeconds is advertised with 503 responses.
const retryAfterSeconds = "5"

func statusOf(err error) int {
	switch {
	case errors.Is(err, common.ErrorUnauthorized),
		errors.Is(err, common.ErrInvalidToken),
		errors.Is(err, common.ErrTokenExpired):
		return fiber.StatusUnauthorized
	case errors.Is(err, common.ErrForbidden):
		return fiber.StatusForbidden
	case errors.Is(err, common.ErrorNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, common.ErrChunkTooLarge):
		return fiber.StatusRequestEntityTooLarge
	case errors.Is(err, common.ErrAlreadyCompleted),
		errors.Is(err, common.ErrEnvelopeExists):
		return fiber.StatusConflict
	case errors.Is(err, common.ErrIntegrity):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, common.ErrUnsupportedMime):
		return fiber.StatusUnsupportedMediaType
	case errors.Is(err, common.ErrBackendUnavailable):
		return fiber.StatusServiceUnavailable
	case errors.Is(err, common.ErrInvalidUpload),
		errors.Is(err, common.ErrIVRequired),
		errors.Is(err, common.ErrChunkOutOfRange),
		errors.Is(err, common.ErrIncompleteUpload),
		errors.Is(err, common.ErrVaultFlagMismatch),
		errors.Is(err, common.ErrVaultThumbnail),
		errors.Is(err, common.ErrInvalidThumbSize),
		errors.Is(err, common.ErrInvalidEnvelope),
		errors.Is(err, common.ErrUnknownEntityType),
		errors.Is(err, common.ErrUnknownAction):
		return fiber.StatusBadRequest
	}
	return fiber.StatusInternalServerError
}

// fail writes err as a JSON error response. It is the only place where
// service errors become status codes.
func (s *HTTPServer) fail(c *fiber.Ctx, err error) error {
	var sle *common.SizeLimitError
	if errors.As(err, &sle) {
		return c.Status(fiber.StatusRequestEntityTooLarge).JSON(errorBody{Error: err.Error(), MaxSize: sle.Max})
	}

	code := statusOf(err)
	msg := err.Error()
	switch code {
	case fiber.StatusInternalServerError:
		s.logger.Error(c.UserContext(), "request failed", "path", c.Path(), "error", err)
		msg = common.ErrorInternal.Error()
	case fiber.StatusServiceUnavailable:
		s.logger.Warn(c.UserContext(), "storage unavailable", "path", c.Path(), "error", err)
		c.Set(fiber.HeaderRetryAfter, retryAfterSeconds)
	}
	return c.Status(code).JSON(errorBody{Error: msg})
}

// handleFiberError renders errors raised by fiber itself, such as unknown
// routes or oversized bodies.
func (s *HTTPServer) handleFiberError(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(errorBody{Error: fe.Message})
	}
	return s.fail(c, err)
}
