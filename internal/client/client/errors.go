package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/dmitrijs2005/homecloud/internal/common"
	"github.com/dmitrijs2005/homecloud/internal/netx"
)

// ErrUnavailable marks transport failures: the server could not be reached
// or the connection broke before a response arrived.
var ErrUnavailable = errors.New("server unavailable")

// APIError is an error response of the HTTP API.
type APIError struct {
	StatusCode int
	Message    string
	MaxSize    int64
	RetryAfter string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// Unwrap maps the status code back to the sentinel the server started from.
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusUnauthorized:
		if e.Message == common.ErrTokenExpired.Error() {
			return common.ErrTokenExpired
		}
		return common.ErrorUnauthorized
	case http.StatusForbidden:
		return common.ErrForbidden
	case http.StatusNotFound:
		return common.ErrorNotFound
	case http.StatusConflict:
		if e.Message == common.ErrEnvelopeExists.Error() {
			return common.ErrEnvelopeExists
		}
		return common.ErrAlreadyCompleted
	case http.StatusRequestEntityTooLarge:
		if e.MaxSize > 0 {
			return &common.SizeLimitError{Max: e.MaxSize}
		}
		return common.ErrChunkTooLarge
	case http.StatusUnprocessableEntity:
		return common.ErrIntegrity
	case http.StatusUnsupportedMediaType:
		return common.ErrUnsupportedMime
	case http.StatusServiceUnavailable:
		return common.ErrBackendUnavailable
	}
	return nil
}

// convertError turns netx failures into *APIError or ErrUnavailable.
func convertError(err error) error {
	var se *netx.StatusError
	if !errors.As(err, &se) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var body struct {
		Error   string `json:"error"`
		MaxSize int64  `json:"maxSize"`
	}
	if jerr := json.Unmarshal(se.Body, &body); jerr != nil || body.Error == "" {
		body.Error = string(se.Body)
	}
	return &APIError{
		StatusCode: se.StatusCode,
		Message:    body.Error,
		MaxSize:    body.MaxSize,
		RetryAfter: se.RetryAfter,
	}
}
