// Package netx holds the small HTTP helpers the client transports share.
package netx

import (
	"fmt"
	"io"
	"net/http"
	"slices"
)

// maxErrorBody caps how much of a failed response is kept for diagnostics.
const maxErrorBody = 4 << 10

// StatusError is a response whose status code was not expected. Body holds
// the start of the response body.
type StatusError struct {
	StatusCode int
	Status     string
	RetryAfter string
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request failed: %s; body: %s", e.Status, string(e.Body))
}

// Do sends req and returns the response when its status is one of ok
// (200 when none are given). Any other status is drained, closed and
// returned as *StatusError.
func Do(client *http.Client, req *http.Request, ok ...int) (*http.Response, error) {
	if len(ok) == 0 {
		ok = []int{http.StatusOK}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if slices.Contains(ok, resp.StatusCode) {
		return resp, nil
	}

	defer resp.Body.Close()
	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return nil, &StatusError{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		RetryAfter: resp.Header.Get("Retry-After"),
		Body:       b,
	}
}
