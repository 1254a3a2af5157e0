package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Error is a problem+json answer from the storage service.
type Error struct {
	Type       string `json:"type"`
	Title      string `json:"title"`
	StatusCode int    `json:"status"`
	Detail     string `json:"detail"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("api: %s (%d): %s", e.Type, e.StatusCode, e.Detail)
}

func decodeError(status int, method, path string, body []byte) error {
	var apiErr Error
	if err := json.Unmarshal(body, &apiErr); err != nil || apiErr.Type == "" {
		return &Error{
			Type:       "unexpected_response",
			Title:      http.StatusText(status),
			StatusCode: status,
			Detail:     fmt.Sprintf("%s %s: %s", method, path, string(body)),
		}
	}
	apiErr.StatusCode = status
	return &apiErr
}

func hasStatus(err error, status int) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}

func IsNotFound(err error) bool { return hasStatus(err, http.StatusNotFound) }

func IsConflict(err error) bool { return hasStatus(err, http.StatusConflict) }
