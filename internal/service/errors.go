package service

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is an OAuth-style error carrying a machine code and the HTTP
// status handlers should map it to. Descriptions are uniform for all
// authentication failures so responses do not leak the root cause.
type Error struct {
	Code        string
	Description string
	Status      int
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

func newError(code, desc string, status int) *Error {
	return &Error{Code: code, Description: desc, Status: status}
}

// ErrorResponse maps an error to an HTTP status and an OAuth-style
// JSON body. Unknown errors become an opaque 500.
func ErrorResponse(err error) (int, map[string]any) {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr.Status, map[string]any{
			"error":             svcErr.Code,
			"error_description": svcErr.Description,
		}
	}
	return http.StatusInternalServerError, map[string]any{
		"error":             "server_error",
		"error_description": "Something went wrong.",
	}
}

// Uniform user-facing messages. The internal log line carries the
// specific rejection kind; the response never does.
const (
	msgInvalidCredentials = "Invalid credentials."
	msgNotApproved        = "Account pending approval."
	msgInvalidToken       = "Invalid or expired token."
	msgInvalidGrant       = "Invalid authorization grant."
)
