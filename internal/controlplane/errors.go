package controlplane

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrAccountNotFound is returned when the control plane has no record
	// for a cloud account.
	ErrAccountNotFound = errors.New("account not found in control plane")

	// ErrUnauthenticated is returned when login fails or a request is
	// still rejected after a token refresh.
	ErrUnauthenticated = errors.New("control plane rejected credentials")

	// ErrWorkspaceNotFound is returned when no workspace matches.
	ErrWorkspaceNotFound = errors.New("workspace not found")

	// ErrStatusWaitTimeout is returned when an account status wait
	// reaches its deadline.
	ErrStatusWaitTimeout = errors.New("timed out waiting for account status")
)

// GraphError is one entry of a GraphQL errors array.
type GraphError struct {
	Message    string `json:"message"`
	Extensions struct {
		Code string `json:"code"`
	} `json:"extensions"`
}

// APIError is returned when the control plane answers with GraphQL errors.
type APIError struct {
	Operation string
	Errors    []GraphError
}

func (e *APIError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, ge := range e.Errors {
		msgs = append(msgs, ge.Message)
	}
	return fmt.Sprintf("%s: %s", e.Operation, strings.Join(msgs, "; "))
}

// IsAPIError reports whether err carries GraphQL errors.
func IsAPIError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}

func unauthenticated(errs []GraphError) bool {
	for _, ge := range errs {
		if ge.Extensions.Code == "UNAUTHENTICATED" || strings.Contains(ge.Message, "UNAUTHENTICATED") {
			return true
		}
	}
	return false
}
