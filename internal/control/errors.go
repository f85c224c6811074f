package control

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for control-plane failure classes. Callers that only care
// about "the operation failed" can treat any non-nil error uniformly; callers
// that need to distinguish a stale token from an unreachable kernel can use
// errors.Is with these.
var (
	// ErrUnauthorized indicates the kernel rejected the bearer credential.
	// The usual cause is a stale cached token after the bootstrap config's
	// secret changed without a supervisor restart.
	ErrUnauthorized = errors.New("control: unauthorized")

	// ErrNotFound indicates the requested resource does not exist on the
	// kernel (unknown group, connection id, provider name).
	ErrNotFound = errors.New("control: not found")
)

// APIError is a non-2xx response from the kernel management API.
type APIError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *APIError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("control: kernel returned %s: %s", e.Status, e.Body)
	}
	return fmt.Sprintf("control: kernel returned %s", e.Status)
}

// Is maps HTTP status classes onto the sentinel errors.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	}
	return false
}
