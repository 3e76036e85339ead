package hon

import (
	"fmt"
	"strings"
)

// APIError surfaces a non-2xx response from a reachable hOn endpoint.
type APIError struct {
	Status int
	Body   string
}

func (e APIError) Error() string {
	return fmt.Sprintf("hon api error %d: %s", e.Status, strings.TrimSpace(e.Body))
}

// IsAuthStatus reports whether the response status indicates rejected credentials.
func (e APIError) IsAuthStatus() bool {
	return e.Status == 401 || e.Status == 403
}

// NetworkError wraps a transport-level failure (connect error, timeout).
type NetworkError struct {
	Err error
}

func (e NetworkError) Error() string {
	return fmt.Sprintf("hon network error: %v", e.Err)
}

func (e NetworkError) Unwrap() error {
	return e.Err
}
