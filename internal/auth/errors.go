package auth

import "fmt"

// AuthError covers missing, invalid, or expired credentials and any failure
// of the token-exchange step.
type AuthError struct {
	Op  string
	Err error
}

func (e AuthError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("auth %s failed", e.Op)
	}
	return fmt.Sprintf("auth %s failed: %v", e.Op, e.Err)
}

func (e AuthError) Unwrap() error {
	return e.Err
}

func authErr(op string, format string, args ...any) AuthError {
	return AuthError{Op: op, Err: fmt.Errorf(format, args...)}
}
