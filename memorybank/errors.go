package memorybank

import "fmt"

// ValidationError rejects a request before any mutation is attempted.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ConnectivityError reports an unreachable embedder or backing store.
// Operations that hit one abort with no partial write.
type ConnectivityError struct {
	Op  string
	Err error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("%s: backend unreachable: %v", e.Op, e.Err)
}

func (e *ConnectivityError) Unwrap() error {
	return e.Err
}

func validateUser(userID string) error {
	if userID == "" {
		return &ValidationError{Field: "user_id", Reason: "must not be empty"}
	}
	return nil
}

func validateText(field, text string) error {
	if text == "" {
		return &ValidationError{Field: field, Reason: "must not be empty"}
	}
	return nil
}
