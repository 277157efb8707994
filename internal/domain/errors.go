package domain

import "fmt"

// The error taxonomy is closed: services and repositories fail with exactly
// one of the types below, and the HTTP layer maps each variant to a fixed
// status. Anything else that escapes is treated as an internal error.

// ValidationError reports client input that failed validation.
type ValidationError struct {
	Message string
	Field   string // optional
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return e.Field + ": " + e.Message
	}
	return e.Message
}

// NotFoundError reports a missing resource.
type NotFoundError struct {
	Resource string
	ID       string // optional
}

func (e *NotFoundError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
	}
	return e.Resource + " not found"
}

// AuthenticationError reports a request that could not be authenticated.
type AuthenticationError struct {
	Message string
}

func (e *AuthenticationError) Error() string {
	if e.Message == "" {
		return "authentication required"
	}
	return e.Message
}

// AuthorizationError reports an authenticated request lacking permission.
type AuthorizationError struct {
	Message  string
	Resource string // optional
}

func (e *AuthorizationError) Error() string {
	if e.Message == "" {
		return "forbidden"
	}
	return e.Message
}

// DatabaseError wraps an unexpected store failure. Its detail is logged
// server-side and never sent to the client.
type DatabaseError struct {
	Message string
	Err     error
}

func (e *DatabaseError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *DatabaseError) Unwrap() error { return e.Err }

// FileUploadError wraps a failed upload. Like DatabaseError, its detail
// stays server-side.
type FileUploadError struct {
	Message string
	Err     error
}

func (e *FileUploadError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *FileUploadError) Unwrap() error { return e.Err }
