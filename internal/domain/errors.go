package domain

import "fmt"

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches on code and message so wrapped copies created with
// WithCause still satisfy errors.Is against the sentinel.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

// WithCause returns a copy of the error carrying an underlying cause
func (e *DomainError) WithCause(err error) *DomainError {
	return NewDomainErrorWithCause(e.Code, e.Message, err)
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     nil,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common domain error codes
const (
	ErrCodeValidation      = "VALIDATION_ERROR"
	ErrCodeUnauthorized    = "UNAUTHORIZED"
	ErrCodeForbidden       = "FORBIDDEN"
	ErrCodeUnsupportedType = "UNSUPPORTED_TYPE"
	ErrCodeUpstream        = "UPSTREAM_ERROR"
	ErrCodeInternalError   = "INTERNAL_ERROR"
)

// Validation errors
var (
	ErrInvalidDocumentURL   = NewDomainError(ErrCodeValidation, "documents must be a valid http(s) URL")
	ErrMissingRequiredField = NewDomainError(ErrCodeValidation, "missing required field")
)

// Document errors
var (
	ErrUnsupportedDocumentType = NewDomainError(ErrCodeUnsupportedType, "Unsupported document type")
	ErrDocumentFetch           = NewDomainError(ErrCodeUpstream, "failed to fetch document")
	ErrDocumentExtract         = NewDomainError(ErrCodeInternalError, "failed to extract document text")
)

// Authorization errors
var (
	ErrMissingAuthorization = NewDomainError(ErrCodeForbidden, "Invalid or missing Authorization header")
	ErrInvalidCredentials   = NewDomainError(ErrCodeForbidden, "Could not validate credentials")
)

// Upstream service errors
var (
	ErrEmbeddingFailed  = NewDomainError(ErrCodeUpstream, "embedding request failed")
	ErrIndexOperation   = NewDomainError(ErrCodeUpstream, "vector index operation failed")
	ErrCompletionFailed = NewDomainError(ErrCodeUpstream, "chat completion failed")
)
