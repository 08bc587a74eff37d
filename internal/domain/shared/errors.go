package shared

// DomainError is a code/message pair surfaced by the HTTP status surface
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Common domain errors
var (
	ErrNotFound    = NewDomainError("NOT_FOUND", "Resource not found")
	ErrUnavailable = NewDomainError("UNAVAILABLE", "Service unavailable")
)
