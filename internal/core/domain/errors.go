package domain

import (
	"errors"
	"fmt"
)

// DomainError is a panel error carrying a stable code.
//
// Codes have the form TL-<AREA>-<NNNN>; the numeric part follows the HTTP
// status the error maps to, with a trailing digit to tell siblings apart.
type DomainError struct {
	Code    string // e.g. "TL-RELAY-4041"
	Message string // Human-readable message
	Details string // Optional additional details
	Cause   error  // Underlying error (if any)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap() support.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a DomainError with the same code.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new DomainError with the given code and message.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *DomainError) WithDetails(details string) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		Cause:   e.Cause,
	}
}

// WithCause returns a copy of the error wrapping the given cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		Cause:   cause,
	}
}

// IsDomainError checks if an error is a DomainError with the given code.
// An empty code matches any DomainError.
func IsDomainError(err error, code string) bool {
	var de *DomainError
	if errors.As(err, &de) {
		if code == "" {
			return true
		}
		return de.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error if it's a DomainError.
func GetErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// ============================================================================
// Relay Errors (RELAY)
// ============================================================================

var (
	// ErrUnauthorized indicates the caller presented no valid session or API key.
	ErrUnauthorized = NewDomainError("TL-AUTH-4010", "unauthorized")

	// ErrForbidden indicates the identity has no grant on the target server.
	ErrForbidden = NewDomainError("TL-RELAY-4030", "forbidden")

	// ErrServerNotFound indicates the server id is unknown to the topology store.
	ErrServerNotFound = NewDomainError("TL-RELAY-4041", "server not found")

	// ErrNodeNotFound indicates no node record matches the server's node ip.
	ErrNodeNotFound = NewDomainError("TL-RELAY-4042", "node not found")

	// ErrAgentUnavailable indicates the agent connection failed to open or
	// failed after opening.
	ErrAgentUnavailable = NewDomainError("TL-RELAY-5020", "agent unavailable")
)

// Close reasons sent to the caller with close code 1008.
const (
	ReasonUnauthorized   = "Unauthorized"
	ReasonForbidden      = "Forbidden"
	ReasonServerNotFound = "Server not found"
	ReasonNodeNotFound   = "Node not found"
)

// CloseReason maps a relay error to the reason text of the policy-violation
// close frame. Agent failures and unknown errors map to an empty reason so
// nothing about the topology reaches the caller.
func CloseReason(err error) string {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return ReasonUnauthorized
	case errors.Is(err, ErrForbidden):
		return ReasonForbidden
	case errors.Is(err, ErrServerNotFound):
		return ReasonServerNotFound
	case errors.Is(err, ErrNodeNotFound):
		return ReasonNodeNotFound
	default:
		return ""
	}
}

// ============================================================================
// Account Errors (ACCT)
// ============================================================================

var (
	// ErrInvalidCredentials indicates a login with an unknown email or wrong password.
	ErrInvalidCredentials = NewDomainError("TL-ACCT-4011", "invalid email or password")

	// ErrSessionExpired indicates the session has expired.
	ErrSessionExpired = NewDomainError("TL-ACCT-4012", "session expired")

	// ErrAPIKeyRevoked indicates the API key was revoked or hidden.
	ErrAPIKeyRevoked = NewDomainError("TL-ACCT-4013", "api key revoked")

	// ErrValidation indicates an entity failed validation.
	ErrValidation = NewDomainError("TL-ACCT-4001", "validation failed")
)

// ============================================================================
// Storage Errors (STOR)
// ============================================================================

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = NewDomainError("TL-STOR-4040", "record not found")

	// ErrAlreadyExists indicates a record with the same id already exists.
	ErrAlreadyExists = NewDomainError("TL-STOR-4090", "record already exists")

	// ErrStorage indicates a storage backend failure.
	ErrStorage = NewDomainError("TL-STOR-5001", "storage error")
)

// ============================================================================
// System Errors (SYS)
// ============================================================================

var (
	// ErrInternalServer indicates an internal server error.
	ErrInternalServer = NewDomainError("TL-SYS-5000", "internal server error")

	// ErrBadRequest indicates a malformed request.
	ErrBadRequest = NewDomainError("TL-SYS-4000", "bad request")

	// ErrRateLimited indicates too many requests.
	ErrRateLimited = NewDomainError("TL-SYS-4290", "too many requests")
)
