package model

import "errors"

// Error kinds shared by every ledger. Handlers translate them into HTTP
// statuses; listeners use them to decide between ack, retry and dead-letter.
var (
	ErrNotFound            = errors.New("not found")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrInvalidState        = errors.New("invalid state")
	ErrConflict            = errors.New("conflict")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

// Codes narrow a kind down to a specific failure.
const (
	CodeAlreadyProvisioned = "already_provisioned"
	CodeQuotaExhausted     = "quota_exhausted"
	CodeQuotaExpired       = "quota_expired"
	CodeQuotaNotStarted    = "quota_not_started"
	CodeQuotaFull          = "quota_full"
	CodeInvalidTransition  = "invalid_transition"
	CodeInvalidInput       = "invalid_input"
	CodeOffertInactive     = "offert_inactive"
	CodeProviderError      = "provider_error"
	CodeConcurrentUpdate   = "concurrent_update"
)

// Error carries a kind (one of the Err* sentinels), a machine readable code
// and a message safe to show to API clients. Err holds the underlying cause,
// if any.
type Error struct {
	Kind    error
	Code    string
	Message string
	Err     error
}

// NewError builds an *Error of the given kind.
func NewError(kind error, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Wrap builds an *Error that also keeps cause in its chain.
func Wrap(kind error, code, message string, cause error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Err: cause}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// HasCode reports whether err carries an *Error with the given code.
func HasCode(err error, code string) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}

// CodeOf returns the code of the first *Error in err's chain.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// MessageOf returns the client-facing message of err.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}
