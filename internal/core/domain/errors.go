package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound                   = errors.New("carshare: not found")
	ErrInvalidInput               = errors.New("carshare: invalid input")
	ErrNoAvailableUnits           = errors.New("carshare: no available units")
	ErrAlreadyReturned            = errors.New("carshare: rental already returned")
	ErrAlreadyPaid                = errors.New("carshare: payment already paid")
	ErrNoFineRequired             = errors.New("carshare: no fine required")
	ErrInvalidState               = errors.New("carshare: invalid state")
	ErrForbidden                  = errors.New("carshare: forbidden")
	ErrPaymentProviderUnavailable = errors.New("carshare: payment provider unavailable")
)

// FieldError is one failed constraint on a caller-supplied value.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError collects field failures. It matches ErrInvalidInput with errors.Is.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

// Err returns nil when no field failed.
func (e *ValidationError) Err() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return fmt.Sprintf("%s: %s", ErrInvalidInput, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

// Error kinds as stable codes for transport layers.
const (
	KindNotFound                   = "NOT_FOUND"
	KindInvalidInput               = "INVALID_INPUT"
	KindNoAvailableUnits           = "NO_AVAILABLE_UNITS"
	KindAlreadyReturned            = "ALREADY_RETURNED"
	KindAlreadyPaid                = "ALREADY_PAID"
	KindNoFineRequired             = "NO_FINE_REQUIRED"
	KindInvalidState               = "INVALID_STATE"
	KindForbidden                  = "FORBIDDEN"
	KindPaymentProviderUnavailable = "PAYMENT_PROVIDER_UNAVAILABLE"
	KindInternal                   = "INTERNAL"
)

var kinds = []struct {
	err  error
	kind string
}{
	{ErrNotFound, KindNotFound},
	{ErrInvalidInput, KindInvalidInput},
	{ErrNoAvailableUnits, KindNoAvailableUnits},
	{ErrAlreadyReturned, KindAlreadyReturned},
	{ErrAlreadyPaid, KindAlreadyPaid},
	{ErrNoFineRequired, KindNoFineRequired},
	{ErrInvalidState, KindInvalidState},
	{ErrForbidden, KindForbidden},
	{ErrPaymentProviderUnavailable, KindPaymentProviderUnavailable},
}

// Kind maps err to its error kind. Unknown errors are KindInternal.
func Kind(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}
