package app

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrUnauthenticated        = errors.New("sign in required")
	ErrDuplicateRegistration  = errors.New("you have already registered for this camp with the same name, email and phone")
	ErrSubmissionInFlight     = errors.New("an identical registration is already being submitted")
	ErrRegistrationNotFound   = errors.New("registration not found")
	ErrRegistrationPaid       = errors.New("paid registrations cannot be cancelled")
	ErrRegistrationUnpaid     = errors.New("only paid registrations can be confirmed")
	ErrNotOrganizer           = errors.New("organizer role required")
	ErrFreeCampPayment        = errors.New("free camps do not go through checkout")
	ErrAmountMismatch         = errors.New("payment amount does not match the camp fee")
	ErrEmptyCheckoutURL       = errors.New("checkout session did not return a redirect url")
	ErrInvalidParticipantTask = errors.New("invalid participant count task")
)

// ValidationError reports per-field problems with a submitted form.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for key := range e.Fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", key, e.Fields[key]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, message string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, exists := e.Fields[field]; !exists {
		e.Fields[field] = message
	}
}

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}
