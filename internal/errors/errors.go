// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrInvalidStatus is returned when a broadcast is not in a state that allows the requested transition.
	ErrInvalidStatus = errors.New("invalid status")
	// ErrNoRecipients is returned when targeting resolves to nobody.
	ErrNoRecipients = errors.New("no recipients")
)

// ErrBroadcastNotFound is returned when a broadcast id does not exist.
type ErrBroadcastNotFound struct {
	BroadcastID string
}

func (e *ErrBroadcastNotFound) Error() string {
	return fmt.Sprintf("broadcast with ID %s not found", e.BroadcastID)
}

// Helper constructor
func NewBroadcastNotFound(id string) error {
	return &ErrBroadcastNotFound{BroadcastID: id}
}

func IsNotFound(err error) bool {
	var nf *ErrBroadcastNotFound
	return errors.As(err, &nf)
}

// ValidationError carries a request validation failure.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func NewValidationError(msg string) error {
	return &ValidationError{Msg: msg}
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

var (
	// ErrDeliveryNotFound is returned when a (broadcast, recipient) pair has no delivery record.
	ErrDeliveryNotFound = errors.New("delivery not found")
	// ErrRecipientNotFound is returned when a recipient id is not in the directory.
	ErrRecipientNotFound = errors.New("recipient not found")
)

// HTTPStatus maps an error from the service layer to a response code.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case IsNotFound(err), errors.Is(err, ErrDeliveryNotFound), errors.Is(err, ErrRecipientNotFound):
		return http.StatusNotFound
	case IsValidation(err):
		return http.StatusBadRequest
	case errors.Is(err, ErrInvalidStatus), errors.Is(err, ErrNoRecipients):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}
