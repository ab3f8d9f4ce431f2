// Package apperr declares the error kinds shared by every layer.
// Domain errors wrap one of these with %w so callers can branch with errors.Is.
package apperr

import (
	"errors"
	"net/http"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrInvalidState      = errors.New("invalid state")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrBidTooLow         = errors.New("bid too low")
	ErrConflict          = errors.New("conflict")
)

var kinds = []struct {
	err    error
	code   string
	status int
}{
	{ErrInvalidInput, "invalid_input", http.StatusBadRequest},
	{ErrNotFound, "not_found", http.StatusNotFound},
	{ErrAlreadyExists, "already_exists", http.StatusConflict},
	{ErrUnauthorized, "unauthorized", http.StatusForbidden},
	{ErrInvalidState, "invalid_state", http.StatusConflict},
	{ErrInsufficientFunds, "insufficient_funds", http.StatusPaymentRequired},
	{ErrBidTooLow, "bid_too_low", http.StatusConflict},
	{ErrConflict, "conflict", http.StatusConflict},
}

// Code returns the stable machine-readable code for err, or "internal".
func Code(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.code
		}
	}
	return "internal"
}

// HTTPStatus maps err to the response status the API should use.
func HTTPStatus(err error) int {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.status
		}
	}
	return http.StatusInternalServerError
}

// Known reports whether err belongs to one of the declared kinds.
func Known(err error) bool {
	return Code(err) != "internal"
}
