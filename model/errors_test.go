package model

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestErrorEnvelope_statusPerCode(t *testing.T) {
	tests := []struct {
		err    *ErrorEnvelope
		code   string
		status int
	}{
		{NewBadRequestError("bad json"), ErrBadRequest, http.StatusBadRequest},
		{NewUnauthorizedError("missing token"), ErrUnauthorized, http.StatusUnauthorized},
		{NewForbiddenError("clients"), ErrForbidden, http.StatusForbidden},
		{NewNotFoundError("order 99999"), ErrNotFound, http.StatusNotFound},
		{NewConflictError("no dialog"), ErrConflict, http.StatusConflict},
		{NewValidationError(nil), ErrValidationError, http.StatusUnprocessableEntity},
		{NewInternalError(), ErrInternalError, http.StatusInternalServerError},
		{&ErrorEnvelope{Code: "TEAPOT"}, "TEAPOT", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			if tt.err.Code != tt.code {
				t.Errorf("Code = %q, want %q", tt.err.Code, tt.code)
			}
			if got := tt.err.Status(); got != tt.status {
				t.Errorf("Status() = %d, want %d", got, tt.status)
			}
		})
	}
}

func TestErrorEnvelope_Error(t *testing.T) {
	err := Errorf(ErrNotFound, "order %s not found", "12345")
	if got := err.Error(); got != "NOT_FOUND: order 12345 not found" {
		t.Errorf("Error() = %q", got)
	}
}

func TestHasCode(t *testing.T) {
	wrapped := fmt.Errorf("submit: %w", NewConflictError("key reused"))

	if !HasCode(wrapped, ErrConflict) {
		t.Error("wrapped conflict should match")
	}
	if HasCode(wrapped, ErrBadRequest) {
		t.Error("code mismatch should not match")
	}
	if HasCode(errors.New("plain"), ErrConflict) || HasCode(nil, ErrConflict) {
		t.Error("non-envelopes should not match")
	}
}

func TestNewValidationError_details(t *testing.T) {
	e := NewValidationError([]FieldError{
		{Field: "price", Code: FieldBelowMin, Message: "Minimum value: 0"},
		{Field: "clientName", Code: FieldRequired, Message: "Required field"},
	})
	if len(e.Details) != 2 || e.Details[0].Field != "price" || e.Details[1].Code != FieldRequired {
		t.Errorf("Details = %+v", e.Details)
	}
	if e.Message == "" {
		t.Error("validation error needs a summary message")
	}
}

func TestNewInternalError_hidesCause(t *testing.T) {
	if m := NewInternalError().Message; m != "An unexpected error occurred" {
		t.Errorf("Message = %q", m)
	}
}
