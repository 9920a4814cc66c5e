// Package transport contains the HTTP router, middleware chain, and all
// request handlers for the repair desk API.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/pitabwire/repairdesk/internal/form"
	"github.com/pitabwire/repairdesk/internal/observability"
	"github.com/pitabwire/repairdesk/internal/section"
	"github.com/pitabwire/repairdesk/internal/session"
	"github.com/pitabwire/repairdesk/internal/table"
	"github.com/pitabwire/repairdesk/model"
)

// sentinelCodes maps engine and session sentinel errors to envelope codes.
// Errors are matched with errors.Is, so wrapped sentinels map too.
var sentinelCodes = []struct {
	err  error
	code string
}{
	{session.ErrInvalidCredentials, model.ErrUnauthorized},
	{session.ErrSessionNotFound, model.ErrUnauthorized},
	{session.ErrSessionExpired, model.ErrUnauthorized},
	{session.ErrTokenExpired, model.ErrUnauthorized},
	{session.ErrTokenInvalid, model.ErrUnauthorized},

	{section.ErrNotAllowed, model.ErrForbidden},
	{table.ErrNoHandler, model.ErrForbidden},

	{section.ErrNoDialog, model.ErrConflict},
	{form.ErrClosed, model.ErrConflict},

	{section.ErrNoData, model.ErrBadRequest},
	{section.ErrUnknownMode, model.ErrBadRequest},
	{table.ErrUnknownColumn, model.ErrBadRequest},
	{table.ErrNotSortable, model.ErrBadRequest},
	{table.ErrUnknownFilter, model.ErrBadRequest},
	{table.ErrUnknownOption, model.ErrBadRequest},
	{table.ErrPageSize, model.ErrBadRequest},
	{table.ErrRowNotFound, model.ErrBadRequest},
	{form.ErrUnknownField, model.ErrBadRequest},
	{form.ErrReadOnly, model.ErrBadRequest},
	{form.ErrDisabled, model.ErrBadRequest},
	{form.ErrValueShape, model.ErrBadRequest},
	{form.ErrUnknownOpt, model.ErrBadRequest},
	{form.ErrTagIndex, model.ErrBadRequest},
	{form.ErrNoDelete, model.ErrBadRequest},
}

// ToEnvelope converts err into an ErrorEnvelope. Envelopes pass through,
// known sentinels get their code, and anything else becomes INTERNAL_ERROR.
// The returned envelope is always a fresh value.
func ToEnvelope(err error) *model.ErrorEnvelope {
	var ee *model.ErrorEnvelope
	if errors.As(err, &ee) {
		out := *ee
		return &out
	}
	for _, s := range sentinelCodes {
		if errors.Is(err, s.err) {
			return &model.ErrorEnvelope{Code: s.code, Message: err.Error()}
		}
	}
	return model.NewInternalError()
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if body != nil {
		json.NewEncoder(w).Encode(body)
	}
}

// WriteError writes err as an ErrorEnvelope JSON response with the matching
// HTTP status code. Errors that are neither envelopes nor known sentinels
// produce a generic 500.
func WriteError(w http.ResponseWriter, err error) {
	ee := ToEnvelope(err)
	WriteJSON(w, ee.Status(), struct {
		Error *model.ErrorEnvelope `json:"error"`
	}{ee})
}

// writeRequestError is WriteError with the request's trace ID attached.
// Internal errors are logged with their cause since the client only sees
// the generic message.
func writeRequestError(w http.ResponseWriter, r *http.Request, err error) {
	ee := ToEnvelope(err)
	ee.TraceID = traceID(r.Context())
	if ee.Code == model.ErrInternalError {
		observability.RequestLogger(r.Context(), zap.NewNop()).Error("request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	WriteError(w, ee)
}

func traceID(ctx context.Context) string {
	if id := observability.TraceIDFromContext(ctx); id != "" {
		return id
	}
	return CorrelationIDFrom(ctx)
}

// WriteNotFound writes a 404 error response.
func WriteNotFound(w http.ResponseWriter, msg string) {
	WriteError(w, model.NewNotFoundError(msg))
}
