// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package handlers implements the JSON API over the taxonomy stores.
// Handlers depend on small service interfaces that the store types
// satisfy, decode and validate input, and translate store errors into
// HTTP status codes.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"cmstaxonomy/internal/store"
)

// errNotPermitted is the body sent for cycle and state errors. The details
// stay in the server log.
const errNotPermitted = "operation not permitted"

// errorBody is the single-message error response.
type errorBody struct {
	Error string `json:"error"`
}

// fieldErrorsBody is the per-field error response used for validation
// failures and conflicts.
type fieldErrorsBody struct {
	Errors fieldErrors `json:"errors"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	render.Status(r, status)
	render.JSON(w, r, v)
}

func writeMessage(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, r, status, errorBody{Error: msg})
}

func writeFieldErrors(w http.ResponseWriter, r *http.Request, status int, errs fieldErrors) {
	writeJSON(w, r, status, fieldErrorsBody{Errors: errs})
}

// writeError maps a store error onto its HTTP representation.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		notFound   *store.NotFoundError
		conflict   *store.ConflictError
		validation *store.ValidationError
	)
	switch {
	case errors.As(err, &notFound):
		writeMessage(w, r, http.StatusNotFound, notFound.Error())
	case errors.As(err, &conflict):
		writeFieldErrors(w, r, http.StatusConflict, fieldErrors{conflict.Field: conflict.Error()})
	case errors.As(err, &validation):
		writeFieldErrors(w, r, http.StatusUnprocessableEntity, fieldErrors{validation.Field: validation.Message})
	case errors.Is(err, store.ErrCycle), errors.Is(err, store.ErrState):
		slog.Info("operation rejected", "method", r.Method, "path", r.URL.Path, "reason", err)
		writeMessage(w, r, http.StatusConflict, errNotPermitted)
	default:
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeMessage(w, r, http.StatusInternalServerError, "internal server error")
	}
}

// decode reads a JSON request body into v. It answers 400 itself and
// returns false when the body is malformed.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := render.DecodeJSON(r.Body, v); err != nil {
		writeMessage(w, r, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// pathID parses the {name} URL parameter as a UUID. It answers 400 itself
// and returns false when the parameter is malformed.
func pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeMessage(w, r, http.StatusBadRequest, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

// queryBool reads a boolean query flag; anything unparsable counts as false.
func queryBool(r *http.Request, name string) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get(name))
	return err == nil && v
}
