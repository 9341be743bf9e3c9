// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package store

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Sentinel kinds. Every typed error below matches exactly one of them via
// errors.Is, so callers can branch on the kind without a type switch.
var (
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrCycle      = errors.New("cycle")
	ErrValidation = errors.New("validation failed")
	ErrState      = errors.New("invalid state transition")
)

// NotFoundError reports a referenced id that does not exist (or is not
// active where an active entity is required).
type NotFoundError struct {
	Entity string
	ID     uuid.UUID
	Slug   string
}

func (e *NotFoundError) Error() string {
	if e.Slug != "" {
		return fmt.Sprintf("%s %q not found", e.Entity, e.Slug)
	}
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ConflictError reports a violated uniqueness rule on a single field
// ("slug" or "order").
type ConflictError struct {
	Field string
	Value string
}

func (e *ConflictError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("%s conflict", e.Field)
	}
	return fmt.Sprintf("%s %q is already taken", e.Field, e.Value)
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// CycleError reports a reparent that would make a category its own ancestor.
type CycleError struct {
	ID       uuid.UUID
	ParentID uuid.UUID
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("moving category %s under %s would create a cycle", e.ID, e.ParentID)
}

func (e *CycleError) Is(target error) bool { return target == ErrCycle }

// ValidationError reports malformed or degenerate input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// StateError reports an operation that is not allowed from the entity's
// current lifecycle state, e.g. purging an active category.
type StateError struct {
	Entity string
	ID     uuid.UUID
	Op     string
	State  string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s %s %s: it is %s", e.Op, e.Entity, e.ID, e.State)
}

func (e *StateError) Is(target error) bool { return target == ErrState }

// stateOf names the lifecycle state used in StateError messages.
func stateOf(deleted bool) string {
	if deleted {
		return "deleted"
	}
	return "active"
}

// wrapOp adds the operation name to infrastructure errors. Typed domain
// errors pass through untouched so their messages stay client-facing.
func wrapOp(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrConflict), errors.Is(err, ErrCycle),
		errors.Is(err, ErrValidation), errors.Is(err, ErrState):
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}
