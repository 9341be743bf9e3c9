// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sethvargo/go-retry"
)

// Replay policy for transactions that hit a serialization failure,
// deadlock or retryable uniqueness violation. Writers contending for one
// sibling set commit roughly one per round, so the bound is sized for a
// handful of concurrent editors.
const (
	maxTxRetries = 9
	txRetryBase  = 5 * time.Millisecond
	txRetryCap   = 200 * time.Millisecond
)

// Postgres SQLSTATE codes the store reacts to.
const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// Constraint names from the migrations. Violations of these are retried
// because the values involved (auto slugs, sibling orders) are recomputed
// on every attempt.
const (
	constraintCategorySlug = "categories_slug_active_key"
	constraintTagSlug      = "tags_slug_active_key"
	constraintSiblingOrder = "categories_sibling_order_key"
	constraintMetaOwner    = "meta_owner_key"
)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// txBackoff returns a fresh jittered exponential backoff for one runTx call.
func txBackoff() retry.Backoff {
	b := retry.NewExponential(txRetryBase)
	b = retry.WithCappedDuration(txRetryCap, b)
	b = retry.WithJitterPercent(50, b)
	return retry.WithMaxRetries(maxTxRetries, b)
}

// runTx executes fn inside a transaction at the given isolation level,
// replaying it from scratch on transient failures. Nothing fn wrote is
// visible unless it returns nil and the commit succeeds.
func runTx(ctx context.Context, db *sql.DB, iso sql.IsolationLevel, op string, fn func(tx *sql.Tx) error) error {
	attempt := 0
	err := retry.Do(ctx, txBackoff(), func(ctx context.Context) error {
		attempt++
		err := attemptTx(ctx, db, iso, fn)
		if err == nil || !isTransient(err) {
			return err
		}
		slog.Debug("retrying transaction",
			"op", op,
			"attempt", attempt,
			"error", err,
		)
		return retry.RetryableError(err)
	})
	if err != nil && isTransient(err) {
		return exhausted(op, err)
	}
	return err
}

func attemptTx(ctx context.Context, db *sql.DB, iso sql.IsolationLevel, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, &sql.TxOptions{Isolation: iso})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// pgError extracts the Postgres error from err, if any.
func pgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

// isTransient reports whether replaying the transaction may succeed.
func isTransient(err error) bool {
	pgErr, ok := pgError(err)
	if !ok {
		return false
	}
	switch pgErr.Code {
	case codeSerializationFailure, codeDeadlockDetected:
		return true
	case codeUniqueViolation:
		switch pgErr.ConstraintName {
		case constraintCategorySlug, constraintTagSlug, constraintSiblingOrder, constraintMetaOwner:
			return true
		}
	}
	return false
}

// exhausted converts the last transient error into a ConflictError once
// the retry budget is spent.
func exhausted(op string, err error) error {
	slog.Warn("transaction retries exhausted", "op", op, "error", err)
	pgErr, _ := pgError(err)
	if pgErr != nil && pgErr.Code == codeUniqueViolation {
		switch pgErr.ConstraintName {
		case constraintCategorySlug, constraintTagSlug:
			return &ConflictError{Field: "slug"}
		case constraintSiblingOrder:
			return &ConflictError{Field: "order"}
		}
	}
	return &ConflictError{Field: "version", Value: op}
}

// explicitSlugConflict turns a slug uniqueness violation caused by a
// caller-supplied slug into a ConflictError, which is never retried.
func explicitSlugConflict(err error, slug string) error {
	pgErr, ok := pgError(err)
	if ok && pgErr.Code == codeUniqueViolation &&
		(pgErr.ConstraintName == constraintCategorySlug || pgErr.ConstraintName == constraintTagSlug) {
		return &ConflictError{Field: "slug", Value: slug}
	}
	return err
}
