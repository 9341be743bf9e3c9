// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"cmstaxonomy/internal/store"
)

// DefaultRunTimeout bounds a single scheduled reconciliation.
const DefaultRunTimeout = 5 * time.Minute

// TagRecounter repairs drifted tag counts.
type TagRecounter interface {
	RecomputeAll(ctx context.Context) ([]uuid.UUID, error)
}

// TreeVerifier reports broken category tree invariants.
type TreeVerifier interface {
	Verify(ctx context.Context) ([]store.Violation, error)
}

// CacheFlusher drops every cached taxonomy listing.
type CacheFlusher interface {
	InvalidateAll(ctx context.Context)
}

// Report is the outcome of one reconciliation.
type Report struct {
	RecountedTags []uuid.UUID       `json:"recounted_tags"`
	Violations    []store.Violation `json:"violations"`
	Duration      time.Duration     `json:"duration"`
}

// Healthy reports whether the run found nothing to repair or flag.
func (r *Report) Healthy() bool {
	return len(r.RecountedTags) == 0 && len(r.Violations) == 0
}

// Reconciler recounts drifted tags and verifies the category tree. Counts
// are repaired in place; tree violations are only reported.
type Reconciler struct {
	tags    TagRecounter
	tree    TreeVerifier
	cache   CacheFlusher
	timeout time.Duration
}

// NewReconciler creates a reconciler. cache may be nil.
func NewReconciler(tags TagRecounter, tree TreeVerifier, cache CacheFlusher) *Reconciler {
	return &Reconciler{tags: tags, tree: tree, cache: cache, timeout: DefaultRunTimeout}
}

// Run performs one reconciliation. Both checks always run; their errors
// are joined.
func (r *Reconciler) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	report := &Report{}

	var errs []error
	recounted, err := r.tags.RecomputeAll(ctx)
	if err != nil {
		errs = append(errs, fmt.Errorf("recount tags: %w", err))
	}
	report.RecountedTags = recounted

	violations, err := r.tree.Verify(ctx)
	if err != nil {
		errs = append(errs, fmt.Errorf("verify tree: %w", err))
	}
	report.Violations = violations

	if len(recounted) > 0 && r.cache != nil {
		r.cache.InvalidateAll(ctx)
	}

	report.Duration = time.Since(start)
	return report, errors.Join(errs...)
}

// Job returns a cron job that runs the reconciler with its own timeout and
// logs the outcome.
func (r *Reconciler) Job() func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()

		report, err := r.Run(ctx)
		if err != nil {
			slog.Error("reconcile failed", "error", err)
		}
		for _, v := range report.Violations {
			slog.Warn("category tree violation", "kind", v.Kind, "id", v.ID, "detail", v.Detail)
		}
		slog.Info("reconcile finished",
			"recounted_tags", len(report.RecountedTags),
			"violations", len(report.Violations),
			"duration", report.Duration.String(),
		)
	}
}
