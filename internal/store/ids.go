// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"cmstaxonomy/internal/slug"
)

// idStrings renders ids for an ANY($n::text[]::uuid[]) parameter; the pgx
// driver encodes []string as text[].
func idStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

// scanIDs reads a single uuid column from every row and closes rows.
func scanIDs(rows *sql.Rows) ([]uuid.UUID, error) {
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// normalizeExplicitSlug runs a caller-supplied slug through the same
// normalization as generated ones. Empty input means "derive from name";
// input that normalizes to nothing is rejected.
func normalizeExplicitSlug(raw string) (string, error) {
	if raw == "" {
		return "", nil
	}
	s := slug.Generate(raw)
	if s == "" {
		return "", &ValidationError{Field: "slug", Message: "must contain at least one letter or digit"}
	}
	return s, nil
}

// markPurged records a hard delete.
func markPurged(ctx context.Context, q queryer, entity string, id uuid.UUID) error {
	if _, err := q.ExecContext(ctx, `
		INSERT INTO purged_entities (entity_type, entity_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING`, entity, id,
	); err != nil {
		return fmt.Errorf("record purge of %s: %w", entity, err)
	}
	return nil
}

// purgedOr turns notFound into a StateError when id was hard-deleted
// earlier, so a repeated purge is reported as an invalid transition.
func purgedOr(ctx context.Context, q queryer, entity string, id uuid.UUID, notFound error) error {
	var purged bool
	err := q.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM purged_entities WHERE entity_type = $1 AND entity_id = $2)`,
		entity, id,
	).Scan(&purged)
	if err != nil {
		return fmt.Errorf("check purge of %s: %w", entity, err)
	}
	if purged {
		return &StateError{Entity: entity, ID: id, Op: "purge", State: "purged"}
	}
	return notFound
}
