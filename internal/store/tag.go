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

	"github.com/google/uuid"

	"cmstaxonomy/internal/models"
	"cmstaxonomy/internal/slug"
)

// TagStore manages flat tags and keeps their usage count in step with the
// content_tags join table. The count column is only ever written by
// recountTags, which derives it from the attachments of non-deleted
// content while holding the tag row lock.
type TagStore struct {
	db *sql.DB
	options
}

// NewTagStore creates a new TagStore.
func NewTagStore(db *sql.DB, opts ...Option) *TagStore {
	return &TagStore{db: db, options: buildOptions(opts)}
}

const tagColumns = `id, name, slug, description, count, deleted_at, created_at, updated_at`

// NewTag holds the input for Create. An empty Slug is derived from Name.
type NewTag struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Slug        string `json:"slug"`
}

// TagUpdate holds the input for Update; see CategoryUpdate.
type TagUpdate struct {
	Name        string  `json:"name"`
	Slug        string  `json:"slug"`
	Description *string `json:"description"`
}

func scanTag(scanner interface{ Scan(...any) error }) (*models.Tag, error) {
	var t models.Tag
	err := scanner.Scan(
		&t.ID, &t.Name, &t.Slug, &t.Description,
		&t.Count, &t.DeletedAt, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func scanTags(rows *sql.Rows) ([]models.Tag, error) {
	defer rows.Close()
	var items []models.Tag
	for rows.Next() {
		t, err := scanTag(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		items = append(items, *t)
	}
	return items, rows.Err()
}

// List returns tags ordered by name. Soft-deleted tags are only included
// when includeDeleted is set. The active list is served from the cache.
func (s *TagStore) List(ctx context.Context, includeDeleted bool) ([]models.Tag, error) {
	if includeDeleted {
		return s.list(ctx, true)
	}
	return cachedJSON(ctx, s.cache, keyTagList, func() ([]models.Tag, error) {
		return s.list(ctx, false)
	})
}

func (s *TagStore) list(ctx context.Context, includeDeleted bool) ([]models.Tag, error) {
	query := `SELECT ` + tagColumns + ` FROM tags WHERE deleted_at IS NULL ORDER BY name`
	if includeDeleted {
		query = `SELECT ` + tagColumns + ` FROM tags ORDER BY deleted_at IS NOT NULL, name`
	}
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	return scanTags(rows)
}

// FindByID retrieves a tag by ID, active or soft-deleted.
func (s *TagStore) FindByID(ctx context.Context, id uuid.UUID) (*models.Tag, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+tagColumns+` FROM tags WHERE id = $1`, id)
	t, err := scanTag(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Entity: "tag", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("find tag by id: %w", err)
	}
	return t, nil
}

// FindBySlug retrieves an active tag by its slug.
func (s *TagStore) FindBySlug(ctx context.Context, slugValue string) (*models.Tag, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+tagColumns+` FROM tags
		WHERE slug = $1 AND deleted_at IS NULL`, slugValue)
	t, err := scanTag(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Entity: "tag", Slug: slugValue}
	}
	if err != nil {
		return nil, fmt.Errorf("find tag by slug: %w", err)
	}
	return t, nil
}

// ContentIDs returns the non-deleted content items tagged with id.
func (s *TagStore) ContentIDs(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ct.content_id FROM content_tags ct
		JOIN content_refs cr ON cr.id = ct.content_id AND cr.deleted_at IS NULL
		WHERE ct.tag_id = $1
		ORDER BY ct.content_id`, id)
	if err != nil {
		return nil, fmt.Errorf("list tag content: %w", err)
	}
	return scanIDs(rows)
}

// Create inserts a new tag with a zero count.
func (s *TagStore) Create(ctx context.Context, in NewTag) (*models.Tag, error) {
	explicit, err := normalizeExplicitSlug(in.Slug)
	if err != nil {
		return nil, err
	}

	var created *models.Tag
	err = runTx(ctx, s.db, sql.LevelReadCommitted, "create tag", func(tx *sql.Tx) error {
		slugValue, err := allocateTagSlug(ctx, tx, in.Name, explicit, nil)
		if err != nil {
			return err
		}
		row := tx.QueryRowContext(ctx, `
			INSERT INTO tags (name, slug, description)
			VALUES ($1, $2, $3)
			RETURNING `+tagColumns,
			in.Name, slugValue, in.Description,
		)
		created, err = scanTag(row)
		if err != nil && explicit != "" {
			return explicitSlugConflict(err, explicit)
		}
		return err
	})
	if err != nil {
		return nil, wrapOp("create tag", err)
	}

	s.invalidate(ctx, "tag", created.ID, "create", keyTagList)
	return created, nil
}

// Rename changes a tag's name, regenerating the slug unless slugValue is
// given.
func (s *TagStore) Rename(ctx context.Context, id uuid.UUID, name, slugValue string) (*models.Tag, error) {
	return s.Update(ctx, id, TagUpdate{Name: name, Slug: slugValue})
}

// Update modifies name, slug and description of an active tag.
func (s *TagStore) Update(ctx context.Context, id uuid.UUID, in TagUpdate) (*models.Tag, error) {
	explicit, err := normalizeExplicitSlug(in.Slug)
	if err != nil {
		return nil, err
	}

	var updated *models.Tag
	err = runTx(ctx, s.db, sql.LevelReadCommitted, "update tag", func(tx *sql.Tx) error {
		cur, err := lockTag(ctx, tx, id)
		if err != nil {
			return err
		}
		if cur.IsDeleted() {
			return &StateError{Entity: "tag", ID: id, Op: "update", State: stateOf(true)}
		}

		name := cur.Name
		if in.Name != "" {
			name = in.Name
		}
		description := cur.Description
		if in.Description != nil {
			description = *in.Description
		}

		slugValue := cur.Slug
		switch {
		case explicit != "":
			slugValue, err = allocateTagSlug(ctx, tx, name, explicit, &id)
		case name != cur.Name:
			slugValue, err = allocateTagSlug(ctx, tx, name, "", &id)
		}
		if err != nil {
			return err
		}

		row := tx.QueryRowContext(ctx, `
			UPDATE tags SET name = $1, slug = $2, description = $3, updated_at = NOW()
			WHERE id = $4
			RETURNING `+tagColumns,
			name, slugValue, description, id,
		)
		updated, err = scanTag(row)
		if err != nil && explicit != "" {
			return explicitSlugConflict(err, explicit)
		}
		return err
	})
	if err != nil {
		return nil, wrapOp("update tag", err)
	}

	s.invalidate(ctx, "tag", id, "update", keyTagList)
	return updated, nil
}

// Delete soft-deletes a tag: it is detached from every content item and its
// count drops to zero. It returns the content ids that were detached.
func (s *TagStore) Delete(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error) {
	var detached []uuid.UUID
	err := runTx(ctx, s.db, sql.LevelReadCommitted, "delete tag", func(tx *sql.Tx) error {
		cur, err := lockTag(ctx, tx, id)
		if err != nil {
			return err
		}
		if cur.IsDeleted() {
			return &StateError{Entity: "tag", ID: id, Op: "delete", State: stateOf(true)}
		}

		rows, err := tx.QueryContext(ctx, `DELETE FROM content_tags WHERE tag_id = $1 RETURNING content_id`, id)
		if err != nil {
			return fmt.Errorf("detach tag content: %w", err)
		}
		detached, err = scanIDs(rows)
		if err != nil {
			return err
		}
		sortIDs(detached)

		if _, err := tx.ExecContext(ctx, `
			UPDATE tags SET deleted_at = NOW(), count = 0, updated_at = NOW()
			WHERE id = $1`, id,
		); err != nil {
			return fmt.Errorf("mark tag deleted: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, wrapOp("delete tag", err)
	}

	slog.Info("tag deleted", "id", id, "detached_content", len(detached))
	s.invalidate(ctx, "tag", id, "delete", keyTagList)
	return detached, nil
}

// Restore reverses a soft delete. The count is recomputed from the current
// attachments rather than trusted, and a slug taken in the meantime is
// replaced by a fresh one.
func (s *TagStore) Restore(ctx context.Context, id uuid.UUID) (*models.Tag, error) {
	var restored *models.Tag
	err := runTx(ctx, s.db, sql.LevelReadCommitted, "restore tag", func(tx *sql.Tx) error {
		cur, err := lockTag(ctx, tx, id)
		if err != nil {
			return err
		}
		if !cur.IsDeleted() {
			return &StateError{Entity: "tag", ID: id, Op: "restore", State: stateOf(false)}
		}

		slugValue := cur.Slug
		taken, err := tagSlugExists(ctx, tx, cur.Slug, &id)
		if err != nil {
			return err
		}
		if taken {
			slugValue, err = allocateTagSlug(ctx, tx, cur.Name, "", &id)
			if err != nil {
				return err
			}
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE tags SET deleted_at = NULL, slug = $1, updated_at = NOW()
			WHERE id = $2`, slugValue, id,
		); err != nil {
			return fmt.Errorf("mark tag restored: %w", err)
		}
		if _, err := recountTags(ctx, tx, []uuid.UUID{id}); err != nil {
			return err
		}

		restored, err = lockTag(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, wrapOp("restore tag", err)
	}

	s.invalidate(ctx, "tag", id, "restore", keyTagList)
	return restored, nil
}

// Purge hard-deletes a soft-deleted tag together with its Meta record.
func (s *TagStore) Purge(ctx context.Context, id uuid.UUID) error {
	err := runTx(ctx, s.db, sql.LevelReadCommitted, "purge tag", func(tx *sql.Tx) error {
		cur, err := lockTag(ctx, tx, id)
		if err != nil {
			return purgedOr(ctx, tx, "tag", id, err)
		}
		if !cur.IsDeleted() {
			return &StateError{Entity: "tag", ID: id, Op: "purge", State: stateOf(false)}
		}
		if err := deleteMeta(ctx, tx, models.OwnerTag, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM tags WHERE id = $1`, id); err != nil {
			return fmt.Errorf("delete tag row: %w", err)
		}
		return markPurged(ctx, tx, "tag", id)
	})
	if err != nil {
		return wrapOp("purge tag", err)
	}

	slog.Info("tag purged", "id", id)
	s.invalidate(ctx, "tag", id, "purge", keyTagList)
	return nil
}

// RecomputeCount recounts one tag and returns its new count.
func (s *TagStore) RecomputeCount(ctx context.Context, id uuid.UUID) (int, error) {
	var count int
	err := runTx(ctx, s.db, sql.LevelReadCommitted, "recompute tag count", func(tx *sql.Tx) error {
		counts, err := recountTags(ctx, tx, []uuid.UUID{id})
		if err != nil {
			return err
		}
		n, ok := counts[id]
		if !ok {
			return &NotFoundError{Entity: "tag", ID: id}
		}
		count = n
		return nil
	})
	if err != nil {
		return 0, wrapOp("recompute tag count", err)
	}

	s.invalidate(ctx, "tag", id, "recount", keyTagList)
	return count, nil
}

// RecomputeCounts recounts the given tags and returns their new counts.
// Unknown ids are skipped.
func (s *TagStore) RecomputeCounts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]int, error) {
	var counts map[uuid.UUID]int
	err := runTx(ctx, s.db, sql.LevelReadCommitted, "recompute tag counts", func(tx *sql.Tx) error {
		var err error
		counts, err = recountTags(ctx, tx, ids)
		return err
	})
	if err != nil {
		return nil, wrapOp("recompute tag counts", err)
	}

	if len(counts) > 0 {
		s.invalidate(ctx, "tag", uuid.Nil, "recount", keyTagList)
	}
	return counts, nil
}

// RecomputeAll recounts every tag whose stored count disagrees with its
// attachments and returns the ids it corrected.
func (s *TagStore) RecomputeAll(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id FROM tags t
		WHERE t.count <> (
			SELECT COUNT(*) FROM content_tags ct
			JOIN content_refs cr ON cr.id = ct.content_id AND cr.deleted_at IS NULL
			WHERE ct.tag_id = t.id
		)
		ORDER BY t.id`)
	if err != nil {
		return nil, fmt.Errorf("find drifted tags: %w", err)
	}
	drifted, err := scanIDs(rows)
	if err != nil {
		return nil, err
	}
	if len(drifted) == 0 {
		return nil, nil
	}

	if _, err := s.RecomputeCounts(ctx, drifted); err != nil {
		return nil, err
	}
	slog.Info("tag counts corrected", "tags", len(drifted))
	return drifted, nil
}

// Merge folds sourceIDs into targetID. Every content item attached to a
// source gains a target attachment unless it already has one; the sources
// are then hard-deleted along with their Meta. The target's count is
// recomputed once, after all sources are processed.
func (s *TagStore) Merge(ctx context.Context, sourceIDs []uuid.UUID, targetID uuid.UUID) (*models.Tag, error) {
	sources := uniqueIDs(sourceIDs)
	for _, id := range sources {
		if id == targetID {
			return nil, &ValidationError{Field: "source_ids", Message: "must not contain the target tag"}
		}
	}
	if len(sources) < 2 {
		return nil, &ValidationError{Field: "source_ids", Message: "at least two distinct source tags are required"}
	}

	var merged *models.Tag
	var moved int64
	err := runTx(ctx, s.db, sql.LevelReadCommitted, "merge tags", func(tx *sql.Tx) error {
		all := append([]uuid.UUID{targetID}, sources...)
		sortIDs(all)
		for _, id := range all {
			t, err := lockTag(ctx, tx, id)
			if err != nil {
				return err
			}
			if id == targetID && t.IsDeleted() {
				return &StateError{Entity: "tag", ID: id, Op: "merge into", State: stateOf(true)}
			}
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO content_tags (content_id, tag_id)
			SELECT DISTINCT content_id, $1::uuid FROM content_tags
			WHERE tag_id = ANY($2::text[]::uuid[])
			ON CONFLICT (content_id, tag_id) DO NOTHING`,
			targetID, idStrings(sources),
		)
		if err != nil {
			return fmt.Errorf("migrate attachments: %w", err)
		}
		moved, _ = res.RowsAffected()

		for _, id := range sources {
			if err := deleteMeta(ctx, tx, models.OwnerTag, id); err != nil {
				return err
			}
			if err := markPurged(ctx, tx, "tag", id); err != nil {
				return err
			}
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM tags WHERE id = ANY($1::text[]::uuid[])`, idStrings(sources),
		); err != nil {
			return fmt.Errorf("delete source tags: %w", err)
		}

		if _, err := recountTags(ctx, tx, []uuid.UUID{targetID}); err != nil {
			return err
		}
		merged, err = lockTag(ctx, tx, targetID)
		return err
	})
	if err != nil {
		return nil, wrapOp("merge tags", err)
	}

	slog.Info("tags merged",
		"target", targetID,
		"sources", len(sources),
		"attachments_added", moved,
		"count", merged.Count,
	)
	s.invalidate(ctx, "tag", targetID, "merge", keyTagList)
	return merged, nil
}

// --- transaction helpers ---

func lockTag(ctx context.Context, q queryer, id uuid.UUID) (*models.Tag, error) {
	row := q.QueryRowContext(ctx, `SELECT `+tagColumns+` FROM tags WHERE id = $1 FOR UPDATE`, id)
	t, err := scanTag(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Entity: "tag", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("lock tag: %w", err)
	}
	return t, nil
}

// requireActiveTag fails with NotFoundError unless id is an existing,
// non-deleted tag, and share-locks the row.
func requireActiveTag(ctx context.Context, q queryer, id uuid.UUID) error {
	var deleted bool
	err := q.QueryRowContext(ctx,
		`SELECT deleted_at IS NOT NULL FROM tags WHERE id = $1 FOR SHARE`, id,
	).Scan(&deleted)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && deleted) {
		return &NotFoundError{Entity: "tag", ID: id}
	}
	if err != nil {
		return fmt.Errorf("check tag: %w", err)
	}
	return nil
}

// lockTagsForCount takes the count lock on ids in ascending id order.
// FOR NO KEY UPDATE does not block the key-share locks that foreign key
// checks on content_tags take, so attachment writes never wait on it.
func lockTagsForCount(ctx context.Context, q queryer, ids []uuid.UUID) ([]uuid.UUID, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := q.QueryContext(ctx, `
		SELECT id FROM tags WHERE id = ANY($1::text[]::uuid[])
		ORDER BY id
		FOR NO KEY UPDATE`, idStrings(uniqueIDs(ids)))
	if err != nil {
		return nil, fmt.Errorf("lock tags: %w", err)
	}
	return scanIDs(rows)
}

// recountTags locks ids and sets each count from the attachments of
// non-deleted content. Each statement runs on a fresh snapshot under
// READ COMMITTED, so once the lock is held every attachment committed by
// an earlier holder is counted. It returns the new counts of the tags
// that exist.
func recountTags(ctx context.Context, q queryer, ids []uuid.UUID) (map[uuid.UUID]int, error) {
	locked, err := lockTagsForCount(ctx, q, ids)
	if err != nil {
		return nil, err
	}
	counts := make(map[uuid.UUID]int, len(locked))
	if len(locked) == 0 {
		return counts, nil
	}

	rows, err := q.QueryContext(ctx, `
		UPDATE tags SET count = (
			SELECT COUNT(*) FROM content_tags ct
			JOIN content_refs cr ON cr.id = ct.content_id AND cr.deleted_at IS NULL
			WHERE ct.tag_id = tags.id
		), updated_at = NOW()
		WHERE id = ANY($1::text[]::uuid[])
		RETURNING id, count`, idStrings(locked))
	if err != nil {
		return nil, fmt.Errorf("recount tags: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id uuid.UUID
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("scan tag count: %w", err)
		}
		counts[id] = n
	}
	return counts, rows.Err()
}

func allocateTagSlug(ctx context.Context, q queryer, name, explicit string, excludeID *uuid.UUID) (string, error) {
	if explicit != "" {
		taken, err := tagSlugExists(ctx, q, explicit, excludeID)
		if err != nil {
			return "", err
		}
		if taken {
			return "", &ConflictError{Field: "slug", Value: explicit}
		}
		return explicit, nil
	}
	return slug.Unique(ctx, name, func(ctx context.Context, candidate string) (bool, error) {
		return tagSlugExists(ctx, q, candidate, excludeID)
	})
}

func tagSlugExists(ctx context.Context, q queryer, slugValue string, excludeID *uuid.UUID) (bool, error) {
	var exists bool
	err := q.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM tags
			WHERE slug = $1 AND deleted_at IS NULL AND ($2::uuid IS NULL OR id <> $2::uuid)
		)`, slugValue, excludeID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check tag slug: %w", err)
	}
	return exists, nil
}
