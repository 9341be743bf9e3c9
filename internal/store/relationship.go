// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"cmstaxonomy/internal/models"
)

// RelationshipCoordinator owns the content_categories and content_tags
// join tables. It is the only writer of attachments for live content and
// keeps tag counts synchronized in the same transaction as each change.
type RelationshipCoordinator struct {
	db *sql.DB
	options
}

// NewRelationshipCoordinator creates a new RelationshipCoordinator.
func NewRelationshipCoordinator(db *sql.DB, opts ...Option) *RelationshipCoordinator {
	return &RelationshipCoordinator{db: db, options: buildOptions(opts)}
}

// Diff describes how an attachment set changed.
type Diff struct {
	Added   []uuid.UUID `json:"added"`
	Removed []uuid.UUID `json:"removed"`
}

// Empty reports whether nothing changed.
func (d Diff) Empty() bool { return len(d.Added) == 0 && len(d.Removed) == 0 }

// SetContentCategories replaces the categories attached to contentID with
// categoryIDs. Newly attached categories must exist and be active.
func (r *RelationshipCoordinator) SetContentCategories(ctx context.Context, contentID uuid.UUID, categoryIDs []uuid.UUID) (Diff, error) {
	var diff Diff
	err := runTx(ctx, r.db, sql.LevelReadCommitted, "set content categories", func(tx *sql.Tx) error {
		if _, err := lockContentRef(ctx, tx, contentID); err != nil {
			return err
		}

		current, err := attachedIDs(ctx, tx, "content_categories", "category_id", contentID)
		if err != nil {
			return err
		}
		diff.Added, diff.Removed = diffIDs(current, categoryIDs)

		for _, id := range diff.Added {
			if err := requireActiveCategory(ctx, tx, id); err != nil {
				return err
			}
		}
		if len(diff.Removed) > 0 {
			if _, err := tx.ExecContext(ctx, `
				DELETE FROM content_categories
				WHERE content_id = $1 AND category_id = ANY($2::text[]::uuid[])`,
				contentID, idStrings(diff.Removed),
			); err != nil {
				return fmt.Errorf("detach categories: %w", err)
			}
		}
		if len(diff.Added) > 0 {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO content_categories (content_id, category_id)
				SELECT $1, unnest($2::text[]::uuid[])`,
				contentID, idStrings(diff.Added),
			); err != nil {
				return fmt.Errorf("attach categories: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return Diff{}, wrapOp("set content categories", err)
	}

	if !diff.Empty() {
		r.invalidate(ctx, "content", contentID, "categories", keyCategoryTree)
	}
	return diff, nil
}

// SetContentTags replaces the tags attached to contentID with tagIDs and
// recounts every tag that was added or removed, once each. The affected
// tag rows are locked in id order before any attachment changes, so
// overlapping concurrent updates serialize per tag and cannot deadlock.
func (r *RelationshipCoordinator) SetContentTags(ctx context.Context, contentID uuid.UUID, tagIDs []uuid.UUID) (Diff, error) {
	var diff Diff
	err := runTx(ctx, r.db, sql.LevelReadCommitted, "set content tags", func(tx *sql.Tx) error {
		if _, err := lockContentRef(ctx, tx, contentID); err != nil {
			return err
		}

		current, err := attachedIDs(ctx, tx, "content_tags", "tag_id", contentID)
		if err != nil {
			return err
		}
		diff.Added, diff.Removed = diffIDs(current, tagIDs)
		if diff.Empty() {
			return nil
		}

		affected := uniqueIDs(append(append([]uuid.UUID(nil), diff.Added...), diff.Removed...))
		if _, err := lockTagsForCount(ctx, tx, affected); err != nil {
			return err
		}
		for _, id := range diff.Added {
			if err := requireActiveTag(ctx, tx, id); err != nil {
				return err
			}
		}

		if len(diff.Removed) > 0 {
			if _, err := tx.ExecContext(ctx, `
				DELETE FROM content_tags
				WHERE content_id = $1 AND tag_id = ANY($2::text[]::uuid[])`,
				contentID, idStrings(diff.Removed),
			); err != nil {
				return fmt.Errorf("detach tags: %w", err)
			}
		}
		if len(diff.Added) > 0 {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO content_tags (content_id, tag_id)
				SELECT $1, unnest($2::text[]::uuid[])
				ON CONFLICT (content_id, tag_id) DO NOTHING`,
				contentID, idStrings(diff.Added),
			); err != nil {
				return fmt.Errorf("attach tags: %w", err)
			}
		}

		_, err = recountTags(ctx, tx, affected)
		return err
	})
	if err != nil {
		return Diff{}, wrapOp("set content tags", err)
	}

	if !diff.Empty() {
		r.invalidate(ctx, "content", contentID, "tags", keyTagList)
	}
	return diff, nil
}

// OnContentDeleted marks a content item deleted and recounts its tags, so
// the item stops contributing to their counts. Its attachments are kept
// for a later restore. It returns the recounted tag ids. Like a purge, an
// item the engine has never seen is a no-op and is not registered.
func (r *RelationshipCoordinator) OnContentDeleted(ctx context.Context, contentID uuid.UUID) ([]uuid.UUID, error) {
	return r.setContentDeleted(ctx, contentID, true)
}

// OnContentRestored reverses OnContentDeleted.
func (r *RelationshipCoordinator) OnContentRestored(ctx context.Context, contentID uuid.UUID) ([]uuid.UUID, error) {
	return r.setContentDeleted(ctx, contentID, false)
}

func (r *RelationshipCoordinator) setContentDeleted(ctx context.Context, contentID uuid.UUID, deleted bool) ([]uuid.UUID, error) {
	op, action := "restore content", "restore"
	if deleted {
		op, action = "delete content", "delete"
	}

	var recounted []uuid.UUID
	err := runTx(ctx, r.db, sql.LevelReadCommitted, op, func(tx *sql.Tx) error {
		recounted = nil
		ref, found, err := lockExistingContentRef(ctx, tx, contentID)
		if err != nil {
			return err
		}
		if !found || (ref.DeletedAt != nil) == deleted {
			return nil
		}

		tags, err := attachedIDs(ctx, tx, "content_tags", "tag_id", contentID)
		if err != nil {
			return err
		}
		if _, err := lockTagsForCount(ctx, tx, tags); err != nil {
			return err
		}

		query := `UPDATE content_refs SET deleted_at = NULL WHERE id = $1`
		if deleted {
			query = `UPDATE content_refs SET deleted_at = NOW() WHERE id = $1`
		}
		if _, err := tx.ExecContext(ctx, query, contentID); err != nil {
			return fmt.Errorf("flag content: %w", err)
		}

		if _, err := recountTags(ctx, tx, tags); err != nil {
			return err
		}
		recounted = tags
		return nil
	})
	if err != nil {
		return nil, wrapOp(op, err)
	}

	if len(recounted) > 0 {
		r.invalidate(ctx, "content", contentID, action, keyTagList, keyCategoryTree)
	}
	return recounted, nil
}

// OnContentPurged forgets a content item entirely: its attachments, its
// Meta record and its reference row. Tags it was attached to are recounted.
// Purging an unknown item is a no-op.
func (r *RelationshipCoordinator) OnContentPurged(ctx context.Context, contentID uuid.UUID) ([]uuid.UUID, error) {
	var recounted []uuid.UUID
	err := runTx(ctx, r.db, sql.LevelReadCommitted, "purge content", func(tx *sql.Tx) error {
		recounted = nil
		var exists bool
		err := tx.QueryRowContext(ctx,
			`SELECT true FROM content_refs WHERE id = $1 FOR UPDATE`, contentID,
		).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return deleteMeta(ctx, tx, models.OwnerContent, contentID)
		}
		if err != nil {
			return fmt.Errorf("lock content ref: %w", err)
		}

		tags, err := attachedIDs(ctx, tx, "content_tags", "tag_id", contentID)
		if err != nil {
			return err
		}
		if _, err := lockTagsForCount(ctx, tx, tags); err != nil {
			return err
		}

		if err := deleteMeta(ctx, tx, models.OwnerContent, contentID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM content_refs WHERE id = $1`, contentID); err != nil {
			return fmt.Errorf("delete content ref: %w", err)
		}

		if _, err := recountTags(ctx, tx, tags); err != nil {
			return err
		}
		recounted = tags
		return nil
	})
	if err != nil {
		return nil, wrapOp("purge content", err)
	}

	r.invalidate(ctx, "content", contentID, "purge", keyTagList, keyCategoryTree)
	return recounted, nil
}

// ContentTaxonomy returns the category and tag ids attached to contentID.
// An item the engine has never seen has an empty taxonomy.
func (r *RelationshipCoordinator) ContentTaxonomy(ctx context.Context, contentID uuid.UUID) (*models.ContentTaxonomy, error) {
	out := &models.ContentTaxonomy{
		ContentID:   contentID,
		CategoryIDs: []uuid.UUID{},
		TagIDs:      []uuid.UUID{},
	}

	var deletedAt *time.Time
	err := r.db.QueryRowContext(ctx, `SELECT deleted_at FROM content_refs WHERE id = $1`, contentID).Scan(&deletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return out, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load content ref: %w", err)
	}
	out.Deleted = deletedAt != nil

	cats, err := attachedIDs(ctx, r.db, "content_categories", "category_id", contentID)
	if err != nil {
		return nil, err
	}
	tags, err := attachedIDs(ctx, r.db, "content_tags", "tag_id", contentID)
	if err != nil {
		return nil, err
	}
	if cats != nil {
		out.CategoryIDs = cats
	}
	if tags != nil {
		out.TagIDs = tags
	}
	return out, nil
}

// ensureContentRef registers contentID as a live content item if the
// engine has not seen it before.
func ensureContentRef(ctx context.Context, q queryer, contentID uuid.UUID) error {
	if _, err := q.ExecContext(ctx,
		`INSERT INTO content_refs (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, contentID,
	); err != nil {
		return fmt.Errorf("register content: %w", err)
	}
	return nil
}

// lockContentRef registers contentID if needed and locks its reference
// row, serializing every attachment change of one content item.
func lockContentRef(ctx context.Context, q queryer, contentID uuid.UUID) (*models.ContentRef, error) {
	if err := ensureContentRef(ctx, q, contentID); err != nil {
		return nil, err
	}
	ref, found, err := lockExistingContentRef(ctx, q, contentID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, &NotFoundError{Entity: "content", ID: contentID}
	}
	return ref, nil
}

// lockExistingContentRef locks the reference row of contentID without
// registering it; found is false for an unknown item. FOR NO KEY UPDATE
// leaves the key-share locks taken by join-table foreign key checks free,
// so Merge inserting content_tags rows never waits on it.
func lockExistingContentRef(ctx context.Context, q queryer, contentID uuid.UUID) (*models.ContentRef, bool, error) {
	ref := &models.ContentRef{ID: contentID}
	err := q.QueryRowContext(ctx,
		`SELECT deleted_at FROM content_refs WHERE id = $1 FOR NO KEY UPDATE`, contentID,
	).Scan(&ref.DeletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("lock content ref: %w", err)
	}
	return ref, true, nil
}

// attachedIDs lists the ids in column of a join table for one content item.
// table and column are constants chosen by the caller.
func attachedIDs(ctx context.Context, q queryer, table, column string, contentID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+column+` FROM `+table+` WHERE content_id = $1 ORDER BY `+column, contentID)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", table, err)
	}
	return scanIDs(rows)
}
