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
	"strings"

	"github.com/google/uuid"

	"cmstaxonomy/internal/models"
	"cmstaxonomy/internal/slug"
)

// CategoryStore manages the category tree in the database. Every mutation
// runs in one serializable transaction that locks the sibling rows it
// renumbers, so concurrent moves within one sibling set serialize while
// moves in disjoint subtrees proceed in parallel.
type CategoryStore struct {
	db *sql.DB
	options
}

// NewCategoryStore returns a new CategoryStore.
func NewCategoryStore(db *sql.DB, opts ...Option) *CategoryStore {
	return &CategoryStore{db: db, options: buildOptions(opts)}
}

const categoryColumns = `id, name, slug, description, parent_id, sort_order, deleted_at, created_at, updated_at`

// NewCategory holds the input for Create. An empty Slug is derived from Name.
type NewCategory struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	ParentID    *uuid.UUID `json:"parent_id"`
	Slug        string     `json:"slug"`
}

// CategoryUpdate holds the input for Update. Empty Name keeps the current
// name; nil Description keeps the current description. The slug is
// regenerated from a changed name unless Slug is given explicitly.
type CategoryUpdate struct {
	Name        string  `json:"name"`
	Slug        string  `json:"slug"`
	Description *string `json:"description"`
}

// DeleteResult lists the side effects of a category delete.
type DeleteResult struct {
	ID                 uuid.UUID   `json:"id"`
	Hard               bool        `json:"hard"`
	ReparentedIDs      []uuid.UUID `json:"reparented_ids"`
	DetachedContentIDs []uuid.UUID `json:"detached_content_ids"`
}

// scanCategory scans a row into a Category struct.
func scanCategory(scanner interface{ Scan(...any) error }) (*models.Category, error) {
	var c models.Category
	var order sql.NullInt64
	err := scanner.Scan(
		&c.ID, &c.Name, &c.Slug, &c.Description,
		&c.ParentID, &order, &c.DeletedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.SortOrder = int(order.Int64)
	return &c, nil
}

// List returns all active categories ordered by sort_order, with the
// number of non-deleted content items attached to each.
func (s *CategoryStore) List(ctx context.Context) ([]models.Category, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.name, c.slug, c.description, c.parent_id, c.sort_order,
		       c.deleted_at, c.created_at, c.updated_at,
		       COUNT(cr.id) AS content_count
		FROM categories c
		LEFT JOIN content_categories cc ON cc.category_id = c.id
		LEFT JOIN content_refs cr ON cr.id = cc.content_id AND cr.deleted_at IS NULL
		WHERE c.deleted_at IS NULL
		GROUP BY c.id
		ORDER BY c.sort_order, c.name
	`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var items []models.Category
	for rows.Next() {
		var c models.Category
		var order sql.NullInt64
		err := rows.Scan(
			&c.ID, &c.Name, &c.Slug, &c.Description,
			&c.ParentID, &order, &c.DeletedAt, &c.CreatedAt, &c.UpdatedAt,
			&c.ContentCount,
		)
		if err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		c.SortOrder = int(order.Int64)
		items = append(items, c)
	}
	return items, rows.Err()
}

// ListDeleted returns soft-deleted categories, most recently deleted first.
func (s *CategoryStore) ListDeleted(ctx context.Context) ([]models.Category, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+categoryColumns+` FROM categories
		WHERE deleted_at IS NOT NULL ORDER BY deleted_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list deleted categories: %w", err)
	}
	defer rows.Close()

	var items []models.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		items = append(items, *c)
	}
	return items, rows.Err()
}

// Tree returns active categories as a nested tree structure. The result is
// served from the cache when present.
func (s *CategoryStore) Tree(ctx context.Context) ([]models.Category, error) {
	return cachedJSON(ctx, s.cache, keyCategoryTree, func() ([]models.Category, error) {
		flat, err := s.List(ctx)
		if err != nil {
			return nil, err
		}
		return buildTree(flat, nil, 0), nil
	})
}

// buildTree recursively builds a tree from a flat list. The visited set
// stops a corrupt parent loop from recursing forever.
func buildTree(flat []models.Category, parentID *uuid.UUID, depth int) []models.Category {
	return buildTreeGuarded(flat, parentID, depth, map[uuid.UUID]bool{})
}

func buildTreeGuarded(flat []models.Category, parentID *uuid.UUID, depth int, visited map[uuid.UUID]bool) []models.Category {
	var result []models.Category
	for _, c := range flat {
		if !ptrEqual(c.ParentID, parentID) || visited[c.ID] {
			continue
		}
		visited[c.ID] = true
		c.Depth = depth
		c.Children = buildTreeGuarded(flat, &c.ID, depth+1, visited)
		result = append(result, c)
	}
	return result
}

// ptrEqual compares two *uuid.UUID for equality (both nil or same value).
func ptrEqual(a, b *uuid.UUID) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return *a == *b
}

// FlatTree returns categories as a flat list ordered for display,
// with Depth set for indentation.
func (s *CategoryStore) FlatTree(ctx context.Context) ([]models.Category, error) {
	tree, err := s.Tree(ctx)
	if err != nil {
		return nil, err
	}
	var result []models.Category
	flattenTree(tree, &result)
	return result, nil
}

// flattenTree walks a category tree depth-first, appending to result.
func flattenTree(cats []models.Category, result *[]models.Category) {
	for _, c := range cats {
		children := c.Children
		c.Children = nil
		*result = append(*result, c)
		if len(children) > 0 {
			flattenTree(children, result)
		}
	}
}

// FindByID retrieves a category by ID, active or soft-deleted.
func (s *CategoryStore) FindByID(ctx context.Context, id uuid.UUID) (*models.Category, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+categoryColumns+` FROM categories WHERE id = $1`, id)
	c, err := scanCategory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Entity: "category", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("find category by id: %w", err)
	}
	return c, nil
}

// FindBySlug retrieves an active category by its slug.
func (s *CategoryStore) FindBySlug(ctx context.Context, slugValue string) (*models.Category, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+categoryColumns+` FROM categories
		WHERE slug = $1 AND deleted_at IS NULL`, slugValue)
	c, err := scanCategory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Entity: "category", Slug: slugValue}
	}
	if err != nil {
		return nil, fmt.Errorf("find category by slug: %w", err)
	}
	return c, nil
}

// Create inserts a new category at the end of its parent's children.
func (s *CategoryStore) Create(ctx context.Context, in NewCategory) (*models.Category, error) {
	explicit, err := normalizeExplicitSlug(in.Slug)
	if err != nil {
		return nil, err
	}

	var created *models.Category
	err = runTx(ctx, s.db, sql.LevelSerializable, "create category", func(tx *sql.Tx) error {
		if in.ParentID != nil {
			if err := requireActiveCategory(ctx, tx, *in.ParentID); err != nil {
				return err
			}
		}

		slugValue, err := s.allocateSlug(ctx, tx, in.Name, explicit, nil)
		if err != nil {
			return err
		}

		siblings, err := loadSiblings(ctx, tx, in.ParentID)
		if err != nil {
			return err
		}

		row := tx.QueryRowContext(ctx, `
			INSERT INTO categories (name, slug, description, parent_id, sort_order)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING `+categoryColumns,
			in.Name, slugValue, in.Description, in.ParentID, maxOrder(siblings)+1,
		)
		created, err = scanCategory(row)
		if err != nil {
			if explicit != "" {
				return explicitSlugConflict(err, explicit)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, wrapOp("create category", err)
	}

	s.invalidate(ctx, "category", created.ID, "create", keyCategoryTree)
	return created, nil
}

// Rename changes a category's name. The slug is regenerated from the new
// name unless slugValue is non-empty, in which case it is used verbatim.
func (s *CategoryStore) Rename(ctx context.Context, id uuid.UUID, name, slugValue string) (*models.Category, error) {
	return s.Update(ctx, id, CategoryUpdate{Name: name, Slug: slugValue})
}

// Update modifies name, slug and description of an active category.
func (s *CategoryStore) Update(ctx context.Context, id uuid.UUID, in CategoryUpdate) (*models.Category, error) {
	explicit, err := normalizeExplicitSlug(in.Slug)
	if err != nil {
		return nil, err
	}

	var updated *models.Category
	err = runTx(ctx, s.db, sql.LevelSerializable, "update category", func(tx *sql.Tx) error {
		cur, err := lockCategory(ctx, tx, id)
		if err != nil {
			return err
		}
		if cur.IsDeleted() {
			return &StateError{Entity: "category", ID: id, Op: "update", State: stateOf(true)}
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
			slugValue, err = s.allocateSlug(ctx, tx, name, explicit, &id)
		case name != cur.Name:
			slugValue, err = s.allocateSlug(ctx, tx, name, "", &id)
		}
		if err != nil {
			return err
		}

		row := tx.QueryRowContext(ctx, `
			UPDATE categories SET name = $1, slug = $2, description = $3, updated_at = NOW()
			WHERE id = $4
			RETURNING `+categoryColumns,
			name, slugValue, description, id,
		)
		updated, err = scanCategory(row)
		if err != nil {
			if explicit != "" {
				return explicitSlugConflict(err, explicit)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, wrapOp("update category", err)
	}

	s.invalidate(ctx, "category", id, "update", keyCategoryTree)
	return updated, nil
}

// Reparent moves a category under newParentID (nil for root). position is
// the 1-based slot among the new siblings; nil appends. The old sibling
// sequence is closed up and the new one renumbered in the same
// transaction, so no intermediate ordering is ever visible.
func (s *CategoryStore) Reparent(ctx context.Context, id uuid.UUID, newParentID *uuid.UUID, position *int) (*models.Category, error) {
	if position != nil && *position < 1 {
		return nil, &ValidationError{Field: "position", Message: "must be at least 1"}
	}

	var moved *models.Category
	err := runTx(ctx, s.db, sql.LevelSerializable, "reparent category", func(tx *sql.Tx) error {
		cur, err := lockCategory(ctx, tx, id)
		if err != nil {
			return err
		}
		if cur.IsDeleted() {
			return &StateError{Entity: "category", ID: id, Op: "move", State: stateOf(true)}
		}

		if newParentID != nil {
			if *newParentID == id {
				return &CycleError{ID: id, ParentID: *newParentID}
			}
			if err := requireActiveCategory(ctx, tx, *newParentID); err != nil {
				return err
			}
			cycle, err := wouldCycle(ctx, id, *newParentID, parentLookup(tx))
			if err != nil {
				return err
			}
			if cycle {
				return &CycleError{ID: id, ParentID: *newParentID}
			}
		}

		sameParent := ptrEqual(cur.ParentID, newParentID)
		if sameParent && position == nil {
			moved = cur
			return nil
		}

		oldSiblings, err := loadSiblings(ctx, tx, cur.ParentID)
		if err != nil {
			return err
		}
		plan := planRemove(oldSiblings, id)

		var newSiblings []sibling
		if sameParent {
			for _, sib := range oldSiblings {
				if sib.ID == id {
					continue
				}
				if n, ok := plan[sib.ID]; ok {
					sib.Order = n
				}
				newSiblings = append(newSiblings, sib)
			}
		} else {
			newSiblings, err = loadSiblings(ctx, tx, newParentID)
			if err != nil {
				return err
			}
		}
		for sid, order := range planInsert(newSiblings, id, position) {
			plan[sid] = order
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE categories SET parent_id = $1, updated_at = NOW() WHERE id = $2`,
			newParentID, id,
		); err != nil {
			return fmt.Errorf("update parent: %w", err)
		}
		if err := applyOrders(ctx, tx, plan); err != nil {
			return err
		}

		moved, err = lockCategory(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, wrapOp("reparent category", err)
	}

	slog.Info("category moved", "id", id, "parent_id", newParentID, "order", moved.SortOrder)
	s.invalidate(ctx, "category", id, "move", keyCategoryTree)
	return moved, nil
}

// Reorder assigns new sort orders to a batch of active categories. The
// batch is checked against the final state of every touched sibling set
// and rejected as a whole if two siblings would share an order. It returns
// the ids whose order actually changed.
func (s *CategoryStore) Reorder(ctx context.Context, items []ReorderItem) ([]uuid.UUID, error) {
	if err := validateReorder(items); err != nil {
		return nil, err
	}

	var changed []uuid.UUID
	err := runTx(ctx, s.db, sql.LevelSerializable, "reorder categories", func(tx *sql.Tx) error {
		ids := make([]uuid.UUID, 0, len(items))
		for _, it := range items {
			ids = append(ids, it.ID)
		}
		sortIDs(ids)

		keyOf := make(map[uuid.UUID]uuid.UUID, len(ids))
		sets := map[uuid.UUID][]sibling{}
		for _, id := range ids {
			cur, err := lockCategory(ctx, tx, id)
			if err != nil {
				return err
			}
			if cur.IsDeleted() {
				return &NotFoundError{Entity: "category", ID: id}
			}
			key := siblingKey(cur.ParentID)
			keyOf[id] = key
			if _, loaded := sets[key]; loaded {
				continue
			}
			set, err := loadSiblings(ctx, tx, cur.ParentID)
			if err != nil {
				return err
			}
			sets[key] = set
		}

		plan, err := planReorder(sets, keyOf, items)
		if err != nil {
			return err
		}
		if err := applyOrders(ctx, tx, plan); err != nil {
			return err
		}

		changed = changed[:0]
		for id := range plan {
			changed = append(changed, id)
		}
		sortIDs(changed)
		return nil
	})
	if err != nil {
		return nil, wrapOp("reorder categories", err)
	}

	s.invalidate(ctx, "category", uuid.Nil, "reorder", keyCategoryTree)
	return changed, nil
}

// validateReorder rejects empty batches, duplicate ids and orders below 1.
func validateReorder(items []ReorderItem) error {
	if len(items) == 0 {
		return &ValidationError{Field: "items", Message: "at least one item is required"}
	}
	seen := make(map[uuid.UUID]bool, len(items))
	for _, it := range items {
		if it.ID == uuid.Nil {
			return &ValidationError{Field: "id", Message: "is required"}
		}
		if seen[it.ID] {
			return &ValidationError{Field: "id", Message: fmt.Sprintf("%s appears more than once", it.ID)}
		}
		seen[it.ID] = true
		if it.Order < 1 {
			return &ValidationError{Field: "order", Message: "must be at least 1"}
		}
	}
	return nil
}

// Delete removes a category. A soft delete moves its children to its
// former parent (appended after that parent's existing children, in their
// current relative order) and detaches all content. A hard delete is only
// allowed on a soft-deleted category and additionally purges the row and
// its Meta record.
func (s *CategoryStore) Delete(ctx context.Context, id uuid.UUID, hard bool) (*DeleteResult, error) {
	result := &DeleteResult{ID: id, Hard: hard}
	op := "delete category"
	if hard {
		op = "purge category"
	}

	err := runTx(ctx, s.db, sql.LevelSerializable, op, func(tx *sql.Tx) error {
		result.ReparentedIDs = nil
		result.DetachedContentIDs = nil

		cur, err := lockCategory(ctx, tx, id)
		if err != nil {
			if hard {
				return purgedOr(ctx, tx, "category", id, err)
			}
			return err
		}

		if hard {
			if !cur.IsDeleted() {
				return &StateError{Entity: "category", ID: id, Op: "purge", State: stateOf(false)}
			}
			return s.purge(ctx, tx, cur, result)
		}

		if cur.IsDeleted() {
			return &StateError{Entity: "category", ID: id, Op: "delete", State: stateOf(true)}
		}
		return s.softDelete(ctx, tx, cur, result)
	})
	if err != nil {
		return nil, wrapOp(op, err)
	}

	action := "delete"
	if hard {
		action = "purge"
	}
	slog.Info("category deleted",
		"id", id,
		"hard", hard,
		"reparented", len(result.ReparentedIDs),
		"detached_content", len(result.DetachedContentIDs),
	)
	s.invalidate(ctx, "category", id, action, keyCategoryTree)
	return result, nil
}

func (s *CategoryStore) softDelete(ctx context.Context, tx *sql.Tx, cur *models.Category, result *DeleteResult) error {
	siblings, err := loadSiblings(ctx, tx, cur.ParentID)
	if err != nil {
		return err
	}
	children, err := loadSiblings(ctx, tx, &cur.ID)
	if err != nil {
		return err
	}
	plan := planCascade(siblings, cur.ID, children)

	if _, err := tx.ExecContext(ctx, `
		UPDATE categories SET deleted_at = NOW(), sort_order = NULL, updated_at = NOW()
		WHERE id = $1`, cur.ID,
	); err != nil {
		return fmt.Errorf("mark category deleted: %w", err)
	}

	reparented, err := repointChildren(ctx, tx, cur.ID, cur.ParentID, true)
	if err != nil {
		return err
	}
	result.ReparentedIDs = reparented

	if err := applyOrders(ctx, tx, plan); err != nil {
		return err
	}

	result.DetachedContentIDs, err = detachCategoryContent(ctx, tx, cur.ID)
	return err
}

func (s *CategoryStore) purge(ctx context.Context, tx *sql.Tx, cur *models.Category, result *DeleteResult) error {
	// Soft delete already moved the active children away. Deleted children
	// still pointing here follow the nearest live ancestor.
	target := cur.ParentID
	if target != nil {
		if err := requireActiveCategory(ctx, tx, *target); err != nil {
			if !errors.Is(err, ErrNotFound) {
				return err
			}
			target = nil
		}
	}

	stragglers, err := loadSiblings(ctx, tx, &cur.ID)
	if err != nil {
		return err
	}
	var plan orderPlan
	if len(stragglers) > 0 {
		targetSiblings, err := loadSiblings(ctx, tx, target)
		if err != nil {
			return err
		}
		plan = planCascade(targetSiblings, cur.ID, stragglers)
	}

	reparented, err := repointChildren(ctx, tx, cur.ID, target, false)
	if err != nil {
		return err
	}
	result.ReparentedIDs = reparented
	if err := applyOrders(ctx, tx, plan); err != nil {
		return err
	}

	result.DetachedContentIDs, err = detachCategoryContent(ctx, tx, cur.ID)
	if err != nil {
		return err
	}
	if err := deleteMeta(ctx, tx, models.OwnerCategory, cur.ID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM categories WHERE id = $1`, cur.ID); err != nil {
		return fmt.Errorf("delete category row: %w", err)
	}
	return markPurged(ctx, tx, "category", cur.ID)
}

// Restore reverses a soft delete. The category returns under its former
// parent when that parent is still active, otherwise at root level, and is
// appended after its new siblings. A slug taken in the meantime is
// replaced by a fresh one derived from the name.
func (s *CategoryStore) Restore(ctx context.Context, id uuid.UUID) (*models.Category, error) {
	var restored *models.Category
	err := runTx(ctx, s.db, sql.LevelSerializable, "restore category", func(tx *sql.Tx) error {
		cur, err := lockCategory(ctx, tx, id)
		if err != nil {
			return err
		}
		if !cur.IsDeleted() {
			return &StateError{Entity: "category", ID: id, Op: "restore", State: stateOf(false)}
		}

		target := cur.ParentID
		if target != nil {
			if err := requireActiveCategory(ctx, tx, *target); err != nil {
				if !errors.Is(err, ErrNotFound) {
					return err
				}
				target = nil
			}
		}
		if target != nil {
			cycle, err := wouldCycle(ctx, id, *target, parentLookup(tx))
			if err != nil {
				return err
			}
			if cycle {
				target = nil
			}
		}

		slugValue := cur.Slug
		taken, err := categorySlugExists(ctx, tx, cur.Slug, &id)
		if err != nil {
			return err
		}
		if taken {
			slugValue, err = s.allocateSlug(ctx, tx, cur.Name, "", &id)
			if err != nil {
				return err
			}
		}

		siblings, err := loadSiblings(ctx, tx, target)
		if err != nil {
			return err
		}

		row := tx.QueryRowContext(ctx, `
			UPDATE categories SET deleted_at = NULL, parent_id = $1, sort_order = $2,
			       slug = $3, updated_at = NOW()
			WHERE id = $4
			RETURNING `+categoryColumns,
			target, maxOrder(siblings)+1, slugValue, id,
		)
		restored, err = scanCategory(row)
		return err
	})
	if err != nil {
		return nil, wrapOp("restore category", err)
	}

	slog.Info("category restored", "id", id, "parent_id", restored.ParentID)
	s.invalidate(ctx, "category", id, "restore", keyCategoryTree)
	return restored, nil
}

// Ancestors returns the chain of categories above id, root first.
func (s *CategoryStore) Ancestors(ctx context.Context, id uuid.UUID) ([]models.Category, error) {
	if _, err := s.FindByID(ctx, id); err != nil {
		return nil, err
	}
	chain, err := walkAncestors(ctx, id, parentLookup(s.db))
	if err != nil {
		return nil, fmt.Errorf("walk ancestors: %w", err)
	}

	byID, err := s.findMany(ctx, chain)
	if err != nil {
		return nil, err
	}
	result := make([]models.Category, 0, len(chain))
	for i := len(chain) - 1; i >= 0; i-- {
		if c, ok := byID[chain[i]]; ok {
			result = append(result, c)
		}
	}
	return result, nil
}

// Descendants returns every active category below id, breadth-first.
func (s *CategoryStore) Descendants(ctx context.Context, id uuid.UUID) ([]models.Category, error) {
	if _, err := s.FindByID(ctx, id); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+categoryColumns+` FROM categories
		WHERE deleted_at IS NULL ORDER BY sort_order`)
	if err != nil {
		return nil, fmt.Errorf("list categories for descendants: %w", err)
	}
	defer rows.Close()

	byID := map[uuid.UUID]models.Category{}
	children := map[uuid.UUID][]uuid.UUID{}
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		byID[c.ID] = *c
		if c.ParentID != nil {
			children[*c.ParentID] = append(children[*c.ParentID], c.ID)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	ids := collectDescendants(id, children)
	result := make([]models.Category, 0, len(ids))
	for _, d := range ids {
		result = append(result, byID[d])
	}
	return result, nil
}

// Path returns the materialized path of id: the slugs of its ancestors and
// itself joined by "/", e.g. "news/world/europe".
func (s *CategoryStore) Path(ctx context.Context, id uuid.UUID) (string, error) {
	self, err := s.FindByID(ctx, id)
	if err != nil {
		return "", err
	}
	ancestors, err := s.Ancestors(ctx, id)
	if err != nil {
		return "", err
	}
	parts := make([]string, 0, len(ancestors)+1)
	for _, a := range ancestors {
		parts = append(parts, a.Slug)
	}
	parts = append(parts, self.Slug)
	return strings.Join(parts, "/"), nil
}

// ContentIDs returns the non-deleted content items attached to a category.
func (s *CategoryStore) ContentIDs(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT cc.content_id FROM content_categories cc
		JOIN content_refs cr ON cr.id = cc.content_id AND cr.deleted_at IS NULL
		WHERE cc.category_id = $1
		ORDER BY cc.content_id`, id)
	if err != nil {
		return nil, fmt.Errorf("list category content: %w", err)
	}
	return scanIDs(rows)
}

// HasContent reports whether any non-deleted content item is attached.
func (s *CategoryStore) HasContent(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM content_categories cc
			JOIN content_refs cr ON cr.id = cc.content_id AND cr.deleted_at IS NULL
			WHERE cc.category_id = $1
		)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("category has content: %w", err)
	}
	return exists, nil
}

// Verify scans every category and reports broken tree invariants.
func (s *CategoryStore) Verify(ctx context.Context) ([]Violation, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, parent_id, sort_order, deleted_at IS NOT NULL FROM categories`)
	if err != nil {
		return nil, fmt.Errorf("load categories for verify: %w", err)
	}
	defer rows.Close()

	var nodes []treeNode
	for rows.Next() {
		var n treeNode
		var order sql.NullInt64
		if err := rows.Scan(&n.ID, &n.ParentID, &order, &n.Deleted); err != nil {
			return nil, fmt.Errorf("scan category node: %w", err)
		}
		if order.Valid {
			o := int(order.Int64)
			n.Order = &o
		}
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return verifyTree(nodes), nil
}

// findMany loads categories by id into a map.
func (s *CategoryStore) findMany(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Category, error) {
	out := make(map[uuid.UUID]models.Category, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+categoryColumns+` FROM categories
		WHERE id = ANY($1::text[]::uuid[])`, idStrings(ids))
	if err != nil {
		return nil, fmt.Errorf("find categories: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out[c.ID] = *c
	}
	return out, rows.Err()
}

// allocateSlug returns explicit after checking it is free, or derives a
// unique slug from name. excludeID skips the category being updated.
func (s *CategoryStore) allocateSlug(ctx context.Context, q queryer, name, explicit string, excludeID *uuid.UUID) (string, error) {
	if explicit != "" {
		taken, err := categorySlugExists(ctx, q, explicit, excludeID)
		if err != nil {
			return "", err
		}
		if taken {
			return "", &ConflictError{Field: "slug", Value: explicit}
		}
		return explicit, nil
	}
	return slug.Unique(ctx, name, func(ctx context.Context, candidate string) (bool, error) {
		return categorySlugExists(ctx, q, candidate, excludeID)
	})
}

// --- transaction helpers ---

// lockCategory loads a category row and locks it for the rest of the
// transaction.
func lockCategory(ctx context.Context, q queryer, id uuid.UUID) (*models.Category, error) {
	row := q.QueryRowContext(ctx, `SELECT `+categoryColumns+` FROM categories WHERE id = $1 FOR UPDATE`, id)
	c, err := scanCategory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Entity: "category", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("lock category: %w", err)
	}
	return c, nil
}

// requireActiveCategory fails with NotFoundError unless id is an existing,
// non-deleted category. The row is share-locked so it cannot be deleted
// before the transaction ends.
func requireActiveCategory(ctx context.Context, q queryer, id uuid.UUID) error {
	var deleted bool
	err := q.QueryRowContext(ctx,
		`SELECT deleted_at IS NOT NULL FROM categories WHERE id = $1 FOR SHARE`, id,
	).Scan(&deleted)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && deleted) {
		return &NotFoundError{Entity: "category", ID: id}
	}
	if err != nil {
		return fmt.Errorf("check category: %w", err)
	}
	return nil
}

// loadSiblings returns and locks the active children of parentID (roots
// for nil), ordered by sort_order.
func loadSiblings(ctx context.Context, q queryer, parentID *uuid.UUID) ([]sibling, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, sort_order FROM categories
		WHERE sibling_key = COALESCE($1::uuid, '00000000-0000-0000-0000-000000000000'::uuid)
		  AND deleted_at IS NULL
		ORDER BY sort_order
		FOR UPDATE`, parentID)
	if err != nil {
		return nil, fmt.Errorf("load siblings: %w", err)
	}
	defer rows.Close()

	var out []sibling
	for rows.Next() {
		var sib sibling
		if err := rows.Scan(&sib.ID, &sib.Order); err != nil {
			return nil, fmt.Errorf("scan sibling: %w", err)
		}
		out = append(out, sib)
	}
	return out, rows.Err()
}

// applyOrders writes an order plan. Rows are updated in id order; the
// sibling uniqueness constraint is deferred to commit, so transient
// duplicates between statements are fine.
func applyOrders(ctx context.Context, tx *sql.Tx, plan orderPlan) error {
	if len(plan) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, 0, len(plan))
	for id := range plan {
		ids = append(ids, id)
	}
	sortIDs(ids)

	stmt, err := tx.PrepareContext(ctx, `UPDATE categories SET sort_order = $1, updated_at = NOW() WHERE id = $2`)
	if err != nil {
		return fmt.Errorf("prepare order update: %w", err)
	}
	defer stmt.Close()

	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, plan[id], id); err != nil {
			return fmt.Errorf("update order of %s: %w", id, err)
		}
	}
	return nil
}

// repointChildren moves the children of id under newParent and returns
// the moved ids. Soft-deleted children are only moved when activeOnly is
// false; otherwise they keep pointing at id, which Restore later finds
// deleted.
func repointChildren(ctx context.Context, tx *sql.Tx, id uuid.UUID, newParent *uuid.UUID, activeOnly bool) ([]uuid.UUID, error) {
	rows, err := tx.QueryContext(ctx, `
		UPDATE categories SET parent_id = $1, updated_at = NOW()
		WHERE parent_id = $2 AND (NOT $3::boolean OR deleted_at IS NULL)
		RETURNING id`, newParent, id, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("reparent children: %w", err)
	}
	ids, err := scanIDs(rows)
	if err != nil {
		return nil, err
	}
	sortIDs(ids)
	return ids, nil
}

// detachCategoryContent removes every content attachment of a category.
func detachCategoryContent(ctx context.Context, tx *sql.Tx, id uuid.UUID) ([]uuid.UUID, error) {
	rows, err := tx.QueryContext(ctx,
		`DELETE FROM content_categories WHERE category_id = $1 RETURNING content_id`, id)
	if err != nil {
		return nil, fmt.Errorf("detach category content: %w", err)
	}
	ids, err := scanIDs(rows)
	if err != nil {
		return nil, err
	}
	sortIDs(ids)
	return ids, nil
}

// parentLookup reads parent pointers through q for ancestor walks.
func parentLookup(q queryer) parentFunc {
	return func(ctx context.Context, id uuid.UUID) (*uuid.UUID, error) {
		var parent *uuid.UUID
		err := q.QueryRowContext(ctx, `SELECT parent_id FROM categories WHERE id = $1`, id).Scan(&parent)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &NotFoundError{Entity: "category", ID: id}
		}
		if err != nil {
			return nil, fmt.Errorf("read parent of %s: %w", id, err)
		}
		return parent, nil
	}
}

// categorySlugExists reports whether an active category other than
// excludeID uses slugValue.
func categorySlugExists(ctx context.Context, q queryer, slugValue string, excludeID *uuid.UUID) (bool, error) {
	var exists bool
	err := q.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM categories
			WHERE slug = $1 AND deleted_at IS NULL AND ($2::uuid IS NULL OR id <> $2::uuid)
		)`, slugValue, excludeID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check category slug: %w", err)
	}
	return exists, nil
}
