// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"cmstaxonomy/internal/models"
)

// MetaStore handles the SEO record attached to categories, tags and
// content items. Records are removed together with their owner's hard
// delete; nothing else deletes them.
type MetaStore struct {
	db *sql.DB
}

// NewMetaStore creates a new MetaStore.
func NewMetaStore(db *sql.DB) *MetaStore {
	return &MetaStore{db: db}
}

const metaColumns = `id, owner_type, owner_id, title, description, keywords, canonical_url, robots, custom, created_at, updated_at`

func scanMeta(scanner interface{ Scan(...any) error }) (*models.Meta, error) {
	var m models.Meta
	var custom []byte
	err := scanner.Scan(
		&m.ID, &m.OwnerType, &m.OwnerID, &m.Title, &m.Description,
		&m.Keywords, &m.CanonicalURL, &m.Robots, &custom, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(custom) > 0 {
		if err := json.Unmarshal(custom, &m.Custom); err != nil {
			return nil, fmt.Errorf("decode custom meta: %w", err)
		}
	}
	if m.Custom == nil {
		m.Custom = map[string]string{}
	}
	return &m, nil
}

// Get returns the Meta record of an owner.
func (s *MetaStore) Get(ctx context.Context, ownerType models.OwnerType, ownerID uuid.UUID) (*models.Meta, error) {
	if !ownerType.Valid() {
		return nil, &ValidationError{Field: "owner_type", Message: fmt.Sprintf("unknown owner type %q", ownerType)}
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+metaColumns+` FROM meta
		WHERE owner_type = $1 AND owner_id = $2`, string(ownerType), ownerID)
	m, err := scanMeta(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Entity: "meta", ID: ownerID}
	}
	if err != nil {
		return nil, fmt.Errorf("get meta: %w", err)
	}
	return m, nil
}

// Upsert creates or replaces the Meta record of an owner. Category and tag
// owners must exist and be active; content owners are registered on first
// use like any other content reference.
func (s *MetaStore) Upsert(ctx context.Context, m *models.Meta) (*models.Meta, error) {
	if !m.OwnerType.Valid() {
		return nil, &ValidationError{Field: "owner_type", Message: fmt.Sprintf("unknown owner type %q", m.OwnerType)}
	}
	custom := m.Custom
	if custom == nil {
		custom = map[string]string{}
	}
	raw, err := json.Marshal(custom)
	if err != nil {
		return nil, fmt.Errorf("encode custom meta: %w", err)
	}

	var saved *models.Meta
	err = runTx(ctx, s.db, sql.LevelReadCommitted, "upsert meta", func(tx *sql.Tx) error {
		if err := requireMetaOwner(ctx, tx, m.OwnerType, m.OwnerID); err != nil {
			return err
		}
		row := tx.QueryRowContext(ctx, `
			INSERT INTO meta (owner_type, owner_id, title, description, keywords, canonical_url, robots, custom)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb)
			ON CONFLICT (owner_type, owner_id) DO UPDATE SET
				title = EXCLUDED.title,
				description = EXCLUDED.description,
				keywords = EXCLUDED.keywords,
				canonical_url = EXCLUDED.canonical_url,
				robots = EXCLUDED.robots,
				custom = EXCLUDED.custom,
				updated_at = NOW()
			RETURNING `+metaColumns,
			string(m.OwnerType), m.OwnerID, m.Title, m.Description, m.Keywords,
			m.CanonicalURL, m.Robots, string(raw),
		)
		saved, err = scanMeta(row)
		return err
	})
	if err != nil {
		return nil, wrapOp("upsert meta", err)
	}
	return saved, nil
}

func requireMetaOwner(ctx context.Context, tx *sql.Tx, ownerType models.OwnerType, ownerID uuid.UUID) error {
	switch ownerType {
	case models.OwnerCategory:
		return requireActiveCategory(ctx, tx, ownerID)
	case models.OwnerTag:
		return requireActiveTag(ctx, tx, ownerID)
	default:
		return ensureContentRef(ctx, tx, ownerID)
	}
}

// deleteMeta removes an owner's Meta record inside the owner's delete
// transaction. A missing record is not an error.
func deleteMeta(ctx context.Context, q queryer, ownerType models.OwnerType, ownerID uuid.UUID) error {
	if _, err := q.ExecContext(ctx,
		`DELETE FROM meta WHERE owner_type = $1 AND owner_id = $2`, string(ownerType), ownerID,
	); err != nil {
		return fmt.Errorf("delete %s meta: %w", ownerType, err)
	}
	return nil
}
