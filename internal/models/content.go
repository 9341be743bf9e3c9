// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package models

import (
	"time"

	"github.com/google/uuid"
)

// ContentRef is the engine's view of an external content item: only its id
// and whether it is currently deleted. Tag counts skip deleted content.
type ContentRef struct {
	ID        uuid.UUID  `json:"id"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// ContentTaxonomy lists the categories and tags attached to one content item.
type ContentTaxonomy struct {
	ContentID   uuid.UUID   `json:"content_id"`
	Deleted     bool        `json:"deleted"`
	CategoryIDs []uuid.UUID `json:"category_ids"`
	TagIDs      []uuid.UUID `json:"tag_ids"`
}
