// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package models

import (
	"time"

	"github.com/google/uuid"
)

// OwnerType identifies which kind of entity a Meta record belongs to.
type OwnerType string

const (
	OwnerCategory OwnerType = "category"
	OwnerTag      OwnerType = "tag"
	OwnerContent  OwnerType = "content"
)

// Valid reports whether t is one of the known owner types.
func (t OwnerType) Valid() bool {
	switch t {
	case OwnerCategory, OwnerTag, OwnerContent:
		return true
	}
	return false
}

// Meta is the auxiliary SEO record attached 1:1 to a category, tag or
// content item. Custom holds free-form keys that have no dedicated column.
type Meta struct {
	ID           uuid.UUID         `json:"id"`
	OwnerType    OwnerType         `json:"owner_type"`
	OwnerID      uuid.UUID         `json:"owner_id"`
	Title        string            `json:"title"`
	Description  string            `json:"description"`
	Keywords     string            `json:"keywords"`
	CanonicalURL string            `json:"canonical_url"`
	Robots       string            `json:"robots"`
	Custom       map[string]string `json:"custom"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}
