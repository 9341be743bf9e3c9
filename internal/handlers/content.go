// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"cmstaxonomy/internal/models"
	"cmstaxonomy/internal/store"
)

// RelationshipService is the part of store.RelationshipCoordinator the API
// uses.
type RelationshipService interface {
	SetContentCategories(ctx context.Context, contentID uuid.UUID, categoryIDs []uuid.UUID) (store.Diff, error)
	SetContentTags(ctx context.Context, contentID uuid.UUID, tagIDs []uuid.UUID) (store.Diff, error)
	OnContentDeleted(ctx context.Context, contentID uuid.UUID) ([]uuid.UUID, error)
	OnContentRestored(ctx context.Context, contentID uuid.UUID) ([]uuid.UUID, error)
	OnContentPurged(ctx context.Context, contentID uuid.UUID) ([]uuid.UUID, error)
	ContentTaxonomy(ctx context.Context, contentID uuid.UUID) (*models.ContentTaxonomy, error)
}

// Content groups the handlers the content workflow calls: attachment sets
// and lifecycle notifications.
type Content struct {
	rel  RelationshipService
	meta MetaService
}

// NewContent creates a new Content handler group.
func NewContent(rel RelationshipService, meta MetaService) *Content {
	return &Content{rel: rel, meta: meta}
}

type categoriesRequest struct {
	CategoryIDs []uuid.UUID `json:"category_ids"`
}

type tagsRequest struct {
	TagIDs []uuid.UUID `json:"tag_ids"`
}

// lifecycleResponse lists the tags whose counts a lifecycle event changed.
type lifecycleResponse struct {
	ContentID     uuid.UUID   `json:"content_id"`
	RecountedTags []uuid.UUID `json:"recounted_tags"`
}

// Taxonomy serves the categories and tags attached to a content item.
func (h *Content) Taxonomy(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	tax, err := h.rel.ContentTaxonomy(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, tax)
}

// SetCategories replaces the full category set of a content item.
func (h *Content) SetCategories(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var in categoriesRequest
	if !decode(w, r, &in) {
		return
	}
	if in.CategoryIDs == nil {
		in.CategoryIDs = []uuid.UUID{}
	}

	diff, err := h.rel.SetContentCategories(r.Context(), id, in.CategoryIDs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, diff)
}

// SetTags replaces the full tag set of a content item.
func (h *Content) SetTags(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var in tagsRequest
	if !decode(w, r, &in) {
		return
	}
	if in.TagIDs == nil {
		in.TagIDs = []uuid.UUID{}
	}

	diff, err := h.rel.SetContentTags(r.Context(), id, in.TagIDs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, diff)
}

// Deleted records that a content item was soft-deleted.
func (h *Content) Deleted(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.rel.OnContentDeleted)
}

// Restored records that a content item was restored.
func (h *Content) Restored(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.rel.OnContentRestored)
}

// Purged records that a content item was permanently removed.
func (h *Content) Purged(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.rel.OnContentPurged)
}

func (h *Content) lifecycle(w http.ResponseWriter, r *http.Request, event func(context.Context, uuid.UUID) ([]uuid.UUID, error)) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	tags, err := event(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if tags == nil {
		tags = []uuid.UUID{}
	}
	writeJSON(w, r, http.StatusOK, lifecycleResponse{ContentID: id, RecountedTags: tags})
}

// GetMeta serves the Meta record of a content item.
func (h *Content) GetMeta(w http.ResponseWriter, r *http.Request) {
	getMeta(w, r, h.meta, models.OwnerContent)
}

// PutMeta creates or replaces the Meta record of a content item.
func (h *Content) PutMeta(w http.ResponseWriter, r *http.Request) {
	putMeta(w, r, h.meta, models.OwnerContent)
}
