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

// TagService is the part of store.TagStore the API uses.
type TagService interface {
	List(ctx context.Context, includeDeleted bool) ([]models.Tag, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Tag, error)
	Create(ctx context.Context, in store.NewTag) (*models.Tag, error)
	Update(ctx context.Context, id uuid.UUID, in store.TagUpdate) (*models.Tag, error)
	Delete(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error)
	Purge(ctx context.Context, id uuid.UUID) error
	Restore(ctx context.Context, id uuid.UUID) (*models.Tag, error)
	RecomputeCount(ctx context.Context, id uuid.UUID) (int, error)
	Merge(ctx context.Context, sourceIDs []uuid.UUID, targetID uuid.UUID) (*models.Tag, error)
}

// Tags groups the tag handlers.
type Tags struct {
	store TagService
	meta  MetaService
}

// NewTags creates a new Tags handler group.
func NewTags(s TagService, meta MetaService) *Tags {
	return &Tags{store: s, meta: meta}
}

type mergeRequest struct {
	SourceIDs []uuid.UUID `json:"source_ids"`
	TargetID  uuid.UUID   `json:"target_id"`
}

type tagDeleteResponse struct {
	ID                 uuid.UUID   `json:"id"`
	Hard               bool        `json:"hard"`
	DetachedContentIDs []uuid.UUID `json:"detached_content_ids"`
}

type countResponse struct {
	ID    uuid.UUID `json:"id"`
	Count int       `json:"count"`
}

// List serves active tags, or all tags with ?deleted=true.
func (h *Tags) List(w http.ResponseWriter, r *http.Request) {
	tags, err := h.store.List(r.Context(), queryBool(r, "deleted"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if tags == nil {
		tags = []models.Tag{}
	}
	writeJSON(w, r, http.StatusOK, tags)
}

// Get serves a single tag.
func (h *Tags) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	tag, err := h.store.FindByID(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, tag)
}

// Create adds a tag.
func (h *Tags) Create(w http.ResponseWriter, r *http.Request) {
	var in store.NewTag
	if !decode(w, r, &in) {
		return
	}
	if errs := validateTerm(in.Name, in.Slug, &in.Description, true); !errs.empty() {
		writeFieldErrors(w, r, http.StatusUnprocessableEntity, errs)
		return
	}

	tag, err := h.store.Create(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, tag)
}

// Update renames a tag or changes its slug or description.
func (h *Tags) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var in store.TagUpdate
	if !decode(w, r, &in) {
		return
	}
	if errs := validateTerm(in.Name, in.Slug, in.Description, false); !errs.empty() {
		writeFieldErrors(w, r, http.StatusUnprocessableEntity, errs)
		return
	}

	tag, err := h.store.Update(r.Context(), id, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, tag)
}

// Delete soft-deletes a tag. With ?hard=true it purges a tag that is
// already soft-deleted.
func (h *Tags) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if queryBool(r, "hard") {
		if err := h.store.Purge(r.Context(), id); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, tagDeleteResponse{ID: id, Hard: true, DetachedContentIDs: []uuid.UUID{}})
		return
	}

	detached, err := h.store.Delete(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if detached == nil {
		detached = []uuid.UUID{}
	}
	writeJSON(w, r, http.StatusOK, tagDeleteResponse{ID: id, DetachedContentIDs: detached})
}

// Restore reverses a soft delete.
func (h *Tags) Restore(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	tag, err := h.store.Restore(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, tag)
}

// Recount recomputes the count of one tag from its attachments.
func (h *Tags) Recount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	n, err := h.store.RecomputeCount(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, countResponse{ID: id, Count: n})
}

// Merge folds the source tags into the target.
func (h *Tags) Merge(w http.ResponseWriter, r *http.Request) {
	var in mergeRequest
	if !decode(w, r, &in) {
		return
	}
	if in.TargetID == uuid.Nil {
		writeFieldErrors(w, r, http.StatusUnprocessableEntity, fieldErrors{"target_id": "is required"})
		return
	}

	tag, err := h.store.Merge(r.Context(), in.SourceIDs, in.TargetID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, tag)
}

// GetMeta serves the Meta record of a tag.
func (h *Tags) GetMeta(w http.ResponseWriter, r *http.Request) {
	getMeta(w, r, h.meta, models.OwnerTag)
}

// PutMeta creates or replaces the Meta record of a tag.
func (h *Tags) PutMeta(w http.ResponseWriter, r *http.Request) {
	putMeta(w, r, h.meta, models.OwnerTag)
}
