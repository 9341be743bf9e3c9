// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"cmstaxonomy/internal/models"
	"cmstaxonomy/internal/store"
)

// CategoryService is the part of store.CategoryStore the API uses.
type CategoryService interface {
	Tree(ctx context.Context) ([]models.Category, error)
	FlatTree(ctx context.Context) ([]models.Category, error)
	ListDeleted(ctx context.Context) ([]models.Category, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Category, error)
	Create(ctx context.Context, in store.NewCategory) (*models.Category, error)
	Update(ctx context.Context, id uuid.UUID, in store.CategoryUpdate) (*models.Category, error)
	Reparent(ctx context.Context, id uuid.UUID, newParentID *uuid.UUID, position *int) (*models.Category, error)
	Reorder(ctx context.Context, items []store.ReorderItem) ([]uuid.UUID, error)
	Delete(ctx context.Context, id uuid.UUID, hard bool) (*store.DeleteResult, error)
	Restore(ctx context.Context, id uuid.UUID) (*models.Category, error)
	Ancestors(ctx context.Context, id uuid.UUID) ([]models.Category, error)
	Descendants(ctx context.Context, id uuid.UUID) ([]models.Category, error)
	Path(ctx context.Context, id uuid.UUID) (string, error)
}

// MetaService is the part of store.MetaStore the API uses.
type MetaService interface {
	Get(ctx context.Context, ownerType models.OwnerType, ownerID uuid.UUID) (*models.Meta, error)
	Upsert(ctx context.Context, m *models.Meta) (*models.Meta, error)
}

// Categories groups the category tree handlers.
type Categories struct {
	store CategoryService
	meta  MetaService
}

// NewCategories creates a new Categories handler group.
func NewCategories(s CategoryService, meta MetaService) *Categories {
	return &Categories{store: s, meta: meta}
}

// moveRequest is the body of POST /api/categories/{id}/move. A null
// parent_id moves the category to the root; a null position appends.
type moveRequest struct {
	ParentID *uuid.UUID `json:"parent_id"`
	Position *int       `json:"position"`
}

// reorderRequest is a bare [{id, order}] list or the same list wrapped as
// {"items": [...]}.
type reorderRequest struct {
	Items []store.ReorderItem `json:"items"`
}

func (req *reorderRequest) UnmarshalJSON(data []byte) error {
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '[' {
		return json.Unmarshal(trimmed, &req.Items)
	}
	type wrapped reorderRequest
	return json.Unmarshal(data, (*wrapped)(req))
}

type reorderResponse struct {
	Changed []uuid.UUID `json:"changed"`
}

type pathResponse struct {
	ID   uuid.UUID `json:"id"`
	Path string    `json:"path"`
}

// Tree serves the category forest. ?flat=true returns the depth-first
// flattening instead, and ?deleted=true lists soft-deleted categories.
func (h *Categories) Tree(w http.ResponseWriter, r *http.Request) {
	var (
		cats []models.Category
		err  error
	)
	switch {
	case queryBool(r, "deleted"):
		cats, err = h.store.ListDeleted(r.Context())
	case queryBool(r, "flat"):
		cats, err = h.store.FlatTree(r.Context())
	default:
		cats, err = h.store.Tree(r.Context())
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	if cats == nil {
		cats = []models.Category{}
	}
	writeJSON(w, r, http.StatusOK, cats)
}

// Get serves a single category.
func (h *Categories) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	cat, err := h.store.FindByID(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, cat)
}

// Create adds a category under the given parent (or at the root).
func (h *Categories) Create(w http.ResponseWriter, r *http.Request) {
	var in store.NewCategory
	if !decode(w, r, &in) {
		return
	}
	if errs := validateTerm(in.Name, in.Slug, &in.Description, true); !errs.empty() {
		writeFieldErrors(w, r, http.StatusUnprocessableEntity, errs)
		return
	}

	cat, err := h.store.Create(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, cat)
}

// Update renames a category or changes its slug or description.
func (h *Categories) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var in store.CategoryUpdate
	if !decode(w, r, &in) {
		return
	}
	if errs := validateTerm(in.Name, in.Slug, in.Description, false); !errs.empty() {
		writeFieldErrors(w, r, http.StatusUnprocessableEntity, errs)
		return
	}

	cat, err := h.store.Update(r.Context(), id, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, cat)
}

// Move reparents a category, optionally at a 1-based sibling position.
func (h *Categories) Move(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var in moveRequest
	if !decode(w, r, &in) {
		return
	}

	cat, err := h.store.Reparent(r.Context(), id, in.ParentID, in.Position)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, cat)
}

// Reorder applies a batch of explicit sibling orders.
func (h *Categories) Reorder(w http.ResponseWriter, r *http.Request) {
	var in reorderRequest
	if !decode(w, r, &in) {
		return
	}

	if in.Items == nil {
		in.Items = []store.ReorderItem{}
	}
	changed, err := h.store.Reorder(r.Context(), in.Items)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if changed == nil {
		changed = []uuid.UUID{}
	}
	writeJSON(w, r, http.StatusOK, reorderResponse{Changed: changed})
}

// Delete soft-deletes a category, or purges it with ?hard=true.
func (h *Categories) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	res, err := h.store.Delete(r.Context(), id, queryBool(r, "hard"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

// Restore reverses a soft delete.
func (h *Categories) Restore(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	cat, err := h.store.Restore(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, cat)
}

// Ancestors serves the root-first ancestor chain of a category.
func (h *Categories) Ancestors(w http.ResponseWriter, r *http.Request) {
	h.serveList(w, r, h.store.Ancestors)
}

// Descendants serves every active descendant of a category.
func (h *Categories) Descendants(w http.ResponseWriter, r *http.Request) {
	h.serveList(w, r, h.store.Descendants)
}

func (h *Categories) serveList(w http.ResponseWriter, r *http.Request, load func(context.Context, uuid.UUID) ([]models.Category, error)) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	cats, err := load(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if cats == nil {
		cats = []models.Category{}
	}
	writeJSON(w, r, http.StatusOK, cats)
}

// Path serves the slash-joined slug path of a category.
func (h *Categories) Path(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	p, err := h.store.Path(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, pathResponse{ID: id, Path: p})
}

// GetMeta serves the Meta record of a category.
func (h *Categories) GetMeta(w http.ResponseWriter, r *http.Request) {
	getMeta(w, r, h.meta, models.OwnerCategory)
}

// PutMeta creates or replaces the Meta record of a category.
func (h *Categories) PutMeta(w http.ResponseWriter, r *http.Request) {
	putMeta(w, r, h.meta, models.OwnerCategory)
}

func getMeta(w http.ResponseWriter, r *http.Request, svc MetaService, owner models.OwnerType) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	m, err := svc.Get(r.Context(), owner, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, m)
}

func putMeta(w http.ResponseWriter, r *http.Request, svc MetaService, owner models.OwnerType) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var in models.Meta
	if !decode(w, r, &in) {
		return
	}
	// The owner always comes from the URL.
	in.OwnerType = owner
	in.OwnerID = id
	if errs := validateMeta(&in); !errs.empty() {
		writeFieldErrors(w, r, http.StatusUnprocessableEntity, errs)
		return
	}

	m, err := svc.Upsert(r.Context(), &in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, m)
}
