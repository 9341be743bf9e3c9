// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// handler_test.go provides shared test infrastructure for handler tests:
// testify mocks of the service interfaces and request helpers.
package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"cmstaxonomy/internal/models"
	"cmstaxonomy/internal/store"
)

// The store types must keep satisfying the interfaces the API depends on.
var (
	_ CategoryService     = (*store.CategoryStore)(nil)
	_ TagService          = (*store.TagStore)(nil)
	_ RelationshipService = (*store.RelationshipCoordinator)(nil)
	_ MetaService         = (*store.MetaStore)(nil)
)

// MockCategoryService is a mock implementation of CategoryService.
type MockCategoryService struct {
	mock.Mock
}

func (m *MockCategoryService) categories(args mock.Arguments) ([]models.Category, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Category), args.Error(1)
}

func (m *MockCategoryService) category(args mock.Arguments) (*models.Category, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Category), args.Error(1)
}

func (m *MockCategoryService) Tree(ctx context.Context) ([]models.Category, error) {
	return m.categories(m.Called(ctx))
}

func (m *MockCategoryService) FlatTree(ctx context.Context) ([]models.Category, error) {
	return m.categories(m.Called(ctx))
}

func (m *MockCategoryService) ListDeleted(ctx context.Context) ([]models.Category, error) {
	return m.categories(m.Called(ctx))
}

func (m *MockCategoryService) FindByID(ctx context.Context, id uuid.UUID) (*models.Category, error) {
	return m.category(m.Called(ctx, id))
}

func (m *MockCategoryService) Create(ctx context.Context, in store.NewCategory) (*models.Category, error) {
	return m.category(m.Called(ctx, in))
}

func (m *MockCategoryService) Update(ctx context.Context, id uuid.UUID, in store.CategoryUpdate) (*models.Category, error) {
	return m.category(m.Called(ctx, id, in))
}

func (m *MockCategoryService) Reparent(ctx context.Context, id uuid.UUID, newParentID *uuid.UUID, position *int) (*models.Category, error) {
	return m.category(m.Called(ctx, id, newParentID, position))
}

func (m *MockCategoryService) Reorder(ctx context.Context, items []store.ReorderItem) ([]uuid.UUID, error) {
	args := m.Called(ctx, items)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

func (m *MockCategoryService) Delete(ctx context.Context, id uuid.UUID, hard bool) (*store.DeleteResult, error) {
	args := m.Called(ctx, id, hard)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*store.DeleteResult), args.Error(1)
}

func (m *MockCategoryService) Restore(ctx context.Context, id uuid.UUID) (*models.Category, error) {
	return m.category(m.Called(ctx, id))
}

func (m *MockCategoryService) Ancestors(ctx context.Context, id uuid.UUID) ([]models.Category, error) {
	return m.categories(m.Called(ctx, id))
}

func (m *MockCategoryService) Descendants(ctx context.Context, id uuid.UUID) ([]models.Category, error) {
	return m.categories(m.Called(ctx, id))
}

func (m *MockCategoryService) Path(ctx context.Context, id uuid.UUID) (string, error) {
	args := m.Called(ctx, id)
	return args.String(0), args.Error(1)
}

// MockTagService is a mock implementation of TagService.
type MockTagService struct {
	mock.Mock
}

func (m *MockTagService) tag(args mock.Arguments) (*models.Tag, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Tag), args.Error(1)
}

func (m *MockTagService) List(ctx context.Context, includeDeleted bool) ([]models.Tag, error) {
	args := m.Called(ctx, includeDeleted)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Tag), args.Error(1)
}

func (m *MockTagService) FindByID(ctx context.Context, id uuid.UUID) (*models.Tag, error) {
	return m.tag(m.Called(ctx, id))
}

func (m *MockTagService) Create(ctx context.Context, in store.NewTag) (*models.Tag, error) {
	return m.tag(m.Called(ctx, in))
}

func (m *MockTagService) Update(ctx context.Context, id uuid.UUID, in store.TagUpdate) (*models.Tag, error) {
	return m.tag(m.Called(ctx, id, in))
}

func (m *MockTagService) Delete(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

func (m *MockTagService) Purge(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockTagService) Restore(ctx context.Context, id uuid.UUID) (*models.Tag, error) {
	return m.tag(m.Called(ctx, id))
}

func (m *MockTagService) RecomputeCount(ctx context.Context, id uuid.UUID) (int, error) {
	args := m.Called(ctx, id)
	return args.Int(0), args.Error(1)
}

func (m *MockTagService) Merge(ctx context.Context, sourceIDs []uuid.UUID, targetID uuid.UUID) (*models.Tag, error) {
	return m.tag(m.Called(ctx, sourceIDs, targetID))
}

// MockRelationshipService is a mock implementation of RelationshipService.
type MockRelationshipService struct {
	mock.Mock
}

func (m *MockRelationshipService) SetContentCategories(ctx context.Context, contentID uuid.UUID, categoryIDs []uuid.UUID) (store.Diff, error) {
	args := m.Called(ctx, contentID, categoryIDs)
	return args.Get(0).(store.Diff), args.Error(1)
}

func (m *MockRelationshipService) SetContentTags(ctx context.Context, contentID uuid.UUID, tagIDs []uuid.UUID) (store.Diff, error) {
	args := m.Called(ctx, contentID, tagIDs)
	return args.Get(0).(store.Diff), args.Error(1)
}

func (m *MockRelationshipService) ids(args mock.Arguments) ([]uuid.UUID, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

func (m *MockRelationshipService) OnContentDeleted(ctx context.Context, contentID uuid.UUID) ([]uuid.UUID, error) {
	return m.ids(m.Called(ctx, contentID))
}

func (m *MockRelationshipService) OnContentRestored(ctx context.Context, contentID uuid.UUID) ([]uuid.UUID, error) {
	return m.ids(m.Called(ctx, contentID))
}

func (m *MockRelationshipService) OnContentPurged(ctx context.Context, contentID uuid.UUID) ([]uuid.UUID, error) {
	return m.ids(m.Called(ctx, contentID))
}

func (m *MockRelationshipService) ContentTaxonomy(ctx context.Context, contentID uuid.UUID) (*models.ContentTaxonomy, error) {
	args := m.Called(ctx, contentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ContentTaxonomy), args.Error(1)
}

// MockMetaService is a mock implementation of MetaService.
type MockMetaService struct {
	mock.Mock
}

func (m *MockMetaService) Get(ctx context.Context, ownerType models.OwnerType, ownerID uuid.UUID) (*models.Meta, error) {
	args := m.Called(ctx, ownerType, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Meta), args.Error(1)
}

func (m *MockMetaService) Upsert(ctx context.Context, meta *models.Meta) (*models.Meta, error) {
	args := m.Called(ctx, meta)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Meta), args.Error(1)
}

// serve sends one request through a chi router holding a single route.
// body is JSON-encoded unless it is already a string.
func serve(t *testing.T, method, pattern, target string, h http.HandlerFunc, body any) *httptest.ResponseRecorder {
	t.Helper()

	r := chi.NewRouter()
	r.MethodFunc(method, pattern, h)

	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}

	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

// decodeBody unmarshals a JSON response body into a value of type T.
func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), "body: %s", rr.Body.String())
	return v
}
