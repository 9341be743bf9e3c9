// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"cmstaxonomy/internal/models"
)

// childOrders returns the active children of parent as name → sort_order.
func childOrders(t *testing.T, db *sql.DB, parent uuid.UUID) map[string]int {
	t.Helper()
	rows, err := db.Query(`SELECT name, sort_order FROM categories
		WHERE parent_id = $1 AND deleted_at IS NULL`, parent)
	if err != nil {
		t.Fatalf("query children: %v", err)
	}
	defer rows.Close()
	out := map[string]int{}
	for rows.Next() {
		var name string
		var order int
		if err := rows.Scan(&name, &order); err != nil {
			t.Fatalf("scan child: %v", err)
		}
		out[name] = order
	}
	return out
}

func TestCategoryStoreCreateAndFind(t *testing.T) {
	db := testDB(t)
	s := NewCategoryStore(db)
	ctx := context.Background()
	root := testRoot(t, db, s)

	first := mustCategory(t, s, "First", &root.ID)
	second := mustCategory(t, s, "Second", &root.ID)

	if first.SortOrder != 1 || second.SortOrder != 2 {
		t.Errorf("orders: got %d, %d, want 1, 2", first.SortOrder, second.SortOrder)
	}
	if first.ParentID == nil || *first.ParentID != root.ID {
		t.Errorf("parent: got %v, want %s", first.ParentID, root.ID)
	}

	found, err := s.FindByID(ctx, first.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if found.Name != "First" {
		t.Errorf("name: got %q, want %q", found.Name, "First")
	}

	bySlug, err := s.FindBySlug(ctx, second.Slug)
	if err != nil {
		t.Fatalf("FindBySlug: %v", err)
	}
	if bySlug.ID != second.ID {
		t.Errorf("FindBySlug returned %s, want %s", bySlug.ID, second.ID)
	}

	_, err = s.FindByID(ctx, uuid.New())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("FindByID unknown: got %v, want ErrNotFound", err)
	}
}

func TestCategoryStoreCreateUnknownParent(t *testing.T) {
	db := testDB(t)
	s := NewCategoryStore(db)

	missing := uuid.New()
	_, err := s.Create(context.Background(), NewCategory{Name: "Orphan", ParentID: &missing})
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("got %v, want NotFoundError", err)
	}
	if nf.ID != missing {
		t.Errorf("NotFoundError.ID: got %s, want %s", nf.ID, missing)
	}
}

func TestCategoryStoreSlugCollision(t *testing.T) {
	db := testDB(t)
	s := NewCategoryStore(db)
	ctx := context.Background()
	root := testRoot(t, db, s)

	name := "Tech " + uuid.NewString()[:8]
	a := mustCategory(t, s, name, &root.ID)
	b := mustCategory(t, s, name, &root.ID)

	if b.Slug != a.Slug+"-1" {
		t.Errorf("second slug: got %q, want %q", b.Slug, a.Slug+"-1")
	}

	_, err := s.Create(ctx, NewCategory{Name: "Other", Slug: a.Slug, ParentID: &root.ID})
	var ce *ConflictError
	if !errors.As(err, &ce) || ce.Field != "slug" {
		t.Errorf("explicit duplicate slug: got %v, want slug ConflictError", err)
	}

	_, err = s.Create(ctx, NewCategory{Name: "Other", Slug: "!!!", ParentID: &root.ID})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("unusable explicit slug: got %v, want ErrValidation", err)
	}
}

func TestCategoryStoreRename(t *testing.T) {
	db := testDB(t)
	s := NewCategoryStore(db)
	ctx := context.Background()
	root := testRoot(t, db, s)

	c := mustCategory(t, s, "Before "+uuid.NewString()[:8], &root.ID)

	newName := "After " + uuid.NewString()[:8]
	renamed, err := s.Rename(ctx, c.ID, newName, "")
	if err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if renamed.Name != newName {
		t.Errorf("name: got %q, want %q", renamed.Name, newName)
	}
	if renamed.Slug == c.Slug {
		t.Error("expected slug to be regenerated from the new name")
	}

	explicit := "kept-" + uuid.NewString()[:8]
	renamed, err = s.Rename(ctx, c.ID, "Yet Another Name", explicit)
	if err != nil {
		t.Fatalf("Rename with slug: %v", err)
	}
	if renamed.Slug != explicit {
		t.Errorf("slug: got %q, want explicit %q", renamed.Slug, explicit)
	}

	desc := "described"
	updated, err := s.Update(ctx, c.ID, CategoryUpdate{Description: &desc})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Slug != explicit || updated.Description != desc {
		t.Errorf("Update changed slug to %q / description %q", updated.Slug, updated.Description)
	}
}

func TestCategoryStoreReparentRejectsCycle(t *testing.T) {
	db := testDB(t)
	s := NewCategoryStore(db)
	ctx := context.Background()
	root := testRoot(t, db, s)

	a := mustCategory(t, s, "A", &root.ID)
	b := mustCategory(t, s, "B", &a.ID)
	c := mustCategory(t, s, "C", &b.ID)

	_, err := s.Reparent(ctx, a.ID, &c.ID, nil)
	if !errors.Is(err, ErrCycle) {
		t.Fatalf("reparent under descendant: got %v, want ErrCycle", err)
	}
	_, err = s.Reparent(ctx, a.ID, &a.ID, nil)
	if !errors.Is(err, ErrCycle) {
		t.Fatalf("reparent under self: got %v, want ErrCycle", err)
	}

	got, err := s.FindByID(ctx, a.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if got.ParentID == nil || *got.ParentID != root.ID {
		t.Error("failed reparent must leave the parent unchanged")
	}
}

func TestCategoryStoreReparentClosesGap(t *testing.T) {
	db := testDB(t)
	s := NewCategoryStore(db)
	ctx := context.Background()
	root := testRoot(t, db, s)

	mustCategory(t, s, "X", &root.ID)
	y := mustCategory(t, s, "Y", &root.ID)
	mustCategory(t, s, "Z", &root.ID)
	t.Cleanup(func() { cleanCategories(t, db, y.ID) })

	moved, err := s.Reparent(ctx, y.ID, nil, nil)
	if err != nil {
		t.Fatalf("Reparent: %v", err)
	}
	if moved.ParentID != nil {
		t.Errorf("expected Y to become a root, parent is %v", moved.ParentID)
	}

	want := map[string]int{"X": 1, "Z": 2}
	if diff := cmp.Diff(want, childOrders(t, db, root.ID)); diff != "" {
		t.Errorf("sibling orders mismatch (-want +got):\n%s", diff)
	}
}

func TestCategoryStoreReparentAtPosition(t *testing.T) {
	db := testDB(t)
	s := NewCategoryStore(db)
	ctx := context.Background()
	root := testRoot(t, db, s)

	src := mustCategory(t, s, "Source", &root.ID)
	dst := mustCategory(t, s, "Destination", &root.ID)
	mover := mustCategory(t, s, "Mover", &src.ID)
	mustCategory(t, s, "D1", &dst.ID)
	mustCategory(t, s, "D2", &dst.ID)

	pos := 2
	if _, err := s.Reparent(ctx, mover.ID, &dst.ID, &pos); err != nil {
		t.Fatalf("Reparent: %v", err)
	}

	want := map[string]int{"D1": 1, "Mover": 2, "D2": 3}
	if diff := cmp.Diff(want, childOrders(t, db, dst.ID)); diff != "" {
		t.Errorf("destination orders mismatch (-want +got):\n%s", diff)
	}

	// Moving within the same parent renumbers in place.
	first := 1
	if _, err := s.Reparent(ctx, mover.ID, &dst.ID, &first); err != nil {
		t.Fatalf("Reparent within parent: %v", err)
	}
	want = map[string]int{"Mover": 1, "D1": 2, "D2": 3}
	if diff := cmp.Diff(want, childOrders(t, db, dst.ID)); diff != "" {
		t.Errorf("orders after in-place move mismatch (-want +got):\n%s", diff)
	}
}

func TestCategoryStoreReorder(t *testing.T) {
	db := testDB(t)
	s := NewCategoryStore(db)
	ctx := context.Background()
	root := testRoot(t, db, s)

	a := mustCategory(t, s, "A", &root.ID)
	b := mustCategory(t, s, "B", &root.ID)
	c := mustCategory(t, s, "C", &root.ID)

	changed, err := s.Reorder(ctx, []ReorderItem{
		{ID: a.ID, Order: 3},
		{ID: c.ID, Order: 1},
	})
	if err != nil {
		t.Fatalf("Reorder: %v", err)
	}
	if len(changed) != 2 {
		t.Errorf("changed: got %d ids, want 2", len(changed))
	}
	want := map[string]int{"C": 1, "B": 2, "A": 3}
	if diff := cmp.Diff(want, childOrders(t, db, root.ID)); diff != "" {
		t.Errorf("orders mismatch (-want +got):\n%s", diff)
	}

	// B keeps order 2, so moving A onto 2 must fail and change nothing.
	_, err = s.Reorder(ctx, []ReorderItem{
		{ID: a.ID, Order: 2},
		{ID: c.ID, Order: 3},
	})
	var ce *ConflictError
	if !errors.As(err, &ce) || ce.Field != "order" {
		t.Fatalf("duplicate order: got %v, want order ConflictError", err)
	}
	if diff := cmp.Diff(want, childOrders(t, db, root.ID)); diff != "" {
		t.Errorf("rejected batch changed orders (-want +got):\n%s", diff)
	}

	_, err = s.Reorder(ctx, []ReorderItem{{ID: uuid.New(), Order: 1}})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown id: got %v, want ErrNotFound", err)
	}
	_ = b
}

func TestCategoryStoreSoftDeleteCascades(t *testing.T) {
	db := testDB(t)
	s := NewCategoryStore(db)
	rel := NewRelationshipCoordinator(db)
	ctx := context.Background()
	root := testRoot(t, db, s)

	mustCategory(t, s, "Sibling", &root.ID)
	c := mustCategory(t, s, "C", &root.ID)
	c1 := mustCategory(t, s, "C1", &c.ID)
	c2 := mustCategory(t, s, "C2", &c.ID)

	var content []uuid.UUID
	for range 5 {
		id := newContentID(t, db)
		if _, err := rel.SetContentCategories(ctx, id, []uuid.UUID{c.ID}); err != nil {
			t.Fatalf("SetContentCategories: %v", err)
		}
		content = append(content, id)
	}
	sortIDs(content)

	res, err := s.Delete(ctx, c.ID, false)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if diff := cmp.Diff(uniqueIDs([]uuid.UUID{c1.ID, c2.ID}), res.ReparentedIDs); diff != "" {
		t.Errorf("reparented mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(content, res.DetachedContentIDs); diff != "" {
		t.Errorf("detached mismatch (-want +got):\n%s", diff)
	}

	want := map[string]int{"Sibling": 1, "C1": 2, "C2": 3}
	if diff := cmp.Diff(want, childOrders(t, db, root.ID)); diff != "" {
		t.Errorf("orders after cascade mismatch (-want +got):\n%s", diff)
	}

	for _, id := range content {
		tax, err := rel.ContentTaxonomy(ctx, id)
		if err != nil {
			t.Fatalf("ContentTaxonomy: %v", err)
		}
		if len(tax.CategoryIDs) != 0 {
			t.Errorf("content %s still attached to %v", id, tax.CategoryIDs)
		}
	}

	_, err = s.Delete(ctx, c.ID, false)
	if !errors.Is(err, ErrState) {
		t.Errorf("second soft delete: got %v, want ErrState", err)
	}

	restored, err := s.Restore(ctx, c.ID)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if restored.IsDeleted() || restored.ParentID == nil || *restored.ParentID != root.ID {
		t.Errorf("restored: deleted=%v parent=%v", restored.IsDeleted(), restored.ParentID)
	}
	if restored.SortOrder != 4 {
		t.Errorf("restored order: got %d, want 4", restored.SortOrder)
	}

	_, err = s.Restore(ctx, c.ID)
	if !errors.Is(err, ErrState) {
		t.Errorf("restore of active: got %v, want ErrState", err)
	}
}

func TestCategoryStoreRestoreWithoutParent(t *testing.T) {
	db := testDB(t)
	s := NewCategoryStore(db)
	ctx := context.Background()
	root := testRoot(t, db, s)

	parent := mustCategory(t, s, "Parent", &root.ID)
	child := mustCategory(t, s, "Child "+uuid.NewString()[:8], &parent.ID)
	t.Cleanup(func() { cleanCategories(t, db, child.ID) })

	if _, err := s.Delete(ctx, child.ID, false); err != nil {
		t.Fatalf("Delete child: %v", err)
	}
	if _, err := s.Delete(ctx, parent.ID, false); err != nil {
		t.Fatalf("Delete parent: %v", err)
	}

	// A new category takes over the child's slug while it is deleted.
	usurper := mustCategory(t, s, child.Name, &root.ID)
	if usurper.Slug != child.Slug {
		t.Fatalf("usurper slug: got %q, want %q", usurper.Slug, child.Slug)
	}

	restored, err := s.Restore(ctx, child.ID)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if restored.ParentID != nil {
		t.Errorf("expected root placement, parent is %v", restored.ParentID)
	}
	if restored.Slug == child.Slug {
		t.Errorf("expected a fresh slug, still %q", restored.Slug)
	}
}

func TestCategoryStoreHardDelete(t *testing.T) {
	db := testDB(t)
	s := NewCategoryStore(db)
	meta := NewMetaStore(db)
	ctx := context.Background()
	root := testRoot(t, db, s)

	c := mustCategory(t, s, "Doomed", &root.ID)
	if _, err := meta.Upsert(ctx, categoryMeta(c.ID)); err != nil {
		t.Fatalf("Upsert meta: %v", err)
	}

	_, err := s.Delete(ctx, c.ID, true)
	if !errors.Is(err, ErrState) {
		t.Fatalf("hard delete of active: got %v, want ErrState", err)
	}

	if _, err := s.Delete(ctx, c.ID, false); err != nil {
		t.Fatalf("soft Delete: %v", err)
	}
	if _, err := s.Delete(ctx, c.ID, true); err != nil {
		t.Fatalf("hard Delete: %v", err)
	}

	if _, err := s.FindByID(ctx, c.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("FindByID after purge: got %v, want ErrNotFound", err)
	}
	if _, err := meta.Get(ctx, "category", c.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("meta after purge: got %v, want ErrNotFound", err)
	}

	_, err = s.Delete(ctx, c.ID, true)
	if !errors.Is(err, ErrState) {
		t.Errorf("double hard delete: got %v, want ErrState", err)
	}
	_, err = s.Delete(ctx, uuid.New(), true)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("hard delete of unknown: got %v, want ErrNotFound", err)
	}
}

func TestCategoryStoreAncestorsDescendantsPath(t *testing.T) {
	db := testDB(t)
	s := NewCategoryStore(db)
	ctx := context.Background()
	root := testRoot(t, db, s)

	news := mustCategory(t, s, "News", &root.ID)
	world := mustCategory(t, s, "World", &news.ID)
	europe := mustCategory(t, s, "Europe", &world.ID)
	sport := mustCategory(t, s, "Sport", &news.ID)

	ancestors, err := s.Ancestors(ctx, europe.ID)
	if err != nil {
		t.Fatalf("Ancestors: %v", err)
	}
	var names []string
	for _, a := range ancestors {
		names = append(names, a.Name)
	}
	if diff := cmp.Diff([]string{root.Name, "News", "World"}, names); diff != "" {
		t.Errorf("ancestors mismatch (-want +got):\n%s", diff)
	}

	desc, err := s.Descendants(ctx, news.ID)
	if err != nil {
		t.Fatalf("Descendants: %v", err)
	}
	names = nil
	for _, d := range desc {
		names = append(names, d.Name)
	}
	if diff := cmp.Diff([]string{"World", "Sport", "Europe"}, names); diff != "" {
		t.Errorf("descendants mismatch (-want +got):\n%s", diff)
	}

	path, err := s.Path(ctx, europe.ID)
	if err != nil {
		t.Fatalf("Path: %v", err)
	}
	want := root.Slug + "/" + news.Slug + "/" + world.Slug + "/" + europe.Slug
	if path != want {
		t.Errorf("path: got %q, want %q", path, want)
	}
	_ = sport
}

func TestCategoryStoreTreeAndVerify(t *testing.T) {
	db := testDB(t)
	s := NewCategoryStore(db)
	ctx := context.Background()
	root := testRoot(t, db, s)

	parent := mustCategory(t, s, "Parent", &root.ID)
	mustCategory(t, s, "Leaf", &parent.ID)

	flat, err := s.FlatTree(ctx)
	if err != nil {
		t.Fatalf("FlatTree: %v", err)
	}
	depth := map[uuid.UUID]int{}
	for _, c := range flat {
		depth[c.ID] = c.Depth
	}
	if depth[parent.ID] != depth[root.ID]+1 {
		t.Errorf("parent depth %d, root depth %d", depth[parent.ID], depth[root.ID])
	}

	violations, err := s.Verify(ctx)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	for _, v := range violations {
		if v.ID == root.ID || v.ID == parent.ID {
			t.Errorf("unexpected violation: %+v", v)
		}
	}
}

func TestCategoryStoreHasContent(t *testing.T) {
	db := testDB(t)
	s := NewCategoryStore(db)
	rel := NewRelationshipCoordinator(db)
	ctx := context.Background()
	root := testRoot(t, db, s)

	c := mustCategory(t, s, "Holder", &root.ID)
	has, err := s.HasContent(ctx, c.ID)
	if err != nil {
		t.Fatalf("HasContent: %v", err)
	}
	if has {
		t.Error("expected no content on a fresh category")
	}

	item := newContentID(t, db)
	if _, err := rel.SetContentCategories(ctx, item, []uuid.UUID{c.ID}); err != nil {
		t.Fatalf("SetContentCategories: %v", err)
	}
	if has, _ = s.HasContent(ctx, c.ID); !has {
		t.Error("expected content after attaching")
	}

	if _, err := rel.OnContentDeleted(ctx, item); err != nil {
		t.Fatalf("OnContentDeleted: %v", err)
	}
	if has, _ = s.HasContent(ctx, c.ID); has {
		t.Error("deleted content must not count")
	}
}

// siblingOrders returns the sort orders of parent's active children, ascending.
func siblingOrders(t *testing.T, db *sql.DB, parent uuid.UUID) []int {
	t.Helper()
	rows, err := db.Query(`SELECT sort_order FROM categories
		WHERE parent_id = $1 AND deleted_at IS NULL ORDER BY sort_order`, parent)
	if err != nil {
		t.Fatalf("query sibling orders: %v", err)
	}
	defer rows.Close()
	var orders []int
	for rows.Next() {
		var o int
		if err := rows.Scan(&o); err != nil {
			t.Fatalf("scan order: %v", err)
		}
		orders = append(orders, o)
	}
	return orders
}

// sequence returns 1..n.
func sequence(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i + 1
	}
	return out
}

// verifyClean fails the test if Verify reports a violation on any of ids.
func verifyClean(t *testing.T, s *CategoryStore, ids ...uuid.UUID) {
	t.Helper()
	violations, err := s.Verify(context.Background())
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	for _, v := range violations {
		if slices.Contains(ids, v.ID) {
			t.Errorf("tree violation: %+v", v)
		}
	}
}

func TestCategoryStoreConcurrentCreateSameName(t *testing.T) {
	db := testDB(t)
	s := NewCategoryStore(db)
	ctx := context.Background()
	root := testRoot(t, db, s)
	name := "Race " + uuid.NewString()[:8]

	const workers = 6
	var wg sync.WaitGroup
	created := make(chan *models.Category, workers)
	errs := make(chan error, workers)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := s.Create(ctx, NewCategory{Name: name, ParentID: &root.ID})
			if err != nil {
				errs <- err
				return
			}
			created <- c
		}()
	}
	wg.Wait()
	close(created)
	close(errs)
	for err := range errs {
		t.Errorf("concurrent Create: %v", err)
	}

	var slugs []string
	ids := []uuid.UUID{root.ID}
	for c := range created {
		slugs = append(slugs, c.Slug)
		ids = append(ids, c.ID)
	}
	if len(slugs) != workers {
		t.Fatalf("created %d categories, want %d", len(slugs), workers)
	}

	slices.Sort(slugs)
	base := slugs[0]
	want := []string{base}
	for i := 1; i < workers; i++ {
		want = append(want, fmt.Sprintf("%s-%d", base, i))
	}
	slices.Sort(want)
	if diff := cmp.Diff(want, slugs); diff != "" {
		t.Errorf("slugs mismatch (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff(sequence(workers), siblingOrders(t, db, root.ID)); diff != "" {
		t.Errorf("sibling orders mismatch (-want +got):\n%s", diff)
	}
	verifyClean(t, s, ids...)
}

func TestCategoryStoreConcurrentMoveAndReorder(t *testing.T) {
	db := testDB(t)
	s := NewCategoryStore(db)
	ctx := context.Background()
	root := testRoot(t, db, s)

	target := mustCategory(t, s, "Target", &root.ID)
	source := mustCategory(t, s, "Source", &root.ID)
	a := mustCategory(t, s, "A", &target.ID)
	b := mustCategory(t, s, "B", &target.ID)

	const movers = 5
	moving := make([]uuid.UUID, movers)
	for i := range moving {
		moving[i] = mustCategory(t, s, fmt.Sprintf("M%d", i), &source.ID).ID
	}
	stay := mustCategory(t, s, "Stay", &source.ID)

	var wg sync.WaitGroup
	errs := make(chan error, movers+4)
	for _, id := range moving {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Reparent(ctx, id, &target.ID, nil); err != nil {
				errs <- fmt.Errorf("reparent %s: %w", id, err)
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		// Swapping A and B never collides with children appended after them.
		for i := range 4 {
			items := []ReorderItem{{ID: a.ID, Order: 2}, {ID: b.ID, Order: 1}}
			if i%2 == 1 {
				items = []ReorderItem{{ID: a.ID, Order: 1}, {ID: b.ID, Order: 2}}
			}
			if _, err := s.Reorder(ctx, items); err != nil {
				errs <- fmt.Errorf("reorder: %w", err)
			}
		}
	}()
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent tree edit: %v", err)
	}

	if diff := cmp.Diff(sequence(movers+2), siblingOrders(t, db, target.ID)); diff != "" {
		t.Errorf("target orders mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{1}, siblingOrders(t, db, source.ID)); diff != "" {
		t.Errorf("source orders mismatch (-want +got):\n%s", diff)
	}

	orders := childOrders(t, db, target.ID)
	if orders["A"] != 1 || orders["B"] != 2 {
		t.Errorf("A, B orders after even number of swaps: got %d, %d, want 1, 2", orders["A"], orders["B"])
	}
	for _, id := range moving {
		c, err := s.FindByID(ctx, id)
		if err != nil {
			t.Fatalf("FindByID: %v", err)
		}
		if c.ParentID == nil || *c.ParentID != target.ID {
			t.Errorf("%s: parent %v, want %s", c.Name, c.ParentID, target.ID)
		}
	}

	verifyClean(t, s, append(moving, root.ID, target.ID, source.ID, a.ID, b.ID, stay.ID)...)
}
