// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// tree.go holds the pure planning logic behind category tree mutations.
// Store methods load the affected rows inside a transaction, ask these
// functions what must change, and write the resulting plan back.
package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/google/uuid"
)

// errTreeCorrupt is returned when a parent walk revisits a node. Writes
// never produce such a state; seeing one means the data was edited outside
// the store.
var errTreeCorrupt = errors.New("category tree contains a cycle")

// rootKey is the sibling key shared by all root categories. It mirrors the
// COALESCE in the sibling_key generated column.
var rootKey = uuid.Nil

// siblingKey returns the key identifying the sibling set under parentID.
func siblingKey(parentID *uuid.UUID) uuid.UUID {
	if parentID == nil {
		return rootKey
	}
	return *parentID
}

// sibling is one active member of a sibling order sequence.
type sibling struct {
	ID    uuid.UUID
	Order int
}

// orderPlan maps category ids to their new sort_order.
type orderPlan map[uuid.UUID]int

// sortSiblings orders siblings by sort_order, breaking ties by id so the
// result is deterministic.
func sortSiblings(s []sibling) {
	sort.Slice(s, func(i, j int) bool {
		if s[i].Order != s[j].Order {
			return s[i].Order < s[j].Order
		}
		return bytes.Compare(s[i].ID[:], s[j].ID[:]) < 0
	})
}

// maxOrder returns the highest order in siblings, or 0 when empty.
func maxOrder(siblings []sibling) int {
	highest := 0
	for _, s := range siblings {
		if s.Order > highest {
			highest = s.Order
		}
	}
	return highest
}

// planRemove closes the gap left by id in its sibling sequence: every
// sibling ordered after it moves up by one. id itself is not in the plan.
func planRemove(siblings []sibling, id uuid.UUID) orderPlan {
	plan := orderPlan{}
	removed := -1
	for _, s := range siblings {
		if s.ID == id {
			removed = s.Order
			break
		}
	}
	if removed < 0 {
		return plan
	}
	for _, s := range siblings {
		if s.ID != id && s.Order > removed {
			plan[s.ID] = s.Order - 1
		}
	}
	return plan
}

// planInsert places id into a sibling sequence that does not contain it.
// Without a position id is appended after the current maximum and nobody
// else moves. With a 1-based position (clamped to the sequence bounds) the
// whole sequence is renumbered 1..n+1 around it; only changed rows are
// included besides id.
func planInsert(siblings []sibling, id uuid.UUID, position *int) orderPlan {
	plan := orderPlan{}
	if position == nil {
		plan[id] = maxOrder(siblings) + 1
		return plan
	}

	ordered := make([]sibling, 0, len(siblings))
	for _, s := range siblings {
		if s.ID != id {
			ordered = append(ordered, s)
		}
	}
	sortSiblings(ordered)

	idx := *position - 1
	if idx < 0 {
		idx = 0
	}
	if idx > len(ordered) {
		idx = len(ordered)
	}

	seq := make([]uuid.UUID, 0, len(ordered)+1)
	for _, s := range ordered[:idx] {
		seq = append(seq, s.ID)
	}
	seq = append(seq, id)
	for _, s := range ordered[idx:] {
		seq = append(seq, s.ID)
	}

	current := make(map[uuid.UUID]int, len(ordered))
	for _, s := range ordered {
		current[s.ID] = s.Order
	}
	for i, sid := range seq {
		want := i + 1
		if sid == id || current[sid] != want {
			plan[sid] = want
		}
	}
	return plan
}

// planCascade computes the order changes for soft-deleting id: id leaves
// its sibling sequence (closing the gap) and its active children are
// appended after the remaining siblings, keeping their relative order.
func planCascade(siblings []sibling, id uuid.UUID, children []sibling) orderPlan {
	plan := planRemove(siblings, id)

	highest := 0
	for _, s := range siblings {
		if s.ID == id {
			continue
		}
		o := s.Order
		if n, ok := plan[s.ID]; ok {
			o = n
		}
		if o > highest {
			highest = o
		}
	}

	ordered := append([]sibling(nil), children...)
	sortSiblings(ordered)
	for i, c := range ordered {
		plan[c.ID] = highest + i + 1
	}
	return plan
}

// ReorderItem assigns a new sort order to one category.
type ReorderItem struct {
	ID    uuid.UUID `json:"id"`
	Order int       `json:"order"`
}

// planReorder applies items on top of the current sibling sets and rejects
// the batch if any set would end with two members sharing an order. sets
// is keyed by sibling key; keyOf maps each item id to its set.
func planReorder(sets map[uuid.UUID][]sibling, keyOf map[uuid.UUID]uuid.UUID, items []ReorderItem) (orderPlan, error) {
	plan := orderPlan{}
	touched := map[uuid.UUID]bool{}
	for _, it := range items {
		plan[it.ID] = it.Order
		touched[keyOf[it.ID]] = true
	}

	keys := make([]uuid.UUID, 0, len(touched))
	for k := range touched {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return bytes.Compare(keys[i][:], keys[j][:]) < 0 })

	for _, k := range keys {
		seen := map[int]uuid.UUID{}
		for _, s := range sets[k] {
			o := s.Order
			if n, ok := plan[s.ID]; ok {
				o = n
			}
			if other, dup := seen[o]; dup && other != s.ID {
				return nil, &ConflictError{Field: "order", Value: strconv.Itoa(o)}
			}
			seen[o] = s.ID
		}
	}

	for _, k := range keys {
		for _, s := range sets[k] {
			if n, ok := plan[s.ID]; ok && n == s.Order {
				delete(plan, s.ID)
			}
		}
	}
	return plan, nil
}

// parentFunc returns the parent of id, or nil for a root.
type parentFunc func(ctx context.Context, id uuid.UUID) (*uuid.UUID, error)

// walkAncestors follows parent pointers from start and returns the chain
// nearest-first, excluding start. The visited set guards against corrupt
// data independently of the write-time acyclic guarantee.
func walkAncestors(ctx context.Context, start uuid.UUID, parentOf parentFunc) ([]uuid.UUID, error) {
	visited := map[uuid.UUID]bool{start: true}
	var chain []uuid.UUID

	current := start
	for {
		parent, err := parentOf(ctx, current)
		if err != nil {
			return nil, err
		}
		if parent == nil {
			return chain, nil
		}
		if visited[*parent] {
			return nil, fmt.Errorf("%w: revisited %s", errTreeCorrupt, *parent)
		}
		visited[*parent] = true
		chain = append(chain, *parent)
		current = *parent
	}
}

// wouldCycle reports whether placing id under newParent makes id its own
// ancestor: newParent is id, or id is on newParent's ancestor chain.
func wouldCycle(ctx context.Context, id, newParent uuid.UUID, parentOf parentFunc) (bool, error) {
	if id == newParent {
		return true, nil
	}
	chain, err := walkAncestors(ctx, newParent, parentOf)
	if err != nil {
		return false, err
	}
	for _, a := range chain {
		if a == id {
			return true, nil
		}
	}
	return false, nil
}

// collectDescendants gathers every node below root breadth-first. Nodes
// already seen are skipped rather than trusted to be acyclic.
func collectDescendants(root uuid.UUID, children map[uuid.UUID][]uuid.UUID) []uuid.UUID {
	visited := map[uuid.UUID]bool{root: true}
	var out []uuid.UUID
	queue := []uuid.UUID{root}
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		for _, c := range children[next] {
			if visited[c] {
				continue
			}
			visited[c] = true
			out = append(out, c)
			queue = append(queue, c)
		}
	}
	return out
}

// diffIDs compares the current and desired id sets and returns the ids to
// add and to remove, each sorted. Duplicates in either input are ignored.
func diffIDs(current, desired []uuid.UUID) (added, removed []uuid.UUID) {
	have := make(map[uuid.UUID]bool, len(current))
	for _, id := range current {
		have[id] = true
	}
	want := make(map[uuid.UUID]bool, len(desired))
	for _, id := range desired {
		want[id] = true
	}
	for id := range want {
		if !have[id] {
			added = append(added, id)
		}
	}
	for id := range have {
		if !want[id] {
			removed = append(removed, id)
		}
	}
	sortIDs(added)
	sortIDs(removed)
	return added, removed
}

// sortIDs sorts ids by their byte representation. Lock acquisition uses
// this order everywhere so concurrent transactions cannot deadlock.
func sortIDs(ids []uuid.UUID) {
	sort.Slice(ids, func(i, j int) bool { return bytes.Compare(ids[i][:], ids[j][:]) < 0 })
}

// uniqueIDs returns ids without duplicates, sorted.
func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sortIDs(out)
	return out
}

// treeNode is the minimal view of a category used by integrity checks.
type treeNode struct {
	ID       uuid.UUID
	ParentID *uuid.UUID
	Order    *int
	Deleted  bool
}

// Violation describes one broken tree invariant found by Verify.
type Violation struct {
	Kind   string    `json:"kind"`
	ID     uuid.UUID `json:"id"`
	Detail string    `json:"detail"`
}

// Violation kinds reported by verifyTree.
const (
	ViolationCycle         = "cycle"
	ViolationParent        = "parent"
	ViolationOrder         = "order"
	ViolationDuplicateSort = "duplicate_order"
)

// verifyTree checks acyclicity, parent validity and sibling order
// uniqueness over a snapshot of the categories table.
func verifyTree(nodes []treeNode) []Violation {
	byID := make(map[uuid.UUID]treeNode, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}

	var out []Violation
	seenOrder := map[uuid.UUID]map[int]uuid.UUID{}

	for _, n := range nodes {
		// A walk longer than the node count must have looped.
		steps := 0
		visited := map[uuid.UUID]bool{n.ID: true}
		for p := n.ParentID; p != nil; {
			if visited[*p] || steps > len(nodes) {
				out = append(out, Violation{Kind: ViolationCycle, ID: n.ID, Detail: fmt.Sprintf("revisits %s", *p)})
				break
			}
			visited[*p] = true
			steps++
			parent, ok := byID[*p]
			if !ok {
				break
			}
			p = parent.ParentID
		}

		if n.Deleted {
			continue
		}
		if n.ParentID != nil {
			parent, ok := byID[*n.ParentID]
			switch {
			case !ok:
				out = append(out, Violation{Kind: ViolationParent, ID: n.ID, Detail: fmt.Sprintf("parent %s missing", *n.ParentID)})
			case parent.Deleted:
				out = append(out, Violation{Kind: ViolationParent, ID: n.ID, Detail: fmt.Sprintf("parent %s deleted", *n.ParentID)})
			}
		}
		if n.Order == nil {
			out = append(out, Violation{Kind: ViolationOrder, ID: n.ID, Detail: "active category without order"})
			continue
		}
		key := siblingKey(n.ParentID)
		if seenOrder[key] == nil {
			seenOrder[key] = map[int]uuid.UUID{}
		}
		if other, dup := seenOrder[key][*n.Order]; dup {
			out = append(out, Violation{Kind: ViolationDuplicateSort, ID: n.ID, Detail: fmt.Sprintf("order %d shared with %s", *n.Order, other)})
			continue
		}
		seenOrder[key][*n.Order] = n.ID
	}
	return out
}
