// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"cmstaxonomy/internal/models"
)

// SnapshotVersion is bumped when the snapshot layout changes.
const SnapshotVersion = 1

// Snapshot is a point-in-time export of the taxonomy.
type Snapshot struct {
	Version     int               `json:"version"`
	GeneratedAt time.Time         `json:"generated_at"`
	Categories  []models.Category `json:"categories"`
	Tags        []models.Tag      `json:"tags"`
}

// CategoryLister returns every active category in depth-first order.
type CategoryLister interface {
	FlatTree(ctx context.Context) ([]models.Category, error)
}

// TagLister returns tags, optionally including soft-deleted ones.
type TagLister interface {
	List(ctx context.Context, includeDeleted bool) ([]models.Tag, error)
}

// Uploader writes one object.
type Uploader interface {
	Upload(ctx context.Context, key, contentType string, body io.Reader, size int64) error
}

// BuildSnapshot collects active categories and tags.
func BuildSnapshot(ctx context.Context, categories CategoryLister, tags TagLister, now time.Time) (*Snapshot, error) {
	cats, err := categories.FlatTree(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot categories: %w", err)
	}
	tagList, err := tags.List(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("snapshot tags: %w", err)
	}
	if cats == nil {
		cats = []models.Category{}
	}
	if tagList == nil {
		tagList = []models.Tag{}
	}
	return &Snapshot{
		Version:     SnapshotVersion,
		GeneratedAt: now.UTC(),
		Categories:  cats,
		Tags:        tagList,
	}, nil
}

// SnapshotName returns the object name for a snapshot taken at t.
func SnapshotName(t time.Time) string {
	return "taxonomy-" + t.UTC().Format("20060102T150405Z") + ".json"
}

// Encode writes s as indented JSON.
func (s *Snapshot) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

// Publish uploads s under key.
func Publish(ctx context.Context, up Uploader, key string, s *Snapshot) error {
	var buf bytes.Buffer
	if err := s.Encode(&buf); err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return up.Upload(ctx, key, "application/json", &buf, int64(buf.Len()))
}
