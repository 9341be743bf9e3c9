package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

// TestOwnerTypeValid verifies that only the three known owner kinds are
// accepted for Meta records.
func TestOwnerTypeValid(t *testing.T) {
	tests := []struct {
		name  string
		owner OwnerType
		want  bool
	}{
		{name: "category", owner: OwnerCategory, want: true},
		{name: "tag", owner: OwnerTag, want: true},
		{name: "content", owner: OwnerContent, want: true},
		{name: "empty", owner: OwnerType(""), want: false},
		{name: "uppercase", owner: OwnerType("TAG"), want: false},
		{name: "unknown", owner: OwnerType("media"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.owner.Valid(); got != tt.want {
				t.Errorf("OwnerType(%q).Valid() = %v, want %v", tt.owner, got, tt.want)
			}
		})
	}
}

func TestCategoryIsDeleted(t *testing.T) {
	now := time.Now()
	if (&Category{}).IsDeleted() {
		t.Error("category without deleted_at should be active")
	}
	if !(&Category{DeletedAt: &now}).IsDeleted() {
		t.Error("category with deleted_at should be deleted")
	}
}

func TestCategoryIsRoot(t *testing.T) {
	parent := uuid.New()
	if !(&Category{}).IsRoot() {
		t.Error("nil parent should be root")
	}
	if (&Category{ParentID: &parent}).IsRoot() {
		t.Error("category with parent should not be root")
	}
}

func TestTagIsDeleted(t *testing.T) {
	now := time.Now()
	if (&Tag{Count: 3}).IsDeleted() {
		t.Error("tag without deleted_at should be active")
	}
	if !(&Tag{DeletedAt: &now}).IsDeleted() {
		t.Error("tag with deleted_at should be deleted")
	}
}
