// store_test.go provides a shared test database helper for all store
// integration tests. Tests are skipped if PostgreSQL is not available.
package store

import (
	"context"
	"database/sql"
	"os"
	"testing"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"cmstaxonomy/internal/database"
	"cmstaxonomy/internal/models"
)

// testDSN returns the PostgreSQL connection string for testing.
// Uses environment variables with defaults matching docker-compose.yml.
func testDSN() string {
	host := envOr("POSTGRES_HOST", "localhost")
	port := envOr("POSTGRES_PORT", "5432")
	user := envOr("POSTGRES_USER", "taxonomy")
	pass := envOr("POSTGRES_PASSWORD", "changeme")
	name := envOr("POSTGRES_DB", "taxonomy")
	return "postgres://" + user + ":" + pass + "@" + host + ":" + port + "/" + name + "?sslmode=disable"
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// testDB opens a connection to the test database and runs migrations.
// If the database is unavailable, the test is skipped. A cleanup
// function is registered to close the connection when the test finishes.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	dsn := testDSN()
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Skipf("skipping integration test: cannot open DB: %v", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		t.Skipf("skipping integration test: DB not reachable: %v", err)
	}

	// Run migrations to ensure the schema is current.
	if err := database.Migrate(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	// Downgrade goose global state.
	goose.SetBaseFS(nil)

	t.Cleanup(func() { db.Close() })
	return db
}

// testRoot creates a uniquely named root category so each test works in
// its own sibling set. The whole subtree is removed on cleanup.
func testRoot(t *testing.T, db *sql.DB, s *CategoryStore) *models.Category {
	t.Helper()
	root, err := s.Create(context.Background(), NewCategory{Name: "Test Root " + uuid.NewString()[:8]})
	if err != nil {
		t.Fatalf("create test root: %v", err)
	}
	t.Cleanup(func() { cleanCategories(t, db, root.ID) })
	return root
}

// mustCategory creates a category under parent or fails the test.
func mustCategory(t *testing.T, s *CategoryStore, name string, parent *uuid.UUID) *models.Category {
	t.Helper()
	c, err := s.Create(context.Background(), NewCategory{Name: name, ParentID: parent})
	if err != nil {
		t.Fatalf("create category %q: %v", name, err)
	}
	return c
}

// mustTag creates a tag with a unique name and removes it on cleanup.
func mustTag(t *testing.T, db *sql.DB, s *TagStore, name string) *models.Tag {
	t.Helper()
	tag, err := s.Create(context.Background(), NewTag{Name: name + " " + uuid.NewString()[:8]})
	if err != nil {
		t.Fatalf("create tag %q: %v", name, err)
	}
	t.Cleanup(func() { cleanTags(t, db, tag.ID) })
	return tag
}

// newContentID returns a fresh content id that is purged on cleanup.
func newContentID(t *testing.T, db *sql.DB) uuid.UUID {
	t.Helper()
	id := uuid.New()
	t.Cleanup(func() { cleanContentRefs(t, db, id) })
	return id
}

// cleanCategories removes the given categories and every category below
// them in one statement. Call in t.Cleanup().
func cleanCategories(t *testing.T, db *sql.DB, ids ...uuid.UUID) {
	t.Helper()
	db.Exec(`
		WITH RECURSIVE sub AS (
			SELECT id FROM categories WHERE id = ANY($1::text[]::uuid[])
			UNION
			SELECT c.id FROM categories c JOIN sub ON c.parent_id = sub.id
		)
		DELETE FROM categories WHERE id IN (SELECT id FROM sub)`, idStrings(ids))
	db.Exec("DELETE FROM meta WHERE owner_type = 'category' AND owner_id = ANY($1::text[]::uuid[])", idStrings(ids))
}

// cleanTags removes test tags by id. Call in t.Cleanup().
func cleanTags(t *testing.T, db *sql.DB, ids ...uuid.UUID) {
	t.Helper()
	db.Exec("DELETE FROM tags WHERE id = ANY($1::text[]::uuid[])", idStrings(ids))
	db.Exec("DELETE FROM meta WHERE owner_type = 'tag' AND owner_id = ANY($1::text[]::uuid[])", idStrings(ids))
}

// cleanContentRefs removes test content references by id. Call in t.Cleanup().
func cleanContentRefs(t *testing.T, db *sql.DB, ids ...uuid.UUID) {
	t.Helper()
	db.Exec("DELETE FROM content_refs WHERE id = ANY($1::text[]::uuid[])", idStrings(ids))
	db.Exec("DELETE FROM meta WHERE owner_type = 'content' AND owner_id = ANY($1::text[]::uuid[])", idStrings(ids))
}
