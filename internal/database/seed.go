package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// DefaultCategoryName is the root category created for an empty taxonomy.
const DefaultCategoryName = "Uncategorized"

// Seed populates the database with initial development data.
// It creates a default root category if the taxonomy is empty.
func Seed(ctx context.Context, db *sql.DB) error {
	res, err := db.ExecContext(ctx, `
		INSERT INTO categories (name, slug, sort_order)
		SELECT $1, $2, 1
		WHERE NOT EXISTS (SELECT 1 FROM categories)
	`, DefaultCategoryName, "uncategorized")
	if err != nil {
		return fmt.Errorf("seed insert category: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("seed rows affected: %w", err)
	}
	if n == 0 {
		slog.Info("database already seeded, skipping")
		return nil
	}

	slog.Info("database seeded with default category", "name", DefaultCategoryName)
	return nil
}
