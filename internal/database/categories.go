package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// CreateCategory inserts a category, or returns the existing one with the
// same (case-insensitive) name.
func (d *Database) CreateCategory(ctx context.Context, name string) (*Category, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("create_category", start, err) }()

	name = strings.TrimSpace(name)
	if name == "" {
		err = fmt.Errorf("category name is required")
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if _, err = d.db.ExecContext(ctx, `INSERT INTO categories (name) VALUES (?) ON CONFLICT(name) DO NOTHING`, name); err != nil {
		return nil, err
	}

	var (
		c         Category
		createdAt int64
	)
	err = d.db.QueryRowContext(ctx, `SELECT id, name, created_at FROM categories WHERE name = ?`, name).
		Scan(&c.ID, &c.Name, &createdAt)
	if err != nil {
		return nil, err
	}
	c.CreatedAt = time.Unix(createdAt, 0)
	return &c, nil
}

// ListCategories returns all categories ordered by name.
func (d *Database) ListCategories(ctx context.Context) ([]Category, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, `SELECT id, name, created_at FROM categories ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	categories := []Category{}
	for rows.Next() {
		var (
			c         Category
			createdAt int64
		)
		if err := rows.Scan(&c.ID, &c.Name, &createdAt); err != nil {
			return nil, err
		}
		c.CreatedAt = time.Unix(createdAt, 0)
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// CategoryExists reports whether a category id is present.
func (d *Database) CategoryExists(ctx context.Context, id int64) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var n int
	err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM categories WHERE id = ?`, id).Scan(&n)
	if err != nil && err != sql.ErrNoRows {
		return false, err
	}
	return n > 0, nil
}
