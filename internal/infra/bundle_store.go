package infra

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/eliteGoblin/focusd/intentd/internal/domain"
)

// CreateBundle inserts a bundle with its apps and URL patterns.
// Name uniqueness is enforced by the schema.
func (s *Store) CreateBundle(ctx context.Context, b domain.Bundle) (domain.Bundle, error) {
	now := time.Now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Bundle{}, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO bundles (name, allow_all_apps, allow_all_urls, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		b.Name, boolInt(b.AllowAllApps), boolInt(b.AllowAllURLs), now.Unix(), now.Unix())
	if err != nil {
		return domain.Bundle{}, fmt.Errorf("insert bundle %q: %w", b.Name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Bundle{}, err
	}

	for _, app := range b.Apps {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO bundle_apps (bundle_id, identifier, display_name) VALUES (?, ?, ?)`,
			id, app.Identifier, app.DisplayName); err != nil {
			return domain.Bundle{}, fmt.Errorf("insert bundle app: %w", err)
		}
	}
	for _, pattern := range b.URLPatterns {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO bundle_urls (bundle_id, pattern) VALUES (?, ?)`,
			id, pattern); err != nil {
			return domain.Bundle{}, fmt.Errorf("insert bundle url: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.Bundle{}, err
	}

	b.ID = id
	b.CreatedAt = now
	b.UpdatedAt = now
	return b, nil
}

// GetBundleByName returns the bundle with the given name, or nil.
func (s *Store) GetBundleByName(ctx context.Context, name string) (*domain.Bundle, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, allow_all_apps, allow_all_urls, created_at, updated_at
		FROM bundles WHERE name = ?`, name)

	b, err := scanBundle(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if err := s.loadBundleMembers(ctx, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// GetBundleByID returns the bundle with the given ID, or nil.
func (s *Store) GetBundleByID(ctx context.Context, id int64) (*domain.Bundle, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, allow_all_apps, allow_all_urls, created_at, updated_at
		FROM bundles WHERE id = ?`, id)

	b, err := scanBundle(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if err := s.loadBundleMembers(ctx, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// ListBundles returns all bundles with members loaded, ordered by name.
func (s *Store) ListBundles(ctx context.Context) ([]domain.Bundle, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, allow_all_apps, allow_all_urls, created_at, updated_at
		FROM bundles ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bundles []domain.Bundle
	for rows.Next() {
		b, err := scanBundle(rows)
		if err != nil {
			return nil, err
		}
		bundles = append(bundles, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range bundles {
		if err := s.loadBundleMembers(ctx, &bundles[i]); err != nil {
			return nil, err
		}
	}
	return bundles, nil
}

// DeleteBundle removes a bundle; bundle_apps/bundle_urls cascade.
func (s *Store) DeleteBundle(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM bundles WHERE id = ?`, id)
	return err
}

func (s *Store) loadBundleMembers(ctx context.Context, b *domain.Bundle) error {
	appRows, err := s.db.QueryContext(ctx, `
		SELECT identifier, display_name FROM bundle_apps WHERE bundle_id = ?`, b.ID)
	if err != nil {
		return err
	}
	defer appRows.Close()
	for appRows.Next() {
		var app domain.BundleApp
		if err := appRows.Scan(&app.Identifier, &app.DisplayName); err != nil {
			return err
		}
		b.Apps = append(b.Apps, app)
	}
	if err := appRows.Err(); err != nil {
		return err
	}

	urlRows, err := s.db.QueryContext(ctx, `
		SELECT pattern FROM bundle_urls WHERE bundle_id = ?`, b.ID)
	if err != nil {
		return err
	}
	defer urlRows.Close()
	for urlRows.Next() {
		var pattern string
		if err := urlRows.Scan(&pattern); err != nil {
			return err
		}
		b.URLPatterns = append(b.URLPatterns, pattern)
	}
	return urlRows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBundle(row rowScanner) (domain.Bundle, error) {
	var b domain.Bundle
	var allowApps, allowURLs int
	var createdAt, updatedAt int64
	if err := row.Scan(&b.ID, &b.Name, &allowApps, &allowURLs, &createdAt, &updatedAt); err != nil {
		return b, err
	}
	b.AllowAllApps = allowApps != 0
	b.AllowAllURLs = allowURLs != 0
	b.CreatedAt = time.Unix(createdAt, 0)
	b.UpdatedAt = time.Unix(updatedAt, 0)
	return b, nil
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

// Ensure Store implements domain.BundleRepository.
var _ domain.BundleRepository = (*Store)(nil)
