package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gmarroquin/fabmarket/internal/models"
)

const productColumns = `
	id, seller_id, name, description, category, material, royalty_percent,
	volume_source, volume_cm3, rate_per_cm3, base_cost, platform_margin,
	creator_royalty, final_price, model_file_key, is_published, is_approved,
	created_at`

func (s *Store) CreateProduct(ctx context.Context, p *models.Product) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO products (
			id, seller_id, name, description, category, material, royalty_percent,
			volume_source, volume_cm3, rate_per_cm3, base_cost, platform_margin,
			creator_royalty, final_price, model_file_key, is_published, is_approved,
			created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		p.ID, p.SellerID, p.Name, p.Description, p.Category, p.Material, p.RoyaltyPercent,
		p.VolumeSource, p.Price.VolumeCM3, p.Price.RatePerCM3, p.Price.BaseCost,
		p.Price.PlatformMargin, p.Price.CreatorRoyalty, p.Price.FinalPrice,
		p.ModelFileKey, p.IsPublished, p.IsApproved, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT`+productColumns+` FROM products WHERE id = ?`, id)

	p, err := scanProduct(row)
	if err != nil {
		return nil, err
	}

	images, err := s.listProductImages(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	p.Images = images

	return p, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*models.Product, error) {
	var p models.Product
	err := row.Scan(
		&p.ID, &p.SellerID, &p.Name, &p.Description, &p.Category, &p.Material,
		&p.RoyaltyPercent, &p.VolumeSource, &p.Price.VolumeCM3, &p.Price.RatePerCM3,
		&p.Price.BaseCost, &p.Price.PlatformMargin, &p.Price.CreatorRoyalty,
		&p.Price.FinalPrice, &p.ModelFileKey, &p.IsPublished, &p.IsApproved,
		&p.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("product: %w", models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan product: %w", err)
	}
	p.Price.Material = p.Material
	return &p, nil
}

// CatalogFilter narrows the public catalog listing. Empty fields match
// everything.
type CatalogFilter struct {
	Category string
	Material string
	SellerID string
}

// ListCatalog returns published and approved products only.
func (s *Store) ListCatalog(ctx context.Context, f CatalogFilter) ([]models.Product, error) {
	return s.listProducts(ctx, `
		SELECT`+productColumns+`
		FROM products
		WHERE is_published = 1 AND is_approved = 1
		  AND (? = '' OR category = ?)
		  AND (? = '' OR material = ?)
		  AND (? = '' OR seller_id = ?)
		ORDER BY created_at DESC
	`, f.Category, f.Category, f.Material, f.Material, f.SellerID, f.SellerID)
}

func (s *Store) ListProductsBySeller(ctx context.Context, sellerID string) ([]models.Product, error) {
	return s.listProducts(ctx, `
		SELECT`+productColumns+`
		FROM products
		WHERE seller_id = ?
		ORDER BY created_at DESC
	`, sellerID)
}

// ListPendingApproval returns products awaiting moderation.
func (s *Store) ListPendingApproval(ctx context.Context) ([]models.Product, error) {
	return s.listProducts(ctx, `
		SELECT`+productColumns+`
		FROM products
		WHERE is_approved = 0
		ORDER BY created_at DESC
	`)
}

func (s *Store) listProducts(ctx context.Context, query string, args ...any) ([]models.Product, error) {
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	products := make([]models.Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}

	for i := range products {
		images, err := s.listProductImages(ctx, products[i].ID)
		if err != nil {
			return nil, err
		}
		products[i].Images = images
	}

	return products, nil
}

// RepriceProduct applies mutate to the product inside a single write
// transaction and persists the resulting material, royalty, volume and
// breakdown. Concurrent repricings of the same product serialize on the
// transaction, so a read-modify-write never interleaves.
func (s *Store) RepriceProduct(ctx context.Context, id string, mutate func(*models.Product) error) (*models.Product, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin reprice transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `SELECT`+productColumns+` FROM products WHERE id = ?`, id)
	p, err := scanProduct(row)
	if err != nil {
		return nil, err
	}

	if err := mutate(p); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE products
		SET material = ?, royalty_percent = ?, volume_source = ?, volume_cm3 = ?,
		    rate_per_cm3 = ?, base_cost = ?, platform_margin = ?,
		    creator_royalty = ?, final_price = ?
		WHERE id = ?
	`,
		p.Material, p.RoyaltyPercent, p.VolumeSource, p.Price.VolumeCM3,
		p.Price.RatePerCM3, p.Price.BaseCost, p.Price.PlatformMargin,
		p.Price.CreatorRoyalty, p.Price.FinalPrice, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update product pricing: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit reprice transaction: %w", err)
	}

	images, err := s.listProductImages(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	p.Images = images

	return p, nil
}

// TogglePublish flips the publish flag and returns the new value.
func (s *Store) TogglePublish(ctx context.Context, id string) (bool, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin publish transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var published bool
	err = tx.QueryRowContext(ctx, `SELECT is_published FROM products WHERE id = ?`, id).Scan(&published)
	if errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("product: %w", models.ErrNotFound)
	}
	if err != nil {
		return false, fmt.Errorf("query publish flag: %w", err)
	}

	published = !published
	if _, err := tx.ExecContext(ctx, `UPDATE products SET is_published = ? WHERE id = ?`, published, id); err != nil {
		return false, fmt.Errorf("update publish flag: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit publish transaction: %w", err)
	}
	return published, nil
}

func (s *Store) SetApproved(ctx context.Context, id string, approved bool) error {
	result, err := s.DB.ExecContext(ctx, `UPDATE products SET is_approved = ? WHERE id = ?`, approved, id)
	if err != nil {
		return fmt.Errorf("update approval flag: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update approval flag: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("product: %w", models.ErrNotFound)
	}
	return nil
}

// DeleteProduct removes the product and its image rows. Order lines are
// snapshots and are deliberately left alone.
func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	result, err := s.DB.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("product: %w", models.ErrNotFound)
	}
	return nil
}

// AddProductImage appends an image URL; the first image added is the
// primary one.
func (s *Store) AddProductImage(ctx context.Context, productID, url string) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO product_images (id, product_id, url, position)
		VALUES (?, ?, ?, (SELECT COUNT(*) FROM product_images WHERE product_id = ?))
	`, uuid.New().String(), productID, url, productID)
	if err != nil {
		return fmt.Errorf("insert product image: %w", err)
	}
	return nil
}

func (s *Store) listProductImages(ctx context.Context, productID string) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT url FROM product_images WHERE product_id = ? ORDER BY position
	`, productID)
	if err != nil {
		return nil, fmt.Errorf("query product images: %w", err)
	}
	defer rows.Close()

	urls := make([]string, 0)
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			return nil, fmt.Errorf("scan product image: %w", err)
		}
		urls = append(urls, url)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate product images: %w", err)
	}
	return urls, nil
}
