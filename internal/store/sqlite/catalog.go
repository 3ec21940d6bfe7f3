package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/yohanns/storefront/internal/domain"
	"github.com/yohanns/storefront/internal/store"
)

const branchColumns = `id, name, address, city, phone, email, is_main_manufacturing, created_at`

func scanBranch(s rowScanner) (*domain.Branch, error) {
	var b domain.Branch
	var createdAt string
	if err := s.Scan(&b.ID, &b.Name, &b.Address, &b.City, &b.Phone, &b.Email, &b.IsMainManufacturing, &createdAt); err != nil {
		return nil, err
	}
	b.CreatedAt = parseTime(createdAt)
	return &b, nil
}

// ListBranches returns all branches ordered by name.
func (db *DB) ListBranches(ctx context.Context) ([]domain.Branch, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT `+branchColumns+` FROM branches ORDER BY name ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list branches: %w", err)
	}
	defer rows.Close()

	var out []domain.Branch
	for rows.Next() {
		b, err := scanBranch(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan branch: %w", err)
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

// GetBranch returns one branch.
func (db *DB) GetBranch(ctx context.Context, id int64) (*domain.Branch, error) {
	b, err := scanBranch(db.conn.QueryRowContext(ctx, `SELECT `+branchColumns+` FROM branches WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return b, nil
}

// UpsertBranch inserts a new branch or updates an existing one.
func (db *DB) UpsertBranch(ctx context.Context, b *domain.Branch) error {
	if b.CreatedAt.IsZero() {
		b.CreatedAt = db.now()
	}
	if b.ID == 0 {
		res, err := db.conn.ExecContext(ctx, `
		INSERT INTO branches (name, address, city, phone, email, is_main_manufacturing, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
			b.Name, b.Address, b.City, b.Phone, b.Email, b.IsMainManufacturing, formatTime(b.CreatedAt))
		if err != nil {
			return fmt.Errorf("failed to insert branch: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read branch id: %w", err)
		}
		b.ID = id
		return nil
	}

	_, err := db.conn.ExecContext(ctx, `
	INSERT INTO branches (id, name, address, city, phone, email, is_main_manufacturing, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		name = excluded.name,
		address = excluded.address,
		city = excluded.city,
		phone = excluded.phone,
		email = excluded.email,
		is_main_manufacturing = excluded.is_main_manufacturing`,
		b.ID, b.Name, b.Address, b.City, b.Phone, b.Email, b.IsMainManufacturing, formatTime(b.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert branch %d: %w", b.ID, err)
	}
	return nil
}

const productColumns = `id, name, category, description, price, main_image, additional_images,
	available_sizes, branch_id, stock_quantity, sold_quantity, average_rating, review_count,
	created_at, updated_at`

// productSelect reads products with the owning branch name joined in.
const productSelect = `SELECT p.id, p.name, p.category, p.description, p.price, p.main_image,
	p.additional_images, p.available_sizes, p.branch_id, p.stock_quantity, p.sold_quantity,
	p.average_rating, p.review_count, p.created_at, p.updated_at, b.name
	FROM products p LEFT JOIN branches b ON b.id = p.branch_id`

func scanProduct(s rowScanner) (*domain.Product, error) {
	var p domain.Product
	var images, sizes, createdAt, updatedAt string
	var branchID sql.NullInt64
	var branchName sql.NullString
	err := s.Scan(&p.ID, &p.Name, &p.Category, &p.Description, &p.Price, &p.MainImage, &images,
		&sizes, &branchID, &p.StockQuantity, &p.SoldQuantity, &p.AverageRating, &p.ReviewCount,
		&createdAt, &updatedAt, &branchName)
	if err != nil {
		return nil, err
	}
	if branchID.Valid {
		id := branchID.Int64
		p.BranchID = &id
	}
	p.BranchName = branchName.String
	if err := fromJSON(images, &p.AdditionalImages); err != nil {
		return nil, err
	}
	if err := fromJSON(sizes, &p.AvailableSizes); err != nil {
		return nil, err
	}
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	p.SetDefaults(p.CreatedAt)
	return &p, nil
}

// ListProducts returns products newest first.
func (db *DB) ListProducts(ctx context.Context, f store.ProductFilter) ([]domain.Product, error) {
	query := productSelect
	var args []any
	if f.BranchID != nil {
		query += ` WHERE p.branch_id = ?`
		args = append(args, *f.BranchID)
	}
	query += ` ORDER BY p.created_at DESC`

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	var out []domain.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// GetProduct returns one product.
func (db *DB) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	p, err := scanProduct(db.conn.QueryRowContext(ctx, productSelect+` WHERE p.id = ?`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return p, nil
}

func branchArg(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}

// CreateProduct inserts a product, assigning an ID when empty.
func (db *DB) CreateProduct(ctx context.Context, p *domain.Product) error {
	if p.ID == "" {
		p.ID = newID()
	}
	p.SetDefaults(db.now())
	images, err := toJSON(p.AdditionalImages)
	if err != nil {
		return err
	}
	sizes, err := toJSON(p.AvailableSizes)
	if err != nil {
		return err
	}
	_, err = db.conn.ExecContext(ctx, `
	INSERT INTO products (`+productColumns+`)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Category, p.Description, p.Price, p.MainImage, images,
		sizes, branchArg(p.BranchID), p.StockQuantity, p.SoldQuantity, p.AverageRating, p.ReviewCount,
		formatTime(p.CreatedAt), formatTime(p.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert product: %w", err)
	}
	return nil
}

// UpdateProduct overwrites the editable product fields.
func (db *DB) UpdateProduct(ctx context.Context, p *domain.Product) error {
	p.UpdatedAt = db.now()
	images, err := toJSON(p.AdditionalImages)
	if err != nil {
		return err
	}
	sizes, err := toJSON(p.AvailableSizes)
	if err != nil {
		return err
	}
	res, err := db.conn.ExecContext(ctx, `
	UPDATE products SET
		name = ?, category = ?, description = ?, price = ?, main_image = ?,
		additional_images = ?, available_sizes = ?, branch_id = ?, stock_quantity = ?,
		updated_at = ?
	WHERE id = ?`,
		p.Name, p.Category, p.Description, p.Price, p.MainImage,
		images, sizes, branchArg(p.BranchID), p.StockQuantity,
		formatTime(p.UpdatedAt), p.ID)
	if err != nil {
		return fmt.Errorf("failed to update product %s: %w", p.ID, err)
	}
	return requireAffected(res)
}

// DeleteProduct removes a product.
func (db *DB) DeleteProduct(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete product %s: %w", id, err)
	}
	return requireAffected(res)
}

// UpdateProductStats writes the denormalized review and sales figures.
func (db *DB) UpdateProductStats(ctx context.Context, id string, stats store.ProductStats) error {
	res, err := db.conn.ExecContext(ctx, `
	UPDATE products SET average_rating = ?, review_count = ?, sold_quantity = ?, updated_at = ?
	WHERE id = ?`,
		stats.AverageRating, stats.ReviewCount, stats.SoldQuantity, formatTime(db.now()), id)
	if err != nil {
		return fmt.Errorf("failed to update product stats %s: %w", id, err)
	}
	return requireAffected(res)
}
