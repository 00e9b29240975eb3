package catalog

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrVariantNotFound = errors.New("variant not found")
)

type Repo struct{ DB *pgxpool.Pool }

func (r *Repo) ListProducts(ctx context.Context) ([]Product, error) {
	rows, err := r.DB.Query(ctx, `SELECT id, name, slug, sold, created_at, updated_at
                                FROM products ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Slug, &p.Sold, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *Repo) GetProduct(ctx context.Context, id int64) (*Product, error) {
	var p Product
	err := r.DB.QueryRow(ctx, `SELECT id, name, slug, sold, created_at, updated_at
                             FROM products WHERE id=$1`, id).
		Scan(&p.ID, &p.Name, &p.Slug, &p.Sold, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *Repo) GetVariant(ctx context.Context, id int64) (*Variant, error) {
	var v Variant
	err := r.DB.QueryRow(ctx, `SELECT id, product_id, variant_name, stock, price
                             FROM variants WHERE id=$1`, id).
		Scan(&v.ID, &v.ProductID, &v.VariantName, &v.Stock, &v.Price)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrVariantNotFound
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *Repo) ListVariants(ctx context.Context, productID int64) ([]Variant, error) {
	rows, err := r.DB.Query(ctx, `SELECT id, product_id, variant_name, stock, price
                                FROM variants WHERE product_id=$1 ORDER BY variant_name`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Variant
	for rows.Next() {
		var v Variant
		if err := rows.Scan(&v.ID, &v.ProductID, &v.VariantName, &v.Stock, &v.Price); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
