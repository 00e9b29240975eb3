package cart

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrCartNotFound = errors.New("cart not found")

type Repo struct{ DB *pgxpool.Pool }

func (r *Repo) ListByUser(ctx context.Context, userID int64) ([]Item, error) {
	rows, err := r.DB.Query(ctx, `SELECT id, user_id, product_id, variant_id, quantity, price, created_at
                                FROM carts WHERE user_id=$1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.UserID, &it.ProductID, &it.VariantID, &it.Quantity, &it.Price, &it.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// Upsert adds the variant to the user's cart, or replaces quantity and price
// snapshot when the same variant is already in it. Quantity arrives pre-clamped,
// price is the line snapshot (unit price x quantity).
func (r *Repo) Upsert(ctx context.Context, userID, productID, variantID int64, quantity, price int) error {
	var existingID int64
	err := r.DB.QueryRow(ctx, `SELECT id FROM carts
                             WHERE user_id=$1 AND product_id=$2 AND variant_id=$3`,
		userID, productID, variantID).Scan(&existingID)
	if err == nil {
		_, err = r.DB.Exec(ctx, `UPDATE carts SET quantity=$2, price=$3 WHERE id=$1`,
			existingID, quantity, price)
		return err
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	_, err = r.DB.Exec(ctx, `INSERT INTO carts(user_id, product_id, variant_id, quantity, price)
                           VALUES ($1,$2,$3,$4,$5)`,
		userID, productID, variantID, quantity, price)
	return err
}

func (r *Repo) Get(ctx context.Context, id, userID int64) (*Item, error) {
	var it Item
	err := r.DB.QueryRow(ctx, `SELECT id, user_id, product_id, variant_id, quantity, price, created_at
                             FROM carts WHERE id=$1 AND user_id=$2`, id, userID).
		Scan(&it.ID, &it.UserID, &it.ProductID, &it.VariantID, &it.Quantity, &it.Price, &it.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCartNotFound
	}
	if err != nil {
		return nil, err
	}
	return &it, nil
}

func (r *Repo) UpdateQuantity(ctx context.Context, id, userID int64, quantity, price int) error {
	ct, err := r.DB.Exec(ctx, `UPDATE carts SET quantity=$3, price=$4 WHERE id=$1 AND user_id=$2`,
		id, userID, quantity, price)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrCartNotFound
	}
	return nil
}

func (r *Repo) Delete(ctx context.Context, id, userID int64) error {
	ct, err := r.DB.Exec(ctx, `DELETE FROM carts WHERE id=$1 AND user_id=$2`, id, userID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrCartNotFound
	}
	return nil
}
