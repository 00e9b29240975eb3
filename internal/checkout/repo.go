package checkout

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repo struct{ DB *pgxpool.Pool }

var _ Store = (*Repo)(nil)

// validateLine applies the per-item reservation rules against a locked variant row.
func validateLine(variantProductID int64, stock int, item ItemInput) error {
	if variantProductID != item.ProductID {
		return ErrVariantMismatch
	}
	if stock < item.Quantity {
		return ErrInsufficientStock
	}
	return nil
}

// CreateOrder reserves stock and persists the order aggregate in one transaction.
// Per item: lock the variant row, validate ownership and stock, consume the cart
// entry, decrement stock, increment sold. Any failure rolls everything back.
func (r *Repo) CreateOrder(ctx context.Context, in CreateOrderInput) (*Checkout, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	lines := make([]OrderLine, 0, len(in.Items))
	subtotal := 0
	for _, it := range in.Items {
		var productID int64
		var stock, price int
		err := tx.QueryRow(ctx, `SELECT product_id, stock, price FROM variants WHERE id=$1 FOR UPDATE`,
			it.VariantID).Scan(&productID, &stock, &price)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrVariantNotFound
		}
		if err != nil {
			return nil, err
		}
		if err := validateLine(productID, stock, it); err != nil {
			return nil, err
		}

		ct, err := tx.Exec(ctx, `DELETE FROM carts WHERE user_id=$1 AND product_id=$2 AND variant_id=$3`,
			in.UserID, it.ProductID, it.VariantID)
		if err != nil {
			return nil, err
		}
		if ct.RowsAffected() == 0 {
			return nil, ErrNotInCart
		}

		if _, err := tx.Exec(ctx, `UPDATE variants SET stock = stock - $2 WHERE id=$1`,
			it.VariantID, it.Quantity); err != nil {
			return nil, err
		}
		ct, err = tx.Exec(ctx, `UPDATE products SET sold = sold + $2 WHERE id=$1`,
			it.ProductID, it.Quantity)
		if err != nil {
			return nil, err
		}
		if ct.RowsAffected() == 0 {
			return nil, ErrProductNotFound
		}

		lineTotal := price * it.Quantity
		subtotal += lineTotal
		lines = append(lines, OrderLine{
			ProductID: it.ProductID,
			VariantID: it.VariantID,
			Quantity:  it.Quantity,
			Price:     lineTotal,
		})
	}

	ord := &Checkout{
		OrderID:         NewOrderID(),
		UserID:          in.UserID,
		Description:     in.Description,
		GiftCard:        in.GiftCard,
		GiftDescription: in.GiftDescription,
		Estimation:      time.Now().Add(3 * 24 * time.Hour),
		TotalPrice:      subtotal + in.DeliveryFee,
		Lines:           lines,
		Delivery: Delivery{
			Type:          in.Delivery.Type,
			PickupDate:    in.Delivery.PickupDate,
			PickupHour:    in.Delivery.PickupHour,
			DeliveryPrice: in.DeliveryFee,
			AddressID:     in.Delivery.AddressID,
		},
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO checkouts(order_id, user_id, description, gift_card, gift_description, estimation, total_price)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING id, created_at`,
		ord.OrderID, ord.UserID, ord.Description, ord.GiftCard, ord.GiftDescription, ord.Estimation, ord.TotalPrice,
	).Scan(&ord.ID, &ord.CreatedAt)
	if err != nil {
		return nil, err
	}

	// pickup orders carry no address
	var addressID *int64
	if ord.Delivery.AddressID > 0 {
		addressID = &ord.Delivery.AddressID
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO deliveries(checkout_id, delivery_type, pickup_date, pickup_hour, delivery_price, address_id)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		ord.ID, ord.Delivery.Type, ord.Delivery.PickupDate, ord.Delivery.PickupHour,
		ord.Delivery.DeliveryPrice, addressID); err != nil {
		return nil, err
	}

	for _, ln := range lines {
		if _, err := tx.Exec(ctx, `
			INSERT INTO product_checkouts(checkout_id, product_id, variant_id, quantity, price)
			VALUES ($1,$2,$3,$4,$5)`,
			ord.ID, ln.ProductID, ln.VariantID, ln.Quantity, ln.Price); err != nil {
			return nil, err
		}
	}

	initial := StatusEvent{
		PaymentStatus: PaymentPending,
		OrderStatus:   StatusPending,
		Description:   "Waiting for payment",
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO status_checkouts(checkout_id, payment_status, order_status, description)
		VALUES ($1,$2,$3,$4)
		RETURNING created_at`,
		ord.ID, initial.PaymentStatus, initial.OrderStatus, initial.Description,
	).Scan(&initial.CreatedAt)
	if err != nil {
		return nil, err
	}
	ord.Status = []StatusEvent{initial}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return ord, nil
}

// SetSnapToken is the non-transactional follow-up after the gateway call;
// losing it is recoverable by retrying the payment initiation.
func (r *Repo) SetSnapToken(ctx context.Context, orderID, token string) error {
	ct, err := r.DB.Exec(ctx, `UPDATE checkouts SET snap_token=$2 WHERE order_id=$1`, orderID, token)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (r *Repo) LatestStatus(ctx context.Context, orderID string) (*StatusEvent, error) {
	var ev StatusEvent
	err := r.DB.QueryRow(ctx, `
		SELECT s.payment_status, s.order_status, s.description, s.created_at
		FROM status_checkouts s
		JOIN checkouts c ON c.id = s.checkout_id
		WHERE c.order_id = $1
		ORDER BY s.created_at DESC, s.id DESC
		LIMIT 1`, orderID).
		Scan(&ev.PaymentStatus, &ev.OrderStatus, &ev.Description, &ev.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

// ApplyStatus appends a status event chosen by decide. The checkout row is
// locked first and the latest event is re-read under that lock, so decide sees
// the truth even when two webhook deliveries or an admin update race on the
// same order. A restocking decision reverses the reservation of every order
// line (stock back, sold down) in the same transaction.
func (r *Repo) ApplyStatus(ctx context.Context, orderID string, decide StatusDecision) (*StatusEvent, bool, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var checkoutID int64
	err = tx.QueryRow(ctx, `SELECT id FROM checkouts WHERE order_id=$1 FOR UPDATE`, orderID).Scan(&checkoutID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, ErrOrderNotFound
	}
	if err != nil {
		return nil, false, err
	}

	var latest StatusEvent
	err = tx.QueryRow(ctx, `
		SELECT payment_status, order_status, description, created_at
		FROM status_checkouts
		WHERE checkout_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1`, checkoutID).
		Scan(&latest.PaymentStatus, &latest.OrderStatus, &latest.Description, &latest.CreatedAt)
	if err != nil {
		return nil, false, err
	}

	ev, restock, err := decide(latest)
	if err != nil {
		return nil, false, err
	}

	if restock {
		rows, err := tx.Query(ctx, `SELECT product_id, variant_id, quantity
		                            FROM product_checkouts WHERE checkout_id=$1`, checkoutID)
		if err != nil {
			return nil, false, err
		}
		var lines []OrderLine
		for rows.Next() {
			var ln OrderLine
			if err := rows.Scan(&ln.ProductID, &ln.VariantID, &ln.Quantity); err != nil {
				rows.Close()
				return nil, false, err
			}
			lines = append(lines, ln)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, false, err
		}

		for _, ln := range lines {
			if _, err := tx.Exec(ctx, `UPDATE variants SET stock = stock + $2 WHERE id=$1`,
				ln.VariantID, ln.Quantity); err != nil {
				return nil, false, err
			}
			if _, err := tx.Exec(ctx, `UPDATE products SET sold = sold - $2 WHERE id=$1`,
				ln.ProductID, ln.Quantity); err != nil {
				return nil, false, err
			}
		}
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO status_checkouts(checkout_id, payment_status, order_status, description)
		VALUES ($1,$2,$3,$4)
		RETURNING created_at`,
		checkoutID, ev.PaymentStatus, ev.OrderStatus, ev.Description).Scan(&ev.CreatedAt)
	if err != nil {
		return nil, false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, err
	}
	return &ev, restock, nil
}

func (r *Repo) ByOrderID(ctx context.Context, orderID string) (*Checkout, error) {
	var ord Checkout
	var snapToken *string
	var addressID *int64
	err := r.DB.QueryRow(ctx, `
		SELECT c.id, c.order_id, c.user_id, c.description, c.gift_card, c.gift_description,
		       c.estimation, c.total_price, c.snap_token, c.created_at,
		       d.delivery_type, d.pickup_date, d.pickup_hour, d.delivery_price, d.address_id
		FROM checkouts c
		JOIN deliveries d ON d.checkout_id = c.id
		WHERE c.order_id = $1`, orderID).
		Scan(&ord.ID, &ord.OrderID, &ord.UserID, &ord.Description, &ord.GiftCard, &ord.GiftDescription,
			&ord.Estimation, &ord.TotalPrice, &snapToken, &ord.CreatedAt,
			&ord.Delivery.Type, &ord.Delivery.PickupDate, &ord.Delivery.PickupHour,
			&ord.Delivery.DeliveryPrice, &addressID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	if snapToken != nil {
		ord.SnapToken = *snapToken
	}
	if addressID != nil {
		ord.Delivery.AddressID = *addressID
	}

	rows, err := r.DB.Query(ctx, `SELECT product_id, variant_id, quantity, price
	                              FROM product_checkouts WHERE checkout_id=$1`, ord.ID)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var ln OrderLine
		if err := rows.Scan(&ln.ProductID, &ln.VariantID, &ln.Quantity, &ln.Price); err != nil {
			rows.Close()
			return nil, err
		}
		ord.Lines = append(ord.Lines, ln)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = r.DB.Query(ctx, `SELECT payment_status, order_status, description, created_at
	                             FROM status_checkouts WHERE checkout_id=$1
	                             ORDER BY created_at, id`, ord.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var ev StatusEvent
		if err := rows.Scan(&ev.PaymentStatus, &ev.OrderStatus, &ev.Description, &ev.CreatedAt); err != nil {
			return nil, err
		}
		ord.Status = append(ord.Status, ev)
	}
	return &ord, rows.Err()
}

func (r *Repo) ListSummaries(ctx context.Context) ([]Summary, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT c.order_id, u.name, s.payment_status, s.order_status, d.delivery_type, c.total_price
		FROM checkouts c
		JOIN users u ON u.id = c.user_id
		JOIN deliveries d ON d.checkout_id = c.id
		JOIN LATERAL (
			SELECT payment_status, order_status FROM status_checkouts
			WHERE checkout_id = c.id
			ORDER BY created_at DESC, id DESC LIMIT 1
		) s ON true
		ORDER BY c.created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var s Summary
		if err := rows.Scan(&s.OrderID, &s.UserName, &s.PaymentStatus, &s.OrderStatus, &s.DeliveryType, &s.Amount); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *Repo) HistoryByUser(ctx context.Context, userID int64) ([]HistoryEntry, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT c.order_id, s.order_status, c.total_price, c.created_at
		FROM checkouts c
		JOIN LATERAL (
			SELECT order_status FROM status_checkouts
			WHERE checkout_id = c.id
			ORDER BY created_at DESC, id DESC LIMIT 1
		) s ON true
		WHERE c.user_id = $1
		ORDER BY c.created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []HistoryEntry
	for rows.Next() {
		var h HistoryEntry
		if err := rows.Scan(&h.OrderID, &h.OrderStatus, &h.TotalPrice, &h.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (r *Repo) AddressCoords(ctx context.Context, addressID int64) (string, string, error) {
	var lon, lat string
	err := r.DB.QueryRow(ctx, `SELECT longitude, latitude FROM addresses WHERE id=$1`, addressID).
		Scan(&lon, &lat)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", "", ErrAddressNotFound
	}
	if err != nil {
		return "", "", err
	}
	return lon, lat, nil
}
