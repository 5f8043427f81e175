package store

import (
	"context"
	"database/sql"
	"fmt"

	"storefront-service/internal/models"
)

const orderColumns = `id, user_id, principal_kind, guest_email, payment_intent_id, subtotal, shipping_cost,
	total_amount, currency, items, shipping_details, shipping_option, status, verified, source,
	created_at, updated_at`

// CreateOrderWithPayment writes the order and its payment record in one
// transaction. When an order for the same payment intent already exists the
// existing row is loaded into order and created is false.
func (s *Store) CreateOrderWithPayment(ctx context.Context, order *models.Order, payment *models.Payment) (bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	insertOrder := `
		INSERT INTO orders (id, user_id, principal_kind, guest_email, payment_intent_id, subtotal,
			shipping_cost, total_amount, currency, items, shipping_details, shipping_option,
			status, verified, source)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (payment_intent_id) DO NOTHING
		RETURNING created_at, updated_at`

	err = tx.QueryRowxContext(ctx, insertOrder,
		order.ID, order.UserID, order.PrincipalKind, order.GuestEmail, order.PaymentIntentID,
		order.Subtotal, order.ShippingCost, order.TotalAmount, order.Currency, order.Items,
		order.ShippingDetails, order.ShippingOption, order.Status, order.Verified, order.Source,
	).Scan(&order.CreatedAt, &order.UpdatedAt)

	if err == sql.ErrNoRows {
		var existing models.Order
		if err := tx.GetContext(ctx, &existing,
			"SELECT "+orderColumns+" FROM orders WHERE payment_intent_id = $1", order.PaymentIntentID); err != nil {
			return false, fmt.Errorf("failed to load existing order: %w", err)
		}
		*order = existing
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to insert order: %w", err)
	}

	payment.OrderID = order.ID
	insertPayment := `
		INSERT INTO payments (id, order_id, user_id, guest_email, transaction_id, amount, currency,
			method, status, gateway_response)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at`

	err = tx.QueryRowxContext(ctx, insertPayment,
		payment.ID, payment.OrderID, payment.UserID, payment.GuestEmail, payment.TransactionID,
		payment.Amount, payment.Currency, payment.Method, payment.Status, payment.GatewayResponse,
	).Scan(&payment.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("failed to insert payment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit order: %w", err)
	}
	return true, nil
}

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT "+orderColumns+" FROM orders WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderByPaymentIntent returns nil when no order exists for the intent
func (s *Store) GetOrderByPaymentIntent(ctx context.Context, intentID string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order,
		"SELECT "+orderColumns+" FROM orders WHERE payment_intent_id = $1", intentID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// ListOrdersByUser retrieves a user's orders, newest first
func (s *Store) ListOrdersByUser(ctx context.Context, userID string) ([]models.Order, error) {
	orders := []models.Order{}
	err := s.db.SelectContext(ctx, &orders,
		"SELECT "+orderColumns+" FROM orders WHERE user_id = $1 ORDER BY created_at DESC", userID)
	return orders, err
}

// MarkOrderVerified flags a fallback order as confirmed with the provider
func (s *Store) MarkOrderVerified(ctx context.Context, orderID string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE orders SET verified = TRUE, updated_at = NOW() WHERE id = $1", orderID)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

// UpdateOrderStatus updates order status
func (s *Store) UpdateOrderStatus(ctx context.Context, orderID string, status string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2",
		status, orderID)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return models.ErrNotFound
	}
	return nil
}
