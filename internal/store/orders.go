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

// CreateOrder persists a tentative order, its line snapshots and the
// gateway transaction in one transaction.
func (s *Store) CreateOrder(ctx context.Context, order *models.Order, txn *models.Transaction) error {
	if order.ID == "" {
		order.ID = uuid.New().String()
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin order transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, buyer_id, total, status, payment_state, gateway_order_id, gateway_payment_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, order.ID, order.BuyerID, order.Total, order.Status, order.PaymentState,
		order.GatewayOrderID, order.GatewayPaymentID, order.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for i := range order.Lines {
		line := &order.Lines[i]
		if line.ID == "" {
			line.ID = uuid.New().String()
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_lines (id, order_id, product_id, seller_id, product_name, material, unit_price, quantity, line_total)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, line.ID, order.ID, line.ProductID, line.SellerID, line.ProductName,
			line.Material, line.UnitPrice, line.Quantity, line.LineTotal)
		if err != nil {
			return fmt.Errorf("insert order line: %w", err)
		}
	}

	if txn != nil {
		if txn.ID == "" {
			txn.ID = uuid.New().String()
		}
		if txn.CreatedAt.IsZero() {
			txn.CreatedAt = order.CreatedAt
		}
		txn.OrderID = order.ID
		_, err = tx.ExecContext(ctx, `
			INSERT INTO transactions (id, order_id, gateway_order_id, gateway_payment_id, amount, currency, status, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, txn.ID, txn.OrderID, txn.GatewayOrderID, txn.GatewayPaymentID,
			txn.Amount, txn.Currency, txn.Status, txn.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit order transaction: %w", err)
	}
	return nil
}

func (s *Store) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT id, buyer_id, total, status, payment_state, gateway_order_id, gateway_payment_id, created_at
		FROM orders
		WHERE id = ?
	`, id)

	order, err := scanOrder(row)
	if err != nil {
		return nil, err
	}

	lines, err := s.listOrderLines(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	order.Lines = lines

	return order, nil
}

func scanOrder(row rowScanner) (*models.Order, error) {
	var o models.Order
	err := row.Scan(&o.ID, &o.BuyerID, &o.Total, &o.Status, &o.PaymentState,
		&o.GatewayOrderID, &o.GatewayPaymentID, &o.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order: %w", models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan order: %w", err)
	}
	return &o, nil
}

func (s *Store) listOrderLines(ctx context.Context, orderID string) ([]models.OrderLine, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, product_id, seller_id, product_name, material, unit_price, quantity, line_total
		FROM order_lines
		WHERE order_id = ?
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("query order lines: %w", err)
	}
	defer rows.Close()

	lines := make([]models.OrderLine, 0)
	for rows.Next() {
		var l models.OrderLine
		if err := rows.Scan(&l.ID, &l.ProductID, &l.SellerID, &l.ProductName,
			&l.Material, &l.UnitPrice, &l.Quantity, &l.LineTotal); err != nil {
			return nil, fmt.Errorf("scan order line: %w", err)
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order lines: %w", err)
	}
	return lines, nil
}

func (s *Store) ListOrdersByBuyer(ctx context.Context, buyerID string) ([]models.Order, error) {
	return s.listOrders(ctx, `
		SELECT id, buyer_id, total, status, payment_state, gateway_order_id, gateway_payment_id, created_at
		FROM orders
		WHERE buyer_id = ?
		ORDER BY created_at DESC
	`, buyerID)
}

// ListOrdersBySeller returns orders containing at least one line owned by
// the seller.
func (s *Store) ListOrdersBySeller(ctx context.Context, sellerID string) ([]models.Order, error) {
	return s.listOrders(ctx, `
		SELECT DISTINCT o.id, o.buyer_id, o.total, o.status, o.payment_state, o.gateway_order_id, o.gateway_payment_id, o.created_at
		FROM orders o
		JOIN order_lines l ON l.order_id = o.id
		WHERE l.seller_id = ?
		ORDER BY o.created_at DESC
	`, sellerID)
}

func (s *Store) ListAllOrders(ctx context.Context) ([]models.Order, error) {
	return s.listOrders(ctx, `
		SELECT id, buyer_id, total, status, payment_state, gateway_order_id, gateway_payment_id, created_at
		FROM orders
		ORDER BY created_at DESC
	`)
}

func (s *Store) listOrders(ctx context.Context, query string, args ...any) ([]models.Order, error) {
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	orders := make([]models.Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}

	for i := range orders {
		lines, err := s.listOrderLines(ctx, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Lines = lines
	}

	return orders, nil
}

// MarkOrdersPaid confirms every pending order created for the given gateway
// order and completes the matching transaction. Already-paid orders are
// left untouched, which makes repeated verification callbacks harmless.
func (s *Store) MarkOrdersPaid(ctx context.Context, gatewayOrderID, gatewayPaymentID string) ([]models.Order, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin payment transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists bool
	err = tx.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM orders WHERE gateway_order_id = ?)
	`, gatewayOrderID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("check gateway order: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("order for gateway id %s: %w", gatewayOrderID, models.ErrNotFound)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE orders
		SET payment_state = ?, gateway_payment_id = ?
		WHERE gateway_order_id = ? AND payment_state = ?
	`, models.PaymentPaid, gatewayPaymentID, gatewayOrderID, models.PaymentPending)
	if err != nil {
		return nil, fmt.Errorf("mark orders paid: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE transactions
		SET status = ?, gateway_payment_id = ?
		WHERE gateway_order_id = ? AND status = ?
	`, models.TransactionCompleted, gatewayPaymentID, gatewayOrderID, models.TransactionCreated)
	if err != nil {
		return nil, fmt.Errorf("complete transaction: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit payment transaction: %w", err)
	}

	return s.listOrders(ctx, `
		SELECT id, buyer_id, total, status, payment_state, gateway_order_id, gateway_payment_id, created_at
		FROM orders
		WHERE gateway_order_id = ?
	`, gatewayOrderID)
}

// UpdateOrderStatus moves an order to a new status, guarded by the status
// the caller decided the transition from. A concurrent transition makes the
// guard miss and surfaces as ErrConflict.
func (s *Store) UpdateOrderStatus(ctx context.Context, id string, from, to models.OrderStatus) error {
	result, err := s.DB.ExecContext(ctx, `
		UPDATE orders SET status = ? WHERE id = ? AND status = ?
	`, to, id, from)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("order status changed concurrently: %w", models.ErrConflict)
	}
	return nil
}

// ExpirePendingOrders marks orders that never saw a verified payment as
// expired and returns how many were swept.
func (s *Store) ExpirePendingOrders(ctx context.Context, cutoff time.Time) (int64, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin expiry transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET payment_state = ?
		WHERE payment_state = ? AND created_at < ?
	`, models.PaymentExpired, models.PaymentPending, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("expire pending orders: %w", err)
	}

	expired, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expire pending orders: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE transactions
		SET status = ?
		WHERE status = ? AND created_at < ?
	`, models.TransactionExpired, models.TransactionCreated, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("expire stale transactions: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit expiry transaction: %w", err)
	}
	return expired, nil
}

// GetTransactionByGatewayOrder returns the payment transaction recorded for
// a gateway order id.
func (s *Store) GetTransactionByGatewayOrder(ctx context.Context, gatewayOrderID string) (*models.Transaction, error) {
	var t models.Transaction
	err := s.DB.QueryRowContext(ctx, `
		SELECT id, order_id, gateway_order_id, gateway_payment_id, amount, currency, status, created_at
		FROM transactions
		WHERE gateway_order_id = ?
	`, gatewayOrderID).Scan(&t.ID, &t.OrderID, &t.GatewayOrderID, &t.GatewayPaymentID,
		&t.Amount, &t.Currency, &t.Status, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("transaction: %w", models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan transaction: %w", err)
	}
	return &t, nil
}
