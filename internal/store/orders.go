package store

import (
	"context"
	"time"

	"storefront-service/internal/models"

	"github.com/jmoiron/sqlx"
)

const orderColumns = `order_id, user_id, order_number, order_date, payment_date, total_amount, status,
	remote_order_id, remote_payment_id, shipping_address_id`

// NextOrderNumber returns max(order_number)+1 for the user. The number is
// display-only; concurrent creations may observe the same value.
func (s *Store) NextOrderNumber(ctx context.Context, userID int64) (int64, error) {
	var next int64
	err := s.get(ctx, &next,
		"SELECT COALESCE(MAX(order_number), 0) + 1 FROM orders WHERE user_id = $1", userID)
	return next, err
}

// CreateOrder creates a new order
func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	query := `
		INSERT INTO orders (user_id, order_number, total_amount, status, shipping_address_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING order_id, order_date`

	return sqlx.GetContext(ctx, s.q, order, query,
		order.UserID, order.OrderNumber, order.TotalAmount, order.Status, order.ShippingAddressID)
}

// CreateOrderItem creates a new order item
func (s *Store) CreateOrderItem(ctx context.Context, item *models.OrderItem) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO order_items (order_id, product_id, quantity, price_at_purchase)
		VALUES ($1, $2, $3, $4)`,
		item.OrderID, item.ProductID, item.Quantity, item.PriceAtPurchase)
	return err
}

// SetRemoteOrderID stores the payment gateway's order reference.
func (s *Store) SetRemoteOrderID(ctx context.Context, orderID int64, remoteOrderID string) error {
	return s.execAffected(ctx,
		"UPDATE orders SET remote_order_id = $1 WHERE order_id = $2", remoteOrderID, orderID)
}

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	if err := s.get(ctx, &order, "SELECT "+orderColumns+" FROM orders WHERE order_id = $1", id); err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderForUpdate loads an order and locks its row until the transaction ends.
func (s *Store) GetOrderForUpdate(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	if err := s.get(ctx, &order, "SELECT "+orderColumns+" FROM orders WHERE order_id = $1 FOR UPDATE", id); err != nil {
		return nil, err
	}
	return &order, nil
}

// MarkOrderPaid moves an order to Paid and records the gateway transaction.
func (s *Store) MarkOrderPaid(ctx context.Context, orderID int64, remotePaymentID string, paidAt time.Time) error {
	return s.execAffected(ctx, `
		UPDATE orders SET status = $1, remote_payment_id = $2, payment_date = $3
		WHERE order_id = $4 AND status <> $1`,
		models.OrderStatusPaid, remotePaymentID, paidAt, orderID)
}

// MarkOrderFailed moves a not-yet-paid order to Failed.
func (s *Store) MarkOrderFailed(ctx context.Context, orderID int64, remotePaymentID string) error {
	return s.execAffected(ctx, `
		UPDATE orders SET status = $1, remote_payment_id = $2
		WHERE order_id = $3 AND status <> $4`,
		models.OrderStatusFailed, remotePaymentID, orderID, models.OrderStatusPaid)
}

// GetOrdersByUserID retrieves orders for a user, newest first.
func (s *Store) GetOrdersByUserID(ctx context.Context, userID int64) ([]models.Order, error) {
	orders := []models.Order{}
	err := s.selectAll(ctx, &orders,
		"SELECT "+orderColumns+" FROM orders WHERE user_id = $1 ORDER BY order_date DESC, order_id DESC", userID)
	return orders, err
}

// GetOrderItemsByOrderID retrieves all items for an order
func (s *Store) GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	items := []models.OrderItem{}
	err := s.selectAll(ctx, &items,
		"SELECT order_id, product_id, quantity, price_at_purchase FROM order_items WHERE order_id = $1 ORDER BY product_id",
		orderID)
	return items, err
}

// GetOrderItemDetails returns the lines of the given orders with product
// display fields. Prices are the frozen purchase prices.
func (s *Store) GetOrderItemDetails(ctx context.Context, orderIDs []int64) ([]models.OrderItemDetail, error) {
	items := []models.OrderItemDetail{}
	if len(orderIDs) == 0 {
		return items, nil
	}

	query, args, err := sqlx.In(`
		SELECT oi.order_id, oi.product_id, oi.quantity, oi.price_at_purchase, p.name, p.main_image_url
		FROM order_items oi
		JOIN products p ON p.id = oi.product_id
		WHERE oi.order_id IN (?)
		ORDER BY oi.order_id, oi.product_id`, orderIDs)
	if err != nil {
		return nil, err
	}

	err = s.selectAll(ctx, &items, s.q.Rebind(query), args...)
	return items, err
}
