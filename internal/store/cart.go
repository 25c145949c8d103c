package store

import (
	"context"

	"storefront-service/internal/models"
)

// AddCartEntry inserts the line or increments the quantity of an existing one.
func (s *Store) AddCartEntry(ctx context.Context, userID, productID int64, quantity int) (*models.CartEntry, error) {
	var entry models.CartEntry
	err := s.get(ctx, &entry, `
		INSERT INTO cart (user_id, product_id, quantity)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, product_id) DO UPDATE SET quantity = cart.quantity + EXCLUDED.quantity
		RETURNING user_id, product_id, quantity`, userID, productID, quantity)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// ListCart returns the user's cart lines with current product data.
func (s *Store) ListCart(ctx context.Context, userID int64) ([]models.CartLine, error) {
	lines := []models.CartLine{}
	err := s.selectAll(ctx, &lines, `
		SELECT c.user_id, c.product_id, c.quantity, p.name, p.price, p.main_image_url, p.stock
		FROM cart c
		JOIN products p ON p.id = c.product_id
		WHERE c.user_id = $1
		ORDER BY c.product_id`, userID)
	return lines, err
}

// UpdateCartQuantity sets the quantity of an existing line.
func (s *Store) UpdateCartQuantity(ctx context.Context, userID, productID int64, quantity int) error {
	return s.execAffected(ctx,
		"UPDATE cart SET quantity = $1 WHERE user_id = $2 AND product_id = $3", quantity, userID, productID)
}

// DeleteCartEntry removes one line from the cart.
func (s *Store) DeleteCartEntry(ctx context.Context, userID, productID int64) error {
	return s.execAffected(ctx,
		"DELETE FROM cart WHERE user_id = $1 AND product_id = $2", userID, productID)
}
