package store

import (
	"context"

	"storefront-service/internal/models"
)

// AddFavorite records the association; adding an existing favorite is a no-op.
func (s *Store) AddFavorite(ctx context.Context, userID, productID int64) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO favorites (user_id, product_id) VALUES ($1, $2)
		ON CONFLICT (user_id, product_id) DO NOTHING`, userID, productID)
	return err
}

func (s *Store) ListFavorites(ctx context.Context, userID int64) ([]models.FavoriteLine, error) {
	lines := []models.FavoriteLine{}
	err := s.selectAll(ctx, &lines, `
		SELECT f.user_id, f.product_id, f.created_at, p.name, p.price, p.main_image_url
		FROM favorites f
		JOIN products p ON p.id = f.product_id
		WHERE f.user_id = $1
		ORDER BY f.created_at DESC, f.product_id`, userID)
	return lines, err
}

func (s *Store) DeleteFavorite(ctx context.Context, userID, productID int64) error {
	return s.execAffected(ctx,
		"DELETE FROM favorites WHERE user_id = $1 AND product_id = $2", userID, productID)
}
